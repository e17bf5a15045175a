package reminder

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/comitetoraxvm/comite-torax/internal/platform/errs"
)

type Handler struct {
	sched *Scheduler
}

func NewHandler(sched *Scheduler) *Handler {
	return &Handler{sched: sched}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/reminders", h.CreateReminder)
	api.GET("/reminders", h.ListReminders)
	api.GET("/reminders/:id", h.GetReminder)
	api.POST("/reminders/:id/complete", h.CompleteReminder)

	api.POST("/followups", h.CreateFollowup)
	api.GET("/followups", h.ListFollowups)
	api.GET("/followups/:id", h.GetFollowup)
	api.POST("/followups/:id/complete", h.CompleteFollowup)
	api.DELETE("/followups/:id", h.DeleteFollowup)
}

// RegisterScanRoutes registers the due-scan trigger. It goes on a group
// without the request-transaction middleware: each scanned item stamps its
// own notification date independently, so a failure late in the scan cannot
// roll back stamps for mail that already left, and no transaction is held
// open across SMTP round trips.
func (h *Handler) RegisterScanRoutes(api *echo.Group) {
	api.POST("/reminders/scan", h.Scan)
}

func actor(c echo.Context) string {
	if a := c.Request().Header.Get("X-Actor-ID"); a != "" {
		return a
	}
	return "unknown"
}

type createReminderRequest struct {
	PatientID      uuid.UUID  `json:"patient_id"`
	ConsultationID *uuid.UUID `json:"consultation_id"`
	ControlDate    string     `json:"control_date"`
	ExtraEmails    []string   `json:"extra_emails"`
	CreatorEmail   string     `json:"creator_email"`
}

func (h *Handler) CreateReminder(c echo.Context) error {
	var req createReminderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cr, err := h.sched.CreateReminder(c.Request().Context(), CreateReminderParams{
		PatientID:      req.PatientID,
		ConsultationID: req.ConsultationID,
		ControlDate:    req.ControlDate,
		ExtraEmails:    req.ExtraEmails,
		CreatedBy:      actor(c),
		CreatorEmail:   req.CreatorEmail,
	})
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, cr)
}

func (h *Handler) GetReminder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cr, err := h.sched.GetReminder(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, cr)
}

func (h *Handler) ListReminders(c echo.Context) error {
	pid, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	items, err := h.sched.ListRemindersByPatient(c.Request().Context(), pid)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	if items == nil {
		items = []*ControlReminder{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CompleteReminder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.sched.MarkCompleted(c.Request().Context(), id, actor(c)); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	cr, err := h.sched.GetReminder(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, cr)
}

// Scan triggers the due scan on demand, alongside the remind CLI command. The
// optional date query parameter exists for backfills.
func (h *Handler) Scan(c echo.Context) error {
	report, err := h.sched.ScanDue(c.Request().Context(), c.QueryParam("date"))
	if errors.Is(err, ErrScanInProgress) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

type createFollowupRequest struct {
	ScreeningID  uuid.UUID `json:"screening_id"`
	StudyType    string    `json:"study_type"`
	ControlDate  string    `json:"control_date"`
	CreatorEmail string    `json:"creator_email"`
}

func (h *Handler) CreateFollowup(c echo.Context) error {
	var req createFollowupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fu, err := h.sched.CreateFollowup(c.Request().Context(), CreateFollowupParams{
		ScreeningID:  req.ScreeningID,
		StudyType:    req.StudyType,
		ControlDate:  req.ControlDate,
		CreatedBy:    actor(c),
		CreatorEmail: req.CreatorEmail,
	})
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, fu)
}

func (h *Handler) GetFollowup(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	fu, err := h.sched.GetFollowup(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, fu)
}

func (h *Handler) ListFollowups(c echo.Context) error {
	sid, err := uuid.Parse(c.QueryParam("screening_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "screening_id is required")
	}
	items, err := h.sched.ListFollowupsByScreening(c.Request().Context(), sid)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	if items == nil {
		items = []*ScreeningFollowup{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CompleteFollowup(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.sched.MarkFollowupCompleted(c.Request().Context(), id, actor(c)); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	fu, err := h.sched.GetFollowup(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, fu)
}

func (h *Handler) DeleteFollowup(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.sched.DeleteFollowup(c.Request().Context(), id, actor(c)); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
