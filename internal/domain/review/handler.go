package review

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/comitetoraxvm/comite-torax/internal/platform/errs"
	"github.com/comitetoraxvm/comite-torax/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/reviews", h.CreateReview)
	api.GET("/reviews/pending-count", h.PendingCount)
	api.GET("/reviews/:id", h.GetReview)
	api.GET("/reviews/:id/comments", h.ListComments)
	api.POST("/reviews/:id/comments", h.AddComment)
	api.POST("/reviews/:id/resolve", h.Resolve)
	api.GET("/reviews", h.ListReviews)
}

// actor returns the acting physician's identifier, supplied by the external
// web layer. Authentication itself happens outside this service.
func actor(c echo.Context) string {
	if a := c.Request().Header.Get("X-Actor-ID"); a != "" {
		return a
	}
	return "unknown"
}

type createReviewRequest struct {
	PatientID      uuid.UUID  `json:"patient_id"`
	ConsultationID *uuid.UUID `json:"consultation_id"`
	StudyID        *uuid.UUID `json:"study_id"`
	Recipients     []string   `json:"recipients"`
	Message        string     `json:"message"`
}

func (h *Handler) CreateReview(c echo.Context) error {
	var req createReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rr, err := h.svc.Create(c.Request().Context(), CreateParams{
		PatientID:      req.PatientID,
		ConsultationID: req.ConsultationID,
		StudyID:        req.StudyID,
		CreatedBy:      actor(c),
		Recipients:     req.Recipients,
		Message:        req.Message,
	})
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, rr)
}

func (h *Handler) GetReview(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rr, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, rr)
}

func (h *Handler) ListReviews(c echo.Context) error {
	pid, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type addCommentRequest struct {
	Message string `json:"message"`
}

func (h *Handler) AddComment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req addCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	comment, err := h.svc.AddComment(c.Request().Context(), id, actor(c), req.Message)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, comment)
}

func (h *Handler) ListComments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	comments, err := h.svc.ListComments(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	if comments == nil {
		comments = []*ReviewComment{}
	}
	return c.JSON(http.StatusOK, comments)
}

func (h *Handler) Resolve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Resolve(c.Request().Context(), id, actor(c)); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	rr, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, rr)
}

func (h *Handler) PendingCount(c echo.Context) error {
	n, err := h.svc.CountPending(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"pending": n})
}
