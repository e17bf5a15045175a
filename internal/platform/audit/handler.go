package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler exposes read-only audit queries over HTTP via Echo.
type Handler struct {
	log *Log
}

func NewHandler(log *Log) *Handler {
	return &Handler{log: log}
}

// RegisterRoutes registers audit routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/audit", h.HandleQuery)
}

// HandleQuery handles GET /audit?actor=&action=&target=&since_seq=&limit=.
func (h *Handler) HandleQuery(c echo.Context) error {
	f := Filter{
		Actor:  c.QueryParam("actor"),
		Action: c.QueryParam("action"),
		Target: c.QueryParam("target"),
	}
	if v := c.QueryParam("since_seq"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid since_seq"})
		}
		f.SinceSeq = seq
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		f.Limit = limit
	}

	entries, err := h.log.Query(c.Request().Context(), f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}
