// Package server exposes the read-only status API: file history and
// per-case summaries. It never writes to the database.
package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pharmovig/icsr-ingest/internal/database"
)

type StatusService struct {
	Loader database.Loader
}

func NewStatusService(loader database.Loader) *StatusService {
	return &StatusService{Loader: loader}
}

func (h *StatusService) GetHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetHistory returns the most recent file-history rows, newest first.
func (h *StatusService) GetHistory(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	rows, err := h.Loader.RecentHistory(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to retrieve file history")
	}
	if rows == nil {
		rows = []database.FileHistoryRow{}
	}
	return c.JSON(http.StatusOK, rows)
}

// GetCase returns one loaded case with its child-row counts.
func (h *StatusService) GetCase(c echo.Context) error {
	reportID := c.Param("id")
	if reportID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "safetyreportid is required")
	}

	summary, err := h.Loader.CaseSummary(c.Request().Context(), reportID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to retrieve case")
	}
	if summary == nil {
		return echo.NewHTTPError(http.StatusNotFound, "case not found")
	}
	return c.JSON(http.StatusOK, summary)
}
