package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/monitoring"
)

type caseListResponse struct {
	Cases      []caseListItem `json:"cases"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalCount int            `json:"total_count"`
}

type caseListItem struct {
	CaseID    uuid.UUID `json:"case_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// listCasesHandler implements GET /monitoring/cases.
func (s *Server) listCasesHandler(c *echo.Context) error {
	q := c.Request().URL.Query()

	filter := monitoring.ListFilter{
		Page:     atoiOrDefault(q.Get("page"), 1),
		PageSize: atoiOrDefault(q.Get("page_size"), monitoring.DefaultPageSize),
	}
	if v := q.Get("status"); v != "" {
		filter.Status = &v
	}
	if v := q.Get("from_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from_date")
		}
		filter.FromDate = &t
	}
	if v := q.Get("to_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to_date")
		}
		t = t.AddDate(0, 0, 1)
		filter.ToDate = &t
	}

	result, err := s.caseLister.CaseList(c.Request().Context(), filter)
	if err != nil {
		return mapServiceError(err)
	}

	items := make([]caseListItem, 0, len(result.Cases))
	for _, row := range result.Cases {
		items = append(items, caseListItem{
			CaseID: row.CaseID, Status: row.Status, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
		})
	}

	return c.JSON(http.StatusOK, caseListResponse{
		Cases: items, Page: result.Page, PageSize: result.PageSize, TotalCount: result.TotalCount,
	})
}

type caseTimelineResponse struct {
	CaseID   uuid.UUID             `json:"case_id"`
	Status   string                `json:"status"`
	Timeline []timelineEntryView   `json:"timeline"`
}

type timelineEntryView struct {
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	Channel     *string   `json:"channel,omitempty"`
	Actor       *string   `json:"actor,omitempty"`
	EventType   string    `json:"event_type"`
	Payload     *string   `json:"payload,omitempty"`
	ContentText *string   `json:"content_text,omitempty"`
}

// caseTimelineHandler implements GET /monitoring/cases/{case_id}.
func (s *Server) caseTimelineHandler(c *echo.Context) error {
	caseID, err := uuid.Parse(c.PathParam("case_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case_id")
	}

	status, entries, err := s.timeline.CaseTimeline(c.Request().Context(), caseID)
	if err != nil {
		if err == db.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "case not found")
		}
		return mapServiceError(err)
	}

	view := make([]timelineEntryView, 0, len(entries))
	for _, e := range entries {
		view = append(view, timelineEntryView{
			Timestamp: e.Timestamp, Source: e.Source, Channel: e.Channel, Actor: e.Actor,
			EventType: e.EventType, Payload: e.Payload, ContentText: e.ContentText,
		})
	}

	return c.JSON(http.StatusOK, caseTimelineResponse{CaseID: caseID, Status: status, Timeline: view})
}

func atoiOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
