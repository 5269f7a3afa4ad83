package hipaa

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// AuditSearchHandler exposes the decision audit trail over HTTP.
type AuditSearchHandler struct {
	search *DecisionSearcher
}

// NewAuditSearchHandler creates a handler backed by the given searcher.
func NewAuditSearchHandler(s *DecisionSearcher) *AuditSearchHandler {
	return &AuditSearchHandler{search: s}
}

// RegisterRoutes registers decision audit routes on the provided Echo group.
// The caller is expected to pass a group gated to auditor roles.
func (h *AuditSearchHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/audit/decisions", h.HandleSearch)
	g.GET("/audit/decisions/summary", h.HandleSummary)
	g.GET("/audit/decisions/export/csv", h.HandleExportCSV)
	g.GET("/audit/decisions/export/json", h.HandleExportJSON)
	g.GET("/audit/decisions/:id", h.HandleGetEntry)
}

// decodeSearchParams reads DecisionSearchParams from the query string.
// Unparseable numbers and timestamps are dropped rather than rejected; the
// searcher applies its own defaults on top.
func decodeSearchParams(c echo.Context) DecisionSearchParams {
	var p DecisionSearchParams
	p.DecisionType = c.QueryParam("decision_type")
	p.SubjectID = c.QueryParam("subject_id")
	p.ActorRole = c.QueryParam("actor_role")
	p.Outcome = c.QueryParam("outcome")
	p.SortBy = c.QueryParam("sort_by")
	p.SortOrder = c.QueryParam("sort_order")
	intQueryParam(c, "limit", &p.Limit)
	intQueryParam(c, "offset", &p.Offset)
	p.StartTime = timeQueryParam(c, "start_time")
	p.EndTime = timeQueryParam(c, "end_time")
	return p
}

func intQueryParam(c echo.Context, name string, into *int) {
	if n, err := strconv.Atoi(c.QueryParam(name)); err == nil {
		*into = n
	}
}

func timeQueryParam(c echo.Context, name string) *time.Time {
	t, err := time.Parse(time.RFC3339, c.QueryParam(name))
	if err != nil {
		return nil
	}
	return &t
}

// HandleSearch handles GET /api/v1/audit/decisions.
func (h *AuditSearchHandler) HandleSearch(c echo.Context) error {
	res, err := h.search.Search(c.Request().Context(), decodeSearchParams(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, res)
}

// HandleSummary handles GET /api/v1/audit/decisions/summary.
func (h *AuditSearchHandler) HandleSummary(c echo.Context) error {
	sum, err := h.search.Summary(c.Request().Context(), decodeSearchParams(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, sum)
}

// beginDownload stamps attachment headers and commits the 200 before the
// export starts streaming. Errors past that point can only cut the stream
// short, not change the status.
func beginDownload(c echo.Context, contentType, ext string) *echo.Response {
	name := fmt.Sprintf("decision_audit_%s.%s", time.Now().UTC().Format("20060102_150405"), ext)
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, contentType)
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	res.WriteHeader(http.StatusOK)
	return res
}

// HandleExportCSV handles GET /api/v1/audit/decisions/export/csv.
func (h *AuditSearchHandler) HandleExportCSV(c echo.Context) error {
	return h.search.ExportCSV(c.Request().Context(), decodeSearchParams(c), beginDownload(c, "text/csv", "csv"))
}

// HandleExportJSON handles GET /api/v1/audit/decisions/export/json.
func (h *AuditSearchHandler) HandleExportJSON(c echo.Context) error {
	return h.search.ExportJSON(c.Request().Context(), decodeSearchParams(c), beginDownload(c, echo.MIMEApplicationJSON, "json"))
}

// HandleGetEntry handles GET /api/v1/audit/decisions/:id.
func (h *AuditSearchHandler) HandleGetEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid decision id"})
	}
	entry, err := h.search.GetEntry(c.Request().Context(), id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no decision recorded under " + id.String()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, entry)
}
