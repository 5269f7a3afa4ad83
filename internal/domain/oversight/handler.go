package oversight

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinsafe/clinsafe/internal/platform/auth"
	"github.com/clinsafe/clinsafe/pkg/pagination"
)

// Handler exposes the oversight scanner and the alert review workflow.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers oversight routes on the given API group. The alert
// queue is reviewer tooling, so reads and review writes share one gate.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician", "clinical_reviewer"))

	g.POST("/oversight/analyze", h.HandleAnalyze)
	g.GET("/oversight/alerts", h.HandleListAlerts)
	g.GET("/oversight/alerts/:id", h.HandleGetAlert)
	g.PUT("/oversight/alerts/:id/review", h.HandleReviewAlert)
}

// analyzeRequest takes either one text or a decoded JSON document.
type analyzeRequest struct {
	Text string          `json:"text"`
	Data json.RawMessage `json:"data"`
}

type analyzeResponse struct {
	Alerts     []ClinicalAlert `json:"alerts"`
	AlertCount int             `json:"alert_count"`
}

// HandleAnalyze handles POST /oversight/analyze. The response always lists
// the classifications; alerts that require review are persisted as a side
// effect.
func (h *Handler) HandleAnalyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	source := "api:" + auth.UserIDFromContext(ctx)

	var alerts []ClinicalAlert
	switch {
	case req.Text != "":
		alert, _, err := h.svc.AnalyzeText(ctx, req.Text, source)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "analysis failed")
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	case len(req.Data) > 0:
		var data interface{}
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "data is not valid JSON")
		}
		var err error
		alerts, _, err = h.svc.AnalyzeData(ctx, data, source)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "analysis failed")
		}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "text or data is required")
	}

	if alerts == nil {
		alerts = []ClinicalAlert{}
	}
	return c.JSON(http.StatusOK, analyzeResponse{Alerts: alerts, AlertCount: len(alerts)})
}

// HandleGetAlert handles GET /oversight/alerts/:id.
func (h *Handler) HandleGetAlert(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid alert id")
	}

	alert, err := h.svc.GetAlert(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "alert not found")
	}
	return c.JSON(http.StatusOK, alert)
}

// HandleListAlerts handles GET /oversight/alerts with optional status and
// severity filters.
func (h *Handler) HandleListAlerts(c echo.Context) error {
	p := pagination.FromContext(c)
	filter := AlertFilter{
		Status:   c.QueryParam("status"),
		Severity: c.QueryParam("severity"),
	}

	alerts, total, err := h.svc.ListAlerts(c.Request().Context(), filter, p.Limit, p.Offset)
	if err != nil {
		if filter.Status != "" && !ValidStatuses[filter.Status] {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list alerts")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(alerts, total, p.Limit, p.Offset))
}

type reviewRequest struct {
	Status string `json:"status"`
}

// HandleReviewAlert handles PUT /oversight/alerts/:id/review.
func (h *Handler) HandleReviewAlert(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid alert id")
	}

	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !ValidStatuses[req.Status] {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be pending, reviewed, or dismissed")
	}

	ctx := c.Request().Context()
	var reviewedBy *uuid.UUID
	if uid, err := uuid.Parse(auth.UserIDFromContext(ctx)); err == nil {
		reviewedBy = &uid
	}

	alert, err := h.svc.ReviewAlert(ctx, id, req.Status, reviewedBy)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "alert not found")
	}
	return c.JSON(http.StatusOK, alert)
}
