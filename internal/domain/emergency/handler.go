package emergency

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinsafe/clinsafe/internal/platform/auth"
	"github.com/clinsafe/clinsafe/internal/platform/hipaa"
	"github.com/clinsafe/clinsafe/pkg/pagination"
)

// OverrideHeader carries a break-glass reason. Presenting it on a block
// verdict records the override when the server allows overrides.
const OverrideHeader = "X-Emergency-Override"

const emergencyNotice = "If this is a medical emergency, call 911."

// Handler exposes the emergency safety monitor over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers emergency routes on the given API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician", "nurse", "pharmacist"))

	g.POST("/emergency/check", h.HandleCheck)
	g.GET("/emergency/checks", h.HandleListChecks)
	g.GET("/emergency/checks/:id", h.HandleGetCheck)
}

// checkResponse is the verdict plus shell fields the caller needs.
type checkResponse struct {
	*Verdict
	OverrideRecorded bool   `json:"override_recorded,omitempty"`
	CheckID          string `json:"check_id,omitempty"`
}

// blockedResponse is returned with a 403 when consumption must not proceed.
type blockedResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Verdict *Verdict `json:"verdict"`
	CheckID string   `json:"check_id,omitempty"`
}

// HandleCheck handles POST /emergency/check. A block verdict returns 403
// with the emergency-services notice, unless a break-glass override was
// recorded, in which case the unaltered verdict is returned with 200 and
// override_recorded set. Warn and proceed verdicts return 200.
func (h *Handler) HandleCheck(c echo.Context) error {
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	actor := hipaa.ActorFromRequest(
		auth.UserIDFromContext(ctx),
		auth.UserNameFromContext(ctx),
		auth.RolesFromContext(ctx),
	)
	overrideReason := c.Request().Header.Get(OverrideHeader)

	verdict, record, err := h.svc.RunCheck(ctx, &req, actor, overrideReason)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	checkID := ""
	overrideRecorded := false
	if record != nil {
		checkID = record.ID.String()
		overrideRecorded = record.OverrideRecorded
	}

	if verdict.ActionRequired == ActionBlock && !overrideRecorded {
		return c.JSON(http.StatusForbidden, blockedResponse{
			Error:   "emergency_conflict_detected",
			Code:    "EMERGENCY_BLOCK",
			Message: "These ingredients conflict with a life-threatening allergy. Do not proceed. " + emergencyNotice,
			Verdict: verdict,
			CheckID: checkID,
		})
	}

	return c.JSON(http.StatusOK, checkResponse{
		Verdict:          verdict,
		OverrideRecorded: overrideRecorded,
		CheckID:          checkID,
	})
}

// HandleGetCheck handles GET /emergency/checks/:id.
func (h *Handler) HandleGetCheck(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid check id")
	}

	check, err := h.svc.GetCheck(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "check not found")
	}

	return c.JSON(http.StatusOK, check)
}

// HandleListChecks handles GET /emergency/checks. An optional action query
// parameter narrows the listing to one verdict.
func (h *Handler) HandleListChecks(c echo.Context) error {
	p := pagination.FromContext(c)

	checks, total, err := h.svc.ListChecks(c.Request().Context(), c.QueryParam("action"), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list checks")
	}

	return c.JSON(http.StatusOK, pagination.NewResponse(checks, total, p.Limit, p.Offset))
}
