package conflict

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinsafe/clinsafe/internal/platform/auth"
	"github.com/clinsafe/clinsafe/internal/platform/hipaa"
	"github.com/clinsafe/clinsafe/pkg/pagination"
)

// Handler exposes conflict detection over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers conflict routes on the given API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician", "nurse", "pharmacist"))

	g.POST("/conflicts/check", h.HandleCheck)
	g.GET("/conflicts/checks", h.HandleListChecks)
	g.GET("/conflicts/checks/:id", h.HandleGetCheck)
}

// checkResponse is the detection result plus the id of the persisted run.
type checkResponse struct {
	*DetectionResult
	CheckID string `json:"check_id,omitempty"`
}

// blockedResponse is returned with a 403 when a run must not proceed.
type blockedResponse struct {
	Error           string           `json:"error"`
	Code            string           `json:"code"`
	Message         string           `json:"message"`
	ConflictSummary *DetectionResult `json:"conflict_summary"`
	CheckID         string           `json:"check_id,omitempty"`
}

// HandleCheck handles POST /conflicts/check. Critical conflicts and detector
// failures return 403 with the full result attached; anything else returns
// 200 with the result for the caller to act on.
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

	result, record, err := h.svc.RunCheck(ctx, &req, actor)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	checkID := ""
	if record != nil {
		checkID = record.ID.String()
	}

	if len(result.CriticalConflicts) > 0 || result.DetectorFailure {
		message := "Critical medication conflicts detected. Clinical review is required before proceeding."
		if result.DetectorFailure {
			message = "Conflict detection did not complete. Clinical review is required before proceeding."
		}
		return c.JSON(http.StatusForbidden, blockedResponse{
			Error:           "clinical_conflict_detected",
			Code:            "CLINICAL_CONFLICT",
			Message:         message,
			ConflictSummary: result,
			CheckID:         checkID,
		})
	}

	return c.JSON(http.StatusOK, checkResponse{DetectionResult: result, CheckID: checkID})
}

// HandleGetCheck handles GET /conflicts/checks/:id.
func (h *Handler) HandleGetCheck(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid check id")
	}

	check, conflicts, err := h.svc.GetCheck(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "check not found")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"check":     check,
		"conflicts": conflicts,
	})
}

// HandleListChecks handles GET /conflicts/checks. An optional subject_id
// query parameter narrows the listing to one subject.
func (h *Handler) HandleListChecks(c echo.Context) error {
	p := pagination.FromContext(c)
	ctx := c.Request().Context()

	var (
		checks []*CheckRecord
		total  int
		err    error
	)
	if subjectID := c.QueryParam("subject_id"); subjectID != "" {
		checks, total, err = h.svc.ListChecksBySubject(ctx, subjectID, p.Limit, p.Offset)
	} else {
		checks, total, err = h.svc.ListChecks(ctx, p.Limit, p.Offset)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list checks")
	}

	return c.JSON(http.StatusOK, pagination.NewResponse(checks, total, p.Limit, p.Offset))
}
