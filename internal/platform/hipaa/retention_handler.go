package hipaa

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// RetentionCounts groups record counts by retention state.
type RetentionCounts struct {
	Active     int `json:"active"`
	Archivable int `json:"archivable"`
	Purgeable  int `json:"purgeable"`
}

// RecordCounter reports how many persisted records of a type fall into each
// retention state. Implemented by RecordCounterPG; tests substitute a fake.
type RecordCounter interface {
	CountByState(ctx context.Context, policy RetentionPolicy) (RetentionCounts, error)
}

// retentionTables whitelists the table behind each record type. Counting
// interpolates the table name into SQL, so only mapped types are queried.
var retentionTables = map[string]string{
	"decision_audit":  "decision_audit",
	"conflict_check":  "conflict_check",
	"emergency_check": "emergency_check",
	"clinical_alert":  "clinical_alert",
}

// RecordCounterPG counts records per retention state straight from the
// database using the created_at column every engine table carries.
type RecordCounterPG struct {
	pool *pgxpool.Pool
}

// NewRecordCounterPG creates a counter backed by the given pool.
func NewRecordCounterPG(pool *pgxpool.Pool) *RecordCounterPG {
	return &RecordCounterPG{pool: pool}
}

// CountByState implements RecordCounter. Rows older than the purge cutoff are
// purgeable, rows older than the archive cutoff but not purgeable are
// archivable, and the rest are active. A disabled threshold (0 days)
// contributes no rows to its bucket.
func (r *RecordCounterPG) CountByState(ctx context.Context, policy RetentionPolicy) (RetentionCounts, error) {
	table, ok := retentionTables[policy.RecordType]
	if !ok {
		return RetentionCounts{}, fmt.Errorf("no table mapped for record type %q", policy.RecordType)
	}

	now := time.Now().UTC()
	var archiveCutoff, purgeCutoff time.Time
	if policy.ArchiveAfter > 0 {
		archiveCutoff = now.AddDate(0, 0, -policy.ArchiveAfter)
	}
	if policy.PurgeAfter > 0 {
		purgeCutoff = now.AddDate(0, 0, -policy.PurgeAfter)
	}

	query := fmt.Sprintf(`SELECT
    COUNT(*) FILTER (WHERE created_at > $1 AND created_at > $2),
    COUNT(*) FILTER (WHERE created_at <= $1 AND created_at > $2),
    COUNT(*) FILTER (WHERE created_at <= $2)
FROM %s`, table)

	var counts RetentionCounts
	err := r.pool.QueryRow(ctx, query, archiveCutoff, purgeCutoff).Scan(&counts.Active, &counts.Archivable, &counts.Purgeable)
	if err != nil {
		return RetentionCounts{}, fmt.Errorf("count %s retention states: %w", table, err)
	}
	return counts, nil
}

// RetentionHandler serves the retention inspection endpoints.
type RetentionHandler struct {
	svc     *RetentionService
	counter RecordCounter
}

// NewRetentionHandler creates a handler over the given service and counter.
func NewRetentionHandler(svc *RetentionService, counter RecordCounter) *RetentionHandler {
	return &RetentionHandler{svc: svc, counter: counter}
}

// RegisterRoutes registers retention routes on the provided Echo group. The
// caller is expected to pass a group gated to auditor roles.
func (h *RetentionHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/audit/retention/policies", h.HandlePolicies)
	g.GET("/audit/retention/policies/:recordType", h.HandleGetPolicy)
	g.GET("/audit/retention/status", h.HandleStatus)
}

// RetentionPolicyList is the response body for the policy list endpoint.
type RetentionPolicyList struct {
	Policies []RetentionPolicy `json:"policies"`
	Total    int               `json:"total"`
}

// HandlePolicies handles GET /api/v1/audit/retention/policies.
func (h *RetentionHandler) HandlePolicies(c echo.Context) error {
	all := h.svc.GetAllPolicies()
	return c.JSON(http.StatusOK, RetentionPolicyList{Policies: all, Total: len(all)})
}

// HandleGetPolicy handles GET /api/v1/audit/retention/policies/:recordType.
func (h *RetentionHandler) HandleGetPolicy(c echo.Context) error {
	recordType := c.Param("recordType")
	if policy := h.svc.GetPolicy(recordType); policy != nil {
		return c.JSON(http.StatusOK, policy)
	}
	return c.JSON(http.StatusNotFound, map[string]string{"error": "no retention policy for record type " + recordType})
}

// RetentionReport pairs one record type's policy with its live per-state
// counts.
type RetentionReport struct {
	RecordType string          `json:"record_type"`
	Counts     RetentionCounts `json:"counts"`
	Policy     RetentionPolicy `json:"policy"`
}

// RetentionStatusResponse is the report across every configured record type.
type RetentionStatusResponse struct {
	Reports []RetentionReport `json:"reports"`
	AsOf    time.Time         `json:"as_of"`
}

// HandleStatus handles GET /api/v1/audit/retention/status. Counts come
// straight from the engine's tables, so the report reflects what a purge or
// archive run would touch right now.
func (h *RetentionHandler) HandleStatus(c echo.Context) error {
	ctx := c.Request().Context()
	all := h.svc.GetAllPolicies()

	reports := make([]RetentionReport, 0, len(all))
	for _, p := range all {
		counts, err := h.counter.CountByState(ctx, p)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		reports = append(reports, RetentionReport{RecordType: p.RecordType, Counts: counts, Policy: p})
	}

	return c.JSON(http.StatusOK, RetentionStatusResponse{Reports: reports, AsOf: time.Now().UTC()})
}
