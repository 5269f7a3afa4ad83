package hipaa

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinsafe/clinsafe/internal/platform/db"
)

// Decision types recorded in the decision_audit table.
const (
	DecisionConflictCheck      = "conflict_check"
	DecisionEmergencyCheck     = "emergency_check"
	DecisionContentBlock       = "content_block"
	DecisionBreakGlassOverride = "break_glass_override"
)

// Decision outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeBlocked   = "blocked"
	OutcomeFailed    = "failed"
	OutcomeOverride  = "override_recorded"
)

// Actor identifies the authenticated user a decision is attributed to.
type Actor struct {
	ID   *uuid.UUID `json:"id"`
	Name string     `json:"name"`
	Role string     `json:"role"`
}

// ActorFromRequest builds an Actor from auth context values. Non-UUID
// subjects are kept out of actor_id and surfaced through actor_name instead.
func ActorFromRequest(id, name string, roles []string) Actor {
	actor := Actor{Name: name}
	if uid, err := uuid.Parse(id); err == nil {
		actor.ID = &uid
	}
	if actor.Name == "" {
		actor.Name = id
	}
	if len(roles) > 0 {
		actor.Role = roles[0]
	}
	return actor
}

// DecisionEvent is one safety decision written to the decision_audit table.
// The table is append-only; rows are never updated or deleted by the engine.
type DecisionEvent struct {
	ID              uuid.UUID              `json:"id"`
	DecisionType    string                 `json:"decision_type"`
	SubjectID       string                 `json:"subject_id"`
	ActorID         *uuid.UUID             `json:"actor_id"`
	ActorName       string                 `json:"actor_name"`
	ActorRole       string                 `json:"actor_role"`
	Outcome         string                 `json:"outcome"`
	SeveritySummary string                 `json:"severity_summary"`
	Detail          map[string]interface{} `json:"detail"`
	RequestID       string                 `json:"request_id"`
	OverrideReason  string                 `json:"override_reason"`
	Recorded        time.Time              `json:"recorded"`
	CreatedAt       time.Time              `json:"created_at"`
}

// AuditLogger writes safety decisions to the database.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewAuditLogger creates an AuditLogger backed by the given connection pool.
func NewAuditLogger(pool *pgxpool.Pool, logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{pool: pool, logger: logger}
}

// LogDecision writes a DecisionEvent to the decision_audit table. It uses the
// request-scoped connection from context when available, falling back to
// pool.Acquire.
func (a *AuditLogger) LogDecision(ctx context.Context, event *DecisionEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Recorded.IsZero() {
		event.Recorded = time.Now().UTC()
	}

	const query = `
		INSERT INTO decision_audit (
			id, decision_type, subject_id, actor_id, actor_name, actor_role,
			outcome, severity_summary, detail, request_id, override_reason, recorded
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
		) RETURNING created_at`

	args := []any{
		event.ID, event.DecisionType, event.SubjectID, event.ActorID, event.ActorName, event.ActorRole,
		event.Outcome, event.SeveritySummary, event.Detail, event.RequestID, event.OverrideReason, event.Recorded,
	}

	conn := db.ConnFromContext(ctx)
	if conn != nil {
		return conn.QueryRow(ctx, query, args...).Scan(&event.CreatedAt)
	}

	poolConn, err := a.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("decision audit: acquire connection: %w", err)
	}
	defer poolConn.Release()

	return poolConn.QueryRow(ctx, query, args...).Scan(&event.CreatedAt)
}

// LogBreakGlass records an emergency override (break-the-glass) event. The
// decision type and outcome are forced so an override can never be filed as
// an ordinary check, and the event is also surfaced in the engine log at
// warn level.
func (a *AuditLogger) LogBreakGlass(ctx context.Context, event *DecisionEvent) error {
	event.DecisionType = DecisionBreakGlassOverride
	event.Outcome = OutcomeOverride

	a.logger.Warn().
		Str("actor_name", event.ActorName).
		Str("actor_role", event.ActorRole).
		Str("reason", event.OverrideReason).
		Str("request_id", event.RequestID).
		Msg("break-glass override recorded")

	if err := a.LogDecision(ctx, event); err != nil {
		return fmt.Errorf("break-glass audit: %w", err)
	}
	return nil
}

// NewConflictDecision creates a DecisionEvent for a conflict detection run.
func NewConflictDecision(subjectID, outcome, severitySummary string) *DecisionEvent {
	return &DecisionEvent{
		DecisionType:    DecisionConflictCheck,
		SubjectID:       subjectID,
		Outcome:         outcome,
		SeveritySummary: severitySummary,
		Recorded:        time.Now().UTC(),
	}
}

// NewEmergencyDecision creates a DecisionEvent for an emergency check. The
// outcome carries the verdict action (block, warn or proceed).
func NewEmergencyDecision(outcome string) *DecisionEvent {
	return &DecisionEvent{
		DecisionType: DecisionEmergencyCheck,
		Outcome:      outcome,
		Recorded:     time.Now().UTC(),
	}
}

// NewContentBlockDecision creates a DecisionEvent for content rejected by the
// oversight gate.
func NewContentBlockDecision(severity, alertType string) *DecisionEvent {
	return &DecisionEvent{
		DecisionType:    DecisionContentBlock,
		Outcome:         OutcomeBlocked,
		SeveritySummary: severity,
		Detail:          map[string]interface{}{"alert_type": alertType},
		Recorded:        time.Now().UTC(),
	}
}
