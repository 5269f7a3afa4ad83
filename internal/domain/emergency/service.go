package emergency

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinsafe/clinsafe/internal/domain/catalog"
	"github.com/clinsafe/clinsafe/internal/platform/hipaa"
	"github.com/clinsafe/clinsafe/internal/platform/telemetry"
)

// SnapshotProvider yields the current merged catalog snapshot. Implemented by
// catalog.Service.
type SnapshotProvider interface {
	Snapshot() *catalog.Catalog
}

// DecisionAuditor records safety decisions and break-glass overrides in the
// audit trail. Implemented by hipaa.AuditLogger.
type DecisionAuditor interface {
	LogDecision(ctx context.Context, event *hipaa.DecisionEvent) error
	LogBreakGlass(ctx context.Context, event *hipaa.DecisionEvent) error
}

// Service runs emergency checks and persists the outcome. The verdict is
// computed first and is never altered by persistence, audit, or override
// handling; an override only records that a human took responsibility.
type Service struct {
	checks          CheckRepository
	catalogs        SnapshotProvider
	overrideEnabled bool
	audit           DecisionAuditor
	telemetry       *telemetry.TelemetryProvider
	logger          zerolog.Logger
}

func NewService(
	checks CheckRepository,
	catalogs SnapshotProvider,
	overrideEnabled bool,
	audit DecisionAuditor,
	tp *telemetry.TelemetryProvider,
	logger zerolog.Logger,
) *Service {
	return &Service{
		checks:          checks,
		catalogs:        catalogs,
		overrideEnabled: overrideEnabled,
		audit:           audit,
		telemetry:       tp,
		logger:          logger,
	}
}

// RunCheck executes the fast-path check, persists the run, and records the
// decision. A non-empty overrideReason on a block verdict is recorded as a
// break-glass event when overrides are enabled; it never changes the verdict.
func (s *Service) RunCheck(ctx context.Context, req *CheckRequest, actor hipaa.Actor, overrideReason string) (*Verdict, *CheckRecord, error) {
	monitor := NewMonitor(s.catalogs.Snapshot(), s.logger)
	verdict := monitor.EmergencyConflictCheck(req.Allergies, req.Medications, req.ProposedIngredients)

	overrideRecorded := s.handleOverride(ctx, &verdict, overrideReason, actor)
	record := s.persistCheck(ctx, req, &verdict, overrideRecorded, overrideReason, actor.ID)
	s.recordDecision(ctx, &verdict, actor)
	if s.telemetry != nil {
		s.telemetry.EmergencyCheckCounter(verdict.ActionRequired)
	}

	return &verdict, record, nil
}

// GetCheck returns a persisted emergency check.
func (s *Service) GetCheck(ctx context.Context, id uuid.UUID) (*CheckRecord, error) {
	return s.checks.GetCheck(ctx, id)
}

// ListChecks returns persisted emergency checks, newest first. A non-empty
// action narrows the listing to that verdict.
func (s *Service) ListChecks(ctx context.Context, action string, limit, offset int) ([]*CheckRecord, int, error) {
	if action != "" {
		return s.checks.ListChecksByAction(ctx, action, limit, offset)
	}
	return s.checks.ListChecks(ctx, limit, offset)
}

// handleOverride records a break-glass event for a block verdict when the
// caller supplied a reason and overrides are enabled. Returns whether the
// override was recorded.
func (s *Service) handleOverride(ctx context.Context, verdict *Verdict, reason string, actor hipaa.Actor) bool {
	if reason == "" || verdict.ActionRequired != ActionBlock {
		return false
	}
	if !s.overrideEnabled {
		s.logger.Warn().
			Str("actor_name", actor.Name).
			Msg("emergency override requested but overrides are disabled")
		return false
	}
	if s.audit == nil {
		return false
	}

	event := hipaa.NewEmergencyDecision(hipaa.OutcomeOverride)
	event.ActorID = actor.ID
	event.ActorName = actor.Name
	event.ActorRole = actor.Role
	event.OverrideReason = reason
	event.Detail = map[string]interface{}{
		"action_required": verdict.ActionRequired,
		"warning_count":   len(verdict.EmergencyWarnings),
	}
	if err := s.audit.LogBreakGlass(ctx, event); err != nil {
		s.logger.Error().Err(err).Msg("failed to record break-glass override")
		return false
	}
	return true
}

// persistCheck stores the run. On failure it logs and returns nil; the
// caller still gets the verdict.
func (s *Service) persistCheck(ctx context.Context, req *CheckRequest, verdict *Verdict, overrideRecorded bool, overrideReason string, checkedBy *uuid.UUID) *CheckRecord {
	record := &CheckRecord{
		IsSafe:           verdict.IsSafe,
		ActionRequired:   verdict.ActionRequired,
		WarningCount:     len(verdict.EmergencyWarnings),
		Warnings:         verdict.EmergencyWarnings,
		AllergyCount:     len(req.Allergies),
		MedicationCount:  len(req.Medications),
		IngredientCount:  len(req.ProposedIngredients),
		OverrideRecorded: overrideRecorded,
		CheckedBy:        checkedBy,
	}
	if overrideRecorded {
		record.OverrideReason = overrideReason
	}

	if err := s.checks.CreateCheck(ctx, record); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist emergency check")
		return nil
	}
	return record
}

func (s *Service) recordDecision(ctx context.Context, verdict *Verdict, actor hipaa.Actor) {
	if s.audit == nil {
		return
	}

	outcome := hipaa.OutcomeCompleted
	if verdict.ActionRequired == ActionBlock {
		outcome = hipaa.OutcomeBlocked
	}

	event := hipaa.NewEmergencyDecision(outcome)
	event.ActorID = actor.ID
	event.ActorName = actor.Name
	event.ActorRole = actor.Role
	event.SeveritySummary = verdict.ActionRequired
	event.Detail = map[string]interface{}{
		"is_safe":         verdict.IsSafe,
		"action_required": verdict.ActionRequired,
		"warning_count":   len(verdict.EmergencyWarnings),
	}

	if err := s.audit.LogDecision(ctx, event); err != nil {
		s.logger.Error().Err(err).Msg("failed to audit emergency check")
	}
}
