package conflict

import (
	"context"
	"fmt"

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

// DecisionAuditor records safety decisions in the audit trail. Implemented by
// hipaa.AuditLogger.
type DecisionAuditor interface {
	LogDecision(ctx context.Context, event *hipaa.DecisionEvent) error
}

// Service runs conflict detection and persists the outcome. Persistence,
// audit and metric failures are logged but never change the returned verdict.
type Service struct {
	checks    CheckRepository
	catalogs  SnapshotProvider
	cfg       DetectionConfig
	audit     DecisionAuditor
	telemetry *telemetry.TelemetryProvider
	logger    zerolog.Logger
}

func NewService(
	checks CheckRepository,
	catalogs SnapshotProvider,
	cfg DetectionConfig,
	audit DecisionAuditor,
	tp *telemetry.TelemetryProvider,
	logger zerolog.Logger,
) *Service {
	return &Service{
		checks:    checks,
		catalogs:  catalogs,
		cfg:       cfg,
		audit:     audit,
		telemetry: tp,
		logger:    logger,
	}
}

// RunCheck validates the request, runs detection against the current catalog
// snapshot, persists the run, and records the decision in the audit trail.
func (s *Service) RunCheck(ctx context.Context, req *CheckRequest, actor hipaa.Actor) (*DetectionResult, *CheckRecord, error) {
	if req.SubjectID == "" {
		return nil, nil, fmt.Errorf("subject_id is required")
	}

	detector := NewDetector(s.catalogs.Snapshot(), s.cfg, s.logger)
	result := detector.DetectConflicts(req.SubjectID, req.Allergies, req.Medications, req.ProposedChanges)

	record := s.persistCheck(ctx, req.SubjectID, &result, actor.ID)
	s.recordDecision(ctx, req.SubjectID, &result, actor)
	s.recordMetrics(&result)

	return &result, record, nil
}

// GetCheck returns a persisted detection run with its stored conflicts.
func (s *Service) GetCheck(ctx context.Context, id uuid.UUID) (*CheckRecord, []*StoredConflict, error) {
	return s.checks.GetCheck(ctx, id)
}

// ListChecks returns persisted detection runs, newest first.
func (s *Service) ListChecks(ctx context.Context, limit, offset int) ([]*CheckRecord, int, error) {
	return s.checks.ListChecks(ctx, limit, offset)
}

// ListChecksBySubject returns persisted detection runs for one subject,
// newest first.
func (s *Service) ListChecksBySubject(ctx context.Context, subjectID string, limit, offset int) ([]*CheckRecord, int, error) {
	if subjectID == "" {
		return nil, 0, fmt.Errorf("subject_id is required")
	}
	return s.checks.ListChecksBySubject(ctx, subjectID, limit, offset)
}

// persistCheck stores the run. On failure it logs and returns nil; the
// caller still gets the detection result.
func (s *Service) persistCheck(ctx context.Context, subjectID string, result *DetectionResult, checkedBy *uuid.UUID) *CheckRecord {
	record := &CheckRecord{
		SubjectID:              subjectID,
		ConflictCount:          result.ConflictCount,
		SafetyScore:            result.SafetyScore,
		HasConflicts:           result.HasConflicts,
		RequiresClinicalReview: result.RequiresClinicalReview,
		AutoResolutionApplied:  result.AutoResolutionApplied,
		DetectorFailure:        result.DetectorFailure,
		ChecksMedication:       result.ChecksPerformed.Medication,
		ChecksAllergy:          result.ChecksPerformed.Allergy,
		ChecksCondition:        result.ChecksPerformed.Condition,
		CheckedBy:              checkedBy,
	}

	if err := s.checks.CreateCheck(ctx, record, result.Conflicts); err != nil {
		s.logger.Error().Err(err).
			Str("subject_id", subjectID).
			Msg("failed to persist conflict check")
		return nil
	}
	return record
}

func (s *Service) recordDecision(ctx context.Context, subjectID string, result *DetectionResult, actor hipaa.Actor) {
	if s.audit == nil {
		return
	}

	outcome := hipaa.OutcomeCompleted
	if result.DetectorFailure {
		outcome = hipaa.OutcomeFailed
	} else if len(result.CriticalConflicts) > 0 {
		outcome = hipaa.OutcomeBlocked
	}

	event := hipaa.NewConflictDecision(subjectID, outcome, severitySummary(result))
	event.ActorID = actor.ID
	event.ActorName = actor.Name
	event.ActorRole = actor.Role
	event.Detail = map[string]interface{}{
		"conflict_count":           result.ConflictCount,
		"safety_score":             result.SafetyScore,
		"requires_clinical_review": result.RequiresClinicalReview,
	}

	if err := s.audit.LogDecision(ctx, event); err != nil {
		s.logger.Error().Err(err).
			Str("subject_id", subjectID).
			Msg("failed to audit conflict check")
	}
}

func (s *Service) recordMetrics(result *DetectionResult) {
	if s.telemetry == nil {
		return
	}

	switch {
	case result.DetectorFailure:
		s.telemetry.ConflictCheckCounter("failed")
		s.telemetry.DetectorFailureCounter()
	case len(result.CriticalConflicts) > 0:
		s.telemetry.ConflictCheckCounter("blocked")
	default:
		s.telemetry.ConflictCheckCounter("completed")
	}

	for _, c := range result.Conflicts {
		s.telemetry.ConflictDetectedCounter(c.Type)
	}
}

var severityRank = map[string]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// severitySummary reports the highest severity in the run, "failure" when the
// detector failed, or "none" for a clean run.
func severitySummary(result *DetectionResult) string {
	if result.DetectorFailure {
		return "failure"
	}
	highest := ""
	for _, c := range result.Conflicts {
		if severityRank[c.Severity] > severityRank[highest] {
			highest = c.Severity
		}
	}
	if highest == "" {
		return "none"
	}
	return highest
}
