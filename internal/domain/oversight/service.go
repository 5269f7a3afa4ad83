package oversight

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinsafe/clinsafe/internal/platform/hipaa"
	"github.com/clinsafe/clinsafe/internal/platform/telemetry"
)

// DecisionAuditor records content-block decisions in the audit trail.
// Implemented by hipaa.AuditLogger.
type DecisionAuditor interface {
	LogDecision(ctx context.Context, event *hipaa.DecisionEvent) error
}

// Service scans content and keeps reviewable alerts. Classification is pure;
// persistence and audit failures are logged and never change what the
// scanner reported.
type Service struct {
	scanner   *Scanner
	alerts    AlertRepository
	audit     DecisionAuditor
	telemetry *telemetry.TelemetryProvider
	logger    zerolog.Logger
}

func NewService(
	alerts AlertRepository,
	audit DecisionAuditor,
	tp *telemetry.TelemetryProvider,
	logger zerolog.Logger,
) *Service {
	return &Service{
		scanner:   NewScanner(logger),
		alerts:    alerts,
		audit:     audit,
		telemetry: tp,
		logger:    logger,
	}
}

// Scanner exposes the underlying scanner for callers that only classify.
func (s *Service) Scanner() *Scanner {
	return s.scanner
}

// AnalyzeText scans one text. Alerts that require review are persisted with
// the given source label; the classification is returned either way.
func (s *Service) AnalyzeText(ctx context.Context, text, source string) (*ClinicalAlert, *StoredAlert, error) {
	alert := s.scanner.Analyze(text)
	if alert == nil {
		return nil, nil, nil
	}
	s.countEvent("alert_raised")
	stored := s.persistReviewable(ctx, *alert, source)
	return alert, stored, nil
}

// AnalyzeData scans decoded JSON. Every alert that requires review is
// persisted with the given source label.
func (s *Service) AnalyzeData(ctx context.Context, data interface{}, source string) ([]ClinicalAlert, []*StoredAlert, error) {
	alerts := s.scanner.AnalyzeStructured(data)

	var stored []*StoredAlert
	for _, alert := range alerts {
		s.countEvent("alert_raised")
		if rec := s.persistReviewable(ctx, alert, source); rec != nil {
			stored = append(stored, rec)
		}
	}
	return alerts, stored, nil
}

// GetAlert returns a persisted alert.
func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (*StoredAlert, error) {
	return s.alerts.GetAlert(ctx, id)
}

// ListAlerts returns persisted alerts, newest first.
func (s *Service) ListAlerts(ctx context.Context, filter AlertFilter, limit, offset int) ([]*StoredAlert, int, error) {
	if filter.Status != "" && !ValidStatuses[filter.Status] {
		return nil, 0, fmt.Errorf("invalid status %q", filter.Status)
	}
	return s.alerts.ListAlerts(ctx, filter, limit, offset)
}

// ReviewAlert moves an alert through the review workflow. Moving back to
// pending clears the reviewer.
func (s *Service) ReviewAlert(ctx context.Context, id uuid.UUID, status string, reviewedBy *uuid.UUID) (*StoredAlert, error) {
	if !ValidStatuses[status] {
		return nil, fmt.Errorf("invalid status %q", status)
	}

	alert, err := s.alerts.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	alert.Status = status
	if status == StatusPending {
		alert.ReviewedBy = nil
		alert.ReviewedAt = nil
	} else {
		now := time.Now().UTC()
		alert.ReviewedBy = reviewedBy
		alert.ReviewedAt = &now
	}

	if err := s.alerts.UpdateReview(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// RecordBlock persists an auto-blocked alert and writes the content-block
// decision to the audit trail. Called by the gate middleware after it has
// already rejected the request; failures here are logged only.
func (s *Service) RecordBlock(ctx context.Context, alert ClinicalAlert, source string, actor hipaa.Actor) *StoredAlert {
	s.countEvent("blocked")
	stored := s.persistReviewable(ctx, alert, source)

	if s.audit != nil {
		event := hipaa.NewContentBlockDecision(alert.Severity, alert.Type)
		event.ActorID = actor.ID
		event.ActorName = actor.Name
		event.ActorRole = actor.Role
		if err := s.audit.LogDecision(ctx, event); err != nil {
			s.logger.Error().Err(err).Msg("failed to audit content block")
		}
	}
	return stored
}

// RecordDisclaimer counts an outbound payload wrapped with a disclaimer.
func (s *Service) RecordDisclaimer() {
	s.countEvent("disclaimer_added")
}

// persistReviewable stores alerts that require review. On failure it logs
// and returns nil; classification is unaffected.
func (s *Service) persistReviewable(ctx context.Context, alert ClinicalAlert, source string) *StoredAlert {
	if !alert.RequiresReview || s.alerts == nil {
		return nil
	}

	stored := &StoredAlert{
		Severity:         alert.Severity,
		AlertType:        alert.Type,
		DetectedPatterns: alert.DetectedPatterns,
		ContentSnippet:   alert.ContentSnippet,
		ConfidenceScore:  alert.ConfidenceScore,
		RequiresReview:   alert.RequiresReview,
		AutoBlock:        alert.AutoBlock,
		Source:           source,
		Status:           StatusPending,
	}
	if err := s.alerts.CreateAlert(ctx, stored); err != nil {
		s.logger.Error().Err(err).
			Str("severity", alert.Severity).
			Msg("failed to persist clinical alert")
		return nil
	}
	return stored
}

func (s *Service) countEvent(event string) {
	if s.telemetry != nil {
		s.telemetry.OversightEventCounter(event)
	}
}
