package hipaa

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Record lifecycle states.
const (
	RetentionStateActive          = "active"
	RetentionStateArchiveEligible = "archive_eligible"
	RetentionStatePurgeEligible   = "purge_eligible"
)

// Day counts used by the default schedule.
const (
	days3Years  = 1095
	days5Years  = 1825
	days6Years  = 2190
	days7Years  = 2555
	days10Years = 3650
)

// RetentionPolicy defines how long records of one type stay live, when they
// become archivable, and when they may be purged. A zero threshold disables
// that transition; PurgeAfter of zero means the type is never purged.
type RetentionPolicy struct {
	RecordType    string `json:"record_type"`
	RetentionDays int    `json:"retention_days"`
	ArchiveAfter  int    `json:"archive_after_days,omitempty"`
	PurgeAfter    int    `json:"purge_after_days,omitempty"`
	Description   string `json:"description"`
}

// boundaries resolves the policy's day offsets against a creation time.
// Disabled thresholds come back as zero times.
func (p RetentionPolicy) boundaries(createdAt time.Time) (archiveAt, purgeAt time.Time) {
	if p.ArchiveAfter > 0 {
		archiveAt = createdAt.AddDate(0, 0, p.ArchiveAfter)
	}
	if p.PurgeAfter > 0 {
		purgeAt = createdAt.AddDate(0, 0, p.PurgeAfter)
	}
	return archiveAt, purgeAt
}

// RetentionStatus reports where in its lifecycle a record stands and when it
// moves to the next state.
type RetentionStatus struct {
	State      string    `json:"state"`
	ExpiresAt  time.Time `json:"expires_at"`
	PolicyName string    `json:"policy_name"`
}

// DefaultRetentionPolicies returns the retention schedule for every record
// type the engine persists. HIPAA sets a six-year floor on audit trails.
// Check and override records are never purged: they are the evidence that a
// safety decision was made, or bypassed.
func DefaultRetentionPolicies() []RetentionPolicy {
	return []RetentionPolicy{
		{
			RecordType:    "decision_audit",
			RetentionDays: days6Years,
			ArchiveAfter:  days3Years,
			PurgeAfter:    days7Years,
			Description:   "Safety decision audit trail: HIPAA requires minimum 6-year retention for audit trails",
		},
		{
			RecordType:    "conflict_check",
			RetentionDays: days6Years,
			ArchiveAfter:  days5Years,
			PurgeAfter:    0,
			Description:   "Conflict check records: 6 years from check date; they document clinical decision support outcomes",
		},
		{
			RecordType:    "emergency_check",
			RetentionDays: days10Years,
			ArchiveAfter:  days7Years,
			PurgeAfter:    0,
			Description:   "Emergency check records: 10 years; break-glass overrides must remain demonstrable",
		},
		{
			RecordType:    "clinical_alert",
			RetentionDays: days6Years,
			ArchiveAfter:  days3Years,
			PurgeAfter:    days7Years,
			Description:   "Clinical oversight alerts: 6 years, aligned with the audit trail they corroborate",
		},
	}
}

// RetentionService answers lifecycle questions about persisted records from
// a fixed set of per-type policies.
type RetentionService struct {
	mu       sync.RWMutex
	policies map[string]RetentionPolicy
	logger   zerolog.Logger
}

// NewRetentionService indexes the given policies by record type.
func NewRetentionService(policies []RetentionPolicy, logger zerolog.Logger) *RetentionService {
	byType := make(map[string]RetentionPolicy, len(policies))
	for _, p := range policies {
		byType[p.RecordType] = p
	}
	return &RetentionService{
		policies: byType,
		logger:   logger.With().Str("component", "retention-service").Logger(),
	}
}

// GetPolicy returns the policy for a record type, or nil when none is
// configured.
func (s *RetentionService) GetPolicy(recordType string) *RetentionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.policies[recordType]; ok {
		return &p
	}
	return nil
}

// GetAllPolicies returns every configured policy, sorted by record type.
func (s *RetentionService) GetAllPolicies() []RetentionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]RetentionPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		all = append(all, p)
	}
	slices.SortFunc(all, func(a, b RetentionPolicy) int {
		return strings.Compare(a.RecordType, b.RecordType)
	})
	return all
}

// CheckRetention classifies a record created at the given time against its
// type's policy. Unknown types are reported active with no expiry rather
// than flagged for removal.
func (s *RetentionService) CheckRetention(recordType string, createdAt time.Time) RetentionStatus {
	policy := s.GetPolicy(recordType)
	if policy == nil {
		return RetentionStatus{State: RetentionStateActive, PolicyName: "unknown"}
	}
	return classify(*policy, createdAt, time.Now().UTC())
}

// classify is the clock-independent core of CheckRetention. ExpiresAt is the
// moment the reported state ends: the archive threshold while active, the
// purge threshold once archivable, and for states without a later threshold,
// the end of the retention period.
func classify(p RetentionPolicy, createdAt, now time.Time) RetentionStatus {
	archiveAt, purgeAt := p.boundaries(createdAt)
	status := RetentionStatus{PolicyName: p.RecordType}

	switch {
	case !purgeAt.IsZero() && !now.Before(purgeAt):
		status.State = RetentionStatePurgeEligible
		status.ExpiresAt = purgeAt
	case !archiveAt.IsZero() && !now.Before(archiveAt):
		status.State = RetentionStateArchiveEligible
		status.ExpiresAt = purgeAt
		if purgeAt.IsZero() {
			status.ExpiresAt = createdAt.AddDate(0, 0, p.RetentionDays)
		}
	default:
		status.State = RetentionStateActive
		status.ExpiresAt = archiveAt
		if archiveAt.IsZero() {
			status.ExpiresAt = createdAt.AddDate(0, 0, p.RetentionDays)
		}
	}
	return status
}
