package conflict

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinsafe/clinsafe/internal/domain/catalog"
)

// Conflict types.
const (
	TypeMedicationInteraction  = "medication_interaction"
	TypeAllergyConflict        = "allergy_conflict"
	TypeConditionCompatibility = "condition_compatibility"
)

// Conflict severity levels.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Allergy severity levels accepted on input records.
const (
	AllergySeverityMild         = "mild"
	AllergySeverityModerate     = "moderate"
	AllergySeveritySevere       = "severe"
	AllergySeverityAnaphylactic = "anaphylactic"
)

// FailureConflictCount is the sentinel conflict count reported when the
// detector itself failed. Callers must gate on it exactly as they would on
// detected conflicts.
const FailureConflictCount = -1

// DefaultReviewConflictThreshold is the conflict count that forces clinical
// review when no higher-severity conflict already did.
const DefaultReviewConflictThreshold = 3

// interactionSeverityMap maps catalog interaction severities onto conflict
// severities.
var interactionSeverityMap = map[string]string{
	catalog.SeverityMinor:           SeverityLow,
	catalog.SeverityModerate:        SeverityMedium,
	catalog.SeverityMajor:           SeverityHigh,
	catalog.SeverityContraindicated: SeverityCritical,
}

// allergySeverityMap maps allergy record severities onto conflict severities.
var allergySeverityMap = map[string]string{
	AllergySeverityMild:         SeverityLow,
	AllergySeverityModerate:     SeverityMedium,
	AllergySeveritySevere:       SeverityHigh,
	AllergySeverityAnaphylactic: SeverityCritical,
}

// Allergy is a known sensitivity supplied by the caller's health-profile
// layer. Inactive allergies are expected to be filtered out before invocation.
type Allergy struct {
	ID       string `json:"id"`
	Allergen string `json:"allergen"`
	Severity string `json:"severity"`
}

// Medication is a prescribed drug record. Only medications with IsActive set
// participate in detection.
type Medication struct {
	ID          string `json:"id"`
	GenericName string `json:"generic_name"`
	Indication  string `json:"indication,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// ProposedChanges lets a caller pre-check a hypothetical edit. A non-nil list
// replaces the corresponding current list for that call only; it is never
// merged.
type ProposedChanges struct {
	Allergies   *[]Allergy    `json:"allergies,omitempty"`
	Medications *[]Medication `json:"medications,omitempty"`
}

// Conflict is one detected safety conflict. Immutable once returned; the
// caller decides whether to persist, display, or log it.
type Conflict struct {
	ID                string                 `json:"id"`
	Type              string                 `json:"type"`
	Severity          string                 `json:"severity"`
	Description       string                 `json:"description"`
	AffectedSubjectID string                 `json:"affected_subject_id"`
	ConflictingData   map[string]interface{} `json:"conflicting_data,omitempty"`
	DetectedAt        time.Time              `json:"detected_at"`
	Resolved          bool                   `json:"resolved"`
}

// ChecksPerformed records which detection passes actually ran, so "not
// checked" is never mistaken for "checked and clean".
type ChecksPerformed struct {
	Medication bool `json:"medication"`
	Allergy    bool `json:"allergy"`
	Condition  bool `json:"condition"`
}

// DetectionResult aggregates one detection run. Value object, recomputed per
// call.
type DetectionResult struct {
	HasConflicts           bool            `json:"has_conflicts"`
	ConflictCount          int             `json:"conflict_count"`
	Conflicts              []Conflict      `json:"conflicts"`
	CriticalConflicts      []Conflict      `json:"critical_conflicts"`
	Warnings               []Conflict      `json:"warnings"`
	SafetyScore            int             `json:"safety_score"`
	RequiresClinicalReview bool            `json:"requires_clinical_review"`
	AutoResolutionApplied  bool            `json:"auto_resolution_applied"`
	ChecksPerformed        ChecksPerformed `json:"checks_performed"`
	DetectorFailure        bool            `json:"detector_failure,omitempty"`
}

// DetectionConfig gates the detection passes. Supplied explicitly by the
// caller; the detector never reads the environment.
type DetectionConfig struct {
	EnableMedicationInteractions bool
	EnableAllergyConflicts       bool
	EnableConditionCompatibility bool
	AutoResolveMinorConflicts    bool
	ClinicalOversightRequired    bool
	EmergencyOverrideEnabled     bool
	ReviewConflictThreshold      int
}

// DefaultDetectionConfig enables every pass, requires oversight, and leaves
// auto-resolution and emergency override off.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		EnableMedicationInteractions: true,
		EnableAllergyConflicts:       true,
		EnableConditionCompatibility: true,
		AutoResolveMinorConflicts:    false,
		ClinicalOversightRequired:    true,
		EmergencyOverrideEnabled:     false,
		ReviewConflictThreshold:      DefaultReviewConflictThreshold,
	}
}

// CheckRequest is the payload for a detection run.
type CheckRequest struct {
	SubjectID       string           `json:"subject_id"`
	Allergies       []Allergy        `json:"allergies"`
	Medications     []Medication     `json:"medications"`
	ProposedChanges *ProposedChanges `json:"proposed_changes,omitempty"`
}

// CheckRecord maps to the conflict_check table. One row per detection run.
type CheckRecord struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	SubjectID              string     `db:"subject_id" json:"subject_id"`
	ConflictCount          int        `db:"conflict_count" json:"conflict_count"`
	SafetyScore            int        `db:"safety_score" json:"safety_score"`
	HasConflicts           bool       `db:"has_conflicts" json:"has_conflicts"`
	RequiresClinicalReview bool       `db:"requires_clinical_review" json:"requires_clinical_review"`
	AutoResolutionApplied  bool       `db:"auto_resolution_applied" json:"auto_resolution_applied"`
	DetectorFailure        bool       `db:"detector_failure" json:"detector_failure"`
	ChecksMedication       bool       `db:"checks_medication" json:"checks_medication"`
	ChecksAllergy          bool       `db:"checks_allergy" json:"checks_allergy"`
	ChecksCondition        bool       `db:"checks_condition" json:"checks_condition"`
	CheckedBy              *uuid.UUID `db:"checked_by" json:"checked_by,omitempty"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
}

// StoredConflict maps to the detected_conflict table.
type StoredConflict struct {
	ID              uuid.UUID              `db:"id" json:"id"`
	CheckID         uuid.UUID              `db:"check_id" json:"check_id"`
	Type            string                 `db:"type" json:"type"`
	Severity        string                 `db:"severity" json:"severity"`
	Description     string                 `db:"description" json:"description"`
	ConflictingData map[string]interface{} `db:"conflicting_data" json:"conflicting_data,omitempty"`
	DetectedAt      time.Time              `db:"detected_at" json:"detected_at"`
	Resolved        bool                   `db:"resolved" json:"resolved"`
	CreatedAt       time.Time              `db:"created_at" json:"created_at"`
}
