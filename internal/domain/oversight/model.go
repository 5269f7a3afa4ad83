package oversight

import (
	"time"

	"github.com/google/uuid"
)

// Alert severities, ordered. Severity only ever escalates while scanning a
// single text.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

var severityRank = map[string]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Alert types, named for the dominant pattern family.
const (
	TypeMedicalAdvice           = "MEDICAL_ADVICE"
	TypeDiagnosticStatement     = "DIAGNOSTIC_STATEMENT"
	TypeTreatmentRecommendation = "TREATMENT_RECOMMENDATION"
	TypeEmergencyAdvice         = "EMERGENCY_ADVICE"
	TypeClinicalTerminology     = "CLINICAL_TERMINOLOGY"
)

// Review workflow states for persisted alerts.
const (
	StatusPending   = "pending"
	StatusReviewed  = "reviewed"
	StatusDismissed = "dismissed"
)

// ValidStatuses lists the accepted review states.
var ValidStatuses = map[string]bool{
	StatusPending:   true,
	StatusReviewed:  true,
	StatusDismissed: true,
}

// ClinicalAlert is the scanner's classification of one piece of text. It is
// ephemeral; the shell persists MEDIUM+ alerts as StoredAlert rows.
type ClinicalAlert struct {
	Severity         string   `json:"severity"`
	Type             string   `json:"type"`
	DetectedPatterns []string `json:"detected_patterns"`
	ContentSnippet   string   `json:"content_snippet"`
	ConfidenceScore  float64  `json:"confidence_score"`
	RequiresReview   bool     `json:"requires_review"`
	AutoBlock        bool     `json:"auto_block"`
}

// StoredAlert maps to the clinical_alert table.
type StoredAlert struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Severity         string     `db:"severity" json:"severity"`
	AlertType        string     `db:"alert_type" json:"alert_type"`
	DetectedPatterns []string   `db:"detected_patterns" json:"detected_patterns"`
	ContentSnippet   string     `db:"content_snippet" json:"content_snippet"`
	ConfidenceScore  float64    `db:"confidence_score" json:"confidence_score"`
	RequiresReview   bool       `db:"requires_review" json:"requires_review"`
	AutoBlock        bool       `db:"auto_block" json:"auto_block"`
	Source           string     `db:"source" json:"source"`
	Status           string     `db:"status" json:"status"`
	ReviewedBy       *uuid.UUID `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
