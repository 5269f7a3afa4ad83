package emergency

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinsafe/clinsafe/internal/domain/conflict"
)

// Actions a verdict can require from the caller. Block is reserved for
// anaphylactic allergen matches and escalates over everything else.
const (
	ActionBlock   = "block"
	ActionWarn    = "warn"
	ActionProceed = "proceed"
)

// Verdict is the immediate result of an emergency safety check. IsSafe is
// true exactly when ActionRequired is not block.
type Verdict struct {
	IsSafe            bool     `json:"is_safe"`
	EmergencyWarnings []string `json:"emergency_warnings"`
	ActionRequired    string   `json:"action_required"`
}

// CheckRequest carries a subject's current profile and the ingredient list
// about to be shown or consumed.
type CheckRequest struct {
	Allergies           []conflict.Allergy    `json:"allergies"`
	Medications         []conflict.Medication `json:"medications"`
	ProposedIngredients []string              `json:"proposed_ingredients"`
}

// CheckRecord maps to the emergency_check table.
type CheckRecord struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	IsSafe           bool       `db:"is_safe" json:"is_safe"`
	ActionRequired   string     `db:"action_required" json:"action_required"`
	WarningCount     int        `db:"warning_count" json:"warning_count"`
	Warnings         []string   `db:"warnings" json:"warnings"`
	AllergyCount     int        `db:"allergy_count" json:"allergy_count"`
	MedicationCount  int        `db:"medication_count" json:"medication_count"`
	IngredientCount  int        `db:"ingredient_count" json:"ingredient_count"`
	OverrideRecorded bool       `db:"override_recorded" json:"override_recorded"`
	OverrideReason   string     `db:"override_reason" json:"override_reason,omitempty"`
	CheckedBy        *uuid.UUID `db:"checked_by" json:"checked_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
