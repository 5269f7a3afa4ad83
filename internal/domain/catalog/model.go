package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Interaction severity levels as recorded in the drug interaction catalog.
const (
	SeverityMinor           = "MINOR"
	SeverityModerate        = "MODERATE"
	SeverityMajor           = "MAJOR"
	SeverityContraindicated = "CONTRAINDICATED"
)

// Cross-reactivity risk levels.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Entry provenance.
const (
	SourceBuiltin = "builtin"
	SourceCustom  = "custom"
)

var validInteractionSeverities = map[string]bool{
	SeverityMinor:           true,
	SeverityModerate:        true,
	SeverityMajor:           true,
	SeverityContraindicated: true,
}

var validRiskLevels = map[string]bool{
	RiskLow:      true,
	RiskMedium:   true,
	RiskHigh:     true,
	RiskCritical: true,
}

// DrugInteraction maps to the drug_interaction table. Entries are directional:
// DrugName is the catalog key and InteractingDrug the partner it is recorded
// against.
type DrugInteraction struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	DrugName               string    `db:"drug_name" json:"drug_name"`
	InteractingDrug        string    `db:"interacting_drug" json:"interacting_drug"`
	Severity               string    `db:"severity" json:"severity"`
	Description            string    `db:"description" json:"description,omitempty"`
	Mechanism              string    `db:"mechanism" json:"mechanism,omitempty"`
	ClinicalRecommendation string    `db:"clinical_recommendation" json:"clinical_recommendation,omitempty"`
	EvidenceLevel          string    `db:"evidence_level" json:"evidence_level,omitempty"`
	Source                 string    `db:"source" json:"source"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// FoodInteraction maps to the food_interaction table. DrugName is matched as a
// substring of a medication's generic name, so class fragments like "statin"
// cover every member of the class.
type FoodInteraction struct {
	ID                uuid.UUID `db:"id" json:"id"`
	DrugName          string    `db:"drug_name" json:"drug_name"`
	Food              string    `db:"food" json:"food"`
	Effect            string    `db:"effect" json:"effect,omitempty"`
	AvoidanceRequired bool      `db:"avoidance_required" json:"avoidance_required"`
	Source            string    `db:"source" json:"source"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// AllergenCrossReactivity maps to the allergen_cross_reactivity table.
type AllergenCrossReactivity struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	Allergen               string    `db:"allergen" json:"allergen"`
	CrossReactiveAllergens []string  `db:"cross_reactive_allergens" json:"cross_reactive_allergens"`
	RiskLevel              string    `db:"risk_level" json:"risk_level"`
	Recommendation         string    `db:"recommendation" json:"recommendation,omitempty"`
	Source                 string    `db:"source" json:"source"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// Stats summarizes a loaded catalog snapshot.
type Stats struct {
	DrugEntries      int `json:"drug_entries"`
	DrugInteractions int `json:"drug_interactions"`
	FoodInteractions int `json:"food_interactions"`
	Allergens        int `json:"allergens"`
	BuiltinRows      int `json:"builtin_rows"`
	CustomRows       int `json:"custom_rows"`
}
