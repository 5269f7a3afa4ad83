package conflict

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinsafe/clinsafe/internal/domain/catalog"
)

// conditionRule describes one condition-compatibility rule: when an active
// medication matches a primary fragment and another matches a secondary
// fragment, the rule fires. Rules are data so new ones can be added without
// touching the detection algorithm.
type conditionRule struct {
	name               string
	primaryFragments   []string
	secondaryFragments []string
	severity           string
	description        string
}

var conditionRules = []conditionRule{
	{
		name:               "insulin_sulfonylurea",
		primaryFragments:   []string{"insulin"},
		secondaryFragments: []string{"glipizide", "glyburide", "glimepiride", "chlorpropamide", "tolbutamide"},
		severity:           SeverityHigh,
		description:        "Insulin combined with a sulfonylurea carries a significant hypoglycemia risk",
	},
}

// Detector runs the conflict detection passes over a shared immutable catalog
// snapshot. It performs no I/O, never mutates its inputs, and is safe for
// concurrent use; construct one per request or share one, either works.
type Detector struct {
	catalog *catalog.Catalog
	cfg     DetectionConfig
	logger  zerolog.Logger

	// Injectable for deterministic tests.
	now   func() time.Time
	newID func() string
}

func NewDetector(cat *catalog.Catalog, cfg DetectionConfig, logger zerolog.Logger) *Detector {
	return &Detector{
		catalog: cat,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// DetectConflicts runs the enabled detection passes for one subject and
// aggregates the findings. A panic anywhere inside detection is converted
// into the maximum-risk result; an internal failure is never reported as
// "no conflicts".
func (d *Detector) DetectConflicts(subjectID string, allergies []Allergy, medications []Medication, proposed *ProposedChanges) (result DetectionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error().
				Interface("panic", rec).
				Str("subject_id", subjectID).
				Msg("conflict detection failed, returning maximum-risk result")
			result = FailureResult()
		}
	}()

	effAllergies, effMedications := effectiveLists(allergies, medications, proposed)

	conflicts := []Conflict{}
	var checks ChecksPerformed
	if d.cfg.EnableMedicationInteractions {
		checks.Medication = true
		conflicts = append(conflicts, d.medicationPass(subjectID, effMedications)...)
	}
	if d.cfg.EnableAllergyConflicts {
		checks.Allergy = true
		conflicts = append(conflicts, d.allergyPass(subjectID, effAllergies, effMedications)...)
	}
	if d.cfg.EnableConditionCompatibility {
		checks.Condition = true
		conflicts = append(conflicts, d.conditionPass(subjectID, effMedications)...)
	}

	return d.aggregate(conflicts, checks)
}

// FailureResult is the maximum-risk result returned when detection itself
// fails. Gating callers must treat it exactly like detected conflicts.
func FailureResult() DetectionResult {
	return DetectionResult{
		HasConflicts:           true,
		ConflictCount:          FailureConflictCount,
		Conflicts:              []Conflict{},
		CriticalConflicts:      []Conflict{},
		Warnings:               []Conflict{},
		SafetyScore:            0,
		RequiresClinicalReview: true,
		DetectorFailure:        true,
	}
}

// medicationPass checks every unordered pair of active medications against
// the interaction catalog. The catalog stores pairs in one direction, so both
// orderings are probed; at most one conflict is emitted per pair.
func (d *Detector) medicationPass(subjectID string, medications []Medication) []Conflict {
	active := d.activeMedications(medications)
	var conflicts []Conflict
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			ix := d.catalog.Interaction(active[i].GenericName, active[j].GenericName)
			if ix == nil {
				ix = d.catalog.Interaction(active[j].GenericName, active[i].GenericName)
			}
			if ix == nil {
				continue
			}
			severity, ok := interactionSeverityMap[ix.Severity]
			if !ok {
				d.logger.Warn().
					Str("drug", ix.DrugName).
					Str("severity", ix.Severity).
					Msg("skipping interaction with unknown catalog severity")
				continue
			}
			conflicts = append(conflicts, Conflict{
				ID:                d.newID(),
				Type:              TypeMedicationInteraction,
				Severity:          severity,
				Description:       fmt.Sprintf("Known %s interaction between %s and %s: %s", ix.Severity, ix.DrugName, ix.InteractingDrug, ix.Description),
				AffectedSubjectID: subjectID,
				ConflictingData: map[string]interface{}{
					"medication_a":     active[i].GenericName,
					"medication_b":     active[j].GenericName,
					"catalog_severity": ix.Severity,
					"mechanism":        ix.Mechanism,
					"recommendation":   ix.ClinicalRecommendation,
				},
				DetectedAt: d.now().UTC(),
			})
		}
	}
	return conflicts
}

// allergyPass checks (a) every allergy against every active medication name
// and (b) every allergy pair against the cross-reactivity catalog.
func (d *Detector) allergyPass(subjectID string, allergies []Allergy, medications []Medication) []Conflict {
	valid := d.validAllergies(allergies)
	active := d.activeMedications(medications)
	var conflicts []Conflict

	for _, a := range valid {
		severity := allergySeverityMap[a.Severity]
		for _, m := range active {
			if !allergenMatchesMedication(a.Allergen, m.GenericName) {
				continue
			}
			conflicts = append(conflicts, Conflict{
				ID:                d.newID(),
				Type:              TypeAllergyConflict,
				Severity:          severity,
				Description:       fmt.Sprintf("Medication %s conflicts with documented %s allergy to %s", m.GenericName, a.Severity, a.Allergen),
				AffectedSubjectID: subjectID,
				ConflictingData: map[string]interface{}{
					"allergen":         a.Allergen,
					"allergy_severity": a.Severity,
					"medication":       m.GenericName,
				},
				DetectedAt: d.now().UTC(),
			})
		}
	}

	for i := range valid {
		entry := d.catalog.LookupAllergen(valid[i].Allergen)
		if entry == nil {
			continue
		}
		for j := range valid {
			if i == j {
				continue
			}
			if !crossReactiveMatch(entry, valid[j].Allergen) {
				continue
			}
			conflicts = append(conflicts, Conflict{
				ID:                d.newID(),
				Type:              TypeAllergyConflict,
				Severity:          entry.RiskLevel,
				Description:       fmt.Sprintf("Allergen %s is cross-reactive with %s (%s risk)", valid[i].Allergen, valid[j].Allergen, entry.RiskLevel),
				AffectedSubjectID: subjectID,
				ConflictingData: map[string]interface{}{
					"allergen":       valid[i].Allergen,
					"cross_reactive": valid[j].Allergen,
					"risk_level":     entry.RiskLevel,
					"recommendation": entry.Recommendation,
				},
				DetectedAt: d.now().UTC(),
			})
		}
	}

	return conflicts
}

// conditionPass evaluates the condition-compatibility rule table against the
// active medication names.
func (d *Detector) conditionPass(subjectID string, medications []Medication) []Conflict {
	active := d.activeMedications(medications)
	names := make([]string, len(active))
	for i, m := range active {
		names[i] = strings.ToLower(m.GenericName)
	}

	var conflicts []Conflict
	for _, rule := range conditionRules {
		primary := firstFragmentMatch(names, rule.primaryFragments)
		secondary := firstFragmentMatch(names, rule.secondaryFragments)
		if primary == "" || secondary == "" {
			continue
		}
		conflicts = append(conflicts, Conflict{
			ID:                d.newID(),
			Type:              TypeConditionCompatibility,
			Severity:          rule.severity,
			Description:       rule.description,
			AffectedSubjectID: subjectID,
			ConflictingData: map[string]interface{}{
				"rule":         rule.name,
				"medication_a": primary,
				"medication_b": secondary,
			},
			DetectedAt: d.now().UTC(),
		})
	}
	return conflicts
}

func (d *Detector) aggregate(conflicts []Conflict, checks ChecksPerformed) DetectionResult {
	score := 100
	for _, c := range conflicts {
		switch c.Type {
		case TypeMedicationInteraction:
			score -= 15
		case TypeAllergyConflict:
			score -= 10
		case TypeConditionCompatibility:
			score -= 12
		}
	}
	if score < 0 {
		score = 0
	}

	autoResolved := false
	if d.cfg.AutoResolveMinorConflicts {
		for i := range conflicts {
			if conflicts[i].Severity == SeverityLow || conflicts[i].Severity == SeverityMedium {
				conflicts[i].Resolved = true
				autoResolved = true
			}
		}
	}

	critical := []Conflict{}
	warnings := []Conflict{}
	hasHighOrCritical := false
	for i := range conflicts {
		if conflicts[i].Severity == SeverityCritical {
			critical = append(critical, conflicts[i])
		} else {
			warnings = append(warnings, conflicts[i])
		}
		if conflicts[i].Severity == SeverityHigh || conflicts[i].Severity == SeverityCritical {
			hasHighOrCritical = true
		}
	}

	threshold := d.cfg.ReviewConflictThreshold
	if threshold <= 0 {
		threshold = DefaultReviewConflictThreshold
	}
	requiresReview := d.cfg.ClinicalOversightRequired &&
		(hasHighOrCritical || len(conflicts) >= threshold)

	return DetectionResult{
		HasConflicts:           len(conflicts) > 0,
		ConflictCount:          len(conflicts),
		Conflicts:              conflicts,
		CriticalConflicts:      critical,
		Warnings:               warnings,
		SafetyScore:            score,
		RequiresClinicalReview: requiresReview,
		AutoResolutionApplied:  autoResolved,
		ChecksPerformed:        checks,
	}
}

// activeMedications filters to active records with a generic name. Malformed
// records are skipped individually, never aborting the run.
func (d *Detector) activeMedications(medications []Medication) []Medication {
	out := make([]Medication, 0, len(medications))
	for _, m := range medications {
		if strings.TrimSpace(m.GenericName) == "" {
			d.logger.Warn().Str("medication_id", m.ID).Msg("skipping medication record without generic name")
			continue
		}
		if !m.IsActive {
			continue
		}
		out = append(out, m)
	}
	return out
}

// validAllergies filters out records missing an allergen or carrying an
// unknown severity.
func (d *Detector) validAllergies(allergies []Allergy) []Allergy {
	out := make([]Allergy, 0, len(allergies))
	for _, a := range allergies {
		if strings.TrimSpace(a.Allergen) == "" {
			d.logger.Warn().Str("allergy_id", a.ID).Msg("skipping allergy record without allergen")
			continue
		}
		if _, ok := allergySeverityMap[a.Severity]; !ok {
			d.logger.Warn().Str("allergy_id", a.ID).Str("severity", a.Severity).Msg("skipping allergy record with unknown severity")
			continue
		}
		out = append(out, a)
	}
	return out
}

func effectiveLists(allergies []Allergy, medications []Medication, proposed *ProposedChanges) ([]Allergy, []Medication) {
	if proposed != nil {
		if proposed.Allergies != nil {
			allergies = *proposed.Allergies
		}
		if proposed.Medications != nil {
			medications = *proposed.Medications
		}
	}
	return allergies, medications
}

// allergenMatchesMedication reports whether a medication generic name matches
// an allergen, by direct substring or one of the clinical equivalences
// (penicillin family, sulfa drugs, aspirin/salicylates).
func allergenMatchesMedication(allergen, genericName string) bool {
	a := strings.ToLower(strings.TrimSpace(allergen))
	m := strings.ToLower(strings.TrimSpace(genericName))
	if a == "" || m == "" {
		return false
	}
	if strings.Contains(m, a) {
		return true
	}
	switch {
	case strings.Contains(a, "penicillin") && strings.Contains(m, "cillin"):
		return true
	case strings.Contains(a, "sulfa") && strings.Contains(m, "sulfa"):
		return true
	case strings.Contains(a, "aspirin") && strings.Contains(m, "salicylate"):
		return true
	}
	return false
}

// crossReactiveMatch reports whether the entry's cross-reactive set contains
// the other allergen as a substring.
func crossReactiveMatch(entry *catalog.AllergenEntry, otherAllergen string) bool {
	other := strings.ToLower(strings.TrimSpace(otherAllergen))
	if other == "" {
		return false
	}
	for _, cross := range entry.CrossReactiveAllergens {
		if strings.Contains(strings.ToLower(cross), other) {
			return true
		}
	}
	return false
}

// firstFragmentMatch returns the first name containing any of the fragments.
func firstFragmentMatch(names, fragments []string) string {
	for _, n := range names {
		for _, frag := range fragments {
			if strings.Contains(n, frag) {
				return n
			}
		}
	}
	return ""
}
