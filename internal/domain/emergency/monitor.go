package emergency

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinsafe/clinsafe/internal/domain/catalog"
	"github.com/clinsafe/clinsafe/internal/domain/conflict"
)

// Monitor runs the fast-path safety check that gates ingredient lists before
// they reach the user. It short-circuits the full detector: no I/O, no
// mutation of inputs, O(allergies x ingredients + medications x ingredients).
type Monitor struct {
	catalog *catalog.Catalog
	logger  zerolog.Logger
}

func NewMonitor(cat *catalog.Catalog, logger zerolog.Logger) *Monitor {
	return &Monitor{catalog: cat, logger: logger}
}

// EmergencyConflictCheck scans the proposed ingredients against anaphylactic
// allergies and against the catalog's medication-food rules. The action only
// ever escalates: an anaphylactic match forces block and nothing afterward
// can downgrade it; a food-rule match raises proceed to warn. A panic inside
// the check is converted into a block verdict rather than reported as safe.
func (m *Monitor) EmergencyConflictCheck(allergies []conflict.Allergy, medications []conflict.Medication, proposedIngredients []string) (verdict Verdict) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error().
				Interface("panic", rec).
				Msg("emergency check failed, returning block verdict")
			verdict = FailureVerdict()
		}
	}()

	verdict = Verdict{
		IsSafe:            true,
		EmergencyWarnings: []string{},
		ActionRequired:    ActionProceed,
	}

	for _, a := range allergies {
		if !strings.EqualFold(strings.TrimSpace(a.Severity), conflict.AllergySeverityAnaphylactic) {
			continue
		}
		allergen := strings.ToLower(strings.TrimSpace(a.Allergen))
		if allergen == "" {
			continue
		}
		for _, ingredient := range proposedIngredients {
			if strings.Contains(strings.ToLower(ingredient), allergen) {
				verdict.EmergencyWarnings = append(verdict.EmergencyWarnings,
					fmt.Sprintf("EMERGENCY: %q contains %s, a known anaphylactic allergen for this subject", ingredient, a.Allergen))
				verdict.ActionRequired = ActionBlock
			}
		}
	}

	for _, med := range medications {
		if !med.IsActive {
			continue
		}
		for _, rule := range m.catalog.FoodRulesFor(med.GenericName) {
			food := strings.ToLower(strings.TrimSpace(rule.Food))
			if food == "" {
				continue
			}
			effect := rule.Effect
			if effect == "" {
				effect = "recorded medication-food interaction"
			}
			for _, ingredient := range proposedIngredients {
				if strings.Contains(strings.ToLower(ingredient), food) {
					verdict.EmergencyWarnings = append(verdict.EmergencyWarnings,
						fmt.Sprintf("%q may interact with %s: %s", ingredient, med.GenericName, effect))
					if verdict.ActionRequired != ActionBlock {
						verdict.ActionRequired = ActionWarn
					}
				}
			}
		}
	}

	verdict.IsSafe = verdict.ActionRequired != ActionBlock
	return verdict
}

// FailureVerdict is the verdict reported when the check itself fails. The
// fast path sits in front of user-facing content, so a failure blocks.
func FailureVerdict() Verdict {
	return Verdict{
		IsSafe: false,
		EmergencyWarnings: []string{
			"Emergency safety check did not complete. Do not proceed without clinical guidance.",
		},
		ActionRequired: ActionBlock,
	}
}
