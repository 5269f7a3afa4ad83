package emergency

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinsafe/clinsafe/internal/domain/catalog"
	"github.com/clinsafe/clinsafe/internal/domain/conflict"
)

func testMonitor(t *testing.T) *Monitor {
	t.Helper()
	return NewMonitor(catalog.Default(), zerolog.Nop())
}

func TestEmergencyConflictCheck_AnaphylacticMatchBlocks(t *testing.T) {
	m := testMonitor(t)

	allergies := []conflict.Allergy{
		{ID: "a1", Allergen: "peanut", Severity: conflict.AllergySeverityAnaphylactic},
	}
	ingredients := []string{"flour", "peanut butter", "sugar"}

	verdict := m.EmergencyConflictCheck(allergies, nil, ingredients)

	if verdict.ActionRequired != ActionBlock {
		t.Fatalf("expected action %q, got %q", ActionBlock, verdict.ActionRequired)
	}
	if verdict.IsSafe {
		t.Error("expected is_safe=false on block")
	}
	if len(verdict.EmergencyWarnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(verdict.EmergencyWarnings), verdict.EmergencyWarnings)
	}
	if !strings.Contains(verdict.EmergencyWarnings[0], "peanut butter") {
		t.Errorf("expected warning to name the ingredient, got %q", verdict.EmergencyWarnings[0])
	}
}

func TestEmergencyConflictCheck_MatchIsCaseInsensitive(t *testing.T) {
	m := testMonitor(t)

	allergies := []conflict.Allergy{
		{ID: "a1", Allergen: "Shellfish", Severity: "Anaphylactic"},
	}

	verdict := m.EmergencyConflictCheck(allergies, nil, []string{"SHELLFISH stock"})

	if verdict.ActionRequired != ActionBlock {
		t.Fatalf("expected block for case-insensitive match, got %q", verdict.ActionRequired)
	}
}

func TestEmergencyConflictCheck_NonAnaphylacticNeverBlocks(t *testing.T) {
	m := testMonitor(t)

	for _, severity := range []string{
		conflict.AllergySeverityMild,
		conflict.AllergySeverityModerate,
		conflict.AllergySeveritySevere,
	} {
		t.Run(severity, func(t *testing.T) {
			allergies := []conflict.Allergy{
				{ID: "a1", Allergen: "peanut", Severity: severity},
			}

			verdict := m.EmergencyConflictCheck(allergies, nil, []string{"peanut butter"})

			if verdict.ActionRequired == ActionBlock {
				t.Fatalf("severity %q must not block the fast path", severity)
			}
			if !verdict.IsSafe {
				t.Error("expected is_safe=true when not blocked")
			}
		})
	}
}

func TestEmergencyConflictCheck_FoodRuleWarns(t *testing.T) {
	m := testMonitor(t)

	medications := []conflict.Medication{
		{ID: "m1", GenericName: "warfarin", IsActive: true},
	}

	verdict := m.EmergencyConflictCheck(nil, medications, []string{"spinach salad", "bread"})

	if verdict.ActionRequired != ActionWarn {
		t.Fatalf("expected action %q, got %q", ActionWarn, verdict.ActionRequired)
	}
	if !verdict.IsSafe {
		t.Error("warn verdicts are still safe to proceed with caution")
	}
	if len(verdict.EmergencyWarnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(verdict.EmergencyWarnings), verdict.EmergencyWarnings)
	}
	if !strings.Contains(verdict.EmergencyWarnings[0], "warfarin") {
		t.Errorf("expected warning to name the medication, got %q", verdict.EmergencyWarnings[0])
	}
}

func TestEmergencyConflictCheck_StatinRuleMatchesBySubstring(t *testing.T) {
	m := testMonitor(t)

	medications := []conflict.Medication{
		{ID: "m1", GenericName: "Atorvastatin", IsActive: true},
	}

	verdict := m.EmergencyConflictCheck(nil, medications, []string{"grapefruit juice"})

	if verdict.ActionRequired != ActionWarn {
		t.Fatalf("expected statin rule to fire for atorvastatin, got %q", verdict.ActionRequired)
	}
}

func TestEmergencyConflictCheck_InactiveMedicationIgnored(t *testing.T) {
	m := testMonitor(t)

	medications := []conflict.Medication{
		{ID: "m1", GenericName: "warfarin", IsActive: false},
	}

	verdict := m.EmergencyConflictCheck(nil, medications, []string{"spinach"})

	if verdict.ActionRequired != ActionProceed {
		t.Fatalf("inactive medication must not trigger food rules, got %q", verdict.ActionRequired)
	}
	if len(verdict.EmergencyWarnings) != 0 {
		t.Errorf("expected no warnings, got %v", verdict.EmergencyWarnings)
	}
}

func TestEmergencyConflictCheck_BlockNeverDowngraded(t *testing.T) {
	m := testMonitor(t)

	// Anaphylactic match plus a food-rule match: the food rule appends its
	// warning but must not lower block to warn.
	allergies := []conflict.Allergy{
		{ID: "a1", Allergen: "peanut", Severity: conflict.AllergySeverityAnaphylactic},
	}
	medications := []conflict.Medication{
		{ID: "m1", GenericName: "warfarin", IsActive: true},
	}

	verdict := m.EmergencyConflictCheck(allergies, medications, []string{"peanut sauce", "spinach"})

	if verdict.ActionRequired != ActionBlock {
		t.Fatalf("expected block to survive later signals, got %q", verdict.ActionRequired)
	}
	if len(verdict.EmergencyWarnings) != 2 {
		t.Fatalf("expected both warnings, got %d: %v", len(verdict.EmergencyWarnings), verdict.EmergencyWarnings)
	}
	if verdict.IsSafe {
		t.Error("expected is_safe=false")
	}
}

func TestEmergencyConflictCheck_CleanInputsProceed(t *testing.T) {
	m := testMonitor(t)

	allergies := []conflict.Allergy{
		{ID: "a1", Allergen: "peanut", Severity: conflict.AllergySeverityAnaphylactic},
	}
	medications := []conflict.Medication{
		{ID: "m1", GenericName: "warfarin", IsActive: true},
	}

	verdict := m.EmergencyConflictCheck(allergies, medications, []string{"rice", "chicken"})

	if verdict.ActionRequired != ActionProceed {
		t.Fatalf("expected proceed, got %q", verdict.ActionRequired)
	}
	if !verdict.IsSafe {
		t.Error("expected is_safe=true")
	}
	if len(verdict.EmergencyWarnings) != 0 {
		t.Errorf("expected no warnings, got %v", verdict.EmergencyWarnings)
	}
}

func TestEmergencyConflictCheck_EmptyInputs(t *testing.T) {
	m := testMonitor(t)

	verdict := m.EmergencyConflictCheck(nil, nil, nil)

	if verdict.ActionRequired != ActionProceed {
		t.Fatalf("expected proceed for empty inputs, got %q", verdict.ActionRequired)
	}
	if !verdict.IsSafe {
		t.Error("expected is_safe=true for empty inputs")
	}
	if verdict.EmergencyWarnings == nil {
		t.Error("expected empty warning slice, not nil")
	}
}

func TestEmergencyConflictCheck_BlankAllergenIgnored(t *testing.T) {
	m := testMonitor(t)

	allergies := []conflict.Allergy{
		{ID: "a1", Allergen: "   ", Severity: conflict.AllergySeverityAnaphylactic},
	}

	verdict := m.EmergencyConflictCheck(allergies, nil, []string{"anything"})

	if verdict.ActionRequired != ActionProceed {
		t.Fatalf("blank allergen must not match everything, got %q", verdict.ActionRequired)
	}
}

func TestEmergencyConflictCheck_FailureBlocks(t *testing.T) {
	// A nil catalog makes the food-rule pass panic; the monitor must convert
	// that into a block verdict rather than reporting safe.
	m := NewMonitor(nil, zerolog.Nop())

	medications := []conflict.Medication{
		{ID: "m1", GenericName: "warfarin", IsActive: true},
	}

	verdict := m.EmergencyConflictCheck(nil, medications, []string{"spinach"})

	if verdict.ActionRequired != ActionBlock {
		t.Fatalf("expected block on internal failure, got %q", verdict.ActionRequired)
	}
	if verdict.IsSafe {
		t.Error("internal failure must never report safe")
	}
	if len(verdict.EmergencyWarnings) == 0 {
		t.Error("expected a failure warning")
	}
}

func TestEmergencyConflictCheck_DoesNotMutateInputs(t *testing.T) {
	m := testMonitor(t)

	allergies := []conflict.Allergy{
		{ID: "a1", Allergen: "peanut", Severity: conflict.AllergySeverityAnaphylactic},
	}
	medications := []conflict.Medication{
		{ID: "m1", GenericName: "warfarin", IsActive: true},
	}
	ingredients := []string{"peanut butter", "spinach"}

	m.EmergencyConflictCheck(allergies, medications, ingredients)

	if allergies[0].Allergen != "peanut" || allergies[0].Severity != conflict.AllergySeverityAnaphylactic {
		t.Error("allergies were mutated")
	}
	if medications[0].GenericName != "warfarin" {
		t.Error("medications were mutated")
	}
	if ingredients[0] != "peanut butter" || ingredients[1] != "spinach" {
		t.Error("ingredients were mutated")
	}
}

func TestFailureVerdict(t *testing.T) {
	v := FailureVerdict()

	if v.IsSafe {
		t.Error("failure verdict must not be safe")
	}
	if v.ActionRequired != ActionBlock {
		t.Errorf("expected action %q, got %q", ActionBlock, v.ActionRequired)
	}
	if len(v.EmergencyWarnings) == 0 {
		t.Error("failure verdict must carry a warning")
	}
}
