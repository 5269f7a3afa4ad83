package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinsafe/clinsafe/internal/domain/catalog"
)

func newCatalogService() *catalog.Service {
	return catalog.NewService(
		catalog.NewDrugInteractionRepoPG(globalDB.Pool),
		catalog.NewFoodInteractionRepoPG(globalDB.Pool),
		catalog.NewCrossReactivityRepoPG(globalDB.Pool),
		zerolog.Nop(),
	)
}

// ---------------------------------------------------------------------------
// Drug interaction CRUD
// ---------------------------------------------------------------------------

func TestDrugInteractionCRUD(t *testing.T) {
	ctx := context.Background()
	resetEngineTables(t, ctx)
	svc := newCatalogService()

	var created *catalog.DrugInteraction

	t.Run("Create", func(t *testing.T) {
		d := &catalog.DrugInteraction{
			DrugName:               "  Clarithromycin ",
			InteractingDrug:        "Colchicine",
			Severity:               "major",
			Description:            "CYP3A4 inhibition raises colchicine levels",
			ClinicalRecommendation: "Reduce colchicine dose or hold during the course",
			EvidenceLevel:          "established",
		}
		if err := svc.CreateDrugInteraction(ctx, d); err != nil {
			t.Fatalf("Create drug interaction: %v", err)
		}
		if d.ID == uuid.Nil {
			t.Fatal("expected non-nil ID")
		}
		created = d
	})

	t.Run("Create_InvalidSeverity", func(t *testing.T) {
		d := &catalog.DrugInteraction{
			DrugName:        "warfarin",
			InteractingDrug: "fluconazole",
			Severity:        "catastrophic",
		}
		if err := svc.CreateDrugInteraction(ctx, d); err == nil {
			t.Fatal("expected error for unknown severity")
		}
	})

	t.Run("GetByID_Normalized", func(t *testing.T) {
		got, err := svc.GetDrugInteraction(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.DrugName != "clarithromycin" {
			t.Errorf("expected drug_name=clarithromycin, got %s", got.DrugName)
		}
		if got.InteractingDrug != "colchicine" {
			t.Errorf("expected interacting_drug=colchicine, got %s", got.InteractingDrug)
		}
		if got.Severity != catalog.SeverityMajor {
			t.Errorf("expected severity=%s, got %s", catalog.SeverityMajor, got.Severity)
		}
		if got.Source != catalog.SourceCustom {
			t.Errorf("expected source=%s, got %s", catalog.SourceCustom, got.Source)
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected created_at to be set")
		}
	})

	t.Run("Update", func(t *testing.T) {
		created.Severity = "contraindicated"
		created.ClinicalRecommendation = "Avoid combination in renal impairment"
		if err := svc.UpdateDrugInteraction(ctx, created); err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, err := svc.GetDrugInteraction(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetByID after update: %v", err)
		}
		if got.Severity != catalog.SeverityContraindicated {
			t.Errorf("expected severity=%s, got %s", catalog.SeverityContraindicated, got.Severity)
		}
		if got.UpdatedAt.Before(got.CreatedAt) {
			t.Error("expected updated_at at or after created_at")
		}
	})

	t.Run("List", func(t *testing.T) {
		items, total, err := svc.ListDrugInteractions(ctx, 10, 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 1 {
			t.Errorf("expected total=1, got %d", total)
		}
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(items))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := svc.DeleteDrugInteraction(ctx, created.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := svc.GetDrugInteraction(ctx, created.ID); err == nil {
			t.Fatal("expected error fetching deleted interaction")
		}
	})
}

// ---------------------------------------------------------------------------
// Food interaction CRUD
// ---------------------------------------------------------------------------

func TestFoodInteractionCRUD(t *testing.T) {
	ctx := context.Background()
	resetEngineTables(t, ctx)
	svc := newCatalogService()

	f := &catalog.FoodInteraction{
		DrugName:          "Ciprofloxacin",
		Food:              "Dairy",
		Effect:            "Calcium chelation reduces absorption",
		AvoidanceRequired: true,
	}
	if err := svc.CreateFoodInteraction(ctx, f); err != nil {
		t.Fatalf("Create food interaction: %v", err)
	}
	if f.ID == uuid.Nil {
		t.Fatal("expected non-nil ID")
	}

	got, err := svc.GetFoodInteraction(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.DrugName != "ciprofloxacin" {
		t.Errorf("expected drug_name=ciprofloxacin, got %s", got.DrugName)
	}
	if got.Food != "dairy" {
		t.Errorf("expected food=dairy, got %s", got.Food)
	}
	if !got.AvoidanceRequired {
		t.Error("expected avoidance_required=true")
	}
	if got.Source != catalog.SourceCustom {
		t.Errorf("expected source=%s, got %s", catalog.SourceCustom, got.Source)
	}

	got.AvoidanceRequired = false
	if err := svc.UpdateFoodInteraction(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, err := svc.GetFoodInteraction(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if updated.AvoidanceRequired {
		t.Error("expected avoidance_required=false after update")
	}

	if err := svc.DeleteFoodInteraction(ctx, f.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, total, err := svc.ListFoodInteractions(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if total != 0 {
		t.Errorf("expected total=0 after delete, got %d", total)
	}
}

// ---------------------------------------------------------------------------
// Cross-reactivity CRUD
// ---------------------------------------------------------------------------

func TestCrossReactivityCRUD(t *testing.T) {
	ctx := context.Background()
	resetEngineTables(t, ctx)
	svc := newCatalogService()

	cr := &catalog.AllergenCrossReactivity{
		Allergen:               "Aspirin",
		CrossReactiveAllergens: []string{"ibuprofen", "naproxen", "ketorolac"},
		RiskLevel:              "HIGH",
		Recommendation:         "Avoid all NSAIDs in aspirin-sensitive subjects",
	}
	if err := svc.CreateCrossReactivity(ctx, cr); err != nil {
		t.Fatalf("Create cross-reactivity: %v", err)
	}
	if cr.ID == uuid.Nil {
		t.Fatal("expected non-nil ID")
	}

	got, err := svc.GetCrossReactivity(ctx, cr.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Allergen != "aspirin" {
		t.Errorf("expected allergen=aspirin, got %s", got.Allergen)
	}
	if got.RiskLevel != catalog.RiskHigh {
		t.Errorf("expected risk_level=%s, got %s", catalog.RiskHigh, got.RiskLevel)
	}
	if len(got.CrossReactiveAllergens) != 3 {
		t.Errorf("expected 3 cross-reactive allergens, got %d", len(got.CrossReactiveAllergens))
	}

	badRisk := &catalog.AllergenCrossReactivity{
		Allergen:               "codeine",
		CrossReactiveAllergens: []string{"morphine"},
		RiskLevel:              "extreme",
	}
	if err := svc.CreateCrossReactivity(ctx, badRisk); err == nil {
		t.Fatal("expected error for unknown risk level")
	}

	if err := svc.DeleteCrossReactivity(ctx, cr.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, total, err := svc.ListCrossReactivities(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if total != 0 {
		t.Errorf("expected total=0 after delete, got %d", total)
	}
}

// ---------------------------------------------------------------------------
// Reload and merge
// ---------------------------------------------------------------------------

func TestCatalogReloadMergesCustomRows(t *testing.T) {
	ctx := context.Background()
	resetEngineTables(t, ctx)
	svc := newCatalogService()

	// Custom override of a built-in pair: the stock entry is MAJOR.
	override := &catalog.DrugInteraction{
		DrugName:        "warfarin",
		InteractingDrug: "aspirin",
		Severity:        "minor",
		Description:     "Downgraded per local anticoagulation clinic protocol",
	}
	if err := svc.CreateDrugInteraction(ctx, override); err != nil {
		t.Fatalf("Create override: %v", err)
	}

	// Brand-new pair that does not exist in the built-in set.
	novel := &catalog.DrugInteraction{
		DrugName:        "clarithromycin",
		InteractingDrug: "colchicine",
		Severity:        "major",
		Description:     "CYP3A4 inhibition raises colchicine levels",
	}
	if err := svc.CreateDrugInteraction(ctx, novel); err != nil {
		t.Fatalf("Create novel pair: %v", err)
	}

	food := &catalog.FoodInteraction{
		DrugName:          "simvastatin",
		Food:              "grapefruit",
		Effect:            "CYP3A4 inhibition raises statin levels",
		AvoidanceRequired: true,
	}
	if err := svc.CreateFoodInteraction(ctx, food); err != nil {
		t.Fatalf("Create food rule: %v", err)
	}

	cross := &catalog.AllergenCrossReactivity{
		Allergen:               "aspirin",
		CrossReactiveAllergens: []string{"ibuprofen", "naproxen"},
		RiskLevel:              "high",
		Recommendation:         "Avoid all NSAIDs in aspirin-sensitive subjects",
	}
	if err := svc.CreateCrossReactivity(ctx, cross); err != nil {
		t.Fatalf("Create cross-reactivity: %v", err)
	}

	snap, err := svc.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}

	t.Run("Stats", func(t *testing.T) {
		stats := snap.Stats()
		// 12 built-in interactions, one overridden, one added.
		if stats.DrugInteractions != 13 {
			t.Errorf("expected 13 drug interactions, got %d", stats.DrugInteractions)
		}
		if stats.FoodInteractions != 29 {
			t.Errorf("expected 29 food interactions, got %d", stats.FoodInteractions)
		}
		if stats.Allergens != 7 {
			t.Errorf("expected 7 allergens, got %d", stats.Allergens)
		}
		if stats.CustomRows != 4 {
			t.Errorf("expected 4 custom rows, got %d", stats.CustomRows)
		}
		// The overridden built-in row is replaced, not double counted.
		if stats.BuiltinRows != 45 {
			t.Errorf("expected 45 builtin rows, got %d", stats.BuiltinRows)
		}
	})

	t.Run("OverrideWins", func(t *testing.T) {
		ix := snap.Interaction("warfarin", "aspirin")
		if ix == nil {
			t.Fatal("expected warfarin/aspirin interaction")
		}
		if ix.Severity != catalog.SeverityMinor {
			t.Errorf("expected custom severity=%s, got %s", catalog.SeverityMinor, ix.Severity)
		}
		if ix.Source != catalog.SourceCustom {
			t.Errorf("expected source=%s, got %s", catalog.SourceCustom, ix.Source)
		}
	})

	t.Run("NovelPairLookup", func(t *testing.T) {
		ix := snap.Interaction("Clarithromycin", "COLCHICINE")
		if ix == nil {
			t.Fatal("expected clarithromycin/colchicine interaction regardless of case")
		}
		if ix.Severity != catalog.SeverityMajor {
			t.Errorf("expected severity=%s, got %s", catalog.SeverityMajor, ix.Severity)
		}
	})

	t.Run("CustomAllergen", func(t *testing.T) {
		entry := snap.LookupAllergen("aspirin")
		if entry == nil {
			t.Fatal("expected aspirin allergen entry")
		}
		if entry.RiskLevel != catalog.RiskHigh {
			t.Errorf("expected risk_level=%s, got %s", catalog.RiskHigh, entry.RiskLevel)
		}
		if len(entry.CrossReactiveAllergens) != 2 {
			t.Errorf("expected 2 cross-reactive allergens, got %d", len(entry.CrossReactiveAllergens))
		}
	})

	t.Run("CustomFoodRule", func(t *testing.T) {
		rules := snap.FoodRulesFor("simvastatin")
		foundGrapefruit := false
		for _, r := range rules {
			if r.Food == "grapefruit" {
				foundGrapefruit = true
			}
		}
		if !foundGrapefruit {
			t.Error("expected a grapefruit rule for simvastatin")
		}
	})

	t.Run("SnapshotSwapped", func(t *testing.T) {
		if svc.Snapshot() != snap {
			t.Error("expected Snapshot to return the reloaded catalog")
		}
	})
}
