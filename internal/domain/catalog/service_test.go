package catalog

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------- Mock repositories ----------

type mockInteractionRepo struct {
	rows    []*DrugInteraction
	listErr error
}

func (m *mockInteractionRepo) Create(_ context.Context, d *DrugInteraction) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	m.rows = append(m.rows, d)
	return nil
}

func (m *mockInteractionRepo) GetByID(_ context.Context, id uuid.UUID) (*DrugInteraction, error) {
	for _, d := range m.rows {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("drug interaction %s not found", id)
}

func (m *mockInteractionRepo) Update(_ context.Context, d *DrugInteraction) error {
	for i, existing := range m.rows {
		if existing.ID == d.ID {
			m.rows[i] = d
			return nil
		}
	}
	return fmt.Errorf("drug interaction %s not found", d.ID)
}

func (m *mockInteractionRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, d := range m.rows {
		if d.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("drug interaction %s not found", id)
}

func (m *mockInteractionRepo) List(_ context.Context, limit, offset int) ([]*DrugInteraction, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	total := len(m.rows)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return m.rows[offset:end], total, nil
}

func (m *mockInteractionRepo) ListAll(_ context.Context) ([]*DrugInteraction, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.rows, nil
}

type mockFoodRepo struct {
	rows    []*FoodInteraction
	listErr error
}

func (m *mockFoodRepo) Create(_ context.Context, f *FoodInteraction) error {
	f.ID = uuid.New()
	f.CreatedAt = time.Now()
	f.UpdatedAt = f.CreatedAt
	m.rows = append(m.rows, f)
	return nil
}

func (m *mockFoodRepo) GetByID(_ context.Context, id uuid.UUID) (*FoodInteraction, error) {
	for _, f := range m.rows {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, fmt.Errorf("food interaction %s not found", id)
}

func (m *mockFoodRepo) Update(_ context.Context, f *FoodInteraction) error {
	for i, existing := range m.rows {
		if existing.ID == f.ID {
			m.rows[i] = f
			return nil
		}
	}
	return fmt.Errorf("food interaction %s not found", f.ID)
}

func (m *mockFoodRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, f := range m.rows {
		if f.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("food interaction %s not found", id)
}

func (m *mockFoodRepo) List(_ context.Context, limit, offset int) ([]*FoodInteraction, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	total := len(m.rows)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return m.rows[offset:end], total, nil
}

func (m *mockFoodRepo) ListAll(_ context.Context) ([]*FoodInteraction, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.rows, nil
}

type mockCrossRepo struct {
	rows    []*AllergenCrossReactivity
	listErr error
}

func (m *mockCrossRepo) Create(_ context.Context, cr *AllergenCrossReactivity) error {
	cr.ID = uuid.New()
	cr.CreatedAt = time.Now()
	cr.UpdatedAt = cr.CreatedAt
	m.rows = append(m.rows, cr)
	return nil
}

func (m *mockCrossRepo) GetByID(_ context.Context, id uuid.UUID) (*AllergenCrossReactivity, error) {
	for _, cr := range m.rows {
		if cr.ID == id {
			return cr, nil
		}
	}
	return nil, fmt.Errorf("cross-reactivity %s not found", id)
}

func (m *mockCrossRepo) Update(_ context.Context, cr *AllergenCrossReactivity) error {
	for i, existing := range m.rows {
		if existing.ID == cr.ID {
			m.rows[i] = cr
			return nil
		}
	}
	return fmt.Errorf("cross-reactivity %s not found", cr.ID)
}

func (m *mockCrossRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, cr := range m.rows {
		if cr.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("cross-reactivity %s not found", id)
}

func (m *mockCrossRepo) List(_ context.Context, limit, offset int) ([]*AllergenCrossReactivity, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	total := len(m.rows)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return m.rows[offset:end], total, nil
}

func (m *mockCrossRepo) ListAll(_ context.Context) ([]*AllergenCrossReactivity, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.rows, nil
}

func newTestService() (*Service, *mockInteractionRepo, *mockFoodRepo, *mockCrossRepo) {
	ix := &mockInteractionRepo{}
	foods := &mockFoodRepo{}
	cross := &mockCrossRepo{}
	svc := NewService(ix, foods, cross, zerolog.Nop())
	return svc, ix, foods, cross
}

// ---------- Snapshot lifecycle ----------

func TestNewService_SnapshotNeverNil(t *testing.T) {
	svc, _, _, _ := newTestService()

	snap := svc.Snapshot()
	if snap == nil {
		t.Fatal("expected built-in snapshot before first reload")
	}
	if snap.Stats().DrugInteractions != 12 {
		t.Errorf("expected 12 built-in interactions, got %d", snap.Stats().DrugInteractions)
	}
	if snap.Stats().CustomRows != 0 {
		t.Errorf("expected 0 custom rows before reload, got %d", snap.Stats().CustomRows)
	}
}

func TestReload_MergesCustomInteractions(t *testing.T) {
	svc, ix, _, _ := newTestService()
	ix.rows = []*DrugInteraction{
		{
			ID:              uuid.New(),
			DrugName:        "warfarin",
			InteractingDrug: "aspirin",
			Severity:        SeverityMinor,
			Source:          SourceCustom,
		},
		{
			ID:              uuid.New(),
			DrugName:        "amiodarone",
			InteractingDrug: "digoxin",
			Severity:        SeverityMajor,
			Source:          SourceCustom,
		},
	}

	snap, err := svc.Reload(context.Background())
	if err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}

	// The custom row replaces the built-in entry on the same pair.
	overridden := snap.Interaction("warfarin", "aspirin")
	if overridden == nil {
		t.Fatal("expected warfarin -> aspirin after reload")
	}
	if overridden.Severity != SeverityMinor {
		t.Errorf("expected custom severity %s, got %s", SeverityMinor, overridden.Severity)
	}
	if overridden.Source != SourceCustom {
		t.Errorf("expected custom source, got %s", overridden.Source)
	}

	if snap.Interaction("amiodarone", "digoxin") == nil {
		t.Error("expected new custom pair after reload")
	}

	stats := snap.Stats()
	if stats.DrugInteractions != 13 {
		t.Errorf("expected 13 interactions (11 built-in + 2 custom), got %d", stats.DrugInteractions)
	}
	if stats.CustomRows != 2 {
		t.Errorf("expected 2 custom rows, got %d", stats.CustomRows)
	}
	if stats.BuiltinRows != 45 {
		t.Errorf("expected 45 built-in rows after one override, got %d", stats.BuiltinRows)
	}

	if svc.Snapshot() != snap {
		t.Error("expected reloaded snapshot to be swapped in")
	}
}

func TestReload_MergesCustomCrossReactivities(t *testing.T) {
	svc, _, _, cross := newTestService()
	cross.rows = []*AllergenCrossReactivity{
		{
			ID:                     uuid.New(),
			Allergen:               "Peanuts",
			CrossReactiveAllergens: []string{"tree nuts"},
			RiskLevel:              RiskLow,
			Source:                 SourceCustom,
		},
	}

	snap, err := svc.Reload(context.Background())
	if err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}

	entry := snap.LookupAllergen("peanuts")
	if entry == nil {
		t.Fatal("expected peanuts entry after reload")
	}
	if entry.RiskLevel != RiskLow {
		t.Errorf("expected custom risk %s, got %s", RiskLow, entry.RiskLevel)
	}
	if snap.Stats().Allergens != 6 {
		t.Errorf("expected 6 allergens after override, got %d", snap.Stats().Allergens)
	}
}

func TestReload_ErrorKeepsOldSnapshot(t *testing.T) {
	svc, ix, _, _ := newTestService()
	ix.rows = []*DrugInteraction{
		{ID: uuid.New(), DrugName: "amiodarone", InteractingDrug: "digoxin", Severity: SeverityMajor, Source: SourceCustom},
	}

	if _, err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}
	if svc.Snapshot().Stats().CustomRows != 1 {
		t.Fatalf("expected 1 custom row after first reload, got %d", svc.Snapshot().Stats().CustomRows)
	}

	ix.listErr = fmt.Errorf("connection refused")
	_, err := svc.Reload(context.Background())
	if err == nil {
		t.Fatal("expected reload error")
	}
	if !strings.Contains(err.Error(), "load drug interactions") {
		t.Errorf("expected wrapped load error, got %v", err)
	}

	// The failed reload must not clobber the previous snapshot.
	if svc.Snapshot().Stats().CustomRows != 1 {
		t.Errorf("expected previous snapshot to survive, got %d custom rows", svc.Snapshot().Stats().CustomRows)
	}
}

func TestReload_DropsInvalidCustomRows(t *testing.T) {
	svc, ix, _, _ := newTestService()
	ix.rows = []*DrugInteraction{
		{ID: uuid.New(), DrugName: "foo", InteractingDrug: "bar", Severity: "EXTREME", Source: SourceCustom},
	}

	snap, err := svc.Reload(context.Background())
	if err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}
	if snap.Interaction("foo", "bar") != nil {
		t.Error("expected row with unknown severity to be dropped")
	}
	if snap.Stats().DrugInteractions != 12 {
		t.Errorf("expected built-in interactions untouched, got %d", snap.Stats().DrugInteractions)
	}
}

// ---------- Validation ----------

func TestCreateDrugInteraction_NormalizesFields(t *testing.T) {
	svc, ix, _, _ := newTestService()

	d := &DrugInteraction{
		DrugName:        "  Warfarin ",
		InteractingDrug: "ASPIRIN",
		Severity:        "major",
		Source:          SourceBuiltin,
	}
	if err := svc.CreateDrugInteraction(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.DrugName != "warfarin" {
		t.Errorf("expected lower-cased drug name, got %q", d.DrugName)
	}
	if d.InteractingDrug != "aspirin" {
		t.Errorf("expected lower-cased interacting drug, got %q", d.InteractingDrug)
	}
	if d.Severity != SeverityMajor {
		t.Errorf("expected upper-cased severity, got %q", d.Severity)
	}
	if d.Source != SourceCustom {
		t.Errorf("expected source forced to custom, got %q", d.Source)
	}
	if len(ix.rows) != 1 {
		t.Errorf("expected row persisted, got %d", len(ix.rows))
	}
}

func TestCreateDrugInteraction_Rejected(t *testing.T) {
	svc, ix, _, _ := newTestService()

	tests := []struct {
		name string
		row  DrugInteraction
	}{
		{"missing drug name", DrugInteraction{InteractingDrug: "aspirin", Severity: SeverityMajor}},
		{"missing interacting drug", DrugInteraction{DrugName: "warfarin", Severity: SeverityMajor}},
		{"invalid severity", DrugInteraction{DrugName: "warfarin", InteractingDrug: "aspirin", Severity: "EXTREME"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := tt.row
			if err := svc.CreateDrugInteraction(context.Background(), &row); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if len(ix.rows) != 0 {
		t.Errorf("expected no rows persisted, got %d", len(ix.rows))
	}
}

func TestCreateFoodInteraction_Validation(t *testing.T) {
	svc, _, foods, _ := newTestService()

	f := &FoodInteraction{DrugName: "Warfarin", Food: " Spinach "}
	if err := svc.CreateFoodInteraction(context.Background(), f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.DrugName != "warfarin" || f.Food != "spinach" {
		t.Errorf("expected normalized fields, got %q / %q", f.DrugName, f.Food)
	}
	if f.Source != SourceCustom {
		t.Errorf("expected source custom, got %q", f.Source)
	}
	if len(foods.rows) != 1 {
		t.Errorf("expected row persisted, got %d", len(foods.rows))
	}

	if err := svc.CreateFoodInteraction(context.Background(), &FoodInteraction{Food: "spinach"}); err == nil {
		t.Error("expected error for missing drug name")
	}
	if err := svc.CreateFoodInteraction(context.Background(), &FoodInteraction{DrugName: "warfarin"}); err == nil {
		t.Error("expected error for missing food")
	}
}

func TestCreateCrossReactivity_Validation(t *testing.T) {
	svc, _, _, cross := newTestService()

	cr := &AllergenCrossReactivity{
		Allergen:               " Peanuts ",
		CrossReactiveAllergens: []string{"tree nuts"},
		RiskLevel:              "HIGH",
	}
	if err := svc.CreateCrossReactivity(context.Background(), cr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cr.Allergen != "peanuts" {
		t.Errorf("expected lower-cased allergen, got %q", cr.Allergen)
	}
	if cr.RiskLevel != RiskHigh {
		t.Errorf("expected lower-cased risk level, got %q", cr.RiskLevel)
	}
	if cr.Source != SourceCustom {
		t.Errorf("expected source custom, got %q", cr.Source)
	}
	if len(cross.rows) != 1 {
		t.Errorf("expected row persisted, got %d", len(cross.rows))
	}

	missing := &AllergenCrossReactivity{Allergen: "latex", RiskLevel: RiskLow}
	if err := svc.CreateCrossReactivity(context.Background(), missing); err == nil {
		t.Error("expected error for empty cross-reactive list")
	}
	badRisk := &AllergenCrossReactivity{Allergen: "latex", CrossReactiveAllergens: []string{"banana"}, RiskLevel: "extreme"}
	if err := svc.CreateCrossReactivity(context.Background(), badRisk); err == nil {
		t.Error("expected error for unknown risk level")
	}
}

func TestUpdateDrugInteraction_Validates(t *testing.T) {
	svc, ix, _, _ := newTestService()

	d := &DrugInteraction{DrugName: "warfarin", InteractingDrug: "aspirin", Severity: SeverityMajor}
	if err := svc.CreateDrugInteraction(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Severity = "EXTREME"
	if err := svc.UpdateDrugInteraction(context.Background(), d); err == nil {
		t.Error("expected validation error on update")
	}

	d.Severity = SeverityModerate
	if err := svc.UpdateDrugInteraction(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, err := ix.GetByID(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Severity != SeverityModerate {
		t.Errorf("expected updated severity, got %s", stored.Severity)
	}
}
