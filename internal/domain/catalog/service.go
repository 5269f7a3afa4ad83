package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service manages custom catalog rows and maintains the merged in-memory
// snapshot handed to the detection engines. The snapshot is rebuilt on demand
// and swapped atomically; engines keep whatever snapshot they were given.
type Service struct {
	interactions      DrugInteractionRepository
	foods             FoodInteractionRepository
	crossReactivities CrossReactivityRepository
	logger            zerolog.Logger

	mu       sync.RWMutex
	snapshot *Catalog
}

func NewService(
	interactions DrugInteractionRepository,
	foods FoodInteractionRepository,
	crossReactivities CrossReactivityRepository,
	logger zerolog.Logger,
) *Service {
	return &Service{
		interactions:      interactions,
		foods:             foods,
		crossReactivities: crossReactivities,
		logger:            logger,
		snapshot:          Default(),
	}
}

// Snapshot returns the current merged catalog. Never nil.
func (s *Service) Snapshot() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Reload rebuilds the snapshot from built-in entries plus custom database
// rows and swaps it in. Custom rows win over built-ins on the same key pair.
func (s *Service) Reload(ctx context.Context) (*Catalog, error) {
	snap, err := s.buildSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	s.logger.Info().
		Int("drug_entries", snap.Stats().DrugEntries).
		Int("drug_interactions", snap.Stats().DrugInteractions).
		Int("food_interactions", snap.Stats().FoodInteractions).
		Int("allergens", snap.Stats().Allergens).
		Int("custom_rows", snap.Stats().CustomRows).
		Msg("catalog snapshot reloaded")
	return snap, nil
}

func (s *Service) buildSnapshot(ctx context.Context) (*Catalog, error) {
	builtinIx, builtinFoods, builtinCross := Builtin()

	customIx, err := s.interactions.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load drug interactions: %w", err)
	}
	customFoods, err := s.foods.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load food interactions: %w", err)
	}
	customCross, err := s.crossReactivities.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cross-reactivities: %w", err)
	}

	for _, row := range customIx {
		if !validInteractionSeverities[row.Severity] {
			s.logger.Warn().Str("drug", row.DrugName).Str("severity", row.Severity).
				Msg("skipping interaction row with unknown severity")
		}
	}
	for _, row := range customCross {
		if !validRiskLevels[row.RiskLevel] {
			s.logger.Warn().Str("allergen", row.Allergen).Str("risk_level", row.RiskLevel).
				Msg("skipping cross-reactivity row with unknown risk level")
		}
	}

	ix := mergeInteractions(builtinIx, customIx)
	foods := mergeFoods(builtinFoods, customFoods)
	cross := mergeCrossReactivities(builtinCross, customCross)
	return NewCatalog(ix, foods, cross), nil
}

func mergeInteractions(builtin, custom []*DrugInteraction) []*DrugInteraction {
	overridden := make(map[string]bool, len(custom))
	for _, c := range custom {
		overridden[interactionKey(c.DrugName, c.InteractingDrug)] = true
	}
	merged := make([]*DrugInteraction, 0, len(builtin)+len(custom))
	for _, b := range builtin {
		if !overridden[interactionKey(b.DrugName, b.InteractingDrug)] {
			merged = append(merged, b)
		}
	}
	return append(merged, custom...)
}

func mergeFoods(builtin, custom []*FoodInteraction) []*FoodInteraction {
	overridden := make(map[string]bool, len(custom))
	for _, c := range custom {
		overridden[interactionKey(c.DrugName, c.Food)] = true
	}
	merged := make([]*FoodInteraction, 0, len(builtin)+len(custom))
	for _, b := range builtin {
		if !overridden[interactionKey(b.DrugName, b.Food)] {
			merged = append(merged, b)
		}
	}
	return append(merged, custom...)
}

func mergeCrossReactivities(builtin, custom []*AllergenCrossReactivity) []*AllergenCrossReactivity {
	overridden := make(map[string]bool, len(custom))
	for _, c := range custom {
		overridden[normalizeKey(c.Allergen)] = true
	}
	merged := make([]*AllergenCrossReactivity, 0, len(builtin)+len(custom))
	for _, b := range builtin {
		if !overridden[normalizeKey(b.Allergen)] {
			merged = append(merged, b)
		}
	}
	return append(merged, custom...)
}

func interactionKey(a, b string) string {
	return normalizeKey(a) + "|" + normalizeKey(b)
}

// -- Drug Interaction --

func (s *Service) CreateDrugInteraction(ctx context.Context, d *DrugInteraction) error {
	if err := validateInteraction(d); err != nil {
		return err
	}
	d.Source = SourceCustom
	return s.interactions.Create(ctx, d)
}

func (s *Service) GetDrugInteraction(ctx context.Context, id uuid.UUID) (*DrugInteraction, error) {
	return s.interactions.GetByID(ctx, id)
}

func (s *Service) UpdateDrugInteraction(ctx context.Context, d *DrugInteraction) error {
	if err := validateInteraction(d); err != nil {
		return err
	}
	return s.interactions.Update(ctx, d)
}

func (s *Service) DeleteDrugInteraction(ctx context.Context, id uuid.UUID) error {
	return s.interactions.Delete(ctx, id)
}

func (s *Service) ListDrugInteractions(ctx context.Context, limit, offset int) ([]*DrugInteraction, int, error) {
	return s.interactions.List(ctx, limit, offset)
}

func validateInteraction(d *DrugInteraction) error {
	d.DrugName = normalizeKey(d.DrugName)
	d.InteractingDrug = normalizeKey(d.InteractingDrug)
	d.Severity = strings.ToUpper(strings.TrimSpace(d.Severity))
	if d.DrugName == "" {
		return fmt.Errorf("drug_name is required")
	}
	if d.InteractingDrug == "" {
		return fmt.Errorf("interacting_drug is required")
	}
	if !validInteractionSeverities[d.Severity] {
		return fmt.Errorf("invalid severity: %s", d.Severity)
	}
	return nil
}

// -- Food Interaction --

func (s *Service) CreateFoodInteraction(ctx context.Context, f *FoodInteraction) error {
	if err := validateFood(f); err != nil {
		return err
	}
	f.Source = SourceCustom
	return s.foods.Create(ctx, f)
}

func (s *Service) GetFoodInteraction(ctx context.Context, id uuid.UUID) (*FoodInteraction, error) {
	return s.foods.GetByID(ctx, id)
}

func (s *Service) UpdateFoodInteraction(ctx context.Context, f *FoodInteraction) error {
	if err := validateFood(f); err != nil {
		return err
	}
	return s.foods.Update(ctx, f)
}

func (s *Service) DeleteFoodInteraction(ctx context.Context, id uuid.UUID) error {
	return s.foods.Delete(ctx, id)
}

func (s *Service) ListFoodInteractions(ctx context.Context, limit, offset int) ([]*FoodInteraction, int, error) {
	return s.foods.List(ctx, limit, offset)
}

func validateFood(f *FoodInteraction) error {
	f.DrugName = normalizeKey(f.DrugName)
	f.Food = normalizeKey(f.Food)
	if f.DrugName == "" {
		return fmt.Errorf("drug_name is required")
	}
	if f.Food == "" {
		return fmt.Errorf("food is required")
	}
	return nil
}

// -- Allergen Cross-Reactivity --

func (s *Service) CreateCrossReactivity(ctx context.Context, cr *AllergenCrossReactivity) error {
	if err := validateCrossReactivity(cr); err != nil {
		return err
	}
	cr.Source = SourceCustom
	return s.crossReactivities.Create(ctx, cr)
}

func (s *Service) GetCrossReactivity(ctx context.Context, id uuid.UUID) (*AllergenCrossReactivity, error) {
	return s.crossReactivities.GetByID(ctx, id)
}

func (s *Service) UpdateCrossReactivity(ctx context.Context, cr *AllergenCrossReactivity) error {
	if err := validateCrossReactivity(cr); err != nil {
		return err
	}
	return s.crossReactivities.Update(ctx, cr)
}

func (s *Service) DeleteCrossReactivity(ctx context.Context, id uuid.UUID) error {
	return s.crossReactivities.Delete(ctx, id)
}

func (s *Service) ListCrossReactivities(ctx context.Context, limit, offset int) ([]*AllergenCrossReactivity, int, error) {
	return s.crossReactivities.List(ctx, limit, offset)
}

func validateCrossReactivity(cr *AllergenCrossReactivity) error {
	cr.Allergen = normalizeKey(cr.Allergen)
	cr.RiskLevel = strings.ToLower(strings.TrimSpace(cr.RiskLevel))
	if cr.Allergen == "" {
		return fmt.Errorf("allergen is required")
	}
	if len(cr.CrossReactiveAllergens) == 0 {
		return fmt.Errorf("cross_reactive_allergens is required")
	}
	if !validRiskLevels[cr.RiskLevel] {
		return fmt.Errorf("invalid risk_level: %s", cr.RiskLevel)
	}
	return nil
}
