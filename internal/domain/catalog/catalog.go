package catalog

import "strings"

// DrugEntry consolidates everything the catalog knows about one drug.
type DrugEntry struct {
	Name             string             `json:"name"`
	Interactions     []*DrugInteraction `json:"interactions,omitempty"`
	FoodInteractions []*FoodInteraction `json:"food_interactions,omitempty"`
}

// AllergenEntry consolidates cross-reactivity data for one allergen.
type AllergenEntry struct {
	Allergen               string   `json:"allergen"`
	CrossReactiveAllergens []string `json:"cross_reactive_allergens"`
	RiskLevel              string   `json:"risk_level"`
	Recommendation         string   `json:"recommendation,omitempty"`
}

// Catalog is an immutable lookup snapshot over drug interactions, food
// interactions, and allergen cross-reactivities. Keys are lower-cased; lookup
// is exact match. A missing entry means "no known interaction", not an error.
// Snapshots are safe for unsynchronized concurrent use once constructed.
type Catalog struct {
	drugs     map[string]*DrugEntry
	allergens map[string]*AllergenEntry
	foodRules []*FoodInteraction
	stats     Stats
}

// NewCatalog builds a snapshot from the given rows. Rows with an empty key or
// an unrecognized severity/risk level are dropped; the service reload path
// logs them before handing rows over.
func NewCatalog(interactions []*DrugInteraction, foods []*FoodInteraction, crossReactivities []*AllergenCrossReactivity) *Catalog {
	c := &Catalog{
		drugs:     make(map[string]*DrugEntry),
		allergens: make(map[string]*AllergenEntry),
	}

	for _, ix := range interactions {
		key := normalizeKey(ix.DrugName)
		if key == "" || ix.InteractingDrug == "" || !validInteractionSeverities[ix.Severity] {
			continue
		}
		entry := c.drugs[key]
		if entry == nil {
			entry = &DrugEntry{Name: key}
			c.drugs[key] = entry
		}
		entry.Interactions = append(entry.Interactions, ix)
		c.stats.DrugInteractions++
		c.countSource(ix.Source)
	}

	for _, f := range foods {
		key := normalizeKey(f.DrugName)
		if key == "" || f.Food == "" {
			continue
		}
		entry := c.drugs[key]
		if entry == nil {
			entry = &DrugEntry{Name: key}
			c.drugs[key] = entry
		}
		entry.FoodInteractions = append(entry.FoodInteractions, f)
		c.foodRules = append(c.foodRules, f)
		c.stats.FoodInteractions++
		c.countSource(f.Source)
	}

	for _, cr := range crossReactivities {
		key := normalizeKey(cr.Allergen)
		if key == "" || !validRiskLevels[cr.RiskLevel] {
			continue
		}
		c.allergens[key] = &AllergenEntry{
			Allergen:               key,
			CrossReactiveAllergens: cr.CrossReactiveAllergens,
			RiskLevel:              cr.RiskLevel,
			Recommendation:         cr.Recommendation,
		}
		c.stats.Allergens++
		c.countSource(cr.Source)
	}

	c.stats.DrugEntries = len(c.drugs)
	return c
}

// Default returns a snapshot built from the built-in entries only.
func Default() *Catalog {
	return NewCatalog(Builtin())
}

// Builtin returns copies of the built-in rows, suitable for merging with
// custom rows loaded from the database.
func Builtin() ([]*DrugInteraction, []*FoodInteraction, []*AllergenCrossReactivity) {
	interactions := make([]*DrugInteraction, len(builtinInteractions))
	for i := range builtinInteractions {
		row := builtinInteractions[i]
		interactions[i] = &row
	}
	foods := make([]*FoodInteraction, len(builtinFoodInteractions))
	for i := range builtinFoodInteractions {
		row := builtinFoodInteractions[i]
		foods[i] = &row
	}
	crossReactivities := make([]*AllergenCrossReactivity, len(builtinCrossReactivities))
	for i := range builtinCrossReactivities {
		row := builtinCrossReactivities[i]
		crossReactivities[i] = &row
	}
	return interactions, foods, crossReactivities
}

// LookupDrug returns the entry for a generic drug name, or nil when the
// catalog has nothing recorded for it.
func (c *Catalog) LookupDrug(name string) *DrugEntry {
	return c.drugs[normalizeKey(name)]
}

// Interaction looks up a recorded interaction in the drug1 -> drug2 direction
// only. The catalog is not symmetrized; callers that need order-independent
// pair checks probe both directions themselves.
func (c *Catalog) Interaction(drug1, drug2 string) *DrugInteraction {
	entry := c.drugs[normalizeKey(drug1)]
	if entry == nil {
		return nil
	}
	for _, ix := range entry.Interactions {
		if strings.EqualFold(ix.InteractingDrug, strings.TrimSpace(drug2)) {
			return ix
		}
	}
	return nil
}

// LookupAllergen returns the cross-reactivity entry for an allergen, or nil.
func (c *Catalog) LookupAllergen(name string) *AllergenEntry {
	return c.allergens[normalizeKey(name)]
}

// FoodRulesFor returns every food rule whose drug key appears as a substring
// of the given generic name, so "simvastatin" picks up rules keyed "statin".
func (c *Catalog) FoodRulesFor(genericName string) []*FoodInteraction {
	name := normalizeKey(genericName)
	if name == "" {
		return nil
	}
	var rules []*FoodInteraction
	for _, f := range c.foodRules {
		if strings.Contains(name, normalizeKey(f.DrugName)) {
			rules = append(rules, f)
		}
	}
	return rules
}

// Stats reports entry counts for the snapshot.
func (c *Catalog) Stats() Stats {
	return c.stats
}

func (c *Catalog) countSource(source string) {
	if source == SourceCustom {
		c.stats.CustomRows++
	} else {
		c.stats.BuiltinRows++
	}
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
