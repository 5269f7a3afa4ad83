package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinsafe/clinsafe/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Drug Interaction Repository ===========

type drugInteractionRepoPG struct{ pool *pgxpool.Pool }

func NewDrugInteractionRepoPG(pool *pgxpool.Pool) DrugInteractionRepository {
	return &drugInteractionRepoPG{pool: pool}
}

func (r *drugInteractionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const interactionCols = `id, drug_name, interacting_drug, severity, description, mechanism,
	clinical_recommendation, evidence_level, source, created_at, updated_at`

func (r *drugInteractionRepoPG) scanInteraction(row pgx.Row) (*DrugInteraction, error) {
	var d DrugInteraction
	err := row.Scan(&d.ID, &d.DrugName, &d.InteractingDrug, &d.Severity, &d.Description, &d.Mechanism,
		&d.ClinicalRecommendation, &d.EvidenceLevel, &d.Source, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *drugInteractionRepoPG) Create(ctx context.Context, d *DrugInteraction) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO drug_interaction (id, drug_name, interacting_drug, severity, description,
			mechanism, clinical_recommendation, evidence_level, source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		d.ID, d.DrugName, d.InteractingDrug, d.Severity, d.Description,
		d.Mechanism, d.ClinicalRecommendation, d.EvidenceLevel, d.Source)
	return err
}

func (r *drugInteractionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DrugInteraction, error) {
	return r.scanInteraction(r.conn(ctx).QueryRow(ctx, `SELECT `+interactionCols+` FROM drug_interaction WHERE id = $1`, id))
}

func (r *drugInteractionRepoPG) Update(ctx context.Context, d *DrugInteraction) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE drug_interaction SET drug_name=$2, interacting_drug=$3, severity=$4, description=$5,
			mechanism=$6, clinical_recommendation=$7, evidence_level=$8, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.DrugName, d.InteractingDrug, d.Severity, d.Description,
		d.Mechanism, d.ClinicalRecommendation, d.EvidenceLevel)
	return err
}

func (r *drugInteractionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM drug_interaction WHERE id = $1`, id)
	return err
}

func (r *drugInteractionRepoPG) List(ctx context.Context, limit, offset int) ([]*DrugInteraction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM drug_interaction`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+interactionCols+` FROM drug_interaction ORDER BY drug_name, interacting_drug LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DrugInteraction
	for rows.Next() {
		d, err := r.scanInteraction(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

func (r *drugInteractionRepoPG) ListAll(ctx context.Context) ([]*DrugInteraction, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+interactionCols+` FROM drug_interaction ORDER BY drug_name, interacting_drug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DrugInteraction
	for rows.Next() {
		d, err := r.scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// =========== Food Interaction Repository ===========

type foodInteractionRepoPG struct{ pool *pgxpool.Pool }

func NewFoodInteractionRepoPG(pool *pgxpool.Pool) FoodInteractionRepository {
	return &foodInteractionRepoPG{pool: pool}
}

func (r *foodInteractionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const foodCols = `id, drug_name, food, effect, avoidance_required, source, created_at, updated_at`

func (r *foodInteractionRepoPG) scanFood(row pgx.Row) (*FoodInteraction, error) {
	var f FoodInteraction
	err := row.Scan(&f.ID, &f.DrugName, &f.Food, &f.Effect, &f.AvoidanceRequired, &f.Source, &f.CreatedAt, &f.UpdatedAt)
	return &f, err
}

func (r *foodInteractionRepoPG) Create(ctx context.Context, f *FoodInteraction) error {
	f.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO food_interaction (id, drug_name, food, effect, avoidance_required, source)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		f.ID, f.DrugName, f.Food, f.Effect, f.AvoidanceRequired, f.Source)
	return err
}

func (r *foodInteractionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FoodInteraction, error) {
	return r.scanFood(r.conn(ctx).QueryRow(ctx, `SELECT `+foodCols+` FROM food_interaction WHERE id = $1`, id))
}

func (r *foodInteractionRepoPG) Update(ctx context.Context, f *FoodInteraction) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE food_interaction SET drug_name=$2, food=$3, effect=$4, avoidance_required=$5, updated_at=NOW()
		WHERE id = $1`,
		f.ID, f.DrugName, f.Food, f.Effect, f.AvoidanceRequired)
	return err
}

func (r *foodInteractionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM food_interaction WHERE id = $1`, id)
	return err
}

func (r *foodInteractionRepoPG) List(ctx context.Context, limit, offset int) ([]*FoodInteraction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM food_interaction`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+foodCols+` FROM food_interaction ORDER BY drug_name, food LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*FoodInteraction
	for rows.Next() {
		f, err := r.scanFood(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, f)
	}
	return items, total, nil
}

func (r *foodInteractionRepoPG) ListAll(ctx context.Context) ([]*FoodInteraction, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+foodCols+` FROM food_interaction ORDER BY drug_name, food`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*FoodInteraction
	for rows.Next() {
		f, err := r.scanFood(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

// =========== Cross-Reactivity Repository ===========

type crossReactivityRepoPG struct{ pool *pgxpool.Pool }

func NewCrossReactivityRepoPG(pool *pgxpool.Pool) CrossReactivityRepository {
	return &crossReactivityRepoPG{pool: pool}
}

func (r *crossReactivityRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const crossReactivityCols = `id, allergen, cross_reactive_allergens, risk_level, recommendation, source, created_at, updated_at`

func (r *crossReactivityRepoPG) scanCrossReactivity(row pgx.Row) (*AllergenCrossReactivity, error) {
	var cr AllergenCrossReactivity
	err := row.Scan(&cr.ID, &cr.Allergen, &cr.CrossReactiveAllergens, &cr.RiskLevel, &cr.Recommendation, &cr.Source, &cr.CreatedAt, &cr.UpdatedAt)
	return &cr, err
}

func (r *crossReactivityRepoPG) Create(ctx context.Context, cr *AllergenCrossReactivity) error {
	cr.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO allergen_cross_reactivity (id, allergen, cross_reactive_allergens, risk_level, recommendation, source)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		cr.ID, cr.Allergen, cr.CrossReactiveAllergens, cr.RiskLevel, cr.Recommendation, cr.Source)
	return err
}

func (r *crossReactivityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AllergenCrossReactivity, error) {
	return r.scanCrossReactivity(r.conn(ctx).QueryRow(ctx, `SELECT `+crossReactivityCols+` FROM allergen_cross_reactivity WHERE id = $1`, id))
}

func (r *crossReactivityRepoPG) Update(ctx context.Context, cr *AllergenCrossReactivity) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE allergen_cross_reactivity SET allergen=$2, cross_reactive_allergens=$3, risk_level=$4, recommendation=$5, updated_at=NOW()
		WHERE id = $1`,
		cr.ID, cr.Allergen, cr.CrossReactiveAllergens, cr.RiskLevel, cr.Recommendation)
	return err
}

func (r *crossReactivityRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM allergen_cross_reactivity WHERE id = $1`, id)
	return err
}

func (r *crossReactivityRepoPG) List(ctx context.Context, limit, offset int) ([]*AllergenCrossReactivity, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM allergen_cross_reactivity`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+crossReactivityCols+` FROM allergen_cross_reactivity ORDER BY allergen LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AllergenCrossReactivity
	for rows.Next() {
		cr, err := r.scanCrossReactivity(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, cr)
	}
	return items, total, nil
}

func (r *crossReactivityRepoPG) ListAll(ctx context.Context) ([]*AllergenCrossReactivity, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+crossReactivityCols+` FROM allergen_cross_reactivity ORDER BY allergen`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AllergenCrossReactivity
	for rows.Next() {
		cr, err := r.scanCrossReactivity(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cr)
	}
	return items, rows.Err()
}
