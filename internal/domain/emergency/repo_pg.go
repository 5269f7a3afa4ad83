package emergency

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

type checkRepoPG struct{ pool *pgxpool.Pool }

func NewCheckRepoPG(pool *pgxpool.Pool) CheckRepository { return &checkRepoPG{pool: pool} }

func (r *checkRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const checkCols = `id, is_safe, action_required, warning_count, warnings,
	allergy_count, medication_count, ingredient_count,
	override_recorded, override_reason, checked_by, created_at`

func (r *checkRepoPG) scanCheck(row pgx.Row) (*CheckRecord, error) {
	var c CheckRecord
	err := row.Scan(&c.ID, &c.IsSafe, &c.ActionRequired, &c.WarningCount, &c.Warnings,
		&c.AllergyCount, &c.MedicationCount, &c.IngredientCount,
		&c.OverrideRecorded, &c.OverrideReason, &c.CheckedBy, &c.CreatedAt)
	return &c, err
}

func (r *checkRepoPG) CreateCheck(ctx context.Context, check *CheckRecord) error {
	check.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO emergency_check (id, is_safe, action_required, warning_count, warnings,
			allergy_count, medication_count, ingredient_count,
			override_recorded, override_reason, checked_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at`,
		check.ID, check.IsSafe, check.ActionRequired, check.WarningCount, check.Warnings,
		check.AllergyCount, check.MedicationCount, check.IngredientCount,
		check.OverrideRecorded, check.OverrideReason, check.CheckedBy).
		Scan(&check.CreatedAt)
}

func (r *checkRepoPG) GetCheck(ctx context.Context, id uuid.UUID) (*CheckRecord, error) {
	return r.scanCheck(r.conn(ctx).QueryRow(ctx, `SELECT `+checkCols+` FROM emergency_check WHERE id = $1`, id))
}

func (r *checkRepoPG) ListChecks(ctx context.Context, limit, offset int) ([]*CheckRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM emergency_check`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+checkCols+` FROM emergency_check ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *checkRepoPG) ListChecksByAction(ctx context.Context, action string, limit, offset int) ([]*CheckRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM emergency_check WHERE action_required = $1`, action).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+checkCols+` FROM emergency_check
		WHERE action_required = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, action, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *checkRepoPG) collect(rows pgx.Rows, total int) ([]*CheckRecord, int, error) {
	var items []*CheckRecord
	for rows.Next() {
		c, err := r.scanCheck(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
