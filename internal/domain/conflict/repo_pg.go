package conflict

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

const checkCols = `id, subject_id, conflict_count, safety_score, has_conflicts,
	requires_clinical_review, auto_resolution_applied, detector_failure,
	checks_medication, checks_allergy, checks_condition, checked_by, created_at`

func (r *checkRepoPG) scanCheck(row pgx.Row) (*CheckRecord, error) {
	var c CheckRecord
	err := row.Scan(&c.ID, &c.SubjectID, &c.ConflictCount, &c.SafetyScore, &c.HasConflicts,
		&c.RequiresClinicalReview, &c.AutoResolutionApplied, &c.DetectorFailure,
		&c.ChecksMedication, &c.ChecksAllergy, &c.ChecksCondition, &c.CheckedBy, &c.CreatedAt)
	return &c, err
}

func (r *checkRepoPG) CreateCheck(ctx context.Context, check *CheckRecord, conflicts []Conflict) error {
	check.ID = uuid.New()
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		conn := r.conn(ctx)
		_, err := conn.Exec(ctx, `
			INSERT INTO conflict_check (id, subject_id, conflict_count, safety_score, has_conflicts,
				requires_clinical_review, auto_resolution_applied, detector_failure,
				checks_medication, checks_allergy, checks_condition, checked_by)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			check.ID, check.SubjectID, check.ConflictCount, check.SafetyScore, check.HasConflicts,
			check.RequiresClinicalReview, check.AutoResolutionApplied, check.DetectorFailure,
			check.ChecksMedication, check.ChecksAllergy, check.ChecksCondition, check.CheckedBy)
		if err != nil {
			return err
		}
		for _, c := range conflicts {
			_, err := conn.Exec(ctx, `
				INSERT INTO detected_conflict (id, check_id, type, severity, description,
					conflicting_data, detected_at, resolved)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				uuid.New(), check.ID, c.Type, c.Severity, c.Description,
				c.ConflictingData, c.DetectedAt, c.Resolved)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *checkRepoPG) GetCheck(ctx context.Context, id uuid.UUID) (*CheckRecord, []*StoredConflict, error) {
	check, err := r.scanCheck(r.conn(ctx).QueryRow(ctx, `SELECT `+checkCols+` FROM conflict_check WHERE id = $1`, id))
	if err != nil {
		return nil, nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, check_id, type, severity, description, conflicting_data, detected_at, resolved, created_at
		FROM detected_conflict WHERE check_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var conflicts []*StoredConflict
	for rows.Next() {
		var sc StoredConflict
		if err := rows.Scan(&sc.ID, &sc.CheckID, &sc.Type, &sc.Severity, &sc.Description,
			&sc.ConflictingData, &sc.DetectedAt, &sc.Resolved, &sc.CreatedAt); err != nil {
			return nil, nil, err
		}
		conflicts = append(conflicts, &sc)
	}
	return check, conflicts, rows.Err()
}

func (r *checkRepoPG) ListChecks(ctx context.Context, limit, offset int) ([]*CheckRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM conflict_check`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+checkCols+` FROM conflict_check ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CheckRecord
	for rows.Next() {
		c, err := r.scanCheck(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, nil
}

func (r *checkRepoPG) ListChecksBySubject(ctx context.Context, subjectID string, limit, offset int) ([]*CheckRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM conflict_check WHERE subject_id = $1`, subjectID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+checkCols+` FROM conflict_check WHERE subject_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, subjectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CheckRecord
	for rows.Next() {
		c, err := r.scanCheck(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, nil
}
