package oversight

import (
	"context"
	"fmt"
	"strings"

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

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository { return &alertRepoPG{pool: pool} }

func (r *alertRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const alertCols = `id, severity, alert_type, detected_patterns, content_snippet,
	confidence_score, requires_review, auto_block, source, status,
	reviewed_by, reviewed_at, created_at`

func (r *alertRepoPG) scanAlert(row pgx.Row) (*StoredAlert, error) {
	var a StoredAlert
	err := row.Scan(&a.ID, &a.Severity, &a.AlertType, &a.DetectedPatterns, &a.ContentSnippet,
		&a.ConfidenceScore, &a.RequiresReview, &a.AutoBlock, &a.Source, &a.Status,
		&a.ReviewedBy, &a.ReviewedAt, &a.CreatedAt)
	return &a, err
}

func (r *alertRepoPG) CreateAlert(ctx context.Context, alert *StoredAlert) error {
	alert.ID = uuid.New()
	if alert.Status == "" {
		alert.Status = StatusPending
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_alert (id, severity, alert_type, detected_patterns, content_snippet,
			confidence_score, requires_review, auto_block, source, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		alert.ID, alert.Severity, alert.AlertType, alert.DetectedPatterns, alert.ContentSnippet,
		alert.ConfidenceScore, alert.RequiresReview, alert.AutoBlock, alert.Source, alert.Status).
		Scan(&alert.CreatedAt)
}

func (r *alertRepoPG) GetAlert(ctx context.Context, id uuid.UUID) (*StoredAlert, error) {
	return r.scanAlert(r.conn(ctx).QueryRow(ctx, `SELECT `+alertCols+` FROM clinical_alert WHERE id = $1`, id))
}

func (r *alertRepoPG) ListAlerts(ctx context.Context, filter AlertFilter, limit, offset int) ([]*StoredAlert, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	if filter.Severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", idx))
		args = append(args, filter.Severity)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinical_alert `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM clinical_alert %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		alertCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*StoredAlert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *alertRepoPG) UpdateReview(ctx context.Context, alert *StoredAlert) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_alert SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1`,
		alert.ID, alert.Status, alert.ReviewedBy, alert.ReviewedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
