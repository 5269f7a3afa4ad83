package hipaa

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DecisionSearchParams narrows a decision audit query. Zero-value filter
// fields are not applied, so an empty value matches every entry.
type DecisionSearchParams struct {
	DecisionType string `json:"decision_type" query:"decision_type"`
	SubjectID    string `json:"subject_id" query:"subject_id"`
	ActorRole    string `json:"actor_role" query:"actor_role"`
	Outcome      string `json:"outcome" query:"outcome"`

	StartTime *time.Time `json:"start_time" query:"start_time"`
	EndTime   *time.Time `json:"end_time" query:"end_time"`

	Limit     int    `json:"limit" query:"limit"`
	Offset    int    `json:"offset" query:"offset"`
	SortBy    string `json:"sort_by" query:"sort_by"`
	SortOrder string `json:"sort_order" query:"sort_order"`
}

// DecisionSearchResult is one page of matching entries plus the total match
// count across all pages.
type DecisionSearchResult struct {
	Entries []*DecisionEvent `json:"entries"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// TimeSpan bounds the recorded timestamps covered by a summary.
type TimeSpan struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

// DecisionSummary breaks matching entries down by decision type, outcome and
// actor role.
type DecisionSummary struct {
	TotalEntries   int            `json:"total_entries"`
	ByDecisionType map[string]int `json:"by_decision_type"`
	ByOutcome      map[string]int `json:"by_outcome"`
	ByActorRole    map[string]int `json:"by_actor_role"`
	TimeRange      TimeSpan       `json:"time_range"`
}

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// normalizeParams clamps pagination and whitelists the sort values. Sort
// params are interpolated into SQL, so anything unknown falls back to the
// default rather than passing through.
func normalizeParams(p *DecisionSearchParams) {
	switch {
	case p.Limit <= 0:
		p.Limit = defaultPageSize
	case p.Limit > maxPageSize:
		p.Limit = maxPageSize
	}
	p.Offset = max(p.Offset, 0)

	switch p.SortBy {
	case "recorded", "decision_type", "outcome":
	default:
		p.SortBy = "recorded"
	}
	switch p.SortOrder {
	case "asc", "desc":
	default:
		p.SortOrder = "desc"
	}
}

// buildFilter renders the non-zero filters as a WHERE clause with numbered
// placeholders and the matching argument list.
func buildFilter(p DecisionSearchParams) (string, []any) {
	var conds []string
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}

	if p.DecisionType != "" {
		add("decision_type = $%d", p.DecisionType)
	}
	if p.SubjectID != "" {
		add("subject_id = $%d", p.SubjectID)
	}
	if p.ActorRole != "" {
		add("actor_role = $%d", p.ActorRole)
	}
	if p.Outcome != "" {
		add("outcome = $%d", p.Outcome)
	}
	if p.StartTime != nil {
		add("recorded >= $%d", *p.StartTime)
	}
	if p.EndTime != nil {
		add("recorded <= $%d", *p.EndTime)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

const decisionCols = `id, decision_type, subject_id, actor_id, actor_name, actor_role,
	outcome, severity_summary, detail, request_id, override_reason, recorded, created_at`

func scanDecision(row pgx.Row) (*DecisionEvent, error) {
	var e DecisionEvent
	err := row.Scan(&e.ID, &e.DecisionType, &e.SubjectID, &e.ActorID, &e.ActorName, &e.ActorRole,
		&e.Outcome, &e.SeveritySummary, &e.Detail, &e.RequestID, &e.OverrideReason, &e.Recorded, &e.CreatedAt)
	return &e, err
}

// DecisionSearcher serves the audit review endpoints from the decision_audit
// table.
type DecisionSearcher struct {
	pool *pgxpool.Pool
}

// NewDecisionSearcher creates a searcher backed by the given connection pool.
func NewDecisionSearcher(pool *pgxpool.Pool) *DecisionSearcher {
	return &DecisionSearcher{pool: pool}
}

// Search returns the page of entries selected by p, newest first unless the
// sort params say otherwise.
func (s *DecisionSearcher) Search(ctx context.Context, p DecisionSearchParams) (*DecisionSearchResult, error) {
	normalizeParams(&p)
	where, args := buildFilter(p)

	var total int
	countQ := "SELECT COUNT(*) FROM decision_audit " + where
	if err := s.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("search decisions: count: %w", err)
	}

	pageQ := fmt.Sprintf("SELECT %s FROM decision_audit %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		decisionCols, where, p.SortBy, strings.ToUpper(p.SortOrder), len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, pageQ, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("search decisions: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*DecisionEvent, error) {
		return scanDecision(row)
	})
	if err != nil {
		return nil, fmt.Errorf("search decisions: collect: %w", err)
	}

	return &DecisionSearchResult{Entries: entries, Total: total, Limit: p.Limit, Offset: p.Offset}, nil
}

// GetEntry loads a single entry by ID. The error is pgx.ErrNoRows when no
// entry carries the ID.
func (s *DecisionSearcher) GetEntry(ctx context.Context, id uuid.UUID) (*DecisionEvent, error) {
	q := fmt.Sprintf("SELECT %s FROM decision_audit WHERE id = $1", decisionCols)
	return scanDecision(s.pool.QueryRow(ctx, q, id))
}

// Summary aggregates matching entries in one query. GROUPING SETS emits a
// count per decision type, per outcome and per actor role, plus a grand-total
// row carrying the overall count and time range; the GROUPING bitmask says
// which set produced each row. The grouped columns are NOT NULL, so COALESCE
// only papers over the nulls the grouping sets themselves introduce.
func (s *DecisionSearcher) Summary(ctx context.Context, p DecisionSearchParams) (*DecisionSummary, error) {
	where, args := buildFilter(p)
	q := fmt.Sprintf(`SELECT GROUPING(decision_type, outcome, actor_role),
	COALESCE(decision_type, ''), COALESCE(outcome, ''), COALESCE(actor_role, ''),
	COUNT(*), MIN(recorded), MAX(recorded)
FROM decision_audit %s
GROUP BY GROUPING SETS ((decision_type), (outcome), (actor_role), ())`, where)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize decisions: %w", err)
	}
	defer rows.Close()

	sum := &DecisionSummary{
		ByDecisionType: make(map[string]int),
		ByOutcome:      make(map[string]int),
		ByActorRole:    make(map[string]int),
	}
	for rows.Next() {
		var (
			set          int
			decisionType string
			outcome      string
			actorRole    string
			count        int
			first        *time.Time
			last         *time.Time
		)
		if err := rows.Scan(&set, &decisionType, &outcome, &actorRole, &count, &first, &last); err != nil {
			return nil, fmt.Errorf("summarize decisions: scan: %w", err)
		}
		switch set {
		case 0b011: // grouped by decision_type
			sum.ByDecisionType[decisionType] = count
		case 0b101: // grouped by outcome
			sum.ByOutcome[outcome] = count
		case 0b110: // grouped by actor_role
			sum.ByActorRole[actorRole] = count
		case 0b111: // grand total
			sum.TotalEntries = count
			if first != nil && last != nil {
				sum.TimeRange = TimeSpan{First: *first, Last: *last}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summarize decisions: %w", err)
	}
	return sum, nil
}

// queryAll streams every matching row oldest first. Exports ignore
// pagination; the whole match set goes out.
func (s *DecisionSearcher) queryAll(ctx context.Context, p DecisionSearchParams) (pgx.Rows, error) {
	where, args := buildFilter(p)
	q := fmt.Sprintf("SELECT %s FROM decision_audit %s ORDER BY recorded", decisionCols, where)
	return s.pool.Query(ctx, q, args...)
}

// csvHeader matches decisionCSVRecord column for column.
var csvHeader = []string{"ID", "Recorded", "DecisionType", "SubjectID", "ActorName",
	"ActorRole", "Outcome", "SeveritySummary", "RequestID", "OverrideReason"}

// ExportCSV streams every matching entry to w as CSV, oldest first.
func (s *DecisionSearcher) ExportCSV(ctx context.Context, p DecisionSearchParams, w io.Writer) error {
	rows, err := s.queryAll(ctx, p)
	if err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("export csv: header: %w", err)
	}
	for rows.Next() {
		e, err := scanDecision(rows)
		if err != nil {
			return fmt.Errorf("export csv: scan: %w", err)
		}
		if err := cw.Write(decisionCSVRecord(e)); err != nil {
			return fmt.Errorf("export csv: row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

func decisionCSVRecord(e *DecisionEvent) []string {
	return []string{
		e.ID.String(),
		e.Recorded.Format(time.RFC3339),
		e.DecisionType,
		e.SubjectID,
		e.ActorName,
		e.ActorRole,
		e.Outcome,
		e.SeveritySummary,
		e.RequestID,
		e.OverrideReason,
	}
}

// ExportJSON streams every matching entry to w as an indented JSON array,
// oldest first. Rows are encoded one at a time so a large export never sits
// in memory whole.
func (s *DecisionSearcher) ExportJSON(ctx context.Context, p DecisionSearchParams, w io.Writer) error {
	rows, err := s.queryAll(ctx, p)
	if err != nil {
		return fmt.Errorf("export json: %w", err)
	}
	defer rows.Close()

	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("export json: write: %w", err)
	}
	n := 0
	for rows.Next() {
		e, err := scanDecision(rows)
		if err != nil {
			return fmt.Errorf("export json: scan: %w", err)
		}
		out, err := json.MarshalIndent(e, "  ", "  ")
		if err != nil {
			return fmt.Errorf("export json: encode: %w", err)
		}
		sep := ",\n  "
		if n == 0 {
			sep = "\n  "
		}
		if _, err := io.WriteString(w, sep+string(out)); err != nil {
			return fmt.Errorf("export json: write: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("export json: %w", err)
	}
	if _, err := io.WriteString(w, "\n]\n"); err != nil {
		return fmt.Errorf("export json: write: %w", err)
	}
	return nil
}
