package conflict

import (
	"context"

	"github.com/google/uuid"
)

type CheckRepository interface {
	CreateCheck(ctx context.Context, check *CheckRecord, conflicts []Conflict) error
	GetCheck(ctx context.Context, id uuid.UUID) (*CheckRecord, []*StoredConflict, error)
	ListChecks(ctx context.Context, limit, offset int) ([]*CheckRecord, int, error)
	ListChecksBySubject(ctx context.Context, subjectID string, limit, offset int) ([]*CheckRecord, int, error)
}
