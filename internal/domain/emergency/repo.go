package emergency

import (
	"context"

	"github.com/google/uuid"
)

// CheckRepository persists emergency check outcomes for later review.
type CheckRepository interface {
	CreateCheck(ctx context.Context, check *CheckRecord) error
	GetCheck(ctx context.Context, id uuid.UUID) (*CheckRecord, error)
	ListChecks(ctx context.Context, limit, offset int) ([]*CheckRecord, int, error)
	ListChecksByAction(ctx context.Context, action string, limit, offset int) ([]*CheckRecord, int, error)
}
