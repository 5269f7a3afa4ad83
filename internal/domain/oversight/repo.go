package oversight

import (
	"context"

	"github.com/google/uuid"
)

// AlertFilter narrows alert listings. Zero values mean no filter.
type AlertFilter struct {
	Status   string
	Severity string
}

// AlertRepository persists scanner alerts for the review workflow.
type AlertRepository interface {
	CreateAlert(ctx context.Context, alert *StoredAlert) error
	GetAlert(ctx context.Context, id uuid.UUID) (*StoredAlert, error)
	ListAlerts(ctx context.Context, filter AlertFilter, limit, offset int) ([]*StoredAlert, int, error)
	UpdateReview(ctx context.Context, alert *StoredAlert) error
}
