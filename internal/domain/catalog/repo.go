package catalog

import (
	"context"

	"github.com/google/uuid"
)

type DrugInteractionRepository interface {
	Create(ctx context.Context, d *DrugInteraction) error
	GetByID(ctx context.Context, id uuid.UUID) (*DrugInteraction, error)
	Update(ctx context.Context, d *DrugInteraction) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*DrugInteraction, int, error)
	ListAll(ctx context.Context) ([]*DrugInteraction, error)
}

type FoodInteractionRepository interface {
	Create(ctx context.Context, f *FoodInteraction) error
	GetByID(ctx context.Context, id uuid.UUID) (*FoodInteraction, error)
	Update(ctx context.Context, f *FoodInteraction) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*FoodInteraction, int, error)
	ListAll(ctx context.Context) ([]*FoodInteraction, error)
}

type CrossReactivityRepository interface {
	Create(ctx context.Context, cr *AllergenCrossReactivity) error
	GetByID(ctx context.Context, id uuid.UUID) (*AllergenCrossReactivity, error)
	Update(ctx context.Context, cr *AllergenCrossReactivity) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*AllergenCrossReactivity, int, error)
	ListAll(ctx context.Context) ([]*AllergenCrossReactivity, error)
}
