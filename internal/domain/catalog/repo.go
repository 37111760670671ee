package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists catalog items across all kinds.
type Repository interface {
	Create(ctx context.Context, it *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	GetByName(ctx context.Context, kind, name string) (*Item, error)
	Update(ctx context.Context, it *Item) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByKind(ctx context.Context, kind, query string, limit, offset int) ([]*Item, int, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Item, error)
}
