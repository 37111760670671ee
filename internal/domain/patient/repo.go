package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists patients. List and Search exclude soft-deleted rows
// unless includeDeleted is set.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByBillingCode(ctx context.Context, code string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	SoftDelete(ctx context.Context, id uuid.UUID, reason string) error
	Restore(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, includeDeleted bool, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error)
}
