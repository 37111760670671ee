package audit

import "context"

// Filter narrows a listing. Zero values mean no constraint.
type Filter struct {
	Action  string
	Entity  string
	ActorID string
}

// Repository is append-only: entries are never updated or deleted through
// the application.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
}
