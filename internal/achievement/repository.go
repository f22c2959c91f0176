package achievement

import "context"

// Repository persists achievements. Lookups of missing rows return an error
// matching shared.ErrNotFound; soft-deleted rows are returned with Active false.
type Repository interface {
	GetByID(ctx context.Context, id int64) (Achievement, error)
	OwnerID(ctx context.Context, id int64) (int64, error)
	Create(ctx context.Context, a Achievement) (int64, error)
	// Update overwrites the mutable columns. The owner is never written.
	Update(ctx context.Context, a Achievement) error
	// List returns active achievements matching filter, newest first, along
	// with the total match count.
	List(ctx context.Context, filter ListFilter) ([]Achievement, int, error)
	CountPending(ctx context.Context) (int, error)
}
