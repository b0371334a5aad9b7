package reservation

import "context"

// Store answers whether a name is already spoken for by a pending job or a
// concurrent batch, and lets a batch claim one.
type Store interface {
	IsReserved(ctx context.Context, name string) (bool, error)
	// Reserve claims name for owner; false means someone else holds it.
	Reserve(ctx context.Context, name, owner string) (bool, error)
	Release(ctx context.Context, name, owner string) error
}
