package memory

import (
	"context"
	"sync"
)

// Transactor serializes row commits. It cannot roll back: a row that fails
// half way keeps the mutations it already made.
type Transactor struct {
	mu sync.Mutex
}

func (t *Transactor) InTx(ctx context.Context, fn func(context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}
