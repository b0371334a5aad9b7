package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

type reservationEntry struct {
	owner   string
	expires time.Time
}

// Reservations keeps username claims in process memory. Expired claims are
// dropped lazily on access.
type Reservations struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	names map[string]reservationEntry
}

func NewReservations(ttl time.Duration) *Reservations {
	return &Reservations{ttl: ttl, now: time.Now, names: map[string]reservationEntry{}}
}

func (r *Reservations) live(name string) (reservationEntry, bool) {
	e, ok := r.names[name]
	if !ok {
		return e, false
	}
	if r.ttl > 0 && r.now().After(e.expires) {
		delete(r.names, name)
		return e, false
	}
	return e, true
}

func (r *Reservations) IsReserved(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live(strings.ToLower(name))
	return ok, nil
}

func (r *Reservations) Reserve(_ context.Context, name, owner string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(name)
	if e, ok := r.live(key); ok {
		return e.owner == owner, nil
	}
	r.names[key] = reservationEntry{owner: owner, expires: r.now().Add(r.ttl)}
	return true, nil
}

func (r *Reservations) Release(_ context.Context, name, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(name)
	if e, ok := r.names[key]; ok && e.owner == owner {
		delete(r.names, key)
	}
	return nil
}

// Len returns the number of live claims.
func (r *Reservations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for name := range r.names {
		if _, ok := r.live(name); ok {
			n++
		}
	}
	return n
}
