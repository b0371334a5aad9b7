package mail

import (
	"context"
	"sync"

	"github.com/iota-uz/lms-admin/modules/userimport/services"
)

// Recorder keeps notifications in memory. Err, when set, is returned from
// every Notify call.
type Recorder struct {
	mu   sync.Mutex
	sent []services.Notification
	Err  error
}

func (r *Recorder) Notify(_ context.Context, n services.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) Sent() []services.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]services.Notification(nil), r.sent...)
}
