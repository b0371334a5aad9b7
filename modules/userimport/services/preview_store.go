package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/lms-admin/pkg/serrors"
)

var (
	ErrPreviewNotFound  = serrors.NewError("USERIMPORT_PREVIEW_NOT_FOUND", "preview not found or expired", "")
	ErrPreviewCommitted = serrors.NewError("USERIMPORT_PREVIEW_COMMITTED", "preview already committed", "")
	ErrPreviewBusy      = serrors.NewError("USERIMPORT_PREVIEW_BUSY", "preview is being committed", "")
	ErrNotCommitted     = serrors.NewError("USERIMPORT_NOT_COMMITTED", "preview has not been committed yet", "")
)

type previewState int

const (
	statePending previewState = iota
	stateCommitting
	stateCommitted
)

type storedPreview struct {
	preview   *Preview
	result    *CommitResult
	state     previewState
	expiresAt time.Time
}

// PreviewStore keeps previews between the preview and commit requests.
// Entries expire ttl after they were stored or last committed.
type PreviewStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uuid.UUID]*storedPreview
}

func NewPreviewStore(ttl time.Duration) *PreviewStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &PreviewStore{ttl: ttl, now: time.Now, entries: map[uuid.UUID]*storedPreview{}}
}

// Put stores p and returns its expiry.
func (s *PreviewStore) Put(p *Preview) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	exp := s.now().Add(s.ttl)
	s.entries[p.BatchID] = &storedPreview{preview: p, expiresAt: exp}
	return exp
}

func (s *PreviewStore) lookup(id uuid.UUID) (*storedPreview, error) {
	e, ok := s.entries[id]
	if !ok || s.now().After(e.expiresAt) {
		delete(s.entries, id)
		return nil, ErrPreviewNotFound
	}
	return e, nil
}

func (s *PreviewStore) Get(id uuid.UUID) (*Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.preview, nil
}

// Claim marks a pending preview as being committed. Only one caller wins.
func (s *PreviewStore) Claim(id uuid.UUID) (*Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	switch e.state {
	case stateCommitting:
		return nil, ErrPreviewBusy
	case stateCommitted:
		return nil, ErrPreviewCommitted
	}
	e.state = stateCommitting
	return e.preview, nil
}

// Complete records the commit result; a nil result hands the preview back.
func (s *PreviewStore) Complete(id uuid.UUID, res *CommitResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	if res == nil {
		e.state = statePending
		return
	}
	e.state = stateCommitted
	e.result = res
	e.expiresAt = s.now().Add(s.ttl)
}

// Result returns the preview together with its commit result.
func (s *PreviewStore) Result(id uuid.UUID) (*Preview, *CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	if e.state != stateCommitted {
		return e.preview, nil, ErrNotCommitted
	}
	return e.preview, e.result, nil
}

func (s *PreviewStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	return len(s.entries)
}

func (s *PreviewStore) sweep() {
	now := s.now()
	for id, e := range s.entries {
		if e.state != stateCommitting && now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
}
