// Package memory provides in-process implementations of the repositories.
// They back tests and the server when no database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ProgressRepository implements ledger.Repository over a map.
// Stored states are kept as encoded blobs so callers never share memory with the store.
type ProgressRepository struct {
	mu     sync.Mutex
	blobs  map[shared.TelegramID][]byte
	policy ledger.Policy
	now    func() time.Time
}

var _ ledger.Repository = (*ProgressRepository)(nil)

// NewProgressRepository creates an empty repository.
func NewProgressRepository(policy ledger.Policy) *ProgressRepository {
	return &ProgressRepository{
		blobs:  make(map[shared.TelegramID][]byte),
		policy: policy,
		now:    time.Now,
	}
}

// SetClock overrides the time source.
func (r *ProgressRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Get returns a copy of the stored state.
func (r *ProgressRepository) Get(_ context.Context, id shared.TelegramID) (*ledger.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(id)
}

// GetMany returns the states that exist among ids.
func (r *ProgressRepository) GetMany(_ context.Context, ids []shared.TelegramID) (map[shared.TelegramID]*ledger.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[shared.TelegramID]*ledger.State, len(ids))
	for _, id := range ids {
		s, err := r.load(id)
		if shared.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = s
	}
	return out, nil
}

func (r *ProgressRepository) load(id shared.TelegramID) (*ledger.State, error) {
	blob, ok := r.blobs[id]
	if !ok {
		return nil, shared.ErrStateNotFound
	}
	s, err := ledger.Decode(blob)
	if err != nil {
		return nil, err
	}
	s.SetPolicy(r.policy)
	return s, nil
}

// Update applies fn under the repository lock.
func (r *ProgressRepository) Update(_ context.Context, id shared.TelegramID, fn ledger.UpdateFunc) (*ledger.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.load(id)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}

	next, err := ledger.Prepare(id, current, fn, r.policy, r.now())
	if err != nil {
		return nil, err
	}
	if err := r.store(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Put stores s only if its version supersedes the stored one.
func (r *ProgressRepository) Put(_ context.Context, s *ledger.State) (ledger.PutResult, error) {
	if err := ledger.ValidateIncoming(s); err != nil {
		return ledger.PutResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(s.TelegramID)
	if err != nil && !shared.IsNotFound(err) {
		return ledger.PutResult{}, err
	}

	switch ledger.ResolvePut(stored, s) {
	case ledger.PutDuplicate:
		return ledger.PutResult{Current: stored}, nil
	case ledger.PutConflict:
		return ledger.PutResult{Current: stored}, ledger.ConflictError(stored, s)
	}

	if err := r.store(s); err != nil {
		return ledger.PutResult{}, err
	}
	return ledger.PutResult{Applied: true, Current: s}, nil
}

func (r *ProgressRepository) store(s *ledger.State) error {
	blob, err := ledger.Encode(s)
	if err != nil {
		return err
	}
	r.blobs[s.TelegramID] = blob
	return nil
}
