package memory

import (
	"context"
	"sync"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ReceiptStore remembers idempotency keys in process memory.
type ReceiptStore struct {
	mu   sync.Mutex
	keys map[string]int64
}

// NewReceiptStore creates an empty store.
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{keys: make(map[string]int64)}
}

// Seen reports whether key was remembered.
func (s *ReceiptStore) Seen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

// Remember records key. Repeated keys keep the first version.
func (s *ReceiptStore) Remember(_ context.Context, key string, _ shared.TelegramID, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; !ok {
		s.keys[key] = version
	}
	return nil
}
