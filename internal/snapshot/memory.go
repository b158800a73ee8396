package snapshot

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/wc"
)

// MemoryStore implements Store using in-memory storage. Snapshots do
// not survive a restart; useful for tests and ephemeral setups.
type MemoryStore struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	sessions []wc.Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory snapshot store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		logger: logger.Named("snapshot.memory"),
	}
}

// SaveAll implements Store.SaveAll
func (s *MemoryStore) SaveAll(_ context.Context, sessions []wc.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]wc.Session(nil), sessions...)
	return nil
}

// LoadAll implements Store.LoadAll
func (s *MemoryStore) LoadAll(_ context.Context) ([]wc.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]wc.Session(nil), s.sessions...), nil
}

// Close implements Store.Close
func (s *MemoryStore) Close() error {
	return nil
}
