package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/wc"
)

const snapshotFile = "sessions.json"

// DiskStore implements Store using a JSON file on local disk.
type DiskStore struct {
	logger  *zap.Logger
	baseDir string
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore creates a new disk snapshot store
func NewDiskStore(logger *zap.Logger, baseDir string) (*DiskStore, error) {
	if baseDir == "" {
		baseDir = "data"
	}
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &DiskStore{
		logger:  logger.Named("snapshot.disk"),
		baseDir: baseDir,
	}, nil
}

// SaveAll implements Store.SaveAll
func (s *DiskStore) SaveAll(_ context.Context, sessions []wc.Session) error {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}

	// Write to a temp file first so a crash mid-write never corrupts
	// the previous snapshot.
	path := filepath.Join(s.baseDir, snapshotFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadAll implements Store.LoadAll
func (s *DiskStore) LoadAll(_ context.Context) ([]wc.Session, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, snapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []wc.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Close implements Store.Close
func (s *DiskStore) Close() error {
	return nil
}
