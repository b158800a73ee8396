// Package snapshot persists the set of Connected sessions so the
// registry can be rehydrated after a restart. Only identity, scope and
// account binding are stored; proposals and pending actions are not.
package snapshot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/common/config"
	"github.com/dappbridge/walletd/internal/wc"
)

// Store persists connected-session snapshots.
type Store interface {
	// SaveAll replaces the stored snapshot with the given sessions.
	SaveAll(ctx context.Context, sessions []wc.Session) error

	// LoadAll returns the stored snapshot.
	LoadAll(ctx context.Context) ([]wc.Session, error)

	// Close releases store resources.
	Close() error
}

// Type represents the type of snapshot store
type Type string

const (
	TypeMemory Type = "memory"
	TypeDisk   Type = "disk"
	TypeRedis  Type = "redis"
	TypeDB     Type = "db"
)

// NewStore creates a snapshot store based on configuration
func NewStore(logger *zap.Logger, cfg *config.SnapshotConfig) (Store, error) {
	logger.Info("Initializing snapshot store", zap.String("type", cfg.Type))
	switch Type(cfg.Type) {
	case TypeMemory:
		return NewMemoryStore(logger), nil
	case TypeDisk:
		return NewDiskStore(logger, cfg.Disk.Path)
	case TypeRedis:
		return NewRedisStore(logger, cfg.Redis)
	case TypeDB:
		return NewDBStore(logger, cfg.Database)
	default:
		return nil, fmt.Errorf("unsupported snapshot store type: %s", cfg.Type)
	}
}
