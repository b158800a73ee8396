package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dappbridge/walletd/internal/common/config"
	"github.com/dappbridge/walletd/internal/wc"
)

// ErrInvalidDatabaseType is returned when an unsupported database type is specified
var ErrInvalidDatabaseType = errors.New("invalid database type")

// SessionModel is the database row for one connected session. Peer
// metadata, scope and accounts are stored as JSON blobs.
type SessionModel struct {
	PeerID       string    `gorm:"primaryKey"`
	Topic        string    `gorm:"index"`
	Version      string
	Peer         string    `gorm:"type:text"`
	Scope        string    `gorm:"type:text"`
	Accounts     string    `gorm:"type:text"`
	CreatedAt    time.Time
	LastActivity time.Time
}

// TableName overrides the default table name
func (SessionModel) TableName() string {
	return "wc_sessions"
}

// DBStore implements Store using a database
type DBStore struct {
	logger *zap.Logger
	db     *gorm.DB
}

var _ Store = (*DBStore)(nil)

// NewDBStore creates a new database-based snapshot store
func NewDBStore(logger *zap.Logger, cfg config.SnapshotDatabaseConfig) (*DBStore, error) {
	logger = logger.Named("snapshot.db")

	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, ErrInvalidDatabaseType
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto migrate the schema
	if err := db.AutoMigrate(&SessionModel{}); err != nil {
		return nil, err
	}

	return &DBStore{
		logger: logger,
		db:     db,
	}, nil
}

// SaveAll implements Store.SaveAll
func (s *DBStore) SaveAll(ctx context.Context, sessions []wc.Session) error {
	models := make([]SessionModel, 0, len(sessions))
	for _, sess := range sessions {
		m, err := toModel(sess)
		if err != nil {
			return err
		}
		models = append(models, m)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&SessionModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.Create(&models).Error
	})
}

// LoadAll implements Store.LoadAll
func (s *DBStore) LoadAll(ctx context.Context) ([]wc.Session, error) {
	var models []SessionModel
	if err := s.db.WithContext(ctx).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}

	sessions := make([]wc.Session, 0, len(models))
	for _, m := range models {
		sess, err := fromModel(m)
		if err != nil {
			s.logger.Error("failed to decode session row",
				zap.String("peer_id", m.PeerID),
				zap.Error(err))
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Close implements Store.Close
func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModel(sess wc.Session) (SessionModel, error) {
	peer, err := json.Marshal(sess.Peer)
	if err != nil {
		return SessionModel{}, err
	}
	scope, err := json.Marshal(sess.Scope)
	if err != nil {
		return SessionModel{}, err
	}
	accounts, err := json.Marshal(sess.Accounts)
	if err != nil {
		return SessionModel{}, err
	}
	return SessionModel{
		PeerID:       sess.PeerID,
		Topic:        sess.Topic,
		Version:      sess.Version,
		Peer:         string(peer),
		Scope:        string(scope),
		Accounts:     string(accounts),
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
	}, nil
}

func fromModel(m SessionModel) (wc.Session, error) {
	sess := wc.Session{
		PeerID:       m.PeerID,
		Topic:        m.Topic,
		Version:      m.Version,
		Status:       wc.StatusConnected,
		CreatedAt:    m.CreatedAt,
		LastActivity: m.LastActivity,
	}
	if err := json.Unmarshal([]byte(m.Peer), &sess.Peer); err != nil {
		return wc.Session{}, err
	}
	if err := json.Unmarshal([]byte(m.Scope), &sess.Scope); err != nil {
		return wc.Session{}, err
	}
	if err := json.Unmarshal([]byte(m.Accounts), &sess.Accounts); err != nil {
		return wc.Session{}, err
	}
	return sess, nil
}
