package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/common/config"
	"github.com/dappbridge/walletd/internal/wc"
)

func sampleSessions() []wc.Session {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []wc.Session{
		{
			PeerID:       "p1",
			Topic:        "topic-p1",
			Version:      "1",
			Peer:         wc.PeerMeta{Name: "dapp-one", URL: "https://one.example"},
			Scope:        wc.Scope{ChainIDs: []int64{1, 137}, Methods: []string{"eth_sign"}},
			Accounts:     []string{"0xabc"},
			Status:       wc.StatusConnected,
			CreatedAt:    created,
			LastActivity: created,
		},
		{
			PeerID:       "p2",
			Topic:        "topic-p2",
			Version:      "1",
			Peer:         wc.PeerMeta{Name: "dapp-two"},
			Scope:        wc.Scope{Methods: []string{"eth_sendTransaction"}},
			Accounts:     []string{"0xabc", "0xdef"},
			Status:       wc.StatusConnected,
			CreatedAt:    created.Add(time.Minute),
			LastActivity: created.Add(2 * time.Minute),
		},
	}
}

// byPeer indexes a snapshot for order-independent assertions.
func byPeer(sessions []wc.Session) map[string]wc.Session {
	out := make(map[string]wc.Session, len(sessions))
	for _, s := range sessions {
		out[s.PeerID] = s
	}
	return out
}

func testStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	seed := sampleSessions()
	require.NoError(t, store.SaveAll(ctx, seed))

	loaded, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	got := byPeer(loaded)
	for _, want := range seed {
		have, ok := got[want.PeerID]
		require.True(t, ok, "missing session %s", want.PeerID)
		assert.Equal(t, want.Topic, have.Topic)
		assert.Equal(t, want.Peer, have.Peer)
		assert.Equal(t, want.Scope, have.Scope)
		assert.Equal(t, want.Accounts, have.Accounts)
		assert.Equal(t, wc.StatusConnected, have.Status)
	}

	// SaveAll replaces: p2 disconnected since the last snapshot
	require.NoError(t, store.SaveAll(ctx, seed[:1]))
	loaded, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "p1", loaded[0].PeerID)

	// and an empty save clears everything
	require.NoError(t, store.SaveAll(ctx, nil))
	loaded, err = store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	defer store.Close()
	testStoreRoundTrip(t, store)
}

func TestDiskStore(t *testing.T) {
	store, err := NewDiskStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	testStoreRoundTrip(t, store)
}

func TestDiskStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewDiskStore(zap.NewNop(), dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveAll(ctx, sampleSessions()))
	require.NoError(t, store.Close())

	reopened, err := NewDiskStore(zap.NewNop(), dir)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(zap.NewNop(), config.SnapshotRedisConfig{
		Addr:   mr.Addr(),
		Prefix: "walletd:test",
	})
	require.NoError(t, err)
	defer store.Close()
	testStoreRoundTrip(t, store)
}

func TestRedisStore_SkipsExpiredEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, err := NewRedisStore(zap.NewNop(), config.SnapshotRedisConfig{
		Addr: mr.Addr(),
		TTL:  time.Minute,
	})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveAll(ctx, sampleSessions()))
	mr.FastForward(2 * time.Minute)

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestDBStore(t *testing.T) {
	store, err := NewDBStore(zap.NewNop(), config.SnapshotDatabaseConfig{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "walletd.db"),
	})
	require.NoError(t, err)
	defer store.Close()
	testStoreRoundTrip(t, store)
}

func TestNewDBStore_InvalidType(t *testing.T) {
	_, err := NewDBStore(zap.NewNop(), config.SnapshotDatabaseConfig{Type: "oracle"})
	assert.ErrorIs(t, err, ErrInvalidDatabaseType)
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(zap.NewNop(), &config.SnapshotConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = NewStore(zap.NewNop(), &config.SnapshotConfig{
		Type: "disk",
		Disk: config.SnapshotDiskConfig{Path: t.TempDir()},
	})
	require.NoError(t, err)
	assert.IsType(t, &DiskStore{}, store)

	_, err = NewStore(zap.NewNop(), &config.SnapshotConfig{Type: "bogus"})
	assert.Error(t, err)
}
