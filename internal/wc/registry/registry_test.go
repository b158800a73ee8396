package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/common/cnst"
	"github.com/dappbridge/walletd/internal/wc"
)

func proposal(id, peerID string) wc.Proposal {
	return wc.Proposal{
		ID:        id,
		PeerID:    peerID,
		Topic:     "topic-" + peerID,
		Version:   "1",
		Peer:      wc.PeerMeta{Name: "dapp-" + peerID},
		Scope:     wc.Scope{Methods: []string{"eth_sign"}},
		CreatedAt: time.Now(),
	}
}

func TestRegistry_UpsertPromoteGet(t *testing.T) {
	r := New(zap.NewNop())

	require.NoError(t, r.UpsertProposal(proposal("prop-1", "p1")))

	got, ok := r.GetProposal("prop-1")
	assert.True(t, ok)
	assert.Equal(t, "p1", got.PeerID)

	s, err := r.Promote("prop-1", []string{"0xabc"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, wc.StatusConnected, s.Status)
	assert.Equal(t, []string{"0xabc"}, s.Accounts)

	// promotion removes the proposal atomically
	_, ok = r.GetProposal("prop-1")
	assert.False(t, ok)
	assert.Empty(t, r.ListProposals())

	sess, ok := r.Get("p1")
	assert.True(t, ok)
	assert.Equal(t, "topic-p1", sess.Topic)
}

func TestRegistry_LastProposalWins(t *testing.T) {
	r := New(zap.NewNop())

	require.NoError(t, r.UpsertProposal(proposal("prop-1", "p1")))
	require.NoError(t, r.UpsertProposal(proposal("prop-2", "p1")))

	// only the second proposal remains
	_, ok := r.GetProposal("prop-1")
	assert.False(t, ok)
	_, ok = r.GetProposal("prop-2")
	assert.True(t, ok)
	assert.Len(t, r.ListProposals(), 1)

	// the replaced id cannot be promoted
	_, err := r.Promote("prop-1", []string{"0xabc"}, time.Now())
	assert.ErrorIs(t, err, cnst.ErrNotFound)
}

func TestRegistry_ProposalWhileConnected(t *testing.T) {
	r := New(zap.NewNop())

	require.NoError(t, r.UpsertProposal(proposal("prop-1", "p1")))
	_, err := r.Promote("prop-1", []string{"0xabc"}, time.Now())
	require.NoError(t, err)

	// reconnect proposal while connected is refused
	err = r.UpsertProposal(proposal("prop-2", "p1"))
	assert.ErrorIs(t, err, cnst.ErrDuplicateSession)

	// after disconnect the peer may propose again
	_, ok := r.Disconnect("p1")
	assert.True(t, ok)
	assert.NoError(t, r.UpsertProposal(proposal("prop-2", "p1")))
}

func TestRegistry_DisconnectIdempotent(t *testing.T) {
	r := New(zap.NewNop())

	require.NoError(t, r.UpsertProposal(proposal("prop-1", "p1")))
	_, err := r.Promote("prop-1", []string{"0xabc"}, time.Now())
	require.NoError(t, err)

	s, ok := r.Disconnect("p1")
	assert.True(t, ok)
	assert.Equal(t, wc.StatusDisconnected, s.Status)

	// second disconnect and unknown peer are no-ops, never errors
	_, ok = r.Disconnect("p1")
	assert.False(t, ok)
	_, ok = r.Disconnect("never-seen")
	assert.False(t, ok)
	assert.Empty(t, r.List())
}

func TestRegistry_RemoveProposal(t *testing.T) {
	r := New(zap.NewNop())

	require.NoError(t, r.UpsertProposal(proposal("prop-1", "p1")))
	p, err := r.RemoveProposal("prop-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.PeerID)

	_, err = r.RemoveProposal("prop-1")
	assert.ErrorIs(t, err, cnst.ErrNotFound)
}

func TestRegistry_ListOrderStable(t *testing.T) {
	r := New(zap.NewNop())

	for i, peer := range []string{"p1", "p2", "p3"} {
		require.NoError(t, r.UpsertProposal(proposal("prop-"+peer, peer)))
		_, err := r.Promote("prop-"+peer, []string{"0xabc"}, time.Now().Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "p1", list[0].PeerID)
	assert.Equal(t, "p2", list[1].PeerID)
	assert.Equal(t, "p3", list[2].PeerID)
}

func TestRegistry_Restore(t *testing.T) {
	r := New(zap.NewNop())

	r.Restore([]wc.Session{
		{PeerID: "p1", Topic: "t1", Status: wc.StatusDisconnected},
		{PeerID: "p2", Topic: "t2"},
	})

	list := r.List()
	require.Len(t, list, 2)
	for _, s := range list {
		assert.Equal(t, wc.StatusConnected, s.Status)
	}
	assert.True(t, r.Connected("p1"))
}
