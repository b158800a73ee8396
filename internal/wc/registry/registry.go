// Package registry holds the authoritative set of peer sessions and
// pending session proposals. It is not safe for concurrent use: every
// mutation runs on the orchestrator's single event-processing goroutine.
package registry

import (
	"time"

	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/common/cnst"
	"github.com/dappbridge/walletd/internal/wc"
)

// Registry tracks proposals by proposal id and connected sessions by
// peer id. At most one entry per peer id exists in either state.
type Registry struct {
	logger *zap.Logger

	proposals      map[string]*wc.Proposal // proposal id -> proposal
	proposalByPeer map[string]string       // peer id -> proposal id
	proposalOrder  []string                // proposal ids, arrival order

	sessions     map[string]*wc.Session // peer id -> connected session
	sessionOrder []string               // peer ids, connection order
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger:         logger.Named("wc.registry"),
		proposals:      make(map[string]*wc.Proposal),
		proposalByPeer: make(map[string]string),
		sessions:       make(map[string]*wc.Session),
	}
}

// UpsertProposal records a pending proposal. A second proposal from the
// same peer id replaces the existing pending entry (last-proposal-wins).
// A proposal for a peer that is still connected fails with
// ErrDuplicateSession; the existing session must be disconnected first.
func (r *Registry) UpsertProposal(p wc.Proposal) error {
	if _, connected := r.sessions[p.PeerID]; connected {
		return cnst.ErrDuplicateSession
	}

	if prevID, ok := r.proposalByPeer[p.PeerID]; ok {
		delete(r.proposals, prevID)
		r.proposalOrder = removeID(r.proposalOrder, prevID)
		r.logger.Debug("replacing pending proposal",
			zap.String("peer_id", p.PeerID),
			zap.String("previous_proposal_id", prevID))
	}

	stored := p
	r.proposals[p.ID] = &stored
	r.proposalByPeer[p.PeerID] = p.ID
	r.proposalOrder = append(r.proposalOrder, p.ID)
	return nil
}

// ProposalForPeer returns the pending proposal for a peer id, if any.
func (r *Registry) ProposalForPeer(peerID string) (wc.Proposal, bool) {
	id, ok := r.proposalByPeer[peerID]
	if !ok {
		return wc.Proposal{}, false
	}
	return *r.proposals[id], true
}

// GetProposal returns the pending proposal with the given id.
func (r *Registry) GetProposal(proposalID string) (wc.Proposal, bool) {
	p, ok := r.proposals[proposalID]
	if !ok {
		return wc.Proposal{}, false
	}
	return *p, true
}

// RemoveProposal discards a pending proposal. It fails with ErrNotFound
// if the id is unknown or was already promoted or discarded.
func (r *Registry) RemoveProposal(proposalID string) (wc.Proposal, error) {
	p, ok := r.proposals[proposalID]
	if !ok {
		return wc.Proposal{}, cnst.ErrNotFound
	}
	delete(r.proposals, proposalID)
	delete(r.proposalByPeer, p.PeerID)
	r.proposalOrder = removeID(r.proposalOrder, proposalID)
	return *p, nil
}

// Promote turns a pending proposal into a Connected session bound to
// the given accounts. The proposal is removed in the same step, so
// there is no window where both exist.
func (r *Registry) Promote(proposalID string, accounts []string, now time.Time) (wc.Session, error) {
	p, ok := r.proposals[proposalID]
	if !ok {
		return wc.Session{}, cnst.ErrNotFound
	}

	s := &wc.Session{
		PeerID:       p.PeerID,
		Topic:        p.Topic,
		Version:      p.Version,
		Peer:         p.Peer,
		Scope:        p.Scope,
		Accounts:     append([]string(nil), accounts...),
		Status:       wc.StatusConnected,
		CreatedAt:    now,
		LastActivity: now,
	}

	delete(r.proposals, proposalID)
	delete(r.proposalByPeer, p.PeerID)
	r.proposalOrder = removeID(r.proposalOrder, proposalID)

	r.sessions[s.PeerID] = s
	r.sessionOrder = append(r.sessionOrder, s.PeerID)

	r.logger.Info("session connected",
		zap.String("peer_id", s.PeerID),
		zap.String("topic", s.Topic),
		zap.Strings("accounts", s.Accounts))
	return *s, nil
}

// Get returns the connected session for a peer id.
func (r *Registry) Get(peerID string) (wc.Session, bool) {
	s, ok := r.sessions[peerID]
	if !ok {
		return wc.Session{}, false
	}
	return *s, true
}

// Connected reports whether the peer currently has a connected session.
func (r *Registry) Connected(peerID string) bool {
	_, ok := r.sessions[peerID]
	return ok
}

// Touch updates the session's last-activity timestamp.
func (r *Registry) Touch(peerID string, now time.Time) {
	if s, ok := r.sessions[peerID]; ok {
		s.LastActivity = now
	}
}

// Disconnect removes the connected session for a peer id and returns
// it. Idempotent: an unknown or already-disconnected peer id is a
// no-op, never an error.
func (r *Registry) Disconnect(peerID string) (wc.Session, bool) {
	s, ok := r.sessions[peerID]
	if !ok {
		return wc.Session{}, false
	}
	delete(r.sessions, peerID)
	r.sessionOrder = removeID(r.sessionOrder, peerID)
	s.Status = wc.StatusDisconnected
	r.logger.Info("session disconnected", zap.String("peer_id", peerID))
	return *s, true
}

// Restore inserts rehydrated sessions as Connected. Used on startup
// before liveness verification; duplicates by peer id are skipped.
func (r *Registry) Restore(sessions []wc.Session) {
	for _, s := range sessions {
		if _, exists := r.sessions[s.PeerID]; exists {
			continue
		}
		restored := s
		restored.Status = wc.StatusConnected
		r.sessions[s.PeerID] = &restored
		r.sessionOrder = append(r.sessionOrder, s.PeerID)
	}
}

// List returns a snapshot of connected sessions in connection order.
func (r *Registry) List() []wc.Session {
	out := make([]wc.Session, 0, len(r.sessionOrder))
	for _, peerID := range r.sessionOrder {
		out = append(out, *r.sessions[peerID])
	}
	return out
}

// ListProposals returns a snapshot of pending proposals in arrival order.
func (r *Registry) ListProposals() []wc.Proposal {
	out := make([]wc.Proposal, 0, len(r.proposalOrder))
	for _, id := range r.proposalOrder {
		out = append(out, *r.proposals[id])
	}
	return out
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
