// Package pairing translates inbound session proposals and user
// approve/reject decisions into registry transitions and the matching
// outbound protocol frames.
//
// State machine per session:
//
//	Proposed --approve--> Connected
//	Proposed --reject/timeout--> removed
//	Connected --disconnect--> removed
//
// Connected is reachable only through explicit approval.
package pairing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/common/cnst"
	"github.com/dappbridge/walletd/internal/transport"
	"github.com/dappbridge/walletd/internal/wc"
	"github.com/dappbridge/walletd/internal/wc/registry"
)

// Manager owns the pairing state machine. It mutates sessions only
// through the registry and never holds its own copy. Not safe for
// concurrent use; the orchestrator serializes all calls.
type Manager struct {
	logger   *zap.Logger
	registry *registry.Registry
	adapter  transport.Adapter

	accounts    map[string]struct{}
	versions    map[string]struct{}
	proposalTTL time.Duration

	// exec re-enters the orchestrator's serialized event loop; timer
	// callbacks must never touch the registry directly.
	exec   func(func())
	timers map[string]*time.Timer

	// TimeoutHook, when set, observes proposals removed by timeout.
	TimeoutHook func(p wc.Proposal)

	// Persist, when set, is called after a promotion commits so the
	// session survives a crash before the approval frame is sent.
	Persist func(s wc.Session)
}

// New creates a pairing manager.
func New(logger *zap.Logger, reg *registry.Registry, adapter transport.Adapter, accounts, versions []string, proposalTTL time.Duration, exec func(func())) *Manager {
	m := &Manager{
		logger:      logger.Named("wc.pairing"),
		registry:    reg,
		adapter:     adapter,
		accounts:    make(map[string]struct{}, len(accounts)),
		versions:    make(map[string]struct{}, len(versions)),
		proposalTTL: proposalTTL,
		exec:        exec,
		timers:      make(map[string]*time.Timer),
	}
	for _, a := range accounts {
		m.accounts[a] = struct{}{}
	}
	for _, v := range versions {
		m.versions[v] = struct{}{}
	}
	return m
}

// OnProposal validates an inbound proposal and records it as pending.
// An unsupported version or empty scope is auto-rejected on the wire
// and never enters the registry. A proposal for a still-connected peer
// fails with ErrDuplicateSession and sends nothing.
func (m *Manager) OnProposal(ctx context.Context, p wc.Proposal) error {
	if p.Version == "" {
		p.Version = cnst.DefaultProtocolVersion
	}
	if _, ok := m.versions[p.Version]; !ok {
		m.logger.Warn("rejecting proposal with unsupported version",
			zap.String("peer_id", p.PeerID),
			zap.String("version", p.Version))
		if err := m.adapter.SendReject(ctx, p.Topic, cnst.ReasonUnsupported); err != nil {
			m.logger.Error("failed to send reject frame", zap.String("topic", p.Topic), zap.Error(err))
		}
		return cnst.ErrUnsupportedVersion
	}
	if p.Scope.Empty() {
		m.logger.Warn("rejecting proposal with empty scope", zap.String("peer_id", p.PeerID))
		if err := m.adapter.SendReject(ctx, p.Topic, cnst.ReasonUserRejected); err != nil {
			m.logger.Error("failed to send reject frame", zap.String("topic", p.Topic), zap.Error(err))
		}
		return cnst.ErrEmptyScope
	}

	// Last-proposal-wins: drop the timer of any replaced pending entry.
	if prev, ok := m.registry.ProposalForPeer(p.PeerID); ok {
		m.cancelTimer(prev.ID)
	}

	if err := m.registry.UpsertProposal(p); err != nil {
		return err
	}

	m.scheduleTimeout(p.ID)
	m.logger.Info("proposal pending",
		zap.String("proposal_id", p.ID),
		zap.String("peer_id", p.PeerID),
		zap.String("peer_name", p.Peer.Name))
	return nil
}

// Approve promotes a proposal to a Connected session bound to the given
// accounts and sends the approval frame. The registry promotion commits
// before the frame goes out: if the send fails the session stays
// Connected and the transport error is surfaced to the caller.
func (m *Manager) Approve(ctx context.Context, proposalID string, accounts []string) (wc.Session, error) {
	if _, ok := m.registry.GetProposal(proposalID); !ok {
		return wc.Session{}, cnst.ErrNotFound
	}
	if len(accounts) == 0 {
		return wc.Session{}, cnst.ErrInvalidAccounts
	}
	for _, a := range accounts {
		if _, held := m.accounts[a]; !held {
			return wc.Session{}, fmt.Errorf("%w: %s", cnst.ErrInvalidAccounts, a)
		}
	}

	s, err := m.registry.Promote(proposalID, accounts, time.Now())
	if err != nil {
		return wc.Session{}, err
	}
	m.cancelTimer(proposalID)
	if m.Persist != nil {
		m.Persist(s)
	}

	if err := m.adapter.SendApprove(ctx, s.Topic, s.Accounts); err != nil {
		// Connected-but-unacknowledged: the decision is durable, only
		// delivery failed.
		m.logger.Error("approval frame not delivered",
			zap.String("peer_id", s.PeerID),
			zap.Error(err))
		return s, fmt.Errorf("%w: %v", cnst.ErrTransport, err)
	}
	return s, nil
}

// Reject removes a pending proposal and sends the rejection frame. An
// unknown proposal id fails with ErrNotFound and is side-effect-free.
func (m *Manager) Reject(ctx context.Context, proposalID, reason string) error {
	p, err := m.registry.RemoveProposal(proposalID)
	if err != nil {
		return err
	}
	m.cancelTimer(proposalID)

	m.logger.Info("proposal rejected",
		zap.String("proposal_id", proposalID),
		zap.String("peer_id", p.PeerID),
		zap.String("reason", reason))
	if err := m.adapter.SendReject(ctx, p.Topic, reason); err != nil {
		return fmt.Errorf("%w: %v", cnst.ErrTransport, err)
	}
	return nil
}

// Disconnect removes a connected session and notifies the peer when
// notifyPeer is set (a remote disconnect needs no frame back).
// Idempotent: unknown peer ids are a no-op. The returned session
// reports Disconnecting when the notify frame could not be delivered:
// the session is gone locally but the peer never heard about it.
func (m *Manager) Disconnect(ctx context.Context, peerID string, notifyPeer bool) (wc.Session, bool) {
	s, ok := m.registry.Disconnect(peerID)
	if !ok {
		return wc.Session{}, false
	}
	if notifyPeer {
		s.Status = wc.StatusDisconnecting
		if err := m.adapter.SendDisconnect(ctx, s.Topic); err != nil {
			m.logger.Error("disconnect frame not delivered",
				zap.String("peer_id", peerID),
				zap.Error(err))
			return s, true
		}
		s.Status = wc.StatusDisconnected
	}
	return s, true
}

// Stop cancels all outstanding proposal timers.
func (m *Manager) Stop() {
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) scheduleTimeout(proposalID string) {
	m.timers[proposalID] = time.AfterFunc(m.proposalTTL, func() {
		m.exec(func() {
			m.expire(proposalID)
		})
	})
}

func (m *Manager) cancelTimer(proposalID string) {
	if t, ok := m.timers[proposalID]; ok {
		t.Stop()
		delete(m.timers, proposalID)
	}
}

// expire runs on the event loop when a proposal timer fires. A proposal
// resolved in the meantime makes RemoveProposal report ErrNotFound,
// which ends the race in favor of the earlier decision.
func (m *Manager) expire(proposalID string) {
	p, ok := m.registry.GetProposal(proposalID)
	if !ok {
		delete(m.timers, proposalID)
		return
	}
	if err := m.Reject(context.Background(), proposalID, cnst.ReasonTimeout); err != nil {
		m.logger.Warn("proposal timeout reject failed",
			zap.String("proposal_id", proposalID),
			zap.Error(err))
	}
	if m.TimeoutHook != nil {
		m.TimeoutHook(p)
	}
}
