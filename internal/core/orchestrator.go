// Package core wires transport events and wallet-UI commands into the
// session registry, pairing manager and request queue. All state
// mutations are serialized onto one event-processing goroutine, so the
// registry and queue never see concurrent writes.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/common/cnst"
	"github.com/dappbridge/walletd/internal/signer"
	"github.com/dappbridge/walletd/internal/snapshot"
	"github.com/dappbridge/walletd/internal/transport"
	"github.com/dappbridge/walletd/internal/wc"
	"github.com/dappbridge/walletd/internal/wc/pairing"
	"github.com/dappbridge/walletd/internal/wc/queue"
	"github.com/dappbridge/walletd/internal/wc/registry"
	"github.com/dappbridge/walletd/pkg/metrics"
	"github.com/dappbridge/walletd/pkg/trace"
)

// ErrClosed is returned when a command reaches a stopped orchestrator.
var ErrClosed = errors.New("orchestrator closed")

// Options configures the orchestrator.
type Options struct {
	Accounts          []string
	SupportedVersions []string
	ProposalTTL       time.Duration
	RequestTTL        time.Duration
	ReplayCacheSize   int

	// ExpirySweepInterval is how often the queue is swept for requests
	// whose deadline has passed. The sweep backs up the per-request
	// timers; both paths funnel through the same exactly-once guard.
	ExpirySweepInterval time.Duration
}

// Orchestrator owns the registry and queue and exposes the wallet-UI
// command surface. It holds no decision state of its own.
type Orchestrator struct {
	logger  *zap.Logger
	adapter transport.Adapter
	signer  signer.Signer
	store   snapshot.Store
	metrics *metrics.Metrics
	tracer  *trace.Builder

	registry *registry.Registry
	queue    *queue.Queue
	pairing  *pairing.Manager

	requestTTL    time.Duration
	sweepEvery    time.Duration
	cmds          chan func()
	done          chan struct{}
	requestTimers map[string]*time.Timer
}

// New creates an orchestrator and subscribes it to the adapter's
// inbound events. Call Start before issuing commands.
func New(logger *zap.Logger, adapter transport.Adapter, sig signer.Signer, store snapshot.Store, m *metrics.Metrics, opts Options) *Orchestrator {
	logger = logger.Named("wc.core")

	reg := registry.New(logger)
	o := &Orchestrator{
		logger:        logger,
		adapter:       adapter,
		signer:        sig,
		store:         store,
		metrics:       m,
		tracer:        trace.Tracer("walletd.core"),
		registry:      reg,
		requestTTL:    opts.RequestTTL,
		sweepEvery:    opts.ExpirySweepInterval,
		cmds:          make(chan func(), 64),
		done:          make(chan struct{}),
		requestTimers: make(map[string]*time.Timer),
	}
	o.queue = queue.New(logger, reg.Connected, opts.ReplayCacheSize)
	o.pairing = pairing.New(logger, reg, adapter, opts.Accounts, opts.SupportedVersions, opts.ProposalTTL, o.exec)
	o.pairing.Persist = func(wc.Session) { o.persistSnapshot() }
	o.pairing.TimeoutHook = func(wc.Proposal) {
		if o.metrics != nil {
			o.metrics.ProposalOutcome("timeout")
		}
		o.updateGauges()
	}

	adapter.OnProposal(o.handleProposal)
	adapter.OnRequest(o.handleRequest)
	adapter.OnPeerDisconnect(o.handlePeerDisconnect)
	return o
}

// Start launches the event-processing goroutine.
func (o *Orchestrator) Start() {
	go o.loop()
}

func (o *Orchestrator) loop() {
	sweepEvery := o.sweepEvery
	if sweepEvery <= 0 {
		sweepEvery = 30 * time.Second
	}
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()

	for {
		select {
		case fn := <-o.cmds:
			fn()
		case <-sweep.C:
			o.sweepExpired()
		case <-o.done:
			return
		}
	}
}

// sweepExpired rejects pending requests whose deadline has passed. It
// backs up the per-request timers; a request already resolved by its
// timer makes resolveLocked report ErrAlreadyResolved and is skipped.
// Runs on the event loop.
func (o *Orchestrator) sweepExpired() {
	for _, requestID := range o.queue.Expired(time.Now()) {
		act, err := o.resolveLocked(requestID, wc.DecisionRejected, cnst.ReasonExpired)
		if err != nil {
			continue
		}
		session, _ := o.registry.Get(act.SessionID)
		go o.sendResponse(context.Background(), session.Topic, requestID, nil, &transport.ErrorReply{
			Code:    -32052,
			Message: cnst.ReasonExpired,
		})
	}
}

// do runs fn on the event loop and waits for its result.
func (o *Orchestrator) do(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	select {
	case o.cmds <- func() { errCh <- fn() }:
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exec enqueues fn without waiting. Used by timer callbacks and event
// handlers; dropped silently once the orchestrator has stopped.
func (o *Orchestrator) exec(fn func()) {
	select {
	case o.cmds <- fn:
	case <-o.done:
	}
}

// Shutdown drains the orchestrator: every connected session is
// cascade-disconnected with peers notified, then the loop stops.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	err := o.do(ctx, func() error {
		for _, s := range o.registry.List() {
			o.disconnectLocked(ctx, s.PeerID, true)
		}
		o.pairing.Stop()
		for id, t := range o.requestTimers {
			t.Stop()
			delete(o.requestTimers, id)
		}
		return nil
	})
	close(o.done)
	return err
}

// Rehydrate restores Connected sessions from the snapshot store and
// verifies each against the relay. Sessions that fail the liveness
// check go straight to Disconnected.
func (o *Orchestrator) Rehydrate(ctx context.Context) error {
	stored, err := o.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load session snapshot: %w", err)
	}
	if len(stored) == 0 {
		return nil
	}

	live := make([]wc.Session, 0, len(stored))
	for _, s := range stored {
		if err := o.adapter.Ping(ctx, s.Topic); err != nil {
			o.logger.Warn("dropping stale session on rehydrate",
				zap.String("peer_id", s.PeerID),
				zap.Error(err))
			continue
		}
		live = append(live, s)
	}

	return o.do(ctx, func() error {
		o.registry.Restore(live)
		o.persistSnapshot()
		o.updateGauges()
		o.logger.Info("sessions rehydrated",
			zap.Int("restored", len(live)),
			zap.Int("dropped", len(stored)-len(live)))
		return nil
	})
}

// ListSessions returns a snapshot of connected sessions.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]wc.Session, error) {
	var out []wc.Session
	err := o.do(ctx, func() error {
		out = o.registry.List()
		return nil
	})
	return out, err
}

// ListProposals returns a snapshot of pending session proposals.
func (o *Orchestrator) ListProposals(ctx context.Context) ([]wc.Proposal, error) {
	var out []wc.Proposal
	err := o.do(ctx, func() error {
		out = o.registry.ListProposals()
		return nil
	})
	return out, err
}

// ListPendingActions returns pending actions in arrival order,
// optionally filtered to one session.
func (o *Orchestrator) ListPendingActions(ctx context.Context, sessionID string) ([]wc.PendingAction, error) {
	var out []wc.PendingAction
	err := o.do(ctx, func() error {
		out = o.queue.List(sessionID)
		return nil
	})
	return out, err
}

// ApproveSession approves a pending proposal, binding the given accounts.
func (o *Orchestrator) ApproveSession(ctx context.Context, proposalID string, accounts []string) (wc.Session, error) {
	sc := o.tracer.Start(ctx, "approve_session")
	defer sc.End()

	var s wc.Session
	err := o.do(ctx, func() error {
		var err error
		s, err = o.pairing.Approve(sc.Ctx, proposalID, accounts)
		if err == nil || errors.Is(err, cnst.ErrTransport) {
			if o.metrics != nil {
				o.metrics.ProposalOutcome("approved")
			}
			o.updateGauges()
		}
		return err
	})
	return s, err
}

// RejectSession rejects and removes a pending proposal.
func (o *Orchestrator) RejectSession(ctx context.Context, proposalID string) error {
	sc := o.tracer.Start(ctx, "reject_session")
	defer sc.End()

	return o.do(ctx, func() error {
		err := o.pairing.Reject(sc.Ctx, proposalID, cnst.ReasonUserRejected)
		if err == nil || errors.Is(err, cnst.ErrTransport) {
			if o.metrics != nil {
				o.metrics.ProposalOutcome("rejected")
			}
			o.updateGauges()
		}
		return err
	})
}

// DisconnectSession closes a connected session, notifying the peer and
// rejecting its pending actions. Idempotent.
func (o *Orchestrator) DisconnectSession(ctx context.Context, peerID string) error {
	sc := o.tracer.Start(ctx, "disconnect_session")
	defer sc.End()

	return o.do(ctx, func() error {
		o.disconnectLocked(sc.Ctx, peerID, true)
		return nil
	})
}

// ApproveRequest resolves a pending request as approved, signs it and
// sends the response. The decision commits before the signing backend
// or transport is awaited; a signing failure downgrades the terminal
// record to rejected but never re-opens the request.
func (o *Orchestrator) ApproveRequest(ctx context.Context, requestID string) error {
	sc := o.tracer.Start(ctx, "approve_request")
	defer sc.End()

	var (
		act     wc.PendingAction
		session wc.Session
	)
	err := o.do(ctx, func() error {
		var err error
		act, err = o.resolveLocked(requestID, wc.DecisionApproved, "")
		if err != nil {
			return err
		}
		// The session must exist: pending actions never outlive it.
		session, _ = o.registry.Get(act.SessionID)
		o.registry.Touch(act.SessionID, time.Now())
		return nil
	})
	if err != nil {
		return err
	}

	// Off-loop suspension points: signing backend, then transport.
	result, signErr := o.signer.Sign(sc.Ctx, act.Kind, act.Payload, signer.Binding{
		Accounts: session.Accounts,
		ChainIDs: session.Scope.ChainIDs,
	})
	if signErr != nil {
		o.logger.Error("signing backend failed",
			zap.String("request_id", requestID),
			zap.Error(signErr))
		o.exec(func() { o.queue.RecordFailure(requestID, cnst.ReasonSigningFailed) })
		o.sendResponse(sc.Ctx, session.Topic, requestID, nil, &transport.ErrorReply{
			Code:    -32000,
			Message: cnst.ReasonSigningFailed,
		})
		return fmt.Errorf("%w: %v", cnst.ErrSigningFailed, signErr)
	}

	o.exec(func() { o.queue.RecordResult(requestID, result) })
	return o.sendResponse(sc.Ctx, session.Topic, requestID, result, nil)
}

// RejectRequest resolves a pending request as rejected by the user and
// sends the rejection frame.
func (o *Orchestrator) RejectRequest(ctx context.Context, requestID string) error {
	sc := o.tracer.Start(ctx, "reject_request")
	defer sc.End()

	var session wc.Session
	err := o.do(ctx, func() error {
		act, err := o.resolveLocked(requestID, wc.DecisionRejected, cnst.ReasonUserRejected)
		if err != nil {
			return err
		}
		session, _ = o.registry.Get(act.SessionID)
		return nil
	})
	if err != nil {
		return err
	}

	return o.sendResponse(sc.Ctx, session.Topic, requestID, nil, &transport.ErrorReply{
		Code:    -32050,
		Message: cnst.ReasonUserRejected,
	})
}

// DisplayedInfo derives the ephemeral UI hint from registry and queue
// state.
func (o *Orchestrator) DisplayedInfo(ctx context.Context) (wc.DisplayedInfo, error) {
	var info wc.DisplayedInfo
	err := o.do(ctx, func() error {
		proposals := o.registry.ListProposals()
		info.PendingProposals = len(proposals)
		info.ConnectedPeers = len(o.registry.List())
		info.PendingActions = o.queue.Len()
		if len(proposals) > 0 {
			info.ConnectingTo = proposals[0].Peer.Name
		}
		if pending := o.queue.List(""); len(pending) > 0 {
			oldest := pending[0]
			preview := &wc.ActionPreview{
				RequestID: oldest.RequestID,
				Kind:      oldest.Kind,
				Summary:   wc.PreviewPayload(oldest.Kind, oldest.Payload),
			}
			if s, ok := o.registry.Get(oldest.SessionID); ok {
				preview.PeerName = s.Peer.Name
			}
			info.NextAction = preview
		}
		return nil
	})
	return info, err
}

// handleProposal processes an inbound proposal event from the relay.
func (o *Orchestrator) handleProposal(p wc.Proposal) {
	o.exec(func() {
		err := o.pairing.OnProposal(context.Background(), p)
		switch {
		case err == nil:
			o.updateGauges()
		case errors.Is(err, cnst.ErrUnsupportedVersion):
			if o.metrics != nil {
				o.metrics.ProposalOutcome("unsupported")
			}
		case errors.Is(err, cnst.ErrDuplicateSession):
			o.logger.Warn("proposal for connected peer ignored",
				zap.String("peer_id", p.PeerID))
		default:
			o.logger.Warn("proposal dropped",
				zap.String("peer_id", p.PeerID),
				zap.Error(err))
		}
	})
}

// handleRequest processes an inbound request event from the relay.
func (o *Orchestrator) handleRequest(req transport.Request) {
	o.exec(func() {
		expiresAt := req.ExpiresAt
		if expiresAt.IsZero() && o.requestTTL > 0 {
			expiresAt = time.Now().Add(o.requestTTL)
		}

		replay, err := o.queue.Admit(wc.PendingAction{
			RequestID: req.RequestID,
			SessionID: req.SessionID,
			Kind:      req.Kind,
			Payload:   req.Payload,
			ArrivedAt: time.Now(),
			ExpiresAt: expiresAt,
		})
		if err != nil {
			o.logger.Warn("request not admitted",
				zap.String("request_id", req.RequestID),
				zap.String("session_id", req.SessionID),
				zap.Error(err))
			return
		}
		if replay != nil {
			o.resendResolved(req.SessionID, req.RequestID, replay)
			return
		}

		o.registry.Touch(req.SessionID, time.Now())
		o.scheduleExpiry(req.RequestID, expiresAt)
		o.updateGauges()
		o.logger.Info("request queued",
			zap.String("request_id", req.RequestID),
			zap.String("session_id", req.SessionID),
			zap.String("kind", string(req.Kind)))
	})
}

// handlePeerDisconnect processes a remote disconnect event.
func (o *Orchestrator) handlePeerDisconnect(peerID string) {
	o.exec(func() {
		// The peer already left; no disconnect frame back.
		o.disconnectLocked(context.Background(), peerID, false)
	})
}

// resolveLocked is the single resolution path: every decision, whether
// user, expiry or cascade driven, funnels through the queue's
// exactly-once guard here. Runs on the event loop.
func (o *Orchestrator) resolveLocked(requestID string, decision wc.Decision, reason string) (wc.PendingAction, error) {
	act, err := o.queue.Resolve(requestID, decision, reason)
	if err != nil {
		return wc.PendingAction{}, err
	}
	o.cancelExpiry(requestID)
	if o.metrics != nil {
		o.metrics.ActionResolved(string(act.Kind), string(decision), act.ArrivedAt)
	}
	o.updateGauges()
	return act, nil
}

// disconnectLocked removes a session and atomically rejects its pending
// actions; no pending action outlives its session. Runs on the event loop.
func (o *Orchestrator) disconnectLocked(ctx context.Context, peerID string, notifyPeer bool) {
	s, ok := o.pairing.Disconnect(ctx, peerID, notifyPeer)
	if !ok {
		return
	}

	closed := o.queue.CloseSession(peerID)
	for _, act := range closed {
		o.cancelExpiry(act.RequestID)
		if o.metrics != nil {
			o.metrics.ActionResolved(string(act.Kind), string(wc.DecisionRejected), act.ArrivedAt)
		}
	}
	o.persistSnapshot()
	o.updateGauges()

	if len(closed) > 0 {
		// Rejection frames for the cascaded actions go out after the
		// state mutation committed.
		go func() {
			for _, act := range closed {
				o.sendResponse(ctx, s.Topic, act.RequestID, nil, &transport.ErrorReply{
					Code:    -32051,
					Message: cnst.ReasonSessionClosed,
				})
			}
		}()
	}
}

// scheduleExpiry arms the expiry timer for a pending request. Runs on
// the event loop.
func (o *Orchestrator) scheduleExpiry(requestID string, expiresAt time.Time) {
	if expiresAt.IsZero() {
		return
	}
	o.requestTimers[requestID] = time.AfterFunc(time.Until(expiresAt), func() {
		o.exec(func() {
			act, err := o.resolveLocked(requestID, wc.DecisionRejected, cnst.ReasonExpired)
			if err != nil {
				// Lost the race against a user decision; nothing to do.
				return
			}
			session, _ := o.registry.Get(act.SessionID)
			go o.sendResponse(context.Background(), session.Topic, requestID, nil, &transport.ErrorReply{
				Code:    -32052,
				Message: cnst.ReasonExpired,
			})
		})
	})
}

func (o *Orchestrator) cancelExpiry(requestID string) {
	if t, ok := o.requestTimers[requestID]; ok {
		t.Stop()
		delete(o.requestTimers, requestID)
	}
}

// resendResolved replays the recorded response for an already-resolved
// request id. Runs on the event loop; the send itself is off-loop.
func (o *Orchestrator) resendResolved(sessionID, requestID string, res *queue.Resolution) {
	if res.Decision == wc.DecisionApproved && res.Result == nil {
		// Approved but the signing backend has not returned yet: the
		// terminal response goes out when it does. Replaying now would
		// fabricate an outcome the request does not have.
		o.logger.Debug("dropping replay for request with signing in flight",
			zap.String("request_id", requestID))
		return
	}

	topic := sessionID
	if s, ok := o.registry.Get(sessionID); ok {
		topic = s.Topic
	}

	var (
		result  json.RawMessage
		errResp *transport.ErrorReply
	)
	if res.Decision == wc.DecisionApproved && res.Result != nil {
		result = res.Result
	} else {
		reason := res.Reason
		if reason == "" {
			reason = cnst.ReasonUserRejected
		}
		errResp = &transport.ErrorReply{Code: -32050, Message: reason}
	}
	go o.sendResponse(context.Background(), topic, requestID, result, errResp)
}

// sendResponse is the one place outbound response frames are produced.
func (o *Orchestrator) sendResponse(ctx context.Context, topic, requestID string, result json.RawMessage, respErr *transport.ErrorReply) error {
	if err := o.adapter.SendResponse(ctx, topic, requestID, result, respErr); err != nil {
		if o.metrics != nil {
			o.metrics.TransportSendFailed("response")
		}
		o.logger.Error("response frame not delivered",
			zap.String("request_id", requestID),
			zap.Error(err))
		return fmt.Errorf("%w: %v", cnst.ErrTransport, err)
	}
	return nil
}

// persistSnapshot writes the current Connected set to the snapshot
// store. Persistence failures are logged, never fatal. Runs on the
// event loop.
func (o *Orchestrator) persistSnapshot() {
	if o.store == nil {
		return
	}
	if err := o.store.SaveAll(context.Background(), o.registry.List()); err != nil {
		o.logger.Error("failed to persist session snapshot", zap.Error(err))
	}
}

func (o *Orchestrator) updateGauges() {
	if o.metrics == nil {
		return
	}
	o.metrics.SetSessions(string(wc.StatusConnected), len(o.registry.List()))
	o.metrics.SetSessions(string(wc.StatusProposed), len(o.registry.ListProposals()))
	o.metrics.SetPendingActions(o.queue.Len())
}
