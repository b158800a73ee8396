// Package queue holds inbound requests awaiting a user decision and
// resolves each exactly once. Like the registry it is single-owner
// state: every mutation runs on the orchestrator's event goroutine.
package queue

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/common/cnst"
	"github.com/dappbridge/walletd/internal/wc"
)

// Resolution is the terminal record kept for a resolved request id.
// It backs idempotent replay: a duplicate admit of a resolved id
// re-sends this instead of queuing a new entry.
type Resolution struct {
	SessionID string
	Kind      wc.ActionKind
	Decision  wc.Decision
	Reason    string          // set on rejections
	Result    json.RawMessage // set once an approved request has been signed
}

// Queue is the pending-action queue.
type Queue struct {
	logger    *zap.Logger
	connected func(sessionID string) bool
	replayCap int

	pending map[string]*wc.PendingAction // request id -> action
	order   []string                     // request ids, arrival order

	resolved    map[string]*Resolution // request id -> terminal record
	replayOrder map[string][]string    // session id -> resolved request ids, oldest first
}

// New creates an empty queue. connected reports whether a session is
// currently Connected in the registry; replayCap bounds how many
// resolved records are kept per session.
func New(logger *zap.Logger, connected func(sessionID string) bool, replayCap int) *Queue {
	if replayCap <= 0 {
		replayCap = 64
	}
	return &Queue{
		logger:      logger.Named("wc.queue"),
		connected:   connected,
		replayCap:   replayCap,
		pending:     make(map[string]*wc.PendingAction),
		resolved:    make(map[string]*Resolution),
		replayOrder: make(map[string][]string),
	}
}

// Admit queues an inbound request. A duplicate of a still-pending id
// fails with ErrDuplicateRequest. A duplicate of an already-resolved id
// is an idempotent replay: the previous Resolution is returned and no
// new entry is queued.
func (q *Queue) Admit(a wc.PendingAction) (*Resolution, error) {
	if res, ok := q.resolved[a.RequestID]; ok {
		q.logger.Debug("replaying resolved request",
			zap.String("request_id", a.RequestID),
			zap.String("decision", string(res.Decision)))
		return res, nil
	}
	if _, ok := q.pending[a.RequestID]; ok {
		return nil, cnst.ErrDuplicateRequest
	}
	if !q.connected(a.SessionID) {
		return nil, cnst.ErrUnknownSession
	}

	stored := a
	q.pending[a.RequestID] = &stored
	q.order = append(q.order, a.RequestID)
	return nil, nil
}

// Get returns the pending action with the given request id.
func (q *Queue) Get(requestID string) (wc.PendingAction, bool) {
	a, ok := q.pending[requestID]
	if !ok {
		return wc.PendingAction{}, false
	}
	return *a, true
}

// List returns pending actions in arrival order, oldest first.
// An empty sessionID returns the whole queue.
func (q *Queue) List(sessionID string) []wc.PendingAction {
	out := make([]wc.PendingAction, 0, len(q.order))
	for _, id := range q.order {
		a := q.pending[id]
		if sessionID != "" && a.SessionID != sessionID {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	return len(q.order)
}

// Resolve records the terminal decision for a pending request and
// removes it from the queue. The decision is set exactly once: an
// unknown id fails with ErrNotFound, a resolved one with
// ErrAlreadyResolved. The caller sends the single outbound frame after
// this returns.
func (q *Queue) Resolve(requestID string, decision wc.Decision, reason string) (wc.PendingAction, error) {
	if _, ok := q.resolved[requestID]; ok {
		return wc.PendingAction{}, cnst.ErrAlreadyResolved
	}
	a, ok := q.pending[requestID]
	if !ok {
		return wc.PendingAction{}, cnst.ErrNotFound
	}

	delete(q.pending, requestID)
	q.order = removeID(q.order, requestID)
	a.Decision = decision

	q.remember(requestID, &Resolution{
		SessionID: a.SessionID,
		Kind:      a.Kind,
		Decision:  decision,
		Reason:    reason,
	})

	q.logger.Info("request resolved",
		zap.String("request_id", requestID),
		zap.String("session_id", a.SessionID),
		zap.String("decision", string(decision)),
		zap.String("reason", reason))
	return *a, nil
}

// RecordResult attaches the signing result to an approved request's
// terminal record so a later replay re-sends the same response.
func (q *Queue) RecordResult(requestID string, result json.RawMessage) {
	if res, ok := q.resolved[requestID]; ok {
		res.Result = result
	}
}

// RecordFailure downgrades an approved request's terminal record to a
// rejection. Used when the signing backend fails after approval.
func (q *Queue) RecordFailure(requestID, reason string) {
	if res, ok := q.resolved[requestID]; ok {
		res.Decision = wc.DecisionRejected
		res.Reason = reason
		res.Result = nil
	}
}

// CloseSession resolves every pending action owned by the session as
// Rejected and drops the session's replay records. Called atomically
// with the registry disconnect; the returned actions let the caller
// send their rejection frames.
func (q *Queue) CloseSession(sessionID string) []wc.PendingAction {
	var closed []wc.PendingAction
	remaining := q.order[:0]
	for _, id := range q.order {
		a := q.pending[id]
		if a.SessionID != sessionID {
			remaining = append(remaining, id)
			continue
		}
		delete(q.pending, id)
		a.Decision = wc.DecisionRejected
		closed = append(closed, *a)
	}
	q.order = remaining

	for _, id := range q.replayOrder[sessionID] {
		delete(q.resolved, id)
	}
	delete(q.replayOrder, sessionID)

	if len(closed) > 0 {
		q.logger.Info("cascaded pending actions on session close",
			zap.String("session_id", sessionID),
			zap.Int("count", len(closed)))
	}
	return closed
}

// Expired returns the pending request ids whose deadline has passed.
func (q *Queue) Expired(now time.Time) []string {
	var ids []string
	for _, id := range q.order {
		if q.pending[id].Expired(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (q *Queue) remember(requestID string, res *Resolution) {
	q.resolved[requestID] = res
	ids := append(q.replayOrder[res.SessionID], requestID)
	if len(ids) > q.replayCap {
		delete(q.resolved, ids[0])
		ids = ids[1:]
	}
	q.replayOrder[res.SessionID] = ids
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
