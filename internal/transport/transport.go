// Package transport defines the boundary between the orchestration core
// and the relay that physically carries protocol frames. The core only
// ever talks to an Adapter; encryption and wire encoding live below it.
package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dappbridge/walletd/internal/wc"
)

// Request is an inbound signing/transaction request delivered by the relay.
type Request struct {
	SessionID string          `json:"sessionId"` // peer id of the owning session
	RequestID string          `json:"requestId"`
	Kind      wc.ActionKind   `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expiresAt,omitempty"`
}

// ErrorReply is the error body of an outbound response frame.
type ErrorReply struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// Adapter delivers inbound protocol events and accepts outbound frames.
// Sends are fire-and-confirm: a returned error means the frame was not
// acknowledged by the relay; the core surfaces it without retrying.
type Adapter interface {
	// OnProposal registers the callback invoked for each inbound session proposal.
	OnProposal(fn func(wc.Proposal))

	// OnRequest registers the callback invoked for each inbound request.
	OnRequest(fn func(Request))

	// OnPeerDisconnect registers the callback invoked when a peer closes its side.
	OnPeerDisconnect(fn func(peerID string))

	// SendApprove sends a session approval frame on the given topic.
	SendApprove(ctx context.Context, topic string, accounts []string) error

	// SendReject sends a session rejection frame on the given topic.
	SendReject(ctx context.Context, topic, reason string) error

	// SendResponse sends the response frame for a request. Exactly one of
	// result and respErr is set.
	SendResponse(ctx context.Context, topic, requestID string, result json.RawMessage, respErr *ErrorReply) error

	// SendDisconnect notifies the peer that the wallet closed the session.
	SendDisconnect(ctx context.Context, topic string) error

	// Ping verifies the topic is still reachable on the relay.
	Ping(ctx context.Context, topic string) error
}
