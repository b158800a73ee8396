package wc

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a peer session.
type Status string

const (
	StatusProposed      Status = "proposed"
	StatusConnected     Status = "connected"
	StatusDisconnecting Status = "disconnecting"
	StatusDisconnected  Status = "disconnected"
)

// PeerMeta is display metadata sent by the dApp. Opaque to the core,
// rendered as-is by the wallet UI.
type PeerMeta struct {
	Name  string   `json:"name" yaml:"name"`
	URL   string   `json:"url" yaml:"url"`
	Icons []string `json:"icons,omitempty" yaml:"icons,omitempty"`
}

// Scope is the set of operations a session is permitted to invoke:
// chain ids and method names the wallet agreed to expose.
type Scope struct {
	ChainIDs []int64  `json:"chainIds,omitempty" yaml:"chainIds,omitempty"`
	Methods  []string `json:"methods,omitempty" yaml:"methods,omitempty"`
}

// Empty reports whether the scope grants nothing at all.
func (s Scope) Empty() bool {
	return len(s.ChainIDs) == 0 && len(s.Methods) == 0
}

// Session is an approved, active peer connection.
type Session struct {
	PeerID       string    `json:"peerId" yaml:"peerId"`
	Topic        string    `json:"topic" yaml:"topic"`
	Version      string    `json:"version" yaml:"version"`
	Peer         PeerMeta  `json:"peer" yaml:"peer"`
	Scope        Scope     `json:"scope" yaml:"scope"`
	Accounts     []string  `json:"accounts" yaml:"accounts"`
	Status       Status    `json:"status" yaml:"status"`
	CreatedAt    time.Time `json:"createdAt" yaml:"createdAt"`
	LastActivity time.Time `json:"lastActivity" yaml:"lastActivity"`
}

// Proposal is a pending session proposal: a peer that asked to connect
// but has not been approved yet. The proposal id is distinct from the
// session's persistent peer identity.
type Proposal struct {
	ID        string    `json:"id"`
	PeerID    string    `json:"peerId"`
	Topic     string    `json:"topic"`
	Version   string    `json:"version"`
	Peer      PeerMeta  `json:"peer"`
	Scope     Scope     `json:"scope"`
	CreatedAt time.Time `json:"createdAt"`
}

// ActionKind discriminates the payload shape of a pending action.
type ActionKind string

const (
	KindSignMessage     ActionKind = "sign_message"
	KindSignTypedData   ActionKind = "sign_typed_data"
	KindSendTransaction ActionKind = "send_transaction"
	KindSwitchChain     ActionKind = "switch_chain"
	KindOther           ActionKind = "other"
)

// Decision is the terminal outcome of a pending action.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// PendingAction is one inbound request awaiting a user decision.
// Payload passes through to the signing backend untouched.
type PendingAction struct {
	RequestID string          `json:"requestId"`
	SessionID string          `json:"sessionId"`
	Kind      ActionKind      `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	ArrivedAt time.Time       `json:"arrivedAt"`
	ExpiresAt time.Time       `json:"expiresAt,omitempty"`
	Decision  Decision        `json:"decision,omitempty"`
}

// Expired reports whether the action's deadline has passed.
func (a *PendingAction) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// DisplayedInfo is an ephemeral UI hint derived from registry and queue
// state. Fully recomputable, never persisted.
type DisplayedInfo struct {
	PendingProposals int            `json:"pendingProposals"`
	ConnectedPeers   int            `json:"connectedPeers"`
	PendingActions   int            `json:"pendingActions"`
	ConnectingTo     string         `json:"connectingTo,omitempty"`
	NextAction       *ActionPreview `json:"nextAction,omitempty"`
}

// ActionPreview is a short human-readable glimpse of the oldest pending
// action, extracted from the opaque payload for display only.
type ActionPreview struct {
	RequestID string     `json:"requestId"`
	PeerName  string     `json:"peerName"`
	Kind      ActionKind `json:"kind"`
	Summary   string     `json:"summary,omitempty"`
}
