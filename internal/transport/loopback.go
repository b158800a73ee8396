package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dappbridge/walletd/internal/wc"
)

// Frame is one recorded outbound frame.
type Frame struct {
	Type      string // "approve", "reject", "response", "disconnect"
	Topic     string
	RequestID string
	Accounts  []string
	Reason    string
	Result    json.RawMessage
	Error     *ErrorReply
}

// Loopback is an in-process Adapter used by tests and by the daemon's
// dry-run mode. It records every outbound frame and lets callers inject
// inbound events.
type Loopback struct {
	mu         sync.Mutex
	frames     []Frame
	sendErr    error
	pingErr    map[string]error
	proposalCb func(wc.Proposal)
	requestCb  func(Request)
	closeCb    func(peerID string)
}

var _ Adapter = (*Loopback)(nil)

// NewLoopback creates an empty loopback adapter.
func NewLoopback() *Loopback {
	return &Loopback{pingErr: make(map[string]error)}
}

// FailSendsWith makes every subsequent send return err. Pass nil to heal.
func (l *Loopback) FailSendsWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// FailPing makes Ping on the given topic return err.
func (l *Loopback) FailPing(topic string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pingErr[topic] = err
}

// Frames returns a copy of all recorded outbound frames.
func (l *Loopback) Frames() []Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Frame, len(l.frames))
	copy(out, l.frames)
	return out
}

// FramesOf returns recorded frames of one type.
func (l *Loopback) FramesOf(frameType string) []Frame {
	var out []Frame
	for _, f := range l.Frames() {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

// InjectProposal delivers an inbound proposal event.
func (l *Loopback) InjectProposal(p wc.Proposal) {
	l.mu.Lock()
	cb := l.proposalCb
	l.mu.Unlock()
	if cb != nil {
		cb(p)
	}
}

// InjectRequest delivers an inbound request event.
func (l *Loopback) InjectRequest(r Request) {
	l.mu.Lock()
	cb := l.requestCb
	l.mu.Unlock()
	if cb != nil {
		cb(r)
	}
}

// InjectPeerDisconnect delivers a remote disconnect event.
func (l *Loopback) InjectPeerDisconnect(peerID string) {
	l.mu.Lock()
	cb := l.closeCb
	l.mu.Unlock()
	if cb != nil {
		cb(peerID)
	}
}

func (l *Loopback) OnProposal(fn func(wc.Proposal)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.proposalCb = fn
}

func (l *Loopback) OnRequest(fn func(Request)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requestCb = fn
}

func (l *Loopback) OnPeerDisconnect(fn func(peerID string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeCb = fn
}

func (l *Loopback) record(f Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return l.sendErr
	}
	l.frames = append(l.frames, f)
	return nil
}

func (l *Loopback) SendApprove(_ context.Context, topic string, accounts []string) error {
	return l.record(Frame{Type: "approve", Topic: topic, Accounts: accounts})
}

func (l *Loopback) SendReject(_ context.Context, topic, reason string) error {
	return l.record(Frame{Type: "reject", Topic: topic, Reason: reason})
}

func (l *Loopback) SendResponse(_ context.Context, topic, requestID string, result json.RawMessage, respErr *ErrorReply) error {
	return l.record(Frame{Type: "response", Topic: topic, RequestID: requestID, Result: result, Error: respErr})
}

func (l *Loopback) SendDisconnect(_ context.Context, topic string) error {
	return l.record(Frame{Type: "disconnect", Topic: topic})
}

func (l *Loopback) Ping(_ context.Context, topic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pingErr[topic]
}
