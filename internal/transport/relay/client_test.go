package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/common/config"
	"github.com/dappbridge/walletd/internal/transport"
	"github.com/dappbridge/walletd/internal/wc"
)

// testBridge is a minimal in-process bridge: it records every frame the
// client writes and lets the test push frames back down the socket.
type testBridge struct {
	t       *testing.T
	srv     *httptest.Server
	mu      sync.Mutex
	conn    *websocket.Conn
	ready   chan struct{}
	frames  []envelope
	autoAck bool // answer every ping with a pong
}

func newTestBridge(t *testing.T, autoAck bool) *testBridge {
	t.Helper()
	b := &testBridge{t: t, ready: make(chan struct{}), autoAck: autoAck}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		close(b.ready)
		b.readLoop(conn)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBridge) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		b.mu.Lock()
		b.frames = append(b.frames, env)
		b.mu.Unlock()
		if b.autoAck && env.Type == framePing {
			b.push(envelope{Type: framePong, ID: env.ID})
		}
	}
}

func (b *testBridge) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

// push sends a frame to the client.
func (b *testBridge) push(env envelope) {
	<-b.ready
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NoError(b.t, b.conn.WriteJSON(env))
}

func (b *testBridge) framesOf(frameType string) []envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []envelope
	for _, f := range b.frames {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

func dialTestClient(t *testing.T, b *testBridge) *Client {
	t.Helper()
	client, err := Dial(context.Background(), zap.NewNop(), config.RelayConfig{
		URL:              b.url(),
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingTimeout:      time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_OutboundFrames(t *testing.T) {
	b := newTestBridge(t, false)
	c := dialTestClient(t, b)
	ctx := context.Background()

	require.NoError(t, c.SendApprove(ctx, "topic-1", []string{"0xabc"}))
	require.NoError(t, c.SendReject(ctx, "topic-1", "user_rejected"))
	require.NoError(t, c.SendResponse(ctx, "topic-1", "req-1", json.RawMessage(`"0xsig"`), nil))
	require.NoError(t, c.SendResponse(ctx, "topic-1", "req-2", nil, &transport.ErrorReply{Code: -32050, Message: "user_rejected"}))
	require.NoError(t, c.SendDisconnect(ctx, "topic-1"))

	assert.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.frames) == 5
	}, time.Second, 5*time.Millisecond)

	approves := b.framesOf(frameApprove)
	require.Len(t, approves, 1)
	assert.Equal(t, "topic-1", approves[0].Topic)
	assert.Equal(t, []string{"0xabc"}, approves[0].Accounts)

	rejects := b.framesOf(frameReject)
	require.Len(t, rejects, 1)
	assert.Equal(t, "user_rejected", rejects[0].Reason)

	responses := b.framesOf(frameResponse)
	require.Len(t, responses, 2)
	assert.Equal(t, json.RawMessage(`"0xsig"`), responses[0].Result)
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, int64(-32050), responses[1].Error.Code)

	assert.Len(t, b.framesOf(frameDisconnect), 1)
}

func TestClient_InboundEvents(t *testing.T) {
	b := newTestBridge(t, false)
	c := dialTestClient(t, b)

	proposals := make(chan wc.Proposal, 1)
	requests := make(chan transport.Request, 1)
	disconnects := make(chan string, 1)
	c.OnProposal(func(p wc.Proposal) { proposals <- p })
	c.OnRequest(func(r transport.Request) { requests <- r })
	c.OnPeerDisconnect(func(peerID string) { disconnects <- peerID })

	b.push(envelope{Type: frameProposal, Proposal: &wc.Proposal{
		ID:     "prop-1",
		PeerID: "p1",
		Topic:  "topic-1",
		Scope:  wc.Scope{Methods: []string{"eth_sign"}},
	}})
	expires := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	b.push(envelope{
		Type:      frameRequest,
		PeerID:    "p1",
		RequestID: "req-1",
		Kind:      "sign_message",
		Payload:   json.RawMessage(`{"message":"hi"}`),
		ExpiresAt: &expires,
	})
	b.push(envelope{Type: frameDisconnect, PeerID: "p1"})

	select {
	case p := <-proposals:
		assert.Equal(t, "prop-1", p.ID)
		assert.Equal(t, "p1", p.PeerID)
	case <-time.After(time.Second):
		t.Fatal("proposal never delivered")
	}

	select {
	case r := <-requests:
		assert.Equal(t, "req-1", r.RequestID)
		assert.Equal(t, "p1", r.SessionID)
		assert.Equal(t, wc.KindSignMessage, r.Kind)
		assert.True(t, expires.Equal(r.ExpiresAt))
	case <-time.After(time.Second):
		t.Fatal("request never delivered")
	}

	select {
	case peerID := <-disconnects:
		assert.Equal(t, "p1", peerID)
	case <-time.After(time.Second):
		t.Fatal("disconnect never delivered")
	}
}

func TestClient_Ping(t *testing.T) {
	b := newTestBridge(t, true)
	c := dialTestClient(t, b)

	require.NoError(t, c.Ping(context.Background(), "topic-1"))

	pings := b.framesOf(framePing)
	require.Len(t, pings, 1)
	assert.Equal(t, "topic-1", pings[0].Topic)
	assert.NotEmpty(t, pings[0].ID)
}

func TestClient_PingTimeout(t *testing.T) {
	b := newTestBridge(t, false)
	c := dialTestClient(t, b)

	err := c.Ping(context.Background(), "topic-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping timeout")
}

func TestClient_IgnoresMalformedFrames(t *testing.T) {
	b := newTestBridge(t, false)
	c := dialTestClient(t, b)

	requests := make(chan transport.Request, 1)
	c.OnRequest(func(r transport.Request) { requests <- r })

	// garbage, an unknown type and a bodyless proposal are all skipped
	<-b.ready
	b.mu.Lock()
	require.NoError(t, b.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	b.mu.Unlock()
	b.push(envelope{Type: "mystery"})
	b.push(envelope{Type: frameProposal})

	b.push(envelope{Type: frameRequest, PeerID: "p1", RequestID: "req-1", Kind: "sign_message"})

	select {
	case r := <-requests:
		assert.Equal(t, "req-1", r.RequestID)
	case <-time.After(time.Second):
		t.Fatal("request never delivered")
	}
}

func TestDial_Unreachable(t *testing.T) {
	_, err := Dial(context.Background(), zap.NewNop(), config.RelayConfig{
		URL:              "ws://127.0.0.1:1/ws",
		HandshakeTimeout: 500 * time.Millisecond,
	})
	assert.Error(t, err)
}
