// Package relay implements transport.Adapter over a websocket bridge.
// Frames are JSON envelopes; payload encryption happens bridge-side and
// is invisible here.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/common/config"
	"github.com/dappbridge/walletd/internal/transport"
	"github.com/dappbridge/walletd/internal/wc"
)

const (
	frameProposal   = "proposal"
	frameRequest    = "request"
	frameDisconnect = "disconnect"
	frameApprove    = "approve"
	frameReject     = "reject"
	frameResponse   = "response"
	framePing       = "ping"
	framePong       = "pong"
)

// envelope is the wire envelope shared by all bridge frames.
type envelope struct {
	Type      string                `json:"type"`
	ID        string                `json:"id,omitempty"`
	Topic     string                `json:"topic,omitempty"`
	PeerID    string                `json:"peerId,omitempty"`
	Accounts  []string              `json:"accounts,omitempty"`
	Reason    string                `json:"reason,omitempty"`
	RequestID string                `json:"requestId,omitempty"`
	Kind      string                `json:"kind,omitempty"`
	Payload   json.RawMessage       `json:"payload,omitempty"`
	ExpiresAt *time.Time            `json:"expiresAt,omitempty"`
	Proposal  *wc.Proposal          `json:"proposal,omitempty"`
	Result    json.RawMessage       `json:"result,omitempty"`
	Error     *transport.ErrorReply `json:"error,omitempty"`
}

// Client is a websocket bridge client implementing transport.Adapter.
type Client struct {
	logger       *zap.Logger
	conn         *websocket.Conn
	writeTimeout time.Duration
	pingTimeout  time.Duration

	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu         sync.Mutex
	pongs      map[string]chan struct{}
	proposalCb func(wc.Proposal)
	requestCb  func(transport.Request)
	closeCb    func(peerID string)
}

var _ transport.Adapter = (*Client)(nil)

// Dial connects to the bridge and starts the read loop.
func Dial(ctx context.Context, logger *zap.Logger, cfg config.RelayConfig) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay bridge: %w", err)
	}

	c := &Client{
		logger:       logger.Named("transport.relay"),
		conn:         conn,
		writeTimeout: cfg.WriteTimeout,
		pingTimeout:  cfg.PingTimeout,
		pongs:        make(map[string]chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close closes the bridge connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) OnProposal(fn func(wc.Proposal)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proposalCb = fn
}

func (c *Client) OnRequest(fn func(transport.Request)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCb = fn
}

func (c *Client) OnPeerDisconnect(fn func(peerID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCb = fn
}

func (c *Client) SendApprove(ctx context.Context, topic string, accounts []string) error {
	return c.write(ctx, envelope{Type: frameApprove, Topic: topic, Accounts: accounts})
}

func (c *Client) SendReject(ctx context.Context, topic, reason string) error {
	return c.write(ctx, envelope{Type: frameReject, Topic: topic, Reason: reason})
}

func (c *Client) SendResponse(ctx context.Context, topic, requestID string, result json.RawMessage, respErr *transport.ErrorReply) error {
	return c.write(ctx, envelope{
		Type:      frameResponse,
		Topic:     topic,
		RequestID: requestID,
		Result:    result,
		Error:     respErr,
	})
}

func (c *Client) SendDisconnect(ctx context.Context, topic string) error {
	return c.write(ctx, envelope{Type: frameDisconnect, Topic: topic})
}

// Ping sends a bridge-level ping for the topic and waits for the pong.
func (c *Client) Ping(ctx context.Context, topic string) error {
	id := uuid.New().String()
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	c.pongs[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pongs, id)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, envelope{Type: framePing, ID: id, Topic: topic}); err != nil {
		return err
	}

	timer := time.NewTimer(c.pingTimeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return fmt.Errorf("ping timeout for topic %s", topic)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(_ context.Context, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Warn("relay read loop closed", zap.Error(err))
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Error("failed to unmarshal frame", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	c.mu.Lock()
	proposalCb, requestCb, closeCb := c.proposalCb, c.requestCb, c.closeCb
	pong := c.pongs[env.ID]
	c.mu.Unlock()

	switch env.Type {
	case frameProposal:
		if env.Proposal == nil {
			c.logger.Warn("proposal frame without body")
			return
		}
		if proposalCb != nil {
			proposalCb(*env.Proposal)
		}
	case frameRequest:
		if requestCb == nil {
			return
		}
		req := transport.Request{
			SessionID: env.PeerID,
			RequestID: env.RequestID,
			Kind:      wc.ActionKind(env.Kind),
			Payload:   env.Payload,
		}
		if env.ExpiresAt != nil {
			req.ExpiresAt = *env.ExpiresAt
		}
		requestCb(req)
	case frameDisconnect:
		if closeCb != nil {
			closeCb(env.PeerID)
		}
	case framePong:
		if pong != nil {
			select {
			case pong <- struct{}{}:
			default:
			}
		}
	default:
		c.logger.Debug("ignoring unknown frame type", zap.String("type", env.Type))
	}
}
