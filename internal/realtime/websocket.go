package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when emitting before a connection exists.
var ErrNotConnected = errors.New("realtime channel not connected")

// Envelope is the JSON frame exchanged with the socket backend.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WebSocketChannel is the production realtime transport. It keeps one
// connection to the dispatch backend, fans incoming events out to
// subscribed handlers, reconnects with backoff, and replays registered
// identities after every reconnect.
type WebSocketChannel struct {
	url    string
	logger *zap.Logger
	dialer websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	handlers   map[string]map[int]func([]byte)
	nextID     int
	identities []string
	closed     bool
}

// NewWebSocketChannel constructs the channel for the given ws:// URL.
func NewWebSocketChannel(url string, logger *zap.Logger) *WebSocketChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketChannel{
		url:      url,
		logger:   logger,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handlers: make(map[string]map[int]func([]byte)),
	}
}

// Connect dials the backend and starts the read loop. The loop runs
// until ctx ends or Close is called, redialing on failure.
func (c *WebSocketChannel) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial realtime backend: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info("realtime channel connected", zap.String("url", c.url))
	go c.run(ctx)
	return nil
}

func (c *WebSocketChannel) run(ctx context.Context) {
	for {
		c.readLoop()
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		if !c.reconnect(ctx) {
			return
		}
	}
}

func (c *WebSocketChannel) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.logger.Warn("realtime read failed", zap.Error(err))
			}
			return
		}
		var envelope Envelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			c.logger.Warn("malformed realtime frame", zap.Error(err))
			continue
		}
		c.dispatch(envelope.Event, envelope.Data)
	}
}

func (c *WebSocketChannel) dispatch(event string, data []byte) {
	c.mu.Lock()
	registered := make([]func([]byte), 0, len(c.handlers[event]))
	for _, handler := range c.handlers[event] {
		registered = append(registered, handler)
	}
	c.mu.Unlock()
	for _, handler := range registered {
		handler(data)
	}
}

// reconnect redials with exponential backoff and replays the
// registered identities once a connection is reestablished.
func (c *WebSocketChannel) reconnect(ctx context.Context) bool {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if c.isClosed() {
			return false
		}
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logger.Warn("realtime redial failed", zap.Error(err))
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		c.mu.Lock()
		c.conn = conn
		identities := append([]string(nil), c.identities...)
		c.mu.Unlock()
		c.logger.Info("realtime channel reconnected", zap.String("url", c.url))
		for _, id := range identities {
			if err := c.send("registerUser", id); err != nil {
				c.logger.Warn("identity replay failed", zap.String("user_id", id), zap.Error(err))
			}
		}
		return true
	}
}

// RegisterIdentity announces the user and remembers the id for
// replay after reconnects.
func (c *WebSocketChannel) RegisterIdentity(_ context.Context, userID string) error {
	c.mu.Lock()
	c.identities = append(c.identities, userID)
	c.mu.Unlock()
	return c.send("registerUser", userID)
}

// Emit sends one event frame.
func (c *WebSocketChannel) Emit(_ context.Context, event string, payload any) error {
	return c.send(event, payload)
}

func (c *WebSocketChannel) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return ErrNotConnected
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s frame: %w", event, err)
	}
	return nil
}

// On subscribes a handler and returns its disposer. The disposer must
// be invoked exactly once when the owning flow ends.
func (c *WebSocketChannel) On(event string, handler func(payload []byte)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]func([]byte))
	}
	id := c.nextID
	c.nextID++
	c.handlers[event][id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

func (c *WebSocketChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears the connection down permanently.
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
