package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const defaultSubjectPrefix = "dispatch.events."

// NATSChannel adapts a NATS connection to the realtime contract, one
// subject per event name. Subscriptions survive reconnects via the
// client library; registered identities are replayed from the
// reconnect handler.
type NATSChannel struct {
	url    string
	prefix string
	logger *zap.Logger

	mu         sync.Mutex
	conn       *nats.Conn
	identities []string
}

// NewNATSChannel constructs the channel for the given NATS URL.
func NewNATSChannel(url, prefix string, logger *zap.Logger) *NATSChannel {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSChannel{url: url, prefix: prefix, logger: logger}
}

// Connect establishes the NATS connection.
func (c *NATSChannel) Connect(_ context.Context) error {
	conn, err := nats.Connect(c.url,
		nats.Name("riderfront"),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.logger.Info("realtime channel reconnected", zap.String("url", conn.ConnectedUrl()))
			c.replayIdentities()
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *NATSChannel) replayIdentities() {
	c.mu.Lock()
	identities := append([]string(nil), c.identities...)
	c.mu.Unlock()
	for _, id := range identities {
		if err := c.publish("registerUser", id); err != nil {
			c.logger.Warn("identity replay failed", zap.String("user_id", id), zap.Error(err))
		}
	}
}

// RegisterIdentity announces the user and remembers the id for replay.
func (c *NATSChannel) RegisterIdentity(_ context.Context, userID string) error {
	c.mu.Lock()
	c.identities = append(c.identities, userID)
	c.mu.Unlock()
	return c.publish("registerUser", userID)
}

// Emit publishes one event.
func (c *NATSChannel) Emit(_ context.Context, event string, payload any) error {
	return c.publish(event, payload)
}

func (c *NATSChannel) publish(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	if err := conn.Publish(c.prefix+event, data); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// On subscribes a handler and returns its disposer.
func (c *NATSChannel) On(event string, handler func(payload []byte)) func() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		// Subscribing before Connect is a wiring bug; keep the
		// contract total by returning a no-op disposer.
		c.logger.Error("subscribe before connect", zap.String("event", event))
		return func() {}
	}
	sub, err := conn.Subscribe(c.prefix+event, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		c.logger.Error("subscribe failed", zap.String("event", event), zap.Error(err))
		return func() {}
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("unsubscribe failed", zap.String("event", event), zap.Error(err))
		}
	}
}

// Close drains the connection.
func (c *NATSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Drain()
	c.conn = nil
	return err
}
