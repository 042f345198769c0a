package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Emitted records one outbound event.
type Emitted struct {
	Event   string
	Payload []byte
}

// MemoryChannel is an in-process channel used by tests and by local
// runs without a realtime backend configured.
type MemoryChannel struct {
	mu         sync.Mutex
	handlers   map[string]map[int]func([]byte)
	nextID     int
	emitted    []Emitted
	identities []string
	connected  bool
}

// NewMemoryChannel constructs an empty channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{handlers: make(map[string]map[int]func([]byte))}
}

// Connect marks the channel connected.
func (c *MemoryChannel) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

// RegisterIdentity records the announced user id.
func (c *MemoryChannel) RegisterIdentity(ctx context.Context, userID string) error {
	c.mu.Lock()
	c.identities = append(c.identities, userID)
	c.mu.Unlock()
	return c.Emit(ctx, "registerUser", userID)
}

// Emit records the event.
func (c *MemoryChannel) Emit(_ context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = append(c.emitted, Emitted{Event: event, Payload: data})
	return nil
}

// On subscribes a handler and returns its disposer.
func (c *MemoryChannel) On(event string, handler func(payload []byte)) func() {
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

// Deliver simulates an inbound event.
func (c *MemoryChannel) Deliver(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	registered := make([]func([]byte), 0, len(c.handlers[event]))
	for _, handler := range c.handlers[event] {
		registered = append(registered, handler)
	}
	c.mu.Unlock()
	for _, handler := range registered {
		handler(data)
	}
	return nil
}

// Emitted returns a copy of recorded outbound events.
func (c *MemoryChannel) Emitted() []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Emitted(nil), c.emitted...)
}

// Identities returns the announced user ids.
func (c *MemoryChannel) Identities() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.identities...)
}

// HandlerCount reports live subscriptions for the event (for leak
// assertions in tests).
func (c *MemoryChannel) HandlerCount(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[event])
}
