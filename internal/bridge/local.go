package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fafa-a/runtty/pkg/logger"
)

// LocalHandler serves one call name on a Local bridge. A returned error is a
// backend-declared failure.
type LocalHandler func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Local is the in-process bridge object: the host registers call handlers and
// pushes events directly, without a network hop.
type Local struct {
	mu       sync.RWMutex
	handlers map[string]LocalHandler
	closed   bool

	subs   *registry
	pushMu sync.Mutex
}

var _ Transport = (*Local)(nil)

// NewLocal creates an empty in-process bridge.
func NewLocal() *Local {
	return &Local{
		handlers: make(map[string]LocalHandler),
		subs:     newRegistry(),
	}
}

// Handle registers handler for a call name, replacing any previous one.
func (l *Local) Handle(name string, handler LocalHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[name] = handler
	logger.Tracef("bridge: local handler registered: %s", name)
}

// Call implements Transport.
func (l *Local) Call(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(name, err, "call aborted")
	}

	l.mu.RLock()
	handler, ok := l.handlers[name]
	closed := l.closed
	l.mu.RUnlock()

	if closed {
		return nil, unavailable(name, nil, "bridge closed")
	}
	if !ok {
		return nil, unavailable(name, nil, "no handler for %s", name)
	}

	logger.Tracef("bridge: local call %s payload=%s", name, payload)
	resp, err := handler(ctx, payload)
	if err != nil {
		return nil, &TransportError{Call: name, Kind: KindRemote, Message: err.Error()}
	}
	return decodeResponse(name, resp)
}

// Push delivers a backend event to the subscribers of name and returns how
// many handlers ran. Concurrent pushes are serialized so every channel
// observes them in call order.
func (l *Local) Push(name string, payload json.RawMessage) int {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return 0
	}

	l.pushMu.Lock()
	defer l.pushMu.Unlock()
	logger.Tracef("bridge: local push %s payload=%s", name, payload)
	return l.subs.deliver(name, payload)
}

// PushJSON marshals v and pushes it on name.
func (l *Local) PushJSON(name string, v any) (int, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return l.Push(name, raw), nil
}

// Subscribe implements Transport.
func (l *Local) Subscribe(name string, handler Handler) func() {
	_, cancel := l.subs.add(name, handler)
	return cancel
}

// Available implements Transport.
func (l *Local) Available() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.closed
}

// Close implements Transport. Later calls fail with KindUnavailable.
func (l *Local) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.subs.clear()
	return nil
}
