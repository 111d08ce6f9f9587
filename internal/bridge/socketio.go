package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fafa-a/runtty/pkg/logger"
	"github.com/google/uuid"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// SocketOptions configures a network bridge connection.
type SocketOptions struct {
	// ServerURL is the base URL of the backend bridge server.
	ServerURL string
	// Path is the Socket.IO path on the server.
	Path string
	// Token is an optional bearer token sent in the handshake auth payload.
	Token string
	// CallTimeout bounds calls issued without a context deadline.
	CallTimeout time.Duration
}

// SocketTransport is the network bridge, backed by a Socket.IO connection.
// Calls are events emitted with an acknowledgement; pushes are plain server
// events.
type SocketTransport struct {
	opts     SocketOptions
	clientID string

	mu        sync.RWMutex
	socket    *socket.Socket
	connected bool
	hooked    map[string]bool
	closeOnce sync.Once

	subs *registry
}

var _ Transport = (*SocketTransport)(nil)

// Dial starts a Socket.IO connection. The handshake continues in the
// background; use WaitForConnect to block until it completes.
func Dial(opts SocketOptions) (*SocketTransport, error) {
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("bridge url is empty")
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}
	if opts.Token != "" {
		expired, exp := tokenExpired(opts.Token, time.Now())
		if expired {
			return nil, fmt.Errorf("bridge token expired at %s", exp.Format(time.RFC3339))
		}
	}

	t := &SocketTransport{
		opts:     opts,
		clientID: uuid.NewString(),
		hooked:   make(map[string]bool),
		subs:     newRegistry(),
	}
	if err := t.connect(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SocketTransport) connect() error {
	logger.Debugf("bridge: connecting to %s (path: %s)", t.opts.ServerURL, t.opts.Path)

	sopts := socket.DefaultOptions()
	if t.opts.Path != "" {
		sopts.SetPath(t.opts.Path)
	}
	sopts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))

	auth := map[string]interface{}{
		"clientId":   t.clientID,
		"clientType": "runtty",
	}
	if t.opts.Token != "" {
		auth["token"] = t.opts.Token
	}
	sopts.SetAuth(auth)

	sock, err := socket.Connect(t.opts.ServerURL, sopts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	t.mu.Lock()
	t.socket = sock
	t.mu.Unlock()

	sock.On(types.EventName("connect"), func(args ...any) {
		t.mu.Lock()
		t.connected = true
		t.mu.Unlock()
		logger.Debugf("bridge: connected, id %s", sock.Id())
	})

	sock.On(types.EventName("disconnect"), func(args ...any) {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()

		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		logger.Infof("bridge: disconnected: %s", reason)
	})

	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			logger.Warnf("bridge: connection error: %v", args[0])
		}
	})

	return nil
}

// WaitForConnect waits for the socket to report connected or times out.
func (t *SocketTransport) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if t.Available() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return t.Available()
}

// Call implements Transport.
func (t *SocketTransport) Call(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	t.mu.RLock()
	sock := t.socket
	t.mu.RUnlock()

	if sock == nil {
		return nil, unavailable(name, nil, "not connected")
	}
	if !t.Available() {
		return nil, unavailable(name, nil, "disconnected")
	}

	data, err := payloadArg(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", name, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.CallTimeout)
		defer cancel()
	}

	logger.Tracef("bridge: call %s", name)

	resultCh := make(chan []any, 1)
	errCh := make(chan error, 1)

	sock.Emit(name, data, func(args []any, err error) {
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- args
	})

	select {
	case args := <-resultCh:
		raw, err := ackBody(args)
		if err != nil {
			return nil, &TransportError{Call: name, Kind: KindMalformed, Err: err}
		}
		return decodeResponse(name, raw)
	case err := <-errCh:
		return nil, unavailable(name, err, "ack failed")
	case <-ctx.Done():
		return nil, unavailable(name, ctx.Err(), "no response")
	}
}

// Subscribe implements Transport. The Socket.IO listener for a channel is
// installed on first use; events are handed to subscribers inline so that
// per-channel order is preserved.
func (t *SocketTransport) Subscribe(name string, handler Handler) func() {
	_, cancel := t.subs.add(name, handler)

	t.mu.Lock()
	sock := t.socket
	install := sock != nil && !t.hooked[name]
	if install {
		t.hooked[name] = true
	}
	t.mu.Unlock()

	if install {
		sock.On(types.EventName(name), func(args ...any) {
			raw, err := ackBody(args)
			if err != nil {
				logger.Warnf("bridge: dropping malformed %s push: %v", name, err)
				return
			}
			logger.Tracef("bridge: push %s", name)
			t.subs.deliver(name, raw)
		})
	}
	return cancel
}

// Available implements Transport.
func (t *SocketTransport) Available() bool {
	t.mu.RLock()
	sock := t.socket
	connected := t.connected
	t.mu.RUnlock()

	if connected {
		return true
	}

	if sock != nil && sock.Connected() {
		t.mu.Lock()
		t.connected = true
		t.mu.Unlock()
		return true
	}

	return false
}

// Close implements Transport.
func (t *SocketTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if t.socket != nil {
			t.socket.Disconnect()
			t.socket = nil
		}
		t.connected = false
		t.subs.clear()
	})
	return nil
}

// payloadArg turns a JSON request body into the value handed to Emit. The
// backend always receives an object, even for calls without fields.
func payloadArg(payload json.RawMessage) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	if len(payload) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// ackBody re-encodes the first Socket.IO argument as JSON.
func ackBody(args []any) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing ack payload")
	}
	switch v := args[0].(type) {
	case nil:
		return nil, fmt.Errorf("empty ack payload")
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// Open returns a connected network transport, or Unavailable when no bridge
// is configured or it cannot be reached within the call timeout. It is meant
// to be called once at startup and the result injected downstream.
func Open(opts SocketOptions) Transport {
	if opts.ServerURL == "" {
		return Unavailable{Reason: "no bridge configured"}
	}
	t, err := Dial(opts)
	if err != nil {
		logger.Warnf("bridge: %v", err)
		return Unavailable{Reason: err.Error()}
	}
	if !t.WaitForConnect(t.opts.CallTimeout) {
		_ = t.Close()
		logger.Warnf("bridge: %s did not connect within %s", opts.ServerURL, t.opts.CallTimeout)
		return Unavailable{Reason: "bridge did not connect"}
	}
	return t
}
