// Package bridge implements the call/push channel between runtty and its
// backend process.
//
// A Transport offers request/response calls and backend-originated push
// events. Components above this package never know whether the bridge is an
// in-process object or a network connection: every failure surfaces as a
// *TransportError.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fafa-a/runtty/internal/protocol/wire"
)

// Handler receives one push payload. Handlers run inline on the delivery path
// and must not block.
type Handler func(payload json.RawMessage)

// Transport is the bridge capability injected into higher layers.
type Transport interface {
	// Call sends a request and returns the response body, a JSON object.
	Call(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error)
	// Subscribe registers handler for pushes on channel name. Delivery order
	// on one channel matches backend send order. The returned func removes
	// the subscription.
	Subscribe(name string, handler Handler) func()
	// Available reports whether calls can currently reach a backend.
	Available() bool
	// Close releases the transport.
	Close() error
}

// ErrorKind classifies a TransportError.
type ErrorKind int

const (
	// KindUnavailable means the channel is missing, disconnected or timed out.
	KindUnavailable ErrorKind = iota
	// KindMalformed means the response was not a JSON object.
	KindMalformed
	// KindRemote means the backend declared the operation failed.
	KindRemote
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindMalformed:
		return "malformed"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TransportError is returned by every failed Call.
type TransportError struct {
	// Call is the bridge call name.
	Call string
	// Kind classifies the failure.
	Kind ErrorKind
	// Message is the backend error text for KindRemote, or a description.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("bridge %s %s: %s: %v", e.Call, e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("bridge %s %s: %v", e.Call, e.Kind, e.Err)
	default:
		return fmt.Sprintf("bridge %s %s: %s", e.Call, e.Kind, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// RemoteMessage returns the backend-declared error text when err is a
// KindRemote TransportError.
func RemoteMessage(err error) (string, bool) {
	var te *TransportError
	if !errors.As(err, &te) || te.Kind != KindRemote {
		return "", false
	}
	return te.Message, true
}

// IsUnavailable reports whether err means the bridge could not be reached.
func IsUnavailable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == KindUnavailable
}

func unavailable(call string, err error, format string, args ...any) *TransportError {
	return &TransportError{
		Call:    call,
		Kind:    KindUnavailable,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// decodeResponse validates a raw response body. Anything other than a JSON
// object is malformed; an object with a non-empty "error" string is a
// backend-declared failure.
func decodeResponse(call string, raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, &TransportError{
			Call:    call,
			Kind:    KindMalformed,
			Message: "response is not a JSON object",
		}
	}

	var resp wire.ErrorResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, &TransportError{Call: call, Kind: KindMalformed, Err: err}
		}
		// Non-string error values are still failures.
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, &TransportError{Call: call, Kind: KindMalformed, Err: err}
		}
		resp.Error = string(envelope["error"])
	}
	if resp.Error != "" {
		return nil, &TransportError{Call: call, Kind: KindRemote, Message: resp.Error}
	}
	return json.RawMessage(trimmed), nil
}

// CallJSON marshals req (nil for no payload), performs the call and decodes
// the response into resp. Decode failures are KindMalformed.
func CallJSON(ctx context.Context, t Transport, name string, req any, resp any) error {
	if t == nil {
		return unavailable(name, nil, "no transport")
	}
	var payload json.RawMessage
	if req != nil {
		raw, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", name, err)
		}
		payload = raw
	}

	raw, err := t.Call(ctx, name, payload)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if err := json.Unmarshal(raw, resp); err != nil {
		return &TransportError{Call: name, Kind: KindMalformed, Err: err}
	}
	return nil
}

// Unavailable is the Transport variant used when no bridge exists. Every call
// fails with KindUnavailable; subscriptions never fire.
type Unavailable struct {
	// Reason explains why the bridge is missing.
	Reason string
}

var _ Transport = Unavailable{}

// Call implements Transport.
func (u Unavailable) Call(_ context.Context, name string, _ json.RawMessage) (json.RawMessage, error) {
	reason := u.Reason
	if reason == "" {
		reason = "bridge not available"
	}
	return nil, unavailable(name, nil, "%s", reason)
}

// Subscribe implements Transport.
func (Unavailable) Subscribe(string, Handler) func() { return func() {} }

// Available implements Transport.
func (Unavailable) Available() bool { return false }

// Close implements Transport.
func (Unavailable) Close() error { return nil }
