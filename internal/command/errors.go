package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fafa-a/runtty/internal/bridge"
	"github.com/fafa-a/runtty/internal/runstate"
)

// ErrNotRunning is returned by Stop for a path outside the running set. The
// stop is never sent to the backend.
var ErrNotRunning = runstate.ErrNotRunning

// ErrSuperseded is returned when a newer command for the same path was issued
// before the response arrived. The response was dropped.
var ErrSuperseded = errors.New("command superseded")

// CommandError reports a start or stop the backend rejected or the bridge
// could not deliver.
type CommandError struct {
	Path string
	Kind runstate.Kind
	// Message describes an unexpected response when there is no cause.
	Message string
	Err     error
}

// Error implements error.
func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Path, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CommandError) Unwrap() error { return e.Err }

// Message turns a dispatcher error into the text shown to the user. It
// returns "" for outcomes that need no message. Bridge failures are worded
// differently from errors the backend declared.
func Message(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrSuperseded):
		return ""
	case errors.Is(err, ErrNotRunning):
		return "Project is not running"
	case errors.Is(err, runstate.ErrClosed):
		return "Session closed"
	}

	verb, name := "run command", ""
	var ce *CommandError
	if errors.As(err, &ce) {
		verb, name = ce.Kind.String(), " "+displayName(ce.Path)
	}

	var te *bridge.TransportError
	if errors.As(err, &te) {
		switch te.Kind {
		case bridge.KindUnavailable:
			return fmt.Sprintf("Cannot %s%s: backend unavailable", verb, name)
		case bridge.KindMalformed:
			return fmt.Sprintf("Cannot %s%s: unexpected response from backend", verb, name)
		case bridge.KindRemote:
			return fmt.Sprintf("Failed to %s%s: %s", verb, name, te.Message)
		}
	}
	if ce != nil && ce.Message != "" {
		return fmt.Sprintf("Failed to %s%s: %s", verb, name, ce.Message)
	}
	return err.Error()
}

func displayName(path string) string {
	trimmed := strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		return trimmed[i+1:]
	}
	if trimmed == "" {
		return path
	}
	return trimmed
}
