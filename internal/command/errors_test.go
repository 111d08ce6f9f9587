package command

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fafa-a/runtty/internal/bridge"
	"github.com/fafa-a/runtty/internal/runstate"
	"github.com/stretchr/testify/require"
)

func TestMessage(t *testing.T) {
	remote := &bridge.TransportError{Call: "project.stop", Kind: bridge.KindRemote, Message: "busy"}
	malformed := &bridge.TransportError{Call: "project.start", Kind: bridge.KindMalformed}

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"superseded", ErrSuperseded, ""},
		{"not running", fmt.Errorf("stop: %w", ErrNotRunning), "Project is not running"},
		{"closed", fmt.Errorf("start /ws/a: %w", runstate.ErrClosed), "Session closed"},
		{"remote", &CommandError{Path: "/ws/api", Kind: runstate.KindStop, Err: remote}, "Failed to stop api: busy"},
		{"malformed", &CommandError{Path: `C:\ws\web`, Kind: runstate.KindStart, Err: malformed}, "Cannot start web: unexpected response from backend"},
		{"bare transport", remote, "Failed to run command: busy"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Message(tc.err))
		})
	}
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "api", displayName("/ws/api"))
	require.Equal(t, "api", displayName("/ws/api/"))
	require.Equal(t, "web", displayName(`C:\ws\web`))
	require.Equal(t, "solo", displayName("solo"))
	require.Equal(t, "/", displayName("/"))
}
