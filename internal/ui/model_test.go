package ui

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fafa-a/runtty/internal/bridge"
	"github.com/fafa-a/runtty/internal/protocol/wire"
	"github.com/fafa-a/runtty/internal/session"
	"github.com/stretchr/testify/require"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds a key to the model and runs the command it returns, feeding
// the resulting message back in.
func press(t *testing.T, m Model, msg tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	if out := cmd(); out != nil {
		next, _ = m.Update(out)
		m = next.(Model)
	}
	return m
}

func newTestSession(t *testing.T) (*session.Session, *atomic.Int32) {
	t.Helper()
	local := bridge.NewLocal()
	t.Cleanup(func() { _ = local.Close() })

	var stops atomic.Int32
	local.Handle(wire.CallFolderPick, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"folders":["web","api"],"path":"/ws"}`), nil
	})
	local.Handle(wire.CallProjectRunning, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"running":[]}`), nil
	})
	local.Handle(wire.CallProjectStart, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"status":"running"}`), nil
	})
	local.Handle(wire.CallProjectStop, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		stops.Add(1)
		return json.RawMessage(`{"status":"stopped"}`), nil
	})

	s := session.New(local)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Connect(context.Background()))
	return s, &stops
}

func TestModelStartStopFlow(t *testing.T) {
	sess, stops := newTestSession(t)
	m := New(context.Background(), sess)
	defer m.Close()

	require.Contains(t, m.View(), "Press o to open")

	m = press(t, m, runes("o"))
	require.Len(t, m.projects, 2)
	require.Equal(t, "api", m.projects[0].Name)
	require.Contains(t, m.View(), "/ws")

	// Stop is disabled while the selection is not running.
	require.False(t, m.keys.Stop.Enabled())
	m = press(t, m, runes("x"))
	require.Zero(t, stops.Load())

	m = press(t, m, runes("s"))
	require.True(t, sess.IsRunning("/ws/api"))
	require.True(t, m.running.Has("/ws/api"))
	require.True(t, m.keys.Stop.Enabled())
	require.Contains(t, m.View(), "running")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	require.Equal(t, 1, m.cursor)
	require.False(t, m.keys.Stop.Enabled())

	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m = press(t, m, runes("x"))
	require.EqualValues(t, 1, stops.Load())
	require.False(t, sess.IsRunning("/ws/api"))
	require.False(t, m.keys.StopAll.Enabled())
}

func TestModelShowsErrors(t *testing.T) {
	sess := session.New(bridge.Unavailable{})
	t.Cleanup(func() { _ = sess.Close() })

	m := New(context.Background(), sess)
	defer m.Close()

	m = press(t, m, runes("o"))
	view := m.View()
	require.Contains(t, view, "bridge unavailable")
	require.Contains(t, view, "Backend unavailable")
}

func TestModelQuit(t *testing.T) {
	sess, _ := newTestSession(t)
	m := New(context.Background(), sess)
	defer m.Close()

	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}
