// Package session wires the bridge, running-state store, project directory
// and command dispatcher into one client session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fafa-a/runtty/internal/bridge"
	"github.com/fafa-a/runtty/internal/command"
	"github.com/fafa-a/runtty/internal/projects"
	"github.com/fafa-a/runtty/internal/protocol/wire"
	"github.com/fafa-a/runtty/internal/runstate"
	"github.com/fafa-a/runtty/pkg/logger"
)

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("session closed")

// Session is the client side of one bridge connection.
type Session struct {
	transport     bridge.Transport
	store         *runstate.Store
	dir           *projects.Directory
	disp          *command.Dispatcher
	commandIndex  int
	syncOnConnect bool

	mu          sync.Mutex
	unsubscribe func()
	lastErr     string
	closed      bool
}

// Option configures a Session.
type Option func(*sessionConfig)

type sessionConfig struct {
	commandIndex  int
	syncOnConnect bool
	storeOpts     []runstate.Option
}

// WithCommandIndex sets the run command index sent with every start.
func WithCommandIndex(i int) Option {
	return func(c *sessionConfig) { c.commandIndex = i }
}

// WithSyncOnConnect controls whether Connect asks the backend for the
// running projects. It defaults to true.
func WithSyncOnConnect(enabled bool) Option {
	return func(c *sessionConfig) { c.syncOnConnect = enabled }
}

// WithStoreOptions passes options to the running-state store.
func WithStoreOptions(opts ...runstate.Option) Option {
	return func(c *sessionConfig) { c.storeOpts = append(c.storeOpts, opts...) }
}

// New creates a session on t. Call Connect before issuing commands.
func New(t bridge.Transport, opts ...Option) *Session {
	cfg := sessionConfig{syncOnConnect: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := runstate.New(cfg.storeOpts...)
	return &Session{
		transport:     t,
		store:         store,
		dir:           projects.NewDirectory(t),
		disp:          command.New(t, store),
		commandIndex:  cfg.commandIndex,
		syncOnConnect: cfg.syncOnConnect,
	}
}

// Connect subscribes to status events for the lifetime of the session and
// then, unless disabled, syncs the running set from the backend. Calling it
// again only re-syncs.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.unsubscribe == nil {
		s.unsubscribe = s.transport.Subscribe(wire.ChannelProjectStatus, StatusHandler(s.store))
		logger.Debugf("session: subscribed to %s", wire.ChannelProjectStatus)
	}
	s.mu.Unlock()

	if !s.syncOnConnect {
		return nil
	}
	return s.Sync(ctx)
}

// Sync reconciles the running set with the backend.
func (s *Session) Sync(ctx context.Context) error {
	changed, err := s.disp.Sync(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Cannot sync running projects: %v", err))
		return err
	}
	logger.Infof("session: synced running projects (%d changed)", changed)
	return nil
}

// OpenWorkspace asks the backend for a workspace folder and replaces the
// project list. A cancelled selection is not an error.
func (s *Session) OpenWorkspace(ctx context.Context) error {
	err := s.dir.Open(ctx)
	if projects.IsCancelled(err) {
		return nil
	}
	return err
}

// Projects returns the displayed project list.
func (s *Session) Projects() []projects.Project { return s.dir.Projects() }

// Root returns the displayed workspace root.
func (s *Session) Root() string { return s.dir.Root() }

// WorkspaceError returns the workspace error message, empty when there is none.
func (s *Session) WorkspaceError() string { return s.dir.Error() }

// Lookup resolves a displayed project by name or path.
func (s *Session) Lookup(nameOrPath string) (projects.Project, bool) {
	return s.dir.Lookup(nameOrPath)
}

// Running returns the current running set.
func (s *Session) Running() runstate.Snapshot { return s.store.Snapshot() }

// IsRunning reports whether path is running.
func (s *Session) IsRunning(path string) bool { return s.store.IsRunning(path) }

// Watch returns a channel signalled when the running set changes.
func (s *Session) Watch() (<-chan struct{}, func()) { return s.store.Watch() }

// Available reports whether the bridge is connected.
func (s *Session) Available() bool { return s.transport.Available() }

// Start starts path with the session's command index.
func (s *Session) Start(ctx context.Context, path string) error {
	return s.StartCommand(ctx, path, s.commandIndex)
}

// StartCommand starts path with the given command index.
func (s *Session) StartCommand(ctx context.Context, path string, index int) error {
	err := s.disp.Start(ctx, path, index)
	s.record(err)
	return err
}

// Stop stops path.
func (s *Session) Stop(ctx context.Context, path string) error {
	err := s.disp.Stop(ctx, path)
	s.record(err)
	return err
}

// StopAll stops every running project.
func (s *Session) StopAll(ctx context.Context) error {
	err := s.disp.StopAll(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Some projects did not stop: %v", err))
		return err
	}
	s.setLastError("")
	return nil
}

// LastError returns the message of the last failed command, empty after a
// successful one.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close ends the status subscription and stops the store. The transport is
// left open; its owner closes it.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.store.Close()
	return nil
}

func (s *Session) record(err error) {
	if errors.Is(err, command.ErrSuperseded) {
		return
	}
	s.setLastError(command.Message(err))
}

func (s *Session) setLastError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}
