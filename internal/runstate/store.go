// Package runstate holds the client-side model of which projects are running.
//
// The Store owns the running set and the table of in-flight commands. Three
// writers feed it: optimistic command updates, command responses and backend
// push events. They may arrive in any interleaving, so every mutation is
// idempotent per path and conflicts are settled by command supersession plus
// the rule that a push always wins over a response issued before it.
package runstate

import (
	"sync"
	"sync/atomic"

	"github.com/fafa-a/runtty/pkg/logger"
	"github.com/google/uuid"
)

const defaultQueueSize = 256

// Store is the running-state store. All methods are safe for concurrent use.
type Store struct {
	clock Clock
	newID func() uuid.UUID

	loop  *loop
	state *state
	snap  atomic.Pointer[Snapshot]

	watchMu  sync.Mutex
	watchers map[int]chan struct{}
	nextW    int
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to timestamp pending commands.
func WithClock(c Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithIDGenerator sets the generator for pending command IDs.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New creates an empty store and starts its loop.
func New(opts ...Option) *Store {
	s := &Store{
		clock:    RealClock{},
		newID:    uuid.New,
		loop:     newLoop(defaultQueueSize),
		state:    newState(),
		watchers: make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	empty := newSnapshot(nil)
	s.snap.Store(&empty)
	return s
}

// Apply is the single entry point for running-set mutations from outside the
// command flow (push events, tests). It reports whether membership changed.
func (s *Store) Apply(d Delta) bool {
	changed := false
	err := s.loop.run(func() {
		changed = s.state.apply(d)
		s.publish(changed)
	})
	if err != nil {
		return false
	}
	logger.Tracef("runstate: apply %s running=%t source=%s changed=%t", d.Path, d.Running, d.Source, changed)
	return changed
}

// Snapshot returns the current running set. It never blocks on the loop.
func (s *Store) Snapshot() Snapshot {
	return *s.snap.Load()
}

// IsRunning reports whether path is in the running set.
func (s *Store) IsRunning(path string) bool {
	return s.Snapshot().Has(path)
}

// Begin records a new command for path, superseding any command still
// pending for it. A start is applied optimistically in the same step. A stop
// for a path outside the running set is refused with ErrNotRunning and
// nothing is recorded.
func (s *Store) Begin(path string, kind Kind) (Pending, error) {
	p := Pending{
		ID:       s.newID(),
		Path:     path,
		Kind:     kind,
		IssuedAt: s.clock.Now(),
	}

	var (
		out Pending
		err error
	)
	runErr := s.loop.run(func() {
		var changed bool
		out, changed, err = s.state.begin(p)
		s.publish(changed)
	})
	if runErr != nil {
		return Pending{}, runErr
	}
	if err != nil {
		return Pending{}, err
	}
	logger.Tracef("runstate: begin %s %s id=%s", kind, path, out.ID)
	return out, nil
}

// Resolve settles the response of p. d is the delta the response implies,
// or nil when none is needed. Stale and overtaken responses leave the running
// set untouched.
func (s *Store) Resolve(p Pending, d *Delta) Resolution {
	res := ResolutionStale
	err := s.loop.run(func() {
		var changed bool
		res, changed = s.state.resolve(p, d)
		s.publish(changed)
	})
	if err != nil {
		return ResolutionStale
	}
	logger.Tracef("runstate: resolve %s %s id=%s: %s", p.Kind, p.Path, p.ID, res)
	return res
}

// Pending returns the command currently in flight for path.
func (s *Store) Pending(path string) (Pending, bool) {
	var (
		p  Pending
		ok bool
	)
	if err := s.loop.run(func() { p, ok = s.state.pending[path] }); err != nil {
		return Pending{}, false
	}
	return p, ok
}

// Mark returns the current event sequence. Pass it to Reconcile to ignore
// paths that changed after the mark was taken.
func (s *Store) Mark() uint64 {
	var seq uint64
	_ = s.loop.run(func() { seq = s.state.seq })
	return seq
}

// Reconcile replaces membership with the backend listing paths, skipping any
// path touched after mark. It returns how many paths changed.
func (s *Store) Reconcile(paths []string, mark uint64) int {
	changed := 0
	err := s.loop.run(func() {
		changed = s.state.reconcile(paths, mark)
		s.publish(changed > 0)
	})
	if err != nil {
		return 0
	}
	logger.Debugf("runstate: reconciled %d running paths, %d changed", len(paths), changed)
	return changed
}

// Watch returns a channel signalled after membership changes. Signals
// coalesce: a reader that falls behind sees one pending signal and should
// read Snapshot. The returned func stops the watch.
func (s *Store) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.watchMu.Lock()
	id := s.nextW
	s.nextW++
	s.watchers[id] = ch
	s.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, id)
			s.watchMu.Unlock()
		})
	}
}

// Close stops the store loop. Later mutations are ignored; Snapshot keeps
// returning the last state.
func (s *Store) Close() {
	s.loop.close()
}

// publish refreshes the snapshot and wakes watchers. It runs on the loop.
func (s *Store) publish(changed bool) {
	if !changed {
		return
	}
	next := newSnapshot(s.state.running)
	s.snap.Store(&next)

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
