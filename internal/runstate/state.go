package runstate

// state is the data owned by the store loop. Its methods are the only code
// that mutates the running set; they never block and never do I/O so they can
// be exercised directly in tests.
type state struct {
	running map[string]struct{}
	pending map[string]Pending

	// seq increases on every recorded event. lastTouch and lastPush remember
	// the sequence of the latest event per path.
	seq       uint64
	lastTouch map[string]uint64
	lastPush  map[string]uint64
}

func newState() *state {
	return &state{
		running:   make(map[string]struct{}),
		pending:   make(map[string]Pending),
		lastTouch: make(map[string]uint64),
		lastPush:  make(map[string]uint64),
	}
}

// apply sets membership for d.Path and reports whether it changed. Applying
// the value a path already has only records the event.
func (s *state) apply(d Delta) bool {
	s.seq++
	s.lastTouch[d.Path] = s.seq
	if d.Source == SourcePush {
		s.lastPush[d.Path] = s.seq
	}

	_, member := s.running[d.Path]
	if member == d.Running {
		return false
	}
	if d.Running {
		s.running[d.Path] = struct{}{}
	} else {
		delete(s.running, d.Path)
	}
	return true
}

// begin records p as the current command for its path, superseding any
// earlier one. Starts are applied optimistically; stops require membership.
func (s *state) begin(p Pending) (Pending, bool, error) {
	if p.Kind == KindStop {
		if _, member := s.running[p.Path]; !member {
			return Pending{}, false, ErrNotRunning
		}
	}

	_, member := s.running[p.Path]
	p.WasRunning = member
	if prev, ok := s.pending[p.Path]; ok && prev.Kind == KindStart && p.Kind == KindStart {
		p.WasRunning = prev.WasRunning
	}

	s.seq++
	p.seq = s.seq
	s.lastTouch[p.Path] = s.seq
	s.pending[p.Path] = p

	changed := false
	if p.Kind == KindStart {
		changed = s.apply(Delta{Path: p.Path, Running: true, Source: SourceCommand})
	}
	return p, changed, nil
}

// resolve settles the response of p. d is the response-driven delta, nil when
// the response needs no state change.
func (s *state) resolve(p Pending, d *Delta) (Resolution, bool) {
	cur, ok := s.pending[p.Path]
	if !ok || !cur.matches(p) {
		return ResolutionStale, false
	}
	delete(s.pending, p.Path)

	if s.lastPush[p.Path] > cur.seq {
		return ResolutionOvertaken, false
	}
	if d == nil {
		return ResolutionApplied, false
	}
	return ResolutionApplied, s.apply(*d)
}

// reconcile makes membership equal to the backend listing for every path not
// touched after mark and without a pending command, and returns how many
// paths changed.
func (s *state) reconcile(paths []string, mark uint64) int {
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p != "" {
			want[p] = struct{}{}
		}
	}

	candidates := make(map[string]struct{}, len(want)+len(s.running))
	for p := range want {
		candidates[p] = struct{}{}
	}
	for p := range s.running {
		candidates[p] = struct{}{}
	}

	changed := 0
	for p := range candidates {
		if s.lastTouch[p] > mark {
			continue
		}
		if _, pending := s.pending[p]; pending {
			continue
		}
		_, running := want[p]
		if s.apply(Delta{Path: p, Running: running, Source: SourceSync}) {
			changed++
		}
	}
	return changed
}
