package runstate

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrNotRunning is returned by Begin when a stop is requested for a path that
// is not in the running set.
var ErrNotRunning = errors.New("project is not running")

// Source identifies who produced a Delta.
type Source int

const (
	// SourceCommand is an optimistic or confirmed command update.
	SourceCommand Source = iota
	// SourcePush is a backend lifecycle push; it is authoritative.
	SourcePush
	// SourceSync is a connect-time reconciliation with the backend listing.
	SourceSync
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceCommand:
		return "command"
	case SourcePush:
		return "push"
	case SourceSync:
		return "sync"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Delta sets the running membership of one path.
type Delta struct {
	Path    string
	Running bool
	Source  Source
}

// Kind is the type of a pending command.
type Kind int

const (
	KindStart Kind = iota
	KindStop
)

// String returns the command name.
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindStop:
		return "stop"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Pending is an in-flight command whose response has not been observed.
type Pending struct {
	ID       uuid.UUID
	Path     string
	Kind     Kind
	IssuedAt time.Time
	// WasRunning is the membership the command started from. A start that
	// supersedes another pending start inherits that start's value, so a
	// failed start restores the state before the optimistic update.
	WasRunning bool

	// seq is the store sequence at issue time; pushes with a higher sequence
	// overtake the command.
	seq uint64
}

// matches reports whether p and other identify the same command.
func (p Pending) matches(other Pending) bool {
	return p.ID == other.ID && p.Path == other.Path && p.Kind == other.Kind &&
		p.IssuedAt.Equal(other.IssuedAt)
}

// Resolution reports what Resolve did with a command response.
type Resolution int

const (
	// ResolutionApplied means the response was current and its delta (if
	// any) was applied.
	ResolutionApplied Resolution = iota
	// ResolutionStale means a newer command superseded this one; the
	// response was dropped.
	ResolutionStale
	// ResolutionOvertaken means a push for the path arrived after the command
	// was issued; the push wins and the response delta was dropped.
	ResolutionOvertaken
)

// String returns the resolution name.
func (r Resolution) String() string {
	switch r {
	case ResolutionApplied:
		return "applied"
	case ResolutionStale:
		return "stale"
	case ResolutionOvertaken:
		return "overtaken"
	default:
		return fmt.Sprintf("resolution(%d)", int(r))
	}
}

// Snapshot is an immutable view of the running set.
type Snapshot struct {
	paths map[string]struct{}
}

func newSnapshot(running map[string]struct{}) Snapshot {
	paths := make(map[string]struct{}, len(running))
	for p := range running {
		paths[p] = struct{}{}
	}
	return Snapshot{paths: paths}
}

// Has reports whether path is running.
func (s Snapshot) Has(path string) bool {
	_, ok := s.paths[path]
	return ok
}

// Len returns the number of running paths.
func (s Snapshot) Len() int { return len(s.paths) }

// Paths returns the running paths in lexical order.
func (s Snapshot) Paths() []string {
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
