package runstate_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fafa-a/runtty/internal/runstate"
	"github.com/fafa-a/runtty/internal/runstate/runstatetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreApplyAndSnapshot(t *testing.T) {
	t.Parallel()

	s := runstate.New()
	t.Cleanup(s.Close)

	require.Zero(t, s.Snapshot().Len())

	require.True(t, s.Apply(runstate.Delta{Path: "/ws/b", Running: true, Source: runstate.SourcePush}))
	require.True(t, s.Apply(runstate.Delta{Path: "/ws/a", Running: true, Source: runstate.SourcePush}))
	require.False(t, s.Apply(runstate.Delta{Path: "/ws/a", Running: true, Source: runstate.SourceCommand}))

	snap := s.Snapshot()
	require.Equal(t, []string{"/ws/a", "/ws/b"}, snap.Paths())
	require.True(t, s.IsRunning("/ws/a"))

	// Snapshots are immutable copies.
	require.True(t, s.Apply(runstate.Delta{Path: "/ws/a", Running: false}))
	require.True(t, snap.Has("/ws/a"))
	require.False(t, s.Snapshot().Has("/ws/a"))
}

func TestStoreBeginStampsPending(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := runstatetest.NewFakeClock(start)
	s := runstate.New(runstate.WithClock(clock))
	t.Cleanup(s.Close)

	p, err := s.Begin("/ws/a", runstate.KindStart)
	require.NoError(t, err)
	require.Equal(t, start, p.IssuedAt)
	require.Equal(t, runstate.KindStart, p.Kind)
	require.True(t, s.IsRunning("/ws/a"))

	got, ok := s.Pending("/ws/a")
	require.True(t, ok)
	require.Equal(t, p.ID, got.ID)

	clock.Advance(time.Second)
	p2, err := s.Begin("/ws/a", runstate.KindStop)
	require.NoError(t, err)
	require.Equal(t, start.Add(time.Second), p2.IssuedAt)
	require.NotEqual(t, p.ID, p2.ID)

	require.Equal(t, runstate.ResolutionStale, s.Resolve(p, nil))
	require.Equal(t, runstate.ResolutionApplied,
		s.Resolve(p2, &runstate.Delta{Path: "/ws/a", Running: false}))
	require.False(t, s.IsRunning("/ws/a"))

	_, ok = s.Pending("/ws/a")
	require.False(t, ok)
}

func TestStoreStopGuard(t *testing.T) {
	t.Parallel()

	s := runstate.New()
	t.Cleanup(s.Close)

	_, err := s.Begin("/ws/a", runstate.KindStop)
	require.ErrorIs(t, err, runstate.ErrNotRunning)

	_, ok := s.Pending("/ws/a")
	require.False(t, ok)
}

func TestStoreConcurrentStopGuard(t *testing.T) {
	t.Parallel()

	s := runstate.New()
	t.Cleanup(s.Close)

	// Clicks race with pushes toggling the path; a stop may only be recorded
	// while the path is a member at that exact step.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Apply(runstate.Delta{Path: "/ws/a", Running: i%2 == 0, Source: runstate.SourcePush})
		}(i)
		go func() {
			defer wg.Done()
			p, err := s.Begin("/ws/a", runstate.KindStop)
			if err != nil {
				assert.ErrorIs(t, err, runstate.ErrNotRunning)
				return
			}
			assert.Equal(t, runstate.KindStop, p.Kind)
		}()
	}
	wg.Wait()
}

func TestStoreWatchSignalsOnChange(t *testing.T) {
	t.Parallel()

	s := runstate.New()
	t.Cleanup(s.Close)

	ch, cancel := s.Watch()
	defer cancel()

	s.Apply(runstate.Delta{Path: "/ws/a", Running: false})
	select {
	case <-ch:
		t.Fatal("unexpected signal for no-op delta")
	default:
	}

	s.Apply(runstate.Delta{Path: "/ws/a", Running: true})
	s.Apply(runstate.Delta{Path: "/ws/b", Running: true})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch signal")
	}
	require.Equal(t, 2, s.Snapshot().Len())
}

func TestStoreReconcile(t *testing.T) {
	t.Parallel()

	s := runstate.New()
	t.Cleanup(s.Close)

	s.Apply(runstate.Delta{Path: "/ws/old", Running: true})
	mark := s.Mark()
	s.Apply(runstate.Delta{Path: "/ws/late", Running: true, Source: runstate.SourcePush})

	changed := s.Reconcile([]string{"/ws/remote"}, mark)
	require.Equal(t, 2, changed)
	require.Equal(t, []string{"/ws/late", "/ws/remote"}, s.Snapshot().Paths())
}

func TestStoreClosed(t *testing.T) {
	t.Parallel()

	s := runstate.New()
	s.Apply(runstate.Delta{Path: "/ws/a", Running: true})
	s.Close()
	s.Close()

	require.False(t, s.Apply(runstate.Delta{Path: "/ws/b", Running: true}))
	_, err := s.Begin("/ws/c", runstate.KindStart)
	require.ErrorIs(t, err, runstate.ErrClosed)
	require.True(t, s.Snapshot().Has("/ws/a"))
}

func TestStoreConcurrentApply(t *testing.T) {
	t.Parallel()

	s := runstate.New()
	t.Cleanup(s.Close)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/ws/p%02d", i)
			for j := 0; j < 50; j++ {
				s.Apply(runstate.Delta{Path: path, Running: j%2 == 0})
			}
			// The last write for every path is running=true.
			s.Apply(runstate.Delta{Path: path, Running: true})
		}(i)
	}
	wg.Wait()

	require.Equal(t, 20, s.Snapshot().Len())
}
