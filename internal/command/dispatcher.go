// Package command issues start and stop requests for projects and keeps the
// running-state store consistent with their outcome.
//
// Each path moves through its own small state machine: a start is applied
// optimistically and rolled back if the backend refuses it, a stop is only
// sent for a running path and only clears it once confirmed. A newer command
// for the same path supersedes an older one; the older response is dropped.
package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/fafa-a/runtty/internal/bridge"
	"github.com/fafa-a/runtty/internal/protocol/wire"
	"github.com/fafa-a/runtty/internal/runstate"
	"github.com/fafa-a/runtty/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const stopAllLimit = 8

// Dispatcher sends project commands over a bridge transport.
type Dispatcher struct {
	transport bridge.Transport
	store     *runstate.Store
}

// New creates a Dispatcher writing to store.
func New(t bridge.Transport, store *runstate.Store) *Dispatcher {
	return &Dispatcher{transport: t, store: store}
}

// Start marks path running, asks the backend to run the command with the
// given index and rolls the optimistic update back if the backend does not
// confirm it. A path that was already running stays running on failure.
func (d *Dispatcher) Start(ctx context.Context, path string, command int) error {
	p, err := d.store.Begin(path, runstate.KindStart)
	if err != nil {
		return fmt.Errorf("start %s: %w", path, err)
	}

	var resp wire.StatusResponse
	err = bridge.CallJSON(ctx, d.transport, wire.CallProjectStart,
		wire.StartRequest{Path: path, Command: command}, &resp)
	if err == nil && resp.Status != wire.StatusRunning {
		err = &CommandError{
			Path:    path,
			Kind:    runstate.KindStart,
			Message: fmt.Sprintf("backend reported status %q", resp.Status),
		}
	}

	if err == nil {
		confirmed := &runstate.Delta{Path: path, Running: true, Source: runstate.SourceCommand}
		if res := d.store.Resolve(p, confirmed); res == runstate.ResolutionStale {
			logger.Debugf("command: start %s confirmed after being superseded", path)
			return ErrSuperseded
		}
		logger.Debugf("command: start %s confirmed", path)
		return nil
	}

	err = asCommandError(path, runstate.KindStart, err)
	var rollback *runstate.Delta
	if !p.WasRunning {
		rollback = &runstate.Delta{Path: path, Running: false, Source: runstate.SourceCommand}
	}
	res := d.store.Resolve(p, rollback)
	switch res {
	case runstate.ResolutionStale:
		logger.Debugf("command: dropping superseded start failure for %s: %v", path, err)
		return ErrSuperseded
	case runstate.ResolutionOvertaken:
		logger.Warnf("command: %v (state kept from newer status event)", err)
	default:
		if rollback == nil {
			logger.Warnf("command: %v (was already running)", err)
		} else {
			logger.Warnf("command: %v (rolled back)", err)
		}
	}
	return err
}

// Stop asks the backend to stop path. A path that is not running is refused
// with ErrNotRunning without contacting the backend. The path leaves the
// running set only when the backend confirms.
func (d *Dispatcher) Stop(ctx context.Context, path string) error {
	p, err := d.store.Begin(path, runstate.KindStop)
	if err != nil {
		if errors.Is(err, runstate.ErrNotRunning) {
			return ErrNotRunning
		}
		return fmt.Errorf("stop %s: %w", path, err)
	}

	var resp wire.StatusResponse
	err = bridge.CallJSON(ctx, d.transport, wire.CallProjectStop, wire.StopRequest{Path: path}, &resp)
	if err == nil && resp.Status != wire.StatusStopped {
		err = &CommandError{
			Path:    path,
			Kind:    runstate.KindStop,
			Message: fmt.Sprintf("backend reported status %q", resp.Status),
		}
	}

	if err != nil {
		err = asCommandError(path, runstate.KindStop, err)
		if res := d.store.Resolve(p, nil); res == runstate.ResolutionStale {
			logger.Debugf("command: dropping superseded stop failure for %s: %v", path, err)
			return ErrSuperseded
		}
		logger.Warnf("command: %v", err)
		return err
	}

	if res := d.store.Resolve(p, &runstate.Delta{Path: path, Running: false, Source: runstate.SourceCommand}); res == runstate.ResolutionStale {
		logger.Debugf("command: stop %s confirmed after being superseded", path)
		return ErrSuperseded
	}
	logger.Debugf("command: stop %s confirmed", path)
	return nil
}

// StopAll stops every running path concurrently. Paths that stopped on their
// own meanwhile are skipped. Failures are joined in path order.
func (d *Dispatcher) StopAll(ctx context.Context) error {
	paths := d.store.Snapshot().Paths()
	if len(paths) == 0 {
		return nil
	}

	errs := make([]error, len(paths))
	var g errgroup.Group
	g.SetLimit(stopAllLimit)
	for i, path := range paths {
		g.Go(func() error {
			err := d.Stop(ctx, path)
			if errors.Is(err, ErrNotRunning) || errors.Is(err, ErrSuperseded) {
				err = nil
			}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	logger.Infof("command: stop-all issued for %d projects", len(paths))
	return errors.Join(errs...)
}

// Sync asks the backend which paths are running and reconciles the store.
// Paths changed by a command or push while the call was in flight keep their
// newer state. It returns how many paths changed.
func (d *Dispatcher) Sync(ctx context.Context) (int, error) {
	mark := d.store.Mark()

	var resp wire.RunningResponse
	if err := bridge.CallJSON(ctx, d.transport, wire.CallProjectRunning, nil, &resp); err != nil {
		return 0, fmt.Errorf("sync running state: %w", err)
	}
	return d.store.Reconcile(resp.Running, mark), nil
}

func asCommandError(path string, kind runstate.Kind, err error) error {
	var ce *CommandError
	if errors.As(err, &ce) {
		return err
	}
	return &CommandError{Path: path, Kind: kind, Err: err}
}
