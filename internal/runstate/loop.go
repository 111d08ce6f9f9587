package runstate

import (
	"errors"
	"sync"
)

// ErrClosed is returned when the store has been closed.
var ErrClosed = errors.New("running-state store closed")

// loop serializes all store work onto a single goroutine.
//
// Transport callbacks, CLI commands and UI goroutines all funnel their
// mutations through here, so the running set has exactly one writer and no
// two mutations ever overlap. Closures run on the loop must not call back
// into run.
type loop struct {
	q      chan func()
	quit   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func newLoop(queueSize int) *loop {
	if queueSize <= 0 {
		queueSize = 256
	}
	l := &loop{
		q:      make(chan func(), queueSize),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go l.serve()
	return l
}

func (l *loop) serve() {
	defer close(l.exited)
	for {
		select {
		case <-l.quit:
			return
		case fn := <-l.q:
			if fn != nil {
				fn()
			}
		}
	}
}

// run executes fn on the loop and waits for it to finish.
func (l *loop) run(fn func()) error {
	if fn == nil {
		return nil
	}
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}

	select {
	case <-l.quit:
		return ErrClosed
	case l.q <- task:
	}

	select {
	case <-done:
		return nil
	case <-l.exited:
		// The loop may have finished the task just before exiting.
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// close stops the loop. Pending tasks that have not started are dropped.
func (l *loop) close() {
	l.once.Do(func() { close(l.quit) })
	<-l.exited
}
