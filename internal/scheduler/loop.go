package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/time/rate"
)

var ErrLoopClosed = errors.New("scheduler loop closed")

const (
	taskPending int32 = iota
	taskRunning
	taskCancelled
)

type task struct {
	fn       func()
	state    atomic.Int32
	finished chan struct{}
	panicked any
}

// Loop runs posted tasks one at a time, in submission order, on the goroutine
// that called Run. Every Model call goes through it, so the Model never sees
// two callers at once.
type Loop struct {
	tasks   chan *task
	limiter *rate.Limiter
	done    chan struct{}
	started atomic.Bool
}

// NewLoop paces task starts at tickRate per second; tickRate <= 0 means no
// pacing beyond yielding between tasks.
func NewLoop(tickRate float64) *Loop {
	limit := rate.Inf
	if tickRate > 0 {
		limit = rate.Limit(tickRate)
	}
	return &Loop{
		tasks:   make(chan *task, 128),
		limiter: rate.NewLimiter(limit, 1),
		done:    make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled. It returns after the task in progress,
// if any, has completed.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("scheduler loop already running")
	}
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-l.tasks:
			if !t.state.CompareAndSwap(taskPending, taskRunning) {
				loopTasks.WithLabelValues("skipped").Inc()
				continue
			}
			l.execute(t)
			loopTasks.WithLabelValues("run").Inc()
			runtime.Gosched()
			if err := l.limiter.Wait(ctx); err != nil {
				return nil
			}
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Do posts fn and waits for it. If ctx ends before fn starts, fn never runs
// and ctx.Err() is returned; once fn has started Do waits for it to finish.
// A panic inside fn is re-raised in the caller.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &task{fn: fn, finished: make(chan struct{})}
	select {
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	case l.tasks <- t:
	}

	select {
	case <-t.finished:
	case <-ctx.Done():
		if t.state.CompareAndSwap(taskPending, taskCancelled) {
			return ctx.Err()
		}
		<-t.finished
	case <-l.done:
		if t.state.CompareAndSwap(taskPending, taskCancelled) {
			return ErrLoopClosed
		}
		<-t.finished
	}
	if t.panicked != nil {
		panic(fmt.Sprintf("scheduler task panicked: %v", t.panicked))
	}
	return nil
}

func (l *Loop) execute(t *task) {
	defer close(t.finished)
	defer func() {
		if r := recover(); r != nil {
			t.panicked = r
		}
	}()
	t.fn()
}
