// Package dispatch provides a single goroutine run loop. Everything the
// connection manager mutates is owned by one loop, so no further locking
// is needed and callbacks observe a consistent order.
package dispatch

import (
	"sync"
	"time"
)

// Loop runs posted tasks on one goroutine in FIFO order. Posting never
// blocks, including from inside a running task.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

// NewLoop starts the loop goroutine.
func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		tasks := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, t := range tasks {
			t()
		}

		if closed {
			// run whatever the final batch posted, then stop
			l.mu.Lock()
			rest := l.queue
			l.queue = nil
			l.mu.Unlock()
			for _, t := range rest {
				t()
			}
			return
		}

		<-l.wake
	}
}

// Post queues f for execution. Returns false if the loop is closed and f
// will never run.
func (l *Loop) Post(f func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts f and waits for it to finish. Returns false if the loop is
// closed. Must not be called from a task already running on the loop;
// that deadlocks.
func (l *Loop) Call(f func()) bool {
	ch := make(chan struct{})
	ok := l.Post(func() {
		f()
		close(ch)
	})
	if !ok {
		return false
	}
	<-ch
	return true
}

// Timer is a pending delayed task.
type Timer struct {
	t *time.Timer
}

// After schedules f to run on the loop after d. The returned timer can
// be stopped; a fire that races Stop may still run f, so f should check
// that its work is still wanted.
func (l *Loop) After(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, func() {
		l.Post(f)
	})
	return &Timer{t: t}
}

// Stop cancels the timer if it has not fired.
func (t *Timer) Stop() bool {
	if t == nil || t.t == nil {
		return false
	}
	return t.t.Stop()
}

// Close stops the loop after draining queued tasks and waits for the
// loop goroutine to exit. Later posts are dropped. Safe to call twice.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}
