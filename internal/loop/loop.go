// Package loop provides the single-threaded event loop that owns a listening
// session's state. Every mutation runs as a message on the loop, one at a time;
// blocking calls run on their own goroutines and hand a continuation back.
package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when posting to a loop that has been closed.
var ErrClosed = errors.New("loop closed")

// Runner executes blocking work away from the owning loop. The function returned
// by work, if any, is applied back on the loop.
type Runner interface {
	Go(work func(ctx context.Context) func())
}

// Loop processes posted messages sequentially on a single goroutine.
type Loop struct {
	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan func()
	quit   chan struct{}
	done   chan struct{}
	after  func()

	closeOnce sync.Once
	work      sync.WaitGroup
}

// New starts a loop with the given inbox buffer. afterEach, if non-nil, runs on
// the loop after every message.
func New(buffer int, afterEach func()) *Loop {
	if buffer < 0 {
		buffer = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		ctx:    ctx,
		cancel: cancel,
		inbox:  make(chan func(), buffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		after:  afterEach,
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		case fn := <-l.inbox:
			fn()
			if l.after != nil {
				l.after()
			}
		}
	}
}

// Post enqueues fn. It must not be called from the loop goroutine when the
// inbox may be full.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.quit:
		return ErrClosed
	default:
	}
	select {
	case l.inbox <- fn:
		return nil
	case <-l.quit:
		return ErrClosed
	}
}

// Call runs fn on the loop and waits for it to finish. Never call it from the loop.
func (l *Loop) Call(fn func()) error {
	ran := make(chan struct{})
	if err := l.Post(func() {
		defer close(ran)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-ran:
		return nil
	case <-l.done:
		// The loop may have stopped with our message still queued.
		select {
		case <-ran:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Go implements Runner. Work receives a context cancelled when the loop closes;
// continuations arriving after Close are discarded.
func (l *Loop) Go(work func(ctx context.Context) func()) {
	l.work.Add(1)
	go func() {
		defer l.work.Done()
		if cont := work(l.ctx); cont != nil {
			_ = l.Post(cont)
		}
	}()
}

// Close stops the loop and cancels outstanding work. It waits for the loop
// goroutine, not for work goroutines; use Wait for those.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.quit)
		l.cancel()
	})
	<-l.done
}

// Wait blocks until every goroutine started by Go has returned.
func (l *Loop) Wait() {
	l.work.Wait()
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
