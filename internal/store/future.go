package store

import (
	"context"
	"sync"
)

// Future is the result of an async store operation.
//
// A Future resolves exactly once. Futures returned by the same Store or
// Transaction resolve in the order their operations were issued.
type Future[T any] struct {
	doneCh chan struct{}
	val    T
	err    error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{doneCh: make(chan struct{})}
}

// rejected returns an already-resolved failed Future. Used for argument
// errors, which are reported before any work is queued.
func rejected[T any](err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(*new(T), err)
	return f
}

func (f *Future[T]) resolve(val T, err error) {
	f.val, f.err = val, err
	close(f.doneCh)
}

// Done returns a channel closed when the operation completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.doneCh
}

// Get blocks until the operation completes and returns its result.
func (f *Future[T]) Get() (T, error) {
	<-f.doneCh
	return f.val, f.err
}

// Err blocks until the operation completes and returns its error.
func (f *Future[T]) Err() error {
	<-f.doneCh
	return f.err
}

// Wait is Get bounded by ctx. The operation itself keeps running if ctx
// ends first; only the wait is abandoned.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.doneCh:
		return f.val, f.err
	case <-ctx.Done():
		return *new(T), ctx.Err()
	}
}

// serialQueue runs submitted tasks one at a time, in submission order, on
// a single worker goroutine.
//
// The queue is unbounded so that submitting never blocks the caller.
// The worker is started lazily on first submit and exits when the queue is
// closed and drained.
type serialQueue struct {
	mu      sync.Mutex
	tasks   []func()
	closed  bool
	running bool
	signal  chan struct{} // buffered, size 1
	drained chan struct{}
}

func newSerialQueue() *serialQueue {
	return &serialQueue{
		tasks:   make([]func(), 0, 16),
		signal:  make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
}

// enqueue adds a task. Returns false if the queue is closed.
func (q *serialQueue) enqueue(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, task)
	if !q.running {
		q.running = true
		go q.run()
	}

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *serialQueue) tryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return task, true
}

func (q *serialQueue) run() {
	defer close(q.drained)
	for {
		if task, ok := q.tryDequeue(); ok {
			task()
			continue
		}

		q.mu.Lock()
		done := q.closed && len(q.tasks) == 0
		q.mu.Unlock()
		if done {
			return
		}
		<-q.signal
	}
}

// shutdown stops accepting tasks. Already queued tasks still run.
// Safe to call from inside a task.
func (q *serialQueue) shutdown() (running bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return q.running
}

// close is shutdown plus waiting for queued tasks to finish.
// Must not be called from inside a task.
func (q *serialQueue) close() {
	if q.shutdown() {
		<-q.drained
	}
}

// barrier blocks until every task queued before the call has run. On a
// closed queue it waits for the remaining tasks to drain. Must not be
// called from inside a task.
func (q *serialQueue) barrier() {
	done := make(chan struct{})
	if q.enqueue(func() { close(done) }) {
		<-done
		return
	}
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	if running {
		<-q.drained
	}
}

// inOrder runs fn on the calling goroutine once every task already queued
// on q has run, so a blocking call never overtakes earlier async calls on
// the same handle.
func inOrder[T any](q *serialQueue, fn func() (T, error)) (T, error) {
	q.barrier()
	return fn()
}

// submit queues fn on q and returns its Future. If q is closed the Future
// fails with errOnClosed.
func submit[T any](q *serialQueue, ctx context.Context, errOnClosed error, fn func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	ok := q.enqueue(func() {
		val, err := fn(ctx)
		f.resolve(val, err)
	})
	if !ok {
		f.resolve(*new(T), errOnClosed)
	}
	return f
}
