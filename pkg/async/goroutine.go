package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Submit after the pool stopped accepting work.
var ErrPoolClosed = errors.New("worker pool shut down")

var logger atomic.Pointer[logrus.Entry]

func init() {
	logger.Store(logrus.NewEntry(logrus.StandardLogger()))
}

// SetLogger replaces the logger used to report task errors and panics.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		return
	}
	logger.Store(l.WithField("component", "async"))
}

func log() *logrus.Entry {
	return logger.Load()
}

// SafeGo runs fn in its own goroutine bounded by timeout. Panics are
// recovered and logged together with the stack; returned errors are
// logged at debug level so background work never takes the process down.
//
// Example:
//
//	SafeGo(ctx, 10*time.Second, "heartbeat ping", func(ctx context.Context) error {
//	    return sender.Send(ctx, signal)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log().WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("recovered panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			log().WithField("task", taskName).WithError(err).Debug("background task failed")
		}
	}()
}

// SafeGoNoError is like SafeGo for functions that report nothing.
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// WorkerPool runs submitted tasks on a fixed number of goroutines, each
// task bounded by the pool timeout.
type WorkerPool struct {
	workers  int
	taskName string
	timeout  time.Duration

	workCh chan func(context.Context) error
	doneCh chan struct{}
	errCh  chan error

	ctx    context.Context
	cancel context.CancelFunc

	// sink, when set, receives every task error instead of errCh.
	sink func(error)

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewWorkerPool starts a pool with the given number of workers.
//
//	pool := NewWorkerPool(ctx, 4, "cache warm", 5*time.Second)
//	defer pool.Shutdown(5 * time.Second)
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	return newWorkerPool(ctx, workers, taskName, timeout, nil)
}

func newWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration, sink func(error)) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
		sink:     sink,
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			pool.worker(id)
		}(i)
	}
	go func() {
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues fn. It blocks while the queue is full.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// close stops intake and lets the workers drain the queue.
func (p *WorkerPool) close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.workCh)
		p.mu.Unlock()
	})
}

// Shutdown drains queued tasks, waiting at most timeout before cancelling
// whatever is still running.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.close()

	select {
	case <-p.doneCh:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("worker pool %q shutdown timed out after %v", p.taskName, timeout)
	}
}

// Errors returns task errors, including one per task skipped because the
// pool context ended. Errors are dropped once the buffer is full.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker(id int) {
	for fn := range p.workCh {
		if err := p.ctx.Err(); err != nil {
			p.report(fmt.Errorf("%s: skipped: %w", p.taskName, err))
			continue
		}
		p.run(id, fn)
	}
}

func (p *WorkerPool) run(id int, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log().WithFields(logrus.Fields{
				"task":   p.taskName,
				"worker": id,
				"stack":  string(debug.Stack()),
			}).Errorf("recovered panic in worker: %v", r)
			p.report(fmt.Errorf("%s: panic: %v", p.taskName, r))
		}
	}()

	if err := fn(ctx); err != nil {
		p.report(err)
	}
}

func (p *WorkerPool) report(err error) {
	if p.sink != nil {
		p.sink(err)
		return
	}
	select {
	case p.errCh <- err:
	default:
		log().WithField("task", p.taskName).WithError(err).Warn("error channel full, dropping error")
	}
}

// Batch applies fn to every item using a temporary pool and returns one
// error per failed item, in no particular order. Items not run because ctx
// ended are reported with the context error.
//
//	errs := Batch(ctx, appIDs, 4, "series warm", 5*time.Second, func(ctx context.Context, id string) error {
//	    return warm(ctx, id)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	var (
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	pool := newWorkerPool(ctx, workers, taskName, timeout, collect)

	for i, item := range items {
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			for range items[i:] {
				collect(fmt.Errorf("%s: skipped: %w", taskName, err))
			}
			break
		}
	}

	pool.close()
	<-pool.doneCh
	pool.cancel()

	mu.Lock()
	defer mu.Unlock()
	return errs
}
