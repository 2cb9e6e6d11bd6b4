package partition

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// Future is the pending result of a task submitted to a Pool.
type Future[R any] struct {
	done  chan struct{}
	value R
	err   error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// Done reports whether the task has finished without blocking.
func (f *Future[R]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task has finished and returns its result.
func (f *Future[R]) Wait() (R, error) {
	<-f.done
	return f.value, f.err
}

func (f *Future[R]) complete(v R, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	size  int
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

// NewPool starts a pool with size goroutines.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:  size,
		tasks: make(chan func(), size),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	logger.Debugf("Worker pool started with %d goroutines.", size)
	return p
}

// Size returns the number of goroutines in the pool.
func (p *Pool) Size() int {
	return p.size
}

// Shutdown stops accepting tasks and waits for the running ones to finish.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		close(p.tasks)
		p.wg.Wait()
		logger.Debugf("Worker pool shut down.")
	})
}

// Submit queues fn on pool and returns its Future. A panic inside fn completes the Future with an error
// wrapping exception.ErrInvalidState instead of crashing the goroutine.
func Submit[R any](ctx context.Context, pool *Pool, fn func(ctx context.Context) (R, error)) *Future[R] {
	f := newFuture[R]()
	pool.tasks <- func() {
		var (
			value R
			err   error
		)
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Worker task panicked: %v\n%s", r, debug.Stack())
				err = exception.NewBatchError("pool", fmt.Sprintf("worker task panicked: %v", r), exception.ErrInvalidState, false)
			}
			f.complete(value, err)
		}()
		value, err = fn(ctx)
	}
	return f
}
