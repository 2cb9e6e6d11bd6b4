package partition

import (
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"go.uber.org/fx"
)

// PoolParams defines the dependencies required to size the worker pool.
type PoolParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.BatchConfig
}

// NewPoolProvider creates a pool of WorkerCount+1 goroutines; the extra goroutine is kept for the
// prefetch task so it never takes a processing slot. The pool is shut down with the application.
func NewPoolProvider(p PoolParams) *Pool {
	pool := NewPool(p.Config.WorkerCount + 1)
	p.Lifecycle.Append(fx.StopHook(pool.Shutdown))
	return pool
}

// Module defines the Fx options for the partition components.
var Module = fx.Options(
	fx.Provide(NewPoolProvider),
)
