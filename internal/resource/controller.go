// Package resource tracks memory reserved by table instances and queries.
// A reservation that would exceed the configured limit fails immediately
// with a resource error; nothing blocks.
package resource

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/viant/vec0/vecerr"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64
}

// Controller accounts reserved memory.
type Controller struct {
	cfg    Config
	memSem *semaphore.Weighted // nil if unlimited
	used   atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	return c
}

// Reserve reserves n bytes for op or returns a resource error.
func (c *Controller) Reserve(op string, n int64) error {
	if c == nil || n <= 0 {
		return nil
	}
	if c.memSem != nil && !c.memSem.TryAcquire(n) {
		return vecerr.Resource(op, fmt.Errorf("reserve %d bytes (used %d of %d): %w",
			n, c.used.Load(), c.cfg.MemoryLimitBytes, vecerr.ErrBudgetExceeded))
	}
	c.used.Add(n)
	return nil
}

// Release returns n previously reserved bytes.
func (c *Controller) Release(n int64) {
	if c == nil || n <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(n)
	}
	c.used.Add(-n)
}

// Used returns the currently reserved bytes.
func (c *Controller) Used() int64 {
	if c == nil {
		return 0
	}
	return c.used.Load()
}

// Limit returns the configured limit, 0 when unlimited.
func (c *Controller) Limit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// Lease groups reservations so they can be released together exactly once.
type Lease struct {
	ctrl  *Controller
	op    string
	bytes int64
}

// NewLease starts an empty lease for op.
func (c *Controller) NewLease(op string) *Lease {
	return &Lease{ctrl: c, op: op}
}

// Grow reserves n more bytes under the lease.
func (l *Lease) Grow(n int64) error {
	if err := l.ctrl.Reserve(l.op, n); err != nil {
		return err
	}
	l.bytes += n
	return nil
}

// Bytes returns the bytes held by the lease.
func (l *Lease) Bytes() int64 {
	if l == nil {
		return 0
	}
	return l.bytes
}

// Release frees everything held by the lease. Safe to call repeatedly.
func (l *Lease) Release() {
	if l == nil || l.bytes == 0 {
		return
	}
	l.ctrl.Release(l.bytes)
	l.bytes = 0
}
