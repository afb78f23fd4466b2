package vwm

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Collector is the contract between the handle subsystem and the garbage collector of the
// embedding runtime.
//
// QueueForMarking is called with a block that has been detached from its execution context. The
// collector must treat the block's wrappers as reachable until its next marking pass has seen them.
//
// AddFinalizer registers cleanup to be invoked exactly once after target becomes unreachable.
// cleanup never references target. AddFinalizer must be safe to call from any goroutine, and cleanup
// may be invoked from any goroutine.
type Collector interface {
	QueueForMarking(block *HandleBlock)
	AddFinalizer(owner any, target *HandleBlock, cleanup func())
}

// RuntimeCollector implements Collector on top of the Go garbage collector. Queued blocks are
// held strongly until RunMarkers is called, and finalizers are registered with runtime.AddCleanup.
type RuntimeCollector struct {
	mutex     sync.Mutex
	markQueue []*HandleBlock

	pendingFinalizers atomic.Int64
}

var _ Collector = &RuntimeCollector{}

func NewRuntimeCollector() *RuntimeCollector {
	return &RuntimeCollector{}
}

func (c *RuntimeCollector) QueueForMarking(block *HandleBlock) {
	if block == nil {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.markQueue = append(c.markQueue, block)
}

// RunMarkers ends a marking pass. The Go garbage collector traces the queued blocks itself, so the
// queue is not walked: this only drops the collector's strong references, after which a block is
// collected once no wrapper refers to it. It returns the number of blocks released.
func (c *RuntimeCollector) RunMarkers() int {
	c.mutex.Lock()
	queue := c.markQueue
	c.markQueue = nil
	c.mutex.Unlock()

	return len(queue)
}

// QueuedBlocks returns the number of blocks waiting for the next marking pass
func (c *RuntimeCollector) QueuedBlocks() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.markQueue)
}

func (c *RuntimeCollector) AddFinalizer(owner any, target *HandleBlock, cleanup func()) {
	c.pendingFinalizers.Add(1)
	runtime.AddCleanup(target, c.runCleanup, cleanup)
}

// PendingFinalizers returns the number of registered finalizers that have not run yet
func (c *RuntimeCollector) PendingFinalizers() int {
	return int(c.pendingFinalizers.Load())
}

func (c *RuntimeCollector) runCleanup(cleanup func()) {
	c.pendingFinalizers.Add(-1)
	cleanup()
}
