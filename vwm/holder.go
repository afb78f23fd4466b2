package vwm

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// BlockHolder holds the blocks an execution context is currently filling: one for exclusive
// handles, one for shared handles. It is only touched by its execution context.
type BlockHolder struct {
	exclusiveBlock *HandleBlock
	sharedBlock    *HandleBlock
}

func (h *BlockHolder) block(shared bool) *HandleBlock {
	if shared {
		return h.sharedBlock
	}
	return h.exclusiveBlock
}

func (h *BlockHolder) setBlock(shared bool, block *HandleBlock) {
	if shared {
		h.sharedBlock = block
	} else {
		h.exclusiveBlock = block
	}
}

// ExclusiveBlock returns the block currently open for exclusive handles, if any
func (h *BlockHolder) ExclusiveBlock() *HandleBlock { return h.exclusiveBlock }

// SharedBlock returns the block currently open for shared handles, if any
func (h *BlockHolder) SharedBlock() *HandleBlock { return h.sharedBlock }

// ExecutionContext stands in for one thread or fiber of the embedding runtime. It must only be
// used from one goroutine at a time.
type ExecutionContext struct {
	id      uint64
	manager *Manager
	holder  *BlockHolder
	closed  atomic.Bool
}

func (c *ExecutionContext) ID() uint64 { return c.id }

func (c *ExecutionContext) Manager() *Manager { return c.manager }

func (c *ExecutionContext) IsClosed() bool { return c.closed.Load() }

// Close retires the execution context. Its open blocks are queued for marking so that wrappers
// handed out from them stay reachable until the collector has seen them.
func (c *ExecutionContext) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.manager.retireExecutionContext(c)
}

func (c *ExecutionContext) checkOwner(m *Manager) {
	if c.manager != m {
		panic(errors.AssertionFailedf("execution context %d belongs to a different manager", c.id))
	}
	if c.closed.Load() {
		panic(errors.AssertionFailedf("execution context %d has been closed", c.id))
	}
}
