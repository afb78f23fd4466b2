package vwm

import (
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/handles/handleutils"
)

type freeHandleBlock struct {
	start int64
	next  *freeHandleBlock
}

// BlockAllocator hands out block base addresses. Bases are bumped upward from AllocationBase
// and, once a block has been reclaimed, reissued from a LIFO free list.
//
// The allocator is always locked: block finalizers return bases from whatever goroutine the
// collector runs them on.
type BlockAllocator struct {
	mutex          sync.Mutex
	nextBlock      int64
	firstFreeBlock *freeHandleBlock
	freeCount      int
}

func NewBlockAllocator() *BlockAllocator {
	return &BlockAllocator{
		nextBlock: AllocationBase,
	}
}

// GetFreeBlock returns a block base that is not in use by any live block. It only fails once the
// bump pointer would pass math.MaxInt64 and the free list is empty.
func (a *BlockAllocator) GetFreeBlock() (int64, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.firstFreeBlock != nil {
		block := a.firstFreeBlock
		a.firstFreeBlock = block.next
		a.freeCount--
		return block.start, nil
	}

	if a.nextBlock > math.MaxInt64-BlockByteSize+1 || a.nextBlock < AllocationBase {
		return 0, errors.Wrapf(handleutils.ErrAddressSpaceExhausted, "next block base is %#x", a.nextBlock)
	}

	block := a.nextBlock
	a.nextBlock += BlockByteSize
	return block, nil
}

// AddFreeBlock returns a reclaimed block base to the free list
func (a *BlockAllocator) AddFreeBlock(blockBase int64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.firstFreeBlock = &freeHandleBlock{start: blockBase, next: a.firstFreeBlock}
	a.freeCount++
}

// FreeBlockCount returns the length of the free list
func (a *BlockAllocator) FreeBlockCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.freeCount
}

// NextBlock returns the base that will be bumped out next once the free list is empty
func (a *BlockAllocator) NextBlock() int64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.nextBlock
}

func (a *BlockAllocator) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	seen := make(map[int64]struct{}, a.freeCount)
	count := 0
	for block := a.firstFreeBlock; block != nil; block = block.next {
		if _, duplicate := seen[block.start]; duplicate {
			return errors.Errorf("block base %#x is on the free list more than once", block.start)
		}
		if block.start < AllocationBase || block.start >= a.nextBlock {
			return errors.Errorf("free block base %#x was never issued by this allocator", block.start)
		}
		seen[block.start] = struct{}{}
		count++
	}

	if count != a.freeCount {
		return errors.Errorf("the listed number of free blocks (%d) does not match the actual number of free blocks (%d)", a.freeCount, count)
	}

	return nil
}
