package vwm

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/handles/handleutils"
)

// fakeCollector records finalizers so tests can run them as if the block had been collected
type fakeCollector struct {
	mutex      sync.Mutex
	marked     []*HandleBlock
	finalizers map[*HandleBlock]func()
}

func newFakeCollector() *fakeCollector {
	return &fakeCollector{finalizers: make(map[*HandleBlock]func())}
}

func (c *fakeCollector) QueueForMarking(block *HandleBlock) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.marked = append(c.marked, block)
}

func (c *fakeCollector) AddFinalizer(owner any, target *HandleBlock, cleanup func()) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.finalizers[target] = cleanup
}

func (c *fakeCollector) collect(block *HandleBlock) {
	c.mutex.Lock()
	cleanup := c.finalizers[block]
	delete(c.finalizers, block)
	c.mutex.Unlock()

	if cleanup != nil {
		cleanup()
	}
}

func TestHandleBlockBumpAllocation(t *testing.T) {
	block := newHandleBlock(AllocationBase + BlockByteSize)
	require.Equal(t, 1, block.Index())
	require.Equal(t, 0, block.Count())
	require.False(t, block.IsFull())

	first := newWrapper("a", UnsetHandle)
	second := newWrapper("b", UnsetHandle)

	handle, allocated := block.setHandleOnWrapper(first)
	require.True(t, allocated)
	require.Equal(t, block.Base(), handle)

	handle, allocated = block.setHandleOnWrapper(second)
	require.True(t, allocated)
	require.Equal(t, block.Base()+SlotSize, handle)
	require.Equal(t, 2, block.Count())
	require.Same(t, block, first.block)

	require.Same(t, first, block.Wrapper(block.Base()))
	require.Same(t, second, block.Wrapper(block.Base()+SlotSize))
	require.NoError(t, block.Validate())
}

func TestHandleBlockLosingAssignmentKeepsExistingHandle(t *testing.T) {
	winner := newHandleBlock(AllocationBase)
	loser := newHandleBlock(AllocationBase + BlockByteSize)
	wrapper := newWrapper(sharedValue{}, UnsetHandle)

	handle, allocated := winner.setHandleOnWrapper(wrapper)
	require.True(t, allocated)

	// The slot is consumed but the wrapper keeps the handle it was given first
	again, allocated := loser.setHandleOnWrapper(wrapper)
	require.False(t, allocated)
	require.Equal(t, handle, again)
	require.Equal(t, 1, loser.Count())
	require.Same(t, winner, wrapper.block)
	require.NoError(t, loser.Validate())
}

type sharedValue struct{}

func (sharedValue) ImmutableShared() {}

func TestAllocationFailureIsNotCounted(t *testing.T) {
	language := NewLanguage(nil, LanguageOptions{Collector: newFakeCollector()})
	manager := New(nil, language, CreateOptions{Flags: CreateRecordStatistics})
	ctx := manager.NewExecutionContext()

	language.allocator.nextBlock = handleutils.AlignDown(int64(math.MaxInt64), BlockByteSize)
	_, err := language.allocator.GetFreeBlock()
	require.NoError(t, err)

	wrapper := manager.Wrap("value")
	_, err = manager.AllocateHandle(wrapper, ctx, false)
	require.ErrorIs(t, err, handleutils.ErrAddressSpaceExhausted)
	require.False(t, wrapper.HasHandle())
	require.Equal(t, uint64(0), manager.TotalHandleAllocations())
}

func TestHandleBlockRejectsForeignHandles(t *testing.T) {
	block := newHandleBlock(AllocationBase)
	block.setHandleOnWrapper(newWrapper("a", UnsetHandle))

	// Unpopulated slot
	require.Nil(t, block.Wrapper(AllocationBase+SlotSize))
	// Misaligned
	require.Nil(t, block.Wrapper(AllocationBase+4))
	require.Nil(t, block.Wrapper(AllocationBase+1))
	// Another block
	require.Nil(t, block.Wrapper(AllocationBase+BlockByteSize))
	require.False(t, block.Contains(AllocationBase-SlotSize))
}

func TestHandleBlockFull(t *testing.T) {
	block := newHandleBlock(AllocationBase)
	for i := 0; i < BlockSize; i++ {
		block.setHandleOnWrapper(newWrapper(i, UnsetHandle))
	}
	require.True(t, block.IsFull())
	require.NoError(t, block.Validate())

	last := block.Wrapper(AllocationBase + (BlockSize-1)*SlotSize)
	require.NotNil(t, last)
	require.Equal(t, BlockSize-1, last.Object())

	require.Panics(t, func() {
		block.setHandleOnWrapper(newWrapper("overflow", UnsetHandle))
	})
}

func TestNewHandleBlockRejectsUnalignedBase(t *testing.T) {
	require.Panics(t, func() { newHandleBlock(AllocationBase + 8) })
	require.Panics(t, func() { newHandleBlock(0) })
}

func TestBlockMapReleaseIsOnce(t *testing.T) {
	allocator := NewBlockAllocator()
	blockMap := newBlockMap("local")

	base, err := allocator.GetFreeBlock()
	require.NoError(t, err)
	block := newHandleBlock(base)

	entry, err := blockMap.add(block)
	require.NoError(t, err)
	require.Same(t, block, blockMap.get(0))

	_, err = blockMap.add(block)
	require.Error(t, err)

	require.True(t, blockMap.release(entry, allocator))
	require.False(t, blockMap.release(entry, allocator))
	require.Equal(t, 1, allocator.FreeBlockCount())
	require.Nil(t, blockMap.get(0))
	require.NoError(t, blockMap.Validate())
}

func TestBlockMapClearKeepsNewerEntry(t *testing.T) {
	blockMap := newBlockMap("shared")

	old := newHandleBlock(AllocationBase)
	oldEntry, err := blockMap.add(old)
	require.NoError(t, err)
	oldEntry.released.Store(true)

	replacement := newHandleBlock(AllocationBase)
	_, err = blockMap.add(replacement)
	require.NoError(t, err)

	blockMap.clear(oldEntry)
	require.Same(t, replacement, blockMap.get(0))
}

func TestManagerFinalizerReturnsBlock(t *testing.T) {
	collector := newFakeCollector()
	language := NewLanguage(nil, LanguageOptions{Collector: collector})
	manager := New(nil, language, CreateOptions{})
	ctx := manager.NewExecutionContext()

	wrapper := manager.Wrap("value")
	handle, err := manager.HandleFor(wrapper, ctx, false)
	require.NoError(t, err)

	block := manager.BlockHolder(ctx).ExclusiveBlock()
	require.NotNil(t, block)

	collector.collect(block)
	_, found := manager.WrapperForHandle(handle)
	require.False(t, found)
	require.Equal(t, 1, language.Allocator().FreeBlockCount())

	// Releasing the same block again must not put its base on the free list twice
	ctx.Close()
	manager.FreeAllBlocks()
	require.Equal(t, 1, language.Allocator().FreeBlockCount())
	require.NoError(t, language.Allocator().Validate())
}
