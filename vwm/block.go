package vwm

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/handles/handleutils"
)

// HandleBlock is a run of BlockSize contiguous handle slots beginning at Base. It is filled by
// bump allocation from the execution context that has it open and is never written to again once full.
//
// Only the owning execution context writes to a block. A slot is stored before count is published,
// so readers on other goroutines only ever see populated slots below count.
type HandleBlock struct {
	base  int64
	count atomic.Int32
	slots [BlockSize]*Wrapper
}

func newHandleBlock(base int64) *HandleBlock {
	if handleutils.AlignDown(base, BlockByteSize) != base || base < AllocationBase {
		panic(errors.AssertionFailedf("block base %#x is not a block-aligned address above the allocation base", base))
	}

	return &HandleBlock{base: base}
}

// Base returns the handle of the first slot in the block
func (b *HandleBlock) Base() int64 { return b.base }

// Index returns the block's position in the block maps
func (b *HandleBlock) Index() int { return int(BlockIndex(b.base)) }

// Count returns the number of slots that have been handed out
func (b *HandleBlock) Count() int { return int(b.count.Load()) }

func (b *HandleBlock) IsFull() bool { return b.Count() == BlockSize }

// Contains reports whether handle addresses a populated slot of this block
func (b *HandleBlock) Contains(handle int64) bool {
	if handleutils.AlignDown(handle, BlockByteSize) != b.base || handle&TagMask != ObjectTag {
		return false
	}
	return slotOffset(handle) < b.Count()
}

// Wrapper returns the wrapper stored at the slot addressed by handle, or nil if that slot is
// not populated
func (b *HandleBlock) Wrapper(handle int64) *Wrapper {
	if !b.Contains(handle) {
		return nil
	}
	return b.slots[slotOffset(handle)]
}

// setHandleOnWrapper assigns the next slot to wrapper. It reports false when another execution
// context has given the wrapper a handle first, in which case that handle is returned.
func (b *HandleBlock) setHandleOnWrapper(wrapper *Wrapper) (int64, bool) {
	count := b.count.Load()
	if count == BlockSize {
		panic(errors.AssertionFailedf("attempted to allocate a handle from full block %#x", b.base))
	}

	handle, allocated := wrapper.setHandle(b.base+int64(count)*SlotSize, b)
	b.slots[count] = wrapper
	b.count.Store(count + 1)

	return handle, allocated
}

func (b *HandleBlock) Validate() error {
	count := b.Count()
	if count < 0 || count > BlockSize {
		return errors.Errorf("block %#x has an invalid count %d", b.base, count)
	}

	for i := 0; i < count; i++ {
		wrapper := b.slots[i]
		if wrapper == nil {
			return errors.Errorf("block %#x has an empty slot %d below its count %d", b.base, i, count)
		}
		if !wrapper.HasHandle() {
			return errors.Errorf("block %#x holds a wrapper without a handle in slot %d", b.base, i)
		}
	}

	return nil
}

func (b *HandleBlock) addStatistics(stats *handleutils.DetailedStatistics) {
	stats.AddBlock(b.Count(), BlockSize, SlotSize)
}

// BlockJsonData populates a json object with information about this block
func (b *HandleBlock) BlockJsonData(json jwriter.ObjectState) {
	count := b.Count()
	json.Name("Base").String(fmt.Sprintf("%#x", b.base))
	json.Name("Index").Int(b.Index())
	json.Name("Handles").Int(count)
	json.Name("Full").Bool(count == BlockSize)
}
