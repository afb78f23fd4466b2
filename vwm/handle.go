// Package vwm allocates stable, pointer-sized handles for managed values so that native code can
// address them as if they were plain memory addresses.
//
// A handle is either a tagged immediate (a long shifted left by one with the low bit set, or one of
// the four sentinel constants) or the address of a slot inside a handle block. Blocks are carved out of
// a synthetic address range beginning at AllocationBase and are recycled through a process-wide free
// list once the managed side no longer references them.
package vwm

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/handles/handleutils"
)

// UnsetHandle is the handle value of a Wrapper that has not been given a handle yet
const UnsetHandle int64 = -2

// These values are part of the native ABI and must never change. They assume doubles are not tagged.
const (
	FalseHandle int64 = 0b000
	TrueHandle  int64 = 0b010
	NilHandle   int64 = 0b100
	UndefHandle int64 = 0b110
)

const (
	LongTag   int64 = 1
	ObjectTag int64 = 0

	TagMask int64 = 0b111
	TagBits       = 3

	MinFixnumValue int64 = -(1 << 62)
	MaxFixnumValue int64 = (1 << 62) - 1
)

const (
	// SlotSize is the width in bytes of one handle slot, equal to the native pointer size
	SlotSize = 8

	BlockBits     = 15
	BlockSize     = 1 << (BlockBits - TagBits)
	BlockByteSize = BlockSize << TagBits

	BlockMask  int64 = -1 << BlockBits
	OffsetMask int64 = ^BlockMask

	// AllocationBase is the address of the first block ever issued
	AllocationBase int64 = 0x0bad << 48
)

func init() {
	handleutils.DebugCheckPow2(BlockByteSize, "BlockByteSize")
	handleutils.DebugCheckPow2(SlotSize, "SlotSize")
}

// IsTaggedLong reports whether the handle carries an immediate long rather than an address
func IsTaggedLong(handle int64) bool {
	return handle&LongTag == LongTag
}

// IsTaggedObject reports whether the handle has the tag pattern of a wrapper address. FalseHandle
// shares the pattern but is excluded.
func IsTaggedObject(handle int64) bool {
	return handle != FalseHandle && handle&TagMask == ObjectTag
}

func IsMallocAligned(handle int64) bool {
	return handle != FalseHandle && handle&0b111 == 0
}

// IsSentinel reports whether the handle is one of the four fixed singleton handles
func IsSentinel(handle int64) bool {
	switch handle {
	case FalseHandle, TrueHandle, NilHandle, UndefHandle:
		return true
	}
	return false
}

func IsFixnum(value int64) bool {
	return value >= MinFixnumValue && value <= MaxFixnumValue
}

func UntagLong(handle int64) int64 {
	return handle >> 1
}

// TagLong encodes value as an immediate handle. Values outside [MinFixnumValue, MaxFixnumValue]
// cannot be represented and need a wrapper instead.
func TagLong(value int64) (int64, error) {
	if !IsFixnum(value) {
		return 0, errors.Wrapf(handleutils.ErrFixnumRange, "%d", value)
	}
	return value<<1 | LongTag, nil
}

// BlockIndex maps a handle (or a block base) to its position in the block maps. Handles below
// AllocationBase produce a negative index.
func BlockIndex(handle int64) int64 {
	return (handle - AllocationBase) >> BlockBits
}

func slotOffset(handle int64) int {
	return int((handle & OffsetMask) >> TagBits)
}
