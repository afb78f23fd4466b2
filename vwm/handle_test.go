package vwm_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/handles/handleutils"
	"github.com/vkngwrapper/handles/vwm"
)

func TestHandleLayout(t *testing.T) {
	require.Equal(t, int64(0), vwm.FalseHandle)
	require.Equal(t, int64(2), vwm.TrueHandle)
	require.Equal(t, int64(4), vwm.NilHandle)
	require.Equal(t, int64(6), vwm.UndefHandle)

	require.Equal(t, 4096, vwm.BlockSize)
	require.Equal(t, 32768, vwm.BlockByteSize)
	require.Equal(t, int64(0x0bad000000000000), vwm.AllocationBase)
	require.Equal(t, int64(0x7fff), vwm.OffsetMask)
	require.Equal(t, ^int64(0x7fff), vwm.BlockMask)
}

func TestTagPredicates(t *testing.T) {
	require.True(t, vwm.IsTaggedLong(0b1))
	require.True(t, vwm.IsTaggedLong(0b101))
	require.False(t, vwm.IsTaggedLong(vwm.TrueHandle))

	require.False(t, vwm.IsTaggedObject(vwm.FalseHandle))
	require.False(t, vwm.IsTaggedObject(vwm.TrueHandle))
	require.False(t, vwm.IsTaggedObject(vwm.NilHandle))
	require.True(t, vwm.IsTaggedObject(vwm.AllocationBase))
	require.False(t, vwm.IsTaggedObject(vwm.AllocationBase+1))

	require.False(t, vwm.IsMallocAligned(vwm.FalseHandle))
	require.True(t, vwm.IsMallocAligned(vwm.AllocationBase+8))
	require.False(t, vwm.IsMallocAligned(vwm.AllocationBase+4))

	for _, handle := range []int64{vwm.FalseHandle, vwm.TrueHandle, vwm.NilHandle, vwm.UndefHandle} {
		require.True(t, vwm.IsSentinel(handle))
	}
	require.False(t, vwm.IsSentinel(8))
}

func TestTagLong(t *testing.T) {
	for _, value := range []int64{0, 1, -1, 42, -42, vwm.MinFixnumValue, vwm.MaxFixnumValue} {
		handle, err := vwm.TagLong(value)
		require.NoError(t, err)
		require.True(t, vwm.IsTaggedLong(handle))
		require.Equal(t, value, vwm.UntagLong(handle))
	}

	handle, err := vwm.TagLong(21)
	require.NoError(t, err)
	require.Equal(t, int64(43), handle)

	_, err = vwm.TagLong(vwm.MaxFixnumValue + 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, handleutils.ErrFixnumRange))

	_, err = vwm.TagLong(vwm.MinFixnumValue - 1)
	require.True(t, errors.Is(err, handleutils.ErrFixnumRange))
}

func TestBlockIndex(t *testing.T) {
	require.Equal(t, int64(0), vwm.BlockIndex(vwm.AllocationBase))
	require.Equal(t, int64(0), vwm.BlockIndex(vwm.AllocationBase+vwm.BlockByteSize-8))
	require.Equal(t, int64(1), vwm.BlockIndex(vwm.AllocationBase+vwm.BlockByteSize))
	require.Less(t, vwm.BlockIndex(0x1000), int64(0))
}
