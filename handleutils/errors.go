package handleutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrAddressSpaceExhausted is returned by the block allocator when issuing another block base would
// overflow the signed 64-bit handle space
var ErrAddressSpaceExhausted error = errors.New("handle address space exhausted")

// ErrFixnumRange is returned when a value is asked to be tagged into a handle but cannot be represented
// in the 63 bits available to a tagged long
var ErrFixnumRange error = errors.New("value is outside the tagged long range")
