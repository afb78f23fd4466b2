package vwm

import (
	"fmt"
	"sync/atomic"
)

// UndefinedValue is the type of Undefined, the marker for a missing argument or value
type UndefinedValue struct{}

func (UndefinedValue) String() string { return "undefined" }

// Undefined is wrapped to the singleton wrapper whose handle is UndefHandle
var Undefined = UndefinedValue{}

// SharedObject is implemented by immutable values that may be reached from more than one
// execution context. The default shared-object predicate routes these to the process-shared
// block map.
type SharedObject interface {
	ImmutableShared()
}

// Wrapper is the managed-side record that a handle resolves to. Its payload is fixed at
// construction and its handle is assigned at most once.
type Wrapper struct {
	payload any
	handle  atomic.Int64

	// block keeps the owning block reachable for as long as the wrapper is
	block *HandleBlock
}

func newWrapper(payload any, handle int64) *Wrapper {
	w := &Wrapper{payload: payload}
	w.handle.Store(handle)
	return w
}

// Object returns the value this wrapper was created for
func (w *Wrapper) Object() any { return w.payload }

// Handle returns the handle assigned to this wrapper, or UnsetHandle
func (w *Wrapper) Handle() int64 { return w.handle.Load() }

func (w *Wrapper) HasHandle() bool { return w.handle.Load() != UnsetHandle }

// Long returns the payload of a wrapper created by WrapLong
func (w *Wrapper) Long() (int64, bool) {
	v, ok := w.payload.(int64)
	return v, ok
}

// Double returns the payload of a wrapper created by WrapDouble
func (w *Wrapper) Double() (float64, bool) {
	v, ok := w.payload.(float64)
	return v, ok
}

// setHandle assigns handle if none is set yet. When another execution context won the race for a
// shared wrapper, the existing handle is returned along with false.
func (w *Wrapper) setHandle(handle int64, block *HandleBlock) (int64, bool) {
	if !w.handle.CompareAndSwap(UnsetHandle, handle) {
		return w.handle.Load(), false
	}
	w.block = block
	return handle, true
}

func (w *Wrapper) String() string {
	handle := w.Handle()
	if handle == UnsetHandle {
		return fmt.Sprintf("Wrapper{%v, unset}", w.payload)
	}
	return fmt.Sprintf("Wrapper{%v, %#x}", w.payload, handle)
}
