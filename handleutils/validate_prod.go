//go:build !debug_handles

package handleutils

import "golang.org/x/exp/constraints"

// DebugEnabled reports whether the module was built with the debug_handles build tag
const DebugEnabled bool = false

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_handles build tag is present
func DebugValidate(validatable Validatable) {
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_handles build tag is present.
func DebugCheckPow2[T constraints.Integer](value T, name string) {
}
