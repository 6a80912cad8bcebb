package feedback

import (
	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/heap"
)

// SharedFunctionInfo is the context-independent part of a function.
type SharedFunctionInfo struct {
	Name     string
	Bytecode *bytecode.Array
	Strict   bool
	// Inlineable is cleared for functions the runtime refuses to inline, for
	// example ones with debug breakpoints.
	Inlineable bool
}

// JSFunction is a closure: shared info plus its feedback table. Functions that
// have not run yet have no vector.
type JSFunction struct {
	Shared *SharedFunctionInfo
	Vector *Vector
}

// NewFunction creates a closure with a fresh feedback vector of the given
// size.
func NewFunction(arr *bytecode.Array, strict bool, slots int) *JSFunction {
	return &JSFunction{
		Shared: &SharedFunctionInfo{Name: arr.Name, Bytecode: arr, Strict: strict, Inlineable: true},
		Vector: NewVector(arr.Name, slots),
	}
}

func (*JSFunction) Kind() heap.Kind { return heap.KindJSFunction }

func (f *JSFunction) String() string { return "<JSFunction " + f.Name() + ">" }

func (f *JSFunction) Name() string { return f.Shared.Name }

// HasFeedbackVector reports whether the function has collected feedback.
func (f *JSFunction) HasFeedbackVector() bool { return f.Vector != nil }

// IsInlineable reports whether f may be inlined at all.
func (f *JSFunction) IsInlineable() bool {
	return f.Shared != nil && f.Shared.Inlineable && f.Shared.Bytecode != nil && f.HasFeedbackVector()
}
