package graphbuilder

import (
	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/feedback"
)

// Unit is one function being built, either the top-level function or an
// inlinee. It fixes the layout of interpreter frames for that function.
type Unit struct {
	Function *feedback.JSFunction
	Bytecode *bytecode.Array
	Analysis *bytecode.Analysis
	Depth    int
	Parent   *Unit
}

func newUnit(fn *feedback.JSFunction, an *bytecode.Analysis, parent *Unit) *Unit {
	u := &Unit{Function: fn, Bytecode: an.Array(), Analysis: an, Parent: parent}
	if parent != nil {
		u.Depth = parent.Depth + 1
	}
	return u
}

// Name of the function.
func (u *Unit) Name() string { return u.Bytecode.Name }

// ParameterCount includes the receiver.
func (u *Unit) ParameterCount() int { return u.Bytecode.ParameterCount }

func (u *Unit) RegisterCount() int { return u.Bytecode.RegisterCount }

// FrameSize is the number of slots of an interpreter frame: parameters,
// context, closure, locals and the accumulator.
func (u *Unit) FrameSize() int { return u.ParameterCount() + 2 + u.RegisterCount() + 1 }

// slot maps a register to its frame index.
func (u *Unit) slot(r bytecode.Register) int {
	p := u.ParameterCount()
	switch {
	case r.IsParameter():
		return r.ParameterIndex()
	case r == bytecode.CurrentContext:
		return p
	case r == bytecode.FunctionClosure:
		return p + 1
	case r.IsLocal():
		return p + 2 + r.Index()
	case r == bytecode.Accumulator:
		return p + 2 + u.RegisterCount()
	}
	panic("invalid register " + r.String())
}

// IsOnStack reports whether f is already being built, directly or as an
// enclosing inlinee.
func (u *Unit) IsOnStack(f *feedback.JSFunction) bool {
	for cur := u; cur != nil; cur = cur.Parent {
		if cur.Function == f {
			return true
		}
	}
	return false
}

// Feedback returns the feedback source for slot in this function's vector.
func (u *Unit) Feedback(slot int) feedback.Source {
	if u.Function == nil || u.Function.Vector == nil {
		return feedback.Source{Slot: slot}
	}
	return feedback.NewSource(u.Function.Vector, slot)
}
