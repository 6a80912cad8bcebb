// Package feedback exposes the interpreter's type feedback to the optimizing
// tier and records the assumptions a compilation depends on.
package feedback

import (
	"fmt"
	"sync/atomic"
)

// Vector is a handle to one function's feedback table. The epoch advances
// whenever the runtime updates any slot.
type Vector struct {
	Name  string
	Slots int

	epoch atomic.Uint64
}

// NewVector creates a table handle with the given number of slots.
func NewVector(name string, slots int) *Vector {
	return &Vector{Name: name, Slots: slots}
}

// Epoch returns the current update counter.
func (v *Vector) Epoch() uint64 { return v.epoch.Load() }

// Touch records a feedback update.
func (v *Vector) Touch() uint64 { return v.epoch.Add(1) }

func (v *Vector) String() string { return "<FeedbackVector " + v.Name + ">" }

// Source identifies one speculation site.
type Source struct {
	Vector *Vector
	Slot   int
}

// NewSource pairs a vector with a slot.
func NewSource(v *Vector, slot int) Source { return Source{Vector: v, Slot: slot} }

// IsValid reports whether the source names a slot.
func (s Source) IsValid() bool { return s.Vector != nil && s.Slot >= 0 }

func (s Source) String() string {
	if s.Vector == nil {
		return "<no feedback>"
	}
	return fmt.Sprintf("%s[%d]", s.Vector.Name, s.Slot)
}
