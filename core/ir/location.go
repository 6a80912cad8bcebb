package ir

import "fmt"

// LocationKind says where a value lives.
type LocationKind uint8

const (
	Unallocated LocationKind = iota
	InRegister
	// InStackSlot is a spill slot in the optimized frame.
	InStackSlot
	// InFrameSlot is a fixed slot of the incoming frame: parameters, context
	// and closure.
	InFrameSlot
)

// Location is a physical register or a stack slot.
type Location struct {
	Kind     LocationKind
	Index    int32
	Untagged bool
}

// NoLocation is the zero location.
var NoLocation = Location{}

func RegisterLocation(code int) Location { return Location{Kind: InRegister, Index: int32(code)} }

func StackSlotLocation(slot int, untagged bool) Location {
	return Location{Kind: InStackSlot, Index: int32(slot), Untagged: untagged}
}

func FrameSlotLocation(slot int) Location { return Location{Kind: InFrameSlot, Index: int32(slot)} }

func (l Location) IsAllocated() bool { return l.Kind != Unallocated }
func (l Location) IsRegister() bool  { return l.Kind == InRegister }

// IsStack reports spill and frame slots.
func (l Location) IsStack() bool { return l.Kind == InStackSlot || l.Kind == InFrameSlot }

// Register returns the register code of a register location.
func (l Location) Register() int {
	if l.Kind != InRegister {
		panic(fmt.Sprintf("location %v is not a register", l))
	}
	return int(l.Index)
}

func (l Location) String() string {
	return l.Format(nil)
}

// Format renders l, naming registers with name when given.
func (l Location) Format(name func(int) string) string {
	switch l.Kind {
	case InRegister:
		if name != nil {
			return name(int(l.Index))
		}
		return fmt.Sprintf("reg%d", l.Index)
	case InStackSlot:
		if l.Untagged {
			return fmt.Sprintf("[stack:%d:u]", l.Index)
		}
		return fmt.Sprintf("[stack:%d]", l.Index)
	case InFrameSlot:
		return fmt.Sprintf("[frame:%d]", l.Index)
	}
	return "-"
}

// Move copies Value from one location to another.
type Move struct {
	From  Location
	To    Location
	Value NodeID
}

func (m Move) String() string { return fmt.Sprintf("%v <- %v", m.To, m.From) }
