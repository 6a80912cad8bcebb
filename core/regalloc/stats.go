package regalloc

import "fmt"

// Stats summarizes one allocation.
type Stats struct {
	TaggedSlots   int
	UntaggedSlots int
	// GapMoves counts reloads and fixed-input moves inserted into blocks.
	GapMoves int
	// EdgeMoves counts moves placed on control-flow edges.
	EdgeMoves int
	Evictions int
}

// StackSlots is the number of spill slots the frame needs.
func (s *Stats) StackSlots() int { return s.TaggedSlots + s.UntaggedSlots }

func (s *Stats) String() string {
	return fmt.Sprintf("slots=%d/%d gapmoves=%d edgemoves=%d evictions=%d",
		s.TaggedSlots, s.UntaggedSlots, s.GapMoves, s.EdgeMoves, s.Evictions)
}
