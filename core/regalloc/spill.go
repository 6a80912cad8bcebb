package regalloc

import "sort"

type freeSlot struct {
	index   int
	freedAt int32
}

// SpillSlots hands out stack slots of one kind. Free slots are kept sorted
// by the position they were freed at, earliest first.
type SpillSlots struct {
	top  int
	free []freeSlot
}

// Allocate returns a slot for a value whose live range starts at start. A
// free slot is reused only if its previous occupant died before start.
func (s *SpillSlots) Allocate(start int32) int {
	for i, f := range s.free {
		if f.freedAt < start {
			s.free = append(s.free[:i], s.free[i+1:]...)
			return f.index
		}
	}
	slot := s.top
	s.top++
	return slot
}

// Free returns slot to the pool as of position at.
func (s *SpillSlots) Free(slot int, at int32) {
	i := sort.Search(len(s.free), func(i int) bool {
		f := s.free[i]
		return f.freedAt > at || (f.freedAt == at && f.index > slot)
	})
	s.free = append(s.free, freeSlot{})
	copy(s.free[i+1:], s.free[i:])
	s.free[i] = freeSlot{index: slot, freedAt: at}
}

// Count is the number of slots ever handed out.
func (s *SpillSlots) Count() int { return s.top }

// InUse is the number of slots currently held.
func (s *SpillSlots) InUse() int { return s.top - len(s.free) }
