package regalloc

import (
	"fmt"

	"github.com/bnb-chain/midtier/core/ir"
)

// sameLocation compares locations by storage. Tagged and untagged spill
// slots are numbered separately.
func sameLocation(a, b ir.Location) bool {
	if a.Kind != b.Kind || a.Index != b.Index {
		return false
	}
	return a.Kind != ir.InStackSlot || a.Untagged == b.Untagged
}

// sequentialize orders a set of parallel moves so that no source is
// overwritten before it is read. Cycles are broken by parking one value in
// scratch.
func sequentialize(moves []ir.Move, scratch ir.Location) []ir.Move {
	pending := make([]ir.Move, 0, len(moves))
	for _, m := range moves {
		if sameLocation(m.From, m.To) {
			continue
		}
		for _, p := range pending {
			if sameLocation(p.To, m.To) {
				panic(fmt.Sprintf("parallel moves %v and %v write the same location", p, m))
			}
		}
		pending = append(pending, m)
	}
	isSource := func(loc ir.Location, skip int) bool {
		for i, p := range pending {
			if i != skip && sameLocation(p.From, loc) {
				return true
			}
		}
		return false
	}

	out := make([]ir.Move, 0, len(pending)+1)
	for len(pending) > 0 {
		progress := false
		for i := 0; i < len(pending); i++ {
			m := pending[i]
			if isSource(m.To, i) {
				continue
			}
			out = append(out, m)
			pending = append(pending[:i], pending[i+1:]...)
			i--
			progress = true
		}
		if progress {
			continue
		}
		// Every pending destination is still to be read: a cycle.
		blocked := pending[0].To
		var value ir.NodeID = ir.NoNode
		for j := range pending {
			if sameLocation(pending[j].From, blocked) {
				value = pending[j].Value
				pending[j].From = scratch
			}
		}
		out = append(out, ir.Move{From: blocked, To: scratch, Value: value})
	}
	return out
}
