package regalloc

import "github.com/bnb-chain/midtier/core/ir"

// computePostDominatingHoles records on every node the first control node at
// or after it where straight-line execution may stop: a branch, a jump into a
// merge point or a terminator. Unconditional jumps into single-predecessor
// blocks are looked through. Blocks are walked backwards so that the target
// of such a jump is always done first.
func computePostDominatingHoles(g *ir.Graph) {
	order := g.Blocks()
	hole := make(map[ir.BlockID]ir.NodeID, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		b := g.Block(order[i])
		ctrl := g.Node(b.Control)
		h := ctrl.ID
		if ctrl.Op.IsUnconditionalJump() {
			target := g.Block(ctrl.Edges[0].Target)
			if next, ok := hole[target.ID]; ok && !target.HasMerge() {
				h = next
			}
		}
		hole[b.ID] = h
		ctrl.NextPostDominatingHole = h
		for _, nid := range b.Nodes {
			g.Node(nid).NextPostDominatingHole = h
		}
	}
}
