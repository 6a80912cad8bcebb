package regalloc

import (
	"slices"

	"github.com/bits-and-blooms/bitset"

	"github.com/bnb-chain/midtier/core/ir"
)

type blockInfo struct {
	start, end int32
	liveIn     *bitset.BitSet
	liveOut    *bitset.BitSet
}

// liveness numbers the graph and records, for every value, the sorted
// positions it is used at.
type liveness struct {
	g      *ir.Graph
	blocks map[ir.BlockID]*blockInfo
	uses   [][]int32
}

// computeLiveness assigns positions in block order (phis, nodes, control)
// and computes block live-in sets. A phi input is used at the end of its
// predecessor. Values live into a loop header stay live until the loop's
// last back edge.
func computeLiveness(g *ir.Graph) *liveness {
	lv := &liveness{
		g:      g,
		blocks: make(map[ir.BlockID]*blockInfo, g.NumBlocks()),
		uses:   make([][]int32, g.NumNodes()),
	}
	lv.number()
	lv.collectUses()
	lv.computeLiveIn()
	lv.extendLoops()
	for id, uses := range lv.uses {
		n := g.Node(ir.NodeID(id))
		if n.Pos < 0 {
			continue
		}
		slices.Sort(uses)
		n.LiveEnd = n.Pos
		if len(uses) > 0 && uses[len(uses)-1] > n.Pos {
			n.LiveEnd = uses[len(uses)-1]
		}
	}
	return lv
}

func (lv *liveness) number() {
	var pos int32
	for _, id := range lv.g.Blocks() {
		b := lv.g.Block(id)
		info := &blockInfo{start: pos + 1}
		for _, n := range b.Phis() {
			pos++
			lv.g.Node(n).Pos = pos
		}
		for _, n := range b.Nodes {
			pos++
			lv.g.Node(n).Pos = pos
		}
		pos++
		lv.g.Node(b.Control).Pos = pos
		info.end = pos
		lv.blocks[id] = info
	}
}

func (lv *liveness) collectUses() {
	for _, id := range lv.g.Blocks() {
		b := lv.g.Block(id)
		preds := b.Predecessors()
		for _, pid := range b.Phis() {
			for i, in := range lv.g.Node(pid).Inputs {
				lv.uses[in] = append(lv.uses[in], lv.blocks[preds[i]].end)
			}
		}
		forEachNode(lv.g, b, func(n *ir.Node) {
			for _, in := range n.Inputs {
				lv.uses[in] = append(lv.uses[in], n.Pos)
			}
		})
	}
}

// computeLiveIn iterates the block live sets to a fixed point, walking the
// blocks backwards.
func (lv *liveness) computeLiveIn() {
	size := uint(lv.g.NumNodes())
	for _, info := range lv.blocks {
		info.liveIn = bitset.New(size)
		info.liveOut = bitset.New(size)
	}
	order := lv.g.Blocks()
	for changed := true; changed; {
		changed = false
		for i := len(order) - 1; i >= 0; i-- {
			b := lv.g.Block(order[i])
			info := lv.blocks[b.ID]

			out := bitset.New(size)
			for _, e := range lv.g.Node(b.Control).Edges {
				succ := lv.g.Block(e.Target)
				out.InPlaceUnion(lv.blocks[succ.ID].liveIn)
				for _, pid := range succ.Phis() {
					out.Set(uint(lv.g.Node(pid).Inputs[e.PredIndex]))
				}
			}
			live := out.Clone()
			for j := len(b.Nodes); j >= 0; j-- {
				var n *ir.Node
				if j == len(b.Nodes) {
					n = lv.g.Node(b.Control)
				} else {
					n = lv.g.Node(b.Nodes[j])
				}
				live.Clear(uint(n.ID))
				for _, in := range n.Inputs {
					live.Set(uint(in))
				}
			}
			for _, pid := range b.Phis() {
				live.Clear(uint(pid))
			}
			if !live.Equal(info.liveIn) || !out.Equal(info.liveOut) {
				info.liveIn, info.liveOut = live, out
				changed = true
			}
		}
	}
}

// extendLoops keeps every value live into a loop header, and the header's
// phis, alive until the last back edge, since the next iteration reads them.
func (lv *liveness) extendLoops() {
	for _, id := range lv.g.Blocks() {
		b := lv.g.Block(id)
		if !b.IsLoopHeader() {
			continue
		}
		info := lv.blocks[id]
		var last int32
		for _, p := range b.Predecessors() {
			if end := lv.blocks[p].end; end >= info.start && end > last {
				last = end
			}
		}
		if last == 0 {
			continue
		}
		for v, ok := info.liveIn.NextSet(0); ok; v, ok = info.liveIn.NextSet(v + 1) {
			lv.uses[v] = append(lv.uses[v], last)
		}
		for _, pid := range b.Phis() {
			lv.uses[pid] = append(lv.uses[pid], last)
		}
	}
}

// forEachNode visits b's nodes and then its control node.
func forEachNode(g *ir.Graph, b *ir.BasicBlock, fn func(n *ir.Node)) {
	for _, nid := range b.Nodes {
		fn(g.Node(nid))
	}
	fn(g.Node(b.Control))
}

func (lv *liveness) isLiveIn(b ir.BlockID, v ir.NodeID) bool {
	return lv.blocks[b].liveIn.Test(uint(v))
}

// nextUse returns the first use of v after pos, or -1.
func (lv *liveness) nextUse(v ir.NodeID, pos int32) int32 {
	uses := lv.uses[v]
	i, _ := slices.BinarySearch(uses, pos+1)
	if i == len(uses) {
		return -1
	}
	return uses[i]
}
