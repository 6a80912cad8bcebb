package regalloc

import (
	"fmt"
	"maps"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/log"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnb-chain/midtier/core/ir"
)

// testGraph builds graphs block by block. Blocks are created up front and
// join the order in creation order once finish is called.
type testGraph struct {
	*ir.Graph
	blocks []*ir.BasicBlock
}

func newTestGraph(name string, blocks int) *testGraph {
	tg := &testGraph{Graph: ir.NewGraph(name)}
	for i := 0; i < blocks; i++ {
		tg.blocks = append(tg.blocks, tg.NewBlock(i, name))
	}
	return tg
}

func (tg *testGraph) add(b int, op ir.Op, inputs ...ir.NodeID) *ir.Node {
	n := tg.NewNode(op, inputs...)
	tg.Append(tg.blocks[b], n)
	return n
}

func (tg *testGraph) param(b, slot int) ir.NodeID {
	n := tg.add(b, ir.OpInitialValue)
	n.AuxInt = int64(slot)
	return n.ID
}

func (tg *testGraph) smi(b int, v int64) ir.NodeID {
	n := tg.add(b, ir.OpSmiConstant)
	n.AuxInt = v
	return n.ID
}

func (tg *testGraph) merge(b int, loop bool, preds ...int) {
	info := &ir.MergeInfo{Offset: b, Loop: loop}
	for _, p := range preds {
		info.Predecessors = append(info.Predecessors, tg.blocks[p].ID)
	}
	tg.blocks[b].Merge = info
}

func (tg *testGraph) phi(b int, inputs ...ir.NodeID) ir.NodeID {
	n := tg.NewNode(ir.OpPhi, inputs...)
	info := tg.blocks[b].Merge
	info.Phis = append(info.Phis, n.ID)
	return n.ID
}

func (tg *testGraph) edge(from, to int) ir.Edge {
	target := tg.blocks[to]
	if !target.HasMerge() {
		target.Predecessor = tg.blocks[from].ID
		return ir.Edge{Target: target.ID}
	}
	for i, p := range target.Merge.Predecessors {
		if p == tg.blocks[from].ID {
			return ir.Edge{Target: target.ID, PredIndex: i}
		}
	}
	panic(fmt.Sprintf("b%d is no predecessor of b%d", from, to))
}

func (tg *testGraph) control(b int, op ir.Op, inputs []ir.NodeID, targets ...int) *ir.Node {
	n := tg.NewNode(op, inputs...)
	for _, t := range targets {
		n.Edges = append(n.Edges, tg.edge(b, t))
	}
	tg.SetControl(tg.blocks[b], n)
	return n
}

func (tg *testGraph) jump(b, to int) *ir.Node { return tg.control(b, ir.OpJump, nil, to) }

func (tg *testGraph) ret(b int, v ir.NodeID) *ir.Node {
	return tg.control(b, ir.OpReturn, []ir.NodeID{v})
}

func (tg *testGraph) finish(t *testing.T) *ir.Graph {
	for _, b := range tg.blocks {
		tg.Add(b.ID)
	}
	require.NoError(t, ir.Verify(tg.Graph))
	return tg.Graph
}

func checkedConfig(t *testing.T, names ...string) *Config {
	if len(names) == 0 {
		names = DefaultRegisters
	}
	cfg, err := NewConfig(names)
	require.NoError(t, err)
	cfg.Check = true
	return cfg
}

func allocate(t *testing.T, g *ir.Graph, cfg *Config) *Stats {
	stats := Allocate(g, cfg, log.Root())
	simulate(t, g)
	return stats
}

type machineState map[ir.Location]ir.NodeID

type edgeKey struct {
	from  ir.BlockID
	index int
}

// simulate walks the allocated graph tracking which value every location
// holds and fails on any read of a location that does not hold the value
// the node expects. Stack stores happen right after a value's definition. A
// merge block starts from what all its incoming edges agree on; passes
// repeat until loop headers stop losing entries.
func simulate(t *testing.T, g *ir.Graph) {
	t.Helper()
	incoming := make(map[ir.BlockID]map[edgeKey]machineState)
	entry := make(map[ir.BlockID]machineState)

	fail := func(format string, args ...any) {
		t.Helper()
		require.FailNow(t, fmt.Sprintf(format, args...), "%s", g.String())
	}
	expect := func(s machineState, loc ir.Location, v ir.NodeID, at any) {
		t.Helper()
		if got, ok := s[loc]; !ok || got != v {
			fail("%v: %v holds n%d, want n%d\nstate: %s", at, loc, got, v, spew.Sdump(s))
		}
	}

	for changed := true; changed; {
		changed = false
		for i, id := range g.Blocks() {
			b := g.Block(id)
			var s machineState
			if i == 0 {
				s = machineState{}
				for _, nid := range b.Nodes {
					if n := g.Node(nid); n.Op == ir.OpInitialValue {
						s[n.Result] = n.ID
					}
				}
			} else {
				if len(incoming[id]) == 0 {
					fail("b%d reached by no edge", id)
				}
				for _, in := range incoming[id] {
					if s == nil {
						s = maps.Clone(in)
						continue
					}
					for loc, v := range s {
						if other, ok := in[loc]; !ok || other != v {
							delete(s, loc)
						}
					}
				}
			}
			for _, pid := range b.Phis() {
				if p := g.Node(pid); p.Result.IsRegister() && p.Spill.IsAllocated() {
					s[p.Spill] = pid
				}
			}
			if prev, ok := entry[id]; !ok || !maps.Equal(prev, s) {
				changed = changed || ok
				entry[id] = maps.Clone(s)
			}

			for _, nid := range b.Nodes {
				n := g.Node(nid)
				if n.Op == ir.OpGapMove {
					m := n.Move()
					expect(s, m.From, m.Value, n)
					s[m.To] = m.Value
					continue
				}
				for j, in := range n.Inputs {
					expect(s, n.InputLocations[j], in, n)
				}
				for _, tmp := range n.Temporaries {
					delete(s, tmp)
				}
				if n.Op.IsCall() {
					for loc := range s {
						if loc.IsRegister() {
							delete(s, loc)
						}
					}
				}
				if n.Result.IsRegister() {
					s[n.Result] = n.ID
				}
				if n.Spill.Kind == ir.InStackSlot {
					s[n.Spill] = n.ID
				}
			}
			ctrl := g.Node(b.Control)
			for j, in := range ctrl.Inputs {
				expect(s, ctrl.InputLocations[j], in, ctrl)
			}
			for k, e := range ctrl.Edges {
				out := maps.Clone(s)
				for _, m := range e.Moves {
					v, ok := out[m.From]
					if !ok {
						fail("%v: edge move %v reads an empty location", ctrl, m)
					}
					out[m.To] = v
				}
				target := g.Block(e.Target)
				for _, pid := range target.Phis() {
					p := g.Node(pid)
					if !p.Result.IsAllocated() {
						continue
					}
					expect(out, p.Result, p.Inputs[e.PredIndex], fmt.Sprintf("edge b%d->b%d", id, target.ID))
					out[p.Result] = pid
				}
				if incoming[target.ID] == nil {
					incoming[target.ID] = make(map[edgeKey]machineState)
				}
				incoming[target.ID][edgeKey{id, k}] = out
			}
		}
	}
}

func TestStraightLineUsesRegistersOnly(t *testing.T) {
	tg := newTestGraph("add", 1)
	a := tg.param(0, 0)
	b := tg.param(0, 1)
	ua := tg.add(0, ir.OpCheckedSmiUntag, a)
	ub := tg.add(0, ir.OpCheckedSmiUntag, b)
	sum := tg.add(0, ir.OpInt32AddWithOverflow, ua.ID, ub.ID)
	tagged := tg.add(0, ir.OpCheckedSmiTag, sum.ID)
	ret := tg.ret(0, tagged.ID)
	g := tg.finish(t)

	stats := allocate(t, g, checkedConfig(t))
	assert.Equal(t, 0, stats.StackSlots())
	assert.Equal(t, 0, stats.Evictions)
	assert.Equal(t, ir.FrameSlotLocation(0), g.Node(a).Result)
	assert.Equal(t, ir.FrameSlotLocation(1), g.Node(b).Result)
	// Parameters are reloaded from the frame into registers.
	assert.Equal(t, 2, stats.GapMoves)
	for _, n := range []*ir.Node{ua, ub, sum, tagged} {
		assert.True(t, n.Result.IsRegister(), "%v", n)
	}
	assert.Equal(t, ir.RegisterLocation(RAX), ret.InputLocations[0])
	assert.Equal(t, int32(1), g.Node(a).Pos)
	assert.Equal(t, ua.Pos, g.Node(a).LiveEnd)
}

func TestEvictsFurthestNextUse(t *testing.T) {
	tg := newTestGraph("pressure", 1)
	var c [5]ir.NodeID
	for i := range c {
		c[i] = tg.smi(0, int64(i))
	}
	for _, i := range []int{1, 2, 3, 4, 0} {
		tg.add(0, ir.OpCheckedSmiUntag, c[i])
	}
	tg.ret(0, c[0])
	g := tg.finish(t)

	stats := allocate(t, g, checkedConfig(t, "rax", "rdx", "rsi", "rdi"))
	assert.Equal(t, 1, stats.Evictions)
	assert.Equal(t, ir.StackSlotLocation(0, false), g.Node(c[0]).Spill)
	for _, v := range c[1:] {
		assert.False(t, g.Node(v).Spill.IsAllocated(), "n%d spilled", v)
	}
	assert.Equal(t, ir.RegisterLocation(RAX), g.Node(c[4]).Result)
	assert.Equal(t, 1, stats.TaggedSlots)
	assert.Equal(t, 1, stats.GapMoves)
}

func TestNeverEvictsInputOfCurrentNode(t *testing.T) {
	tg := newTestGraph("inputs", 1)
	var s [4]ir.NodeID
	for i := range s {
		s[i] = tg.smi(0, int64(i))
	}
	p := tg.param(0, 1)
	sum := tg.add(0, ir.OpInt32AddWithOverflow, p, s[3])
	for _, i := range []int{2, 1, 0} {
		tg.add(0, ir.OpCheckedSmiUntag, s[i])
	}
	tg.ret(0, sum.ID)
	g := tg.finish(t)

	stats := allocate(t, g, checkedConfig(t, "rax", "rdx", "rsi", "rdi"))
	assert.Equal(t, 1, stats.Evictions)
	assert.False(t, g.Node(s[3]).Spill.IsAllocated(), "input of the add was spilled")
	assert.Equal(t, ir.StackSlotLocation(0, false), g.Node(s[0]).Spill)
	assert.Equal(t, g.Node(s[3]).Result, sum.InputLocations[1])
}

func TestUnusedResultsStayUnallocated(t *testing.T) {
	tg := newTestGraph("dead", 1)
	dead := tg.smi(0, 1)
	live := tg.smi(0, 2)
	tg.ret(0, live)
	g := tg.finish(t)

	allocate(t, g, checkedConfig(t))
	assert.False(t, g.Node(dead).Result.IsAllocated())
	assert.Equal(t, ir.RegisterLocation(RAX), g.Node(live).Result)
}

func TestCallsUseFixedRegistersAndSpill(t *testing.T) {
	tg := newTestGraph("call", 1)
	p := tg.param(0, 0)
	k := tg.smi(0, 1)
	first := tg.add(0, ir.OpGenericBinary, p, k)
	second := tg.add(0, ir.OpGenericBinary, first.ID, k)
	tg.ret(0, second.ID)
	g := tg.finish(t)

	allocate(t, g, checkedConfig(t))
	assert.Equal(t, []ir.Location{ir.RegisterLocation(RDX), ir.RegisterLocation(RAX)}, first.InputLocations)
	assert.Equal(t, []ir.Location{ir.RegisterLocation(RDX), ir.RegisterLocation(RAX)}, second.InputLocations)
	assert.Equal(t, ir.RegisterLocation(RAX), first.Result)
	assert.Equal(t, ir.RegisterLocation(RAX), second.Result)
	assert.True(t, g.Node(k).Spill.IsAllocated(), "constant must survive the first call on the stack")
	assert.False(t, g.Node(p).Spill.Kind == ir.InStackSlot)
}

func TestCallArgumentsPassedOnStack(t *testing.T) {
	tg := newTestGraph("args", 1)
	fn := tg.param(0, 0)
	ctx := tg.param(0, 1)
	x := tg.smi(0, 7)
	call := tg.add(0, ir.OpCall, fn, ctx, x)
	call.AuxInt = 1
	tg.ret(0, call.ID)
	g := tg.finish(t)

	allocate(t, g, checkedConfig(t))
	require.Len(t, call.InputLocations, 3)
	assert.Equal(t, ir.RegisterLocation(RDI), call.InputLocations[0])
	assert.Equal(t, ir.RegisterLocation(RSI), call.InputLocations[1])
	assert.Equal(t, ir.InStackSlot, call.InputLocations[2].Kind)
	assert.Equal(t, ir.RegisterLocation(RAX), call.Result)
}

func TestTemporariesAvoidInputs(t *testing.T) {
	tg := newTestGraph("store", 1)
	obj := tg.param(0, 0)
	val := tg.smi(0, 3)
	store := tg.add(0, ir.OpStoreField, obj, val)
	store.AuxInt = 24
	tg.ret(0, obj)
	g := tg.finish(t)

	allocate(t, g, checkedConfig(t, "rax", "rdx", "rsi", "rdi"))
	require.Len(t, store.Temporaries, 1)
	tmp := store.Temporaries[0]
	for _, in := range store.InputLocations {
		assert.NotEqual(t, in, tmp)
	}
}

// diamond builds
//
//	b0: c = param; x = 1; y = 2; Branch c -> b1, b2
//	b1: Jump b3
//	b2: Jump b3
//	b3: phi(x, y); Return phi
func diamond(t *testing.T) (*ir.Graph, ir.NodeID, ir.NodeID, ir.NodeID) {
	tg := newTestGraph("diamond", 4)
	c := tg.param(0, 0)
	x := tg.smi(0, 1)
	y := tg.smi(0, 2)
	tg.merge(3, false, 1, 2)
	tg.control(0, ir.OpBranchIfToBooleanTrue, []ir.NodeID{c}, 1, 2)
	tg.jump(1, 3)
	tg.jump(2, 3)
	phi := tg.phi(3, x, y)
	tg.ret(3, phi)
	return tg.finish(t), phi, x, y
}

func TestDiamondPhiMoves(t *testing.T) {
	g, phi, x, y := diamond(t)
	stats := allocate(t, g, checkedConfig(t))

	p := g.Node(phi)
	require.True(t, p.Result.IsRegister())
	// The phi takes the register of the first edge's input; the second edge
	// moves its input over.
	assert.Equal(t, g.Node(x).Result, p.Result)
	assert.NotEqual(t, g.Node(y).Result, p.Result)
	second := g.Edge(ir.EdgeRef{Block: g.Blocks()[2]})
	require.Len(t, second.Moves, 1)
	assert.Equal(t, g.Node(y).Result, second.Moves[0].From)
	assert.Equal(t, p.Result, second.Moves[0].To)
	assert.Equal(t, 1, stats.EdgeMoves)
}

func TestEagerSpillBeforeBranch(t *testing.T) {
	tg := newTestGraph("eager", 3)
	c := tg.param(0, 0)
	v := tg.smi(0, 5)
	tg.control(0, ir.OpBranchIfToBooleanTrue, []ir.NodeID{c}, 1, 2)
	tg.ret(1, v)
	tg.ret(2, c)
	g := tg.finish(t)

	allocate(t, g, checkedConfig(t))
	n := g.Node(v)
	assert.Equal(t, g.Node(g.Block(g.Blocks()[0]).Control).ID, n.NextPostDominatingHole)
	assert.True(t, n.Spill.IsAllocated(), "value used past the branch is stored at its definition")
}

// counter builds
//
//	b0: n = param; zero = 0; Jump b1
//	b1: i = phi(zero, next); Branch i -> b2, b3
//	b2: next = Tag(Untag(i) + 1); JumpLoop b1
//	b3: Return n
func counter(t *testing.T) (*ir.Graph, ir.NodeID) {
	tg := newTestGraph("counter", 4)
	n := tg.param(0, 0)
	zero := tg.smi(0, 0)
	tg.merge(1, true, 0, 2)
	tg.jump(0, 1)
	i := tg.phi(1, zero, ir.NoNode)
	tg.control(1, ir.OpBranchIfToBooleanTrue, []ir.NodeID{i}, 2, 3)
	u := tg.add(2, ir.OpCheckedSmiUntag, i)
	one := tg.add(2, ir.OpInt32Constant)
	one.AuxInt = 1
	sum := tg.add(2, ir.OpInt32AddWithOverflow, u.ID, one.ID)
	next := tg.add(2, ir.OpCheckedSmiTag, sum.ID)
	tg.Node(i).Inputs[1] = next.ID
	tg.control(2, ir.OpJumpLoop, nil, 1)
	tg.ret(3, n)
	return tg.finish(t), i
}

func TestLoopBackEdgeRestoresHeaderState(t *testing.T) {
	g, i := counter(t)
	allocate(t, g, checkedConfig(t))
	header := g.Block(g.Blocks()[1])
	back := g.Node(g.Block(g.Blocks()[2]).Control)
	phi := g.Node(i)
	require.True(t, phi.Result.IsRegister())
	assert.GreaterOrEqual(t, phi.LiveEnd, back.Pos, "loop phis live until the back edge")
	assert.Equal(t, header.ID, back.Edges[0].Target)
}

func TestLoopUnderPressure(t *testing.T) {
	g, _ := counter(t)
	// Few registers force values live across the loop onto the stack.
	allocate(t, g, checkedConfig(t, "rax", "rdx", "rsi", "rdi"))
}

func TestStackPhisWhenRegistersRunOut(t *testing.T) {
	tg := newTestGraph("wide", 4)
	c := tg.param(0, 0)
	var xs, ys []ir.NodeID
	for i := 0; i < 6; i++ {
		xs = append(xs, tg.smi(0, int64(i)))
	}
	tg.merge(3, false, 1, 2)
	tg.control(0, ir.OpBranchIfToBooleanTrue, []ir.NodeID{c}, 1, 2)
	tg.jump(1, 3)
	for i := 0; i < 6; i++ {
		ys = append(ys, tg.smi(2, int64(10+i)))
	}
	tg.jump(2, 3)
	var phis []ir.NodeID
	for i := range xs {
		phis = append(phis, tg.phi(3, xs[i], ys[i]))
	}
	acc := phis[0]
	for _, p := range phis[1:] {
		acc = tg.add(3, ir.OpGenericBinary, acc, p).ID
	}
	tg.ret(3, acc)
	g := tg.finish(t)

	allocate(t, g, checkedConfig(t, "rax", "rdx", "rsi", "rdi"))
	onStack := 0
	for _, p := range phis {
		if g.Node(p).Result.Kind == ir.InStackSlot {
			onStack++
		}
	}
	assert.Positive(t, onStack)
}

func TestMissingEntryStatePanics(t *testing.T) {
	tg := newTestGraph("orphan", 2)
	tg.ret(0, tg.smi(0, 1))
	tg.ret(1, tg.smi(1, 2))
	g := tg.Graph
	for _, b := range tg.blocks {
		g.Add(b.ID)
	}
	assert.Panics(t, func() { Allocate(g, DefaultConfig(), nil) })
}

// TestRandomPrograms allocates random straight-line and diamond programs
// under a small register file and checks them by simulation.
func TestRandomPrograms(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		var ops []uint8
		f := fuzz.NewWithSeed(seed).NilChance(0).NumElements(8, 40)
		f.Fuzz(&ops)
		g := randomProgram(t, ops)
		require.NotPanics(t, func() {
			Allocate(g, checkedConfig(t, "rax", "rdx", "rsi", "rdi", "rbx"), nil)
		}, "seed %d", seed)
		simulate(t, g)
	}
}

func randomProgram(t *testing.T, ops []uint8) *ir.Graph {
	tg := newTestGraph("random", 4)
	tagged := []ir.NodeID{tg.param(0, 0), tg.param(0, 1), tg.param(0, 2)}
	var untagged []ir.NodeID
	pick := func(vs []ir.NodeID, k uint8) ir.NodeID { return vs[int(k)%len(vs)] }

	emit := func(b int, op, k uint8) {
		switch op % 7 {
		case 0:
			tagged = append(tagged, tg.smi(b, int64(k)))
		case 1:
			untagged = append(untagged, tg.add(b, ir.OpCheckedSmiUntag, pick(tagged, k)).ID)
		case 2:
			if len(untagged) > 0 {
				n := tg.add(b, ir.OpInt32AddWithOverflow, pick(untagged, k), pick(untagged, k/3))
				untagged = append(untagged, n.ID)
			}
		case 3:
			if len(untagged) > 0 {
				tagged = append(tagged, tg.add(b, ir.OpCheckedSmiTag, pick(untagged, k)).ID)
			}
		case 4:
			n := tg.add(b, ir.OpGenericBinary, pick(tagged, k), pick(tagged, k/5))
			tagged = append(tagged, n.ID)
		case 5:
			n := tg.add(b, ir.OpCall, pick(tagged, k), pick(tagged, k/2), pick(tagged, k/3), pick(tagged, k/7))
			n.AuxInt = 2
			tagged = append(tagged, n.ID)
		case 6:
			n := tg.add(b, ir.OpStoreField, pick(tagged, k), pick(tagged, k/2))
			n.AuxInt = 16
		}
	}

	half := len(ops) / 2
	for i := 0; i+1 < half; i += 2 {
		emit(0, ops[i], ops[i+1])
	}
	// Only values from b0 flow into the merge.
	base := tagged
	tg.merge(3, false, 1, 2)
	tg.control(0, ir.OpBranchIfToBooleanTrue, []ir.NodeID{pick(base, ops[0])}, 1, 2)
	tg.jump(1, 3)
	for i := half; i+1 < len(ops); i += 2 {
		emit(2, ops[i], ops[i+1])
	}
	fromB2 := pick(tagged, ops[len(ops)-1])
	tg.jump(2, 3)
	phi := tg.phi(3, pick(base, ops[1]), fromB2)
	sum := tg.add(3, ir.OpGenericBinary, phi, pick(base, ops[2]))
	tg.ret(3, sum.ID)
	return tg.finish(t)
}
