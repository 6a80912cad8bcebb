package graphbuilder

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/ir"
)

// forEachValue calls fn for every frame slot that carries a value under
// liveness: parameters, context and closure always, live locals, and the
// accumulator when live. With exitOnly set only the accumulator is visited.
func forEachValue(u *Unit, liveness *bytecode.Liveness, exitOnly bool, fn func(r bytecode.Register, slot int)) {
	if !exitOnly {
		for i := 0; i < u.ParameterCount(); i++ {
			r := bytecode.Parameter(i)
			fn(r, u.slot(r))
		}
		fn(bytecode.CurrentContext, u.slot(bytecode.CurrentContext))
		fn(bytecode.FunctionClosure, u.slot(bytecode.FunctionClosure))
		for i := 0; i < u.RegisterCount(); i++ {
			r := bytecode.Local(i)
			if liveness.RegisterIsLive(r) {
				fn(r, u.slot(r))
			}
		}
	}
	if liveness.AccumulatorIsLive() {
		fn(bytecode.Accumulator, u.slot(bytecode.Accumulator))
	}
}

// InterpreterFrameState maps every interpreter register of one unit to the
// node currently holding its value.
type InterpreterFrameState struct {
	unit   *Unit
	values []ir.NodeID
}

// NewInterpreterFrameState returns a frame with every slot empty.
func NewInterpreterFrameState(u *Unit) *InterpreterFrameState {
	f := &InterpreterFrameState{unit: u, values: make([]ir.NodeID, u.FrameSize())}
	for i := range f.values {
		f.values[i] = ir.NoNode
	}
	return f
}

// Get returns the node held by r, or ir.NoNode.
func (f *InterpreterFrameState) Get(r bytecode.Register) ir.NodeID {
	return f.values[f.unit.slot(r)]
}

func (f *InterpreterFrameState) Set(r bytecode.Register, n ir.NodeID) {
	f.values[f.unit.slot(r)] = n
}

func (f *InterpreterFrameState) Accumulator() ir.NodeID { return f.Get(bytecode.Accumulator) }

func (f *InterpreterFrameState) SetAccumulator(n ir.NodeID) { f.Set(bytecode.Accumulator, n) }

// CopyFrom replaces the frame with the values of a merge point. Slots dead at
// the merge are cleared.
func (f *InterpreterFrameState) CopyFrom(m *MergePointFrameState) {
	copy(f.values, m.values)
}

// MergePointFrameState is the frame at a bytecode offset reached by more than
// one edge, or by a back edge. It tracks how many predecessors are still
// expected and turns disagreeing values into phis.
type MergePointFrameState struct {
	unit     *Unit
	offset   int
	liveness *bytecode.Liveness
	loop     *bytecode.LoopInfo
	exitOnly bool

	values            []ir.NodeID
	predecessorCount  int
	predecessorsSoFar int
	info              *ir.MergeInfo
	owned             mapset.Set[ir.NodeID]
}

func newMergeState(u *Unit, offset, predecessors int, liveness *bytecode.Liveness) *MergePointFrameState {
	m := &MergePointFrameState{
		unit:             u,
		offset:           offset,
		liveness:         liveness,
		exitOnly:         offset == u.Bytecode.Length(),
		values:           make([]ir.NodeID, u.FrameSize()),
		predecessorCount: predecessors,
		info:             &ir.MergeInfo{Offset: offset},
		owned:            mapset.NewThreadUnsafeSet[ir.NodeID](),
	}
	for i := range m.values {
		m.values[i] = ir.NoNode
	}
	return m
}

// NewMergePointFrameState creates the merge state of a forward merge point
// from its first incoming edge.
func NewMergePointFrameState(u *Unit, frame *InterpreterFrameState, offset, predecessors int, pred ir.BlockID, liveness *bytecode.Liveness) *MergePointFrameState {
	m := newMergeState(u, offset, predecessors, liveness)
	forEachValue(u, liveness, m.exitOnly, func(_ bytecode.Register, slot int) {
		m.values[slot] = frame.values[slot]
	})
	m.info.Predecessors = append(m.info.Predecessors, pred)
	m.predecessorsSoFar = 1
	return m
}

// NewLoopMergePointFrameState creates the merge state of a loop header before
// any edge reaches it. Registers the loop assigns get a phi up front; every
// other slot takes the value of the first forward edge.
func NewLoopMergePointFrameState(g *ir.Graph, u *Unit, offset, predecessors int, liveness *bytecode.Liveness, loop *bytecode.LoopInfo) *MergePointFrameState {
	m := newMergeState(u, offset, predecessors, liveness)
	m.loop = loop
	m.info.Loop = true
	forEachValue(u, liveness, false, func(r bytecode.Register, slot int) {
		if loop.AssignsRegister(r) {
			m.values[slot] = m.newPhi(g, r, nil).ID
		}
	})
	return m
}

// Offset is the bytecode offset of the merge point.
func (m *MergePointFrameState) Offset() int { return m.offset }

// IsLoop reports whether the merge point heads a loop.
func (m *MergePointFrameState) IsLoop() bool { return m.loop != nil }

// PredecessorCount is the number of predecessors still expected in total.
func (m *MergePointFrameState) PredecessorCount() int { return m.predecessorCount }

// PredecessorsSoFar counts live predecessors merged so far.
func (m *MergePointFrameState) PredecessorsSoFar() int { return m.predecessorsSoFar }

// Info is the merge information handed to the block starting here.
func (m *MergePointFrameState) Info() *ir.MergeInfo { return m.info }

// Liveness is the in-liveness of the merge offset.
func (m *MergePointFrameState) Liveness() *bytecode.Liveness { return m.liveness }

// Get returns the merged value of r.
func (m *MergePointFrameState) Get(r bytecode.Register) ir.NodeID {
	return m.values[m.unit.slot(r)]
}

func (m *MergePointFrameState) newPhi(g *ir.Graph, r bytecode.Register, inputs []ir.NodeID) *ir.Node {
	phi := g.NewNode(ir.OpPhi, inputs...)
	phi.Aux = r
	phi.AuxInt = int64(m.offset)
	m.info.Phis = append(m.info.Phis, phi.ID)
	m.owned.Add(phi.ID)
	return phi
}

// Merge folds the frame arriving from pred into the merge state and returns
// pred's index in the predecessor list.
func (m *MergePointFrameState) Merge(g *ir.Graph, frame *InterpreterFrameState, pred ir.BlockID) int {
	if m.predecessorsSoFar >= m.predecessorCount {
		panic(fmt.Sprintf("%s: merge at @%d exceeds %d predecessors", m.unit.Name(), m.offset, m.predecessorCount))
	}
	forEachValue(m.unit, m.liveness, m.exitOnly, func(r bytecode.Register, slot int) {
		m.values[slot] = m.mergeValue(g, r, m.values[slot], frame.values[slot])
	})
	return m.addPredecessor(pred)
}

// MergeLoop folds a back edge from pred into a loop header. Back edges come
// after every forward edge, so they are the last predecessors. A slot that so
// far had a single value becomes a phi when the back edge disagrees.
func (m *MergePointFrameState) MergeLoop(g *ir.Graph, frame *InterpreterFrameState, pred ir.BlockID) int {
	if m.loop == nil {
		panic(fmt.Sprintf("%s: back edge into non-loop merge @%d", m.unit.Name(), m.offset))
	}
	if m.predecessorsSoFar == 0 {
		panic(fmt.Sprintf("%s: back edge into @%d before any forward edge", m.unit.Name(), m.offset))
	}
	idx := m.Merge(g, frame, pred)
	m.refreshLiveIn()
	return idx
}

// MergeDead accounts for a predecessor that turned out to be unreachable. It
// never touches the merged values.
func (m *MergePointFrameState) MergeDead() {
	if m.predecessorCount <= m.predecessorsSoFar {
		panic(fmt.Sprintf("%s: dead merge at @%d with no pending predecessor", m.unit.Name(), m.offset))
	}
	m.predecessorCount--
}

func (m *MergePointFrameState) addPredecessor(pred ir.BlockID) int {
	m.info.Predecessors = append(m.info.Predecessors, pred)
	m.predecessorsSoFar++
	return m.predecessorsSoFar - 1
}

func (m *MergePointFrameState) mergeValue(g *ir.Graph, r bytecode.Register, merged, incoming ir.NodeID) ir.NodeID {
	if incoming == ir.NoNode {
		panic(fmt.Sprintf("%s: %v live at @%d has no value", m.unit.Name(), r, m.offset))
	}
	if g.Node(incoming).IsUntagged() {
		panic(fmt.Sprintf("%s: untagged n%d flows into merge @%d", m.unit.Name(), incoming, m.offset))
	}
	if merged == ir.NoNode {
		// Only loop headers leave slots open until the first forward edge.
		return incoming
	}
	if m.owned.Contains(merged) {
		phi := g.Node(merged)
		phi.Inputs = append(phi.Inputs, incoming)
		return merged
	}
	if merged == incoming {
		return merged
	}
	inputs := make([]ir.NodeID, 0, m.predecessorsSoFar+1)
	for i := 0; i < m.predecessorsSoFar; i++ {
		inputs = append(inputs, merged)
	}
	inputs = append(inputs, incoming)
	return m.newPhi(g, r, inputs).ID
}

// refreshLiveIn records every value live on entry to the merge block.
func (m *MergePointFrameState) refreshLiveIn() {
	m.info.LiveIn = m.info.LiveIn[:0]
	seen := mapset.NewThreadUnsafeSet[ir.NodeID]()
	forEachValue(m.unit, m.liveness, m.exitOnly, func(_ bytecode.Register, slot int) {
		if v := m.values[slot]; v != ir.NoNode && seen.Add(v) {
			m.info.LiveIn = append(m.info.LiveIn, v)
		}
	})
}
