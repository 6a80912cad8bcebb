package graphbuilder

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/heap"
	"github.com/bnb-chain/midtier/core/ir"
)

// jumpTarget collects the edges waiting for the block at one offset.
type jumpTarget struct {
	block   ir.BlockID
	pending []ir.EdgeRef
}

// builder visits the bytecode of one unit. Inlined calls run a nested
// builder for the callee on the same graph.
type builder struct {
	c     *compilation
	graph *ir.Graph
	unit  *Unit
	log   log.Logger
	trace bool

	it    *bytecode.Iterator
	frame *InterpreterFrameState

	// Indexed by bytecode offset, with one extra entry for the inline exit.
	mergeStates  []*MergePointFrameState
	predecessors []int
	jumpTargets  []jumpTarget

	current     *ir.BasicBlock
	blockOffset int

	// Alternative representations of values, valid until the next merge.
	untaggedAlt map[ir.NodeID]ir.NodeID
	taggedAlt   map[ir.NodeID]ir.NodeID
}

func newBuilder(c *compilation, u *Unit) *builder {
	n := u.Bytecode.Length() + 1
	b := &builder{
		c:            c,
		graph:        c.graph,
		unit:         u,
		log:          c.ctx.logger().New("fn", u.Name(), "depth", u.Depth),
		trace:        c.ctx.Options.Trace,
		it:           bytecode.NewIterator(u.Bytecode),
		frame:        NewInterpreterFrameState(u),
		mergeStates:  make([]*MergePointFrameState, n),
		predecessors: make([]int, n),
		jumpTargets:  make([]jumpTarget, n),
		untaggedAlt:  make(map[ir.NodeID]ir.NodeID),
		taggedAlt:    make(map[ir.NodeID]ir.NodeID),
	}
	for i := range b.jumpTargets {
		b.jumpTargets[i].block = ir.NoBlock
	}
	if fn := u.Function; fn != nil && fn.Vector != nil {
		c.ctx.Dependencies.DependOnFeedback(fn.Vector)
	}
	b.calculatePredecessorCounts()
	for _, loop := range u.Analysis.Loops() {
		b.mergeStates[loop.Header] = NewLoopMergePointFrameState(b.graph, u, loop.Header,
			b.predecessors[loop.Header], u.Analysis.InLiveness(loop.Header), loop)
	}
	return b
}

func (b *builder) isInline() bool { return b.unit.Parent != nil }

func (b *builder) inlineExitOffset() int { return b.unit.Bytecode.Length() }

// calculatePredecessorCounts counts the edges into every offset, dead or
// not. Offset 0 is entered once from the prologue.
func (b *builder) calculatePredecessorCounts() {
	length := b.unit.Bytecode.Length()
	b.predecessors[0] = 1
	for it := bytecode.NewIterator(b.unit.Bytecode); !it.Done(); it.Advance() {
		op := it.CurrentBytecode()
		if op.IsJump() {
			b.predecessors[it.JumpTargetOffset()]++
		}
		if op.Returns() && b.isInline() {
			b.predecessors[length]++
		}
		if op.FallsThrough() && it.NextOffset() < length {
			b.predecessors[it.NextOffset()]++
		}
	}
}

func (b *builder) buildBody() {
	for b.it.SetOffset(0); !b.it.Done(); b.it.Advance() {
		b.visitSingleBytecode()
	}
}

func (b *builder) visitSingleBytecode() {
	offset := b.it.CurrentOffset()
	if ms := b.mergeStates[offset]; ms != nil {
		if b.current != nil {
			b.tagLiveValues(ms.Liveness())
			blk := b.finishBlock(b.newControl(ir.OpJump, nil, offset))
			b.mergeIntoFrameState(ir.EdgeRef{Block: blk.ID}, offset)
		}
		if ms.PredecessorsSoFar() == 0 {
			// Every edge into this offset turned out to be dead.
			b.markBytecodeDead()
			return
		}
		b.processMergePoint(offset)
	} else if b.current == nil {
		if b.predecessors[offset] != 0 {
			panic(fmt.Sprintf("%s: live offset @%d has no block", b.unit.Name(), offset))
		}
		b.markBytecodeDead()
		return
	}
	if b.trace {
		b.log.Trace("Visiting bytecode", "offset", offset, "bytecode", b.it.String())
	}
	b.visit()
}

// processMergePoint makes the merged frame current and starts its block.
func (b *builder) processMergePoint(offset int) {
	ms := b.mergeStates[offset]
	if !ms.IsLoop() && ms.PredecessorsSoFar() != ms.PredecessorCount() {
		panic(fmt.Sprintf("%s: merge @%d processed with %d of %d predecessors", b.unit.Name(), offset, ms.PredecessorsSoFar(), ms.PredecessorCount()))
	}
	b.frame.CopyFrom(ms)
	clear(b.untaggedAlt)
	clear(b.taggedAlt)
	ms.refreshLiveIn()
	b.startBlock(offset, ms.Info(), ir.NoBlock)
}

func (b *builder) startBlock(offset int, merge *ir.MergeInfo, pred ir.BlockID) {
	blk := b.graph.NewBlock(offset, b.unit.Name())
	blk.Depth = b.unit.Depth
	blk.Merge = merge
	blk.Predecessor = pred
	b.current = blk
	b.blockOffset = offset
}

// newControl creates a control node with one unresolved edge per target.
func (b *builder) newControl(op ir.Op, inputs []ir.NodeID, targets ...int) *ir.Node {
	n := b.graph.NewNode(op, inputs...)
	for _, t := range targets {
		n.Edges = append(n.Edges, ir.Edge{Target: ir.NoBlock, Offset: t})
	}
	return n
}

// finishBlock ends the current block with ctrl and resolves every edge
// waiting for a block at the offset the current block started at.
func (b *builder) finishBlock(ctrl *ir.Node) *ir.BasicBlock {
	blk := b.current
	if blk == nil {
		panic(fmt.Sprintf("%s: finishing with no current block at @%d", b.unit.Name(), b.it.CurrentOffset()))
	}
	b.graph.SetControl(blk, ctrl)
	b.graph.Add(blk.ID)
	b.current = nil
	b.resolveJumpsToBlockAtOffset(blk, b.blockOffset)
	if b.trace {
		b.log.Trace("Finished block", "block", blk.ID, "control", ctrl)
	}
	return blk
}

func (b *builder) resolveJumpsToBlockAtOffset(blk *ir.BasicBlock, offset int) {
	if offset < 0 {
		return
	}
	jt := &b.jumpTargets[offset]
	if jt.block == ir.NoBlock {
		jt.block = blk.ID
	}
	for _, ref := range jt.pending {
		b.graph.Edge(ref).Target = jt.block
	}
	jt.pending = nil
}

// addPending registers ref as an edge to offset. Edges to blocks that exist
// already, which only back edges see, are resolved immediately.
func (b *builder) addPending(ref ir.EdgeRef, offset int) {
	jt := &b.jumpTargets[offset]
	if jt.block != ir.NoBlock {
		b.graph.Edge(ref).Target = jt.block
		return
	}
	jt.pending = append(jt.pending, ref)
}

// mergeIntoFrameState merges the current frame along ref into target,
// creating the merge state on the first edge.
func (b *builder) mergeIntoFrameState(ref ir.EdgeRef, target int) {
	idx := 0
	if ms := b.mergeStates[target]; ms == nil {
		b.mergeStates[target] = NewMergePointFrameState(b.unit, b.frame, target,
			b.predecessors[target], ref.Block, b.unit.Analysis.InLiveness(target))
	} else {
		idx = ms.Merge(b.graph, b.frame, ref.Block)
	}
	b.graph.Edge(ref).PredIndex = idx
	b.addPending(ref, target)
}

func (b *builder) mergeDeadIntoFrameState(target int) {
	b.predecessors[target]--
	if ms := b.mergeStates[target]; ms != nil {
		ms.MergeDead()
	}
}

// startFallthroughBlock continues at next after a conditional branch. A
// single predecessor needs no merge point.
func (b *builder) startFallthroughBlock(ref ir.EdgeRef, next int) {
	if b.mergeStates[next] == nil && b.predecessors[next] == 1 {
		b.startBlock(next, nil, ref.Block)
		b.addPending(ref, next)
		return
	}
	b.mergeIntoFrameState(ref, next)
}

// markBytecodeDead removes the edges out of the current bytecode from the
// predecessor counts of their targets.
func (b *builder) markBytecodeDead() {
	op := b.it.CurrentBytecode()
	if op.IsJump() {
		b.mergeDeadIntoFrameState(b.it.JumpTargetOffset())
	}
	if op.Returns() && b.isInline() {
		b.mergeDeadIntoFrameState(b.inlineExitOffset())
	}
	if op.FallsThrough() && b.it.NextOffset() < b.unit.Bytecode.Length() {
		b.mergeDeadIntoFrameState(b.it.NextOffset())
	}
}

// emitUnconditionalDeopt ends the current block with a Deopt. The rest of
// the bytecode's successors lose this edge.
func (b *builder) emitUnconditionalDeopt() {
	b.c.deopts++
	ctrl := b.newControl(ir.OpDeopt, nil)
	ctrl.AuxInt = int64(b.it.CurrentOffset())
	b.finishBlock(ctrl)
	b.markBytecodeDead()
}

// unsupported records the current bytecode as untranslatable.
func (b *builder) unsupported() {
	op := b.it.CurrentBytecode()
	b.log.Debug("Unsupported bytecode", "bytecode", op, "offset", b.it.CurrentOffset())
	b.c.fail(&UnsupportedError{Function: b.unit.Name(), Offset: b.it.CurrentOffset(), Bytecode: op})
}

// add appends a new node to the current block.
func (b *builder) add(op ir.Op, inputs ...ir.NodeID) *ir.Node {
	n := b.graph.NewNode(op, inputs...)
	b.graph.Append(b.current, n)
	if b.trace {
		b.log.Trace("Added node", "node", n)
	}
	return n
}

func (b *builder) smiConstant(v int32) ir.NodeID {
	n := b.add(ir.OpSmiConstant)
	n.AuxInt = int64(v)
	return n.ID
}

func (b *builder) int32Constant(v int32) ir.NodeID {
	n := b.add(ir.OpInt32Constant)
	n.AuxInt = int64(v)
	return n.ID
}

func (b *builder) rootConstant(r heap.RootIndex) ir.NodeID {
	n := b.add(ir.OpRootConstant)
	n.AuxInt = int64(r)
	return n.ID
}

// constant materializes a heap object, using the compact forms for Smis and
// oddballs.
func (b *builder) constant(o heap.Object) ir.NodeID {
	switch v := o.(type) {
	case heap.Smi:
		return b.smiConstant(int32(v))
	case *heap.Oddball:
		return b.rootConstant(v.Root)
	}
	n := b.add(ir.OpConstant)
	n.Aux = o
	return n.ID
}

func (b *builder) loadField(object ir.NodeID, offset int) ir.NodeID {
	n := b.add(ir.OpLoadField, object)
	n.AuxInt = int64(offset)
	return n.ID
}

func (b *builder) value(r bytecode.Register) ir.NodeID {
	v := b.frame.Get(r)
	if v == ir.NoNode {
		panic(fmt.Sprintf("%s: %v read at @%d holds no value", b.unit.Name(), r, b.it.CurrentOffset()))
	}
	return v
}

// getTagged returns r as a tagged value. An untagged value is tagged once
// and the tagged node replaces it in the frame.
func (b *builder) getTagged(r bytecode.Register) ir.NodeID {
	v := b.value(r)
	if !b.graph.Node(v).IsUntagged() {
		return v
	}
	t, ok := b.taggedAlt[v]
	if !ok {
		t = b.add(ir.OpCheckedSmiTag, v).ID
		b.taggedAlt[v] = t
		b.untaggedAlt[t] = v
	}
	b.frame.Set(r, t)
	return t
}

// getInt32 returns r as an untagged int32, checking that a tagged value is a
// Smi. The untagged form is remembered for later reads.
func (b *builder) getInt32(r bytecode.Register) ir.NodeID {
	v := b.value(r)
	n := b.graph.Node(v)
	if n.IsUntagged() {
		return v
	}
	if u, ok := b.untaggedAlt[v]; ok {
		return u
	}
	var u ir.NodeID
	if n.Op == ir.OpSmiConstant {
		u = b.int32Constant(int32(n.AuxInt))
	} else {
		u = b.add(ir.OpCheckedSmiUntag, v).ID
	}
	b.untaggedAlt[v] = u
	b.taggedAlt[u] = v
	return u
}

func (b *builder) getAccumulatorTagged() ir.NodeID { return b.getTagged(bytecode.Accumulator) }

func (b *builder) getAccumulatorInt32() ir.NodeID { return b.getInt32(bytecode.Accumulator) }

func (b *builder) getContext() ir.NodeID { return b.getTagged(bytecode.CurrentContext) }

func (b *builder) setAccumulator(v ir.NodeID) { b.frame.SetAccumulator(v) }

// tagLiveValues tags every untagged value live under liveness so that merge
// points only ever see tagged values.
func (b *builder) tagLiveValues(liveness *bytecode.Liveness) {
	forEachValue(b.unit, liveness, false, func(r bytecode.Register, slot int) {
		if v := b.frame.values[slot]; v != ir.NoNode && b.graph.Node(v).IsUntagged() {
			b.getTagged(r)
		}
	})
}

// initializeRegisters sets every local to undefined, and the accumulator
// too when the first bytecode reads it.
func (b *builder) initializeRegisters(undefined ir.NodeID) {
	for i := 0; i < b.unit.RegisterCount(); i++ {
		b.frame.Set(bytecode.Local(i), undefined)
	}
	if b.unit.Analysis.InLiveness(0).AccumulatorIsLive() {
		b.frame.SetAccumulator(undefined)
	}
}

// buildPrologue creates the entry block of the top-level function: incoming
// parameters, context and closure as initial values.
func (b *builder) buildPrologue() {
	b.startBlock(-1, nil, ir.NoBlock)
	initial := func(r bytecode.Register) {
		n := b.add(ir.OpInitialValue)
		n.Aux = r
		n.AuxInt = int64(b.unit.slot(r))
		b.frame.Set(r, n.ID)
	}
	for i := 0; i < b.unit.ParameterCount(); i++ {
		initial(bytecode.Parameter(i))
	}
	initial(bytecode.CurrentContext)
	initial(bytecode.FunctionClosure)
	b.initializeRegisters(b.rootConstant(heap.RootUndefined))
	b.endPrologue()
}

func (b *builder) endPrologue() {
	blk := b.finishBlock(b.newControl(ir.OpJump, nil, 0))
	b.mergeIntoFrameState(ir.EdgeRef{Block: blk.ID}, 0)
}
