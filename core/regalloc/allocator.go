package regalloc

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/bnb-chain/midtier/core/ir"
)

const numRegisterCodes = len(registerNames)

// registerState maps register codes to the value they hold.
type registerState [numRegisterCodes]ir.NodeID

func emptyState() registerState {
	var st registerState
	for i := range st {
		st[i] = ir.NoNode
	}
	return st
}

type allocator struct {
	g   *ir.Graph
	cfg *Config
	log log.Logger
	lv  *liveness

	regs  registerState
	regOf []int
	// entry holds the register state every block starts with. Single
	// predecessor blocks get their predecessor's final state, merge blocks
	// the state fixed by their first incoming edge.
	entry    map[ir.BlockID]registerState
	phiBlock map[ir.NodeID]ir.BlockID

	tagged   SpillSlots
	untagged SpillSlots
	spilled  []ir.NodeID

	block *ir.BasicBlock
	pos   int32
	gaps  []ir.NodeID
	stats Stats
}

// Allocate assigns every value of g a register or stack location. Values
// that are stored to the stack are stored once, right after their
// definition. It annotates nodes and edges in place and inserts GapMove
// nodes for reloads and fixed-register inputs.
func Allocate(g *ir.Graph, cfg *Config, logger log.Logger) *Stats {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.Root()
	}
	a := &allocator{
		g:        g,
		cfg:      cfg,
		log:      logger.New("fn", g.Name),
		regs:     emptyState(),
		regOf:    make([]int, g.NumNodes()),
		entry:    make(map[ir.BlockID]registerState),
		phiBlock: make(map[ir.NodeID]ir.BlockID),
	}
	for i := range a.regOf {
		a.regOf[i] = -1
	}
	a.lv = computeLiveness(g)
	computePostDominatingHoles(g)

	for _, id := range g.Blocks() {
		b := g.Block(id)
		for _, pid := range b.Phis() {
			a.phiBlock[pid] = id
		}
		for _, nid := range b.Nodes {
			if n := g.Node(nid); n.Op == ir.OpInitialValue {
				n.Result = ir.FrameSlotLocation(int(n.AuxInt))
				n.Spill = n.Result
			}
		}
	}
	for i, id := range g.Blocks() {
		b := g.Block(id)
		st, ok := a.entry[id]
		if !ok {
			if i != 0 {
				panic(fmt.Sprintf("%s: block b%d reached without a register state", g.Name, id))
			}
			st = emptyState()
		}
		a.allocateBlock(b, st)
	}
	a.stats.TaggedSlots = a.tagged.Count()
	a.stats.UntaggedSlots = a.untagged.Count()
	a.log.Debug("Allocated registers", "tagged", a.stats.TaggedSlots, "untagged", a.stats.UntaggedSlots,
		"gapmoves", a.stats.GapMoves, "edgemoves", a.stats.EdgeMoves, "evictions", a.stats.Evictions)
	return &a.stats
}

func (a *allocator) allocateBlock(b *ir.BasicBlock, st registerState) {
	a.block = b
	a.pos = a.lv.blocks[b.ID].start
	a.load(st)
	for code, v := range a.regs {
		if v != ir.NoNode && a.phiBlock[v] != b.ID && !a.lv.isLiveIn(b.ID, v) {
			a.free(code)
		}
	}
	a.releaseSlots()

	nodes := make([]ir.NodeID, 0, len(b.Nodes))
	for _, nid := range b.Nodes {
		n := a.g.Node(nid)
		a.pos = n.Pos
		a.releaseSlots()
		a.gaps = a.gaps[:0]
		a.allocateNode(n)
		nodes = append(nodes, a.gaps...)
		nodes = append(nodes, nid)
		a.freeDead()
		a.check(n)
	}
	ctrl := a.g.Node(b.Control)
	a.pos = ctrl.Pos
	a.releaseSlots()
	a.gaps = a.gaps[:0]
	a.allocateControl(ctrl)
	nodes = append(nodes, a.gaps...)
	b.Nodes = nodes
	a.check(ctrl)
}

// load makes st the current register state.
func (a *allocator) load(st registerState) {
	for _, v := range a.regs {
		if v != ir.NoNode {
			a.regOf[v] = -1
		}
	}
	a.regs = st
	for code, v := range a.regs {
		if v != ir.NoNode {
			a.regOf[v] = code
		}
	}
}

func (a *allocator) free(code int) {
	if v := a.regs[code]; v != ir.NoNode {
		a.regOf[v] = -1
		a.regs[code] = ir.NoNode
	}
}

func (a *allocator) assign(code int, v ir.NodeID) {
	if a.regs[code] != ir.NoNode {
		panic(fmt.Sprintf("%s: %s already holds n%d", a.g.Name, RegisterName(code), a.regs[code]))
	}
	a.regs[code] = v
	a.regOf[v] = code
}

// freeDead drops values whose last use is behind the current position.
func (a *allocator) freeDead() {
	for code, v := range a.regs {
		if v != ir.NoNode && a.g.Node(v).LiveEnd <= a.pos {
			a.free(code)
		}
	}
}

// releaseSlots returns the spill slots of dead values to their pool.
func (a *allocator) releaseSlots() {
	kept := a.spilled[:0]
	for _, v := range a.spilled {
		n := a.g.Node(v)
		if n.LiveEnd >= a.pos {
			kept = append(kept, v)
			continue
		}
		a.slots(n).Free(int(n.Spill.Index), n.LiveEnd)
	}
	a.spilled = kept
}

func (a *allocator) slots(n *ir.Node) *SpillSlots {
	if n.IsUntagged() {
		return &a.untagged
	}
	return &a.tagged
}

// spill gives v a stack slot live from start on, unless it already has one.
func (a *allocator) spill(v ir.NodeID, start int32) ir.Location {
	n := a.g.Node(v)
	if n.Spill.IsAllocated() {
		return n.Spill
	}
	slot := a.slots(n).Allocate(start)
	n.Spill = ir.StackSlotLocation(slot, n.IsUntagged())
	a.spilled = append(a.spilled, v)
	if a.cfg.Trace {
		a.log.Trace("Spilled value", "node", n, "slot", n.Spill)
	}
	return n.Spill
}

// location is where v currently lives.
func (a *allocator) location(v ir.NodeID) ir.Location {
	if code := a.regOf[v]; code >= 0 {
		return ir.RegisterLocation(code)
	}
	n := a.g.Node(v)
	if !n.Spill.IsAllocated() {
		panic(fmt.Sprintf("%s: n%d %v has no location at %d", a.g.Name, v, n.Op, a.pos))
	}
	return n.Spill
}

func (a *allocator) gapMove(from, to ir.Location, v ir.NodeID) {
	n := a.g.NewNode(ir.OpGapMove)
	n.Aux = ir.Move{From: from, To: to, Value: v}
	n.Block = a.block.ID
	n.Pos = a.pos
	a.gaps = append(a.gaps, n.ID)
	a.stats.GapMoves++
}

func (a *allocator) allocateNode(n *ir.Node) {
	if n.Op == ir.OpInitialValue {
		// Lives in its frame slot and is reloaded on use.
		return
	}
	c := constraintOf(n)
	if n.Op.IsCall() {
		a.allocateCall(n, c)
		return
	}
	blocked := a.heldInputs(n.Inputs)
	n.InputLocations = make([]ir.Location, len(n.Inputs))
	for i, in := range n.Inputs {
		loc := a.ensureInRegister(in, blocked)
		blocked = blocked.with(loc.Register())
		n.InputLocations[i] = loc
	}
	var temps registerSet
	for k := 0; k < n.Op.Temporaries(); k++ {
		code := a.pickRegister(blocked)
		blocked = blocked.with(code)
		temps = temps.with(code)
		n.Temporaries = append(n.Temporaries, ir.RegisterLocation(code))
	}
	for _, in := range n.Inputs {
		if code := a.regOf[in]; code >= 0 && a.g.Node(in).LiveEnd <= n.Pos {
			a.free(code)
		}
	}
	if n.HasResult() {
		a.allocateResult(n, c.result, temps)
	}
}

// allocateCall moves fixed inputs into place, passes the rest on the stack
// and then spills every value that outlives the call.
func (a *allocator) allocateCall(n *ir.Node, c constraint) {
	n.InputLocations = make([]ir.Location, len(n.Inputs))
	var moves []ir.Move
	for i, in := range n.Inputs {
		if c.inputs[i] == anyLocation {
			n.InputLocations[i] = a.spill(in, a.g.Node(in).Pos)
			continue
		}
		to := ir.RegisterLocation(c.inputs[i])
		n.InputLocations[i] = to
		moves = append(moves, ir.Move{From: a.location(in), To: to, Value: in})
	}
	for _, m := range sequentialize(moves, ir.RegisterLocation(a.cfg.Scratch)) {
		a.gapMove(m.From, m.To, m.Value)
	}
	for _, code := range a.cfg.Registers {
		if v := a.regs[code]; v != ir.NoNode {
			if a.g.Node(v).LiveEnd > n.Pos {
				a.spill(v, a.g.Node(v).Pos)
			}
			a.free(code)
		}
	}
	if n.HasResult() {
		a.allocateResult(n, c.result, 0)
	}
}

func (a *allocator) allocateControl(ctrl *ir.Node) {
	c := constraintOf(ctrl)
	ctrl.InputLocations = make([]ir.Location, len(ctrl.Inputs))
	blocked := a.heldInputs(ctrl.Inputs)
	for i, in := range ctrl.Inputs {
		if fixed := c.inputs[i]; fixed >= 0 {
			to := ir.RegisterLocation(fixed)
			if from := a.location(in); !sameLocation(from, to) {
				a.gapMove(from, to, in)
			}
			ctrl.InputLocations[i] = to
			continue
		}
		loc := a.ensureInRegister(in, blocked)
		blocked = blocked.with(loc.Register())
		ctrl.InputLocations[i] = loc
	}
	for i := range ctrl.Edges {
		e := &ctrl.Edges[i]
		target := a.g.Block(e.Target)
		if !target.HasMerge() {
			a.entry[target.ID] = a.regs
			continue
		}
		a.resolveEdge(e, target)
	}
}

func (a *allocator) allocateResult(n *ir.Node, fixed int, blocked registerSet) {
	if n.LiveEnd <= n.Pos {
		// Never used.
		return
	}
	code := fixed
	if code == anyRegister {
		code = a.pickRegister(blocked)
	} else if a.regs[code] != ir.NoNode {
		a.evict(code)
	}
	a.assign(code, n.ID)
	n.Result = ir.RegisterLocation(code)
	if hole := n.NextPostDominatingHole; hole != ir.NoNode {
		// The value survives a point where control may leave this
		// straight-line stretch: store it right away.
		if next := a.lv.nextUse(n.ID, n.Pos); next > a.g.Node(hole).Pos {
			a.spill(n.ID, n.Pos)
		}
	}
	if a.cfg.Trace {
		a.log.Trace("Allocated result", "node", n, "reg", RegisterName(code))
	}
}

// heldInputs is the set of registers already holding one of inputs. Loading
// the remaining inputs must not evict them.
func (a *allocator) heldInputs(inputs []ir.NodeID) registerSet {
	var held registerSet
	for _, in := range inputs {
		if code := a.regOf[in]; code >= 0 {
			held = held.with(code)
		}
	}
	return held
}

// ensureInRegister returns the register holding v, reloading it from its
// stack home if needed.
func (a *allocator) ensureInRegister(v ir.NodeID, blocked registerSet) ir.Location {
	if code := a.regOf[v]; code >= 0 {
		return ir.RegisterLocation(code)
	}
	from := a.location(v)
	code := a.pickRegister(blocked)
	a.gapMove(from, ir.RegisterLocation(code), v)
	a.assign(code, v)
	return ir.RegisterLocation(code)
}

// pickRegister returns a free register outside blocked, evicting a value if
// every register is taken.
func (a *allocator) pickRegister(blocked registerSet) int {
	for _, code := range a.cfg.Registers {
		if a.regs[code] == ir.NoNode && !blocked.has(code) {
			return code
		}
	}
	code := a.victim(blocked)
	a.evict(code)
	return code
}

// victim picks the register whose value is used furthest away, preferring
// values that already have a stack home.
func (a *allocator) victim(blocked registerSet) int {
	best, bestNext, bestSpilled := -1, int32(0), false
	for _, code := range a.cfg.Registers {
		if blocked.has(code) {
			continue
		}
		v := a.regs[code]
		next := a.lv.nextUse(v, a.pos)
		if next < 0 {
			next = 1<<31 - 1
		}
		spilled := a.g.Node(v).Spill.IsAllocated()
		switch {
		case best < 0,
			next > bestNext,
			next == bestNext && spilled && !bestSpilled,
			next == bestNext && spilled == bestSpilled && code < best:
			best, bestNext, bestSpilled = code, next, spilled
		}
	}
	if best < 0 {
		panic(fmt.Sprintf("%s: no register left to evict at %d", a.g.Name, a.pos))
	}
	return best
}

func (a *allocator) evict(code int) {
	v := a.regs[code]
	// Inputs of the current node are never evicted, so a value ending at
	// pos here is a phi input still read by an outgoing edge.
	if n := a.g.Node(v); n.LiveEnd >= a.pos {
		a.spill(v, n.Pos)
	}
	a.free(code)
	a.stats.Evictions++
	if a.cfg.Trace {
		a.log.Trace("Evicted value", "node", v, "reg", RegisterName(code))
	}
}

// check validates that regs and regOf agree.
func (a *allocator) check(at *ir.Node) {
	if !a.cfg.Check {
		return
	}
	held := 0
	for code, v := range a.regs {
		if v == ir.NoNode {
			continue
		}
		held++
		if a.regOf[v] != code {
			panic(fmt.Sprintf("%s: after %v: %s holds n%d but n%d is in %d", a.g.Name, at, RegisterName(code), v, v, a.regOf[v]))
		}
	}
	for v, code := range a.regOf {
		if code < 0 {
			continue
		}
		held--
		if a.regs[code] != ir.NodeID(v) {
			panic(fmt.Sprintf("%s: after %v: n%d thinks it is in %s", a.g.Name, at, v, RegisterName(code)))
		}
	}
	if held != 0 {
		panic(fmt.Sprintf("%s: after %v: register state out of sync", a.g.Name, at))
	}
}

// registerSet is a set of register codes.
type registerSet uint32

func (s registerSet) with(code int) registerSet { return s | 1<<uint(code) }
func (s registerSet) has(code int) bool         { return s&(1<<uint(code)) != 0 }
