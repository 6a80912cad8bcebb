package regalloc

import "github.com/bnb-chain/midtier/core/ir"

// resolveEdge fills e.Moves with the parallel moves that bring the current
// register state into the state target expects. The first edge to reach a
// merge decides that state.
func (a *allocator) resolveEdge(e *ir.Edge, target *ir.BasicBlock) {
	st, ok := a.entry[target.ID]
	if !ok {
		st = a.fixMergeState(target, e.PredIndex)
		a.entry[target.ID] = st
	}

	// Live values that only stay in a register on this side of the edge
	// must be readable from the stack afterwards.
	var kept registerSet
	for _, v := range st {
		if v != ir.NoNode && a.phiBlock[v] != target.ID {
			if c := a.regOf[v]; c >= 0 {
				kept = kept.with(c)
			}
		}
	}
	for code, v := range a.regs {
		if v != ir.NoNode && !kept.has(code) && a.lv.isLiveIn(target.ID, v) {
			a.spill(v, a.g.Node(v).Pos)
		}
	}

	var moves []ir.Move
	for code, w := range st {
		if w == ir.NoNode {
			continue
		}
		src := w
		if a.phiBlock[w] == target.ID {
			src = a.g.Node(w).Inputs[e.PredIndex]
		}
		moves = append(moves, ir.Move{From: a.location(src), To: ir.RegisterLocation(code), Value: w})
	}
	for _, pid := range target.Phis() {
		phi := a.g.Node(pid)
		if !phi.Result.IsAllocated() || phi.Result.IsRegister() {
			continue
		}
		in := phi.Inputs[e.PredIndex]
		moves = append(moves, ir.Move{From: a.location(in), To: phi.Result, Value: pid})
	}
	e.Moves = sequentialize(moves, ir.RegisterLocation(a.cfg.Scratch))
	a.stats.EdgeMoves += len(e.Moves)
	if a.cfg.Trace && len(e.Moves) > 0 {
		a.log.Trace("Resolved edge", "from", a.block.ID, "to", target.ID, "moves", len(e.Moves))
	}
}

// fixMergeState picks the register state of a merge block from the state of
// its first incoming edge. Live values keep their registers. A phi takes the
// register of its input on that edge when free, then any free register, and
// otherwise a stack slot written by every incoming edge.
func (a *allocator) fixMergeState(target *ir.BasicBlock, predIndex int) registerState {
	st := emptyState()
	for code, v := range a.regs {
		if v != ir.NoNode && a.lv.isLiveIn(target.ID, v) {
			st[code] = v
		}
	}
	for _, pid := range target.Phis() {
		phi := a.g.Node(pid)
		if phi.LiveEnd <= phi.Pos {
			continue
		}
		code := -1
		if c := a.regOf[phi.Inputs[predIndex]]; c >= 0 && st[c] == ir.NoNode {
			code = c
		} else {
			for _, c := range a.cfg.Registers {
				if st[c] == ir.NoNode {
					code = c
					break
				}
			}
		}
		if code < 0 {
			phi.Result = a.spill(pid, a.pos)
			continue
		}
		st[code] = pid
		phi.Result = ir.RegisterLocation(code)
	}
	return st
}
