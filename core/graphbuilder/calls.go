package graphbuilder

import (
	"fmt"

	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/feedback"
	"github.com/bnb-chain/midtier/core/heap"
	"github.com/bnb-chain/midtier/core/ir"
)

// hasUndefinedReceiver reports whether a call passes no receiver operand.
func hasUndefinedReceiver(op bytecode.Opcode) bool {
	switch op {
	case bytecode.CallUndefinedReceiver, bytecode.CallUndefinedReceiver0,
		bytecode.CallUndefinedReceiver1, bytecode.CallUndefinedReceiver2:
		return true
	}
	return false
}

// visitCall lowers a call to a generic Call node, or inlines the callee when
// feedback names a single inlineable function.
func (b *builder) visitCall(op bytecode.Opcode) {
	operands := op.Operands()
	src, fb := b.feedbackFor(b.it.SlotOperand(len(operands) - 1))
	if fb.Kind() == feedback.KindInsufficient {
		b.emitUnconditionalDeopt()
		return
	}
	function := b.getTagged(b.it.RegisterOperand(0))
	regs := b.registerOperands(op)

	// args starts with the receiver; undefined receivers get a constant.
	args := make([]ir.NodeID, 0, len(regs)+1)
	if hasUndefinedReceiver(op) {
		args = append(args, b.rootConstant(heap.RootUndefined))
	}
	for _, r := range regs {
		args = append(args, b.getTagged(r))
	}

	if target, an, ok := b.shouldInline(fb); ok {
		b.inlineCall(target, an, function, args)
		return
	}
	inputs := append([]ir.NodeID{function, b.getContext()}, args...)
	n := b.add(ir.OpCall, inputs...)
	n.AuxInt = int64(len(args))
	n.Feedback = src
	b.setAccumulator(n.ID)
}

// shouldInline decides whether the call site's target is inlined, and
// returns its analysis when it is.
func (b *builder) shouldInline(fb feedback.Processed) (*feedback.JSFunction, *bytecode.Analysis, bool) {
	opts := b.c.ctx.Options
	if !opts.Inlining || fb.Kind() != feedback.KindCall {
		return nil, nil, false
	}
	call := fb.(*feedback.Call)
	if call.Mode != feedback.AllowSpeculation {
		return nil, nil, false
	}
	target, ok := call.Function()
	if !ok || !target.IsInlineable() {
		return nil, nil, false
	}
	name := target.Name()
	switch {
	case b.unit.Depth+1 > opts.MaxInlineDepth:
		b.log.Debug("Not inlining", "callee", name, "reason", "depth", "limit", opts.MaxInlineDepth)
		return nil, nil, false
	case target.Shared.Bytecode.Length() > opts.MaxInlinedBytecodeSize:
		b.log.Debug("Not inlining", "callee", name, "reason", "size", "length", target.Shared.Bytecode.Length())
		return nil, nil, false
	case b.unit.IsOnStack(target):
		b.log.Debug("Not inlining", "callee", name, "reason", "recursive")
		return nil, nil, false
	}
	an, err := b.c.analyze(target.Shared.Bytecode)
	if err != nil {
		b.log.Debug("Not inlining", "callee", name, "reason", "analysis", "err", err)
		return nil, nil, false
	}
	return target, an, true
}

// inlineResult is what an inlined body hands back to its caller.
type inlineResult struct {
	exit  *ir.BasicBlock
	value ir.NodeID
	// dead is set when no return of the inlinee was reachable.
	dead bool
}

// inlineCall builds target's body into the graph between the current block
// and a continuation block at the current offset.
func (b *builder) inlineCall(target *feedback.JSFunction, an *bytecode.Analysis, function ir.NodeID, args []ir.NodeID) {
	b.c.inlined++
	b.log.Debug("Inlining call", "callee", target.Name(), "offset", b.it.CurrentOffset())

	ctrl := b.newControl(ir.OpJumpToInlined, nil, 0)
	ctrl.Aux = target.Name()
	call := b.finishBlock(ctrl)

	inner := newBuilder(b.c, newUnit(target, an, b.unit))
	b.c.push(inner)
	res := inner.buildInlined(call, function, args)
	b.c.pop()

	if res.dead {
		b.markBytecodeDead()
		return
	}
	b.startBlock(b.it.CurrentOffset(), nil, res.exit.ID)
	b.graph.Edge(ir.EdgeRef{Block: res.exit.ID}).Target = b.current.ID
	b.setAccumulator(res.value)
}

// buildInlined runs the inlinee from a prologue entered by caller's
// JumpToInlined. Arguments beyond the parameter count are dropped and
// missing ones read as undefined.
func (b *builder) buildInlined(caller *ir.BasicBlock, function ir.NodeID, args []ir.NodeID) inlineResult {
	b.startBlock(-1, nil, caller.ID)
	b.graph.Edge(ir.EdgeRef{Block: caller.ID}).Target = b.current.ID

	undefined := b.rootConstant(heap.RootUndefined)
	for i := 0; i < b.unit.ParameterCount(); i++ {
		v := undefined
		if i < len(args) {
			v = args[i]
		}
		b.frame.Set(bytecode.Parameter(i), v)
	}
	// Receiverless calls pass undefined whatever the callee's language mode.
	b.frame.Set(bytecode.FunctionClosure, function)
	b.frame.Set(bytecode.CurrentContext, b.loadField(function, heap.JSFunctionContextOffset))
	b.initializeRegisters(undefined)
	b.endPrologue()

	b.buildBody()
	if b.current != nil {
		panic(fmt.Sprintf("%s: inlined body falls off the end", b.unit.Name()))
	}

	exit := b.inlineExitOffset()
	ms := b.mergeStates[exit]
	if ms == nil || ms.PredecessorsSoFar() == 0 {
		return inlineResult{dead: true}
	}
	b.processMergePoint(exit)
	value := b.frame.Accumulator()
	ctrl := b.newControl(ir.OpJumpFromInlined, nil, -1)
	return inlineResult{exit: b.finishBlock(ctrl), value: value}
}
