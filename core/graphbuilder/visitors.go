package graphbuilder

import (
	"fmt"

	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/heap"
	"github.com/bnb-chain/midtier/core/ir"
)

var binaryOperations = map[bytecode.Opcode]ir.Operation{
	bytecode.Add:               ir.OperationAdd,
	bytecode.Sub:               ir.OperationSubtract,
	bytecode.Mul:               ir.OperationMultiply,
	bytecode.Div:               ir.OperationDivide,
	bytecode.Mod:               ir.OperationModulus,
	bytecode.Exp:               ir.OperationExponentiate,
	bytecode.BitwiseOr:         ir.OperationBitwiseOr,
	bytecode.BitwiseXor:        ir.OperationBitwiseXor,
	bytecode.BitwiseAnd:        ir.OperationBitwiseAnd,
	bytecode.ShiftLeft:         ir.OperationShiftLeft,
	bytecode.ShiftRight:        ir.OperationShiftRight,
	bytecode.ShiftRightLogical: ir.OperationShiftRightLogical,

	bytecode.AddSmi:               ir.OperationAdd,
	bytecode.SubSmi:               ir.OperationSubtract,
	bytecode.MulSmi:               ir.OperationMultiply,
	bytecode.DivSmi:               ir.OperationDivide,
	bytecode.ModSmi:               ir.OperationModulus,
	bytecode.ExpSmi:               ir.OperationExponentiate,
	bytecode.BitwiseOrSmi:         ir.OperationBitwiseOr,
	bytecode.BitwiseXorSmi:        ir.OperationBitwiseXor,
	bytecode.BitwiseAndSmi:        ir.OperationBitwiseAnd,
	bytecode.ShiftLeftSmi:         ir.OperationShiftLeft,
	bytecode.ShiftRightSmi:        ir.OperationShiftRight,
	bytecode.ShiftRightLogicalSmi: ir.OperationShiftRightLogical,
}

var compareOperations = map[bytecode.Opcode]ir.Operation{
	bytecode.TestEqual:              ir.OperationEqual,
	bytecode.TestEqualStrict:        ir.OperationStrictEqual,
	bytecode.TestLessThan:           ir.OperationLessThan,
	bytecode.TestLessThanOrEqual:    ir.OperationLessThanOrEqual,
	bytecode.TestGreaterThan:        ir.OperationGreaterThan,
	bytecode.TestGreaterThanOrEqual: ir.OperationGreaterThanOrEqual,
}

var unaryOperations = map[bytecode.Opcode]ir.Operation{
	bytecode.Inc:        ir.OperationIncrement,
	bytecode.Dec:        ir.OperationDecrement,
	bytecode.Negate:     ir.OperationNegate,
	bytecode.BitwiseNot: ir.OperationBitwiseNot,
}

func (b *builder) visit() {
	op := b.it.CurrentBytecode()
	if op.IsUnsupported() {
		b.visitUnsupported(op)
		return
	}
	if operation, ok := binaryOperations[op]; ok {
		if op.Operands()[0] == bytecode.OperandImm {
			b.visitBinarySmiOperation(operation)
		} else {
			b.visitBinaryOperation(ir.OpGenericBinary, operation)
		}
		return
	}
	if operation, ok := compareOperations[op]; ok {
		b.visitBinaryOperation(ir.OpGenericCompare, operation)
		return
	}
	if operation, ok := unaryOperations[op]; ok {
		b.visitUnaryOperation(operation)
		return
	}
	if op.IsCall() {
		b.visitCall(op)
		return
	}

	switch op {
	case bytecode.LdaZero:
		b.setAccumulator(b.smiConstant(0))
	case bytecode.LdaSmi:
		b.setAccumulator(b.smiConstant(b.it.ImmediateOperand(0)))
	case bytecode.LdaUndefined:
		b.setAccumulator(b.rootConstant(heap.RootUndefined))
	case bytecode.LdaNull:
		b.setAccumulator(b.rootConstant(heap.RootNull))
	case bytecode.LdaTheHole:
		b.setAccumulator(b.rootConstant(heap.RootTheHole))
	case bytecode.LdaTrue:
		b.setAccumulator(b.rootConstant(heap.RootTrue))
	case bytecode.LdaFalse:
		b.setAccumulator(b.rootConstant(heap.RootFalse))
	case bytecode.LdaConstant:
		b.setAccumulator(b.constant(b.it.ConstantOperand(0)))

	case bytecode.Ldar:
		b.moveNodeBetweenRegisters(b.it.RegisterOperand(0), bytecode.Accumulator)
	case bytecode.Star:
		b.moveNodeBetweenRegisters(bytecode.Accumulator, b.it.RegisterOperand(0))
	case bytecode.Mov:
		b.moveNodeBetweenRegisters(b.it.RegisterOperand(0), b.it.RegisterOperand(1))

	case bytecode.LdaContextSlot, bytecode.LdaImmutableContextSlot:
		b.visitLdaContextSlot(b.it.RegisterOperand(0), b.it.IndexOperand(1), int(b.it.UnsignedImmediateOperand(2)))
	case bytecode.LdaCurrentContextSlot, bytecode.LdaImmutableCurrentContextSlot:
		b.visitLdaContextSlot(bytecode.CurrentContext, b.it.IndexOperand(0), 0)

	case bytecode.LdaGlobal:
		b.visitLdaGlobal()
	case bytecode.GetNamedProperty:
		b.visitGetNamedProperty()
	case bytecode.SetNamedProperty:
		b.visitSetNamedProperty()

	case bytecode.Jump:
		b.visitJump()
	case bytecode.JumpLoop:
		b.visitJumpLoop()
	case bytecode.JumpIfTrue:
		b.buildBranch(ir.OpBranchIfTrue, b.it.JumpTargetOffset(), b.it.NextOffset())
	case bytecode.JumpIfFalse:
		b.buildBranch(ir.OpBranchIfTrue, b.it.NextOffset(), b.it.JumpTargetOffset())
	case bytecode.JumpIfToBooleanTrue:
		b.buildBranch(ir.OpBranchIfToBooleanTrue, b.it.JumpTargetOffset(), b.it.NextOffset())
	case bytecode.JumpIfToBooleanFalse:
		b.buildBranch(ir.OpBranchIfToBooleanTrue, b.it.NextOffset(), b.it.JumpTargetOffset())
	case bytecode.Return:
		b.visitReturn()

	default:
		panic(fmt.Sprintf("%s: no visitor for %v", b.unit.Name(), op))
	}
}

// moveNodeBetweenRegisters copies a frame entry as is, untagged or not.
func (b *builder) moveNodeBetweenRegisters(src, dst bytecode.Register) {
	b.frame.Set(dst, b.value(src))
}

func (b *builder) visitLdaContextSlot(context bytecode.Register, index, depth int) {
	ctx := b.getTagged(context)
	for i := 0; i < depth; i++ {
		ctx = b.loadField(ctx, heap.ContextSlotOffset(heap.ContextPreviousIndex))
	}
	b.setAccumulator(b.loadField(ctx, heap.ContextSlotOffset(index)))
}

// visitUnsupported fails the compilation but keeps the graph well formed:
// a conditional jump keeps only its fallthrough, a throw ends the block with
// Abort, and any written register gets a placeholder value.
func (b *builder) visitUnsupported(op bytecode.Opcode) {
	b.unsupported()
	switch {
	case op.IsJump():
		b.mergeDeadIntoFrameState(b.it.JumpTargetOffset())
		if !op.IsConditionalJump() {
			b.finishBlock(b.newControl(ir.OpAbort, nil))
		}
		return
	case !op.FallsThrough():
		b.finishBlock(b.newControl(ir.OpAbort, nil))
		return
	}
	var placeholder ir.NodeID = ir.NoNode
	undefined := func() ir.NodeID {
		if placeholder == ir.NoNode {
			placeholder = b.rootConstant(heap.RootUndefined)
		}
		return placeholder
	}
	for i, t := range op.Operands() {
		if t == bytecode.OperandRegOut {
			b.frame.Set(b.it.RegisterOperand(i), undefined())
		}
	}
	if op.AccumulatorUse().Writes() {
		b.setAccumulator(undefined())
	}
}

func (b *builder) visitJump() {
	target := b.it.JumpTargetOffset()
	b.tagLiveValues(b.unit.Analysis.InLiveness(target))
	blk := b.finishBlock(b.newControl(ir.OpJump, nil, target))
	b.mergeIntoFrameState(ir.EdgeRef{Block: blk.ID}, target)
}

func (b *builder) visitJumpLoop() {
	header := b.it.JumpTargetOffset()
	b.tagLiveValues(b.unit.Analysis.InLiveness(header))
	blk := b.finishBlock(b.newControl(ir.OpJumpLoop, nil, header))
	ref := ir.EdgeRef{Block: blk.ID}
	b.graph.Edge(ref).PredIndex = b.mergeStates[header].MergeLoop(b.graph, b.frame, blk.ID)
	b.addPending(ref, header)
}

// buildBranch ends the block with a two-way branch on the accumulator. The
// target equal to the next offset continues as fallthrough.
func (b *builder) buildBranch(op ir.Op, trueTarget, falseTarget int) {
	cond := b.getAccumulatorTagged()
	b.tagLiveValues(b.unit.Analysis.OutLiveness(b.it.CurrentOffset()))
	blk := b.finishBlock(b.newControl(op, []ir.NodeID{cond}, trueTarget, falseTarget))
	next := b.it.NextOffset()
	fallIdx := -1
	for i, t := range []int{trueTarget, falseTarget} {
		if t == next && fallIdx < 0 {
			fallIdx = i
			continue
		}
		b.mergeIntoFrameState(ir.EdgeRef{Block: blk.ID, Index: i}, t)
	}
	if fallIdx >= 0 {
		b.startFallthroughBlock(ir.EdgeRef{Block: blk.ID, Index: fallIdx}, next)
	}
}

// visitReturn returns from the top-level function, or jumps to the exit
// merge point of an inlined one.
func (b *builder) visitReturn() {
	value := b.getAccumulatorTagged()
	if !b.isInline() {
		b.finishBlock(b.newControl(ir.OpReturn, []ir.NodeID{value}))
		return
	}
	exit := b.inlineExitOffset()
	blk := b.finishBlock(b.newControl(ir.OpJump, nil, exit))
	b.mergeIntoFrameState(ir.EdgeRef{Block: blk.ID}, exit)
}
