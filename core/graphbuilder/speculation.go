package graphbuilder

import (
	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/feedback"
	"github.com/bnb-chain/midtier/core/heap"
	"github.com/bnb-chain/midtier/core/ir"
)

func (b *builder) feedbackFor(slot int) (feedback.Source, feedback.Processed) {
	src := b.unit.Feedback(slot)
	return src, b.c.ctx.Broker.Feedback(src)
}

// nameOperand returns the property name held in the constant pool.
func (b *builder) nameOperand(i int) string {
	o := b.it.ConstantOperand(i)
	if s, ok := o.(heap.String); ok {
		return string(s)
	}
	return o.String()
}

func (b *builder) buildGeneric(op ir.Op, operation ir.Operation, src feedback.Source, inputs ...ir.NodeID) {
	n := b.add(op, inputs...)
	n.AuxInt = int64(operation)
	n.Feedback = src
	b.setAccumulator(n.ID)
}

// visitBinaryOperation handles "acc = reg <op> acc". Small-integer feedback
// on an addition selects the overflow-checked int32 add.
func (b *builder) visitBinaryOperation(op ir.Op, operation ir.Operation) {
	reg := b.it.RegisterOperand(0)
	src, fb := b.feedbackFor(b.it.SlotOperand(1))
	switch fb.Kind() {
	case feedback.KindInsufficient:
		b.emitUnconditionalDeopt()
		return
	case feedback.KindBinaryOperation:
		if fb.(*feedback.BinaryOperation).IsSignedSmall() && operation == ir.OperationAdd {
			var left, right ir.NodeID
			if b.frame.Get(reg) == b.frame.Accumulator() {
				left = b.getInt32(reg)
				right = left
			} else {
				left = b.getInt32(reg)
				right = b.getAccumulatorInt32()
			}
			b.setAccumulator(b.add(ir.OpInt32AddWithOverflow, left, right).ID)
			return
		}
	}
	left := b.getTagged(reg)
	right := b.getAccumulatorTagged()
	b.buildGeneric(op, operation, src, left, right)
}

// visitBinarySmiOperation handles "acc = acc <op> imm".
func (b *builder) visitBinarySmiOperation(operation ir.Operation) {
	imm := b.it.ImmediateOperand(0)
	src, fb := b.feedbackFor(b.it.SlotOperand(1))
	switch fb.Kind() {
	case feedback.KindInsufficient:
		b.emitUnconditionalDeopt()
		return
	case feedback.KindBinaryOperation:
		if fb.(*feedback.BinaryOperation).IsSignedSmall() && operation == ir.OperationAdd {
			left := b.getAccumulatorInt32()
			if imm == 0 {
				// The Smi check on the accumulator is all that is left.
				return
			}
			right := b.int32Constant(imm)
			b.setAccumulator(b.add(ir.OpInt32AddWithOverflow, left, right).ID)
			return
		}
	}
	left := b.getAccumulatorTagged()
	right := b.smiConstant(imm)
	b.buildGeneric(ir.OpGenericBinary, operation, src, left, right)
}

func (b *builder) visitUnaryOperation(operation ir.Operation) {
	src := b.unit.Feedback(b.it.SlotOperand(0))
	b.buildGeneric(ir.OpGenericUnary, operation, src, b.getAccumulatorTagged())
}

// fieldAccess returns the holder and byte offset of a field handler's
// property, loading the backing store for out-of-object fields.
func (b *builder) fieldAccess(object ir.NodeID, h feedback.Handler) (ir.NodeID, int) {
	if h.InObject {
		return object, heap.InObjectFieldOffset(h.FieldIndex)
	}
	store := b.loadField(object, heap.JSObjectPropertiesOffset)
	return store, heap.BackingStoreFieldOffset(h.FieldIndex)
}

// monomorphicField returns the map and handler of a named access that can
// be inlined as a map check plus a direct field access.
func monomorphicField(fb feedback.Processed) (*heap.Map, feedback.Handler, bool) {
	if fb.Kind() != feedback.KindNamedAccess {
		return nil, feedback.Handler{}, false
	}
	na := fb.(*feedback.NamedAccess)
	if !na.IsMonomorphic() || !na.Handlers[0].IsDirectField() {
		return nil, feedback.Handler{}, false
	}
	return na.Maps[0], na.Handlers[0], true
}

// checkMaps guards object's map. Stable maps are also recorded so that a
// later transition invalidates the code rather than every check failing.
func (b *builder) checkMaps(object ir.NodeID, m *heap.Map) {
	if m.Stable {
		b.c.ctx.Dependencies.DependOnStableMap(m)
	}
	n := b.add(ir.OpCheckMaps, object)
	n.Aux = m
}

func (b *builder) visitGetNamedProperty() {
	object := b.getTagged(b.it.RegisterOperand(0))
	name := b.nameOperand(1)
	src, fb := b.feedbackFor(b.it.SlotOperand(2))
	if fb.Kind() == feedback.KindInsufficient {
		b.emitUnconditionalDeopt()
		return
	}
	if m, h, ok := monomorphicField(fb); ok {
		b.checkMaps(object, m)
		holder, offset := b.fieldAccess(object, h)
		b.setAccumulator(b.loadField(holder, offset))
		return
	}
	n := b.add(ir.OpLoadNamedGeneric, b.getContext(), object)
	n.Aux = name
	n.Feedback = src
	b.setAccumulator(n.ID)
}

func (b *builder) visitSetNamedProperty() {
	object := b.getTagged(b.it.RegisterOperand(0))
	name := b.nameOperand(1)
	src, fb := b.feedbackFor(b.it.SlotOperand(2))
	if fb.Kind() == feedback.KindInsufficient {
		b.emitUnconditionalDeopt()
		return
	}
	if m, h, ok := monomorphicField(fb); ok {
		b.checkMaps(object, m)
		holder, offset := b.fieldAccess(object, h)
		n := b.add(ir.OpStoreField, holder, b.getAccumulatorTagged())
		n.AuxInt = int64(offset)
		return
	}
	n := b.add(ir.OpSetNamedGeneric, b.getContext(), object, b.getAccumulatorTagged())
	n.Aux = name
	n.Feedback = src
}

func (b *builder) visitLdaGlobal() {
	name := b.nameOperand(0)
	src, fb := b.feedbackFor(b.it.SlotOperand(1))
	if fb.Kind() == feedback.KindInsufficient {
		b.emitUnconditionalDeopt()
		return
	}
	if fb.Kind() == feedback.KindGlobalAccess {
		if ga := fb.(*feedback.GlobalAccess); ga.IsPropertyCell() && b.buildPropertyCellAccess(ga.Cell) {
			return
		}
	}
	n := b.add(ir.OpLoadGlobal, b.getContext())
	n.Aux = name
	n.Feedback = src
	b.setAccumulator(n.ID)
}

// buildPropertyCellAccess specializes a global load on what the cell has
// held so far. It reports false for accessor cells, which take the generic
// path.
func (b *builder) buildPropertyCellAccess(cell *heap.PropertyCell) bool {
	value, details := cell.Snapshot()
	if heap.IsTheHole(value) {
		// The global was deleted or never initialized.
		b.emitUnconditionalDeopt()
		return true
	}
	if details.Kind != heap.PropertyKindData {
		return false
	}
	if !details.Configurable && details.ReadOnly {
		b.setAccumulator(b.constant(value))
		return true
	}
	deps := b.c.ctx.Dependencies
	if details.CellType != heap.CellTypeMutable || details.Configurable {
		deps.DependOnGlobalProperty(cell, details)
	}
	if details.CellType == heap.CellTypeConstant || details.CellType == heap.CellTypeUndefined {
		b.setAccumulator(b.constant(value))
		return true
	}
	cellNode := b.add(ir.OpConstant)
	cellNode.Aux = cell
	b.setAccumulator(b.loadField(cellNode.ID, heap.PropertyCellValueOffset))
	return true
}

// registerOperands lists the register operands of the current call between
// the function and the feedback slot, expanding register lists.
func (b *builder) registerOperands(op bytecode.Opcode) []bytecode.Register {
	var regs []bytecode.Register
	operands := op.Operands()
	for i := 1; i < len(operands)-1; i++ {
		switch operands[i] {
		case bytecode.OperandReg:
			regs = append(regs, b.it.RegisterOperand(i))
		case bytecode.OperandRegList:
			list := b.it.RegisterListOperand(i)
			for j := 0; j < list.Count; j++ {
				regs = append(regs, list.At(j))
			}
		}
	}
	return regs
}
