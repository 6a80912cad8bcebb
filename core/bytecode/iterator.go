package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/bnb-chain/midtier/core/heap"
)

// Iterator walks the instructions of a validated Array in order.
type Iterator struct {
	array  *Array
	offset int
}

// NewIterator positions a new iterator at offset 0.
func NewIterator(a *Array) *Iterator {
	return &Iterator{array: a}
}

func (it *Iterator) Done() bool         { return it.offset >= len(it.array.Code) }
func (it *Iterator) CurrentOffset() int { return it.offset }

func (it *Iterator) CurrentBytecode() Opcode { return Opcode(it.array.Code[it.offset]) }

// NextOffset is the offset of the following instruction.
func (it *Iterator) NextOffset() int { return it.offset + it.CurrentBytecode().Size() }

func (it *Iterator) Advance() { it.offset = it.NextOffset() }

// SetOffset repositions the iterator; offset must be an instruction start.
func (it *Iterator) SetOffset(offset int) { it.offset = offset }

func (it *Iterator) operand(i int, want ...OperandType) (OperandType, int) {
	ops := it.CurrentBytecode().Operands()
	if i >= len(ops) {
		panic(fmt.Sprintf("%v has no operand %d", it.CurrentBytecode(), i))
	}
	pos := it.offset + 1
	for j := 0; j < i; j++ {
		pos += ops[j].Size()
	}
	t := ops[i]
	for _, w := range want {
		if t == w {
			return t, pos
		}
	}
	panic(fmt.Sprintf("%v operand %d has type %d", it.CurrentBytecode(), i, t))
}

func (it *Iterator) u16(pos int) uint16 { return binary.LittleEndian.Uint16(it.array.Code[pos:]) }
func (it *Iterator) u32(pos int) uint32 { return binary.LittleEndian.Uint32(it.array.Code[pos:]) }

// RegisterOperand decodes operand i as a register.
func (it *Iterator) RegisterOperand(i int) Register {
	_, pos := it.operand(i, OperandReg, OperandRegOut)
	return Register(int16(it.u16(pos)))
}

// RegisterListOperand decodes operand i as a register list.
func (it *Iterator) RegisterListOperand(i int) RegisterList {
	_, pos := it.operand(i, OperandRegList)
	return RegisterList{First: Register(int16(it.u16(pos))), Count: int(it.array.Code[pos+2])}
}

// ImmediateOperand decodes operand i as a signed immediate.
func (it *Iterator) ImmediateOperand(i int) int32 {
	_, pos := it.operand(i, OperandImm)
	return int32(it.u32(pos))
}

// UnsignedImmediateOperand decodes operand i as an unsigned immediate.
func (it *Iterator) UnsignedImmediateOperand(i int) uint32 {
	_, pos := it.operand(i, OperandUImm)
	return uint32(it.array.Code[pos])
}

// IndexOperand decodes operand i as a constant pool index.
func (it *Iterator) IndexOperand(i int) int {
	_, pos := it.operand(i, OperandIdx)
	return int(it.u16(pos))
}

// ConstantOperand returns the constant pool entry named by operand i.
func (it *Iterator) ConstantOperand(i int) heap.Object {
	return it.array.Constant(it.IndexOperand(i))
}

// SlotOperand decodes operand i as a feedback slot.
func (it *Iterator) SlotOperand(i int) int {
	_, pos := it.operand(i, OperandSlot)
	return int(it.u16(pos))
}

// JumpTargetOffset is the absolute target of the current jump.
func (it *Iterator) JumpTargetOffset() int {
	op := it.CurrentBytecode()
	for i, t := range op.Operands() {
		if t == OperandJump {
			_, pos := it.operand(i, OperandJump)
			return it.offset + int(int32(it.u32(pos)))
		}
	}
	panic(fmt.Sprintf("%v is not a jump", op))
}

// String disassembles the current instruction.
func (it *Iterator) String() string {
	op := it.CurrentBytecode()
	s := op.String()
	for i, t := range op.Operands() {
		if i == 0 {
			s += " "
		} else {
			s += ", "
		}
		switch t {
		case OperandReg, OperandRegOut:
			s += it.RegisterOperand(i).String()
		case OperandRegList:
			s += it.RegisterListOperand(i).String()
		case OperandImm:
			s += fmt.Sprint(it.ImmediateOperand(i))
		case OperandUImm:
			s += fmt.Sprint(it.UnsignedImmediateOperand(i))
		case OperandIdx:
			s += fmt.Sprintf("[%d]", it.IndexOperand(i))
		case OperandSlot:
			s += fmt.Sprintf("[%d]", it.SlotOperand(i))
		case OperandJump:
			s += fmt.Sprintf("@%d", it.JumpTargetOffset())
		}
	}
	return s
}

// Disassemble renders the whole array, one instruction per line.
func Disassemble(a *Array) string {
	var s string
	for it := NewIterator(a); !it.Done(); it.Advance() {
		s += fmt.Sprintf("%4d : %s\n", it.CurrentOffset(), it.String())
	}
	return s
}
