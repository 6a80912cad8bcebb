package bytecode

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/bnb-chain/midtier/core/heap"
)

// Label marks a jump target that may be bound after it is referenced.
type Label struct {
	name   string
	offset int
	bound  bool
}

type fixup struct {
	label *Label
	at    int // operand position
	inst  int // instruction start
}

// Assembler emits an Array instruction by instruction.
type Assembler struct {
	name      string
	params    int
	registers int
	code      []byte
	constants []heap.Object
	fixups    []fixup
	err       error
}

// NewAssembler starts a function with the given parameter count (including
// the receiver) and local register count.
func NewAssembler(name string, params, registers int) *Assembler {
	return &Assembler{name: name, params: params, registers: registers}
}

// NewLabel returns an unbound label.
func (a *Assembler) NewLabel(name string) *Label { return &Label{name: name} }

// Bind attaches l to the next emitted instruction.
func (a *Assembler) Bind(l *Label) {
	if l.bound {
		a.fail(errors.Errorf("label %q bound twice", l.name))
		return
	}
	l.offset, l.bound = len(a.code), true
}

// Offset is the offset of the next emitted instruction.
func (a *Assembler) Offset() int { return len(a.code) }

// AddConstant appends to the constant pool and returns its index.
func (a *Assembler) AddConstant(o heap.Object) int {
	a.constants = append(a.constants, o)
	return len(a.constants) - 1
}

func (a *Assembler) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

// Emit appends a non-jump instruction. Register lists take two operands, the
// first register and the count.
func (a *Assembler) Emit(op Opcode, operands ...int32) {
	a.emit(op, nil, operands)
}

// EmitJump appends a jump to l. Operands before the jump operand, if any,
// precede it in operands.
func (a *Assembler) EmitJump(op Opcode, l *Label, operands ...int32) {
	if !op.IsJump() {
		a.fail(errors.Errorf("%v is not a jump", op))
		return
	}
	a.emit(op, l, operands)
}

func (a *Assembler) emit(op Opcode, l *Label, operands []int32) {
	if !op.IsValid() {
		a.fail(errors.Wrapf(ErrInvalidOpcode, "%#x", byte(op)))
		return
	}
	start := len(a.code)
	a.code = append(a.code, byte(op))
	next := 0
	take := func() int32 {
		if next >= len(operands) {
			a.fail(errors.Errorf("%s@%d: %v: missing operand", a.name, start, op))
			return 0
		}
		v := operands[next]
		next++
		return v
	}
	for _, t := range op.Operands() {
		switch t {
		case OperandReg, OperandRegOut, OperandIdx, OperandSlot:
			a.code = binary.LittleEndian.AppendUint16(a.code, uint16(take()))
		case OperandRegList:
			a.code = binary.LittleEndian.AppendUint16(a.code, uint16(take()))
			a.code = append(a.code, byte(take()))
		case OperandImm:
			a.code = binary.LittleEndian.AppendUint32(a.code, uint32(take()))
		case OperandUImm:
			a.code = append(a.code, byte(take()))
		case OperandJump:
			a.fixups = append(a.fixups, fixup{label: l, at: len(a.code), inst: start})
			a.code = binary.LittleEndian.AppendUint32(a.code, 0)
		}
	}
	if next != len(operands) {
		a.fail(errors.Errorf("%s@%d: %v: %d extra operands", a.name, start, op, len(operands)-next))
	}
}

// Build resolves labels and validates the result.
func (a *Assembler) Build() (*Array, error) {
	if a.err != nil {
		return nil, a.err
	}
	for _, f := range a.fixups {
		if !f.label.bound {
			return nil, errors.Errorf("%s: label %q is never bound", a.name, f.label.name)
		}
		binary.LittleEndian.PutUint32(a.code[f.at:], uint32(int32(f.label.offset-f.inst)))
	}
	arr := &Array{
		Name:           a.name,
		Code:           a.code,
		Constants:      a.constants,
		ParameterCount: a.params,
		RegisterCount:  a.registers,
	}
	if err := arr.Validate(); err != nil {
		return nil, err
	}
	return arr, nil
}
