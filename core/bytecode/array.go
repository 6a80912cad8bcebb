package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bnb-chain/midtier/core/heap"
)

var (
	ErrTruncated       = errors.New("truncated instruction")
	ErrInvalidOpcode   = errors.New("invalid opcode")
	ErrInvalidRegister = errors.New("register out of range")
	ErrInvalidConstant = errors.New("constant index out of range")
	ErrInvalidJump     = errors.New("jump target is not an instruction boundary")
	ErrFallsOffEnd     = errors.New("control falls off the end of the code")
)

// Array is a function's bytecode together with its frame shape.
type Array struct {
	Name string
	Code []byte
	// Constants is the constant pool indexed by OperandIdx operands.
	Constants []heap.Object
	// ParameterCount includes the receiver.
	ParameterCount int
	RegisterCount  int
}

// Length is the size of the code in bytes.
func (a *Array) Length() int { return len(a.Code) }

// Constant returns constant pool entry i.
func (a *Array) Constant(i int) heap.Object {
	if i < 0 || i >= len(a.Constants) {
		panic(fmt.Sprintf("%s: constant index %d out of range", a.Name, i))
	}
	return a.Constants[i]
}

// ValidRegister reports whether r addresses a slot of this frame.
func (a *Array) ValidRegister(r Register) bool {
	switch {
	case r == CurrentContext || r == FunctionClosure:
		return true
	case r.IsLocal():
		return r.Index() < a.RegisterCount
	case r.IsParameter():
		return r.ParameterIndex() < a.ParameterCount
	}
	return false
}

// Validate decodes every instruction and checks operand ranges, jump
// targets and that the last instruction does not fall through. Iterating an
// array that does not validate is a contract violation.
func (a *Array) Validate() error {
	if a.ParameterCount < 1 {
		return errors.Errorf("%s: parameter count %d does not include the receiver", a.Name, a.ParameterCount)
	}
	if len(a.Code) == 0 {
		return errors.Wrapf(ErrFallsOffEnd, "%s: empty code", a.Name)
	}
	starts := make(map[int]bool)
	var (
		jumps [][2]int
		last  Opcode
	)
	for off := 0; off < len(a.Code); {
		op := Opcode(a.Code[off])
		last = op
		if !op.IsValid() {
			return errors.Wrapf(ErrInvalidOpcode, "%s@%d: %#x", a.Name, off, a.Code[off])
		}
		if off+op.Size() > len(a.Code) {
			return errors.Wrapf(ErrTruncated, "%s@%d: %v", a.Name, off, op)
		}
		starts[off] = true
		pos := off + 1
		for _, t := range op.Operands() {
			switch t {
			case OperandReg, OperandRegOut:
				if r := Register(int16(binary.LittleEndian.Uint16(a.Code[pos:]))); !a.ValidRegister(r) {
					return errors.Wrapf(ErrInvalidRegister, "%s@%d: %v %v", a.Name, off, op, r)
				}
			case OperandRegList:
				l := RegisterList{First: Register(int16(binary.LittleEndian.Uint16(a.Code[pos:]))), Count: int(a.Code[pos+2])}
				for i := 0; i < l.Count; i++ {
					if !a.ValidRegister(l.At(i)) {
						return errors.Wrapf(ErrInvalidRegister, "%s@%d: %v %v", a.Name, off, op, l)
					}
				}
			case OperandIdx:
				if idx := int(binary.LittleEndian.Uint16(a.Code[pos:])); idx >= len(a.Constants) {
					return errors.Wrapf(ErrInvalidConstant, "%s@%d: %v [%d]", a.Name, off, op, idx)
				}
			case OperandJump:
				delta := int(int32(binary.LittleEndian.Uint32(a.Code[pos:])))
				jumps = append(jumps, [2]int{off, off + delta})
			}
			pos += t.Size()
		}
		off += op.Size()
	}
	if last.FallsThrough() {
		return errors.Wrapf(ErrFallsOffEnd, "%s: last instruction %v", a.Name, last)
	}
	for _, j := range jumps {
		if !starts[j[1]] {
			return errors.Wrapf(ErrInvalidJump, "%s@%d: target %d", a.Name, j[0], j[1])
		}
		if Opcode(a.Code[j[0]]).IsLoopJump() != (j[1] <= j[0]) {
			return errors.Wrapf(ErrInvalidJump, "%s@%d: loop jumps must go backwards, others forwards", a.Name, j[0])
		}
	}
	return nil
}
