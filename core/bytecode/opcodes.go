// Package bytecode defines the interpreter instruction set consumed by the
// optimizing tier, together with decoding and analysis helpers.
package bytecode

import "fmt"

// Opcode is a single bytecode instruction kind.
type Opcode byte

// OperandType describes how an operand is encoded and what it means.
type OperandType uint8

const (
	// OperandReg is a register that is read.
	OperandReg OperandType = iota
	// OperandRegOut is a register that is written.
	OperandRegOut
	// OperandRegList is a contiguous register range that is read.
	OperandRegList
	OperandImm
	OperandUImm
	OperandIdx
	OperandSlot
	OperandJump
)

// Size is the encoded width of an operand in bytes.
func (t OperandType) Size() int {
	switch t {
	case OperandReg, OperandRegOut, OperandIdx, OperandSlot:
		return 2
	case OperandRegList:
		return 3
	case OperandImm, OperandJump:
		return 4
	case OperandUImm:
		return 1
	}
	panic(fmt.Sprintf("unknown operand type %d", t))
}

func (t OperandType) IsRegister() bool {
	return t == OperandReg || t == OperandRegOut || t == OperandRegList
}

// AccumulatorUse describes the implicit accumulator operand.
type AccumulatorUse uint8

const (
	AccNone  AccumulatorUse = 0
	AccRead  AccumulatorUse = 1
	AccWrite AccumulatorUse = 2
	AccReadWrite            = AccRead | AccWrite
)

func (a AccumulatorUse) Reads() bool  { return a&AccRead != 0 }
func (a AccumulatorUse) Writes() bool { return a&AccWrite != 0 }

type flags uint16

const (
	flagJump flags = 1 << iota
	flagConditional
	flagLoop
	flagReturn
	flagThrow
	flagCall
	flagUnsupported
)

type opInfo struct {
	name     string
	acc      AccumulatorUse
	operands []OperandType
	flags    flags
}

const (
	Illegal Opcode = iota

	LdaZero
	LdaSmi
	LdaUndefined
	LdaNull
	LdaTheHole
	LdaTrue
	LdaFalse
	LdaConstant
	Ldar
	Star
	Mov

	LdaContextSlot
	LdaImmutableContextSlot
	LdaCurrentContextSlot
	LdaImmutableCurrentContextSlot
	StaContextSlot
	StaCurrentContextSlot
	PushContext

	LdaGlobal
	StaGlobal
	GetNamedProperty
	SetNamedProperty

	Add
	Sub
	Mul
	Div
	Mod
	Exp
	BitwiseOr
	BitwiseXor
	BitwiseAnd
	ShiftLeft
	ShiftRight
	ShiftRightLogical

	AddSmi
	SubSmi
	MulSmi
	DivSmi
	ModSmi
	ExpSmi
	BitwiseOrSmi
	BitwiseXorSmi
	BitwiseAndSmi
	ShiftLeftSmi
	ShiftRightSmi
	ShiftRightLogicalSmi

	Inc
	Dec
	Negate
	BitwiseNot

	TestEqual
	TestEqualStrict
	TestLessThan
	TestGreaterThan
	TestLessThanOrEqual
	TestGreaterThanOrEqual

	LogicalNot
	TypeOf
	CreateClosure

	CallAnyReceiver
	CallProperty
	CallProperty0
	CallProperty1
	CallProperty2
	CallUndefinedReceiver
	CallUndefinedReceiver0
	CallUndefinedReceiver1
	CallUndefinedReceiver2

	Jump
	JumpLoop
	JumpIfTrue
	JumpIfFalse
	JumpIfToBooleanTrue
	JumpIfToBooleanFalse
	JumpIfNull
	JumpIfUndefined

	Return
	Throw
	Debugger

	numOpcodes
)

var (
	noOps        = []OperandType{}
	regOps       = []OperandType{OperandReg}
	regSlotOps   = []OperandType{OperandReg, OperandSlot}
	immSlotOps   = []OperandType{OperandImm, OperandSlot}
	slotOps      = []OperandType{OperandSlot}
	jumpOps      = []OperandType{OperandJump}
	ctxSlotOps   = []OperandType{OperandReg, OperandIdx, OperandUImm}
	idxSlotOps   = []OperandType{OperandIdx, OperandSlot}
	namedOps     = []OperandType{OperandReg, OperandIdx, OperandSlot}
	callListOps  = []OperandType{OperandReg, OperandRegList, OperandSlot}
	call0Ops     = []OperandType{OperandReg, OperandSlot}
	call1Ops     = []OperandType{OperandReg, OperandReg, OperandSlot}
	call2Ops     = []OperandType{OperandReg, OperandReg, OperandReg, OperandSlot}
	call3Ops     = []OperandType{OperandReg, OperandReg, OperandReg, OperandReg, OperandSlot}
	binaryOp     = opInfo{acc: AccReadWrite, operands: regSlotOps}
	binarySmiOp  = opInfo{acc: AccReadWrite, operands: immSlotOps}
	unaryOp      = opInfo{acc: AccReadWrite, operands: slotOps}
	condJumpInfo = opInfo{acc: AccRead, operands: jumpOps, flags: flagJump | flagConditional}
)

func named(name string, info opInfo) opInfo {
	info.name = name
	return info
}

var opTable = [numOpcodes]opInfo{
	Illegal: {name: "Illegal", operands: noOps, flags: flagUnsupported | flagThrow},

	LdaZero:      {name: "LdaZero", acc: AccWrite, operands: noOps},
	LdaSmi:       {name: "LdaSmi", acc: AccWrite, operands: []OperandType{OperandImm}},
	LdaUndefined: {name: "LdaUndefined", acc: AccWrite, operands: noOps},
	LdaNull:      {name: "LdaNull", acc: AccWrite, operands: noOps},
	LdaTheHole:   {name: "LdaTheHole", acc: AccWrite, operands: noOps},
	LdaTrue:      {name: "LdaTrue", acc: AccWrite, operands: noOps},
	LdaFalse:     {name: "LdaFalse", acc: AccWrite, operands: noOps},
	LdaConstant:  {name: "LdaConstant", acc: AccWrite, operands: []OperandType{OperandIdx}},
	Ldar:         {name: "Ldar", acc: AccWrite, operands: regOps},
	Star:         {name: "Star", acc: AccRead, operands: []OperandType{OperandRegOut}},
	Mov:          {name: "Mov", operands: []OperandType{OperandReg, OperandRegOut}},

	LdaContextSlot:                 {name: "LdaContextSlot", acc: AccWrite, operands: ctxSlotOps},
	LdaImmutableContextSlot:        {name: "LdaImmutableContextSlot", acc: AccWrite, operands: ctxSlotOps},
	LdaCurrentContextSlot:          {name: "LdaCurrentContextSlot", acc: AccWrite, operands: []OperandType{OperandIdx}},
	LdaImmutableCurrentContextSlot: {name: "LdaImmutableCurrentContextSlot", acc: AccWrite, operands: []OperandType{OperandIdx}},
	StaContextSlot:                 {name: "StaContextSlot", acc: AccRead, operands: ctxSlotOps, flags: flagUnsupported},
	StaCurrentContextSlot:          {name: "StaCurrentContextSlot", acc: AccRead, operands: []OperandType{OperandIdx}, flags: flagUnsupported},
	PushContext:                    {name: "PushContext", acc: AccRead, operands: []OperandType{OperandRegOut}, flags: flagUnsupported},

	LdaGlobal:        {name: "LdaGlobal", acc: AccWrite, operands: idxSlotOps},
	StaGlobal:        {name: "StaGlobal", acc: AccRead, operands: idxSlotOps, flags: flagUnsupported},
	GetNamedProperty: {name: "GetNamedProperty", acc: AccWrite, operands: namedOps},
	SetNamedProperty: {name: "SetNamedProperty", acc: AccRead, operands: namedOps},

	Add:               named("Add", binaryOp),
	Sub:               named("Sub", binaryOp),
	Mul:               named("Mul", binaryOp),
	Div:               named("Div", binaryOp),
	Mod:               named("Mod", binaryOp),
	Exp:               named("Exp", binaryOp),
	BitwiseOr:         named("BitwiseOr", binaryOp),
	BitwiseXor:        named("BitwiseXor", binaryOp),
	BitwiseAnd:        named("BitwiseAnd", binaryOp),
	ShiftLeft:         named("ShiftLeft", binaryOp),
	ShiftRight:        named("ShiftRight", binaryOp),
	ShiftRightLogical: named("ShiftRightLogical", binaryOp),

	AddSmi:               named("AddSmi", binarySmiOp),
	SubSmi:               named("SubSmi", binarySmiOp),
	MulSmi:               named("MulSmi", binarySmiOp),
	DivSmi:               named("DivSmi", binarySmiOp),
	ModSmi:               named("ModSmi", binarySmiOp),
	ExpSmi:               named("ExpSmi", binarySmiOp),
	BitwiseOrSmi:         named("BitwiseOrSmi", binarySmiOp),
	BitwiseXorSmi:        named("BitwiseXorSmi", binarySmiOp),
	BitwiseAndSmi:        named("BitwiseAndSmi", binarySmiOp),
	ShiftLeftSmi:         named("ShiftLeftSmi", binarySmiOp),
	ShiftRightSmi:        named("ShiftRightSmi", binarySmiOp),
	ShiftRightLogicalSmi: named("ShiftRightLogicalSmi", binarySmiOp),

	Inc:        named("Inc", unaryOp),
	Dec:        named("Dec", unaryOp),
	Negate:     named("Negate", unaryOp),
	BitwiseNot: named("BitwiseNot", unaryOp),

	TestEqual:              named("TestEqual", binaryOp),
	TestEqualStrict:        named("TestEqualStrict", binaryOp),
	TestLessThan:           named("TestLessThan", binaryOp),
	TestGreaterThan:        named("TestGreaterThan", binaryOp),
	TestLessThanOrEqual:    named("TestLessThanOrEqual", binaryOp),
	TestGreaterThanOrEqual: named("TestGreaterThanOrEqual", binaryOp),

	LogicalNot:    {name: "LogicalNot", acc: AccReadWrite, operands: noOps, flags: flagUnsupported},
	TypeOf:        {name: "TypeOf", acc: AccReadWrite, operands: noOps, flags: flagUnsupported},
	CreateClosure: {name: "CreateClosure", acc: AccWrite, operands: []OperandType{OperandIdx, OperandSlot, OperandUImm}, flags: flagUnsupported},

	CallAnyReceiver:        {name: "CallAnyReceiver", acc: AccWrite, operands: callListOps, flags: flagCall},
	CallProperty:           {name: "CallProperty", acc: AccWrite, operands: callListOps, flags: flagCall},
	CallProperty0:          {name: "CallProperty0", acc: AccWrite, operands: call1Ops, flags: flagCall},
	CallProperty1:          {name: "CallProperty1", acc: AccWrite, operands: call2Ops, flags: flagCall},
	CallProperty2:          {name: "CallProperty2", acc: AccWrite, operands: call3Ops, flags: flagCall},
	CallUndefinedReceiver:  {name: "CallUndefinedReceiver", acc: AccWrite, operands: callListOps, flags: flagCall},
	CallUndefinedReceiver0: {name: "CallUndefinedReceiver0", acc: AccWrite, operands: call0Ops, flags: flagCall},
	CallUndefinedReceiver1: {name: "CallUndefinedReceiver1", acc: AccWrite, operands: call1Ops, flags: flagCall},
	CallUndefinedReceiver2: {name: "CallUndefinedReceiver2", acc: AccWrite, operands: call2Ops, flags: flagCall},

	Jump:                 {name: "Jump", operands: jumpOps, flags: flagJump},
	JumpLoop:             {name: "JumpLoop", operands: jumpOps, flags: flagJump | flagLoop},
	JumpIfTrue:           named("JumpIfTrue", condJumpInfo),
	JumpIfFalse:          named("JumpIfFalse", condJumpInfo),
	JumpIfToBooleanTrue:  named("JumpIfToBooleanTrue", condJumpInfo),
	JumpIfToBooleanFalse: named("JumpIfToBooleanFalse", condJumpInfo),
	JumpIfNull:           {name: "JumpIfNull", acc: AccRead, operands: jumpOps, flags: flagJump | flagConditional | flagUnsupported},
	JumpIfUndefined:      {name: "JumpIfUndefined", acc: AccRead, operands: jumpOps, flags: flagJump | flagConditional | flagUnsupported},

	Return:   {name: "Return", acc: AccRead, operands: noOps, flags: flagReturn},
	Throw:    {name: "Throw", acc: AccRead, operands: noOps, flags: flagThrow | flagUnsupported},
	Debugger: {name: "Debugger", operands: noOps, flags: flagUnsupported},
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, numOpcodes)
	for op := Opcode(0); op < numOpcodes; op++ {
		m[opTable[op].name] = op
	}
	return m
}()

// LookupOpcode returns the opcode with the given mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

func (op Opcode) info() *opInfo {
	if op >= numOpcodes {
		panic(fmt.Sprintf("invalid opcode %#x", byte(op)))
	}
	return &opTable[op]
}

// IsValid reports whether op is a known opcode.
func (op Opcode) IsValid() bool { return op < numOpcodes }

func (op Opcode) String() string {
	if op >= numOpcodes {
		return fmt.Sprintf("opcode(%#x)", byte(op))
	}
	return opTable[op].name
}

// Operands returns the operand layout of op.
func (op Opcode) Operands() []OperandType { return op.info().operands }

// AccumulatorUse returns how op uses the accumulator.
func (op Opcode) AccumulatorUse() AccumulatorUse { return op.info().acc }

// Size is the encoded size of the whole instruction.
func (op Opcode) Size() int {
	size := 1
	for _, t := range op.info().operands {
		size += t.Size()
	}
	return size
}

func (op Opcode) IsJump() bool            { return op.info().flags&flagJump != 0 }
func (op Opcode) IsConditionalJump() bool { return op.info().flags&flagConditional != 0 }
func (op Opcode) IsForwardJump() bool     { return op.IsJump() && op.info().flags&flagLoop == 0 }
func (op Opcode) IsLoopJump() bool        { return op.info().flags&flagLoop != 0 }
func (op Opcode) Returns() bool           { return op.info().flags&flagReturn != 0 }
func (op Opcode) UnconditionallyThrows() bool {
	return op.info().flags&flagThrow != 0
}
func (op Opcode) IsCall() bool        { return op.info().flags&flagCall != 0 }
func (op Opcode) IsUnsupported() bool { return op.info().flags&flagUnsupported != 0 }

// FallsThrough reports whether control can continue at the next instruction.
func (op Opcode) FallsThrough() bool {
	switch {
	case op.IsJump() && !op.IsConditionalJump():
		return false
	case op.Returns(), op.UnconditionallyThrows():
		return false
	}
	return true
}
