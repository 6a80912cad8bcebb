package ir

import "strconv"

// Op is the operation performed by a node.
type Op uint8

const (
	OpInvalid Op = iota

	// Values.
	OpInitialValue
	OpSmiConstant
	OpInt32Constant
	OpRootConstant
	OpConstant
	OpPhi
	OpCheckedSmiUntag
	OpCheckedSmiTag
	OpInt32AddWithOverflow
	OpLoadField
	OpLoadGlobal
	OpLoadNamedGeneric
	OpGenericBinary
	OpGenericUnary
	OpGenericCompare
	OpCall

	// Effects without a result.
	OpCheckMaps
	OpStoreField
	OpSetNamedGeneric
	OpGapMove

	// Control.
	OpJump
	OpJumpLoop
	OpBranchIfTrue
	OpBranchIfToBooleanTrue
	OpReturn
	OpDeopt
	OpAbort
	OpJumpToInlined
	OpJumpFromInlined

	numOps
)

type opFlags uint16

const (
	flagValue opFlags = 1 << iota
	flagControl
	flagConditional
	flagCall
	flagCanDeopt
	flagUntagged
	flagTerminal
)

type opInfo struct {
	name  string
	flags opFlags
	temps int
}

var opTable = [numOps]opInfo{
	OpInvalid: {name: "Invalid"},

	OpInitialValue:         {name: "InitialValue", flags: flagValue},
	OpSmiConstant:          {name: "SmiConstant", flags: flagValue},
	OpInt32Constant:        {name: "Int32Constant", flags: flagValue | flagUntagged},
	OpRootConstant:         {name: "RootConstant", flags: flagValue},
	OpConstant:             {name: "Constant", flags: flagValue},
	OpPhi:                  {name: "Phi", flags: flagValue},
	OpCheckedSmiUntag:      {name: "CheckedSmiUntag", flags: flagValue | flagUntagged | flagCanDeopt},
	OpCheckedSmiTag:        {name: "CheckedSmiTag", flags: flagValue | flagCanDeopt},
	OpInt32AddWithOverflow: {name: "Int32AddWithOverflow", flags: flagValue | flagUntagged | flagCanDeopt},
	OpLoadField:            {name: "LoadField", flags: flagValue},
	OpLoadGlobal:           {name: "LoadGlobal", flags: flagValue | flagCall},
	OpLoadNamedGeneric:     {name: "LoadNamedGeneric", flags: flagValue | flagCall},
	OpGenericBinary:        {name: "Generic", flags: flagValue | flagCall},
	OpGenericUnary:         {name: "Generic", flags: flagValue | flagCall},
	OpGenericCompare:       {name: "Generic", flags: flagValue | flagCall},
	OpCall:                 {name: "Call", flags: flagValue | flagCall},

	OpCheckMaps:       {name: "CheckMaps", flags: flagCanDeopt, temps: 1},
	OpStoreField:      {name: "StoreField", temps: 1},
	OpSetNamedGeneric: {name: "SetNamedGeneric", flags: flagCall},
	OpGapMove:         {name: "GapMove"},

	OpJump:                  {name: "Jump", flags: flagControl},
	OpJumpLoop:              {name: "JumpLoop", flags: flagControl | flagTerminal},
	OpBranchIfTrue:          {name: "BranchIfTrue", flags: flagControl | flagConditional},
	OpBranchIfToBooleanTrue: {name: "BranchIfToBooleanTrue", flags: flagControl | flagConditional},
	OpReturn:                {name: "Return", flags: flagControl | flagTerminal},
	OpDeopt:                 {name: "Deopt", flags: flagControl | flagTerminal},
	OpAbort:                 {name: "Abort", flags: flagControl | flagTerminal},
	OpJumpToInlined:         {name: "JumpToInlined", flags: flagControl},
	OpJumpFromInlined:       {name: "JumpFromInlined", flags: flagControl},
}

func (op Op) String() string {
	if op < numOps {
		return opTable[op].name
	}
	return "Op(" + strconv.Itoa(int(op)) + ")"
}

// HasResult reports whether nodes of this op produce a value.
func (op Op) HasResult() bool { return opTable[op].flags&flagValue != 0 }

func (op Op) IsControl() bool     { return opTable[op].flags&flagControl != 0 }
func (op Op) IsConditional() bool { return opTable[op].flags&flagConditional != 0 }

// IsUnconditionalJump reports control ops with exactly one successor.
func (op Op) IsUnconditionalJump() bool {
	return op == OpJump || op == OpJumpToInlined || op == OpJumpFromInlined
}

// IsTerminal reports control ops with no forward successor.
func (op Op) IsTerminal() bool { return opTable[op].flags&flagTerminal != 0 }

// IsCall reports ops that clobber every allocatable register.
func (op Op) IsCall() bool { return opTable[op].flags&flagCall != 0 }

// CanDeopt reports ops that may bail out to the interpreter at run time.
func (op Op) CanDeopt() bool { return opTable[op].flags&flagCanDeopt != 0 }

// IsUntagged reports ops producing a raw int32 rather than a tagged value.
func (op Op) IsUntagged() bool { return opTable[op].flags&flagUntagged != 0 }

// Temporaries is the number of scratch registers the op needs.
func (op Op) Temporaries() int { return opTable[op].temps }

// Operation is the JavaScript operator of a generic node.
type Operation uint8

const (
	OperationAdd Operation = iota
	OperationSubtract
	OperationMultiply
	OperationDivide
	OperationModulus
	OperationExponentiate
	OperationBitwiseOr
	OperationBitwiseXor
	OperationBitwiseAnd
	OperationShiftLeft
	OperationShiftRight
	OperationShiftRightLogical
	OperationIncrement
	OperationDecrement
	OperationNegate
	OperationBitwiseNot
	OperationEqual
	OperationStrictEqual
	OperationLessThan
	OperationLessThanOrEqual
	OperationGreaterThan
	OperationGreaterThanOrEqual
)

var operationNames = [...]string{
	OperationAdd:                "Add",
	OperationSubtract:           "Subtract",
	OperationMultiply:           "Multiply",
	OperationDivide:             "Divide",
	OperationModulus:            "Modulus",
	OperationExponentiate:       "Exponentiate",
	OperationBitwiseOr:          "BitwiseOr",
	OperationBitwiseXor:         "BitwiseXor",
	OperationBitwiseAnd:         "BitwiseAnd",
	OperationShiftLeft:          "ShiftLeft",
	OperationShiftRight:         "ShiftRight",
	OperationShiftRightLogical:  "ShiftRightLogical",
	OperationIncrement:          "Increment",
	OperationDecrement:          "Decrement",
	OperationNegate:             "Negate",
	OperationBitwiseNot:         "BitwiseNot",
	OperationEqual:              "Equal",
	OperationStrictEqual:        "StrictEqual",
	OperationLessThan:           "LessThan",
	OperationLessThanOrEqual:    "LessThanOrEqual",
	OperationGreaterThan:        "GreaterThan",
	OperationGreaterThanOrEqual: "GreaterThanOrEqual",
}

func (o Operation) String() string {
	if int(o) < len(operationNames) {
		return operationNames[o]
	}
	return "Operation(" + strconv.Itoa(int(o)) + ")"
}
