package regalloc

import "github.com/bnb-chain/midtier/core/ir"

const (
	// anyRegister places an input or result in any allocatable register.
	anyRegister = -1
	// anyLocation leaves an input wherever its value lives, spilling it
	// first if it only has a register.
	anyLocation = -2
)

// constraint is the operand policy of one node.
type constraint struct {
	inputs []int
	result int
}

// Fixed registers of the runtime calls backing generic nodes.
var (
	genericBinaryInputs = []int{RDX, RAX}
	genericUnaryInputs  = []int{RAX}
	loadGlobalInputs    = []int{RSI}
	loadNamedInputs     = []int{RSI, RDX}
	setNamedInputs      = []int{RSI, RDX, RAX}
	returnInputs        = []int{RAX}
)

func constraintOf(n *ir.Node) constraint {
	c := constraint{result: anyRegister}
	switch n.Op {
	case ir.OpCall:
		// Function and context in registers; arguments are pushed.
		c.inputs = make([]int, len(n.Inputs))
		c.inputs[0], c.inputs[1] = RDI, RSI
		for i := 2; i < len(c.inputs); i++ {
			c.inputs[i] = anyLocation
		}
		c.result = RAX
		return c
	case ir.OpGenericBinary, ir.OpGenericCompare:
		c.inputs, c.result = genericBinaryInputs, RAX
	case ir.OpGenericUnary:
		c.inputs, c.result = genericUnaryInputs, RAX
	case ir.OpLoadGlobal:
		c.inputs, c.result = loadGlobalInputs, RAX
	case ir.OpLoadNamedGeneric:
		c.inputs, c.result = loadNamedInputs, RAX
	case ir.OpSetNamedGeneric:
		c.inputs = setNamedInputs
	case ir.OpReturn:
		c.inputs = returnInputs
	default:
		c.inputs = make([]int, len(n.Inputs))
		for i := range c.inputs {
			c.inputs[i] = anyRegister
		}
	}
	return c
}
