package ir

import (
	"fmt"
	"strings"

	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/feedback"
	"github.com/bnb-chain/midtier/core/heap"
)

// NodeID indexes a node in its graph's arena.
type NodeID int32

// NoNode is the absent node.
const NoNode NodeID = -1

// Edge is one control-flow successor of a control node.
type Edge struct {
	Target BlockID
	// Offset is the bytecode offset the edge was created for, kept for
	// diagnostics once the edge is resolved.
	Offset int
	// PredIndex is the position of the source block in the target's
	// predecessor list, and so the phi input index for this edge.
	PredIndex int
	// Moves run when control takes this edge, in order.
	Moves []Move
}

// Node is a value, effect or control instruction. Op-specific payload lives
// in AuxInt and Aux:
//
//	InitialValue     Aux bytecode.Register, AuxInt frame slot
//	SmiConstant      AuxInt value
//	Int32Constant    AuxInt value
//	RootConstant     AuxInt heap.RootIndex
//	Constant         Aux heap.Object
//	Phi              Aux bytecode.Register owner, AuxInt merge offset
//	CheckMaps        Aux *heap.Map
//	LoadField        AuxInt byte offset
//	StoreField       AuxInt byte offset
//	LoadGlobal       Aux name
//	*NamedGeneric    Aux name
//	Generic*         AuxInt Operation
//	Call             AuxInt argument count (receiver included)
//	GapMove          Aux Move
type Node struct {
	ID       NodeID
	Op       Op
	Block    BlockID
	Inputs   []NodeID
	AuxInt   int64
	Aux      any
	Feedback feedback.Source

	// Edges are the successors of control nodes. Conditional branches list
	// the true target first.
	Edges []Edge

	// Filled in by register allocation.
	Pos                    int32
	LiveEnd                int32
	Result                 Location
	Spill                  Location
	InputLocations         []Location
	Temporaries            []Location
	NextPostDominatingHole NodeID
}

// IsControl reports whether n terminates a block.
func (n *Node) IsControl() bool { return n.Op.IsControl() }

// HasResult reports whether n produces a value.
func (n *Node) HasResult() bool { return n.Op.HasResult() }

// IsUntagged reports whether n produces a raw int32.
func (n *Node) IsUntagged() bool { return n.Op.IsUntagged() }

// Register is the interpreter register of InitialValue and Phi nodes.
func (n *Node) Register() bytecode.Register {
	if r, ok := n.Aux.(bytecode.Register); ok {
		return r
	}
	return bytecode.InvalidRegister
}

// Operation is the operator of a generic node.
func (n *Node) Operation() Operation { return Operation(n.AuxInt) }

// Object is the embedded heap object of Constant nodes.
func (n *Node) Object() heap.Object {
	o, _ := n.Aux.(heap.Object)
	return o
}

// Move is the payload of a GapMove.
func (n *Node) Move() Move { return n.Aux.(Move) }

// Name is the mnemonic including the operation of generic nodes.
func (n *Node) Name() string {
	switch n.Op {
	case OpGenericBinary, OpGenericUnary, OpGenericCompare:
		return "Generic" + n.Operation().String()
	}
	return n.Op.String()
}

// params renders the op-specific payload.
func (n *Node) params() string {
	switch n.Op {
	case OpInitialValue, OpPhi:
		return n.Register().String()
	case OpSmiConstant, OpInt32Constant:
		return fmt.Sprint(n.AuxInt)
	case OpRootConstant:
		return heap.RootIndex(n.AuxInt).String()
	case OpConstant, OpCheckMaps:
		if o, ok := n.Aux.(fmt.Stringer); ok {
			return o.String()
		}
	case OpLoadField, OpStoreField:
		return fmt.Sprintf("+%d", n.AuxInt)
	case OpLoadGlobal, OpLoadNamedGeneric, OpSetNamedGeneric:
		return fmt.Sprint(n.Aux)
	case OpGapMove:
		return n.Move().String()
	}
	return ""
}

func (n *Node) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "n%d: %s", n.ID, n.Name())
	if p := n.params(); p != "" {
		sb.WriteString("(" + p + ")")
	}
	for i, in := range n.Inputs {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "n%d", in)
	}
	return sb.String()
}
