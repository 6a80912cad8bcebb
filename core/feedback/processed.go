package feedback

import (
	"github.com/bnb-chain/midtier/core/heap"
)

// Kind tags a processed feedback record.
type Kind uint8

const (
	// KindNone means nothing has been recorded for the slot.
	KindNone Kind = iota
	// KindInsufficient means the site has never executed.
	KindInsufficient
	KindBinaryOperation
	KindNamedAccess
	KindGlobalAccess
	KindCall
)

func (k Kind) String() string {
	switch k {
	case KindInsufficient:
		return "insufficient"
	case KindBinaryOperation:
		return "binary"
	case KindNamedAccess:
		return "named"
	case KindGlobalAccess:
		return "global"
	case KindCall:
		return "call"
	}
	return "none"
}

// Processed is the broker's digest of one feedback slot.
type Processed interface {
	Kind() Kind
}

// Insufficient is returned for sites that never ran.
type Insufficient struct{}

func (Insufficient) Kind() Kind { return KindInsufficient }

// ICState is the inline cache state of a site.
type ICState uint8

const (
	Uninitialized ICState = iota
	Monomorphic
	Polymorphic
	Megamorphic
)

func (s ICState) String() string {
	return [...]string{"uninitialized", "monomorphic", "polymorphic", "megamorphic"}[s]
}

// BinaryOperationHint summarizes the operand types seen by an arithmetic or
// comparison site.
type BinaryOperationHint uint8

const (
	HintNone BinaryOperationHint = iota
	HintSignedSmall
	HintSignedSmallInputs
	HintNumber
	HintNumberOrOddball
	HintString
	HintBigInt
	HintAny
)

var hintNames = [...]string{
	HintNone:              "None",
	HintSignedSmall:       "SignedSmall",
	HintSignedSmallInputs: "SignedSmallInputs",
	HintNumber:            "Number",
	HintNumberOrOddball:   "NumberOrOddball",
	HintString:            "String",
	HintBigInt:            "BigInt",
	HintAny:               "Any",
}

func (h BinaryOperationHint) String() string { return hintNames[h] }

// ParseHint is the inverse of String.
func ParseHint(s string) (BinaryOperationHint, bool) {
	for h, name := range hintNames {
		if name == s {
			return BinaryOperationHint(h), true
		}
	}
	return HintNone, false
}

// BinaryOperation is arithmetic or comparison feedback.
type BinaryOperation struct {
	State ICState
	Hint  BinaryOperationHint
}

func (*BinaryOperation) Kind() Kind { return KindBinaryOperation }

// IsSignedSmall reports whether both operands have always been small
// integers and the site is monomorphic.
func (b *BinaryOperation) IsSignedSmall() bool {
	return b.State == Monomorphic && b.Hint == HintSignedSmall
}

// NamedAccess is property load or store feedback for one name: the maps seen
// and the handler cached for each.
type NamedAccess struct {
	Name     string
	Maps     []*heap.Map
	Handlers []Handler
}

func (*NamedAccess) Kind() Kind { return KindNamedAccess }

// IsMonomorphic reports whether exactly one map was seen.
func (n *NamedAccess) IsMonomorphic() bool { return len(n.Maps) == 1 && len(n.Handlers) == 1 }

// GlobalAccess is feedback for a global load, resolved to its property cell
// when the global lives in one.
type GlobalAccess struct {
	Name string
	Cell *heap.PropertyCell
}

func (*GlobalAccess) Kind() Kind { return KindGlobalAccess }

// IsPropertyCell reports whether the global resolved to a cell.
func (g *GlobalAccess) IsPropertyCell() bool { return g.Cell != nil }

// SpeculationMode controls whether call feedback may be used to specialize.
type SpeculationMode uint8

const (
	AllowSpeculation SpeculationMode = iota
	DisallowSpeculation
)

// Call is call-site feedback. Target is the single callee seen, if any.
type Call struct {
	Target    heap.Object
	Frequency float64
	Mode      SpeculationMode
}

func (*Call) Kind() Kind { return KindCall }

// Function returns the target when it is a JSFunction.
func (c *Call) Function() (*JSFunction, bool) {
	fn, ok := c.Target.(*JSFunction)
	return fn, ok
}
