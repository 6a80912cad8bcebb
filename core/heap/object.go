// Package heap is the compiler's read-only view of the managed heap: tagged
// values, object layouts and property cells.
package heap

import (
	"fmt"
	"math"
	"strconv"

	"github.com/holiman/uint256"
)

// Kind classifies a heap object.
type Kind uint8

const (
	KindSmi Kind = iota
	KindHeapNumber
	KindString
	KindBigInt
	KindOddball
	KindMap
	KindPropertyCell
	KindJSFunction
	KindJSObject
)

var kindNames = [...]string{
	KindSmi:          "Smi",
	KindHeapNumber:   "HeapNumber",
	KindString:       "String",
	KindBigInt:       "BigInt",
	KindOddball:      "Oddball",
	KindMap:          "Map",
	KindPropertyCell: "PropertyCell",
	KindJSFunction:   "JSFunction",
	KindJSObject:     "JSObject",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Object is any value the compiler may embed in a graph as a constant.
type Object interface {
	Kind() Kind
	String() string
}

// Smi is a small integer stored unboxed in a tagged word.
type Smi int32

func (Smi) Kind() Kind       { return KindSmi }
func (s Smi) String() string { return strconv.Itoa(int(s)) }

// IsSmiValue reports whether v fits the Smi range.
func IsSmiValue(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}

// HeapNumber is a boxed double.
type HeapNumber float64

func (HeapNumber) Kind() Kind       { return KindHeapNumber }
func (n HeapNumber) String() string { return strconv.FormatFloat(float64(n), 'g', -1, 64) }

// String is an internalized string. Property names are Strings.
type String string

func (String) Kind() Kind       { return KindString }
func (s String) String() string { return strconv.Quote(string(s)) }

// BigInt is an arbitrary precision integer literal, limited to 256 bits.
type BigInt struct {
	Value    *uint256.Int
	Negative bool
}

// NewBigInt parses a decimal or 0x-prefixed literal with an optional sign.
func NewBigInt(s string) (*BigInt, error) {
	neg := false
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var (
		v   *uint256.Int
		err error
	)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err = uint256.FromHex(s)
	} else {
		v, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid bigint literal %q: %v", s, err)
	}
	return &BigInt{Value: v, Negative: neg && !v.IsZero()}, nil
}

func (*BigInt) Kind() Kind { return KindBigInt }

func (b *BigInt) String() string {
	if b.Negative {
		return "-" + b.Value.Dec() + "n"
	}
	return b.Value.Dec() + "n"
}

// RootIndex names an immortal immovable oddball.
type RootIndex uint8

const (
	RootUndefined RootIndex = iota
	RootNull
	RootTheHole
	RootTrue
	RootFalse
)

var rootNames = [...]string{
	RootUndefined: "undefined",
	RootNull:      "null",
	RootTheHole:   "the_hole",
	RootTrue:      "true",
	RootFalse:     "false",
}

func (r RootIndex) String() string {
	if int(r) < len(rootNames) {
		return rootNames[r]
	}
	return "root(" + strconv.Itoa(int(r)) + ")"
}

// Oddball is one of the root values.
type Oddball struct {
	Root RootIndex
}

func (*Oddball) Kind() Kind       { return KindOddball }
func (o *Oddball) String() string { return "<" + o.Root.String() + ">" }

var roots = [...]*Oddball{
	RootUndefined: {Root: RootUndefined},
	RootNull:      {Root: RootNull},
	RootTheHole:   {Root: RootTheHole},
	RootTrue:      {Root: RootTrue},
	RootFalse:     {Root: RootFalse},
}

// Root returns the canonical oddball for r. Oddballs are compared by identity.
func Root(r RootIndex) *Oddball { return roots[r] }

var (
	Undefined = Root(RootUndefined)
	Null      = Root(RootNull)
	TheHole   = Root(RootTheHole)
	True      = Root(RootTrue)
	False     = Root(RootFalse)
)

// IsTheHole reports whether o is the hole marker.
func IsTheHole(o Object) bool { return o == Object(TheHole) }

// JSObject is an ordinary object with a map and in-object fields.
type JSObject struct {
	Map    *Map
	Fields []Object
}

func (*JSObject) Kind() Kind { return KindJSObject }

func (o *JSObject) String() string {
	if o.Map == nil {
		return "<JSObject>"
	}
	return "<JSObject " + o.Map.Name + ">"
}
