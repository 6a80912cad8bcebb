package bytecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Register names an interpreter frame slot. Non-negative values are locals;
// the special registers and parameters use negative encodings.
type Register int32

const (
	CurrentContext  Register = -1
	FunctionClosure Register = -2
	// Accumulator is virtual; it never appears as an encoded operand.
	Accumulator Register = -3

	firstParameter Register = -4

	InvalidRegister Register = math.MinInt32
)

// Local returns the i-th local register.
func Local(i int) Register { return Register(i) }

// Parameter returns the register of parameter i. Parameter 0 is the receiver.
func Parameter(i int) Register { return firstParameter - Register(i) }

// Receiver is parameter 0.
var Receiver = Parameter(0)

func (r Register) IsLocal() bool     { return r >= 0 }
func (r Register) IsParameter() bool { return r <= firstParameter && r != InvalidRegister }
func (r Register) IsValid() bool     { return r != InvalidRegister }

// Index is the local index of r.
func (r Register) Index() int {
	if !r.IsLocal() {
		panic(fmt.Sprintf("register %v is not a local", r))
	}
	return int(r)
}

// ParameterIndex is the parameter index of r.
func (r Register) ParameterIndex() int {
	if !r.IsParameter() {
		panic(fmt.Sprintf("register %v is not a parameter", r))
	}
	return int(firstParameter - r)
}

func (r Register) String() string {
	switch {
	case r == CurrentContext:
		return "<context>"
	case r == FunctionClosure:
		return "<closure>"
	case r == Accumulator:
		return "<accumulator>"
	case r == InvalidRegister:
		return "<invalid>"
	case r.IsLocal():
		return "r" + strconv.Itoa(int(r))
	case r == Receiver:
		return "<this>"
	}
	return "a" + strconv.Itoa(r.ParameterIndex()-1)
}

// ParseRegister parses the textual register syntax.
func ParseRegister(s string) (Register, error) {
	switch s {
	case "<context>":
		return CurrentContext, nil
	case "<closure>":
		return FunctionClosure, nil
	case "<this>":
		return Receiver, nil
	}
	if len(s) < 2 || (s[0] != 'r' && s[0] != 'a') {
		return InvalidRegister, fmt.Errorf("invalid register %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 {
		return InvalidRegister, fmt.Errorf("invalid register %q", s)
	}
	if s[0] == 'r' {
		return Local(n), nil
	}
	return Parameter(n + 1), nil
}

// RegisterList is a contiguous run of registers.
type RegisterList struct {
	First Register
	Count int
}

// At returns the i-th register of the list.
func (l RegisterList) At(i int) Register {
	if i < 0 || i >= l.Count {
		panic(fmt.Sprintf("register list index %d out of range %d", i, l.Count))
	}
	if l.First.IsParameter() {
		return Parameter(l.First.ParameterIndex() + i)
	}
	return l.First + Register(i)
}

// Last returns the final register of a non-empty list.
func (l RegisterList) Last() Register { return l.At(l.Count - 1) }

// PopLeft drops the first register.
func (l RegisterList) PopLeft() RegisterList {
	if l.Count == 0 {
		return l
	}
	if l.Count == 1 {
		return RegisterList{First: l.First}
	}
	return RegisterList{First: l.At(1), Count: l.Count - 1}
}

func (l RegisterList) String() string {
	switch l.Count {
	case 0:
		return "{}"
	case 1:
		return "{" + l.First.String() + "}"
	}
	var sb strings.Builder
	sb.WriteString("{")
	sb.WriteString(l.First.String())
	sb.WriteString("-")
	sb.WriteString(l.Last().String())
	sb.WriteString("}")
	return sb.String()
}
