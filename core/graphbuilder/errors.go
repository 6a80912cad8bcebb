package graphbuilder

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/ir"
)

// ErrUnsupported is wrapped by every UnsupportedError.
var ErrUnsupported = errors.New("unsupported bytecode")

// UnsupportedError names the first bytecode the builder could not translate.
type UnsupportedError struct {
	Function string
	Offset   int
	Bytecode bytecode.Opcode
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%v: %s at @%d in %s", ErrUnsupported, e.Bytecode, e.Offset, e.Function)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// Result is the outcome of a graph build. Graph is always set, even for
// unsupported builds, so callers can dump what was produced.
type Result struct {
	Graph *ir.Graph
	Err   error

	InlinedCalls        int
	UnconditionalDeopts int
}

// Success reports whether the graph may be handed to register allocation.
func (r Result) Success() bool { return r.Err == nil }

// Unsupported reports whether building stopped on an unsupported bytecode.
func (r Result) Unsupported() bool { return errors.Is(r.Err, ErrUnsupported) }

// Reason returns the unsupported bytecode, if any.
func (r Result) Reason() (*UnsupportedError, bool) {
	var u *UnsupportedError
	if errors.As(r.Err, &u) {
		return u, true
	}
	return nil, false
}
