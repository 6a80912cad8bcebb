// Package graphbuilder translates bytecode into an ir.Graph in one forward
// pass, speculating on feedback and inlining small callees.
package graphbuilder

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/feedback"
	"github.com/bnb-chain/midtier/core/ir"
)

// Options tune graph building.
type Options struct {
	Inlining               bool
	MaxInlineDepth         int
	MaxInlinedBytecodeSize int
	// Trace logs every visited bytecode and created node at trace level.
	Trace bool
}

// DefaultOptions are the options used when none are configured.
var DefaultOptions = Options{
	Inlining:               true,
	MaxInlineDepth:         8,
	MaxInlinedBytecodeSize: 460,
}

// Context carries what one compilation reads from the outside world. The
// broker is only read; dependencies are recorded into the sink.
type Context struct {
	Broker       feedback.Broker
	Dependencies *feedback.Dependencies
	Options      Options
	Logger       log.Logger
}

// NewContext returns a context with a fresh dependency sink.
func NewContext(broker feedback.Broker, opts Options) *Context {
	return &Context{Broker: broker, Dependencies: feedback.NewDependencies(), Options: opts}
}

func (c *Context) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Root()
}

// compilation is the state shared by the builders of one graph: the graph
// itself, the stack of builders (top-level function first, innermost inlinee
// last) and the sticky failure.
type compilation struct {
	ctx      *Context
	graph    *ir.Graph
	stack    []*builder
	analyses map[*bytecode.Array]*bytecode.Analysis

	err     error
	inlined int
	deopts  int
}

func (c *compilation) push(b *builder) { c.stack = append(c.stack, b) }

func (c *compilation) pop() { c.stack = c.stack[:len(c.stack)-1] }

func (c *compilation) analyze(a *bytecode.Array) (*bytecode.Analysis, error) {
	if an, ok := c.analyses[a]; ok {
		return an, nil
	}
	an, err := bytecode.Analyze(a)
	if err != nil {
		return nil, err
	}
	c.analyses[a] = an
	return an, nil
}

// fail records the first failure; later ones are dropped.
func (c *compilation) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Build constructs the graph of fn. an must be the analysis of fn's bytecode.
// Unsupported bytecodes do not stop the traversal; the first one is reported
// through Result.Err once the whole function has been visited.
func Build(ctx *Context, fn *feedback.JSFunction, an *bytecode.Analysis) Result {
	if ctx.Dependencies == nil {
		ctx.Dependencies = feedback.NewDependencies()
	}
	c := &compilation{
		ctx:      ctx,
		graph:    ir.NewGraph(fn.Name()),
		analyses: map[*bytecode.Array]*bytecode.Analysis{an.Array(): an},
	}
	b := newBuilder(c, newUnit(fn, an, nil))
	c.push(b)
	b.buildPrologue()
	b.buildBody()
	if b.current != nil {
		panic(fmt.Sprintf("%s: bytecode falls off the end", fn.Name()))
	}
	c.pop()

	if c.err != nil {
		b.log.Debug("Graph building failed", "err", c.err)
	}
	return Result{Graph: c.graph, Err: c.err, InlinedCalls: c.inlined, UnconditionalDeopts: c.deopts}
}
