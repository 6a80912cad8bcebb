package graphbuilder

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/feedback"
	"github.com/bnb-chain/midtier/core/heap"
	"github.com/bnb-chain/midtier/core/ir"
)

func newFunction(name string, params, registers int, src string) *feedback.JSFunction {
	return feedback.NewFunction(bytecode.MustAssemble(name, params, registers, src), true, 8)
}

func buildWith(t *testing.T, ctx *Context, fn *feedback.JSFunction) Result {
	t.Helper()
	an, err := bytecode.Analyze(fn.Shared.Bytecode)
	require.NoError(t, err)
	res := Build(ctx, fn, an)
	require.NotNil(t, res.Graph)
	return res
}

func build(t *testing.T, broker feedback.Broker, fn *feedback.JSFunction) Result {
	t.Helper()
	return buildWith(t, NewContext(broker, DefaultOptions), fn)
}

func nodesOf(g *ir.Graph, op ir.Op) []*ir.Node {
	var out []*ir.Node
	for _, id := range g.Blocks() {
		b := g.Block(id)
		for _, pid := range b.Phis() {
			if n := g.Node(pid); n.Op == op {
				out = append(out, n)
			}
		}
		for _, nid := range b.Nodes {
			if n := g.Node(nid); n.Op == op {
				out = append(out, n)
			}
		}
		if n := g.Node(b.Control); n.Op == op {
			out = append(out, n)
		}
	}
	return out
}

func initialValue(t *testing.T, g *ir.Graph, r bytecode.Register) ir.NodeID {
	t.Helper()
	for _, n := range nodesOf(g, ir.OpInitialValue) {
		if n.Aux == r {
			return n.ID
		}
	}
	t.Fatalf("no initial value for %v", r)
	return ir.NoNode
}

func returned(t *testing.T, g *ir.Graph) *ir.Node {
	t.Helper()
	rets := nodesOf(g, ir.OpReturn)
	require.Len(t, rets, 1)
	return g.Node(rets[0].Inputs[0])
}

func signedSmall() *feedback.BinaryOperation {
	return &feedback.BinaryOperation{State: feedback.Monomorphic, Hint: feedback.HintSignedSmall}
}

func TestStraightLineGraphVerifies(t *testing.T) {
	fn := newFunction("f", 2, 1, `
		LdaSmi 7
		Star r0
		Ldar a0
		Return
	`)
	res := build(t, feedback.NewStaticBroker(), fn)
	require.True(t, res.Success())
	require.NoError(t, ir.Verify(res.Graph))

	for _, id := range res.Graph.Blocks() {
		b := res.Graph.Block(id)
		assert.True(t, res.Graph.Node(b.Control).IsControl())
	}
	assert.Equal(t, initialValue(t, res.Graph, bytecode.Parameter(1)), returned(t, res.Graph).ID)
}

func TestAddSpeculation(t *testing.T) {
	src := `
		Ldar a0
		Add a1, [0]
		Return
	`
	t.Run("signed small", func(t *testing.T) {
		fn := newFunction("add", 3, 0, src)
		broker := feedback.NewStaticBroker()
		broker.Set(feedback.NewSource(fn.Vector, 0), signedSmall())
		res := build(t, broker, fn)
		require.True(t, res.Success())
		require.NoError(t, ir.Verify(res.Graph))

		adds := nodesOf(res.Graph, ir.OpInt32AddWithOverflow)
		require.Len(t, adds, 1)
		assert.Len(t, nodesOf(res.Graph, ir.OpCheckedSmiUntag), 2)
		assert.Empty(t, nodesOf(res.Graph, ir.OpGenericBinary))

		ret := returned(t, res.Graph)
		assert.Equal(t, ir.OpCheckedSmiTag, ret.Op)
		assert.Equal(t, adds[0].ID, ret.Inputs[0])
	})
	t.Run("no feedback", func(t *testing.T) {
		fn := newFunction("add", 3, 0, src)
		res := build(t, feedback.NewStaticBroker(), fn)
		require.True(t, res.Success())

		generic := nodesOf(res.Graph, ir.OpGenericBinary)
		require.Len(t, generic, 1)
		assert.Equal(t, int64(ir.OperationAdd), generic[0].AuxInt)
		assert.Equal(t, 0, generic[0].Feedback.Slot)
		assert.Equal(t, []ir.NodeID{
			initialValue(t, res.Graph, bytecode.Parameter(2)),
			initialValue(t, res.Graph, bytecode.Parameter(1)),
		}, generic[0].Inputs)
	})
	t.Run("insufficient", func(t *testing.T) {
		fn := newFunction("add", 3, 0, src)
		broker := feedback.NewStaticBroker()
		broker.Set(feedback.NewSource(fn.Vector, 0), feedback.Insufficient{})
		res := build(t, broker, fn)
		require.True(t, res.Success())
		require.NoError(t, ir.Verify(res.Graph))

		assert.Equal(t, 1, res.UnconditionalDeopts)
		assert.Len(t, nodesOf(res.Graph, ir.OpDeopt), 1)
		assert.Empty(t, nodesOf(res.Graph, ir.OpReturn))
	})
	t.Run("same register", func(t *testing.T) {
		fn := newFunction("double", 2, 0, `
			Ldar a0
			Add a0, [0]
			Return
		`)
		broker := feedback.NewStaticBroker()
		broker.Set(feedback.NewSource(fn.Vector, 0), signedSmall())
		res := build(t, broker, fn)

		untag := nodesOf(res.Graph, ir.OpCheckedSmiUntag)
		require.Len(t, untag, 1)
		adds := nodesOf(res.Graph, ir.OpInt32AddWithOverflow)
		require.Len(t, adds, 1)
		assert.Equal(t, []ir.NodeID{untag[0].ID, untag[0].ID}, adds[0].Inputs)
	})
}

func TestAddSmiSpeculation(t *testing.T) {
	t.Run("zero", func(t *testing.T) {
		fn := newFunction("f", 2, 0, `
			Ldar a0
			AddSmi 0, [0]
			Return
		`)
		broker := feedback.NewStaticBroker()
		broker.Set(feedback.NewSource(fn.Vector, 0), signedSmall())
		res := build(t, broker, fn)
		require.NoError(t, ir.Verify(res.Graph))

		assert.Len(t, nodesOf(res.Graph, ir.OpCheckedSmiUntag), 1)
		assert.Empty(t, nodesOf(res.Graph, ir.OpInt32AddWithOverflow))
		assert.Equal(t, initialValue(t, res.Graph, bytecode.Parameter(1)), returned(t, res.Graph).ID)
	})
	t.Run("generic", func(t *testing.T) {
		fn := newFunction("f", 2, 0, `
			Ldar a0
			MulSmi 3, [0]
			Return
		`)
		broker := feedback.NewStaticBroker()
		broker.Set(feedback.NewSource(fn.Vector, 0), signedSmall())
		res := build(t, broker, fn)

		generic := nodesOf(res.Graph, ir.OpGenericBinary)
		require.Len(t, generic, 1)
		assert.Equal(t, int64(ir.OperationMultiply), generic[0].AuxInt)
		right := res.Graph.Node(generic[0].Inputs[1])
		assert.Equal(t, ir.OpSmiConstant, right.Op)
		assert.Equal(t, int64(3), right.AuxInt)
	})
}

func TestDiamondCreatesPhi(t *testing.T) {
	fn := newFunction("pick", 2, 0, `
		Ldar a0
		JumpIfToBooleanTrue other
		LdaSmi 1
		Jump done
	other:
		LdaSmi 2
	done:
		Return
	`)
	res := build(t, feedback.NewStaticBroker(), fn)
	require.True(t, res.Success())
	require.NoError(t, ir.Verify(res.Graph))

	phis := nodesOf(res.Graph, ir.OpPhi)
	require.Len(t, phis, 1)
	assert.Len(t, phis[0].Inputs, 2)
	assert.Equal(t, bytecode.Accumulator, phis[0].Aux)
	assert.Equal(t, phis[0].ID, returned(t, res.Graph).ID)
}

func TestLoopHeaderPhis(t *testing.T) {
	fn := newFunction("loop", 2, 3, `
		LdaZero
		Star r0
		Mov a0, r2
	head:
		Ldar r0
		TestLessThan r2, [0]
		JumpIfFalse exit
		Ldar r0
		AddSmi 1, [1]
		Star r0
		JumpLoop head
	exit:
		Ldar r0
		Return
	`)
	broker := feedback.NewStaticBroker()
	broker.Set(feedback.NewSource(fn.Vector, 1), signedSmall())
	res := build(t, broker, fn)
	require.True(t, res.Success())
	require.NoError(t, ir.Verify(res.Graph))

	var header *ir.BasicBlock
	for _, id := range res.Graph.Blocks() {
		if b := res.Graph.Block(id); b.IsLoopHeader() {
			require.Nil(t, header, "one loop header")
			header = b
		}
	}
	require.NotNil(t, header)
	require.Len(t, header.Merge.Phis, 1)
	phi := res.Graph.Node(header.Merge.Phis[0])
	assert.Equal(t, bytecode.Local(0), phi.Aux)
	require.Len(t, phi.Inputs, 2)
	assert.Equal(t, ir.OpSmiConstant, res.Graph.Node(phi.Inputs[0]).Op)
	assert.Equal(t, ir.OpCheckedSmiTag, res.Graph.Node(phi.Inputs[1]).Op)
	assert.Contains(t, header.Merge.LiveIn, phi.ID)

	back := res.Graph.Block(header.Merge.Predecessors[1])
	assert.Equal(t, ir.OpJumpLoop, res.Graph.Node(back.Control).Op)
}

func TestMergePointFrameState(t *testing.T) {
	arr := bytecode.MustAssemble("m", 1, 1, `
		Ldar r0
		Return
	`)
	an, err := bytecode.Analyze(arr)
	require.NoError(t, err)
	u := newUnit(feedback.NewFunction(arr, true, 0), an, nil)
	g := ir.NewGraph("m")

	frameWith := func(v ir.NodeID) *InterpreterFrameState {
		f := NewInterpreterFrameState(u)
		f.Set(bytecode.Receiver, v)
		f.Set(bytecode.CurrentContext, v)
		f.Set(bytecode.FunctionClosure, v)
		f.Set(bytecode.Local(0), v)
		return f
	}
	a := g.NewNode(ir.OpSmiConstant).ID
	b := g.NewNode(ir.OpSmiConstant).ID

	t.Run("agreeing values", func(t *testing.T) {
		ms := NewMergePointFrameState(u, frameWith(a), 0, 3, 0, an.InLiveness(0))
		assert.Equal(t, 1, ms.Merge(g, frameWith(a), 1))
		assert.Equal(t, 2, ms.Merge(g, frameWith(a), 2))
		assert.Empty(t, ms.Info().Phis)
		assert.Equal(t, a, ms.Get(bytecode.Local(0)))
	})
	t.Run("one disagreeing value", func(t *testing.T) {
		ms := NewMergePointFrameState(u, frameWith(a), 0, 3, 0, an.InLiveness(0))
		ms.Merge(g, frameWith(a), 1)
		ms.Merge(g, frameWith(b), 2)
		phi := g.Node(ms.Get(bytecode.Local(0)))
		assert.Equal(t, ir.OpPhi, phi.Op)
		assert.Equal(t, []ir.NodeID{a, a, b}, phi.Inputs)
		assert.Equal(t, []ir.BlockID{0, 1, 2}, ms.Info().Predecessors)
		assert.Panics(t, func() { ms.Merge(g, frameWith(a), 3) })
	})
	t.Run("dead predecessor", func(t *testing.T) {
		ms := NewMergePointFrameState(u, frameWith(a), 0, 3, 0, an.InLiveness(0))
		ms.MergeDead()
		assert.Equal(t, 2, ms.PredecessorCount())
		assert.Equal(t, 1, ms.PredecessorsSoFar())
		assert.Equal(t, a, ms.Get(bytecode.Local(0)))
		ms.Merge(g, frameWith(b), 1)
		assert.Panics(t, ms.MergeDead)
	})
	t.Run("dead predecessor after phi", func(t *testing.T) {
		ms := NewMergePointFrameState(u, frameWith(a), 0, 4, 0, an.InLiveness(0))
		ms.Merge(g, frameWith(b), 1)
		phi := g.Node(ms.Get(bytecode.Local(0)))
		require.Equal(t, ir.OpPhi, phi.Op)
		require.Equal(t, []ir.NodeID{a, b}, phi.Inputs)

		ms.MergeDead()
		assert.Equal(t, 3, ms.PredecessorCount())
		assert.Equal(t, []ir.NodeID{a, b}, phi.Inputs)
		assert.Equal(t, phi.ID, ms.Get(bytecode.Local(0)))

		ms.Merge(g, frameWith(a), 2)
		assert.Equal(t, []ir.NodeID{a, b, a}, phi.Inputs)
		assert.Equal(t, []ir.BlockID{0, 1, 2}, ms.Info().Predecessors)
		assert.Len(t, ms.Info().Phis, 1)
	})
	t.Run("untagged input", func(t *testing.T) {
		raw := g.NewNode(ir.OpInt32Constant).ID
		ms := NewMergePointFrameState(u, frameWith(a), 0, 2, 0, an.InLiveness(0))
		assert.Panics(t, func() { ms.Merge(g, frameWith(raw), 1) })
	})
}

func TestLoopBackEdgeUpgradesUnassignedSlot(t *testing.T) {
	arr := bytecode.MustAssemble("l", 1, 2, `
		LdaZero
		Star r0
		Star r1
	head:
		Ldar r1
		JumpIfToBooleanFalse exit
		Ldar r0
		Star r1
		JumpLoop head
	exit:
		Ldar r0
		Return
	`)
	an, err := bytecode.Analyze(arr)
	require.NoError(t, err)
	require.Len(t, an.Loops(), 1)
	loop := an.Loops()[0]
	require.False(t, loop.AssignsRegister(bytecode.Local(0)))
	require.True(t, loop.AssignsRegister(bytecode.Local(1)))

	u := newUnit(feedback.NewFunction(arr, true, 0), an, nil)
	g := ir.NewGraph("l")
	frame := func(r0, rest ir.NodeID) *InterpreterFrameState {
		f := NewInterpreterFrameState(u)
		f.Set(bytecode.Receiver, rest)
		f.Set(bytecode.CurrentContext, rest)
		f.Set(bytecode.FunctionClosure, rest)
		f.Set(bytecode.Local(0), r0)
		f.Set(bytecode.Local(1), rest)
		return f
	}
	fwd := g.NewNode(ir.OpSmiConstant).ID
	back := g.NewNode(ir.OpSmiConstant).ID
	other := g.NewNode(ir.OpSmiConstant).ID

	ms := NewLoopMergePointFrameState(g, u, loop.Header, 2, an.InLiveness(loop.Header), loop)
	require.Len(t, ms.Info().Phis, 1)
	assigned := ms.Get(bytecode.Local(1))

	assert.Equal(t, 0, ms.Merge(g, frame(fwd, other), 0))
	assert.Equal(t, fwd, ms.Get(bytecode.Local(0)))

	assert.Equal(t, 1, ms.MergeLoop(g, frame(back, other), 1))
	upgraded := g.Node(ms.Get(bytecode.Local(0)))
	assert.Equal(t, ir.OpPhi, upgraded.Op)
	assert.NotEqual(t, fwd, upgraded.ID)
	assert.Equal(t, []ir.NodeID{fwd, back}, upgraded.Inputs)
	assert.Equal(t, bytecode.Local(0), upgraded.Aux)
	assert.Equal(t, []ir.NodeID{assigned, upgraded.ID}, ms.Info().Phis)
	assert.Contains(t, ms.Info().LiveIn, upgraded.ID)

	assert.Equal(t, assigned, ms.Get(bytecode.Local(1)))
	assert.Equal(t, []ir.NodeID{other, other}, g.Node(assigned).Inputs)
	assert.Equal(t, other, ms.Get(bytecode.Receiver))
}

func TestDeadMergeWithoutState(t *testing.T) {
	fn := newFunction("f", 2, 0, `
		Ldar a0
		JumpIfToBooleanTrue done
		LdaSmi 1
	done:
		Return
	`)
	an, err := bytecode.Analyze(fn.Shared.Bytecode)
	require.NoError(t, err)
	c := &compilation{
		ctx:      NewContext(feedback.NewStaticBroker(), DefaultOptions),
		graph:    ir.NewGraph("f"),
		analyses: map[*bytecode.Array]*bytecode.Analysis{an.Array(): an},
	}
	b := newBuilder(c, newUnit(fn, an, nil))
	offs := an.Offsets()
	done := offs[len(offs)-1]
	require.Equal(t, 2, b.predecessors[done])

	b.mergeDeadIntoFrameState(done)
	assert.Equal(t, 1, b.predecessors[done])
	assert.Nil(t, b.mergeStates[done])
	assert.Zero(t, c.graph.NumNodes())
}

func TestInlineIdentity(t *testing.T) {
	callee := newFunction("id", 2, 0, `
		Ldar a0
		Return
	`)
	caller := newFunction("caller", 3, 0, `
		CallUndefinedReceiver1 a0, a1, [0]
		Return
	`)
	broker := feedback.NewStaticBroker()
	broker.Set(feedback.NewSource(caller.Vector, 0), &feedback.Call{Target: callee, Mode: feedback.AllowSpeculation})

	t.Run("inlined", func(t *testing.T) {
		ctx := NewContext(broker, DefaultOptions)
		res := buildWith(t, ctx, caller)
		require.True(t, res.Success())
		require.NoError(t, ir.Verify(res.Graph))

		assert.Equal(t, 1, res.InlinedCalls)
		assert.Empty(t, nodesOf(res.Graph, ir.OpCall))
		require.Len(t, nodesOf(res.Graph, ir.OpJumpToInlined), 1)
		require.Len(t, nodesOf(res.Graph, ir.OpJumpFromInlined), 1)
		assert.Equal(t, "id", nodesOf(res.Graph, ir.OpJumpToInlined)[0].Aux)
		assert.Equal(t, initialValue(t, res.Graph, bytecode.Parameter(2)), returned(t, res.Graph).ID)

		depths := map[int]bool{}
		for _, id := range res.Graph.Blocks() {
			depths[res.Graph.Block(id).Depth] = true
		}
		assert.True(t, depths[1], "inlinee blocks carry depth 1")
		assert.Equal(t, 2, ctx.Dependencies.Size(), "both feedback vectors")
	})
	t.Run("disabled", func(t *testing.T) {
		opts := DefaultOptions
		opts.Inlining = false
		res := buildWith(t, NewContext(broker, opts), caller)
		require.True(t, res.Success())
		require.NoError(t, ir.Verify(res.Graph))

		calls := nodesOf(res.Graph, ir.OpCall)
		require.Len(t, calls, 1)
		assert.Equal(t, int64(2), calls[0].AuxInt)
		require.Len(t, calls[0].Inputs, 4)
		assert.Equal(t, initialValue(t, res.Graph, bytecode.Parameter(1)), calls[0].Inputs[0])
		assert.Equal(t, initialValue(t, res.Graph, bytecode.CurrentContext), calls[0].Inputs[1])
		assert.Equal(t, ir.OpRootConstant, res.Graph.Node(calls[0].Inputs[2]).Op)
		assert.Equal(t, calls[0].ID, returned(t, res.Graph).ID)
	})
	t.Run("too deep", func(t *testing.T) {
		opts := DefaultOptions
		opts.MaxInlineDepth = 0
		res := buildWith(t, NewContext(broker, opts), caller)
		assert.Zero(t, res.InlinedCalls)
		assert.Len(t, nodesOf(res.Graph, ir.OpCall), 1)
	})
}

func TestInlineMissingArguments(t *testing.T) {
	callee := newFunction("second", 3, 0, `
		Ldar a1
		Return
	`)
	caller := newFunction("caller", 3, 0, `
		CallUndefinedReceiver1 a0, a1, [0]
		Return
	`)
	broker := feedback.NewStaticBroker()
	broker.Set(feedback.NewSource(caller.Vector, 0), &feedback.Call{Target: callee, Mode: feedback.AllowSpeculation})
	res := build(t, broker, caller)
	require.NoError(t, ir.Verify(res.Graph))

	ret := returned(t, res.Graph)
	assert.Equal(t, ir.OpRootConstant, ret.Op)
	assert.Equal(t, int64(heap.RootUndefined), ret.AuxInt)
}

func TestInlineSkipsCalleeFallingOffTheEnd(t *testing.T) {
	callee := newFunction("g", 2, 0, `
		LdaZero
		Return
	`)
	code := callee.Shared.Bytecode.Code
	callee.Shared.Bytecode.Code = code[:len(code)-1]
	caller := newFunction("caller", 3, 0, `
		CallUndefinedReceiver1 a0, a1, [0]
		Return
	`)
	broker := feedback.NewStaticBroker()
	broker.Set(feedback.NewSource(caller.Vector, 0), &feedback.Call{Target: callee, Mode: feedback.AllowSpeculation})

	res := build(t, broker, caller)
	require.True(t, res.Success())
	require.NoError(t, ir.Verify(res.Graph))
	assert.Zero(t, res.InlinedCalls)
	assert.Len(t, nodesOf(res.Graph, ir.OpCall), 1)
}

func TestGlobalPropertyCells(t *testing.T) {
	src := `
		.constant "g"
		LdaGlobal [0], [0]
		Return
	`
	run := func(t *testing.T, value heap.Object, details heap.PropertyDetails) (Result, *Context, *heap.PropertyCell) {
		fn := newFunction("f", 1, 0, src)
		cell := heap.NewPropertyCell("g", value, details)
		broker := feedback.NewStaticBroker()
		broker.Set(feedback.NewSource(fn.Vector, 0), &feedback.GlobalAccess{Name: "g", Cell: cell})
		ctx := NewContext(broker, DefaultOptions)
		res := buildWith(t, ctx, fn)
		require.NoError(t, ir.Verify(res.Graph))
		return res, ctx, cell
	}

	t.Run("hole", func(t *testing.T) {
		res, _, _ := run(t, heap.TheHole, heap.PropertyDetails{Configurable: true})
		assert.Equal(t, 1, res.UnconditionalDeopts)
		assert.Empty(t, nodesOf(res.Graph, ir.OpReturn))
	})
	t.Run("read only", func(t *testing.T) {
		res, ctx, _ := run(t, heap.Smi(42), heap.PropertyDetails{ReadOnly: true})
		ret := returned(t, res.Graph)
		assert.Equal(t, ir.OpSmiConstant, ret.Op)
		assert.Equal(t, int64(42), ret.AuxInt)
		assert.Empty(t, ctx.Dependencies.GlobalProperties())
	})
	t.Run("constant", func(t *testing.T) {
		res, ctx, cell := run(t, heap.Smi(5), heap.PropertyDetails{Configurable: true, CellType: heap.CellTypeConstant})
		assert.Equal(t, ir.OpSmiConstant, returned(t, res.Graph).Op)
		assert.Equal(t, []*heap.PropertyCell{cell}, ctx.Dependencies.GlobalProperties())
	})
	t.Run("mutable", func(t *testing.T) {
		res, ctx, cell := run(t, heap.Smi(5), heap.PropertyDetails{CellType: heap.CellTypeMutable})
		ret := returned(t, res.Graph)
		assert.Equal(t, ir.OpLoadField, ret.Op)
		assert.Equal(t, int64(heap.PropertyCellValueOffset), ret.AuxInt)
		assert.Equal(t, cell, res.Graph.Node(ret.Inputs[0]).Aux)
		assert.Empty(t, ctx.Dependencies.GlobalProperties())
	})
	t.Run("accessor", func(t *testing.T) {
		res, _, _ := run(t, heap.Smi(5), heap.PropertyDetails{Kind: heap.PropertyKindAccessor})
		ret := returned(t, res.Graph)
		assert.Equal(t, ir.OpLoadGlobal, ret.Op)
		assert.Equal(t, "g", ret.Aux)
	})
}

func TestNamedPropertyAccess(t *testing.T) {
	m := heap.NewMap("Point", 2)
	load := func(t *testing.T, p feedback.Processed) *ir.Graph {
		fn := newFunction("get", 2, 0, `
			.constant "x"
			GetNamedProperty a0, [0], [0]
			Return
		`)
		broker := feedback.NewStaticBroker()
		if p != nil {
			broker.Set(feedback.NewSource(fn.Vector, 0), p)
		}
		res := build(t, broker, fn)
		require.NoError(t, ir.Verify(res.Graph))
		return res.Graph
	}

	t.Run("in object", func(t *testing.T) {
		g := load(t, &feedback.NamedAccess{Name: "x", Maps: []*heap.Map{m}, Handlers: []feedback.Handler{feedback.FieldHandler(1)}})
		checks := nodesOf(g, ir.OpCheckMaps)
		require.Len(t, checks, 1)
		assert.Equal(t, m, checks[0].Aux)
		ret := returned(t, g)
		assert.Equal(t, ir.OpLoadField, ret.Op)
		assert.Equal(t, int64(heap.InObjectFieldOffset(1)), ret.AuxInt)
	})
	t.Run("backing store", func(t *testing.T) {
		h := feedback.Handler{Kind: feedback.HandlerField, FieldIndex: 0}
		g := load(t, &feedback.NamedAccess{Name: "x", Maps: []*heap.Map{m}, Handlers: []feedback.Handler{h}})
		ret := returned(t, g)
		assert.Equal(t, int64(heap.BackingStoreFieldOffset(0)), ret.AuxInt)
		store := g.Node(ret.Inputs[0])
		assert.Equal(t, ir.OpLoadField, store.Op)
		assert.Equal(t, int64(heap.JSObjectPropertiesOffset), store.AuxInt)
	})
	t.Run("generic", func(t *testing.T) {
		g := load(t, nil)
		ret := returned(t, g)
		assert.Equal(t, ir.OpLoadNamedGeneric, ret.Op)
		assert.Equal(t, "x", ret.Aux)
		assert.Len(t, ret.Inputs, 2)
	})
	t.Run("insufficient", func(t *testing.T) {
		g := load(t, feedback.Insufficient{})
		assert.Len(t, nodesOf(g, ir.OpDeopt), 1)
	})
}

func TestUnsupportedBytecodeIsSticky(t *testing.T) {
	fn := newFunction("f", 2, 0, `
		Ldar a0
		JumpIfNull skip
		LdaSmi 1
	skip:
		Throw
	`)
	res := build(t, feedback.NewStaticBroker(), fn)
	require.False(t, res.Success())
	assert.True(t, res.Unsupported())
	assert.True(t, errors.Is(res.Err, ErrUnsupported))

	u, ok := res.Reason()
	require.True(t, ok)
	assert.Equal(t, bytecode.JumpIfNull, u.Bytecode)
	assert.Equal(t, "f", u.Function)
	assert.Len(t, nodesOf(res.Graph, ir.OpAbort), 1)
	require.NoError(t, ir.Verify(res.Graph))
}
