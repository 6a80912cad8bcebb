package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnb-chain/midtier/core/feedback"
	"github.com/bnb-chain/midtier/core/heap"
)

func TestParseProgramLinksFeedback(t *testing.T) {
	p := loadTestProgram(t)
	require.Len(t, p.Functions, 6)

	twice := mustFunction(t, p, "twice")
	add := mustFunction(t, p, "add")
	call, ok := p.Broker.Feedback(feedback.NewSource(twice.Vector, 0)).(*feedback.Call)
	require.True(t, ok)
	target, ok := call.Function()
	require.True(t, ok)
	assert.Same(t, add, target)

	x := mustFunction(t, p, "x")
	named, ok := p.Broker.Feedback(feedback.NewSource(x.Vector, 0)).(*feedback.NamedAccess)
	require.True(t, ok)
	require.True(t, named.IsMonomorphic())
	assert.Same(t, p.Maps["Point"], named.Maps[0])
	assert.Equal(t, feedback.FieldHandler(0).FieldIndex, named.Handlers[0].FieldIndex)
	assert.True(t, named.Handlers[0].InObject)

	cell := p.Cells["limit"]
	assert.Equal(t, heap.Object(heap.Smi(10)), cell.Value())
	assert.Equal(t, heap.CellTypeConstant, cell.Details().CellType)
	assert.True(t, p.Maps["Point"].Stable)

	_, ok = p.Function("missing")
	assert.False(t, ok)
}

func TestParseProgramFunctionShape(t *testing.T) {
	p, err := ParseProgram([]byte(`
[[Functions]]
Name = "cold"
Parameters = 2
Strict = true
NotInlineable = true
NoFeedback = true
Code = '''
	Ldar a0
	Return
'''
`))
	require.NoError(t, err)
	fn := mustFunction(t, p, "cold")
	assert.True(t, fn.Shared.Strict)
	assert.False(t, fn.Shared.Inlineable)
	assert.False(t, fn.HasFeedbackVector())
	assert.Equal(t, 2, fn.Shared.Bytecode.ParameterCount)
}

func TestParseProgramErrors(t *testing.T) {
	fn := func(extra string) string {
		return "[[Functions]]\nName = \"f\"\nParameters = 2\nCode = '''\n\tLdar a0\n\tReturn\n'''\n" + extra
	}
	tests := []struct {
		name string
		toml string
	}{
		{"syntax", "[[Functions]\n"},
		{"unknown field", "Bogus = 1\n"},
		{"duplicate function", fn("") + fn("")},
		{"bad code", "[[Functions]]\nName = \"g\"\nCode = \"Frobnicate\"\n"},
		{"duplicate map", "[[Maps]]\nName = \"M\"\n[[Maps]]\nName = \"M\"\n"},
		{"cell type", "[[Cells]]\nName = \"c\"\nType = \"sticky\"\n"},
		{"cell value", "[[Cells]]\nName = \"c\"\nValue = \"\\\"open\"\n"},
		{"feedback kind", fn("[[Functions.Feedback]]\nKind = \"magic\"\n")},
		{"hint", fn("[[Functions.Feedback]]\nKind = \"binary\"\nHint = \"Tiny\"\n")},
		{"state", fn("[[Functions.Feedback]]\nKind = \"binary\"\nHint = \"Any\"\nState = \"confused\"\n")},
		{"map count", fn("[[Functions.Feedback]]\nKind = \"named\"\nMaps = [\"A\"]\n")},
		{"unknown map", fn("[[Functions.Feedback]]\nKind = \"named\"\nMaps = [\"A\"]\nHandlers = [\"slow\"]\n")},
		{"unknown cell", fn("[[Functions.Feedback]]\nKind = \"global\"\nCell = \"nope\"\n")},
		{"unknown target", fn("[[Functions.Feedback]]\nKind = \"call\"\nTarget = \"nope\"\n")},
		{"negative slot", fn("[[Functions.Feedback]]\nSlot = -1\nKind = \"insufficient\"\n")},
		{"no vector", fn("NoFeedback = true\n[[Functions.Feedback]]\nKind = \"insufficient\"\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProgram([]byte(tt.toml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidProgram), "got %v", err)
		})
	}
}

func TestParseProgramBadHandler(t *testing.T) {
	_, err := ParseProgram([]byte(`
[[Maps]]
Name = "A"
[[Functions]]
Name = "f"
Parameters = 2
Code = "Return"
[[Functions.Feedback]]
Kind = "named"
Maps = ["A"]
Handlers = ["field(x)"]
`))
	assert.True(t, errors.Is(err, ErrInvalidProgram), "got %v", err)
}

func TestLoadProgram(t *testing.T) {
	file := filepath.Join(t.TempDir(), "prog.toml")
	require.NoError(t, os.WriteFile(file, []byte(testProgram), 0o644))
	p, err := LoadProgram(file)
	require.NoError(t, err)
	assert.Len(t, p.Functions, 6)

	_, err = LoadProgram(file + ".missing")
	assert.Error(t, err)
}
