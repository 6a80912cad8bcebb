package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigIntLiterals(t *testing.T) {
	b, err := NewBigInt("-12345678901234567890")
	require.NoError(t, err)
	assert.True(t, b.Negative)
	assert.Equal(t, "-12345678901234567890n", b.String())

	b, err = NewBigInt("0xff")
	require.NoError(t, err)
	assert.Equal(t, uint64(255), b.Value.Uint64())

	b, err = NewBigInt("-0")
	require.NoError(t, err)
	assert.False(t, b.Negative)

	_, err = NewBigInt("12z")
	assert.Error(t, err)
}

func TestOddballsAreCanonical(t *testing.T) {
	assert.Same(t, Undefined, Root(RootUndefined))
	assert.True(t, IsTheHole(TheHole))
	assert.False(t, IsTheHole(Null))
	assert.False(t, IsTheHole(Smi(0)))
}

func TestPropertyCellSnapshot(t *testing.T) {
	cell := NewPropertyCell("x", Smi(1), PropertyDetails{CellType: CellTypeConstant, Configurable: true})
	v, d := cell.Snapshot()
	assert.Equal(t, Object(Smi(1)), v)
	assert.Equal(t, CellTypeConstant, d.CellType)
	assert.False(t, d.IsConstantForCompiler())

	cell.Update(Smi(2), PropertyDetails{ReadOnly: true})
	assert.Equal(t, Object(Smi(2)), cell.Value())
	assert.True(t, cell.Details().IsConstantForCompiler())
}

func TestMapIDsAreUnique(t *testing.T) {
	a, b := NewMap("A", 2), NewMap("B", 0)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 40, InObjectFieldOffset(2))
	assert.Equal(t, 32, ContextSlotOffset(2))
	assert.Equal(t, 24, BackingStoreFieldOffset(1))
}
