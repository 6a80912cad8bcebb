package regalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig([]string{"RAX", " rdx", "rsi", "rdi", "rax", "r8"})
	require.NoError(t, err)
	assert.Equal(t, []int{RAX, RDX, RSI, RDI, R8}, cfg.Registers)
	assert.Equal(t, R10, cfg.Scratch)

	_, err = NewConfig([]string{"rax", "xmm0"})
	assert.ErrorIs(t, err, ErrUnknownRegister)

	_, err = NewConfig([]string{"rax", "rdx", "rsi", "rdi", "rbp"})
	assert.ErrorIs(t, err, ErrReservedRegister)

	_, err = NewConfig([]string{"rax", "rdx", "rsi"})
	assert.ErrorContains(t, err, "rdi")
}

func TestRegisterNames(t *testing.T) {
	assert.Equal(t, "r15", RegisterName(R15))
	assert.Equal(t, "reg?", RegisterName(16))
	code, ok := ParseRegister("R12")
	assert.True(t, ok)
	assert.Equal(t, R12, code)
	assert.Len(t, DefaultConfig().Registers, len(DefaultRegisters))
}
