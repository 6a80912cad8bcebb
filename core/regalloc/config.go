// Package regalloc assigns registers and spill slots to a finished graph in
// one forward pass over its blocks.
package regalloc

import (
	"strings"

	"github.com/pkg/errors"
)

// x64 register codes.
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	RBP = 5
	RSI = 6
	RDI = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	R13 = 13
	R14 = 14
	R15 = 15
)

var registerNames = [...]string{
	RAX: "rax", RCX: "rcx", RDX: "rdx", RBX: "rbx", RSP: "rsp", RBP: "rbp", RSI: "rsi", RDI: "rdi",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11", R12: "r12", R13: "r13", R14: "r14", R15: "r15",
}

// RegisterName names a register code.
func RegisterName(code int) string {
	if code >= 0 && code < len(registerNames) {
		return registerNames[code]
	}
	return "reg?"
}

// ParseRegister returns the code of a register name.
func ParseRegister(name string) (int, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for code, n := range registerNames {
		if n == name {
			return code, true
		}
	}
	return -1, false
}

// DefaultRegisters is the allocatable set. rsp and rbp hold the frame,
// r10 is the move scratch register and r13 the root table.
var DefaultRegisters = []string{"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r11", "r12", "r14", "r15"}

// fixedRegisters must be allocatable because calling conventions pin values
// to them.
var fixedRegisters = []int{RAX, RDX, RSI, RDI}

var (
	ErrUnknownRegister  = errors.New("unknown register")
	ErrReservedRegister = errors.New("reserved register")
)

// Config is the register file seen by the allocator.
type Config struct {
	// Allocatable register codes, in preference order.
	Registers []int
	Scratch   int
	// Trace logs every allocation decision at trace level.
	Trace bool
	// Check validates the register state after every node.
	Check bool
}

// NewConfig builds a configuration from register names.
func NewConfig(names []string) (*Config, error) {
	cfg := &Config{Scratch: R10}
	seen := make(map[int]bool)
	for _, name := range names {
		code, ok := ParseRegister(name)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownRegister, "%q", name)
		}
		switch code {
		case RSP, RBP, R10, R13:
			return nil, errors.Wrapf(ErrReservedRegister, "%s", RegisterName(code))
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		cfg.Registers = append(cfg.Registers, code)
	}
	for _, code := range fixedRegisters {
		if !seen[code] {
			return nil, errors.Errorf("register set lacks %s", RegisterName(code))
		}
	}
	return cfg, nil
}

// DefaultConfig returns the x64 configuration.
func DefaultConfig() *Config {
	cfg, err := NewConfig(DefaultRegisters)
	if err != nil {
		panic(err)
	}
	return cfg
}
