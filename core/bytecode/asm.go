package bytecode

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/bnb-chain/midtier/core/heap"
)

// Assemble parses a textual listing into an Array.
//
//	; comment
//	.constant "name"        ; constant pool entries, in order
//	loop:
//	  Ldar a0
//	  AddSmi 1, [0]
//	  JumpIfToBooleanTrue loop
//	  CallUndefinedReceiver r0, {r1-r2}, [3]
//	  Return
func Assemble(name string, params, registers int, src string) (*Array, error) {
	a := NewAssembler(name, params, registers)
	labels := make(map[string]*Label)
	label := func(n string) *Label {
		l, ok := labels[n]
		if !ok {
			l = a.NewLabel(n)
			labels[n] = l
		}
		return l
	}
	scanner := bufio.NewScanner(strings.NewReader(src))
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if i := strings.IndexByte(line, ';'); i >= 0 && !inQuotes(line, i) {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		for {
			i := strings.IndexByte(line, ':')
			if i <= 0 || strings.ContainsAny(line[:i], " \t\"") {
				break
			}
			a.Bind(label(line[:i]))
			line = strings.TrimSpace(line[i+1:])
		}
		if line == "" {
			continue
		}
		if err := assembleLine(a, line, label); err != nil {
			return nil, errors.Wrapf(err, "%s:%d", name, lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return a.Build()
}

// MustAssemble is Assemble for listings known to be valid.
func MustAssemble(name string, params, registers int, src string) *Array {
	arr, err := Assemble(name, params, registers, src)
	if err != nil {
		panic(err)
	}
	return arr
}

func inQuotes(s string, i int) bool {
	return strings.Count(s[:i], "\"")%2 == 1
}

func assembleLine(a *Assembler, line string, label func(string) *Label) error {
	mnemonic, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if mnemonic == ".constant" {
		obj, err := ParseConstant(rest)
		if err != nil {
			return err
		}
		a.AddConstant(obj)
		return nil
	}
	op, ok := LookupOpcode(mnemonic)
	if !ok {
		return errors.Errorf("unknown bytecode %q", mnemonic)
	}
	args := splitOperands(rest)
	types := op.Operands()
	if len(args) != len(types) {
		return errors.Errorf("%v takes %d operands, got %d", op, len(types), len(args))
	}
	var (
		operands []int32
		target   *Label
	)
	for i, t := range types {
		arg := args[i]
		switch t {
		case OperandReg, OperandRegOut:
			r, err := ParseRegister(arg)
			if err != nil {
				return err
			}
			operands = append(operands, int32(r))
		case OperandRegList:
			l, err := parseRegisterList(arg)
			if err != nil {
				return err
			}
			operands = append(operands, int32(l.First), int32(l.Count))
		case OperandImm, OperandUImm:
			v, err := strconv.ParseInt(arg, 0, 32)
			if err != nil {
				return errors.Errorf("invalid immediate %q", arg)
			}
			operands = append(operands, int32(v))
		case OperandIdx, OperandSlot:
			if len(arg) < 3 || arg[0] != '[' || arg[len(arg)-1] != ']' {
				return errors.Errorf("expected [index], got %q", arg)
			}
			v, err := strconv.ParseUint(arg[1:len(arg)-1], 10, 16)
			if err != nil {
				return errors.Errorf("invalid index %q", arg)
			}
			operands = append(operands, int32(v))
		case OperandJump:
			target = label(arg)
		}
	}
	if target != nil {
		a.EmitJump(op, target, operands...)
	} else {
		a.Emit(op, operands...)
	}
	return nil
}

func splitOperands(s string) []string {
	if s == "" {
		return nil
	}
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func parseRegisterList(s string) (RegisterList, error) {
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return RegisterList{}, errors.Errorf("invalid register list %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return RegisterList{First: Local(0)}, nil
	}
	if first, last, ok := strings.Cut(body, "-"); ok {
		f, err := ParseRegister(strings.TrimSpace(first))
		if err != nil {
			return RegisterList{}, err
		}
		l, err := ParseRegister(strings.TrimSpace(last))
		if err != nil {
			return RegisterList{}, err
		}
		return contiguous(f, l, s)
	}
	var regs []Register
	for _, part := range strings.Split(body, ",") {
		r, err := ParseRegister(strings.TrimSpace(part))
		if err != nil {
			return RegisterList{}, err
		}
		regs = append(regs, r)
	}
	list, err := contiguous(regs[0], regs[len(regs)-1], s)
	if err != nil {
		return list, err
	}
	for i, r := range regs {
		if list.At(i) != r {
			return RegisterList{}, errors.Errorf("register list %q is not contiguous", s)
		}
	}
	return list, nil
}

func contiguous(first, last Register, s string) (RegisterList, error) {
	switch {
	case first.IsLocal() && last.IsLocal() && last >= first:
		return RegisterList{First: first, Count: last.Index() - first.Index() + 1}, nil
	case first.IsParameter() && last.IsParameter() && last.ParameterIndex() >= first.ParameterIndex():
		return RegisterList{First: first, Count: last.ParameterIndex() - first.ParameterIndex() + 1}, nil
	}
	return RegisterList{}, errors.Errorf("register list %q is not contiguous", s)
}

// ParseConstant parses a constant pool literal: a quoted string, an integer
// (Smi when it fits, HeapNumber otherwise), a float, an integer with an n
// suffix (BigInt) or one of the oddball names.
func ParseConstant(s string) (heap.Object, error) {
	switch s {
	case "undefined":
		return heap.Undefined, nil
	case "null":
		return heap.Null, nil
	case "true":
		return heap.True, nil
	case "false":
		return heap.False, nil
	case "the_hole":
		return heap.TheHole, nil
	}
	if strings.HasPrefix(s, "\"") {
		v, err := strconv.Unquote(s)
		if err != nil {
			return nil, errors.Errorf("invalid string constant %s", s)
		}
		return heap.String(v), nil
	}
	if strings.HasSuffix(s, "n") {
		return heap.NewBigInt(strings.TrimSuffix(s, "n"))
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		if heap.IsSmiValue(v) {
			return heap.Smi(v), nil
		}
		return heap.HeapNumber(v), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Errorf("invalid constant %q", s)
	}
	return heap.HeapNumber(v), nil
}
