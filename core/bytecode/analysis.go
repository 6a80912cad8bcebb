package bytecode

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// Liveness is the set of locals and the accumulator holding values that may
// still be read. Parameters and the special registers are always live and are
// not tracked.
type Liveness struct {
	Registers   *bitset.BitSet
	Accumulator bool
}

func newLiveness(registers int) *Liveness {
	return &Liveness{Registers: bitset.New(uint(registers))}
}

// RegisterIsLive reports whether local r is live.
func (l *Liveness) RegisterIsLive(r Register) bool {
	return l.Registers.Test(uint(r.Index()))
}

func (l *Liveness) AccumulatorIsLive() bool { return l.Accumulator }

// LiveValueCount counts live locals plus the accumulator.
func (l *Liveness) LiveValueCount() int {
	n := int(l.Registers.Count())
	if l.Accumulator {
		n++
	}
	return n
}

func (l *Liveness) Equal(o *Liveness) bool {
	return l.Accumulator == o.Accumulator && l.Registers.Equal(o.Registers)
}

func (l *Liveness) Clone() *Liveness {
	return &Liveness{Registers: l.Registers.Clone(), Accumulator: l.Accumulator}
}

func (l *Liveness) union(o *Liveness) {
	l.Registers.InPlaceUnion(o.Registers)
	l.Accumulator = l.Accumulator || o.Accumulator
}

func (l *Liveness) String() string {
	var sb strings.Builder
	for i, ok := l.Registers.NextSet(0); ok; i, ok = l.Registers.NextSet(i + 1) {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(Local(int(i)).String())
	}
	if l.Accumulator {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("acc")
	}
	return "{" + sb.String() + "}"
}

// LoopInfo describes the region [Header, End] closed by a JumpLoop at End.
type LoopInfo struct {
	Header int
	End    int

	params      int
	assignments *bitset.BitSet
}

func (l *LoopInfo) index(r Register) uint {
	if r.IsParameter() {
		return uint(r.ParameterIndex())
	}
	return uint(l.params + r.Index())
}

// AssignsRegister reports whether r may be written inside the loop.
func (l *LoopInfo) AssignsRegister(r Register) bool {
	if r == Accumulator {
		return l.AssignsAccumulator()
	}
	if !r.IsLocal() && !r.IsParameter() {
		return false
	}
	return l.assignments.Test(l.index(r))
}

// AssignsAccumulator reports whether any instruction in the loop writes the
// accumulator.
func (l *LoopInfo) AssignsAccumulator() bool {
	return l.assignments.Test(l.assignments.Len() - 1)
}

// Contains reports whether offset lies within the loop.
func (l *LoopInfo) Contains(offset int) bool { return offset >= l.Header && offset <= l.End }

// Analysis holds per-offset liveness and loop structure of an Array.
type Analysis struct {
	array   *Array
	offsets []int
	in      map[int]*Liveness
	out     map[int]*Liveness
	loops   map[int]*LoopInfo
	exit    *Liveness
}

// Analyze validates a and computes its liveness and loops.
func Analyze(a *Array) (*Analysis, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	an := &Analysis{
		array: a,
		in:    make(map[int]*Liveness),
		out:   make(map[int]*Liveness),
		loops: make(map[int]*LoopInfo),
	}
	for it := NewIterator(a); !it.Done(); it.Advance() {
		an.offsets = append(an.offsets, it.CurrentOffset())
	}
	an.exit = newLiveness(a.RegisterCount)
	an.exit.Accumulator = true
	an.computeLiveness()
	an.computeLoops()
	return an, nil
}

// Array is the analyzed bytecode.
func (an *Analysis) Array() *Array { return an.array }

// Offsets lists instruction starts in order.
func (an *Analysis) Offsets() []int { return an.offsets }

// InLiveness is the liveness before the instruction at offset. The offset
// one past the end is the synthetic exit of an inlined function, where only
// the accumulator is live.
func (an *Analysis) InLiveness(offset int) *Liveness {
	if offset == an.array.Length() {
		return an.exit
	}
	l, ok := an.in[offset]
	if !ok {
		panic(fmt.Sprintf("%s: no instruction at offset %d", an.array.Name, offset))
	}
	return l
}

// OutLiveness is the liveness after the instruction at offset.
func (an *Analysis) OutLiveness(offset int) *Liveness {
	l, ok := an.out[offset]
	if !ok {
		panic(fmt.Sprintf("%s: no instruction at offset %d", an.array.Name, offset))
	}
	return l
}

func (an *Analysis) IsLoopHeader(offset int) bool {
	_, ok := an.loops[offset]
	return ok
}

// LoopInfo returns the loop headed at offset, or nil.
func (an *Analysis) LoopInfo(offset int) *LoopInfo { return an.loops[offset] }

// Loops returns all loops ordered by header.
func (an *Analysis) Loops() []*LoopInfo {
	loops := make([]*LoopInfo, 0, len(an.loops))
	for _, l := range an.loops {
		loops = append(loops, l)
	}
	sort.Slice(loops, func(i, j int) bool { return loops[i].Header < loops[j].Header })
	return loops
}

func (an *Analysis) computeLiveness() {
	a := an.array
	for _, off := range an.offsets {
		an.in[off] = newLiveness(a.RegisterCount)
		an.out[off] = newLiveness(a.RegisterCount)
	}
	it := NewIterator(a)
	for changed := true; changed; {
		changed = false
		for i := len(an.offsets) - 1; i >= 0; i-- {
			off := an.offsets[i]
			it.SetOffset(off)
			op := it.CurrentBytecode()

			out := newLiveness(a.RegisterCount)
			if op.FallsThrough() && it.NextOffset() < a.Length() {
				out.union(an.in[it.NextOffset()])
			}
			if op.IsJump() {
				out.union(an.in[it.JumpTargetOffset()])
			}
			in := out.Clone()
			an.transfer(it, in)
			if !in.Equal(an.in[off]) || !out.Equal(an.out[off]) {
				an.in[off], an.out[off] = in, out
				changed = true
			}
		}
	}
}

// transfer turns out-liveness into in-liveness for the current instruction.
func (an *Analysis) transfer(it *Iterator, l *Liveness) {
	op := it.CurrentBytecode()
	if op.AccumulatorUse().Writes() {
		l.Accumulator = false
	}
	for i, t := range op.Operands() {
		if t == OperandRegOut {
			if r := it.RegisterOperand(i); r.IsLocal() {
				l.Registers.Clear(uint(r.Index()))
			}
		}
	}
	for i, t := range op.Operands() {
		switch t {
		case OperandReg:
			if r := it.RegisterOperand(i); r.IsLocal() {
				l.Registers.Set(uint(r.Index()))
			}
		case OperandRegList:
			list := it.RegisterListOperand(i)
			for j := 0; j < list.Count; j++ {
				if r := list.At(j); r.IsLocal() {
					l.Registers.Set(uint(r.Index()))
				}
			}
		}
	}
	if op.AccumulatorUse().Reads() {
		l.Accumulator = true
	}
}

func (an *Analysis) computeLoops() {
	a := an.array
	it := NewIterator(a)
	for _, off := range an.offsets {
		it.SetOffset(off)
		if !it.CurrentBytecode().IsLoopJump() {
			continue
		}
		header := it.JumpTargetOffset()
		loop, ok := an.loops[header]
		if !ok {
			loop = &LoopInfo{
				Header:      header,
				params:      a.ParameterCount,
				assignments: bitset.New(uint(a.ParameterCount + a.RegisterCount + 1)),
			}
			an.loops[header] = loop
		}
		if off > loop.End {
			loop.End = off
		}
	}
	for _, loop := range an.loops {
		for _, off := range an.offsets {
			if !loop.Contains(off) {
				continue
			}
			it.SetOffset(off)
			op := it.CurrentBytecode()
			for i, t := range op.Operands() {
				if t == OperandRegOut {
					if r := it.RegisterOperand(i); r.IsLocal() || r.IsParameter() {
						loop.assignments.Set(loop.index(r))
					}
				}
			}
			if op.AccumulatorUse().Writes() {
				loop.assignments.Set(loop.assignments.Len() - 1)
			}
		}
	}
}
