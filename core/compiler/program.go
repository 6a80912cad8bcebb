package compiler

import (
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/feedback"
	"github.com/bnb-chain/midtier/core/heap"
)

// ErrInvalidProgram is wrapped by every program description error.
var ErrInvalidProgram = errors.New("invalid program")

// ProgramFile is the TOML layout of a program description.
type ProgramFile struct {
	Maps      []MapSpec
	Cells     []CellSpec
	Functions []FunctionSpec
}

type MapSpec struct {
	Name          string
	InObjectProps int
	Unstable      bool
}

type CellSpec struct {
	Name         string
	Value        string
	Type         string
	ReadOnly     bool
	Configurable bool
	Accessor     bool
}

type FunctionSpec struct {
	Name          string
	Parameters    int
	Registers     int
	Strict        bool
	NotInlineable bool
	// NoFeedback leaves the function without a feedback vector, as for
	// code that never ran.
	NoFeedback bool
	Slots      int
	Constants  []string
	Code       string
	Feedback   []FeedbackSpec
}

type FeedbackSpec struct {
	Slot int
	// Kind is one of binary, named, global, call and insufficient.
	Kind string

	Hint  string
	State string

	Name     string
	Maps     []string
	Handlers []string

	Cell string

	Target        string
	Frequency     float64
	NoSpeculation bool
}

// Program is a loaded description: functions with their feedback, served by
// one broker.
type Program struct {
	Functions []*feedback.JSFunction
	Broker    *feedback.StaticBroker
	Maps      map[string]*heap.Map
	Cells     map[string]*heap.PropertyCell

	byName map[string]*feedback.JSFunction
}

// Function returns the function with the given name.
func (p *Program) Function(name string) (*feedback.JSFunction, bool) {
	fn, ok := p.byName[name]
	return fn, ok
}

// LoadProgram reads a program description from file.
func LoadProgram(file string) (*Program, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	p, err := ParseProgram(data)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	return p, nil
}

// ParseProgram decodes and links a program description.
func ParseProgram(data []byte) (*Program, error) {
	var file ProgramFile
	if err := DecodeTOML(data, &file); err != nil {
		return nil, errors.Wrap(ErrInvalidProgram, err.Error())
	}
	p := &Program{
		Broker: feedback.NewStaticBroker(),
		Maps:   make(map[string]*heap.Map),
		Cells:  make(map[string]*heap.PropertyCell),
		byName: make(map[string]*feedback.JSFunction),
	}
	for _, m := range file.Maps {
		if _, dup := p.Maps[m.Name]; dup {
			return nil, errors.Wrapf(ErrInvalidProgram, "map %q defined twice", m.Name)
		}
		hm := heap.NewMap(m.Name, m.InObjectProps)
		hm.Stable = !m.Unstable
		p.Maps[m.Name] = hm
	}
	for _, c := range file.Cells {
		cell, err := c.build()
		if err != nil {
			return nil, err
		}
		p.Cells[c.Name] = cell
	}
	for _, f := range file.Functions {
		fn, err := f.build()
		if err != nil {
			return nil, err
		}
		if _, dup := p.byName[f.Name]; dup {
			return nil, errors.Wrapf(ErrInvalidProgram, "function %q defined twice", f.Name)
		}
		p.byName[f.Name] = fn
		p.Functions = append(p.Functions, fn)
	}
	// Feedback may refer to any function, so it is linked last.
	for i, f := range file.Functions {
		fn := p.Functions[i]
		for _, fb := range f.Feedback {
			processed, err := p.feedback(fb)
			if err != nil {
				return nil, errors.Wrapf(err, "%s slot %d", f.Name, fb.Slot)
			}
			if fn.Vector == nil {
				return nil, errors.Wrapf(ErrInvalidProgram, "%s has feedback but no vector", f.Name)
			}
			if fb.Slot < 0 || fb.Slot >= fn.Vector.Slots {
				return nil, errors.Wrapf(ErrInvalidProgram, "%s: feedback slot %d out of range", f.Name, fb.Slot)
			}
			p.Broker.Set(feedback.NewSource(fn.Vector, fb.Slot), processed)
		}
	}
	return p, nil
}

var cellTypes = map[string]heap.PropertyCellType{
	"":              heap.CellTypeMutable,
	"mutable":       heap.CellTypeMutable,
	"undefined":     heap.CellTypeUndefined,
	"constant":      heap.CellTypeConstant,
	"constant_type": heap.CellTypeConstantType,
}

func (c CellSpec) build() (*heap.PropertyCell, error) {
	ct, ok := cellTypes[c.Type]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidProgram, "cell %q: unknown type %q", c.Name, c.Type)
	}
	var value heap.Object = heap.Undefined
	if c.Value != "" {
		v, err := bytecode.ParseConstant(c.Value)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidProgram, "cell %q: %v", c.Name, err)
		}
		value = v
	}
	details := heap.PropertyDetails{ReadOnly: c.ReadOnly, Configurable: c.Configurable, CellType: ct}
	if c.Accessor {
		details.Kind = heap.PropertyKindAccessor
	}
	return heap.NewPropertyCell(c.Name, value, details), nil
}

func (f FunctionSpec) build() (*feedback.JSFunction, error) {
	var src strings.Builder
	for _, c := range f.Constants {
		src.WriteString(".constant " + c + "\n")
	}
	src.WriteString(f.Code)
	arr, err := bytecode.Assemble(f.Name, f.Parameters, f.Registers, src.String())
	if err != nil {
		return nil, errors.Wrap(ErrInvalidProgram, err.Error())
	}
	slots := f.Slots
	for _, fb := range f.Feedback {
		if fb.Slot >= slots {
			slots = fb.Slot + 1
		}
	}
	fn := feedback.NewFunction(arr, f.Strict, slots)
	fn.Shared.Inlineable = !f.NotInlineable
	if f.NoFeedback {
		fn.Vector = nil
	}
	return fn, nil
}

var icStates = map[string]feedback.ICState{
	"":              feedback.Monomorphic,
	"uninitialized": feedback.Uninitialized,
	"monomorphic":   feedback.Monomorphic,
	"polymorphic":   feedback.Polymorphic,
	"megamorphic":   feedback.Megamorphic,
}

func (p *Program) feedback(fb FeedbackSpec) (feedback.Processed, error) {
	switch fb.Kind {
	case "insufficient":
		return feedback.Insufficient{}, nil
	case "binary":
		hint, ok := feedback.ParseHint(fb.Hint)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidProgram, "unknown hint %q", fb.Hint)
		}
		state, ok := icStates[fb.State]
		if !ok {
			return nil, errors.Wrapf(ErrInvalidProgram, "unknown IC state %q", fb.State)
		}
		return &feedback.BinaryOperation{State: state, Hint: hint}, nil
	case "named":
		if len(fb.Maps) != len(fb.Handlers) {
			return nil, errors.Wrapf(ErrInvalidProgram, "%d maps but %d handlers", len(fb.Maps), len(fb.Handlers))
		}
		named := &feedback.NamedAccess{Name: fb.Name}
		for i, name := range fb.Maps {
			m, ok := p.Maps[name]
			if !ok {
				return nil, errors.Wrapf(ErrInvalidProgram, "unknown map %q", name)
			}
			h, err := feedback.ParseHandler(fb.Handlers[i])
			if err != nil {
				return nil, errors.Wrap(ErrInvalidProgram, err.Error())
			}
			named.Maps = append(named.Maps, m)
			named.Handlers = append(named.Handlers, h)
		}
		return named, nil
	case "global":
		global := &feedback.GlobalAccess{Name: fb.Name}
		if fb.Cell != "" {
			cell, ok := p.Cells[fb.Cell]
			if !ok {
				return nil, errors.Wrapf(ErrInvalidProgram, "unknown cell %q", fb.Cell)
			}
			global.Cell = cell
		}
		return global, nil
	case "call":
		call := &feedback.Call{Frequency: fb.Frequency}
		if fb.NoSpeculation {
			call.Mode = feedback.DisallowSpeculation
		}
		if fb.Target != "" {
			target, ok := p.byName[fb.Target]
			if !ok {
				return nil, errors.Wrapf(ErrInvalidProgram, "unknown call target %q", fb.Target)
			}
			call.Target = target
		}
		return call, nil
	}
	return nil, errors.Wrapf(ErrInvalidProgram, "unknown feedback kind %q", fb.Kind)
}
