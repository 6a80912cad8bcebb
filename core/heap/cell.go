package heap

import (
	"strconv"
	"sync"
)

// PropertyCellType records what the runtime has learned about the values a
// global property cell has held.
type PropertyCellType uint8

const (
	// CellTypeMutable cells have been written with unrelated values.
	CellTypeMutable PropertyCellType = iota
	// CellTypeUndefined cells have only ever held undefined.
	CellTypeUndefined
	// CellTypeConstant cells have only ever held one value.
	CellTypeConstant
	// CellTypeConstantType cells have held values of one type.
	CellTypeConstantType
)

var cellTypeNames = [...]string{
	CellTypeMutable:      "mutable",
	CellTypeUndefined:    "undefined",
	CellTypeConstant:     "constant",
	CellTypeConstantType: "constant_type",
}

func (t PropertyCellType) String() string {
	if int(t) < len(cellTypeNames) {
		return cellTypeNames[t]
	}
	return "celltype(" + strconv.Itoa(int(t)) + ")"
}

// PropertyKind distinguishes data properties from accessor pairs.
type PropertyKind uint8

const (
	PropertyKindData PropertyKind = iota
	PropertyKindAccessor
)

// PropertyDetails are the attributes stored alongside a cell value.
type PropertyDetails struct {
	Kind         PropertyKind
	ReadOnly     bool
	Configurable bool
	CellType     PropertyCellType
}

// IsConstantForCompiler reports whether the cell value can never change.
func (d PropertyDetails) IsConstantForCompiler() bool {
	return d.Kind == PropertyKindData && d.ReadOnly && !d.Configurable
}

// PropertyCell boxes one global property. The runtime may replace the value
// and details at any time; compilations read a consistent snapshot.
type PropertyCell struct {
	Name string

	mu      sync.RWMutex
	value   Object
	details PropertyDetails
}

// NewPropertyCell creates a cell holding value.
func NewPropertyCell(name string, value Object, details PropertyDetails) *PropertyCell {
	return &PropertyCell{Name: name, value: value, details: details}
}

// Snapshot returns the current value and details.
func (c *PropertyCell) Snapshot() (Object, PropertyDetails) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.details
}

// Value returns the current cell value.
func (c *PropertyCell) Value() Object {
	v, _ := c.Snapshot()
	return v
}

// Details returns the current property details.
func (c *PropertyCell) Details() PropertyDetails {
	_, d := c.Snapshot()
	return d
}

// Update stores a new value and details, as the runtime does on a global
// store or property deletion.
func (c *PropertyCell) Update(value Object, details PropertyDetails) {
	c.mu.Lock()
	c.value, c.details = value, details
	c.mu.Unlock()
}

func (*PropertyCell) Kind() Kind { return KindPropertyCell }

func (c *PropertyCell) String() string { return "<PropertyCell " + c.Name + ">" }
