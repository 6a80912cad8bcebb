package heap

import (
	"fmt"
	"sync/atomic"
)

// Field offsets, in bytes from the start of the tagged object.
const (
	TaggedSize = 8

	MapOffset                = 0
	JSObjectPropertiesOffset = 1 * TaggedSize
	JSObjectHeaderSize       = 3 * TaggedSize
	FixedArrayHeaderSize     = 2 * TaggedSize
	PropertyCellValueOffset  = 2 * TaggedSize
	JSFunctionContextOffset  = 4 * TaggedSize
	JSFunctionFeedbackOffset = 5 * TaggedSize

	// Context slots follow a fixed header; the previous link lives in the
	// header.
	ContextHeaderSize     = 2 * TaggedSize
	ContextPreviousIndex  = 0
	ContextExtensionIndex = 1
	MinContextSlots       = 2
)

// ContextSlotOffset is the byte offset of context slot index.
func ContextSlotOffset(index int) int {
	return ContextHeaderSize + index*TaggedSize
}

// InObjectFieldOffset is the byte offset of the i-th in-object property.
func InObjectFieldOffset(i int) int {
	return JSObjectHeaderSize + i*TaggedSize
}

// BackingStoreFieldOffset is the byte offset of the i-th out-of-object
// property in the properties backing store.
func BackingStoreFieldOffset(i int) int {
	return FixedArrayHeaderSize + i*TaggedSize
}

var mapIDs atomic.Uint32

// Map describes the layout of a set of objects. Maps are shared between
// compilations; the runtime clears Stable when objects transition away.
type Map struct {
	ID            uint32
	Name          string
	InObjectProps int
	Stable        bool
}

// NewMap returns a map with a process-unique id.
func NewMap(name string, inObjectProps int) *Map {
	return &Map{ID: mapIDs.Add(1), Name: name, InObjectProps: inObjectProps, Stable: true}
}

func (*Map) Kind() Kind { return KindMap }

func (m *Map) String() string { return fmt.Sprintf("<Map %s#%d>", m.Name, m.ID) }
