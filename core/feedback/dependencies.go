package feedback

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/bnb-chain/midtier/core/heap"
)

// ErrDependencyInvalidated is returned by Commit when an assumption recorded
// during compilation no longer holds.
var ErrDependencyInvalidated = errors.New("compilation dependency invalidated")

type cellAssumption struct {
	cell    *heap.PropertyCell
	details heap.PropertyDetails
}

type vectorAssumption struct {
	vector *Vector
	epoch  uint64
}

// Dependencies collects the assumptions one compilation relies on. It is
// owned by a single compilation and is not safe for concurrent use.
type Dependencies struct {
	cells      mapset.Set[*heap.PropertyCell]
	cellOrder  []cellAssumption
	maps       mapset.Set[*heap.Map]
	vectors    mapset.Set[*Vector]
	vectorList []vectorAssumption
}

// NewDependencies returns an empty sink.
func NewDependencies() *Dependencies {
	return &Dependencies{
		cells:   mapset.NewThreadUnsafeSet[*heap.PropertyCell](),
		maps:    mapset.NewThreadUnsafeSet[*heap.Map](),
		vectors: mapset.NewThreadUnsafeSet[*Vector](),
	}
}

// DependOnGlobalProperty records that cell must keep the cell type, kind,
// read-only and configurable attributes of details. Callers pass the details
// they specialized on, read together with the value.
func (d *Dependencies) DependOnGlobalProperty(cell *heap.PropertyCell, details heap.PropertyDetails) {
	if d.cells.Add(cell) {
		d.cellOrder = append(d.cellOrder, cellAssumption{cell: cell, details: details})
	}
}

// DependOnStableMap records that m must not transition.
func (d *Dependencies) DependOnStableMap(m *heap.Map) {
	d.maps.Add(m)
}

// DependOnFeedback records that v must not change, used for inlined callees
// whose feedback shaped the graph.
func (d *Dependencies) DependOnFeedback(v *Vector) {
	if d.vectors.Add(v) {
		d.vectorList = append(d.vectorList, vectorAssumption{vector: v, epoch: v.Epoch()})
	}
}

// GlobalProperties lists the cells depended upon, in recording order.
func (d *Dependencies) GlobalProperties() []*heap.PropertyCell {
	cells := make([]*heap.PropertyCell, len(d.cellOrder))
	for i, a := range d.cellOrder {
		cells[i] = a.cell
	}
	return cells
}

// Size is the number of distinct assumptions.
func (d *Dependencies) Size() int {
	return d.cells.Cardinality() + d.maps.Cardinality() + d.vectors.Cardinality()
}

// Commit re-validates every assumption.
func (d *Dependencies) Commit() error {
	for _, a := range d.cellOrder {
		now := a.cell.Details()
		if now.CellType != a.details.CellType || now.ReadOnly != a.details.ReadOnly ||
			now.Configurable != a.details.Configurable || now.Kind != a.details.Kind {
			return errors.Wrapf(ErrDependencyInvalidated, "property cell %s changed from %v to %v", a.cell.Name, a.details.CellType, now.CellType)
		}
	}
	var unstable []string
	d.maps.Each(func(m *heap.Map) bool {
		if !m.Stable {
			unstable = append(unstable, m.String())
		}
		return false
	})
	if len(unstable) > 0 {
		return errors.Wrapf(ErrDependencyInvalidated, "maps no longer stable: %v", unstable)
	}
	for _, a := range d.vectorList {
		if e := a.vector.Epoch(); e != a.epoch {
			return errors.Wrapf(ErrDependencyInvalidated, "feedback %s advanced from epoch %d to %d", a.vector.Name, a.epoch, e)
		}
	}
	return nil
}

func (d *Dependencies) String() string {
	return fmt.Sprintf("deps{cells:%d maps:%d feedback:%d}", d.cells.Cardinality(), d.maps.Cardinality(), d.vectors.Cardinality())
}
