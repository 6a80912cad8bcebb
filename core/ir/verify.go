package ir

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// ErrInvalidGraph is wrapped by every verification failure.
var ErrInvalidGraph = errors.New("invalid graph")

// Verify checks the structural invariants of a finished graph: one trailing
// control node per block, resolved edges whose predecessor indexes agree with
// their targets, phi arity, well-formed inputs and reachability.
func Verify(g *Graph) error {
	if len(g.order) == 0 {
		return errors.Wrap(ErrInvalidGraph, "no blocks")
	}
	inOrder := mapset.NewThreadUnsafeSet[BlockID]()
	for _, id := range g.order {
		if !inOrder.Add(id) {
			return errors.Wrapf(ErrInvalidGraph, "block b%d listed twice", id)
		}
	}
	checkInputs := func(n *Node) error {
		for _, in := range n.Inputs {
			if in < 0 || int(in) >= g.NumNodes() {
				return errors.Wrapf(ErrInvalidGraph, "%v: unknown input n%d", n, in)
			}
			if !g.Node(in).HasResult() {
				return errors.Wrapf(ErrInvalidGraph, "%v: input n%d has no result", n, in)
			}
		}
		return nil
	}
	for _, id := range g.order {
		b := g.Block(id)
		if !b.IsFinished() {
			return errors.Wrapf(ErrInvalidGraph, "block b%d has no control node", id)
		}
		for _, nid := range b.Nodes {
			n := g.Node(nid)
			if n.IsControl() {
				return errors.Wrapf(ErrInvalidGraph, "block b%d: control node %v is not last", id, n)
			}
			if n.Block != id {
				return errors.Wrapf(ErrInvalidGraph, "block b%d: %v belongs to b%d", id, n, n.Block)
			}
			if err := checkInputs(n); err != nil {
				return err
			}
		}
		ctrl := g.Node(b.Control)
		if !ctrl.IsControl() {
			return errors.Wrapf(ErrInvalidGraph, "block b%d ends in %v", id, ctrl)
		}
		if err := checkInputs(ctrl); err != nil {
			return err
		}
		preds := b.Predecessors()
		for _, pid := range b.Phis() {
			phi := g.Node(pid)
			if phi.Op != OpPhi {
				return errors.Wrapf(ErrInvalidGraph, "block b%d: %v in phi list", id, phi)
			}
			if len(phi.Inputs) != len(preds) {
				return errors.Wrapf(ErrInvalidGraph, "block b%d: %v has %d inputs for %d predecessors", id, phi, len(phi.Inputs), len(preds))
			}
			if err := checkInputs(phi); err != nil {
				return err
			}
		}
		for i, e := range ctrl.Edges {
			if e.Target == NoBlock {
				return errors.Wrapf(ErrInvalidGraph, "block b%d: edge %d to offset %d unresolved", id, i, e.Offset)
			}
			if !inOrder.Contains(e.Target) {
				return errors.Wrapf(ErrInvalidGraph, "block b%d: edge %d targets unlisted block b%d", id, i, e.Target)
			}
			tp := g.Block(e.Target).Predecessors()
			if e.PredIndex < 0 || e.PredIndex >= len(tp) || tp[e.PredIndex] != id {
				return errors.Wrapf(ErrInvalidGraph, "block b%d: edge %d has predecessor index %d in b%d", id, i, e.PredIndex, e.Target)
			}
		}
	}
	reached := mapset.NewThreadUnsafeSet[BlockID]()
	work := []BlockID{g.order[0]}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		if !reached.Add(id) {
			continue
		}
		work = append(work, g.Successors(g.Block(id))...)
	}
	if unreached := inOrder.Difference(reached); unreached.Cardinality() > 0 {
		return errors.Wrapf(ErrInvalidGraph, "unreachable blocks %v", unreached.ToSlice())
	}
	return nil
}
