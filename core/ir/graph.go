// Package ir is the graph representation shared by the graph builder and the
// register allocator. Nodes and blocks live in per-graph arenas and refer to
// each other by index.
package ir

import "fmt"

// Graph owns every node and block of one compilation.
type Graph struct {
	Name string

	nodes  arena[Node]
	blocks arena[BasicBlock]
	order  []BlockID
}

// NewGraph returns an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{Name: name}
}

// NewNode allocates a node outside of any block.
func (g *Graph) NewNode(op Op, inputs ...NodeID) *Node {
	id, n := g.nodes.alloc()
	*n = Node{
		ID:                     NodeID(id),
		Op:                     op,
		Block:                  NoBlock,
		Inputs:                 append([]NodeID(nil), inputs...),
		Pos:                    -1,
		LiveEnd:                -1,
		NextPostDominatingHole: NoNode,
	}
	return n
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) *Node {
	n := g.nodes.at(int(id))
	if n == nil {
		panic(fmt.Sprintf("%s: no node n%d", g.Name, id))
	}
	return n
}

// NumNodes is the number of nodes allocated so far.
func (g *Graph) NumNodes() int { return g.nodes.len() }

// NewBlock allocates an unfinished block. It joins the block order only once
// finished and added.
func (g *Graph) NewBlock(offset int, function string) *BasicBlock {
	id, b := g.blocks.alloc()
	*b = BasicBlock{
		ID:          BlockID(id),
		Offset:      offset,
		Function:    function,
		Control:     NoNode,
		Predecessor: NoBlock,
	}
	return b
}

// Block returns the block with the given id.
func (g *Graph) Block(id BlockID) *BasicBlock {
	b := g.blocks.at(int(id))
	if b == nil {
		panic(fmt.Sprintf("%s: no block b%d", g.Name, id))
	}
	return b
}

// NumBlocks counts blocks in the order.
func (g *Graph) NumBlocks() int { return len(g.order) }

// Add appends a finished block to the block order.
func (g *Graph) Add(id BlockID) {
	if !g.Block(id).IsFinished() {
		panic(fmt.Sprintf("%s: adding unfinished block b%d", g.Name, id))
	}
	g.order = append(g.order, id)
}

// Blocks returns the blocks in order.
func (g *Graph) Blocks() []BlockID { return g.order }

// Append adds n to the end of block b, before its control node.
func (g *Graph) Append(b *BasicBlock, n *Node) {
	if b.IsFinished() {
		panic(fmt.Sprintf("%s: appending n%d to finished block b%d", g.Name, n.ID, b.ID))
	}
	n.Block = b.ID
	b.Nodes = append(b.Nodes, n.ID)
}

// SetControl finishes b with control node n.
func (g *Graph) SetControl(b *BasicBlock, n *Node) {
	if !n.IsControl() {
		panic(fmt.Sprintf("%s: %v is not a control node", g.Name, n))
	}
	if b.IsFinished() {
		panic(fmt.Sprintf("%s: block b%d already finished", g.Name, b.ID))
	}
	n.Block = b.ID
	b.Control = n.ID
}

// EdgeRef names edge Index of the control node ending Block.
type EdgeRef struct {
	Block BlockID
	Index int
}

// Edge returns the referenced edge.
func (g *Graph) Edge(ref EdgeRef) *Edge {
	b := g.Block(ref.Block)
	return &g.Node(b.Control).Edges[ref.Index]
}

// Successors lists the targets of b's control node.
func (g *Graph) Successors(b *BasicBlock) []BlockID {
	ctrl := g.Node(b.Control)
	succs := make([]BlockID, len(ctrl.Edges))
	for i, e := range ctrl.Edges {
		succs[i] = e.Target
	}
	return succs
}

// Uses counts, for every node, how many inputs refer to it, including phi
// inputs.
func (g *Graph) Uses() []int {
	uses := make([]int, g.NumNodes())
	for _, id := range g.order {
		b := g.Block(id)
		for _, phi := range b.Phis() {
			for _, in := range g.Node(phi).Inputs {
				uses[in]++
			}
		}
		for _, n := range b.Nodes {
			for _, in := range g.Node(n).Inputs {
				uses[in]++
			}
		}
		for _, in := range g.Node(b.Control).Inputs {
			uses[in]++
		}
	}
	return uses
}
