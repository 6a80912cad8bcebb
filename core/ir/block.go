package ir

// BlockID indexes a block in its graph's arena.
type BlockID int32

// NoBlock is the absent block.
const NoBlock BlockID = -1

// MergeInfo is what a merge point leaves on its block: the predecessors in
// merge order, the phis, and every value live on entry.
type MergeInfo struct {
	Offset       int
	Loop         bool
	Predecessors []BlockID
	Phis         []NodeID
	LiveIn       []NodeID
}

// BasicBlock is a straight-line run of nodes ending in one control node.
type BasicBlock struct {
	ID BlockID
	// Offset is the bytecode offset the block starts at, or -1 for
	// prologues.
	Offset int
	// Function names the bytecode the block was built from.
	Function string
	Depth    int
	Nodes    []NodeID
	Control  NodeID
	Merge    *MergeInfo
	// Predecessor is the single predecessor of blocks without merge info.
	Predecessor BlockID
	Deferred    bool
}

// IsFinished reports whether the control node has been set.
func (b *BasicBlock) IsFinished() bool { return b.Control != NoNode }

// HasMerge reports whether the block starts at a merge point.
func (b *BasicBlock) HasMerge() bool { return b.Merge != nil }

// Phis returns the block's phis.
func (b *BasicBlock) Phis() []NodeID {
	if b.Merge == nil {
		return nil
	}
	return b.Merge.Phis
}

// Predecessors lists predecessor blocks in phi input order.
func (b *BasicBlock) Predecessors() []BlockID {
	if b.Merge != nil {
		return b.Merge.Predecessors
	}
	if b.Predecessor == NoBlock {
		return nil
	}
	return []BlockID{b.Predecessor}
}

// IsLoopHeader reports whether the block heads a loop.
func (b *BasicBlock) IsLoopHeader() bool { return b.Merge != nil && b.Merge.Loop }
