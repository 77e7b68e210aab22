package ir

import "fmt"

// BasicBlockID uniquely identifies a BasicBlock within a method.
type BasicBlockID uint32

// predInfo records one predecessor edge: the predecessor block and the
// branch instruction in it that targets us.
type predInfo struct {
	blk    *BasicBlock
	branch *Instruction
}

// BasicBlock is an ordered list of Instruction nodes with a single entry
// (the first node) and a single exit terminator (§3). The graph carries a
// unique pre-header and a unique exit block, both added by NewBuilder.
type BasicBlock struct {
	id         BasicBlockID
	root, tail *Instruction

	preds []predInfo
	succs []*BasicBlock

	invalid bool

	// Dominance info, populated by ir/pass's dominance pass.
	idom             *BasicBlock
	domChildren      []*BasicBlock
	domFrontier      []*BasicBlock
	reversePostOrder int
	loopHeader       bool
}

func newBasicBlock(id BasicBlockID) *BasicBlock {
	return &BasicBlock{id: id}
}

func (b *BasicBlock) ID() BasicBlockID { return b.id }

func (b *BasicBlock) Name() string { return fmt.Sprintf("blk%d", b.id) }

func (b *BasicBlock) Valid() bool { return !b.invalid }

func (b *BasicBlock) Invalidate() { b.invalid = true }

func (b *BasicBlock) Preds() []*BasicBlock {
	out := make([]*BasicBlock, len(b.preds))
	for i, p := range b.preds {
		out[i] = p.blk
	}
	return out
}

func (b *BasicBlock) PredBranch(i int) *Instruction { return b.preds[i].branch }

func (b *BasicBlock) PredCount() int { return len(b.preds) }

func (b *BasicBlock) Succs() []*BasicBlock { return b.succs }

func (b *BasicBlock) Root() *Instruction { return b.root }
func (b *BasicBlock) Tail() *Instruction { return b.tail }

func (b *BasicBlock) IDom() *BasicBlock          { return b.idom }
func (b *BasicBlock) DomChildren() []*BasicBlock { return b.domChildren }
func (b *BasicBlock) DomFrontier() []*BasicBlock { return b.domFrontier }
func (b *BasicBlock) LoopHeader() bool           { return b.loopHeader }
func (b *BasicBlock) ReversePostOrder() int       { return b.reversePostOrder }

// The Set*/Add*/Mark* mutators below are written to by ir/pass's dominance
// computation. They live here, rather than making the fields exported
// directly, so BasicBlock keeps a single place that documents which of its
// fields are pass-computed derived data versus graph structure.

func (b *BasicBlock) SetReversePostOrder(n int) { b.reversePostOrder = n }
func (b *BasicBlock) SetIDom(idom *BasicBlock)  { b.idom = idom }
func (b *BasicBlock) AddDomChild(child *BasicBlock) {
	b.domChildren = append(b.domChildren, child)
}
func (b *BasicBlock) AddDomFrontier(blk *BasicBlock) {
	for _, f := range b.domFrontier {
		if f == blk {
			return
		}
	}
	b.domFrontier = append(b.domFrontier, blk)
}
func (b *BasicBlock) MarkLoopHeader() { b.loopHeader = true }

// addPred registers blk->b as an edge via the given branch instruction.
func (b *BasicBlock) addPred(blk *BasicBlock, branch *Instruction) {
	b.preds = append(b.preds, predInfo{blk: blk, branch: branch})
	blk.succs = append(blk.succs, b)
}

// InsertInstruction appends next to the tail of this block, and wires up
// predecessor/successor edges if next is a branch (§4.2).
func (b *BasicBlock) InsertInstruction(next *Instruction) {
	if b.tail != nil {
		b.tail.next = next
		next.prev = b.tail
	} else {
		b.root = next
	}
	b.tail = next
	next.blk = b
	b.wireEdges(next)
}

// PrependInstruction inserts next at the very head of the block, before
// any existing phis — used only by SSA construction when materializing new
// phi nodes (§4.2 "Phi nodes appear only at the top of blocks").
func (b *BasicBlock) PrependInstruction(next *Instruction) {
	next.blk = b
	if b.root == nil {
		b.root, b.tail = next, next
		return
	}
	next.next = b.root
	b.root.prev = next
	b.root = next
}

// InsertBefore inserts next immediately before cursor.
func (b *BasicBlock) InsertBefore(cursor, next *Instruction) {
	next.blk = b
	prev := cursor.prev
	next.prev, next.next = prev, cursor
	cursor.prev = next
	if prev != nil {
		prev.next = next
	} else {
		b.root = next
	}
}

// InsertAfter inserts next immediately after cursor.
func (b *BasicBlock) InsertAfter(cursor, next *Instruction) {
	next.blk = b
	nx := cursor.next
	next.prev, next.next = cursor, nx
	cursor.next = next
	if nx != nil {
		nx.prev = next
	} else {
		b.tail = next
	}
	b.wireEdges(next)
}

func (b *BasicBlock) wireEdges(next *Instruction) {
	switch next.opcode {
	case OpcodeJump:
		next.target.addPred(b, next)
	case OpcodeBrIfTrue, OpcodeBrIfFalse:
		next.target.addPred(b, next)
	case OpcodeBrTable:
		next.target.addPred(b, next)
		for _, t := range next.branchTargets {
			t.addPred(b, next)
		}
	}
}

// Split splits this block at cursor: a new block is created starting at
// cursor (inclusive), an unconditional Jump from the original block to the
// new one is appended, and the new block's successors become the original
// tail's successors. Used by protected-region (exception handling)
// materialization (§4.2).
func (b *BasicBlock) Split(build *Builder, cursor *Instruction) *BasicBlock {
	nb := build.allocBlock()
	nb.root = cursor
	nb.tail = b.tail
	for n := cursor; n != nil; n = n.next {
		n.blk = nb
	}
	if cursor.prev != nil {
		cursor.prev.next = nil
	}
	cursor.prev = nil
	b.tail = nil

	// Re-home successors: any branch at the tail of nb now belongs to nb.
	if nb.tail != nil {
		switch nb.tail.opcode {
		case OpcodeJump, OpcodeBrIfTrue, OpcodeBrIfFalse, OpcodeBrTable:
			b.retargetSuccessorsTo(nb)
		}
	}

	jump := build.newInstructionRaw(OpcodeJump)
	jump.target = nb
	b.InsertInstruction(jump)
	return nb
}

// RewireBranch updates every predecessor-edge entry recorded against b
// for old's target(s) to point at new instead, leaving edge counts
// unchanged. Used when a platform lowering pass replaces one terminator
// with an equivalent one, e.g. fusing Compare+BrIfTrue into a single
// CompareIntBranch (§4.4 step 6).
func (b *BasicBlock) RewireBranch(old, new *Instruction) {
	retarget := func(t *BasicBlock) {
		for i := range t.preds {
			if t.preds[i].blk == b && t.preds[i].branch == old {
				t.preds[i].branch = new
				return
			}
		}
	}
	if old.target != nil {
		retarget(old.target)
	}
	for _, t := range old.branchTargets {
		retarget(t)
	}
}

// retargetSuccessorsTo moves every predecessor-edge entry in b's
// successors that was recorded against b to point at replacement instead,
// used when Split moves the terminator to a new block.
func (b *BasicBlock) retargetSuccessorsTo(replacement *BasicBlock) {
	for _, succ := range b.succs {
		for i := range succ.preds {
			if succ.preds[i].blk == b {
				succ.preds[i].blk = replacement
			}
		}
	}
	replacement.succs = b.succs
	b.succs = nil
}

// ForEachInstruction walks the block's instructions in program order,
// skipping empty nodes (§4.2's "skipping empty ones").
func (b *BasicBlock) ForEachInstruction(f func(*Instruction)) {
	for n := b.root; n != nil; n = n.next {
		if n.empty {
			continue
		}
		f(n)
	}
}

// ForEachInstructionReverse walks the block's instructions backward,
// skipping empty nodes.
func (b *BasicBlock) ForEachInstructionReverse(f func(*Instruction)) {
	for n := b.tail; n != nil; n = n.prev {
		if n.empty {
			continue
		}
		f(n)
	}
}

// Phis returns the contiguous run of OpcodePhi instructions at the top of
// the block (§4.2).
func (b *BasicBlock) Phis() []*Instruction {
	var out []*Instruction
	for n := b.root; n != nil; n = n.next {
		if n.empty {
			continue
		}
		if n.opcode != OpcodePhi {
			break
		}
		out = append(out, n)
	}
	return out
}

// Terminator returns the last non-empty instruction, which per §4.2 must
// have a branch/return/switch flow-control kind for any non-degenerate
// block.
func (b *BasicBlock) Terminator() *Instruction {
	for n := b.tail; n != nil; n = n.prev {
		if !n.empty {
			return n
		}
	}
	return nil
}

// TerminatorGroup returns the first instruction of the trailing contiguous
// run of branch instructions (OpcodeCompareIntBranch, OpcodeJump,
// OpcodeBrIfTrue, OpcodeBrIfFalse, OpcodeBrTable) at the end of the block,
// per §4.5's definition used to place Leave-SSA's phi-resolving copies
// immediately before it. Empty instructions inside the run are skipped.
func (b *BasicBlock) TerminatorGroup() *Instruction {
	var first *Instruction
	for n := b.tail; n != nil; n = n.prev {
		if n.empty {
			continue
		}
		if n.opcode == OpcodeCompareIntBranch || n.opcode == OpcodeJump ||
			n.opcode == OpcodeBrIfTrue || n.opcode == OpcodeBrIfFalse || n.opcode == OpcodeBrTable {
			first = n
			continue
		}
		break
	}
	return first
}
