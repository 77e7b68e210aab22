package ir

import "fmt"

// Builder owns one method's block list and virtual-register table: the
// "lifecycle" state described in §3 ("Blocks/nodes/operands created during
// CIL decoding, mutated by stages, destroyed when the method finishes
// emission"). A Builder is never shared across methods; the worker-pool
// model of §5 gives each in-flight method its own Builder.
type Builder struct {
	blocks     []*BasicBlock
	nextBlock  BasicBlockID
	entry      *BasicBlock
	exit       *BasicBlock
	curBlock   *BasicBlock

	nextVReg  VRegID
	vregTypes []Type // indexed by VRegID.

	// IsInSSAForm mirrors §3's method-compiler-state flag: true between
	// SSA Construction and Leave-SSA.
	IsInSSAForm bool

	// HasProtectedRegions disables optimizations unsafe across exception
	// edges (§3).
	HasProtectedRegions bool
}

// NewBuilder starts a fresh method graph with a pre-header entry block and
// a unique exit block, per §4.2 ("The block graph has a unique pre-header
// and a unique exit block added during construction").
func NewBuilder() *Builder {
	b := &Builder{}
	b.entry = b.allocBlock()
	b.exit = b.allocBlock()
	b.curBlock = b.entry
	return b
}

func (b *Builder) allocBlock() *BasicBlock {
	id := b.nextBlock
	b.nextBlock++
	blk := newBasicBlock(id)
	b.blocks = append(b.blocks, blk)
	return blk
}

// CreateBlock allocates a new, detached basic block.
func (b *Builder) CreateBlock() *BasicBlock { return b.allocBlock() }

func (b *Builder) EntryBlock() *BasicBlock { return b.entry }
func (b *Builder) ExitBlock() *BasicBlock  { return b.exit }

// Blocks returns every block created so far, including invalidated ones;
// callers that must skip invalid blocks should check BasicBlock.Valid.
func (b *Builder) Blocks() []*BasicBlock { return b.blocks }

func (b *Builder) SetCurrentBlock(blk *BasicBlock) { b.curBlock = blk }
func (b *Builder) CurrentBlock() *BasicBlock       { return b.curBlock }

// AllocVReg allocates a fresh, monotonically-increasing virtual register of
// type t and returns its (pre-SSA, version -1) operand. Per §3, a register
// never changes type once allocated.
func (b *Builder) AllocVReg(t Type) Operand {
	id := b.nextVReg
	b.nextVReg++
	b.vregTypes = append(b.vregTypes, t)
	return VirtualRegister(id, t)
}

// VRegType looks up the declared type of a virtual register by ID.
func (b *Builder) VRegType(id VRegID) Type { return b.vregTypes[id] }

// NumVRegs returns the number of virtual registers allocated so far.
func (b *Builder) NumVRegs() int { return len(b.vregTypes) }

func (b *Builder) newInstructionRaw(op Opcode) *Instruction {
	return &Instruction{opcode: op}
}

// insert appends instr to the current block and validates its arity
// against the opcode's descriptor (§4.1 contract).
func (b *Builder) insert(instr *Instruction) {
	instr.validateArity()
	b.curBlock.InsertInstruction(instr)
}

// --- Instruction constructors. Each returns the defined Value(s), if any. ---

func (b *Builder) Binary(op Opcode, typ Type, x, y Operand) Operand {
	res := b.AllocVReg(typ)
	instr := b.newInstructionRaw(op)
	instr.typ = typ
	instr.operands[0], instr.operands[1] = x, y
	instr.numFixed = 2
	instr.result1 = res
	b.insert(instr)
	return res
}

func (b *Builder) Unary(op Opcode, typ Type, x Operand) Operand {
	res := b.AllocVReg(typ)
	instr := b.newInstructionRaw(op)
	instr.typ = typ
	instr.operands[0] = x
	instr.numFixed = 1
	instr.result1 = res
	b.insert(instr)
	return res
}

func (b *Builder) Compare(cond Condition, x, y Operand) Operand {
	res := b.AllocVReg(Scalar(KindI32))
	instr := b.newInstructionRaw(OpcodeCompare)
	instr.cond = cond
	instr.operands[0], instr.operands[1] = x, y
	instr.numFixed = 2
	instr.result1 = res
	b.insert(instr)
	return res
}

func (b *Builder) Load(typ Type, addr Operand) Operand {
	res := b.AllocVReg(typ)
	instr := b.newInstructionRaw(OpcodeLoad)
	instr.typ = typ
	instr.operands[0] = addr
	instr.numFixed = 1
	instr.result1 = res
	b.insert(instr)
	return res
}

func (b *Builder) Store(addr, value Operand) {
	instr := b.newInstructionRaw(OpcodeStore)
	instr.operands[0], instr.operands[1] = addr, value
	instr.numFixed = 2
	b.insert(instr)
}

func (b *Builder) LoadField(typ Type, base Operand, offset int32) Operand {
	res := b.AllocVReg(typ)
	instr := b.newInstructionRaw(OpcodeLoadField)
	instr.typ = typ
	instr.operands[0] = base
	instr.operands[1] = ConstInt64(Scalar(KindI32), int64(offset))
	instr.numFixed = 2
	instr.result1 = res
	b.insert(instr)
	return res
}

func (b *Builder) StoreField(base Operand, offset int32, value Operand) {
	instr := b.newInstructionRaw(OpcodeStoreField)
	instr.operands[0] = base
	instr.operands[1] = ConstInt64(Scalar(KindI32), int64(offset))
	instr.extra = []Operand{value}
	instr.numFixed = 2
	b.insert(instr)
}

func (b *Builder) Move(typ Type, src Operand) Operand {
	res := b.AllocVReg(typ)
	instr := b.newInstructionRaw(OpcodeMove)
	instr.typ = typ
	instr.operands[0] = src
	instr.numFixed = 1
	instr.result1 = res
	b.insert(instr)
	return res
}

// Jump appends an unconditional branch to target. It carries no operands;
// the target's phi operands are filled in by SSA construction (§4.2).
func (b *Builder) Jump(target *BasicBlock) *Instruction {
	instr := b.newInstructionRaw(OpcodeJump)
	instr.target = target
	b.insert(instr)
	return instr
}

func (b *Builder) BrIfTrue(cond Operand, target *BasicBlock) *Instruction {
	instr := b.newInstructionRaw(OpcodeBrIfTrue)
	instr.operands[0] = cond
	instr.numFixed = 1
	instr.target = target
	b.insert(instr)
	return instr
}

func (b *Builder) BrIfFalse(cond Operand, target *BasicBlock) *Instruction {
	instr := b.newInstructionRaw(OpcodeBrIfFalse)
	instr.operands[0] = cond
	instr.numFixed = 1
	instr.target = target
	b.insert(instr)
	return instr
}

func (b *Builder) Return(values ...Operand) *Instruction {
	instr := b.newInstructionRaw(OpcodeReturn)
	instr.extra = values
	b.insert(instr)
	return instr
}

// Call emits a call instruction. Per §3 an instruction defines at most two
// results directly; a callee with more than two managed return values
// returns the rest via a compiler-inserted return buffer, which ABI
// lowering (compiler package) is responsible for wiring up, not Call
// itself.
func (b *Builder) Call(op Opcode, sig SymbolRef, results []Type, args ...Operand) (first, second Operand) {
	instr := b.newInstructionRaw(op)
	instr.callee = sig
	instr.extra = args
	if len(results) > 0 {
		instr.result1 = b.AllocVReg(results[0])
	}
	if len(results) > 1 {
		instr.result2, instr.hasResult2 = b.AllocVReg(results[1]), true
	}
	b.insert(instr)
	return instr.result1, instr.result2
}

// Phi creates a phi instruction in the current block with the given
// (value, source-block) pairs and returns its result. SSA construction is
// the only caller in normal operation; it supersedes callers who'd
// otherwise need to track phi shape by hand.
func (b *Builder) Phi(typ Type, sources []*BasicBlock, values []Operand) Operand {
	if len(sources) != len(values) {
		panic("BUG: Phi sources/values length mismatch")
	}
	res := b.AllocVReg(typ)
	instr := b.newInstructionRaw(OpcodePhi)
	instr.typ = typ
	instr.extra = values
	instr.phiBlocks = sources
	instr.result1 = res
	b.curBlock.PrependInstruction(instr)
	instr.validateArity()
	return res
}

// Redefine emits a move that redefines an existing pre-SSA virtual register
// in place, used by CIL decoding to implement stloc/starg: unlike every
// other constructor, it does not allocate a fresh virtual register, since
// SSA construction (ConstructSSA) needs to see the same VRegID defined at
// more than one program point in order to discover where a local's value
// merges and a phi is required.
func (b *Builder) Redefine(dst, src Operand) Operand {
	if dst.Residence != ResidenceVirtualRegister {
		panic("BUG: Redefine on a non-virtual-register operand")
	}
	instr := b.newInstructionRaw(OpcodeMove)
	instr.typ = dst.Type
	instr.operands[0] = src
	instr.numFixed = 1
	instr.result1 = dst
	b.insert(instr)
	return dst
}

// PhiAt materializes a phi instruction for an already-allocated virtual
// register vreg at the top of blk, with one placeholder operand per entry
// in sources (filled in later by ConstructSSA's renaming walk). Unlike
// Phi, which allocates a fresh virtual register for ad hoc use, PhiAt is
// used exclusively by SSA construction, which must place a phi that
// continues an existing pre-SSA variable's identity rather than mint a new
// one (§4.4 step 3).
func (b *Builder) PhiAt(blk *BasicBlock, typ Type, vreg VRegID, sources []*BasicBlock, values []Operand) *Instruction {
	if len(sources) != len(values) {
		panic("BUG: PhiAt sources/values length mismatch")
	}
	for i := range values {
		values[i] = VirtualRegister(vreg, typ)
	}
	instr := b.newInstructionRaw(OpcodePhi)
	instr.typ = typ
	instr.extra = values
	instr.phiBlocks = sources
	instr.result1 = VirtualRegister(vreg, typ)
	blk.PrependInstruction(instr)
	instr.validateArity()
	return instr
}

func (b *Builder) String() string {
	s := ""
	for _, blk := range b.blocks {
		if !blk.Valid() {
			continue
		}
		s += fmt.Sprintf("%s:\n", blk.Name())
		blk.ForEachInstruction(func(instr *Instruction) {
			s += "  " + instr.String() + "\n"
		})
	}
	return s
}
