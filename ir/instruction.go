package ir

import (
	"fmt"
	"strings"
)

// Opcode identifies an instruction's operation. This is the
// platform-independent half of §4.1's Instruction Table; isa packages
// define their own Opcode-like descriptors for platform-specific
// instructions produced by Platform Lowering.
type Opcode uint16

const (
	OpcodeInvalid Opcode = iota
	// OpcodeNop is the "empty" no-op placeholder instruction (§3: "an
	// empty node is a no-op placeholder that must be skipped by
	// traversals"). It is never constructed directly by decoding;
	// MakeEmpty() turns any instruction into one in place.
	OpcodeNop

	// --- Control flow. One of these, except OpcodePhi, always terminates
	// a non-degenerate basic block (§4.2).

	OpcodeJump
	OpcodeBrIfTrue
	OpcodeBrIfFalse
	OpcodeBrTable
	OpcodeReturn
	OpcodeCall
	OpcodeCallIndirect
	OpcodeCallVirtual
	OpcodeCallInterface

	// OpcodePhi is the pseudo-instruction described in §4.2: it appears
	// only contiguously at the top of a block, and carries a PhiBlocks
	// array parallel to its operand list.
	OpcodePhi

	// --- Arithmetic / bitwise, all two-address-convertible.
	OpcodeAdd
	OpcodeSub
	OpcodeMulSigned
	OpcodeMulUnsigned
	OpcodeDivSigned
	OpcodeDivUnsigned
	OpcodeRemSigned
	OpcodeRemUnsigned
	OpcodeAnd
	OpcodeOr
	OpcodeXor
	OpcodeShl
	OpcodeShrSigned
	OpcodeShrUnsigned
	OpcodeNeg
	OpcodeNot

	// OpcodeCompare produces an i32 0/1 value from comparing two operands
	// under a condition carried in Instruction.Cond.
	OpcodeCompare
	// OpcodeCompareIntBranch fuses a comparison with a conditional branch;
	// produced by platform lowering/tweak, this is one of the opcodes
	// whose trailing run at the end of a block forms the "terminator
	// group" referenced by §4.5 Leave-SSA.
	OpcodeCompareIntBranch

	// --- Memory.
	OpcodeLoad
	OpcodeStore
	OpcodeLoadField
	OpcodeStoreField
	OpcodeLoadElement
	OpcodeStoreElement
	OpcodeAddressOfField

	// --- Conversion.
	OpcodeIntToFloat
	OpcodeFloatToInt
	OpcodeIntExtend
	OpcodeIntTruncate
	OpcodeFloatExtend
	OpcodeFloatTruncate

	// --- Moves. CIL decoding emits OpcodeMove for local/argument stores
	// (Builder.Redefine); Leave-SSA and register allocation insert further
	// moves explicitly (§4.5, §4.4 step 9).
	OpcodeMove
	OpcodeMoveCompound
)

// FlowControl classifies how an instruction affects control flow, used to
// validate §4.2's "last node of every non-degenerate block" invariant.
type FlowControl byte

const (
	FlowFallThrough FlowControl = iota
	FlowBranch
	FlowConditionalBranch
	FlowReturn
	FlowSwitch
	FlowCall
)

// MemoryAccess classifies an instruction's memory side effects, used by
// InstructionGroupID-style reordering safety checks during optimization.
type MemoryAccess byte

const (
	MemoryNone MemoryAccess = iota
	MemoryRead
	MemoryWrite
	MemoryReadWrite
)

// FlagEffect records which hardware condition flags an instruction reads
// and/or modifies (§4.1).
type FlagEffect struct {
	ReadsZero, ReadsCarry, ReadsSign, ReadsOverflow, ReadsParity         bool
	ModifiesZero, ModifiesCarry, ModifiesSign, ModifiesOverflow, ModifiesParity bool
}

// Descriptor is the stable, process-wide-immutable catalog entry for an
// Opcode: its declared arity, flow-control kind, flag effects, and memory
// access class (§4.1's contract: "arity(opcode) = (rc, oc) is constant").
type Descriptor struct {
	Opcode       Opcode
	Name         string
	ResultCount  int
	OperandCount int // -1 means variable (e.g. Phi, Call): OperandCount() checks are skipped.
	Flow         FlowControl
	Flags        FlagEffect
	Memory       MemoryAccess
	// Opposite is the inverted condition's opcode, for conditional
	// branches/compares that support inversion. OpcodeInvalid if none.
	Opposite Opcode
	// ThreeToTwoAddress marks instructions the platform tweak stage may
	// need to rewrite from a 3-address SSA form into a 2-address
	// destructive form (dst==src1) to match ISA encoding constraints.
	ThreeToTwoAddress bool
}

var descriptors = buildDescriptorTable()

// DescriptorOf returns the immutable descriptor for an opcode. Descriptors
// are initialized once at package init and are read-only thereafter (§4.1,
// design note "Global mutable caches").
func DescriptorOf(op Opcode) *Descriptor {
	d, ok := descriptors[op]
	if !ok {
		panic(fmt.Sprintf("BUG: no descriptor registered for opcode %d", op))
	}
	return d
}

func buildDescriptorTable() map[Opcode]*Descriptor {
	t := make(map[Opcode]*Descriptor)
	add := func(d Descriptor) {
		dd := d
		t[d.Opcode] = &dd
	}

	add(Descriptor{Opcode: OpcodeNop, Name: "nop", ResultCount: 0, OperandCount: 0, Flow: FlowFallThrough})
	add(Descriptor{Opcode: OpcodeJump, Name: "jump", ResultCount: 0, OperandCount: -1, Flow: FlowBranch})
	add(Descriptor{Opcode: OpcodeBrIfTrue, Name: "br.true", ResultCount: 0, OperandCount: -1, Flow: FlowConditionalBranch, Opposite: OpcodeBrIfFalse})
	add(Descriptor{Opcode: OpcodeBrIfFalse, Name: "br.false", ResultCount: 0, OperandCount: -1, Flow: FlowConditionalBranch, Opposite: OpcodeBrIfTrue})
	add(Descriptor{Opcode: OpcodeBrTable, Name: "br.table", ResultCount: 0, OperandCount: -1, Flow: FlowSwitch})
	add(Descriptor{Opcode: OpcodeReturn, Name: "return", ResultCount: 0, OperandCount: -1, Flow: FlowReturn})
	add(Descriptor{Opcode: OpcodeCall, Name: "call", ResultCount: -1, OperandCount: -1, Flow: FlowCall, Memory: MemoryReadWrite})
	add(Descriptor{Opcode: OpcodeCallIndirect, Name: "call.indirect", ResultCount: -1, OperandCount: -1, Flow: FlowCall, Memory: MemoryReadWrite})
	add(Descriptor{Opcode: OpcodeCallVirtual, Name: "call.virt", ResultCount: -1, OperandCount: -1, Flow: FlowCall, Memory: MemoryReadWrite})
	add(Descriptor{Opcode: OpcodeCallInterface, Name: "call.iface", ResultCount: -1, OperandCount: -1, Flow: FlowCall, Memory: MemoryReadWrite})
	add(Descriptor{Opcode: OpcodePhi, Name: "phi", ResultCount: 1, OperandCount: -1, Flow: FlowFallThrough})

	bin := func(op Opcode, name string, flags FlagEffect) {
		add(Descriptor{Opcode: op, Name: name, ResultCount: 1, OperandCount: 2, Flow: FlowFallThrough, Flags: flags, ThreeToTwoAddress: true})
	}
	allFlags := FlagEffect{ModifiesZero: true, ModifiesCarry: true, ModifiesSign: true, ModifiesOverflow: true, ModifiesParity: true}
	bin(OpcodeAdd, "add", allFlags)
	bin(OpcodeSub, "sub", allFlags)
	bin(OpcodeMulSigned, "mul.s", allFlags)
	bin(OpcodeMulUnsigned, "mul.u", allFlags)
	bin(OpcodeDivSigned, "div.s", FlagEffect{})
	bin(OpcodeDivUnsigned, "div.u", FlagEffect{})
	bin(OpcodeRemSigned, "rem.s", FlagEffect{})
	bin(OpcodeRemUnsigned, "rem.u", FlagEffect{})
	bin(OpcodeAnd, "and", allFlags)
	bin(OpcodeOr, "or", allFlags)
	bin(OpcodeXor, "xor", allFlags)
	bin(OpcodeShl, "shl", FlagEffect{ModifiesCarry: true, ModifiesZero: true, ModifiesSign: true})
	bin(OpcodeShrSigned, "shr.s", FlagEffect{ModifiesCarry: true, ModifiesZero: true, ModifiesSign: true})
	bin(OpcodeShrUnsigned, "shr.u", FlagEffect{ModifiesCarry: true, ModifiesZero: true, ModifiesSign: true})

	add(Descriptor{Opcode: OpcodeNeg, Name: "neg", ResultCount: 1, OperandCount: 1, Flow: FlowFallThrough, Flags: allFlags, ThreeToTwoAddress: true})
	add(Descriptor{Opcode: OpcodeNot, Name: "not", ResultCount: 1, OperandCount: 1, Flow: FlowFallThrough, ThreeToTwoAddress: true})

	add(Descriptor{Opcode: OpcodeCompare, Name: "cmp", ResultCount: 1, OperandCount: 2, Flow: FlowFallThrough, Flags: FlagEffect{ReadsZero: true, ReadsCarry: true, ReadsSign: true, ReadsOverflow: true}})
	add(Descriptor{Opcode: OpcodeCompareIntBranch, Name: "cmp.br", ResultCount: 0, OperandCount: -1, Flow: FlowConditionalBranch})

	mem := func(op Opcode, name string, rc, oc int, access MemoryAccess) {
		add(Descriptor{Opcode: op, Name: name, ResultCount: rc, OperandCount: oc, Flow: FlowFallThrough, Memory: access})
	}
	mem(OpcodeLoad, "load", 1, 1, MemoryRead)
	mem(OpcodeStore, "store", 0, 2, MemoryWrite)
	mem(OpcodeLoadField, "load.field", 1, 2, MemoryRead)
	mem(OpcodeStoreField, "store.field", 0, 3, MemoryWrite)
	mem(OpcodeLoadElement, "load.elem", 1, 2, MemoryRead)
	mem(OpcodeStoreElement, "store.elem", 0, 3, MemoryWrite)
	mem(OpcodeAddressOfField, "addr.field", 1, 1, MemoryNone)

	conv := func(op Opcode, name string) {
		add(Descriptor{Opcode: op, Name: name, ResultCount: 1, OperandCount: 1, Flow: FlowFallThrough})
	}
	conv(OpcodeIntToFloat, "i2f")
	conv(OpcodeFloatToInt, "f2i")
	conv(OpcodeIntExtend, "iext")
	conv(OpcodeIntTruncate, "itrunc")
	conv(OpcodeFloatExtend, "fext")
	conv(OpcodeFloatTruncate, "ftrunc")

	add(Descriptor{Opcode: OpcodeMove, Name: "mov", ResultCount: 1, OperandCount: 1, Flow: FlowFallThrough})
	add(Descriptor{Opcode: OpcodeMoveCompound, Name: "mov.compound", ResultCount: 1, OperandCount: 1, Flow: FlowFallThrough, Memory: MemoryReadWrite})

	return t
}

// Condition is the comparison predicate carried by OpcodeCompare and
// OpcodeCompareIntBranch instructions.
type Condition byte

const (
	CondEqual Condition = iota
	CondNotEqual
	CondLessSigned
	CondLessUnsigned
	CondLessOrEqualSigned
	CondLessOrEqualUnsigned
	CondGreaterSigned
	CondGreaterUnsigned
	CondGreaterOrEqualSigned
	CondGreaterOrEqualUnsigned
)

// Opposite returns the negated condition, used to validate §8's
// "opposite(opposite(c)) = c" property.
func (c Condition) Opposite() Condition {
	switch c {
	case CondEqual:
		return CondNotEqual
	case CondNotEqual:
		return CondEqual
	case CondLessSigned:
		return CondGreaterOrEqualSigned
	case CondGreaterOrEqualSigned:
		return CondLessSigned
	case CondLessUnsigned:
		return CondGreaterOrEqualUnsigned
	case CondGreaterOrEqualUnsigned:
		return CondLessUnsigned
	case CondLessOrEqualSigned:
		return CondGreaterSigned
	case CondGreaterSigned:
		return CondLessOrEqualSigned
	case CondLessOrEqualUnsigned:
		return CondGreaterUnsigned
	case CondGreaterUnsigned:
		return CondLessOrEqualUnsigned
	default:
		panic("BUG: unknown condition")
	}
}

func (c Condition) String() string {
	names := [...]string{"eq", "ne", "lt.s", "lt.u", "le.s", "le.u", "gt.s", "gt.u", "ge.s", "ge.u"}
	return names[c]
}

// Instruction is the fixed-shape cell of §3: opcode identity, up to two
// results, a fixed set of operand slots plus an overflow slice, an
// optional associated type, an optional phi-source-block array, and
// intrusive list pointers. Every node, regardless of stage, is this same
// struct — stages mutate it in place rather than rebuilding a new IR.
type Instruction struct {
	opcode Opcode

	result1, result2 Operand
	hasResult2       bool

	operands   [3]Operand
	numFixed   int
	extra      []Operand // operands beyond the 3 fixed slots (calls, phi, br.table).

	typ Type
	// cond is valid only for OpcodeCompare/OpcodeCompareIntBranch.
	cond Condition

	blk *BasicBlock
	// target is the branch target block for Jump/BrIfTrue/BrIfFalse and
	// the default target for BrTable (whose extra targets live in
	// branchTargets).
	target        *BasicBlock
	branchTargets []*BasicBlock

	// phiBlocks is valid only when opcode == OpcodePhi: phiBlocks[i] names
	// the predecessor block that operand i (in extra) flows from (§3, §4.2).
	phiBlocks []*BasicBlock

	// callee is valid for Call/CallIndirect/CallVirtual/CallInterface.
	callee SymbolRef
	// vtableSlot/ifaceSlot are valid for CallVirtual/CallInterface.
	vtableSlot int
	ifaceSlot  int

	empty bool

	prev, next *Instruction
}

// Opcode returns this node's opcode.
func (i *Instruction) Opcode() Opcode { return i.opcode }

// Descriptor returns the catalog entry for this node's opcode.
func (i *Instruction) Descriptor() *Descriptor { return DescriptorOf(i.opcode) }

// Empty reports whether this is a no-op placeholder (§3).
func (i *Instruction) Empty() bool { return i.empty }

// MakeEmpty turns this node into a no-op placeholder in place, preserving
// its position in the block's list (§4.2's "empty a node").
func (i *Instruction) MakeEmpty() {
	i.opcode = OpcodeNop
	i.result1, i.result2 = Operand{}, Operand{}
	i.hasResult2 = false
	i.operands = [3]Operand{}
	i.numFixed = 0
	i.extra = nil
	i.target = nil
	i.branchTargets = nil
	i.phiBlocks = nil
	i.callee = SymbolRef{}
	i.empty = true
}

func (i *Instruction) Type() Type     { return i.typ }
func (i *Instruction) Block() *BasicBlock { return i.blk }
func (i *Instruction) Prev() *Instruction { return i.prev }
func (i *Instruction) Next() *Instruction { return i.next }
func (i *Instruction) Cond() Condition    { return i.cond }
func (i *Instruction) Target() *BasicBlock { return i.target }
func (i *Instruction) BranchTargets() []*BasicBlock { return i.branchTargets }
func (i *Instruction) Callee() SymbolRef   { return i.callee }
func (i *Instruction) VTableSlot() int     { return i.vtableSlot }
func (i *Instruction) InterfaceSlot() int  { return i.ifaceSlot }

// ResultCount returns the number of Values this instruction defines (0..2
// per §3).
func (i *Instruction) ResultCount() int {
	if i.hasResult2 {
		return 2
	}
	if i.result1.Valid() {
		return 1
	}
	return 0
}

// Results returns the first and (optional) second result operand.
func (i *Instruction) Results() (first, second Operand, hasSecond bool) {
	return i.result1, i.result2, i.hasResult2
}

// OperandCount returns the number of operand slots in use.
func (i *Instruction) OperandCount() int { return i.numFixed + len(i.extra) }

// Operand returns the n-th operand slot.
func (i *Instruction) Operand(n int) Operand {
	if n < i.numFixed {
		return i.operands[n]
	}
	return i.extra[n-i.numFixed]
}

// SetOperand overwrites the n-th operand slot in place (used by Leave-SSA
// and register allocation to substitute operands without rebuilding the
// node, per §4.5/§5's "per-method allocations... later stages reuse"
// discipline).
func (i *Instruction) SetOperand(n int, v Operand) {
	if n < i.numFixed {
		i.operands[n] = v
		return
	}
	i.extra[n-i.numFixed] = v
}

// SetResult overwrites the first (or, with second=true, the second)
// result operand in place.
func (i *Instruction) SetResult(v Operand, second bool) {
	if second {
		i.result2, i.hasResult2 = v, true
	} else {
		i.result1 = v
	}
}

// NewRawMove constructs a Move instruction without allocating a virtual
// register. Builder's constructors always mint a fresh virtual register
// for their result, which is wrong for passes that run after Leave-SSA and
// register allocation and must only ever reference physical registers,
// stack locals, and constants (Leave-SSA's phi-resolving copies and
// register allocation's spill/fill code both need this).
func NewRawMove(dst, src Operand) *Instruction {
	instr := &Instruction{opcode: OpcodeMove}
	instr.typ = dst.Type
	instr.operands[0] = src
	instr.numFixed = 1
	instr.result1 = dst
	instr.validateArity()
	return instr
}

// NewRawMoveCompound is NewRawMove's counterpart for value types wider
// than a scalar register (§4.3 IsCompoundType, §4.5): the encoder lowers
// OpcodeMoveCompound to a multi-word or memcpy-style sequence rather than
// a single register move.
func NewRawMoveCompound(dst, src Operand) *Instruction {
	instr := &Instruction{opcode: OpcodeMoveCompound}
	instr.typ = dst.Type
	instr.operands[0] = src
	instr.numFixed = 1
	instr.result1 = dst
	instr.validateArity()
	return instr
}

// NewRawCompareIntBranch constructs a fused compare-and-branch node
// without going through Builder, for platform lowering passes that fuse a
// Compare immediately followed by the BrIfTrue/BrIfFalse consuming its
// result (§4.4 step 6, §4.5's terminator-group concept). target is the
// destination taken when the comparison (under cond) holds; the
// not-taken path is whatever unconditional Jump already follows in the
// block.
func NewRawCompareIntBranch(cond Condition, x, y Operand, target *BasicBlock) *Instruction {
	instr := &Instruction{opcode: OpcodeCompareIntBranch}
	instr.operands[0] = x
	instr.operands[1] = y
	instr.numFixed = 2
	instr.cond = cond
	instr.target = target
	instr.validateArity()
	return instr
}

// PhiSources returns, for opcode==OpcodePhi, the source-block array
// parallel to this instruction's operand list (§3, §4.2).
func (i *Instruction) PhiSources() []*BasicBlock { return i.phiBlocks }

// validateArity panics with an invariant error if this node's shape
// disagrees with its descriptor (§4.1 contract).
func (i *Instruction) validateArity() {
	d := i.Descriptor()
	if d.ResultCount >= 0 && i.ResultCount() != d.ResultCount {
		panic(fmt.Sprintf("BUG: %s result count %d != descriptor %d", d.Name, i.ResultCount(), d.ResultCount))
	}
	if d.OperandCount >= 0 && i.OperandCount() != d.OperandCount {
		panic(fmt.Sprintf("BUG: %s operand count %d != descriptor %d", d.Name, i.OperandCount(), d.OperandCount))
	}
}

func (i *Instruction) String() string {
	if i.empty {
		return "nop"
	}
	var b strings.Builder
	if i.hasResult2 {
		fmt.Fprintf(&b, "%s, %s = ", i.result1, i.result2)
	} else if i.result1.Valid() {
		fmt.Fprintf(&b, "%s = ", i.result1)
	}
	b.WriteString(i.Descriptor().Name)
	if i.opcode == OpcodeCompare || i.opcode == OpcodeCompareIntBranch {
		b.WriteString("." + i.cond.String())
	}
	for n := 0; n < i.OperandCount(); n++ {
		b.WriteString(" ")
		b.WriteString(i.Operand(n).String())
	}
	if i.target != nil {
		fmt.Fprintf(&b, " -> %s", i.target.Name())
	}
	for _, t := range i.branchTargets {
		fmt.Fprintf(&b, ", %s", t.Name())
	}
	return b.String()
}
