// Package isa declares the platform-facing contract §4.6's Code Emitter
// and §4.4's lowering/tweak/fixed-register-assignment stages are built
// against. Each concrete platform (x86, x64, arm64) implements Machine;
// the compiler package drives whichever Machine it is configured with
// without otherwise caring which one it got.
package isa

import "github.com/stjordanis/MOSA-Project/ir"

// RelocKind identifies how a relocation's addend combines with the final
// resolved symbol address, mirroring the `(link-type, target-symbol,
// section-offset, addend)` tuple of §4.6 and the `Link` call of
// IAssemblyLinker (§6).
type RelocKind byte

const (
	// RelocAbsolute writes the full resolved address at the relocation
	// site (used for data pointers and absolute call targets on 32-bit
	// platforms).
	RelocAbsolute RelocKind = iota
	// RelocRelative32 writes a 32-bit PC-relative displacement computed
	// from the instruction's own end, the common `call`/`jmp rel32` and
	// ARM `b`/`bl` encoding.
	RelocRelative32
)

// Relocation is a forward reference to a symbol the Code Emitter could not
// resolve to a concrete address while it was encoding, because the target
// lives in another method, another section, or a block not yet laid out.
// The linker resolves it during final section layout (§5 "final section
// layout is deferred to a single-threaded finalize phase").
type Relocation struct {
	Kind RelocKind
	// Offset is the byte offset within this method's emitted code where
	// the relocation site begins.
	Offset int
	// Target is the symbol this relocation resolves to.
	Target ir.SymbolRef
	// Addend is added to the resolved address before it is written.
	Addend int64
}

// CodeWriter accumulates a method's encoded bytes and the relocations its
// instructions requested, in block-layout order (§4.6 "For each node in
// block order"). Each isa package's EmitMethod writes into one of these
// per method compiled.
type CodeWriter struct {
	Bytes []byte
	Relocs []Relocation
}

// Offset returns the number of bytes written so far, i.e. the section
// offset the next instruction will be emitted at.
func (w *CodeWriter) Offset() int { return len(w.Bytes) }

// Emit appends raw encoded bytes.
func (w *CodeWriter) Emit(b ...byte) { w.Bytes = append(w.Bytes, b...) }

// Reloc requests a relocation at the current write offset plus siteOffset
// (the byte within the instruction where the relocated field starts),
// per §4.6's "request a relocation through the linker".
func (w *CodeWriter) Reloc(kind RelocKind, siteOffset int, target ir.SymbolRef, addend int64) {
	w.Relocs = append(w.Relocs, Relocation{Kind: kind, Offset: w.Offset() + siteOffset, Target: target, Addend: addend})
}

// PlatformDescriptor is the per-platform half of §4.1's Instruction Table:
// the generic ir.Opcode catalog describes arity and flow/flag effects;
// this describes how a specific platform encodes one. It carries no
// inverted-condition counterpart of ir.Descriptor.Opposite.
type PlatformDescriptor struct {
	Name string
	// EmitLegacy encodes op against w at the current write position,
	// given its resolved operands and (for constants needing relocation)
	// a symbol target.
	EmitLegacy func(w *CodeWriter, instr *ir.Instruction) error
}

// Machine is the platform-specific half of the pipeline: Platform
// Lowering, Platform Tweak, Fixed-Register Assignment, and the register
// allocator's Config, plus the Code Emitter itself (§4.4 steps 6-9, §4.6).
// compiler.MethodCompiler drives these through this interface so the rest
// of the pipeline (steps 1-5, 10) stays platform-agnostic.
type Machine interface {
	// Name identifies the target, e.g. "x64".
	Name() string

	// PointerSize is the native pointer width in bytes.
	PointerSize() int

	// Lower implements §4.4 step 6: Platform Lowering. It replaces generic
	// IR instructions in b with platform-specific instruction nodes
	// (still represented as ir.Instruction; "platform-specific" here means
	// using opcodes/operand shapes this Machine's later stages recognize,
	// not a distinct node type, consistent with §3's single Instruction
	// cell for every stage).
	Lower(b *ir.Builder) error

	// Tweak implements §4.4 step 7: Platform Tweak. It enforces encoding
	// constraints such as coercing a shift-count constant to 8 bits or
	// moving an immediate into a register before a Cmp that cannot
	// encode it directly.
	Tweak(b *ir.Builder) error

	// AssignFixedRegisters implements §4.4 step 8: binding operands
	// constrained to a specific physical register (shift-by-CL,
	// call-return EAX:EDX) before general register allocation runs.
	AssignFixedRegisters(b *ir.Builder) error

	// RegallocConfig returns the allocatable and scratch register pools
	// the register allocator should use for this Machine (§4.4 step 9).
	RegallocConfig() RegallocConfig

	// EmitMethod implements §4.6: the Code Emitter. b must be fully
	// allocated (no virtual registers remain) and frame must already
	// resolve every ir.StackLocal operand's final offset.
	EmitMethod(b *ir.Builder, frame Frame) (*CodeWriter, error)
}

// RegallocConfig mirrors regalloc.Config without isa importing the
// regalloc package directly (isa is lower in the dependency order than
// regalloc is driven from; compiler wires the two together).
type RegallocConfig struct {
	Allocatable map[ir.RegClass][]ir.PhysReg
	Scratch     map[ir.RegClass][]ir.PhysReg
}

// Frame is the platform-agnostic result of Stack Layout (§4.4 step 10):
// a method's parameter/local/spill slots resolved to concrete
// frame-pointer-relative offsets, plus the total frame size a prologue
// must reserve. Computing it is platform-agnostic aside from pointer
// size; consuming it (choosing which register is the frame pointer, and
// the sign of the offset) is each Machine's job.
type Frame struct {
	// Offsets maps every ir.StackSlotID used by the method to its
	// frame-pointer-relative byte offset.
	Offsets map[ir.StackSlotID]int32
	// Size is the total stack frame size in bytes, already rounded up to
	// this platform's stack alignment.
	Size int32
}
