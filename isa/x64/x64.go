// Package x64 implements isa.Machine for the 64-bit x86-64 target: the
// same ModRM-based ALU/move/branch encodings as isa/x86, widened to
// 64-bit operands via a REX.W prefix. Only the low 8 GPRs (rax..rdi) are
// used, so no REX.R/X/B extension bit is ever needed and every ModRM
// reg/rm field still fits the plain 3-bit encoding x86 uses; this keeps
// the two encoders structurally parallel at the cost of the extended
// r8-r15 register file, a deliberate scope reduction noted in the
// project's design notes.
package x64

import "github.com/stjordanis/MOSA-Project/ir"

var (
	RegRAX = ir.PhysReg{Class: ir.RegClassInt, Num: 0}
	RegRCX = ir.PhysReg{Class: ir.RegClassInt, Num: 1}
	RegRDX = ir.PhysReg{Class: ir.RegClassInt, Num: 2}
	RegRBX = ir.PhysReg{Class: ir.RegClassInt, Num: 3}
	RegRSP = ir.PhysReg{Class: ir.RegClassInt, Num: 4}
	RegRBP = ir.PhysReg{Class: ir.RegClassInt, Num: 5}
	RegRSI = ir.PhysReg{Class: ir.RegClassInt, Num: 6}
	RegRDI = ir.PhysReg{Class: ir.RegClassInt, Num: 7}
)

func xmmReg(n uint8) ir.PhysReg { return ir.PhysReg{Class: ir.RegClassFloat, Num: n} }

// Machine implements isa.Machine for config.PlatformX64.
type Machine struct{}

func New() *Machine { return &Machine{} }

func (*Machine) Name() string { return "x64" }

func (*Machine) PointerSize() int { return 8 }
