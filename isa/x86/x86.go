// Package x86 implements isa.Machine for the 32-bit x86 target: legacy
// ModRM encodings with no REX prefix, an 8-register file, and the
// EAX/EDX/CL fixed-register conventions the instruction set imposes on
// multiply, divide and variable shifts.
package x86

import "github.com/stjordanis/MOSA-Project/ir"

// Integer register file, numbered the way the ISA itself numbers them in
// ModRM/SIB bytes so a PhysReg's Num can be written directly with no
// translation table.
var (
	RegEAX = ir.PhysReg{Class: ir.RegClassInt, Num: 0}
	RegECX = ir.PhysReg{Class: ir.RegClassInt, Num: 1}
	RegEDX = ir.PhysReg{Class: ir.RegClassInt, Num: 2}
	RegEBX = ir.PhysReg{Class: ir.RegClassInt, Num: 3}
	RegESP = ir.PhysReg{Class: ir.RegClassInt, Num: 4}
	RegEBP = ir.PhysReg{Class: ir.RegClassInt, Num: 5}
	RegESI = ir.PhysReg{Class: ir.RegClassInt, Num: 6}
	RegEDI = ir.PhysReg{Class: ir.RegClassInt, Num: 7}
)

// xmmReg builds the n-th SSE register, used for the float register class.
func xmmReg(n uint8) ir.PhysReg { return ir.PhysReg{Class: ir.RegClassFloat, Num: n} }

// Machine implements isa.Machine for config.PlatformX86.
type Machine struct{}

func New() *Machine { return &Machine{} }

func (*Machine) Name() string { return "x86" }

func (*Machine) PointerSize() int { return 4 }
