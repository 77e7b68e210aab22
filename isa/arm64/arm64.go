// Package arm64 implements isa.Machine for both config.PlatformARMv6 and
// config.PlatformARMv8, modeling each as the same fixed-32-bit-word
// instruction format differing only in the width of the integer
// registers it operates on (the sf bit every ALU/load/store encoding
// below carries): 64-bit for ARMv8, 32-bit for ARMv6. Real ARMv6 is a
// 32-bit A32/Thumb-interworking architecture with a different encoding
// entirely; modeling it instead as "the A64-style encoding with sf=0" is
// a deliberate scope reduction covering a representative integer opcode
// subset (ALU register/immediate forms, loads/stores through an
// unscaled 9-bit signed offset, conditional branch, call/return) rather
// than a historically faithful ARMv6 encoder.
//
// Unlike the x86 family, this target has no implicit-register ALU
// conventions: every integer instruction names all of its operand
// registers explicitly, so AssignFixedRegisters has nothing to do here.
package arm64

import "github.com/stjordanis/MOSA-Project/ir"

// Integer registers follow AArch64 numbering: x0-x28 general purpose,
// x29 the frame pointer, x30 the link register, sp/xzr (context
// dependent) encoded as register 31.
var (
	RegX0  = ir.PhysReg{Class: ir.RegClassInt, Num: 0}
	RegX9  = ir.PhysReg{Class: ir.RegClassInt, Num: 9}
	RegX10 = ir.PhysReg{Class: ir.RegClassInt, Num: 10}
	RegX11 = ir.PhysReg{Class: ir.RegClassInt, Num: 11}
	RegX12 = ir.PhysReg{Class: ir.RegClassInt, Num: 12}
	RegX13 = ir.PhysReg{Class: ir.RegClassInt, Num: 13}
	RegX14 = ir.PhysReg{Class: ir.RegClassInt, Num: 14}
	RegX15 = ir.PhysReg{Class: ir.RegClassInt, Num: 15}
	RegX16 = ir.PhysReg{Class: ir.RegClassInt, Num: 16} // ip0, reserved as scratch per AAPCS64
	RegFP  = ir.PhysReg{Class: ir.RegClassInt, Num: 29}
	RegLR  = ir.PhysReg{Class: ir.RegClassInt, Num: 30}
	RegXZR = ir.PhysReg{Class: ir.RegClassInt, Num: 31}
	RegSP  = ir.PhysReg{Class: ir.RegClassInt, Num: 31}
)

// Machine implements isa.Machine for config.PlatformARMv6 and
// config.PlatformARMv8. is64 selects the sf bit baked into every ALU,
// move and compare encoding; ptrSize follows config.Platform.PointerSize.
type Machine struct {
	name    string
	is64    bool
	ptrSize int
}

func NewARMv8() *Machine { return &Machine{name: "armv8", is64: true, ptrSize: 8} }
func NewARMv6() *Machine { return &Machine{name: "armv6", is64: false, ptrSize: 4} }

func (m *Machine) Name() string { return m.name }

func (m *Machine) PointerSize() int { return m.ptrSize }

func (m *Machine) sf() uint32 {
	if m.is64 {
		return 1
	}
	return 0
}
