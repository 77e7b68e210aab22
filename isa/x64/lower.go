package x64

import (
	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
)

func (*Machine) Lower(b *ir.Builder) error {
	return isa.LowerFuseCompareBranch(b)
}

func (*Machine) Tweak(b *ir.Builder) error {
	if err := isa.TweakCompareOperands(b); err != nil {
		return err
	}
	if err := isa.TweakTwoAddress(b); err != nil {
		return err
	}
	return isa.TweakShiftImmediate(b, 0xFF)
}

func (*Machine) AssignFixedRegisters(b *ir.Builder) error {
	if err := isa.AssignShiftCL(b, RegRCX); err != nil {
		return err
	}
	if err := isa.AssignMulUnsignedEAX(b, RegRAX); err != nil {
		return err
	}
	return isa.AssignDivRemEAXEDX(b, RegRAX, RegRDX)
}

// RegallocConfig reserves rax/rcx/rdx for the same multiply/divide/shift
// conventions x86 reserves eax/ecx/edx for (§4.4 step 8), leaving rbx/rsi/
// rdi generally allocatable out of the 8 GPRs this target models.
func (*Machine) RegallocConfig() isa.RegallocConfig {
	return isa.RegallocConfig{
		Allocatable: map[ir.RegClass][]ir.PhysReg{
			ir.RegClassInt:   {RegRBX, RegRSI, RegRDI},
			ir.RegClassFloat: {xmmReg(0), xmmReg(1), xmmReg(2), xmmReg(3), xmmReg(4), xmmReg(5), xmmReg(6)},
		},
		Scratch: map[ir.RegClass][]ir.PhysReg{
			ir.RegClassInt:   {RegRAX},
			ir.RegClassFloat: {xmmReg(7)},
		},
	}
}
