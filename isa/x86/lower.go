package x86

import (
	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
)

// Lower implements §4.4 step 6. x86 needs no opcode substitution beyond
// the shared Compare+Branch fusion every Machine in this package performs:
// every ir.Opcode this target handles already corresponds to a single x86
// instruction family, so "platform-specific instruction descriptor" here
// is just the generic opcode plus the encoding rules EmitMethod applies.
func (*Machine) Lower(b *ir.Builder) error {
	return isa.LowerFuseCompareBranch(b)
}

// Tweak implements §4.4 step 7: materialize constant comparison operands,
// convert arithmetic into 2-address destructive form, and coerce shift
// counts to an 8-bit encodable immediate (§8 scenario 6).
func (*Machine) Tweak(b *ir.Builder) error {
	if err := isa.TweakCompareOperands(b); err != nil {
		return err
	}
	if err := isa.TweakTwoAddress(b); err != nil {
		return err
	}
	return isa.TweakShiftImmediate(b, 0xFF)
}

// AssignFixedRegisters implements §4.4 step 8: x86 pins shift counts to
// cl and divide/remainder/unsigned-multiply operands to eax/edx, ahead of
// general register allocation.
func (*Machine) AssignFixedRegisters(b *ir.Builder) error {
	if err := isa.AssignShiftCL(b, RegECX); err != nil {
		return err
	}
	if err := isa.AssignMulUnsignedEAX(b, RegEAX); err != nil {
		return err
	}
	return isa.AssignDivRemEAXEDX(b, RegEAX, RegEDX)
}

// RegallocConfig implements §4.4 step 9. eax/ecx/edx are excluded from the
// general pool: they are permanently reserved for the multiply/divide/
// shift conventions AssignFixedRegisters relies on, rather than
// interference-checked against the general allocation, trading three of
// eight integer registers for a simpler allocator. esp/ebp are the stack
// and frame pointers and are never allocatable.
func (*Machine) RegallocConfig() isa.RegallocConfig {
	return isa.RegallocConfig{
		Allocatable: map[ir.RegClass][]ir.PhysReg{
			ir.RegClassInt:   {RegEBX, RegESI, RegEDI},
			ir.RegClassFloat: {xmmReg(0), xmmReg(1), xmmReg(2), xmmReg(3), xmmReg(4), xmmReg(5), xmmReg(6)},
		},
		Scratch: map[ir.RegClass][]ir.PhysReg{
			ir.RegClassInt:   {RegEAX},
			ir.RegClassFloat: {xmmReg(7)},
		},
	}
}
