package arm64

import (
	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
)

// Lower implements §4.4 step 6, reusing the shared Compare+Branch fusion
// every Machine in this package performs.
func (*Machine) Lower(b *ir.Builder) error {
	return isa.LowerFuseCompareBranch(b)
}

// Tweak implements §4.4 step 7. This target's ALU instructions are
// natively 3-address (distinct destination and source registers), so
// isa.TweakTwoAddress does not apply here; only a constant comparison
// left-hand side still needs materializing, since CMP's immediate form
// only encodes on the right-hand operand. Shift counts need no
// coercion: a variable shift count is encoded as a plain register
// operand (§4.4 step 8 has nothing to add either, for the same reason).
func (*Machine) Tweak(b *ir.Builder) error {
	return isa.TweakCompareOperands(b)
}

// AssignFixedRegisters implements §4.4 step 8. AArch64 has no
// implicit-register ALU conventions analogous to x86's shift-count-in-cl
// or multiply/divide-in-eax:edx; every instruction names its operand
// registers explicitly, so there is nothing to pin ahead of general
// register allocation.
func (*Machine) AssignFixedRegisters(*ir.Builder) error { return nil }

// RegallocConfig implements §4.4 step 9, restricting the general
// allocator to a representative slice of the caller-saved temporary
// registers AAPCS64 sets aside (x9-x15), reserving x16 (ip0) as a
// scratch register the way x86 reserves eax.
func (*Machine) RegallocConfig() isa.RegallocConfig {
	return isa.RegallocConfig{
		Allocatable: map[ir.RegClass][]ir.PhysReg{
			ir.RegClassInt: {RegX9, RegX10, RegX11, RegX12, RegX13, RegX14, RegX15},
		},
		Scratch: map[ir.RegClass][]ir.PhysReg{
			ir.RegClassInt: {RegX16},
		},
	}
}
