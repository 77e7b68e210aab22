package isa

import "github.com/stjordanis/MOSA-Project/ir"

// AssignShiftCL implements the shift-count half of §4.4 step 8 for every
// ISA in this package that encodes a register shift count in a single
// fixed register (x86/x64's CL): when a Shl/ShrSigned/ShrUnsigned's count
// operand is still a virtual register (a constant count was already
// coerced to an 8-bit immediate by Tweak), it is moved into cl immediately
// before the shift and the operand is rewritten to reference cl directly,
// so the general allocator never has to special-case it.
func AssignShiftCL(b *ir.Builder, cl ir.PhysReg) error {
	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			switch instr.Opcode() {
			case ir.OpcodeShl, ir.OpcodeShrSigned, ir.OpcodeShrUnsigned:
			default:
				return
			}
			count := instr.Operand(1)
			if count.Residence != ir.ResidenceVirtualRegister {
				return
			}
			clOperand := ir.CPURegister(ir.Scalar(ir.KindI8), cl)
			blk.InsertBefore(instr, ir.NewRawMove(clOperand, count))
			instr.SetOperand(1, clOperand)
		})
	}
	return nil
}

// AssignMulUnsignedEAX implements the x86-family unsigned multiply's
// register constraint: MUL r/m32 always multiplies eax by its sole
// operand and leaves the (double-width) result in edx:eax. Only the low
// 32 bits (eax) are kept, matching this IR's 32-bit OpcodeMulUnsigned
// result; a widening 64-bit unsigned multiply is out of scope.
func AssignMulUnsignedEAX(b *ir.Builder, eax ir.PhysReg) error {
	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			if instr.Opcode() != ir.OpcodeMulUnsigned {
				return
			}
			lhs := instr.Operand(0)
			if lhs.Residence != ir.ResidenceVirtualRegister {
				return
			}
			eaxOperand := ir.CPURegister(lhs.Type, eax)
			blk.InsertBefore(instr, ir.NewRawMove(eaxOperand, lhs))
			instr.SetOperand(0, eaxOperand)
			instr.SetResult(eaxOperand, false)
			blk.InsertAfter(instr, ir.NewRawMove(lhs, eaxOperand))
		})
	}
	return nil
}

// AssignDivRemEAXEDX implements the divide/remainder half of §4.4 step 8
// for the x86-family idiv/div instruction, which always divides edx:eax
// by its sole operand and leaves the quotient in eax and the remainder in
// edx. The dividend is moved into eax ahead of the instruction; the
// result (already aliased onto the dividend's virtual register by the
// platform tweak stage's 2-address conversion) is moved back out of
// whichever of eax/edx this opcode produces immediately after, so every
// later reference to that virtual register still sees the right value.
func AssignDivRemEAXEDX(b *ir.Builder, eax, edx ir.PhysReg) error {
	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			var resultReg ir.PhysReg
			switch instr.Opcode() {
			case ir.OpcodeDivSigned, ir.OpcodeDivUnsigned:
				resultReg = eax
			case ir.OpcodeRemSigned, ir.OpcodeRemUnsigned:
				resultReg = edx
			default:
				return
			}
			dividend := instr.Operand(0)
			if dividend.Residence != ir.ResidenceVirtualRegister {
				return
			}
			eaxOperand := ir.CPURegister(dividend.Type, eax)
			blk.InsertBefore(instr, ir.NewRawMove(eaxOperand, dividend))
			instr.SetOperand(0, eaxOperand)
			instr.SetResult(ir.CPURegister(dividend.Type, resultReg), false)
			blk.InsertAfter(instr, ir.NewRawMove(dividend, ir.CPURegister(dividend.Type, resultReg)))
		})
	}
	return nil
}
