package isa

import "github.com/stjordanis/MOSA-Project/ir"

// TweakTwoAddress implements the 2-address half of §4.4 step 7 for every
// ir.Descriptor flagged ThreeToTwoAddress: it makes the instruction's
// first operand and its result the same storage location, matching the
// dst-equals-src1 shape legacy x86 ALU encodings require. isa/x86 and
// isa/x64 call it; isa/arm64, whose ALU forms are 3-address, does not.
//
// Since every virtual register the CIL decoder allocates for an
// arithmetic result is a fresh, single-definition temporary (nothing but
// this one instruction ever defines it), aliasing its identity onto
// operand(0) and rewriting every later reference to read operand(0)
// instead is sound without a dataflow pass: it is the same substitution
// §4.4's optimizer already performs for copy propagation, just targeted
// at exactly one virtual register.
func TweakTwoAddress(b *ir.Builder) error {
	type alias struct {
		from ir.VRegID
		to   ir.Operand
	}
	var aliases []alias

	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			d := instr.Descriptor()
			if !d.ThreeToTwoAddress {
				return
			}
			r1, _, _ := instr.Results()
			if !r1.Valid() || r1.Residence != ir.ResidenceVirtualRegister {
				return
			}
			src := instr.Operand(0)
			if src.Residence != ir.ResidenceVirtualRegister {
				// Materialize the constant/stack operand into a fresh
				// register first so a destructive op has somewhere to
				// write through.
				tmp := b.AllocVReg(src.Type)
				blk.InsertBefore(instr, rawMove(tmp, src))
				instr.SetOperand(0, tmp)
				src = tmp
			}
			instr.SetResult(src, false)
			aliases = append(aliases, alias{from: r1.VReg, to: src})
		})
	}

	if len(aliases) == 0 {
		return nil
	}
	byFrom := make(map[ir.VRegID]ir.Operand, len(aliases))
	for _, a := range aliases {
		byFrom[a.from] = a.to
	}
	resolve := func(op ir.Operand) ir.Operand {
		if op.Residence != ir.ResidenceVirtualRegister {
			return op
		}
		if to, ok := byFrom[op.VReg]; ok {
			return to
		}
		return op
	}
	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			for n := 0; n < instr.OperandCount(); n++ {
				instr.SetOperand(n, resolve(instr.Operand(n)))
			}
		})
	}
	return nil
}

// TweakShiftImmediate coerces a constant shift-count operand to an 8-bit
// encodable value (§4.4 step 7's named example, exercised by §8 scenario
// 6): the hardware masks the count to the operand width anyway (5 bits
// on a 32-bit destination, 6 on 64-bit), but the encoded immediate byte
// itself is always 8 bits, so this applies that mask up front rather than
// leaving the encoder to reject an out-of-range constant.
func TweakShiftImmediate(b *ir.Builder, widthMask int64) error {
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
			if count.Residence != ir.ResidenceConstant || count.ConstKind != ir.ConstInt {
				return
			}
			instr.SetOperand(1, ir.ConstInt64(count.Type, count.IntValue&widthMask))
		})
	}
	return nil
}

// TweakCompareOperands implements the other named §4.4 step 7 example:
// moving a constant into a register before Cmp, since no mainstream ISA
// this package targets can encode an immediate as a comparison's left
// operand.
func TweakCompareOperands(b *ir.Builder) error {
	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			if instr.Opcode() != ir.OpcodeCompare {
				return
			}
			lhs := instr.Operand(0)
			if lhs.Residence != ir.ResidenceConstant {
				return
			}
			tmp := b.AllocVReg(lhs.Type)
			blk.InsertBefore(instr, rawMove(tmp, lhs))
			instr.SetOperand(0, tmp)
		})
	}
	return nil
}

func rawMove(dst, src ir.Operand) *ir.Instruction {
	if dst.Type.Kind == ir.KindValueType {
		return ir.NewRawMoveCompound(dst, src)
	}
	return ir.NewRawMove(dst, src)
}
