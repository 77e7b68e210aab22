package isa

import "github.com/stjordanis/MOSA-Project/ir"

// LowerFuseCompareBranch implements the platform-independent half of §4.4
// step 6 shared by every Machine in this package: it replaces a Compare
// immediately followed by the BrIfTrue/BrIfFalse that consumes its sole
// result with a single OpcodeCompareIntBranch, the fused node §4.5 Leave-
// SSA's terminator-group logic already exists to support.
//
// The CIL decoder always emits this exact three-instruction shape for a
// comparison branch: Compare, then BrIfTrue/BrIfFalse on its result, then
// an explicit unconditional Jump carrying the not-taken path (§4.5's
// terminator group is precisely this trailing run). Fusion rewrites the
// first two into one CompareIntBranch and leaves the trailing Jump
// untouched; a bare Compare feeding anything else (e.g. `ceq` whose 0/1
// result is stored to a local) is left alone and reaches the encoder as a
// real value-producing compare.
func LowerFuseCompareBranch(b *ir.Builder) error {
	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		jump := lastNonEmpty(blk.Tail())
		if jump == nil || jump.Opcode() != ir.OpcodeJump {
			continue
		}
		br := lastNonEmpty(jump.Prev())
		var branchTrue bool
		switch {
		case br == nil:
			continue
		case br.Opcode() == ir.OpcodeBrIfTrue:
			branchTrue = true
		case br.Opcode() == ir.OpcodeBrIfFalse:
			branchTrue = false
		default:
			continue
		}
		cmp := lastNonEmpty(br.Prev())
		if cmp == nil || cmp.Opcode() != ir.OpcodeCompare {
			continue
		}
		cmpResult, _, _ := cmp.Results()
		cond := br.Operand(0)
		if cond.Residence != ir.ResidenceVirtualRegister || !ir.Identical(cond, cmpResult) {
			continue
		}

		fusedCond := cmp.Cond()
		if !branchTrue {
			fusedCond = fusedCond.Opposite()
		}
		fused := ir.NewRawCompareIntBranch(fusedCond, cmp.Operand(0), cmp.Operand(1), br.Target())
		blk.InsertBefore(br, fused)
		blk.RewireBranch(br, fused)
		br.MakeEmpty()
		cmp.MakeEmpty()
	}
	return nil
}

func lastNonEmpty(i *ir.Instruction) *ir.Instruction {
	for i != nil && i.Empty() {
		i = i.Prev()
	}
	return i
}
