package pass

import "github.com/stjordanis/MOSA-Project/ir"

// ssaKey identifies one (VRegID, SSAVersion) pair so LeaveSSA's replacement
// map can distinguish different versions of the same pre-SSA register.
type ssaKey struct {
	vreg    ir.VRegID
	version int32
}

// LeaveSSA implements §4.5: it eliminates every phi node and every
// SSA-versioned operand, inserting phi-resolving copies on each
// control-flow edge into a phi's block, and rewrites every remaining
// operand/result through a version-to-replacement map. b must have
// IsInSSAForm true on entry; on return it is false, no phi node remains,
// and no operand reports IsSSA.
func LeaveSSA(b *ir.Builder) error {
	replacements := make(map[ssaKey]ir.Operand)

	resolve := func(op ir.Operand) ir.Operand {
		if !op.IsSSA() {
			return op
		}
		key := ssaKey{op.VReg, op.SSAVersion}
		if r, ok := replacements[key]; ok {
			return r
		}
		var r ir.Operand
		if op.SSAVersion == 0 {
			r = *op.SSAParent
		} else {
			r = b.AllocVReg(op.Type)
		}
		replacements[key] = r
		return r
	}

	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		for _, phi := range blk.Phis() {
			r1, _, _ := phi.Results()
			dst := resolve(r1)
			sources := phi.PhiSources()
			for i, pred := range sources {
				src := resolve(phi.Operand(i))
				if ir.Identical(dst, src) {
					continue
				}
				op := ir.OpcodeMove
				if dst.Type.Kind == ir.KindValueType {
					op = ir.OpcodeMoveCompound
				}
				var move *ir.Instruction
				if op == ir.OpcodeMoveCompound {
					move = ir.NewRawMoveCompound(dst, src)
				} else {
					move = ir.NewRawMove(dst, src)
				}
				insertBeforeTerminatorGroup(pred, move)
			}
			phi.MakeEmpty()
		}
	}

	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			for n := 0; n < instr.OperandCount(); n++ {
				instr.SetOperand(n, resolve(instr.Operand(n)))
			}
			r1, r2, has2 := instr.Results()
			if r1.Valid() {
				instr.SetResult(resolve(r1), false)
			}
			if has2 && r2.Valid() {
				instr.SetResult(resolve(r2), true)
			}
		})
	}

	b.IsInSSAForm = false
	return nil
}

// insertBeforeTerminatorGroup places move immediately before pred's
// trailing run of branch-family instructions (§4.5's definition of "the
// block's terminator group"). Every predecessor of a phi's block reaches
// it via a branch-family instruction, so the group always exists at this
// point in the pipeline (platform lowering, which introduces
// CompareIntBranch, has not yet run).
func insertBeforeTerminatorGroup(pred *ir.BasicBlock, move *ir.Instruction) {
	group := pred.TerminatorGroup()
	if group == nil {
		pred.InsertInstruction(move)
		return
	}
	pred.InsertBefore(group, move)
}
