package pass

import "github.com/stjordanis/MOSA-Project/ir"

// ConstructSSA implements §4.4 step 3: insert phi nodes at dominance
// frontiers and rename virtual registers, bumping SSA versions. Dominance
// must already have been run on b. On return, b.IsInSSAForm is true and
// every virtual register with version > 0 has exactly one defining
// instruction (§3's SSA invariant).
//
// Unlike the teacher, which builds block-parameter SSA incrementally while
// decoding (Braun et al.'s on-the-fly algorithm), this pass runs as a
// distinct stage over an already-decoded, already-structured CFG and uses
// the classical Cytron-Ferrante-Rosen-Wegman-Zadeck placement: insert a phi
// for variable v at every block in v's iterated dominance frontier, then
// rename via a preorder walk of the dominator tree.
func ConstructSSA(b *ir.Builder) {
	defBlocks := collectDefSites(b)
	placePhis(b, defBlocks)

	base := make([]ir.Operand, b.NumVRegs())
	for id := range base {
		base[id] = ir.VirtualRegister(ir.VRegID(id), b.VRegType(ir.VRegID(id)))
	}

	st := &renameState{
		base:    base,
		version: make([]int32, b.NumVRegs()),
		stacks:  make([][]ir.Operand, b.NumVRegs()),
	}
	st.rename(b.EntryBlock())

	b.IsInSSAForm = true
}

// collectDefSites maps each pre-SSA virtual register to the set of blocks
// containing a defining instruction for it.
func collectDefSites(b *ir.Builder) map[ir.VRegID]map[ir.BasicBlockID]*ir.BasicBlock {
	defs := make(map[ir.VRegID]map[ir.BasicBlockID]*ir.BasicBlock)
	record := func(op ir.Operand, blk *ir.BasicBlock) {
		if op.Residence != ir.ResidenceVirtualRegister || op.IsSSA() {
			return
		}
		m, ok := defs[op.VReg]
		if !ok {
			m = make(map[ir.BasicBlockID]*ir.BasicBlock)
			defs[op.VReg] = m
		}
		m[blk.ID()] = blk
	}
	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			r1, r2, has2 := instr.Results()
			if r1.Valid() {
				record(r1, blk)
			}
			if has2 && r2.Valid() {
				record(r2, blk)
			}
		})
	}
	return defs
}

// placePhis runs the standard iterated-dominance-frontier worklist per
// variable, creating a phi instruction (with placeholder operand slots
// sized to the target block's predecessor count) at every block in the
// frontier closure.
func placePhis(b *ir.Builder, defBlocks map[ir.VRegID]map[ir.BasicBlockID]*ir.BasicBlock) {
	for vreg, defs := range defBlocks {
		typ := b.VRegType(vreg)
		everDef := make(map[ir.BasicBlockID]bool, len(defs))
		var worklist []*ir.BasicBlock
		for _, blk := range defs {
			everDef[blk.ID()] = true
			worklist = append(worklist, blk)
		}
		placed := make(map[ir.BasicBlockID]bool)
		for len(worklist) > 0 {
			blk := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, df := range blk.DomFrontier() {
				if placed[df.ID()] {
					continue
				}
				placed[df.ID()] = true
				preds := df.Preds()
				sources := make([]*ir.BasicBlock, len(preds))
				copy(sources, preds)
				placeholder := make([]ir.Operand, len(preds))
				b.PhiAt(df, typ, vreg, sources, placeholder)
				if !everDef[df.ID()] {
					everDef[df.ID()] = true
					worklist = append(worklist, df)
				}
			}
		}
	}
}

type renameState struct {
	base    []ir.Operand
	version []int32
	stacks  [][]ir.Operand
}

func (st *renameState) push(vreg ir.VRegID, op ir.Operand) {
	st.stacks[vreg] = append(st.stacks[vreg], op)
}

func (st *renameState) top(vreg ir.VRegID) (ir.Operand, bool) {
	s := st.stacks[vreg]
	if len(s) == 0 {
		return ir.Operand{}, false
	}
	return s[len(s)-1], true
}

func (st *renameState) fresh(vreg ir.VRegID) ir.Operand {
	v := st.version[vreg]
	st.version[vreg]++
	return st.base[vreg].WithSSA(v, &st.base[vreg])
}

func (st *renameState) rename(blk *ir.BasicBlock) {
	depths := make([]int, len(st.stacks))
	for i, s := range st.stacks {
		depths[i] = len(s)
	}

	blk.ForEachInstruction(func(instr *ir.Instruction) {
		if instr.Opcode() == ir.OpcodePhi {
			r1, _, _ := instr.Results()
			nv := st.fresh(r1.VReg)
			instr.SetResult(nv, false)
			st.push(r1.VReg, nv)
			return
		}

		for n := 0; n < instr.OperandCount(); n++ {
			op := instr.Operand(n)
			if op.Residence == ir.ResidenceVirtualRegister && !op.IsSSA() {
				if cur, ok := st.top(op.VReg); ok {
					instr.SetOperand(n, cur)
				}
			}
		}

		r1, r2, has2 := instr.Results()
		if r1.Valid() && r1.Residence == ir.ResidenceVirtualRegister && !r1.IsSSA() {
			nv := st.fresh(r1.VReg)
			instr.SetResult(nv, false)
			st.push(r1.VReg, nv)
		}
		if has2 && r2.Valid() && r2.Residence == ir.ResidenceVirtualRegister && !r2.IsSSA() {
			nv := st.fresh(r2.VReg)
			instr.SetResult(nv, true)
			st.push(r2.VReg, nv)
		}
	})

	for _, succ := range blk.Succs() {
		for _, phi := range succ.Phis() {
			sources := phi.PhiSources()
			for j, src := range sources {
				if src != blk {
					continue
				}
				vreg := phi.Operand(j).VReg
				// The phi's own result carries the vreg identity even
				// before its args are filled in, since PhiAt seeded each
				// placeholder slot with an unversioned operand for vreg.
				if cur, ok := st.top(vreg); ok {
					phi.SetOperand(j, cur)
				}
			}
		}
	}

	for _, child := range blk.DomChildren() {
		st.rename(child)
	}

	for i, d := range depths {
		st.stacks[i] = st.stacks[i][:d]
	}
}
