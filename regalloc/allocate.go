package regalloc

import (
	"sort"

	"github.com/stjordanis/MOSA-Project/cerr"
	"github.com/stjordanis/MOSA-Project/ir"
)

// Allocate implements §4.4 step 9 against b, which must already be past
// Leave-SSA (b.IsInSSAForm false). On return every operand and result in b
// has residence CPU register, constant, or stack-local: the universal
// post-allocation invariant of §8.
//
// A classical active-set linear scan walks intervals in order of
// increasing start point. When a class's pool is exhausted, the
// interval whose end point is furthest away is spilled (the heuristic
// that minimizes the number of live ranges forced to the stack), per the
// Poletto-Sarkar rule the teacher's neighbor/interval-tree structure in
// backend/regalloc/intervals.go approximates with coloring instead.
func Allocate(b *ir.Builder, cfg Config) error {
	if b.IsInSSAForm {
		return cerr.Invariant("regalloc", "Allocate called on a method still in SSA form")
	}

	intervals, _ := numberAndCollect(b)
	if len(intervals) == 0 {
		return nil
	}

	pools := make(map[ir.RegClass]*pool, len(cfg.Allocatable))
	for class, regs := range cfg.Allocatable {
		pools[class] = newPool(regs)
	}

	var active []*interval // sorted by end, ascending
	nextSlot := ir.StackSlotID(0)

	expire := func(start programPoint) {
		i := 0
		for i < len(active) {
			iv := active[i]
			if iv.end >= start {
				break
			}
			pools[iv.class()].give(iv.assigned)
			i++
		}
		active = active[i:]
	}

	insertActive := func(iv *interval) {
		idx := sort.Search(len(active), func(i int) bool { return active[i].end >= iv.end })
		active = append(active, nil)
		copy(active[idx+1:], active[idx:])
		active[idx] = iv
	}

	spillToStack := func(iv *interval) {
		iv.spilled = true
		iv.slot = nextSlot
		nextSlot++
	}

	removeActive := func(target *interval) {
		for i, a := range active {
			if a == target {
				active = append(active[:i], active[i+1:]...)
				return
			}
		}
	}

	for _, iv := range intervals {
		expire(iv.start)

		class := iv.class()
		p, ok := pools[class]
		if !ok || len(p.free) == 0 {
			if ok && len(active) > 0 {
				// Find the active interval of the same class with the
				// furthest end point.
				var furthest *interval
				for _, a := range active {
					if a.class() != class || a.spilled {
						continue
					}
					if furthest == nil || a.end > furthest.end {
						furthest = a
					}
				}
				if furthest != nil && furthest.end > iv.end {
					iv.assigned = furthest.assigned
					spillToStack(furthest)
					removeActive(furthest)
					insertActive(iv)
					continue
				}
			}
			spillToStack(iv)
			continue
		}

		reg, _ := p.take()
		iv.assigned = reg
		insertActive(iv)
	}

	return rewrite(b, intervals, cfg)
}

// rewrite replaces every SSA-free vreg operand/result with its allocated
// physical register, or — for spilled intervals — with a scratch register
// reloaded from (stores to) a stack slot immediately around the
// instruction that references it, per §4.4's "spill/fill inserted as
// explicit loads/stores".
func rewrite(b *ir.Builder, intervals []*interval, cfg Config) error {
	byVReg := make(map[ir.VRegID]*interval, len(intervals))
	for _, iv := range intervals {
		byVReg[iv.vreg] = iv
	}

	scratchCursor := make(map[ir.RegClass]int)
	nextScratch := func(class ir.RegClass) (ir.PhysReg, error) {
		regs := cfg.Scratch[class]
		if len(regs) == 0 {
			return ir.PhysReg{}, cerr.Unsupported("regalloc", "scratch pool", "no scratch register reserved for class %d", class)
		}
		i := scratchCursor[class] % len(regs)
		scratchCursor[class]++
		return regs[i], nil
	}

	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		var instrs []*ir.Instruction
		blk.ForEachInstruction(func(instr *ir.Instruction) { instrs = append(instrs, instr) })

		for _, instr := range instrs {
			for n := 0; n < instr.OperandCount(); n++ {
				op := instr.Operand(n)
				iv, ok := byVReg[op.VReg]
				if op.Residence != ir.ResidenceVirtualRegister || !ok {
					continue
				}
				if iv.spilled {
					scratch, err := nextScratch(iv.class())
					if err != nil {
						return err
					}
					dst := ir.CPURegister(op.Type, scratch)
					load := fillInstruction(dst, ir.StackLocal(op.Type, iv.slot))
					blk.InsertBefore(instr, load)
					instr.SetOperand(n, dst)
				} else {
					instr.SetOperand(n, ir.CPURegister(op.Type, iv.assigned))
				}
			}

			r1, r2, has2 := instr.Results()
			if r1.Valid() && r1.Residence == ir.ResidenceVirtualRegister {
				if err := rewriteResult(blk, instr, r1, false, byVReg, nextScratch); err != nil {
					return err
				}
			}
			if has2 && r2.Valid() && r2.Residence == ir.ResidenceVirtualRegister {
				if err := rewriteResult(blk, instr, r2, true, byVReg, nextScratch); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func rewriteResult(blk *ir.BasicBlock, instr *ir.Instruction, res ir.Operand, second bool,
	byVReg map[ir.VRegID]*interval, nextScratch func(ir.RegClass) (ir.PhysReg, error),
) error {
	iv, ok := byVReg[res.VReg]
	if !ok {
		return nil
	}
	if !iv.spilled {
		instr.SetResult(ir.CPURegister(res.Type, iv.assigned), second)
		return nil
	}
	scratch, err := nextScratch(iv.class())
	if err != nil {
		return err
	}
	dst := ir.CPURegister(res.Type, scratch)
	instr.SetResult(dst, second)
	store := fillInstruction(ir.StackLocal(res.Type, iv.slot), dst)
	blk.InsertAfter(instr, store)
	return nil
}

// fillInstruction builds the raw copy used for a spill load or store; it
// picks MoveCompound for value types wider than a scalar the same way
// Leave-SSA's phi resolution does.
func fillInstruction(dst, src ir.Operand) *ir.Instruction {
	if dst.Type.Kind == ir.KindValueType {
		return ir.NewRawMoveCompound(dst, src)
	}
	return ir.NewRawMove(dst, src)
}
