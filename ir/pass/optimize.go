package pass

import (
	"github.com/stjordanis/MOSA-Project/config"
	"github.com/stjordanis/MOSA-Project/ir"
)

// Optimize implements §4.4 step 4, IR Optimizations: constant folding,
// copy/constant propagation (the practical stand-in this package builds
// for "(local) value numbering"), dead-code elimination, and dead-block
// elimination. The first three are individually toggled by opts; dead-block
// elimination has no option and always runs. b must still be in SSA
// form; Optimize never introduces a new phi or a new SSA version, so it
// never needs to touch b.IsInSSAForm.
//
// When b.HasProtectedRegions is set, dead-code and dead-block elimination
// are both skipped: a handler block is reachable only through the
// runtime's exception dispatch, an edge ExceptionHandlingStage never adds
// to the block graph's normal Succs()/Preds() wiring, so a plain
// reachability walk from the entry block would invalidate a live handler
// as unreachable, and a def-use liveness walk would have no root to find
// it from either.
//
// When opts.EnableTwoPassOpt is set the whole sequence runs a second time,
// to catch folding opportunities the first pass's instruction order left
// on the table (e.g. a dead-code sweep exposing a now-unused branch whose
// condition was itself foldable).
func Optimize(b *ir.Builder, opts config.Options) error {
	rounds := 1
	if opts.EnableTwoPassOpt {
		rounds = 2
	}

	for r := 0; r < rounds; r++ {
		progressed := false

		if opts.EnableConstFold {
			if foldFixedPoint(b, foldArithmetic) {
				progressed = true
			}
		}
		if opts.EnableValueNumbering {
			if foldFixedPoint(b, foldCopy) {
				progressed = true
			}
		}
		if !b.HasProtectedRegions {
			if opts.EnableDCE {
				if eliminateDeadCode(b) {
					progressed = true
				}
			}
			if eliminateDeadBlocks(b) {
				progressed = true
			}
		}

		if !progressed {
			break
		}
	}
	return nil
}

// foldFixedPoint repeatedly applies pick across every instruction in b
// until no instruction yields a new substitution, then rewrites every
// operand in the function through the accumulated map. Folding and copy
// propagation share this driver; only the per-instruction rule differs.
func foldFixedPoint(b *ir.Builder, pick func(instr *ir.Instruction, resolve func(ir.Operand) ir.Operand) (ir.Operand, bool)) bool {
	subst := make(map[ssaKey]ir.Operand)
	resolve := func(op ir.Operand) ir.Operand {
		if op.Residence != ir.ResidenceVirtualRegister {
			return op
		}
		if v, ok := subst[ssaKey{op.VReg, op.SSAVersion}]; ok {
			return v
		}
		return op
	}

	changedAny := false
	for {
		progressed := false
		for _, blk := range b.Blocks() {
			if !blk.Valid() {
				continue
			}
			blk.ForEachInstruction(func(instr *ir.Instruction) {
				r1, _, _ := instr.Results()
				if !r1.Valid() || r1.Residence != ir.ResidenceVirtualRegister {
					return
				}
				key := ssaKey{r1.VReg, r1.SSAVersion}
				if _, already := subst[key]; already {
					return
				}
				v, ok := pick(instr, resolve)
				if !ok {
					return
				}
				subst[key] = v
				progressed = true
				changedAny = true
			})
		}
		if !progressed {
			break
		}
	}

	if changedAny {
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
	}
	return changedAny
}

// foldCopy implements copy/constant propagation: a plain Move whose
// source is already known (a constant, or a vreg already substituted in
// an earlier round) lets every later use of its result read that source
// directly. This is the bulk of what "value numbering" buys on an IR
// this small: two syntactically distinct Move chains collapse to the
// same replacement operand without needing a hash-consing value table.
func foldCopy(instr *ir.Instruction, resolve func(ir.Operand) ir.Operand) (ir.Operand, bool) {
	if instr.Opcode() != ir.OpcodeMove {
		return ir.Operand{}, false
	}
	return resolve(instr.Operand(0)), true
}

// foldArithmetic implements constant folding proper: an arithmetic or
// bitwise instruction whose operands are all now known constants is
// replaced by the computed constant, the X := Const xc; Y := Const yc;
// (op X, Y) => Const (xc <op> yc) pattern.
func foldArithmetic(instr *ir.Instruction, resolve func(ir.Operand) ir.Operand) (ir.Operand, bool) {
	typ := instr.Type()
	switch instr.Opcode() {
	case ir.OpcodeAdd, ir.OpcodeSub:
		x, y := resolve(instr.Operand(0)), resolve(instr.Operand(1))
		if !isConst(x) || !isConst(y) {
			return ir.Operand{}, false
		}
		if typ.Kind.IsInt() {
			return ir.ConstInt64(typ, evalIntBinary(instr.Opcode(), x.IntValue, y.IntValue)), true
		}
		return foldFloatAddSub(instr.Opcode(), typ, x, y)

	case ir.OpcodeMulSigned, ir.OpcodeMulUnsigned, ir.OpcodeAnd, ir.OpcodeOr, ir.OpcodeXor,
		ir.OpcodeShl, ir.OpcodeShrSigned, ir.OpcodeShrUnsigned:
		if !typ.Kind.IsInt() {
			return ir.Operand{}, false
		}
		x, y := resolve(instr.Operand(0)), resolve(instr.Operand(1))
		if !isConst(x) || !isConst(y) {
			return ir.Operand{}, false
		}
		return ir.ConstInt64(typ, evalIntBinary(instr.Opcode(), x.IntValue, y.IntValue)), true

	case ir.OpcodeNeg:
		if !typ.Kind.IsInt() {
			return ir.Operand{}, false
		}
		x := resolve(instr.Operand(0))
		if !isConst(x) {
			return ir.Operand{}, false
		}
		return ir.ConstInt64(typ, -x.IntValue), true

	case ir.OpcodeNot:
		if !typ.Kind.IsInt() {
			return ir.Operand{}, false
		}
		x := resolve(instr.Operand(0))
		if !isConst(x) {
			return ir.Operand{}, false
		}
		return ir.ConstInt64(typ, ^x.IntValue), true

	default:
		return ir.Operand{}, false
	}
}

func isConst(op ir.Operand) bool {
	return op.Residence == ir.ResidenceConstant && op.ConstKind == ir.ConstInt
}

func evalIntBinary(op ir.Opcode, x, y int64) int64 {
	switch op {
	case ir.OpcodeAdd:
		return x + y
	case ir.OpcodeSub:
		return x - y
	case ir.OpcodeMulSigned, ir.OpcodeMulUnsigned:
		return x * y
	case ir.OpcodeAnd:
		return x & y
	case ir.OpcodeOr:
		return x | y
	case ir.OpcodeXor:
		return x ^ y
	case ir.OpcodeShl:
		return x << uint64(y&63)
	case ir.OpcodeShrSigned:
		return x >> uint64(y&63)
	case ir.OpcodeShrUnsigned:
		return int64(uint64(x) >> uint64(y&63))
	default:
		return 0
	}
}

func foldFloatAddSub(op ir.Opcode, typ ir.Type, x, y ir.Operand) (ir.Operand, bool) {
	// Float constants are never produced by CIL decoding as ConstInt
	// operands, so this path only ever sees results of an earlier float
	// fold; kept symmetrical with the integer path but, for now, folding
	// floating-point arithmetic is left to a later pass since §4.4 does
	// not name it as a required optimization.
	return ir.Operand{}, false
}

// eliminateDeadCode implements §4.4's dead-code-elimination step: every
// instruction with a control-flow effect (Flow != FlowFallThrough) or a
// memory write is a root; everything transitively reachable by walking
// operand-to-producer edges from a root stays; everything else is emptied
// in place (§3's contract for the "empty" placeholder, used here instead
// of splicing the instruction list).
func eliminateDeadCode(b *ir.Builder) bool {
	defOf := make(map[ssaKey]*ir.Instruction)
	var all []*ir.Instruction

	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			all = append(all, instr)
			r1, r2, has2 := instr.Results()
			if r1.Valid() && r1.Residence == ir.ResidenceVirtualRegister {
				defOf[ssaKey{r1.VReg, r1.SSAVersion}] = instr
			}
			if has2 && r2.Valid() && r2.Residence == ir.ResidenceVirtualRegister {
				defOf[ssaKey{r2.VReg, r2.SSAVersion}] = instr
			}
		})
	}

	live := make(map[*ir.Instruction]bool, len(all))
	var worklist []*ir.Instruction
	for _, instr := range all {
		d := instr.Descriptor()
		if d.Flow != ir.FlowFallThrough || d.Memory == ir.MemoryWrite || d.Memory == ir.MemoryReadWrite {
			worklist = append(worklist, instr)
		}
	}

	for len(worklist) > 0 {
		n := len(worklist) - 1
		instr := worklist[n]
		worklist = worklist[:n]
		if live[instr] {
			continue
		}
		live[instr] = true

		for i := 0; i < instr.OperandCount(); i++ {
			op := instr.Operand(i)
			if op.Residence != ir.ResidenceVirtualRegister {
				continue
			}
			if producer, ok := defOf[ssaKey{op.VReg, op.SSAVersion}]; ok && !live[producer] {
				worklist = append(worklist, producer)
			}
		}
	}

	changed := false
	for _, instr := range all {
		if !live[instr] && !instr.Empty() {
			instr.MakeEmpty()
			changed = true
		}
	}
	return changed
}

// eliminateDeadBlocks implements §4.4's dead-block elimination: a
// reachability walk from the entry block over Succs(); every block never
// reached is invalidated, the same "blk.invalid" shape §4.2's basic-block
// model already defines for blocks removed after the fact.
func eliminateDeadBlocks(b *ir.Builder) bool {
	visited := make(map[*ir.BasicBlock]bool)
	stack := []*ir.BasicBlock{b.EntryBlock()}
	for len(stack) > 0 {
		n := len(stack) - 1
		blk := stack[n]
		stack = stack[:n]
		if visited[blk] {
			continue
		}
		visited[blk] = true
		for _, succ := range blk.Succs() {
			if !visited[succ] {
				stack = append(stack, succ)
			}
		}
	}

	changed := false
	for _, blk := range b.Blocks() {
		if blk.Valid() && !visited[blk] {
			blk.Invalidate()
			changed = true
		}
	}
	return changed
}
