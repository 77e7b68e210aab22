package compiler

// ExceptionHandlingStage implements §4.4 step 2: it materializes each of
// the method's protected regions as block-graph structure by splitting
// the block graph at every try/handler boundary that does not already
// fall on a block edge, using the same ir.BasicBlock.Split primitive a
// mid-block cut anywhere else in the pipeline would use. A method with at
// least one region has b.HasProtectedRegions set on return, disabling
// optimizations that are unsafe across exception edges (§3).
type ExceptionHandlingStage struct{ baseStage }

func (ExceptionHandlingStage) Name() string { return "exception-handling" }

func (ExceptionHandlingStage) Run(mc *MethodCompiler) error {
	if len(mc.Body.Regions) == 0 {
		return nil
	}
	mc.Builder.HasProtectedRegions = true

	boundaries := map[int]bool{}
	for _, r := range mc.Body.Regions {
		boundaries[r.TryStart] = true
		boundaries[r.TryEnd] = true
		boundaries[r.HandlerStart] = true
		boundaries[r.HandlerEnd] = true
	}

	for off := range boundaries {
		splitAt(mc, off)
	}
	return nil
}

// splitAt ensures a block boundary exists at the instruction the decoder
// recorded for CIL offset off, splitting its containing block there if
// off does not already fall on that block's root instruction (i.e. it
// is not already a boundary).
func splitAt(mc *MethodCompiler, off int) {
	instr, ok := mc.OffsetInstr[off]
	if !ok || instr == nil {
		return
	}
	blk := instr.Block()
	if blk == nil || blk.Root() == instr {
		return // already a boundary.
	}
	blk.Split(mc.Builder, instr)
}
