package compiler

import (
	"sort"

	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
)

// StackLayoutStage implements §4.4 step 10: it assigns every stack-local
// slot referenced in the finished graph (exclusively register-allocation
// spill slots by the time this stage runs, since parameters and locals
// that fit in registers never acquire one) a concrete frame-pointer-
// relative offset, and records the method's total stack size. This is
// platform-agnostic aside from pointer size (§4.4 step 10 "assign
// parameter and local offsets"), already available from config.Platform.
type StackLayoutStage struct{ baseStage }

func (StackLayoutStage) Name() string { return "stack-layout" }

func (s StackLayoutStage) Run(mc *MethodCompiler) error {
	ptrSize := mc.Options.Platform.PointerSize()
	sizeOf := make(map[ir.StackSlotID]int)

	record := func(op ir.Operand) {
		if op.Residence != ir.ResidenceStackLocal {
			return
		}
		if _, ok := sizeOf[op.Slot]; ok {
			return
		}
		sizeOf[op.Slot] = slotSize(mc, op.Type, ptrSize)
	}

	for _, blk := range mc.Builder.Blocks() {
		if !blk.Valid() {
			continue
		}
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			for n := 0; n < instr.OperandCount(); n++ {
				record(instr.Operand(n))
			}
			r1, r2, has2 := instr.Results()
			if r1.Valid() {
				record(r1)
			}
			if has2 && r2.Valid() {
				record(r2)
			}
		})
	}

	ids := make([]ir.StackSlotID, 0, len(sizeOf))
	for id := range sizeOf {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	offsets := make(map[ir.StackSlotID]int32, len(ids))
	var cursor int32
	for _, id := range ids {
		sz := int32(sizeOf[id])
		cursor = alignUp(cursor, sz)
		offsets[id] = cursor
		cursor += sz
	}
	cursor = alignUp(cursor, int32(ptrSize))

	mc.Frame = &isa.Frame{Offsets: offsets, Size: cursor}
	return nil
}

func slotSize(mc *MethodCompiler, t ir.Type, ptrSize int) int {
	if t.Kind == ir.KindValueType {
		if sz, err := mc.Layout.Size(t.Managed); err == nil {
			return sz
		}
		return ptrSize
	}
	if t.Kind.IsFloat() || t.Kind.IsInt() {
		return t.Kind.Bits(ptrSize) / 8
	}
	return ptrSize
}

func alignUp(v, align int32) int32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
