package pass

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stjordanis/MOSA-Project/ir"
)

// TestLeaveSSA_PhiResolution is §8 scenario 4: block C with
// x = phi(x1 from A, x2 from B); after Leave-SSA, A ends with a copy into
// x' before its terminator group, B ends with a copy into x' before its
// terminator group, no phi remains, and C's use of x is non-SSA.
func TestLeaveSSA_PhiResolution(t *testing.T) {
	b := ir.NewBuilder()
	entry := b.EntryBlock()
	i32 := ir.Scalar(ir.KindI32)

	a, bb, c := b.CreateBlock(), b.CreateBlock(), b.CreateBlock()
	x := b.AllocVReg(i32)

	b.SetCurrentBlock(entry)
	cond := ir.ConstInt64(i32, 1)
	b.BrIfTrue(cond, a)
	b.SetCurrentBlock(entry)
	b.Jump(bb)

	b.SetCurrentBlock(a)
	b.Redefine(x, ir.ConstInt64(i32, 2))
	b.Jump(c)

	b.SetCurrentBlock(bb)
	b.Redefine(x, ir.ConstInt64(i32, 3))
	b.Jump(c)

	b.SetCurrentBlock(c)
	b.Move(i32, x)
	b.Jump(b.ExitBlock())

	Dominance(b)
	ConstructSSA(b)
	require.NotEmpty(t, c.Phis())

	require.NoError(t, LeaveSSA(b))

	require.False(t, b.IsInSSAForm)
	require.Empty(t, c.Phis())

	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			require.NotEqual(t, ir.OpcodePhi, instr.Opcode())
			for n := 0; n < instr.OperandCount(); n++ {
				require.False(t, instr.Operand(n).IsSSA(), "operand %d of %s still SSA-versioned", n, instr)
			}
			r1, r2, has2 := instr.Results()
			require.False(t, r1.IsSSA())
			if has2 {
				require.False(t, r2.IsSSA())
			}
		})
	}

	lastA := a.TerminatorGroup().Prev()
	require.NotNil(t, lastA)
	require.Equal(t, ir.OpcodeMove, lastA.Opcode())

	lastB := bb.TerminatorGroup().Prev()
	require.NotNil(t, lastB)
	require.Equal(t, ir.OpcodeMove, lastB.Opcode())
}

// TestLeaveSSA_PhiResolutionCompoundValueType is the KindValueType
// counterpart of TestLeaveSSA_PhiResolution: when the merged local's type
// is a compound value type (wider than a native pointer, per
// layout.IsCompoundType), the phi-resolving copies LeaveSSA inserts on
// each incoming edge must be OpcodeMoveCompound, not a plain scalar Move.
func TestLeaveSSA_PhiResolutionCompoundValueType(t *testing.T) {
	b := ir.NewBuilder()
	entry := b.EntryBlock()
	pair := ir.Type{Kind: ir.KindValueType}

	a, bb, c := b.CreateBlock(), b.CreateBlock(), b.CreateBlock()
	x := b.AllocVReg(pair)
	v1 := b.AllocVReg(pair)
	v2 := b.AllocVReg(pair)

	b.SetCurrentBlock(entry)
	cond := ir.ConstInt64(ir.Scalar(ir.KindI32), 1)
	b.BrIfTrue(cond, a)
	b.SetCurrentBlock(entry)
	b.Jump(bb)

	b.SetCurrentBlock(a)
	b.Redefine(x, v1)
	b.Jump(c)

	b.SetCurrentBlock(bb)
	b.Redefine(x, v2)
	b.Jump(c)

	b.SetCurrentBlock(c)
	b.Jump(b.ExitBlock())

	Dominance(b)
	ConstructSSA(b)
	require.NotEmpty(t, c.Phis())

	require.NoError(t, LeaveSSA(b))
	require.Empty(t, c.Phis())

	lastA := a.TerminatorGroup().Prev()
	require.NotNil(t, lastA)
	require.Equal(t, ir.OpcodeMoveCompound, lastA.Opcode())

	lastB := bb.TerminatorGroup().Prev()
	require.NotNil(t, lastB)
	require.Equal(t, ir.OpcodeMoveCompound, lastB.Opcode())
}
