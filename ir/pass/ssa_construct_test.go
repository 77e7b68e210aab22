package pass

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stjordanis/MOSA-Project/ir"
)

// TestConstructSSA_PhiAtMerge builds:
//
//	entry: br cond -> b1 else b2
//	b1:    x := 2; jump b3
//	b2:    x := 3; jump b3
//	b3:    jump exit
//
// where x is a single pre-SSA virtual register redefined in both diamond
// arms. ConstructSSA must place exactly one phi for x at b3, with one
// operand per predecessor, and every operand it fills in must be
// SSA-versioned.
func TestConstructSSA_PhiAtMerge(t *testing.T) {
	b := ir.NewBuilder()
	entry := b.EntryBlock()
	i32 := ir.Scalar(ir.KindI32)

	b1, b2, b3 := b.CreateBlock(), b.CreateBlock(), b.CreateBlock()
	x := b.AllocVReg(i32)

	b.SetCurrentBlock(entry)
	cond := ir.ConstInt64(i32, 1)
	b.BrIfTrue(cond, b1)
	b.SetCurrentBlock(entry)
	b.Jump(b2)

	b.SetCurrentBlock(b1)
	b.Redefine(x, ir.ConstInt64(i32, 2))
	b.Jump(b3)

	b.SetCurrentBlock(b2)
	b.Redefine(x, ir.ConstInt64(i32, 3))
	b.Jump(b3)

	b.SetCurrentBlock(b3)
	use := b.Move(i32, x)
	b.Jump(b.ExitBlock())

	Dominance(b)
	ConstructSSA(b)

	require.True(t, b.IsInSSAForm)
	phis := b3.Phis()
	require.Len(t, phis, 1)
	require.Equal(t, 2, phis[0].OperandCount())
	for n := 0; n < phis[0].OperandCount(); n++ {
		op := phis[0].Operand(n)
		require.Equal(t, x.VReg, op.VReg)
		require.True(t, op.IsSSA(), "phi operand %d must be SSA-renamed, got %s", n, op)
	}

	var found *ir.Instruction
	b3.ForEachInstruction(func(instr *ir.Instruction) {
		if instr.Opcode() == ir.OpcodeMove && found == nil {
			for i := 0; i < instr.OperandCount(); i++ {
				if instr.Operand(i).VReg == x.VReg {
					found = instr
				}
			}
		}
	})
	require.NotNil(t, found, "expected the use in b3 to reference x's vreg")
	require.True(t, found.Operand(0).IsSSA(), "use of x after the merge must be renamed to the phi's result")
	require.True(t, use.Valid())
}

// TestConstructSSA_NoMergeNoPhi checks the negative case: a virtual
// register defined exactly once needs no phi anywhere, even across
// multiple blocks that merely read it.
func TestConstructSSA_NoMergeNoPhi(t *testing.T) {
	b := ir.NewBuilder()
	entry := b.EntryBlock()
	i32 := ir.Scalar(ir.KindI32)

	b1, b2 := b.CreateBlock(), b.CreateBlock()
	x := b.AllocVReg(i32)

	b.SetCurrentBlock(entry)
	b.Redefine(x, ir.ConstInt64(i32, 1))
	cond := ir.ConstInt64(i32, 1)
	b.BrIfTrue(cond, b1)
	b.SetCurrentBlock(entry)
	b.Jump(b2)

	b.SetCurrentBlock(b1)
	b.Move(i32, x)
	b.Jump(b.ExitBlock())

	b.SetCurrentBlock(b2)
	b.Move(i32, x)
	b.Jump(b.ExitBlock())

	Dominance(b)
	ConstructSSA(b)

	require.Empty(t, b1.Phis())
	require.Empty(t, b2.Phis())
}
