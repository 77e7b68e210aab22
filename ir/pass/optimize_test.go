package pass

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stjordanis/MOSA-Project/config"
	"github.com/stjordanis/MOSA-Project/ir"
)

// TestOptimize_ConstFoldAndDCE: 2 + 3 folds to the constant 5, the Move
// collapses by copy propagation, and the now-unreferenced Add is swept by
// dead-code elimination.
func TestOptimize_ConstFoldAndDCE(t *testing.T) {
	b := ir.NewBuilder()
	i32 := ir.Scalar(ir.KindI32)
	b.SetCurrentBlock(b.EntryBlock())

	sum := b.Binary(ir.OpcodeAdd, i32, ir.ConstInt64(i32, 2), ir.ConstInt64(i32, 3))
	result := b.Move(i32, sum)
	b.Return(result)

	Dominance(b)
	ConstructSSA(b)

	opts := config.Default(config.PlatformX64)
	require.NoError(t, Optimize(b, opts))

	ret := b.EntryBlock().Terminator()
	require.Equal(t, ir.OpcodeReturn, ret.Opcode())
	require.Equal(t, int64(5), ret.Operand(0).IntValue)

	var addAlive, moveAlive bool
	b.EntryBlock().ForEachInstruction(func(instr *ir.Instruction) {
		switch instr.Opcode() {
		case ir.OpcodeAdd:
			addAlive = true
		case ir.OpcodeMove:
			moveAlive = true
		}
	})
	require.False(t, addAlive, "constant add should be folded away by DCE")
	require.False(t, moveAlive, "copy should be propagated away by DCE")
}

// TestOptimize_DeadBlockElimination: a block with no predecessor is
// invalidated even though it contains a live-looking instruction.
func TestOptimize_DeadBlockElimination(t *testing.T) {
	b := ir.NewBuilder()
	i32 := ir.Scalar(ir.KindI32)

	unreachable := b.CreateBlock()
	b.SetCurrentBlock(unreachable)
	b.Return(ir.ConstInt64(i32, 1))

	b.SetCurrentBlock(b.EntryBlock())
	b.Return(ir.ConstInt64(i32, 0))

	Dominance(b)
	ConstructSSA(b)

	opts := config.Default(config.PlatformX64)
	require.NoError(t, Optimize(b, opts))

	require.False(t, unreachable.Valid())
	require.True(t, b.EntryBlock().Valid())
}
