package pass

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stjordanis/MOSA-Project/ir"
)

// buildDiamond wires entry -> {b1, b2} -> b3 -> exit, the canonical shape
// used to exercise dominance-frontier computation (b3's frontier is empty
// since both paths re-converge at b3 itself, but b1/b2 each dominate
// nothing past themselves).
func buildDiamond(b *ir.Builder) (b1, b2, b3 *ir.BasicBlock) {
	entry := b.EntryBlock()
	b1, b2, b3 = b.CreateBlock(), b.CreateBlock(), b.CreateBlock()

	b.SetCurrentBlock(entry)
	cond := ir.ConstInt64(ir.Scalar(ir.KindI32), 1)
	b.BrIfTrue(cond, b1)
	b.SetCurrentBlock(entry)
	b.Jump(b2)

	b.SetCurrentBlock(b1)
	b.Jump(b3)
	b.SetCurrentBlock(b2)
	b.Jump(b3)
	b.SetCurrentBlock(b3)
	b.Jump(b.ExitBlock())
	return
}

func TestDominance_Diamond(t *testing.T) {
	b := ir.NewBuilder()
	b1, b2, b3 := buildDiamond(b)

	Dominance(b)

	require.Equal(t, b.EntryBlock(), b1.IDom())
	require.Equal(t, b.EntryBlock(), b2.IDom())
	require.Equal(t, b.EntryBlock(), b3.IDom())
	require.False(t, b1.LoopHeader())
	require.False(t, b3.LoopHeader())
}

func TestDominance_Loop(t *testing.T) {
	b := ir.NewBuilder()
	entry := b.EntryBlock()
	header, body, after := b.CreateBlock(), b.CreateBlock(), b.CreateBlock()

	b.SetCurrentBlock(entry)
	b.Jump(header)

	cond := ir.ConstInt64(ir.Scalar(ir.KindI32), 1)
	b.SetCurrentBlock(header)
	b.BrIfTrue(cond, body)
	b.SetCurrentBlock(header)
	b.Jump(after)

	b.SetCurrentBlock(body)
	b.Jump(header)

	b.SetCurrentBlock(after)
	b.Jump(b.ExitBlock())

	Dominance(b)

	require.True(t, header.LoopHeader())
	require.False(t, body.LoopHeader())
	require.Equal(t, header, body.IDom())
	require.Equal(t, header, after.IDom())
}
