package x86

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
	"github.com/stjordanis/MOSA-Project/regalloc"
)

// buildAddReturn builds a two-vreg `return a + b` method body, lowers it
// against m, assigns physical registers, and returns the builder ready for
// EmitMethod.
func buildAddReturn(t *testing.T, m *Machine) *ir.Builder {
	b := ir.NewBuilder()
	i32 := ir.Scalar(ir.KindI32)
	b.SetCurrentBlock(b.EntryBlock())

	a := b.AllocVReg(i32)
	c := b.AllocVReg(i32)
	sum := b.Binary(ir.OpcodeAdd, i32, a, c)
	b.Return(sum)
	b.Jump(b.ExitBlock())
	b.IsInSSAForm = false

	require.NoError(t, m.Lower(b))
	require.NoError(t, m.Tweak(b))
	require.NoError(t, m.AssignFixedRegisters(b))
	require.NoError(t, regalloc.Allocate(b, regalloc.Config(m.RegallocConfig())))
	return b
}

// TestEmitMethod_Deterministic is §8's universal invariant: re-running the
// Code Emitter against the same fully-allocated block graph produces byte
// for byte identical output.
func TestEmitMethod_Deterministic(t *testing.T) {
	m := New()
	b := buildAddReturn(t, m)
	frame := isa.Frame{}

	w1, err := m.EmitMethod(b, frame)
	require.NoError(t, err)
	require.NotEmpty(t, w1.Bytes)

	w2, err := m.EmitMethod(b, frame)
	require.NoError(t, err)
	require.Equal(t, w1.Bytes, w2.Bytes)
}

// TestEmitMethod_DecodesAsValidX86 feeds the emitted stream through an
// independent x86 disassembler, checking every byte belongs to some real
// 32-bit instruction rather than just happening to be non-empty.
func TestEmitMethod_DecodesAsValidX86(t *testing.T) {
	m := New()
	b := buildAddReturn(t, m)

	w, err := m.EmitMethod(b, isa.Frame{})
	require.NoError(t, err)

	code := w.Bytes
	for len(code) > 0 {
		inst, err := x86asm.Decode(code, 32)
		require.NoErrorf(t, err, "undecodable byte sequence at offset %d: % x", len(w.Bytes)-len(code), code)
		require.Greater(t, inst.Len, 0)
		code = code[inst.Len:]
	}
}

func TestRegallocConfig_ReservesScratch(t *testing.T) {
	cfg := New().RegallocConfig()
	require.NotEmpty(t, cfg.Allocatable[ir.RegClassInt])
	require.NotEmpty(t, cfg.Scratch[ir.RegClassInt])
	for _, r := range cfg.Allocatable[ir.RegClassInt] {
		for _, s := range cfg.Scratch[ir.RegClassInt] {
			require.NotEqual(t, s, r, "scratch registers must not double as general-allocatable ones")
		}
	}
}
