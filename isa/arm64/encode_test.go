package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/arm64/arm64asm"

	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
	"github.com/stjordanis/MOSA-Project/regalloc"
)

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

// TestEmitMethod_Deterministic is §8's universal invariant, checked on both
// the 64-bit (ARMv8) and 32-bit (ARMv6) configurations of this target.
func TestEmitMethod_Deterministic(t *testing.T) {
	for _, m := range []*Machine{NewARMv8(), NewARMv6()} {
		t.Run(m.Name(), func(t *testing.T) {
			b := buildAddReturn(t, m)
			frame := isa.Frame{}

			w1, err := m.EmitMethod(b, frame)
			require.NoError(t, err)
			require.NotEmpty(t, w1.Bytes)
			require.Zero(t, len(w1.Bytes)%4, "every instruction on this target is a 4-byte word")

			w2, err := m.EmitMethod(b, frame)
			require.NoError(t, err)
			require.Equal(t, w1.Bytes, w2.Bytes)
		})
	}
}

func TestPointerSize(t *testing.T) {
	require.Equal(t, 8, NewARMv8().PointerSize())
	require.Equal(t, 4, NewARMv6().PointerSize())
}

func TestRemainderUnsupported(t *testing.T) {
	m := NewARMv8()
	b := ir.NewBuilder()
	i32 := ir.Scalar(ir.KindI32)
	b.SetCurrentBlock(b.EntryBlock())

	a := b.AllocVReg(i32)
	c := b.AllocVReg(i32)
	r := b.Binary(ir.OpcodeRemSigned, i32, a, c)
	b.Return(r)
	b.Jump(b.ExitBlock())
	b.IsInSSAForm = false

	require.NoError(t, m.Lower(b))
	require.NoError(t, m.Tweak(b))
	require.NoError(t, m.AssignFixedRegisters(b))
	require.NoError(t, regalloc.Allocate(b, regalloc.Config(m.RegallocConfig())))

	_, err := m.EmitMethod(b, isa.Frame{})
	require.Error(t, err, "this target has no single remainder instruction")
}

// TestEmitMethod_DecodesAsValidAArch64 feeds every emitted 4-byte word
// through an independent AArch64 disassembler, checking the encoder never
// produces a word no real decoder recognizes.
func TestEmitMethod_DecodesAsValidAArch64(t *testing.T) {
	m := NewARMv8()
	b := buildAddReturn(t, m)

	w, err := m.EmitMethod(b, isa.Frame{})
	require.NoError(t, err)

	for off := 0; off < len(w.Bytes); off += 4 {
		_, err := arm64asm.Decode(w.Bytes[off : off+4])
		require.NoErrorf(t, err, "undecodable instruction word at offset %d: % x", off, w.Bytes[off:off+4])
	}
}

func TestRegallocConfig_ReservesScratch(t *testing.T) {
	cfg := NewARMv8().RegallocConfig()
	require.NotEmpty(t, cfg.Allocatable[ir.RegClassInt])
	require.NotEmpty(t, cfg.Scratch[ir.RegClassInt])
	for _, r := range cfg.Allocatable[ir.RegClassInt] {
		for _, s := range cfg.Scratch[ir.RegClassInt] {
			require.NotEqual(t, s, r, "scratch registers must not double as general-allocatable ones")
		}
	}
}
