package linker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
)

// TestFinalize_SectionOrderAndAlignment is §8 scenario 5's supporting
// layout rule: sections land in a fixed order (text, data, rodata, bss),
// each virtual address padded up to VirtualSectionAlignment, and every
// symbol's address is its section's base plus its own SectionOffset.
func TestFinalize_SectionOrderAndAlignment(t *testing.T) {
	l := New(0x100000, 16, 16)

	_, err := l.Allocate("a", SectionText, 5, 1)
	require.NoError(t, err)
	_, err = l.Allocate("b", SectionData, 3, 1)
	require.NoError(t, err)

	require.NoError(t, l.Finalize())

	secs := l.Sections()
	require.Equal(t, SectionText, secs[0].Kind)
	require.Equal(t, uint64(0x100000), secs[0].VirtualAddr)
	require.Equal(t, SectionData, secs[1].Kind)
	require.Equal(t, uint64(0x100000+16), secs[1].VirtualAddr, "text's 5 bytes round up to the next 16-byte boundary")

	sa, ok := l.GetSymbol("a")
	require.True(t, ok)
	require.Equal(t, uint64(0x100000), sa.VirtualAddr)

	sb, ok := l.GetSymbol("b")
	require.True(t, ok)
	require.Equal(t, secs[1].VirtualAddr, sb.VirtualAddr)
}

// TestFinalize_BSSAdvancesAddressWithoutFileBytes covers the .bss sizing
// gap directly: a .bss allocation reserves virtual address space for every
// section that follows it, even though it contributes no bytes to its own
// section's file contents.
func TestFinalize_BSSAdvancesAddressWithoutFileBytes(t *testing.T) {
	l := New(0x1000, 4, 4)

	_, err := l.Allocate("zeroed", SectionBSS, 64, 4)
	require.NoError(t, err)
	_, err = l.Allocate("zeroed2", SectionBSS, 10, 4)
	require.NoError(t, err)

	require.NoError(t, l.Finalize())

	sz, ok := l.GetSymbol("zeroed")
	require.True(t, ok)
	require.Equal(t, uint64(0x1000), sz.VirtualAddr)

	sz2, ok := l.GetSymbol("zeroed2")
	require.True(t, ok)
	require.Equal(t, uint64(0x1000+64), sz2.VirtualAddr)

	secs := l.Sections()
	for _, s := range secs {
		if s.Kind == SectionBSS {
			require.Empty(t, s.Bytes, ".bss carries no file bytes regardless of how much space it reserves")
		}
	}
}

// TestAddMethodAndRelocate exercises a call-site relative relocation
// between two methods, the same shape EmitMethod/AddMethod produce for an
// ordinary call instruction.
func TestAddMethodAndRelocate(t *testing.T) {
	l := New(0, 16, 16)

	callee := []byte{0xC3} // ret
	require.NoError(t, l.AddMethod("callee", callee, nil))

	caller := []byte{0xE8, 0x00, 0x00, 0x00, 0x00, 0xC3} // call rel32; ret
	require.NoError(t, l.AddMethod("caller", caller, []isa.Relocation{
		{Kind: isa.RelocRelative32, Offset: 1, Target: ir.SymbolRef{Name: "callee"}},
	}))

	require.NoError(t, l.Finalize())

	callerSym, _ := l.GetSymbol("caller")
	calleeSym, _ := l.GetSymbol("callee")
	secs := l.Sections()
	var text Section
	for _, s := range secs {
		if s.Kind == SectionText {
			text = s
		}
	}
	fieldOff := int(callerSym.SectionOffset) + 1
	gotDisp := int32(uint32(text.Bytes[fieldOff]) | uint32(text.Bytes[fieldOff+1])<<8 | uint32(text.Bytes[fieldOff+2])<<16 | uint32(text.Bytes[fieldOff+3])<<24)
	wantDisp := int32(int64(calleeSym.VirtualAddr) - int64(text.VirtualAddr+uint64(fieldOff)+4))
	require.Equal(t, wantDisp, gotDisp)
}

// TestMultibootHeader is §8 scenario 5: a 64-byte header at a well-known
// symbol carries a valid Multiboot 1 magic/flags/checksum triple and the
// four address fields resolved once layout completes.
func TestMultibootHeader(t *testing.T) {
	l := New(0x100000, 8, 8)
	require.NoError(t, l.AddMethod("kmain", []byte{0xC3}, nil))
	require.NoError(t, WriteMultibootHeader(l, ir.SymbolRef{Name: "kmain"}))
	require.NoError(t, l.Finalize())

	hdr, ok := l.GetSymbol(multibootSymbol)
	require.True(t, ok)
	secs := l.Sections()
	var text Section
	for _, s := range secs {
		if s.Kind == SectionText {
			text = s
		}
	}
	base := int(hdr.SectionOffset)
	magic := le32(text.Bytes[base:])
	flags := le32(text.Bytes[base+4:])
	checksum := le32(text.Bytes[base+8:])
	require.Equal(t, uint32(multibootMagic), magic)
	require.Equal(t, uint32(multibootFlags), flags)
	require.Equal(t, uint32(0), magic+flags+checksum, "checksum must make magic+flags+checksum overflow to zero")

	headerAddr := le32(text.Bytes[base+12:])
	require.Equal(t, uint32(hdr.VirtualAddr), headerAddr)
	loadAddr := le32(text.Bytes[base+16:])
	require.Equal(t, uint32(0x100000), loadAddr)

	kmain, _ := l.GetSymbol("kmain")
	entryAddr := le32(text.Bytes[base+28:])
	require.Equal(t, uint32(kmain.VirtualAddr), entryAddr)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
