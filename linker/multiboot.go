package linker

import (
	"github.com/stjordanis/MOSA-Project/cerr"
	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
)

// multibootSymbol is the reserved header symbol §8 scenario 5 names; the
// `<$>` sigil marks it as compiler-generated rather than a user method
// (CreateSymbolName adds no such sigil to method names).
const multibootSymbol = "<$>mosa-multiboot-header"

const (
	multibootMagic = 0x1BADB002
	multibootFlags = 0x00000003 // memory-info | modules-page-aligned.
)

// WriteMultibootHeader implements §8 scenario 5: for a non-ELF linker, a
// 64-byte allocation at a well-known symbol in .text carries the
// Multiboot 1 header a boot loader scans for in a kernel image's first
// 8KB. header_addr/load_addr/load_end_addr/bss_end_addr are resolved in
// Finalize, once every section has a virtual address; entry_addr is
// linked as an ordinary relocation onto entryPoint, resolved the same
// way a call instruction's callee is.
func WriteMultibootHeader(l *AssemblyLinker, entryPoint ir.SymbolRef) error {
	buf, err := l.Allocate(multibootSymbol, SectionText, 64, 4)
	if err != nil {
		return err
	}
	var sum uint32 = multibootMagic + multibootFlags
	checksum := -sum

	putLE32(buf[0:], multibootMagic)
	putLE32(buf[4:], multibootFlags)
	putLE32(buf[8:], checksum)
	// offsets 12/16/20/24 (header_addr/load_addr/load_end_addr/
	// bss_end_addr) are left zeroed here and patched in finalizeMultiboot.
	l.headerAddrFixups = append(l.headerAddrFixups, multibootSymbol)
	return l.Link(isa.RelocAbsolute, multibootSymbol, 28, false, entryPoint, 0)
}

func (l *AssemblyLinker) finalizeMultiboot() error {
	for _, name := range l.headerAddrFixups {
		sym, ok := l.symbols[name]
		if !ok {
			return cerr.Linker("multiboot header symbol %q missing at finalize", name)
		}
		sec := l.sections[sym.Section]
		base := sym.SectionOffset
		putLE32(sec.Bytes[base+12:], uint32(sym.VirtualAddr)) // header_addr
		putLE32(sec.Bytes[base+16:], uint32(l.baseAddress))   // load_addr
		putLE32(sec.Bytes[base+20:], 0)                       // load_end_addr: load whole file.
		putLE32(sec.Bytes[base+24:], 0)                       // bss_end_addr
	}
	return nil
}
