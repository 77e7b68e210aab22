// Package linker implements §6's IAssemblyLinker and the final section
// layout §5 calls out as a single-threaded finalize phase: every method's
// compiled bytes and relocation requests, plus any directly-Allocate'd
// data symbol (the multiboot header is one), are laid out into ordered
// sections at a chosen base address, after which every relocation is
// resolved and patched in place.
package linker

import (
	"sort"

	"github.com/stjordanis/MOSA-Project/cerr"
	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
)

// SectionKind names one of the four section kinds §6 lists as the
// Produces of the pipeline: text, data, rodata, bss.
type SectionKind int

const (
	SectionText SectionKind = iota
	SectionData
	SectionRodata
	SectionBSS
)

func (k SectionKind) String() string {
	switch k {
	case SectionText:
		return ".text"
	case SectionData:
		return ".data"
	case SectionRodata:
		return ".rodata"
	case SectionBSS:
		return ".bss"
	default:
		return "unknown"
	}
}

// Symbol is a named, sized allocation inside one section, resolved to a
// concrete virtual address once layout runs.
type Symbol struct {
	Name          string
	Section       SectionKind
	SectionOffset int
	Size          int
	VirtualAddr   uint64
}

// Section accumulates every symbol's bytes for one SectionKind in
// allocation order, per §6 "ordered list, each with SectionKind and
// VirtualAddress".
type Section struct {
	Kind          SectionKind
	Bytes         []byte
	VirtualAddr   uint64
	SectionOffset uint64
}

// pendingReloc mirrors isa.Relocation but additionally names the symbol
// whose section/stream the relocation site lives in, since isa.Relocation
// itself is scoped to one method's CodeWriter and knows nothing about
// final placement.
type pendingReloc struct {
	inSymbol string
	isa.Relocation
}

// explicitLink is a relocation requested directly through Link rather
// than discovered from an isa.CodeWriter, e.g. the multiboot header's
// entry-point field.
type explicitLink struct {
	inSymbol      string
	offset        int
	relativeBase  bool
	targetSymbol  ir.SymbolRef
	addend        int64
}

// IAssemblyLinker is §6's linker-facing interface: the one collaborator
// every isa.Machine's EmitMethod and every data-symbol producer (the
// multiboot header writer) depend on, without needing to know how final
// sections are laid out or addressed.
type IAssemblyLinker interface {
	Allocate(symbolName string, kind SectionKind, size, alignment int) ([]byte, error)
	Link(linkType isa.RelocKind, inSymbol string, offset int, relativeBase bool, targetSymbol ir.SymbolRef, addend int64) error
	GetSymbol(name string) (Symbol, bool)
	CreateSymbolName(method string) string
	Sections() []Section
	BaseAddress() uint64
	LoadSectionAlignment() int
	VirtualSectionAlignment() int
}

// AssemblyLinker is the in-memory IAssemblyLinker implementation: it
// accumulates every Allocate'd symbol into its section's byte buffer,
// records every relocation request, and resolves the whole graph in one
// Finalize pass, matching §5's "final section layout is deferred to a
// single-threaded finalize phase" (no data symbol's address is known
// until every other symbol ahead of it in its section has also been
// allocated).
type AssemblyLinker struct {
	baseAddress    uint64
	loadAlignment  int
	virtualAlignment int

	sections map[SectionKind]*Section
	symbols  map[string]*Symbol
	order    []string // allocation order, for deterministic layout.

	relocs []pendingReloc
	links  []explicitLink

	// bssSize tracks .bss's total reserved extent separately from any
	// section's Bytes, since Allocate never grows .bss's backing buffer
	// (it carries no file contents) and Finalize needs something other
	// than len(Bytes) to advance its virtual address past it.
	bssSize int

	// headerAddrFixups names every symbol WriteMultibootHeader allocated.
	// Its header_addr field is self-referential (this symbol's own final
	// address), load_addr is the linker's base address, and load_end_addr/
	// bss_end_addr are zero, so these fields are patched directly in
	// Finalize instead of through the generic symbol-to-symbol resolve
	// path the relocs/links lists drive.
	headerAddrFixups []string

	finalized bool
}

// New builds an AssemblyLinker. loadAlignment/virtualAlignment implement
// §6's LoadSectionAlignment/VirtualSectionAlignment; §7 calls a mismatch
// between the two a linker layout conflict for non-ELF multiboot targets,
// checked in Finalize.
func New(baseAddress uint64, loadAlignment, virtualAlignment int) *AssemblyLinker {
	return &AssemblyLinker{
		baseAddress:      baseAddress,
		loadAlignment:    loadAlignment,
		virtualAlignment: virtualAlignment,
		sections: map[SectionKind]*Section{
			SectionText:   {Kind: SectionText},
			SectionData:   {Kind: SectionData},
			SectionRodata: {Kind: SectionRodata},
			SectionBSS:    {Kind: SectionBSS},
		},
		symbols: map[string]*Symbol{},
	}
}

func (l *AssemblyLinker) BaseAddress() uint64 { return l.baseAddress }

func (l *AssemblyLinker) LoadSectionAlignment() int { return l.loadAlignment }

func (l *AssemblyLinker) VirtualSectionAlignment() int { return l.virtualAlignment }

// CreateSymbolName builds the stable per-method symbol name every
// isa.Machine's ir.Instruction.Callee() targets. It returns the method
// name unchanged; no sigil or prefix is added (the `<$>` sigil appears
// only on the reserved multiboot header symbol).
func (l *AssemblyLinker) CreateSymbolName(method string) string {
	return method
}

// Allocate reserves size bytes (zero-initialized) for symbolName inside
// kind, padding the section's current length up to alignment first, and
// returns a slice of that section's backing buffer the caller can write
// into directly (EmitMethod's caller copies CodeWriter.Bytes into it;
// the multiboot writer builds its 64 bytes in place).
func (l *AssemblyLinker) Allocate(symbolName string, kind SectionKind, size, alignment int) ([]byte, error) {
	if l.finalized {
		return nil, cerr.Linker("Allocate(%s) called after Finalize", symbolName)
	}
	if _, exists := l.symbols[symbolName]; exists {
		return nil, cerr.Linker("symbol %q allocated more than once", symbolName)
	}
	sec := l.sections[kind]

	if kind == SectionBSS {
		if alignment > 1 {
			pad := (alignment - l.bssSize%alignment) % alignment
			l.bssSize += pad
		}
		sym := &Symbol{Name: symbolName, Section: kind, SectionOffset: l.bssSize, Size: size}
		l.symbols[symbolName] = sym
		l.order = append(l.order, symbolName)
		l.bssSize += size
		return make([]byte, size), nil // bss carries no file bytes; Finalize sizes the section from bssSize instead.
	}

	if alignment > 1 {
		pad := (alignment - len(sec.Bytes)%alignment) % alignment
		sec.Bytes = append(sec.Bytes, make([]byte, pad)...)
	}
	sym := &Symbol{Name: symbolName, Section: kind, SectionOffset: len(sec.Bytes), Size: size}
	l.symbols[symbolName] = sym
	l.order = append(l.order, symbolName)
	sec.Bytes = append(sec.Bytes, make([]byte, size)...)
	return sec.Bytes[sym.SectionOffset : sym.SectionOffset+size], nil
}

// Link requests a relocation at offset bytes into inSymbol's allocation,
// resolved against targetSymbol once every symbol has a final address.
// relativeBase selects RelocRelative32's "relative to the site's own end"
// convention (linkType RelocRelative32 implies relativeBase in practice;
// the parameter exists because §6 names it as an independent argument of
// Link).
func (l *AssemblyLinker) Link(linkType isa.RelocKind, inSymbol string, offset int, relativeBase bool, targetSymbol ir.SymbolRef, addend int64) error {
	if _, ok := l.symbols[inSymbol]; !ok {
		return cerr.Linker("Link references unknown symbol %q", inSymbol)
	}
	l.links = append(l.links, explicitLink{
		inSymbol: inSymbol, offset: offset, relativeBase: relativeBase,
		targetSymbol: targetSymbol, addend: addend,
	})
	_ = linkType
	return nil
}

// GetSymbol looks up a symbol's final layout. Before Finalize runs,
// VirtualAddr is always zero.
func (l *AssemblyLinker) GetSymbol(name string) (Symbol, bool) {
	sym, ok := l.symbols[name]
	if !ok {
		return Symbol{}, false
	}
	return *sym, true
}

// Sections returns every section in a fixed, deterministic kind order
// (text, data, rodata, bss), each carrying the VirtualAddr Finalize
// assigned it.
func (l *AssemblyLinker) Sections() []Section {
	kinds := []SectionKind{SectionText, SectionData, SectionRodata, SectionBSS}
	out := make([]Section, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, *l.sections[k])
	}
	return out
}

// AddMethod registers a compiled method's code and relocation requests
// under symbolName, the glue between compiler.MethodCompiler's per-method
// output and this linker's section layout — not part of IAssemblyLinker
// itself, since §6 describes Allocate/Link as the per-symbol primitives
// and leaves how a whole method's bytes reach them as an implementation
// detail.
func (l *AssemblyLinker) AddMethod(symbolName string, code []byte, relocs []isa.Relocation) error {
	dst, err := l.Allocate(symbolName, SectionText, len(code), 16)
	if err != nil {
		return err
	}
	copy(dst, code)
	for _, r := range relocs {
		l.relocs = append(l.relocs, pendingReloc{inSymbol: symbolName, Relocation: r})
	}
	return nil
}

// Finalize implements §5's single-threaded finalize phase: it assigns
// each section a virtual address in kind order, aligned to
// VirtualSectionAlignment, computes every symbol's absolute address from
// its section's base plus its SectionOffset, then resolves every
// relocation (both the ones isa.Machine's EmitMethod requested and the
// ones reported directly through Link) by patching the resolved address
// (RelocAbsolute) or PC-relative displacement (RelocRelative32, computed
// from the relocation site's own end, per isa.Relocation's doc comment)
// into the owning section's bytes.
func (l *AssemblyLinker) Finalize() error {
	if l.finalized {
		return cerr.Linker("Finalize called twice")
	}
	if l.loadAlignment <= 0 || l.virtualAlignment <= 0 {
		return cerr.Linker("load/virtual section alignment must be positive (got %d/%d)", l.loadAlignment, l.virtualAlignment)
	}
	if len(l.headerAddrFixups) > 0 && l.loadAlignment != l.virtualAlignment {
		return cerr.Linker("load section alignment %d differs from virtual section alignment %d in a multiboot image", l.loadAlignment, l.virtualAlignment)
	}

	addr := l.baseAddress
	for _, kind := range []SectionKind{SectionText, SectionData, SectionRodata, SectionBSS} {
		sec := l.sections[kind]
		if pad := int(addr) % l.virtualAlignment; pad != 0 {
			addr += uint64(l.virtualAlignment - pad)
		}
		sec.VirtualAddr = addr
		if kind == SectionBSS {
			addr += uint64(l.bssSize)
		} else {
			addr += uint64(len(sec.Bytes))
		}
	}

	names := make([]string, 0, len(l.symbols))
	for name := range l.symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sym := l.symbols[name]
		sym.VirtualAddr = l.sections[sym.Section].VirtualAddr + uint64(sym.SectionOffset)
	}

	for _, r := range l.relocs {
		if err := l.resolve(r.inSymbol, r.Kind, r.Offset, r.Target, r.Addend); err != nil {
			return err
		}
	}
	for _, link := range l.links {
		kind := isa.RelocAbsolute
		if link.relativeBase {
			kind = isa.RelocRelative32
		}
		if err := l.resolve(link.inSymbol, kind, link.offset, link.targetSymbol, link.addend); err != nil {
			return err
		}
	}

	if err := l.finalizeMultiboot(); err != nil {
		return err
	}

	l.finalized = true
	return nil
}

func (l *AssemblyLinker) resolve(inSymbol string, kind isa.RelocKind, offset int, target ir.SymbolRef, addend int64) error {
	site, ok := l.symbols[inSymbol]
	if !ok {
		return cerr.Linker("relocation in unknown symbol %q", inSymbol)
	}
	targetSym, ok := l.symbols[target.Name]
	if !ok {
		return cerr.Linker("relocation in %q references undefined symbol %q", inSymbol, target.Name)
	}
	sec := l.sections[site.Section]
	if offset < 0 || offset+4 > len(sec.Bytes)-site.SectionOffset {
		return cerr.Linker("relocation site in %q at offset %d is out of bounds", inSymbol, offset)
	}
	fieldOff := site.SectionOffset + offset

	switch kind {
	case isa.RelocAbsolute:
		value := targetSym.VirtualAddr + uint64(addend)
		putLE32(sec.Bytes[fieldOff:], uint32(value))
	case isa.RelocRelative32:
		siteEndAddr := sec.VirtualAddr + uint64(fieldOff) + 4
		disp := int64(targetSym.VirtualAddr) - int64(siteEndAddr) + addend
		putLE32(sec.Bytes[fieldOff:], uint32(int32(disp)))
	default:
		return cerr.Linker("unknown relocation kind %v in %q", kind, inSymbol)
	}
	return nil
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
