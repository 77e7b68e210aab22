// Package layout implements MosaTypeLayout (§4.3): the single shared,
// lock-guarded engine that resolves every type known to a TypeSystem into
// its size, field offsets, method table (vtable), and interface-slot
// tables, once, eagerly, at construction.
package layout

import (
	"sync"

	"github.com/stjordanis/MOSA-Project/cerr"
	"github.com/stjordanis/MOSA-Project/typesystem"
)

// TypeLayout is the memoized result for a single type: its size, its
// non-static fields' offsets, its method table, and the interface method
// tables it implements.
type TypeLayout struct {
	Type typesystem.Type
	Size int

	fieldOffsets map[typesystem.Field]int

	// MethodTable is the vtable: methodTable[i] is the method occupying
	// slot i, following the base type's prefix (§8's "methodTable(T).length
	// >= methodTable(T.base).length, and the prefix agrees on non-overridden
	// slots").
	MethodTable []typesystem.Method

	// InterfaceTables maps each implemented interface to its per-interface
	// method table (§4.3 step 8).
	InterfaceTables map[typesystem.Type][]typesystem.Method
}

// FieldOffset returns the byte offset of f within this type. Per §4.3's
// contract, only meaningful for non-static fields; static fields (and
// fields layout never saw) report 0.
func (l *TypeLayout) FieldOffset(f typesystem.Field) int {
	return l.fieldOffsets[f]
}

// MosaTypeLayout is the shared layout engine (§5's "only non-trivially
// shared data structure"). Every query serializes through a single mutex:
// layout resolution performs mutual recursion across base types and
// declared interfaces, so a per-type lock would deadlock (§5 rationale).
type MosaTypeLayout struct {
	mu sync.Mutex

	sys      typesystem.System
	ptrSize  int
	ptrAlign int

	resolved  map[typesystem.Type]*TypeLayout
	visiting  map[typesystem.Type]bool
	overridden map[typesystem.Method]bool

	ifaceSlots    map[typesystem.Type]int
	nextIfaceSlot int
}

// New resolves every type in sys eagerly and returns the ready-to-query
// engine. ptrSize must be 4 or 8; ptrAlign is the native pointer alignment
// used as the default sequential-layout packing size.
func New(sys typesystem.System, ptrSize, ptrAlign int) (*MosaTypeLayout, error) {
	if ptrSize != 4 && ptrSize != 8 {
		return nil, cerr.Invariant("layout", "ptrSize must be 4 or 8, got %d", ptrSize)
	}
	l := &MosaTypeLayout{
		sys:        sys,
		ptrSize:    ptrSize,
		ptrAlign:   ptrAlign,
		resolved:   make(map[typesystem.Type]*TypeLayout),
		visiting:   make(map[typesystem.Type]bool),
		overridden: make(map[typesystem.Method]bool),
		ifaceSlots: make(map[typesystem.Type]int),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range sys.AllTypes() {
		if _, err := l.resolveLocked(t); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Get returns the memoized layout for t, resolving it on demand (§5: "every
// public getter acquires the lock, ensures the type is resolved... and
// returns a copy of or a stable reference to the memoized result") if t was
// not reachable from the System's AllTypes() walk at construction time.
func (l *MosaTypeLayout) Get(t typesystem.Type) (*TypeLayout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolveLocked(t)
}

// Size returns the resolved size of t in bytes.
func (l *MosaTypeLayout) Size(t typesystem.Type) (int, error) {
	tl, err := l.Get(t)
	if err != nil {
		return 0, err
	}
	if tl == nil {
		return 0, nil
	}
	return tl.Size, nil
}

// GetFieldOffset implements §4.3's contract: defined only for non-static
// fields; returns 0 for static ones.
func (l *MosaTypeLayout) GetFieldOffset(owner typesystem.Type, f typesystem.Field) (int, error) {
	if f.IsStatic() {
		return 0, nil
	}
	tl, err := l.Get(owner)
	if err != nil {
		return 0, err
	}
	if tl == nil {
		return 0, nil
	}
	return tl.FieldOffset(f), nil
}

// IsCompoundType implements §4.3: true iff T is a user value type of size
// greater than the native pointer, or a primitive wider than 8 bytes.
func (l *MosaTypeLayout) IsCompoundType(t typesystem.Type) (bool, error) {
	if t.IsPrimitive() {
		return t.PrimitiveSize() > 8, nil
	}
	if !t.IsValueType() {
		return false, nil
	}
	sz, err := l.Size(t)
	if err != nil {
		return false, err
	}
	return sz > l.ptrSize, nil
}

// IsStoredOnStack mirrors IsCompoundType: Leave-SSA (§4.5) uses it to
// choose MoveCompound over a scalar move, and in this design a value needs
// a multi-word copy under exactly the same condition that makes it a
// compound type.
func (l *MosaTypeLayout) IsStoredOnStack(t typesystem.Type) (bool, error) {
	return l.IsCompoundType(t)
}

// IsMethodOverridden implements §4.3: it reports whether some resolved
// type's method table replaced m's slot with an override. The answer is
// recorded while method tables are built, so this is a lookup only.
func (l *MosaTypeLayout) IsMethodOverridden(m typesystem.Method) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.overridden[m]
}

// InterfaceSlot returns the dense slot index assigned to an interface type,
// assigning one if iface has not been seen by any resolved type yet.
func (l *MosaTypeLayout) InterfaceSlot(iface typesystem.Type) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.internSlot(iface)
}

func (l *MosaTypeLayout) internSlot(iface typesystem.Type) int {
	if slot, ok := l.ifaceSlots[iface]; ok {
		return slot
	}
	slot := l.nextIfaceSlot
	l.nextIfaceSlot++
	l.ifaceSlots[iface] = slot
	return slot
}

// resolveLocked implements the §4.3 per-type algorithm. Callers must hold
// l.mu. The visiting set is the cycle guard called for by §9's design note
// "Cyclic type-layout graph": no value type can actually contain itself,
// but base-type/interface mutual recursion means resolution can re-enter
// the same type before it is memoized, and the guard prevents looping on
// that re-entry rather than signaling an error.
func (l *MosaTypeLayout) resolveLocked(t typesystem.Type) (*TypeLayout, error) {
	if t == nil {
		return nil, nil
	}
	if tl, ok := l.resolved[t]; ok {
		return tl, nil
	}
	if l.visiting[t] {
		return nil, nil
	}

	// Step 1: skip module pseudo-types and ghost types; resolve a
	// modifier's element type in its place.
	if t.IsModule() || t.IsGhost() {
		return nil, nil
	}
	if elem := t.ElementType(); elem != nil {
		return l.resolveLocked(elem)
	}

	l.visiting[t] = true
	defer delete(l.visiting, t)

	// Step 2: resolve the base type first.
	var baseLayout *TypeLayout
	if base := t.BaseType(); base != nil {
		bl, err := l.resolveLocked(base)
		if err != nil {
			return nil, err
		}
		baseLayout = bl
	}

	// Step 3: assign dense interface slots for any interface not seen yet.
	for _, iface := range t.Interfaces() {
		l.internSlot(iface)
	}

	tl := &TypeLayout{
		Type:            t,
		fieldOffsets:    make(map[typesystem.Field]int),
		InterfaceTables: make(map[typesystem.Type][]typesystem.Method),
	}

	switch {
	case t.IsPrimitive():
		// Step 4.
		tl.Size = t.PrimitiveSize()
	case t.IsExplicitLayout():
		// Step 5.
		if err := l.layoutExplicit(t, tl); err != nil {
			return nil, err
		}
	default:
		// Step 6.
		if err := l.layoutSequential(t, baseLayout, tl); err != nil {
			return nil, err
		}
	}

	// Step 7: build the method table.
	l.buildMethodTable(t, baseLayout, tl)

	// Step 8: build each implemented interface's method table.
	l.buildInterfaceTables(t, tl)

	l.resolved[t] = tl
	return tl, nil
}

func (l *MosaTypeLayout) fieldSize(f typesystem.Type) (int, error) {
	switch {
	case f.IsPrimitive():
		return f.PrimitiveSize(), nil
	case f.IsValueType():
		sz, err := l.Size(f)
		if err != nil {
			return 0, err
		}
		return sz, nil
	default:
		return l.ptrSize, nil
	}
}

func (l *MosaTypeLayout) layoutExplicit(t typesystem.Type, tl *TypeLayout) error {
	max := 0
	for _, f := range t.Fields() {
		if f.IsStatic() {
			continue
		}
		sz, err := l.fieldSize(f.FieldType())
		if err != nil {
			return err
		}
		off := f.Offset()
		tl.fieldOffsets[f] = off
		if end := off + sz; end > max {
			max = end
		}
	}
	if cs := t.ClassSize(); cs != -1 && cs > max {
		max = cs
	}
	tl.Size = max
	return nil
}

func (l *MosaTypeLayout) layoutSequential(t typesystem.Type, baseLayout *TypeLayout, tl *TypeLayout) error {
	packing := t.PackingSize()
	if packing == 0 {
		packing = l.ptrAlign
	}

	size := 0
	if !t.IsValueType() && baseLayout != nil {
		size = baseLayout.Size
	}

	for _, f := range t.Fields() {
		if f.IsStatic() {
			continue
		}
		sz, err := l.fieldSize(f.FieldType())
		if err != nil {
			return err
		}
		off := size
		tl.fieldOffsets[f] = off
		size = off + sz
		size = roundUp(size, packing)
	}
	tl.Size = size
	return nil
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

// buildMethodTable implements §4.3 step 7.
func (l *MosaTypeLayout) buildMethodTable(t typesystem.Type, baseLayout *TypeLayout, tl *TypeLayout) {
	if baseLayout != nil {
		tl.MethodTable = append(tl.MethodTable, baseLayout.MethodTable...)
	}

	for _, m := range t.Methods() {
		switch {
		case m.IsVirtual() && m.IsNewSlot():
			tl.MethodTable = append(tl.MethodTable, m)
		case m.IsVirtual() && !m.IsNewSlot():
			slot := findOverrideSlot(tl.MethodTable, m)
			if slot < 0 {
				tl.MethodTable = append(tl.MethodTable, m)
				break
			}
			// Only the immediate occupant needs marking here: if it was
			// itself an override, its own ancestor was already marked
			// overridden when that override was first applied.
			l.overridden[tl.MethodTable[slot]] = true
			tl.MethodTable[slot] = m
		case m.IsRTSpecialName() && m.IsStatic():
			tl.MethodTable = append(tl.MethodTable, m)
		case !m.IsInternalCall() && !m.IsExternal() && !m.IsVirtual():
			tl.MethodTable = append(tl.MethodTable, m)
		}
	}
}

// findOverrideSlot finds the base-table slot an override method replaces:
// same clean name, equal signature, preferring a non-generic match when m
// itself is generic (§4.3 step 7).
func findOverrideSlot(table []typesystem.Method, m typesystem.Method) int {
	best := -1
	for i, cand := range table {
		if cand.Name() != m.Name() {
			continue
		}
		if !signaturesEqual(cand.Signature(), m.Signature()) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		if m.Generic() && !cand.Generic() {
			best = i
		}
	}
	return best
}

func signaturesEqual(a, b typesystem.Signature) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

// buildInterfaceTables implements §4.3 step 8: for each implemented
// interface, first scan T and its ancestors for an implicit match (clean
// name + equal signature, skipping explicit-interface methods during the
// implicit scan), then apply explicit-interface overrides declared via
// Overrides() on T's own methods.
func (l *MosaTypeLayout) buildInterfaceTables(t typesystem.Type, tl *TypeLayout) {
	ancestry := ancestorChain(t)

	for _, iface := range t.Interfaces() {
		methods := iface.Methods()
		table := make([]typesystem.Method, len(methods))

		for i, im := range methods {
			for _, candidateType := range ancestry {
				match := findImplicitMatch(candidateType, im)
				if match != nil {
					table[i] = match
					break
				}
			}
		}

		for _, m := range t.Methods() {
			for _, overridden := range m.Overrides() {
				for i, im := range methods {
					if im == overridden {
						table[i] = m
					}
				}
			}
		}

		tl.InterfaceTables[iface] = table
	}
}

func ancestorChain(t typesystem.Type) []typesystem.Type {
	var chain []typesystem.Type
	for cur := t; cur != nil; cur = cur.BaseType() {
		chain = append(chain, cur)
	}
	return chain
}

// findImplicitMatch scans candidateType's own methods (not its bases) for
// an implicit implementation of interface method im: same clean name, same
// signature, not itself an explicit-interface override.
func findImplicitMatch(candidateType typesystem.Type, im typesystem.Method) typesystem.Method {
	for _, m := range candidateType.Methods() {
		if len(m.Overrides()) > 0 {
			continue
		}
		if m.Name() == im.Name() && signaturesEqual(m.Signature(), im.Signature()) {
			return m
		}
	}
	return nil
}
