package ir

import "fmt"

// Residence is the storage kind of an Operand (§3 Operand).
type Residence byte

const (
	ResidenceInvalid Residence = iota
	ResidenceConstant
	ResidenceVirtualRegister
	ResidenceCPURegister
	ResidenceStackLocal
	ResidenceSymbol
)

func (r Residence) String() string {
	switch r {
	case ResidenceConstant:
		return "const"
	case ResidenceVirtualRegister:
		return "vreg"
	case ResidenceCPURegister:
		return "preg"
	case ResidenceStackLocal:
		return "stack"
	case ResidenceSymbol:
		return "sym"
	default:
		return "invalid"
	}
}

// ConstKind distinguishes the four constant shapes §3 calls out.
type ConstKind byte

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstNull
	ConstSymbolRef
)

// VRegID is a unique, monotonically-allocated identifier for a pre-SSA
// virtual register. It never changes type once allocated (§3 "Virtual
// registers are monotonically allocated; a register never changes type
// after allocation").
type VRegID uint32

// RegClass partitions physical/virtual registers by the kind of value they
// hold, mirroring the int/float split used by every target ISA.
type RegClass byte

const (
	RegClassInt RegClass = iota
	RegClassFloat
)

// PhysReg identifies a CPU register in a platform-agnostic way: a class
// plus a small ordinal. Each isa package maps PhysReg values to concrete
// machine encodings (e.g. PhysReg{Int,0} -> EAX/RAX/X0 depending on
// platform) via its own register table.
type PhysReg struct {
	Class RegClass
	Num   uint8
}

// StackSlotID identifies a method-scoped stack slot (a parameter, local
// variable, or spill slot introduced by register allocation).
type StackSlotID uint32

// SymbolRef is a linker-resolved label: a method, a data symbol, or (for
// OpcodePhi-adjacent bookkeeping) a basic block's own label when taking its
// address for a branch table.
type SymbolRef struct {
	Name string
}

// Operand is the tagged value described in §3: every field below is valid
// only for the Residence the value was constructed with; reading the wrong
// field is a bug in the caller, not a runtime-checked error, matching the
// flattened single-struct style used for Instruction.
type Operand struct {
	Residence Residence
	Type      Type

	// Constant fields.
	ConstKind ConstKind
	IntValue  int64
	FloatBits uint64 // IEEE-754 bit pattern; read as float32 or float64 per Type.Kind.
	Symbol    SymbolRef

	// Virtual register fields.
	VReg       VRegID
	SSAVersion int32 // -1 means "not (or no longer) SSA-versioned".
	SSAParent  *Operand

	// CPU register field.
	Preg PhysReg

	// Stack local field.
	Slot StackSlotID
}

// Const builds an integer or null constant operand.
func ConstInt64(t Type, v int64) Operand {
	return Operand{Residence: ResidenceConstant, Type: t, ConstKind: ConstInt, IntValue: v}
}

func ConstNullOperand(t Type) Operand {
	return Operand{Residence: ResidenceConstant, Type: t, ConstKind: ConstNull}
}

func ConstF32(v float32) Operand {
	return Operand{Residence: ResidenceConstant, Type: Scalar(KindF32), ConstKind: ConstFloat, FloatBits: uint64(f32bits(v))}
}

func ConstF64(v float64) Operand {
	return Operand{Residence: ResidenceConstant, Type: Scalar(KindF64), ConstKind: ConstFloat, FloatBits: f64bits(v)}
}

func ConstSymbol(t Type, sym SymbolRef) Operand {
	return Operand{Residence: ResidenceConstant, Type: t, ConstKind: ConstSymbolRef, Symbol: sym}
}

// VirtualRegister builds a fresh, not-yet-SSA-versioned virtual register
// operand. SSA construction (ir/pass) is what later stamps SSAVersion/
// SSAParent in place on copies of this operand as it renames uses.
func VirtualRegister(id VRegID, t Type) Operand {
	return Operand{Residence: ResidenceVirtualRegister, Type: t, VReg: id, SSAVersion: -1}
}

// WithSSA returns a copy of a pre-SSA virtual-register operand stamped with
// an SSA version and a parent pointer back to the original (version -1)
// definition, per §3's "optional SSA version + parent pointing back to the
// pre-SSA virtual register".
func (o Operand) WithSSA(version int32, parent *Operand) Operand {
	if o.Residence != ResidenceVirtualRegister {
		panic("BUG: WithSSA on a non-virtual-register operand")
	}
	n := o
	n.SSAVersion = version
	n.SSAParent = parent
	return n
}

// IsSSA reports whether this operand still carries SSA versioning.
func (o Operand) IsSSA() bool {
	return o.Residence == ResidenceVirtualRegister && o.SSAVersion >= 0
}

func CPURegister(t Type, r PhysReg) Operand {
	return Operand{Residence: ResidenceCPURegister, Type: t, Preg: r}
}

func StackLocal(t Type, slot StackSlotID) Operand {
	return Operand{Residence: ResidenceStackLocal, Type: t, Slot: slot}
}

func Symbol(t Type, sym SymbolRef) Operand {
	return Operand{Residence: ResidenceSymbol, Type: t, Symbol: sym}
}

// Valid reports whether this is a real operand as opposed to a zero Operand
// used as a "no operand in this slot" placeholder.
func (o Operand) Valid() bool { return o.Residence != ResidenceInvalid }

// Identical reports whether a and b refer to the same underlying slot, per
// §3: "Two operands are identity-equal iff they refer to the same
// underlying slot." Constants compare by value since there is no slot to
// alias; every other residence compares by its identifying field only (not
// by Type, and not by SSA version for virtual registers, since the same
// slot can appear at different SSA versions).
func Identical(a, b Operand) bool {
	if a.Residence != b.Residence {
		return false
	}
	switch a.Residence {
	case ResidenceConstant:
		return a.ConstKind == b.ConstKind && a.IntValue == b.IntValue &&
			a.FloatBits == b.FloatBits && a.Symbol == b.Symbol
	case ResidenceVirtualRegister:
		return a.VReg == b.VReg
	case ResidenceCPURegister:
		return a.Preg == b.Preg
	case ResidenceStackLocal:
		return a.Slot == b.Slot
	case ResidenceSymbol:
		return a.Symbol == b.Symbol
	default:
		return false
	}
}

func (o Operand) String() string {
	switch o.Residence {
	case ResidenceConstant:
		switch o.ConstKind {
		case ConstInt:
			return fmt.Sprintf("$%d", o.IntValue)
		case ConstFloat:
			return fmt.Sprintf("$%s", formatFloatBits(o.Type.Kind, o.FloatBits))
		case ConstNull:
			return "$null"
		case ConstSymbolRef:
			return "$" + o.Symbol.Name
		}
	case ResidenceVirtualRegister:
		if o.SSAVersion >= 0 {
			return fmt.Sprintf("v%d.%d", o.VReg, o.SSAVersion)
		}
		return fmt.Sprintf("v%d", o.VReg)
	case ResidenceCPURegister:
		return fmt.Sprintf("r%d.%d", o.Preg.Class, o.Preg.Num)
	case ResidenceStackLocal:
		return fmt.Sprintf("local%d", o.Slot)
	case ResidenceSymbol:
		return "@" + o.Symbol.Name
	}
	return "<invalid>"
}

func formatFloatBits(k Kind, bits uint64) string {
	if k == KindF32 {
		return fmt.Sprintf("%g", f32frombits(uint32(bits)))
	}
	return fmt.Sprintf("%g", f64frombits(bits))
}
