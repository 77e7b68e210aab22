package ir

import (
	"fmt"

	"github.com/stjordanis/MOSA-Project/typesystem"
)

// Kind is the scalar shape an operand's value takes at the IR level. It is
// deliberately coarser than typesystem.Type: everything the instruction set
// needs to know to pick an encoding (width, int-vs-float) lives here, while
// the full managed type (needed for field offsets and vtable dispatch) is
// carried alongside as Type.Managed.
type Kind byte

const (
	KindInvalid Kind = iota
	KindI8
	KindI16
	KindI32
	KindI64
	KindF32
	KindF64
	// KindPtr is a native-width pointer/managed-reference.
	KindPtr
	// KindValueType is a user value type wider than KindPtr; moved with
	// MoveCompound rather than a scalar move (§4.3 IsCompoundType, §4.5).
	KindValueType
)

func (k Kind) String() string {
	switch k {
	case KindI8:
		return "i8"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindPtr:
		return "ptr"
	case KindValueType:
		return "vt"
	default:
		return "invalid"
	}
}

// IsInt reports whether this is an integer (as opposed to floating-point)
// kind. Pointers count as integers for arithmetic/encoding purposes.
func (k Kind) IsInt() bool {
	switch k {
	case KindI8, KindI16, KindI32, KindI64, KindPtr:
		return true
	default:
		return false
	}
}

func (k Kind) IsFloat() bool { return k == KindF32 || k == KindF64 }

// Bits returns the width in bits of a scalar kind. Panics for KindValueType,
// whose size must instead come from layout.MosaTypeLayout.
func (k Kind) Bits(ptrSize int) int {
	switch k {
	case KindI8:
		return 8
	case KindI16:
		return 16
	case KindI32, KindF32:
		return 32
	case KindI64, KindF64:
		return 64
	case KindPtr:
		return ptrSize * 8
	default:
		panic(fmt.Sprintf("BUG: Bits() of non-scalar kind %s", k))
	}
}

// Type is the full type of an IR operand: a scalar Kind, plus (for
// KindPtr/KindValueType operands) the managed type backing it so that
// later stages can query layout.MosaTypeLayout for size/offset information.
type Type struct {
	Kind    Kind
	Managed typesystem.Type // nil for plain scalar kinds.
}

func Scalar(k Kind) Type { return Type{Kind: k} }

func Ref(t typesystem.Type) Type { return Type{Kind: KindPtr, Managed: t} }

func ValueType(t typesystem.Type) Type { return Type{Kind: KindValueType, Managed: t} }

func (t Type) String() string {
	if t.Managed != nil {
		return t.Kind.String() + ":" + t.Managed.Name()
	}
	return t.Kind.String()
}

func (t Type) Invalid() bool { return t.Kind == KindInvalid }

func (t Type) Equal(o Type) bool { return t.Kind == o.Kind && t.Managed == o.Managed }
