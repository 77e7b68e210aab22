package compiler

import (
	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/layout"
	"github.com/stjordanis/MOSA-Project/typesystem"
)

// irTypeOf maps a managed typesystem.Type to the IR-level Type the
// decoder needs to pick instruction operands: scalar integer widths for
// primitives, a pointer kind for references and interfaces, and
// KindValueType only for the value types §4.3's IsCompoundType actually
// flags as compound (wider than a native pointer). A value type at or
// under pointer size — the common single-field-struct case — is an
// ordinary register-resident scalar, consistent with spec.md §3's
// "scalars <= native pointer size pass in registers". typesystem carries
// no dedicated float flag, so the float-vs-integer primitive split is
// resolved by the two well-known CLR primitive names; every other
// primitive width maps to the matching integer kind.
func irTypeOf(t typesystem.Type, lay *layout.MosaTypeLayout) ir.Type {
	if t == nil {
		return ir.Scalar(ir.KindPtr)
	}
	if t.IsPrimitive() {
		switch t.FullName() {
		case "System.Single":
			return ir.Scalar(ir.KindF32)
		case "System.Double":
			return ir.Scalar(ir.KindF64)
		}
		switch t.PrimitiveSize() {
		case 1:
			return ir.Scalar(ir.KindI8)
		case 2:
			return ir.Scalar(ir.KindI16)
		case 4:
			return ir.Scalar(ir.KindI32)
		case 8:
			return ir.Scalar(ir.KindI64)
		default:
			return ir.Scalar(ir.KindPtr)
		}
	}
	if t.IsValueType() {
		if compound, err := lay.IsCompoundType(t); err == nil && compound {
			return ir.ValueType(t)
		}
		// A non-compound value type (e.g. a single-field struct) fits in one
		// register word; it moves like a reference, but keeps its managed
		// type so a direct ldfld/stfld on the value still resolves offsets.
		return ir.Type{Kind: ir.KindPtr, Managed: t}
	}
	return ir.Ref(t)
}
