// Package typesystem declares the external, already-parsed type-and-method
// graph the compiler core consumes (§1 "it operates on an already-parsed
// type-and-method graph", §6 "Consumes: TypeSystem"). The metadata/assembly
// loader that produces a System is out of scope for this repository; only
// the query surface the core needs is declared here, together with a small
// in-memory implementation used by tests and by tools that already hold a
// fully materialized type graph.
package typesystem

// System is the query interface produced by the (external) metadata
// loader. The core never constructs a System; it only reads from one.
type System interface {
	// AllTypes returns every type known to this system, in a stable order.
	AllTypes() []Type
	// TypeModules returns the modules contributing types to this system.
	TypeModules() []Module
	// GetOpenGeneric returns the open (unbound) generic definition a
	// closed generic type was instantiated from, or nil if t is not a
	// generic instantiation.
	GetOpenGeneric(t Type) Type
}

// Module groups a set of types, mirroring an assembly/module boundary in
// the source metadata.
type Module interface {
	Name() string
	Types() []Type
}

// Type is a single class/struct/interface/array/pointer definition.
type Type interface {
	Name() string
	FullName() string

	// BaseType returns the direct base type, or nil for System.Object and
	// for interfaces.
	BaseType() Type
	// Interfaces returns the interfaces this type directly implements.
	Interfaces() []Type

	// IsInterface reports whether this type is an interface definition.
	IsInterface() bool
	// IsValueType reports whether this is a value type (struct), as
	// opposed to a reference type (class).
	IsValueType() bool
	// IsPrimitive reports whether this is one of the built-in scalar
	// types (integers, floats, bool, char, native int/pointer).
	IsPrimitive() bool
	// IsModule reports whether this is the pseudo-type representing a
	// module's global scope (skipped entirely by layout resolution).
	IsModule() bool
	// IsGhost reports whether this type has no base, is not an interface,
	// and is not System.Object — a malformed or placeholder type that
	// layout resolution must skip rather than loop on.
	IsGhost() bool

	// ElementType returns the modified/underlying type for pointer,
	// byref, and custom-modifier types; nil for everything else.
	ElementType() Type

	// PrimitiveSize returns the size in bytes of a primitive type. Only
	// meaningful when IsPrimitive() is true.
	PrimitiveSize() int

	Fields() []Field
	Methods() []Method

	// IsExplicitLayout reports whether fields carry explicit user offsets
	// (§4.3 step 5) as opposed to sequential layout (step 6).
	IsExplicitLayout() bool
	// PackingSize returns the user-specified packing size, or 0 to mean
	// "use native pointer alignment".
	PackingSize() int
	// ClassSize returns the user-specified explicit class size, or -1 if
	// unset.
	ClassSize() int

	GenericParameters() []Type
}

// Field is a static or instance field of a Type.
type Field interface {
	Name() string
	FieldType() Type
	IsStatic() bool
	// HasExplicitOffset reports whether Offset() is meaningful for this
	// field (only under explicit layout).
	HasExplicitOffset() bool
	Offset() int
}

// Method is a member function of a Type.
type Method interface {
	Name() string
	DeclaringType() Type
	Signature() Signature

	IsVirtual() bool
	IsNewSlot() bool
	IsStatic() bool
	IsRTSpecialName() bool // true for .cctor/.ctor
	IsInternalCall() bool
	IsExternal() bool // p/invoke or otherwise has no managed body.

	// Overrides returns the set of interface methods this method is an
	// explicit override ("MethodImpl") for.
	Overrides() []Method

	// Generic reports whether this method itself has generic parameters.
	Generic() bool
}

// Signature is a method's parameter/return shape, used by ABI lowering in
// the compiler package.
type Signature struct {
	Params  []Type
	Results []Type
}
