// Package compiler implements §4.4's Method Compiler and Stage Pipeline:
// the per-method driver that owns a method's IR graph and runs the fixed
// sequence of stages against it, from CIL decoding through code emission.
package compiler

import (
	"github.com/stjordanis/MOSA-Project/typesystem"
)

// ProtectedRegion is one exception-handling clause attached to a method
// body, mirroring ECMA-335's exception clause table: a try range and its
// handler range, and (for a catch clause) the exception type it filters
// on. §3 names the resulting "flag HasProtectedRegions disabling some
// optimizations"; ExceptionHandlingStage is what sets that flag.
type ProtectedRegion struct {
	TryStart, TryEnd         int
	HandlerStart, HandlerEnd int
	// FilterType is the caught exception type; nil for finally/fault
	// clauses, which run on both normal and exceptional exit.
	FilterType typesystem.Type
	Finally    bool
	Fault      bool
}

// MethodBody is the external input to the CIL Decoder stage: raw CIL
// bytecode plus the exception clause table for one method, paired with
// the already-resolved typesystem.Method it belongs to. Producing this is
// the metadata loader's job (out of scope per §1); the core only reads
// one.
type MethodBody struct {
	Method typesystem.Method
	// LocalTypes is the .locals signature, in slot order.
	LocalTypes []typesystem.Type
	// InitLocals mirrors the CIL header's localsinit flag: when true,
	// every local slot is zero-initialized on entry.
	InitLocals bool
	Code       []byte
	Regions    []ProtectedRegion

	// FieldRefs and CallRefs resolve the 4-byte operands of ldfld/stfld
	// and call instructions. A real metadata-token table lives in the
	// out-of-scope loader; here the token is simply an index into these
	// slices, pre-resolved the same way the rest of MethodBody is.
	FieldRefs []typesystem.Field
	CallRefs  []CallTarget
}
