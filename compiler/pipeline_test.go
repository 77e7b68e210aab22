package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stjordanis/MOSA-Project/config"
	"github.com/stjordanis/MOSA-Project/isa"
	"github.com/stjordanis/MOSA-Project/isa/arm64"
	"github.com/stjordanis/MOSA-Project/isa/x64"
	"github.com/stjordanis/MOSA-Project/isa/x86"
	"github.com/stjordanis/MOSA-Project/layout"
	"github.com/stjordanis/MOSA-Project/typesystem"
)

func i4Type() *typesystem.MemType {
	return &typesystem.MemType{TypeName: "i4", TypeFullName: "System.Int32", Primitive: true, PrimSize: 4, Class: -1}
}

// addBody builds int Add(int a, int b) { return a + b; } as raw CIL:
// ldarg.0, ldarg.1, add, ret.
func addBody(sig typesystem.Signature) *MethodBody {
	return &MethodBody{
		Method: &typesystem.MemMethod{MethodName: "Add", Sig: sig},
		Code:   []byte{byte(cilLdarg0), byte(cilLdarg1), byte(cilAdd), byte(cilRet)},
	}
}

// branchBody builds int Max(int a, int b) { if (a < b) return b; return a; },
// exercising a conditional branch into two successor blocks.
func branchBody(sig typesystem.Signature) *MethodBody {
	code := []byte{
		byte(cilLdarg0), byte(cilLdarg1), byte(cilBltS), 0x02,
		byte(cilLdarg0), byte(cilRet),
		byte(cilLdarg1), byte(cilRet),
	}
	return &MethodBody{
		Method: &typesystem.MemMethod{MethodName: "Max", Sig: sig},
		Code:   code,
	}
}

func emptyLayout(t *testing.T, ptrSize int) *layout.MosaTypeLayout {
	sys := &typesystem.MemSystem{}
	lay, err := layout.New(sys, ptrSize, ptrSize)
	require.NoError(t, err)
	return lay
}

// TestPipelineAddMethod is §8's universal invariant applied end to end: a
// two-argument integer method compiles through every stage, on every
// target family, down to a non-empty instruction stream with a resolved
// frame and no outstanding virtual registers.
func TestPipelineAddMethod(t *testing.T) {
	i4 := i4Type()
	sig := typesystem.Signature{Params: []typesystem.Type{i4, i4}, Results: []typesystem.Type{i4}}

	cases := []struct {
		name     string
		machine  isa.Machine
		platform config.Platform
	}{
		{"x86", x86.New(), config.PlatformX86},
		{"x64", x64.New(), config.PlatformX64},
		{"armv8", arm64.NewARMv8(), config.PlatformARMv8},
		{"armv6", arm64.NewARMv6(), config.PlatformARMv6},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			lay := emptyLayout(t, c.machine.PointerSize())
			opts := config.Options{
				Platform:        c.platform,
				EnableConstFold: true,
				EnableDCE:       true,
			}
			body := addBody(sig)
			mc := NewMethodCompiler(body, lay, opts, nil)

			err := mc.Compile(c.machine)
			require.NoError(t, err)
			require.NotEmpty(t, mc.Code)
			require.NotNil(t, mc.Frame)
		})
	}
}

// TestPipelineBranchingMethod exercises a conditional branch into two
// successor blocks, checking the pipeline handles control flow beyond a
// single straight-line entry block.
func TestPipelineBranchingMethod(t *testing.T) {
	i4 := i4Type()
	sig := typesystem.Signature{Params: []typesystem.Type{i4, i4}, Results: []typesystem.Type{i4}}

	lay := emptyLayout(t, 8)
	opts := config.Options{Platform: config.PlatformX64, EnableDCE: true}
	body := branchBody(sig)
	mc := NewMethodCompiler(body, lay, opts, nil)

	err := mc.Compile(x64.New())
	require.NoError(t, err)
	require.NotEmpty(t, mc.Code)
}

// TestPipelineStopsAtFirstStageFailure is §4.4's "failures in a stage are
// fatal for the method; they do not retry": an unrecognized opcode in the
// raw bytecode must fail inside the CIL decoder, before any later stage
// runs.
func TestPipelineStopsAtFirstStageFailure(t *testing.T) {
	i4 := i4Type()
	sig := typesystem.Signature{Params: []typesystem.Type{i4}, Results: []typesystem.Type{i4}}
	body := &MethodBody{
		Method: &typesystem.MemMethod{MethodName: "Bad", Sig: sig},
		Code:   []byte{0xFF},
	}
	lay := emptyLayout(t, 4)
	opts := config.Options{Platform: config.PlatformX86}
	mc := NewMethodCompiler(body, lay, opts, nil)

	err := mc.Compile(x86.New())
	require.Error(t, err)
	require.Empty(t, mc.Code)
}
