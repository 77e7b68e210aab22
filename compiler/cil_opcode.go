package compiler

// cilOp is a single-byte ECMA-335 CIL opcode. Only the subset the decoder
// understands is named here; anything else surfaces as cerr.Unsupported
// rather than silently miscompiling.
type cilOp byte

const (
	cilNop       cilOp = 0x00
	cilLdarg0    cilOp = 0x02
	cilLdarg1    cilOp = 0x03
	cilLdarg2    cilOp = 0x04
	cilLdarg3    cilOp = 0x05
	cilLdloc0    cilOp = 0x06
	cilLdloc1    cilOp = 0x07
	cilLdloc2    cilOp = 0x08
	cilLdloc3    cilOp = 0x09
	cilStloc0    cilOp = 0x0A
	cilStloc1    cilOp = 0x0B
	cilStloc2    cilOp = 0x0C
	cilStloc3    cilOp = 0x0D
	cilLdargS    cilOp = 0x0E
	cilStargS    cilOp = 0x10
	cilLdlocS    cilOp = 0x11
	cilStlocS    cilOp = 0x13
	cilLdnull    cilOp = 0x14
	cilLdcI4M1   cilOp = 0x15
	cilLdcI40    cilOp = 0x16
	cilLdcI41    cilOp = 0x17
	cilLdcI42    cilOp = 0x18
	cilLdcI43    cilOp = 0x19
	cilLdcI44    cilOp = 0x1A
	cilLdcI45    cilOp = 0x1B
	cilLdcI46    cilOp = 0x1C
	cilLdcI47    cilOp = 0x1D
	cilLdcI48    cilOp = 0x1E
	cilLdcI4S    cilOp = 0x1F
	cilLdcI4     cilOp = 0x20
	cilLdcI8     cilOp = 0x21
	cilLdcR4     cilOp = 0x22
	cilLdcR8     cilOp = 0x23
	cilDup       cilOp = 0x25
	cilPop       cilOp = 0x26
	cilCall      cilOp = 0x28
	cilRet       cilOp = 0x2A
	cilBrS       cilOp = 0x2B
	cilBrfalseS  cilOp = 0x2C
	cilBrtrueS   cilOp = 0x2D
	cilBeqS      cilOp = 0x2E
	cilBgeS      cilOp = 0x2F
	cilBgtS      cilOp = 0x30
	cilBleS      cilOp = 0x31
	cilBltS      cilOp = 0x32
	cilBneUnS    cilOp = 0x33
	cilBr        cilOp = 0x38
	cilBrfalse   cilOp = 0x39
	cilBrtrue    cilOp = 0x3A
	cilBeq       cilOp = 0x3B
	cilBge       cilOp = 0x3C
	cilBgt       cilOp = 0x3D
	cilBle       cilOp = 0x3E
	cilBlt       cilOp = 0x3F
	cilBneUn     cilOp = 0x40
	cilAdd       cilOp = 0x58
	cilSub       cilOp = 0x59
	cilMul       cilOp = 0x5A
	cilDiv       cilOp = 0x5B
	cilDivUn     cilOp = 0x5C
	cilRem       cilOp = 0x5D
	cilRemUn     cilOp = 0x5E
	cilAnd       cilOp = 0x5F
	cilOr        cilOp = 0x60
	cilXor       cilOp = 0x61
	cilShl       cilOp = 0x62
	cilShr       cilOp = 0x63
	cilShrUn     cilOp = 0x64
	cilNeg       cilOp = 0x65
	cilNot       cilOp = 0x66
	cilConvI1    cilOp = 0x67
	cilConvI2    cilOp = 0x68
	cilConvI4    cilOp = 0x69
	cilConvI8    cilOp = 0x6A
	cilConvR4    cilOp = 0x6B
	cilConvR8    cilOp = 0x6C
	cilLdfld     cilOp = 0x7B
	cilStfld     cilOp = 0x7D
)

// cilPrefix is the lead byte of the two-byte opcode family (0xFE xx).
const cilPrefix cilOp = 0xFE

// cilExt distinguishes the second byte of a 0xFE-prefixed opcode.
type cilExt byte

const (
	cilExtCeq cilExt = 0x01
	cilExtCgt cilExt = 0x02
	cilExtClt cilExt = 0x04
)
