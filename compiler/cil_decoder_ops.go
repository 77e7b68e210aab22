package compiler

import (
	"encoding/binary"
	"math"

	"github.com/stjordanis/MOSA-Project/cerr"
	"github.com/stjordanis/MOSA-Project/ir"
)

func push(stack *[]ir.Operand, op ir.Operand) { *stack = append(*stack, op) }

func pop(stack *[]ir.Operand) ir.Operand {
	s := *stack
	v := s[len(s)-1]
	*stack = s[:len(s)-1]
	return v
}

// decodeOneInstruction decodes the single-byte-opcode instruction at
// start, mutating stack and emitting IR into the builder's current block.
// It returns the offset just past the instruction.
func (d *cilDecoder) decodeOneInstruction(op cilOp, start int, stack *[]ir.Operand) (int, error) {
	b := d.mc.Builder
	i32 := ir.Scalar(ir.KindI32)
	code := d.code

	switch op {
	case cilNop:
		return start + 1, nil

	case cilDup:
		v := pop(stack)
		push(stack, v)
		push(stack, v)
		return start + 1, nil
	case cilPop:
		pop(stack)
		return start + 1, nil

	case cilLdarg0, cilLdarg1, cilLdarg2, cilLdarg3:
		push(stack, d.params[int(op-cilLdarg0)])
		return start + 1, nil
	case cilLdargS:
		idx := int(code[start+1])
		push(stack, d.params[idx])
		return start + 2, nil

	case cilLdloc0, cilLdloc1, cilLdloc2, cilLdloc3:
		push(stack, d.locals[int(op-cilLdloc0)])
		return start + 1, nil
	case cilLdlocS:
		idx := int(code[start+1])
		push(stack, d.locals[idx])
		return start + 2, nil

	case cilStloc0, cilStloc1, cilStloc2, cilStloc3:
		idx := int(op - cilStloc0)
		d.locals[idx] = b.Redefine(d.locals[idx], pop(stack))
		return start + 1, nil
	case cilStlocS:
		idx := int(code[start+1])
		d.locals[idx] = b.Redefine(d.locals[idx], pop(stack))
		return start + 2, nil
	case cilStargS:
		idx := int(code[start+1])
		d.params[idx] = b.Redefine(d.params[idx], pop(stack))
		return start + 2, nil

	case cilLdnull:
		push(stack, ir.ConstNullOperand(ir.Scalar(ir.KindPtr)))
		return start + 1, nil

	case cilLdcI4M1, cilLdcI40, cilLdcI41, cilLdcI42, cilLdcI43, cilLdcI44, cilLdcI45, cilLdcI46, cilLdcI47, cilLdcI48:
		push(stack, ir.ConstInt64(i32, int64(int(op)-int(cilLdcI40))))
		return start + 1, nil
	case cilLdcI4S:
		push(stack, ir.ConstInt64(i32, int64(int8(code[start+1]))))
		return start + 2, nil
	case cilLdcI4:
		v := int32(binary.LittleEndian.Uint32(code[start+1 : start+5]))
		push(stack, ir.ConstInt64(i32, int64(v)))
		return start + 5, nil
	case cilLdcI8:
		v := int64(binary.LittleEndian.Uint64(code[start+1 : start+9]))
		push(stack, ir.ConstInt64(ir.Scalar(ir.KindI64), v))
		return start + 9, nil
	case cilLdcR4:
		bits := binary.LittleEndian.Uint32(code[start+1 : start+5])
		push(stack, ir.ConstF32(math.Float32frombits(bits)))
		return start + 5, nil
	case cilLdcR8:
		bits := binary.LittleEndian.Uint64(code[start+1 : start+9])
		push(stack, ir.ConstF64(math.Float64frombits(bits)))
		return start + 9, nil

	case cilAdd, cilSub, cilMul, cilDiv, cilDivUn, cilRem, cilRemUn,
		cilAnd, cilOr, cilXor, cilShl, cilShr, cilShrUn:
		y, x := pop(stack), pop(stack)
		res := b.Binary(binaryOpcodeOf(op), x.Type, x, y)
		push(stack, res)
		return start + 1, nil

	case cilNeg:
		x := pop(stack)
		push(stack, b.Unary(ir.OpcodeNeg, x.Type, x))
		return start + 1, nil
	case cilNot:
		x := pop(stack)
		push(stack, b.Unary(ir.OpcodeNot, x.Type, x))
		return start + 1, nil

	case cilConvI1, cilConvI2, cilConvI4, cilConvI8, cilConvR4, cilConvR8:
		return d.decodeConv(op, start, stack)

	case cilCall:
		return d.decodeCall(start, stack)

	case cilLdfld:
		return d.decodeLdfld(start, stack)
	case cilStfld:
		return d.decodeStfld(start, stack)

	case cilRet:
		if len(*stack) > 0 {
			b.Return(pop(stack))
		} else {
			b.Return()
		}
		return start + 1, nil

	case cilBrS, cilBrfalseS, cilBrtrueS, cilBeqS, cilBgeS, cilBgtS, cilBleS, cilBltS, cilBneUnS,
		cilBr, cilBrfalse, cilBrtrue, cilBeq, cilBge, cilBgt, cilBle, cilBlt, cilBneUn:
		return d.decodeBranch(op, start, stack)

	default:
		return 0, cerr.Unsupported("cil-decode", d.mc.Body.Method.Name(), "unrecognized CIL opcode 0x%02X", byte(op))
	}
}

func (d *cilDecoder) decodeExtInstruction(ext cilExt, next int, stack *[]ir.Operand) (int, error) {
	b := d.mc.Builder
	var cond ir.Condition
	switch ext {
	case cilExtCeq:
		cond = ir.CondEqual
	case cilExtCgt:
		cond = ir.CondGreaterSigned
	case cilExtClt:
		cond = ir.CondLessSigned
	default:
		return 0, cerr.Unsupported("cil-decode", d.mc.Body.Method.Name(), "unrecognized extended CIL opcode 0xFE%02X", byte(ext))
	}
	y, x := pop(stack), pop(stack)
	push(stack, b.Compare(cond, x, y))
	return next, nil
}

func binaryOpcodeOf(op cilOp) ir.Opcode {
	switch op {
	case cilAdd:
		return ir.OpcodeAdd
	case cilSub:
		return ir.OpcodeSub
	case cilMul:
		return ir.OpcodeMulSigned
	case cilDiv:
		return ir.OpcodeDivSigned
	case cilDivUn:
		return ir.OpcodeDivUnsigned
	case cilRem:
		return ir.OpcodeRemSigned
	case cilRemUn:
		return ir.OpcodeRemUnsigned
	case cilAnd:
		return ir.OpcodeAnd
	case cilOr:
		return ir.OpcodeOr
	case cilXor:
		return ir.OpcodeXor
	case cilShl:
		return ir.OpcodeShl
	case cilShr:
		return ir.OpcodeShrSigned
	case cilShrUn:
		return ir.OpcodeShrUnsigned
	default:
		panic("BUG: binaryOpcodeOf called with a non-binary CIL opcode")
	}
}

func (d *cilDecoder) decodeConv(op cilOp, start int, stack *[]ir.Operand) (int, error) {
	b := d.mc.Builder
	x := pop(stack)
	var dst ir.Type
	var conv ir.Opcode
	switch op {
	case cilConvI1:
		dst, conv = ir.Scalar(ir.KindI8), convOpcode(x.Type, ir.KindI8)
	case cilConvI2:
		dst, conv = ir.Scalar(ir.KindI16), convOpcode(x.Type, ir.KindI16)
	case cilConvI4:
		dst, conv = ir.Scalar(ir.KindI32), convOpcode(x.Type, ir.KindI32)
	case cilConvI8:
		dst, conv = ir.Scalar(ir.KindI64), convOpcode(x.Type, ir.KindI64)
	case cilConvR4:
		dst, conv = ir.Scalar(ir.KindF32), ir.OpcodeIntToFloat
	case cilConvR8:
		dst, conv = ir.Scalar(ir.KindF64), ir.OpcodeIntToFloat
	}
	if x.Type.Kind.IsFloat() && (conv == ir.OpcodeIntExtend || conv == ir.OpcodeIntTruncate) {
		conv = ir.OpcodeFloatToInt
	}
	push(stack, b.Unary(conv, dst, x))
	return start + 1, nil
}

func convOpcode(src ir.Type, dstKind ir.Kind) ir.Opcode {
	if src.Kind.Bits(8) < dstKind.Bits(8) {
		return ir.OpcodeIntExtend
	}
	return ir.OpcodeIntTruncate
}

func (d *cilDecoder) decodeBranch(op cilOp, start int, stack *[]ir.Operand) (int, error) {
	b := d.mc.Builder
	var next int
	var target int
	switch op {
	case cilBrS, cilBrfalseS, cilBrtrueS, cilBeqS, cilBgeS, cilBgtS, cilBleS, cilBltS, cilBneUnS:
		next = start + 2
		target = next + int(int8(d.code[start+1]))
	default:
		next = start + 5
		target = next + int(int32(binary.LittleEndian.Uint32(d.code[start+1:start+5])))
	}

	trueBlk, ok := d.blockBoundary(target)
	if !ok {
		return 0, cerr.Invariant("cil-decode", "branch target offset %d has no block", target)
	}

	switch op {
	case cilBr, cilBrS:
		b.Jump(trueBlk)
	case cilBrtrue, cilBrtrueS:
		b.BrIfTrue(pop(stack), trueBlk)
	case cilBrfalse, cilBrfalseS:
		b.BrIfFalse(pop(stack), trueBlk)
	default:
		cond, ok := conditionOf(op)
		if !ok {
			return 0, cerr.Unsupported("cil-decode", d.mc.Body.Method.Name(), "unrecognized comparison branch 0x%02X", byte(op))
		}
		y, x := pop(stack), pop(stack)
		cmp := b.Compare(cond, x, y)
		b.BrIfTrue(cmp, trueBlk)
	}
	return next, nil
}

func conditionOf(op cilOp) (ir.Condition, bool) {
	switch op {
	case cilBeq, cilBeqS:
		return ir.CondEqual, true
	case cilBneUn, cilBneUnS:
		return ir.CondNotEqual, true
	case cilBlt, cilBltS:
		return ir.CondLessSigned, true
	case cilBle, cilBleS:
		return ir.CondLessOrEqualSigned, true
	case cilBgt, cilBgtS:
		return ir.CondGreaterSigned, true
	case cilBge, cilBgeS:
		return ir.CondGreaterOrEqualSigned, true
	default:
		return 0, false
	}
}

func (d *cilDecoder) decodeCall(start int, stack *[]ir.Operand) (int, error) {
	b := d.mc.Builder
	idx := int(binary.LittleEndian.Uint32(d.code[start+1 : start+5]))
	if idx < 0 || idx >= len(d.mc.Body.CallRefs) {
		return 0, cerr.Unsupported("cil-decode", d.mc.Body.Method.Name(), "call token %d out of range", idx)
	}
	target := d.mc.Body.CallRefs[idx]

	args := make([]ir.Operand, len(target.Signature.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = pop(stack)
	}

	var results []ir.Type
	for _, rt := range target.Signature.Results {
		results = append(results, irTypeOf(rt, d.mc.Layout))
	}
	r1, r2 := b.Call(ir.OpcodeCall, target.Symbol, results, args...)
	if r1.Valid() {
		push(stack, r1)
	}
	if r2.Valid() {
		push(stack, r2)
	}
	return start + 5, nil
}

func (d *cilDecoder) decodeLdfld(start int, stack *[]ir.Operand) (int, error) {
	b := d.mc.Builder
	idx := int(binary.LittleEndian.Uint32(d.code[start+1 : start+5]))
	if idx < 0 || idx >= len(d.mc.Body.FieldRefs) {
		return 0, cerr.Unsupported("cil-decode", d.mc.Body.Method.Name(), "field token %d out of range", idx)
	}
	f := d.mc.Body.FieldRefs[idx]
	base := pop(stack)
	owner := base.Type.Managed
	offset, err := d.mc.Layout.GetFieldOffset(owner, f)
	if err != nil {
		return 0, err
	}
	push(stack, b.LoadField(irTypeOf(f.FieldType(), d.mc.Layout), base, int32(offset)))
	return start + 5, nil
}

func (d *cilDecoder) decodeStfld(start int, stack *[]ir.Operand) (int, error) {
	b := d.mc.Builder
	idx := int(binary.LittleEndian.Uint32(d.code[start+1 : start+5]))
	if idx < 0 || idx >= len(d.mc.Body.FieldRefs) {
		return 0, cerr.Unsupported("cil-decode", d.mc.Body.Method.Name(), "field token %d out of range", idx)
	}
	f := d.mc.Body.FieldRefs[idx]
	value := pop(stack)
	base := pop(stack)
	owner := base.Type.Managed
	offset, err := d.mc.Layout.GetFieldOffset(owner, f)
	if err != nil {
		return 0, err
	}
	b.StoreField(base, int32(offset), value)
	return start + 5, nil
}
