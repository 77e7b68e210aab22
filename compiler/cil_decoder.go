package compiler

import (
	"encoding/binary"

	"github.com/stjordanis/MOSA-Project/cerr"
	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/typesystem"
)

// CallTarget resolves a CIL call-site operand. Metadata-token resolution
// (the mapping from a 4-byte token to a concrete method) belongs to the
// out-of-scope metadata loader (§1); MethodBody carries the resolved
// targets directly, indexed the same way the raw bytecode indexes them.
type CallTarget struct {
	Symbol    ir.SymbolRef
	Signature typesystem.Signature
}

// CILDecoderStage implements §4.4 step 1: CIL Decoder. It turns a
// method's raw bytecode into the initial IR block graph by simulating the
// CIL evaluation stack one instruction at a time. The simplifying
// assumption this decoder makes — common to every CIL-to-SSA rewrite, and
// the same one wasm-to-SSA frontends make for the Wasm operand stack — is
// that the stack is empty at every basic-block boundary; this holds for
// all bytecode emitted by a conforming compiler, which never leaves a
// value live across a branch.
type CILDecoderStage struct{ baseStage }

func (CILDecoderStage) Name() string { return "cil-decode" }

func (CILDecoderStage) Run(mc *MethodCompiler) error {
	d := &cilDecoder{mc: mc, code: mc.Body.Code, blockAt: make(map[int]*ir.BasicBlock)}
	return d.decode()
}

type cilDecoder struct {
	mc   *MethodCompiler
	code []byte

	params []ir.Operand
	locals []ir.Operand

	blockAt map[int]*ir.BasicBlock
	starts  []int
}

func (d *cilDecoder) decode() error {
	b := d.mc.Builder
	sig := d.mc.Body.Method.Signature()

	d.params = make([]ir.Operand, len(sig.Params))
	for i, pt := range sig.Params {
		d.params[i] = b.AllocVReg(irTypeOf(pt, d.mc.Layout))
	}
	d.locals = make([]ir.Operand, len(d.mc.Body.LocalTypes))
	for i, lt := range d.mc.Body.LocalTypes {
		d.locals[i] = b.AllocVReg(irTypeOf(lt, d.mc.Layout))
	}

	if err := d.prescanBlocks(); err != nil {
		return err
	}

	b.SetCurrentBlock(b.EntryBlock())
	if d.mc.Body.InitLocals {
		for _, loc := range d.locals {
			b.Redefine(loc, zeroOf(loc.Type))
		}
	}

	return d.decodeBody(sig)
}

// prescanBlocks walks the instruction stream once without building IR, to
// find every branch target offset. Each such offset becomes a basic
// block boundary; offset 0 reuses the builder's entry block (§4.2's
// "unique pre-header" is the method's own first instruction block).
func (d *cilDecoder) prescanBlocks() error {
	d.starts = append(d.starts, 0)
	off := 0
	for off < len(d.code) {
		start := off
		op, next, err := d.decodeOne(off)
		if err != nil {
			return err
		}
		if target, ok, isBranch := d.branchTarget(op, start, next); isBranch {
			if ok {
				d.starts = append(d.starts, target)
			}
			// Every instruction after a branch (conditional or not) begins
			// a new block, since it is only reachable via fallthrough or a
			// separate edge, never via straight-line flow through the
			// branch itself for an unconditional jump.
			if next < len(d.code) {
				d.starts = append(d.starts, next)
			}
		}
		off = next
	}

	b := d.mc.Builder
	d.blockAt[0] = b.EntryBlock()
	for _, s := range d.starts {
		if s == 0 {
			continue
		}
		if _, ok := d.blockAt[s]; !ok {
			d.blockAt[s] = b.CreateBlock()
		}
	}
	return nil
}

// blockBoundary reports the basic block that starts at off, if any.
func (d *cilDecoder) blockBoundary(off int) (*ir.BasicBlock, bool) {
	blk, ok := d.blockAt[off]
	return blk, ok
}

func (d *cilDecoder) decodeBody(sig typesystem.Signature) error {
	b := d.mc.Builder
	var stack []ir.Operand
	off := 0
	cur := b.EntryBlock()
	b.SetCurrentBlock(cur)
	d.mc.OffsetInstr = make(map[int]*ir.Instruction)

	fallthroughInto := func(target *ir.BasicBlock) {
		if cur.Terminator() == nil {
			b.Jump(target)
		}
	}

	for off < len(d.code) {
		if blk, ok := d.blockBoundary(off); ok && blk != cur {
			fallthroughInto(blk)
			cur = blk
			b.SetCurrentBlock(cur)
			stack = stack[:0]
		}

		start := off
		op := cilOp(d.code[off])
		ext := cilExt(0)
		opLen := 1
		if op == cilPrefix {
			ext = cilExt(d.code[off+1])
			opLen = 2
		}

		prevTail := cur.Tail()
		var n int
		var err error
		if op != cilPrefix {
			n, err = d.decodeOneInstruction(op, start, &stack)
		} else {
			n, err = d.decodeExtInstruction(ext, start+opLen, &stack)
		}
		if err != nil {
			return err
		}
		if newTail := cur.Tail(); newTail != prevTail {
			first := cur.Root()
			if prevTail != nil {
				first = prevTail.Next()
			}
			d.mc.OffsetInstr[start] = first
		}
		off = n
	}

	if cur.Terminator() == nil {
		return cerr.Unsupported("cil-decode", d.mc.Body.Method.Name(), "method body falls off the end without a terminating instruction")
	}
	return nil
}

// decodeOne performs the length-only pass prescanBlocks needs: it decodes
// enough of the instruction at off to know its total length and, for a
// branch, its raw operand, without touching the builder.
func (d *cilDecoder) decodeOne(off int) (op cilOp, next int, err error) {
	b := d.code[off]
	op = cilOp(b)
	if op == cilPrefix {
		ext := cilExt(d.code[off+1])
		n, err := d.instructionLengthExt(ext, off+2)
		return op, n, err
	}
	n, err := d.instructionLength(op, off+1)
	return op, n, err
}

func (d *cilDecoder) branchTarget(op cilOp, start, next int) (target int, hasTarget bool, isBranch bool) {
	switch op {
	case cilBrS, cilBrfalseS, cilBrtrueS, cilBeqS, cilBgeS, cilBgtS, cilBleS, cilBltS, cilBneUnS:
		disp := int8(d.code[next-1])
		return next + int(disp), true, true
	case cilBr, cilBrfalse, cilBrtrue, cilBeq, cilBge, cilBgt, cilBle, cilBlt, cilBneUn:
		disp := int32(binary.LittleEndian.Uint32(d.code[next-4 : next]))
		return next + int(disp), true, true
	case cilRet:
		return 0, false, true
	}
	return 0, false, false
}

// instructionLength returns the offset just past the single-byte opcode
// op (whose body starts at bodyOff), used only by the branch-target
// prescan.
func (d *cilDecoder) instructionLength(op cilOp, bodyOff int) (int, error) {
	switch op {
	case cilNop, cilLdarg0, cilLdarg1, cilLdarg2, cilLdarg3,
		cilLdloc0, cilLdloc1, cilLdloc2, cilLdloc3,
		cilStloc0, cilStloc1, cilStloc2, cilStloc3,
		cilLdnull, cilLdcI4M1, cilLdcI40, cilLdcI41, cilLdcI42, cilLdcI43,
		cilLdcI44, cilLdcI45, cilLdcI46, cilLdcI47, cilLdcI48,
		cilDup, cilPop, cilRet,
		cilAdd, cilSub, cilMul, cilDiv, cilDivUn, cilRem, cilRemUn,
		cilAnd, cilOr, cilXor, cilShl, cilShr, cilShrUn, cilNeg, cilNot,
		cilConvI1, cilConvI2, cilConvI4, cilConvI8, cilConvR4, cilConvR8:
		return bodyOff, nil
	case cilLdargS, cilStargS, cilLdlocS, cilStlocS, cilLdcI4S:
		return bodyOff + 1, nil
	case cilBrS, cilBrfalseS, cilBrtrueS, cilBeqS, cilBgeS, cilBgtS, cilBleS, cilBltS, cilBneUnS:
		return bodyOff + 1, nil
	case cilLdcI4, cilLdcR4, cilCall, cilLdfld, cilStfld:
		return bodyOff + 4, nil
	case cilLdcI8, cilLdcR8:
		return bodyOff + 8, nil
	case cilBr, cilBrfalse, cilBrtrue, cilBeq, cilBge, cilBgt, cilBle, cilBlt, cilBneUn:
		return bodyOff + 4, nil
	default:
		return 0, cerr.Unsupported("cil-decode", d.mc.Body.Method.Name(), "unrecognized CIL opcode 0x%02X", byte(op))
	}
}

func (d *cilDecoder) instructionLengthExt(ext cilExt, bodyOff int) (int, error) {
	switch ext {
	case cilExtCeq, cilExtCgt, cilExtClt:
		return bodyOff, nil
	default:
		return 0, cerr.Unsupported("cil-decode", d.mc.Body.Method.Name(), "unrecognized extended CIL opcode 0xFE%02X", byte(ext))
	}
}

func zeroOf(t ir.Type) ir.Operand {
	if t.Kind.IsFloat() {
		if t.Kind == ir.KindF32 {
			return ir.ConstF32(0)
		}
		return ir.ConstF64(0)
	}
	if t.Kind == ir.KindValueType {
		return ir.ConstNullOperand(t)
	}
	return ir.ConstInt64(t, 0)
}
