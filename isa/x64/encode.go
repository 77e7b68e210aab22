package x64

import (
	"sort"

	"github.com/stjordanis/MOSA-Project/cerr"
	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
)

const stageName = "code-emission"

// rexW is the REX prefix selecting 64-bit operand size with no register
// extension bits, the only REX form this target needs (§package doc:
// only the low 8 GPRs are modeled).
const rexW = 0x48

func modrm(mod, reg, rm byte) byte { return mod<<6 | reg<<3 | rm }

func le32(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

func le64(v int64) []byte {
	u := uint64(v)
	out := make([]byte, 8)
	for i := range out {
		out[i] = byte(u >> (8 * i))
	}
	return out
}

type aluEncoding struct {
	rmFromReg byte
	immExt    byte
}

var aluTable = map[ir.Opcode]aluEncoding{
	ir.OpcodeAdd: {0x01, 0},
	ir.OpcodeSub: {0x29, 5},
	ir.OpcodeAnd: {0x21, 4},
	ir.OpcodeOr:  {0x09, 1},
	ir.OpcodeXor: {0x31, 6},
}

var jccTable = map[ir.Condition]byte{
	ir.CondEqual:                  0x4,
	ir.CondNotEqual:                0x5,
	ir.CondLessSigned:              0xC,
	ir.CondGreaterOrEqualSigned:    0xD,
	ir.CondLessUnsigned:            0x2,
	ir.CondGreaterOrEqualUnsigned:  0x3,
	ir.CondLessOrEqualSigned:       0xE,
	ir.CondGreaterSigned:           0xF,
	ir.CondLessOrEqualUnsigned:     0x6,
	ir.CondGreaterUnsigned:         0x7,
}

type emitter struct {
	w           *isa.CodeWriter
	frame       isa.Frame
	blockOffset map[ir.BasicBlockID]int
	patches     []patch
}

type patch struct {
	siteOffset int
	target     *ir.BasicBlock
}

// EmitMethod mirrors isa/x86's EmitMethod, widened to 64-bit operands via
// a REX.W prefix on every integer instruction (§4.6). See isa/x86's
// EmitMethod for the shared layout/backpatch algorithm this repeats.
func (*Machine) EmitMethod(b *ir.Builder, frame isa.Frame) (*isa.CodeWriter, error) {
	e := &emitter{w: &isa.CodeWriter{}, frame: frame, blockOffset: map[ir.BasicBlockID]int{}}
	blocks := orderedBlocks(b)

	e.prologue()
	for _, blk := range blocks {
		e.blockOffset[blk.ID()] = e.w.Offset()
		var emitErr error
		blk.ForEachInstruction(func(instr *ir.Instruction) {
			if emitErr != nil {
				return
			}
			emitErr = e.emitInstruction(instr)
		})
		if emitErr != nil {
			return nil, emitErr
		}
	}

	for _, p := range e.patches {
		target, ok := e.blockOffset[p.target.ID()]
		if !ok {
			return nil, cerr.Invariant(stageName, "branch target block %s never emitted", p.target.Name())
		}
		disp := int32(target - (p.siteOffset + 4))
		copy(e.w.Bytes[p.siteOffset:p.siteOffset+4], le32(disp))
	}
	return e.w, nil
}

func orderedBlocks(b *ir.Builder) []*ir.BasicBlock {
	var blocks []*ir.BasicBlock
	for _, blk := range b.Blocks() {
		if blk.Valid() {
			blocks = append(blocks, blk)
		}
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].ReversePostOrder() < blocks[j].ReversePostOrder()
	})
	return blocks
}

func (e *emitter) prologue() {
	e.w.Emit(0x55) // push rbp
	e.w.Emit(rexW, 0x89, modrm(3, 4, 5)) // mov rbp, rsp
	if e.frame.Size > 0 {
		e.emitALUImm(0x81, 0x83, 5, RegRSP.Num, int64(e.frame.Size))
	}
}

func (e *emitter) epilogue() {
	e.w.Emit(rexW, 0x89, modrm(3, 5, 4)) // mov rsp, rbp
	e.w.Emit(0x5D)                        // pop rbp
}

func (e *emitter) emitALUImm(wideOp, narrowOp, ext byte, rm byte, v int64) {
	if v >= -128 && v <= 127 {
		e.w.Emit(rexW, narrowOp, modrm(3, ext, rm), byte(int8(v)))
		return
	}
	e.w.Emit(rexW, wideOp, modrm(3, ext, rm))
	e.w.Emit(le32(int32(v))...)
}

func regOf(op ir.Operand) (byte, error) {
	if op.Residence != ir.ResidenceCPURegister {
		return 0, cerr.Unsupported(stageName, op.String(), "operand is not a physical register at code emission")
	}
	return op.Preg.Num, nil
}

func (e *emitter) stackDisp(op ir.Operand) int32 {
	return e.frame.Offsets[op.Slot] - e.frame.Size
}

func (e *emitter) emitMemOperand(regField byte, disp int32) {
	e.w.Emit(modrm(2, regField, RegRBP.Num))
	e.w.Emit(le32(disp)...)
}

func (e *emitter) emitInstruction(instr *ir.Instruction) error {
	switch instr.Opcode() {
	case ir.OpcodeNop:
		return nil
	case ir.OpcodeMove:
		return e.emitMove(instr)
	case ir.OpcodeMoveCompound:
		return cerr.Unsupported(stageName, "mov.compound", "compound (value-type) move encoding is not implemented")
	case ir.OpcodeAdd, ir.OpcodeSub, ir.OpcodeAnd, ir.OpcodeOr, ir.OpcodeXor:
		return e.emitALU(instr)
	case ir.OpcodeMulSigned:
		return e.emitIMul(instr)
	case ir.OpcodeMulUnsigned, ir.OpcodeDivSigned, ir.OpcodeDivUnsigned, ir.OpcodeRemSigned, ir.OpcodeRemUnsigned:
		return e.emitMulDivRem(instr)
	case ir.OpcodeNeg:
		return e.emitUnaryGroup(instr, 3)
	case ir.OpcodeNot:
		return e.emitUnaryGroup(instr, 2)
	case ir.OpcodeCompare:
		return e.emitStandaloneCompare(instr)
	case ir.OpcodeCompareIntBranch:
		return e.emitCompareBranch(instr)
	case ir.OpcodeJump:
		e.patches = append(e.patches, patch{siteOffset: e.w.Offset() + 1, target: instr.Target()})
		e.w.Emit(0xE9)
		e.w.Emit(le32(0)...)
		return nil
	case ir.OpcodeBrIfTrue, ir.OpcodeBrIfFalse:
		return cerr.Invariant(stageName, "conditional branch reached code emission unfused")
	case ir.OpcodeReturn:
		return e.emitReturn(instr)
	case ir.OpcodeCall:
		return e.emitCall(instr)
	case ir.OpcodeLoad:
		return e.emitLoad(instr)
	case ir.OpcodeStore:
		return e.emitStore(instr)
	case ir.OpcodeLoadField:
		return e.emitLoadField(instr)
	case ir.OpcodeStoreField:
		return e.emitStoreField(instr)
	default:
		return cerr.Unsupported(stageName, instr.Descriptor().Name, "opcode has no x64 encoding in this target")
	}
}

func (e *emitter) emitMove(instr *ir.Instruction) error {
	dst, _, _ := instr.Results()
	src := instr.Operand(0)

	switch {
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceCPURegister:
		e.w.Emit(rexW, 0x89, modrm(3, src.Preg.Num, dst.Preg.Num))
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceStackLocal:
		e.w.Emit(rexW, 0x8B)
		e.emitMemOperand(dst.Preg.Num, e.stackDisp(src))
	case dst.Residence == ir.ResidenceStackLocal && src.Residence == ir.ResidenceCPURegister:
		e.w.Emit(rexW, 0x89)
		e.emitMemOperand(src.Preg.Num, e.stackDisp(dst))
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceConstant && src.ConstKind == ir.ConstInt:
		e.w.Emit(rexW, 0xB8+dst.Preg.Num) // movabs dst, imm64
		e.w.Emit(le64(src.IntValue)...)
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceConstant && src.ConstKind == ir.ConstSymbolRef:
		e.w.Emit(rexW, 0xB8+dst.Preg.Num)
		e.w.Reloc(isa.RelocAbsolute, 0, src.Symbol, 0)
		e.w.Emit(le64(0)...)
	case dst.Residence == ir.ResidenceStackLocal && src.Residence == ir.ResidenceConstant && src.ConstKind == ir.ConstInt:
		e.w.Emit(rexW, 0xC7)
		e.emitMemOperand(0, e.stackDisp(dst))
		e.w.Emit(le32(int32(src.IntValue))...)
	default:
		return cerr.Unsupported(stageName, "mov", "unsupported move operand combination %s <- %s", dst.Residence, src.Residence)
	}
	return nil
}

func (e *emitter) emitALU(instr *ir.Instruction) error {
	enc := aluTable[instr.Opcode()]
	dst, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	src := instr.Operand(1)
	switch src.Residence {
	case ir.ResidenceCPURegister:
		e.w.Emit(rexW, enc.rmFromReg, modrm(3, src.Preg.Num, dst))
	case ir.ResidenceConstant:
		if src.ConstKind != ir.ConstInt {
			return cerr.Unsupported(stageName, instr.Descriptor().Name, "non-integer constant operand")
		}
		e.emitALUImm(0x81, 0x83, enc.immExt, dst, src.IntValue)
	default:
		return cerr.Unsupported(stageName, instr.Descriptor().Name, "unsupported second operand residence %s", src.Residence)
	}
	return nil
}

func (e *emitter) emitIMul(instr *ir.Instruction) error {
	dst, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	src := instr.Operand(1)
	switch src.Residence {
	case ir.ResidenceCPURegister:
		e.w.Emit(rexW, 0x0F, 0xAF, modrm(3, dst, src.Preg.Num))
	case ir.ResidenceConstant:
		if src.ConstKind != ir.ConstInt {
			return cerr.Unsupported(stageName, "mul.s", "non-integer constant operand")
		}
		if src.IntValue >= -128 && src.IntValue <= 127 {
			e.w.Emit(rexW, 0x6B, modrm(3, dst, dst), byte(int8(src.IntValue)))
		} else {
			e.w.Emit(rexW, 0x69, modrm(3, dst, dst))
			e.w.Emit(le32(int32(src.IntValue))...)
		}
	default:
		return cerr.Unsupported(stageName, "mul.s", "unsupported second operand residence %s", src.Residence)
	}
	return nil
}

func (e *emitter) emitMulDivRem(instr *ir.Instruction) error {
	divisor, err := regOf(instr.Operand(1))
	if err != nil {
		return err
	}
	switch instr.Opcode() {
	case ir.OpcodeMulUnsigned:
		e.w.Emit(rexW, 0xF7, modrm(3, 4, divisor))
	case ir.OpcodeDivUnsigned, ir.OpcodeRemUnsigned:
		e.w.Emit(rexW, 0x31, modrm(3, 2, 2)) // xor rdx, rdx
		e.w.Emit(rexW, 0xF7, modrm(3, 6, divisor))
	case ir.OpcodeDivSigned, ir.OpcodeRemSigned:
		e.w.Emit(rexW, 0x99) // cqo
		e.w.Emit(rexW, 0xF7, modrm(3, 7, divisor))
	}
	return nil
}

func (e *emitter) emitUnaryGroup(instr *ir.Instruction, ext byte) error {
	dst, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	e.w.Emit(rexW, 0xF7, modrm(3, ext, dst))
	return nil
}

func (e *emitter) emitCompare(lhs, rhs ir.Operand) error {
	dst, err := regOf(lhs)
	if err != nil {
		return err
	}
	switch rhs.Residence {
	case ir.ResidenceCPURegister:
		e.w.Emit(rexW, 0x39, modrm(3, rhs.Preg.Num, dst))
	case ir.ResidenceConstant:
		if rhs.ConstKind != ir.ConstInt {
			return cerr.Unsupported(stageName, "cmp", "non-integer constant operand")
		}
		e.emitALUImm(0x81, 0x83, 7, dst, rhs.IntValue)
	default:
		return cerr.Unsupported(stageName, "cmp", "unsupported second operand residence %s", rhs.Residence)
	}
	return nil
}

func (e *emitter) emitStandaloneCompare(instr *ir.Instruction) error {
	if err := e.emitCompare(instr.Operand(0), instr.Operand(1)); err != nil {
		return err
	}
	tttn, ok := jccTable[instr.Cond()]
	if !ok {
		return cerr.Invariant(stageName, "unknown condition %s", instr.Cond())
	}
	res, _, _ := instr.Results()
	dst, err := regOf(res)
	if err != nil {
		return err
	}
	e.w.Emit(0x0F, 0x90+tttn, modrm(3, 0, 0))
	e.w.Emit(rexW, 0x0F, 0xB6, modrm(3, dst, 0))
	return nil
}

func (e *emitter) emitCompareBranch(instr *ir.Instruction) error {
	if err := e.emitCompare(instr.Operand(0), instr.Operand(1)); err != nil {
		return err
	}
	tttn, ok := jccTable[instr.Cond()]
	if !ok {
		return cerr.Invariant(stageName, "unknown condition %s", instr.Cond())
	}
	e.patches = append(e.patches, patch{siteOffset: e.w.Offset() + 2, target: instr.Target()})
	e.w.Emit(0x0F, 0x80+tttn)
	e.w.Emit(le32(0)...)
	return nil
}

func (e *emitter) emitReturn(instr *ir.Instruction) error {
	if instr.OperandCount() > 0 {
		v := instr.Operand(0)
		if v.Residence != ir.ResidenceCPURegister || v.Preg != RegRAX {
			src, err := regOf(v)
			if err != nil {
				return err
			}
			if src != RegRAX.Num {
				e.w.Emit(rexW, 0x89, modrm(3, src, RegRAX.Num))
			}
		}
	}
	e.epilogue()
	e.w.Emit(0xC3)
	return nil
}

// emitCall follows the System V AMD64 convention's register-argument
// classes only partially: the first four integer arguments go in
// rdi/rsi/rdx/rcx, anything beyond that is unsupported in this scope
// rather than spilled to the stack.
var intArgRegs = []ir.PhysReg{RegRDI, RegRSI, RegRDX, RegRCX}

func (e *emitter) emitCall(instr *ir.Instruction) error {
	n := instr.OperandCount()
	if n > len(intArgRegs) {
		return cerr.Unsupported(stageName, "call", "more than %d integer arguments is not implemented", len(intArgRegs))
	}
	for i := 0; i < n; i++ {
		arg := instr.Operand(i)
		argReg, err := regOf(arg)
		if err != nil {
			return err
		}
		want := intArgRegs[i]
		if argReg != want.Num {
			e.w.Emit(rexW, 0x89, modrm(3, argReg, want.Num))
		}
	}
	e.w.Emit(0xE8)
	e.w.Reloc(isa.RelocRelative32, 0, instr.Callee(), 0)
	e.w.Emit(le32(0)...)
	res1, _, _ := instr.Results()
	if res1.Valid() && (res1.Residence != ir.ResidenceCPURegister || res1.Preg != RegRAX) {
		dst, err := regOf(res1)
		if err != nil {
			return err
		}
		e.w.Emit(rexW, 0x89, modrm(3, RegRAX.Num, dst))
	}
	return nil
}

func (e *emitter) emitLoad(instr *ir.Instruction) error {
	res, _, _ := instr.Results()
	dst, err := regOf(res)
	if err != nil {
		return err
	}
	base, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	e.w.Emit(rexW, 0x8B, modrm(0, dst, base))
	return nil
}

func (e *emitter) emitStore(instr *ir.Instruction) error {
	base, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	value, err := regOf(instr.Operand(1))
	if err != nil {
		return err
	}
	e.w.Emit(rexW, 0x89, modrm(0, value, base))
	return nil
}

func (e *emitter) emitLoadField(instr *ir.Instruction) error {
	res, _, _ := instr.Results()
	dst, err := regOf(res)
	if err != nil {
		return err
	}
	base, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	off := instr.Operand(1).IntValue
	e.emitRegMemDisp(0x8B, dst, base, int32(off))
	return nil
}

func (e *emitter) emitStoreField(instr *ir.Instruction) error {
	base, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	value, err := regOf(instr.Operand(2))
	if err != nil {
		return err
	}
	off := instr.Operand(1).IntValue
	e.emitRegMemDisp(0x89, value, base, int32(off))
	return nil
}

func (e *emitter) emitRegMemDisp(opcode, reg, base byte, disp int32) {
	switch {
	case disp == 0 && base != RegRBP.Num:
		e.w.Emit(rexW, opcode, modrm(0, reg, base))
	case disp >= -128 && disp <= 127:
		e.w.Emit(rexW, opcode, modrm(1, reg, base), byte(int8(disp)))
	default:
		e.w.Emit(rexW, opcode, modrm(2, reg, base))
		e.w.Emit(le32(disp)...)
	}
}
