package x86

import (
	"sort"

	"github.com/stjordanis/MOSA-Project/cerr"
	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
)

const stageName = "code-emission"

func modrm(mod, reg, rm byte) byte { return mod<<6 | reg<<3 | rm }

func le32(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

// aluEncoding names the three opcode forms a destructive dst-op-src ALU
// instruction needs: register/memory source, register/memory destination
// with a register source, and an immediate source (via opcode group 0x80,
// selected by immExt in the ModRM reg field).
type aluEncoding struct {
	rmFromReg byte // dst(rm) <- dst op reg: e.g. ADD r/m32, r32
	immExt    byte
}

var aluTable = map[ir.Opcode]aluEncoding{
	ir.OpcodeAdd: {0x01, 0},
	ir.OpcodeSub: {0x29, 5},
	ir.OpcodeAnd: {0x21, 4},
	ir.OpcodeOr:  {0x09, 1},
	ir.OpcodeXor: {0x31, 6},
}

// jccTable maps an ir.Condition to the tttn nibble of Jcc/SETcc (Intel SDM
// vol 2, table "Condition Test (tttn) and corresponding mnemonic").
var jccTable = map[ir.Condition]byte{
	ir.CondEqual:                    0x4,
	ir.CondNotEqual:                 0x5,
	ir.CondLessSigned:               0xC,
	ir.CondGreaterOrEqualSigned:     0xD,
	ir.CondLessUnsigned:             0x2,
	ir.CondGreaterOrEqualUnsigned:   0x3,
	ir.CondLessOrEqualSigned:        0xE,
	ir.CondGreaterSigned:            0xF,
	ir.CondLessOrEqualUnsigned:      0x6,
	ir.CondGreaterUnsigned:          0x7,
}

// emitter carries the per-method state the encoder accumulates across
// blocks: the byte offset each block starts at (known only once every
// earlier block has been sized) and the intra-method branch sites still
// waiting on a target block's offset.
type emitter struct {
	w           *isa.CodeWriter
	frame       isa.Frame
	blockOffset map[ir.BasicBlockID]int
	patches     []patch
}

type patch struct {
	siteOffset int // offset of the 4-byte rel32 field.
	target     *ir.BasicBlock
}

// EmitMethod implements §4.6: it walks the graph in reverse-postorder
// (computed by the dominance pass and never invalidated afterwards) and
// encodes each instruction, backpatching intra-method branch targets once
// every block's offset is known and requesting an isa.Relocation for
// every reference the linker alone can resolve (calls and data symbols).
func (*Machine) EmitMethod(b *ir.Builder, frame isa.Frame) (*isa.CodeWriter, error) {
	e := &emitter{w: &isa.CodeWriter{}, frame: frame, blockOffset: map[ir.BasicBlockID]int{}}

	blocks := orderedBlocks(b)

	if err := e.prologue(); err != nil {
		return nil, err
	}
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

// orderedBlocks linearizes the graph by reverse postorder, falling back
// to creation order for any block the dominance pass never numbered
// (unreachable blocks, which still must be emitted so embedded data or
// debug info referencing them stays valid, per §4.2's "skip invalid
// ones" discipline applied the other way: skip invalidated blocks, keep
// unreachable-but-valid ones).
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

func (e *emitter) prologue() error {
	e.w.Emit(0x55)             // push ebp
	e.w.Emit(0x89, modrm(3, 4, 5)) // mov ebp, esp
	if e.frame.Size > 0 {
		e.emitALUImm(0x81, 0x83, 5, RegESP.Num, int64(e.frame.Size))
	}
	return nil
}

func (e *emitter) epilogue() {
	e.w.Emit(0x89, modrm(3, 5, 4)) // mov esp, ebp
	e.w.Emit(0x5D)                 // pop ebp
}

// emitALUImm emits the immediate-source ALU form, picking the 1-byte
// sign-extended encoding when the value fits (§4.4 step 7 coerces shift
// counts the same way; ALU immediates are coerced here at emission time
// since, unlike shift counts, the choice is a pure size optimization with
// no correctness consequence either way).
func (e *emitter) emitALUImm(wideOp, narrowOp, ext byte, rm byte, v int64) {
	if v >= -128 && v <= 127 {
		e.w.Emit(narrowOp, modrm(3, ext, rm), byte(int8(v)))
		return
	}
	e.w.Emit(wideOp, modrm(3, ext, rm))
	e.w.Emit(le32(int32(v))...)
}

func regOf(op ir.Operand) (byte, error) {
	if op.Residence != ir.ResidenceCPURegister {
		return 0, cerr.Unsupported(stageName, op.String(), "operand is not a physical register at code emission")
	}
	return op.Preg.Num, nil
}

// stackDisp resolves a StackLocal operand to its ebp-relative byte
// displacement. Slots are laid out below ebp at [-frame.Size, 0), so a
// slot's displacement is its ascending Stack Layout offset minus the
// total frame size.
func (e *emitter) stackDisp(op ir.Operand) int32 {
	return e.frame.Offsets[op.Slot] - e.frame.Size
}

// emitMemOperand writes a ModRM byte (plus disp32) addressing ebp+disp
// with regField as the other ModRM operand, per the mod=10/rm=101
// encoding that needs no SIB byte.
func (e *emitter) emitMemOperand(regField byte, disp int32) {
	e.w.Emit(modrm(2, regField, RegEBP.Num))
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
		return cerr.Unsupported(stageName, instr.Descriptor().Name, "opcode has no x86 encoding in this target")
	}
}

func (e *emitter) emitMove(instr *ir.Instruction) error {
	dst, _, _ := instr.Results()
	src := instr.Operand(0)

	switch {
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceCPURegister:
		e.w.Emit(0x89, modrm(3, src.Preg.Num, dst.Preg.Num))
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceStackLocal:
		e.w.Emit(0x8B)
		e.emitMemOperand(dst.Preg.Num, e.stackDisp(src))
	case dst.Residence == ir.ResidenceStackLocal && src.Residence == ir.ResidenceCPURegister:
		e.w.Emit(0x89)
		e.emitMemOperand(src.Preg.Num, e.stackDisp(dst))
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceConstant && src.ConstKind == ir.ConstInt:
		e.w.Emit(0xB8 + dst.Preg.Num)
		e.w.Emit(le32(int32(src.IntValue))...)
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceConstant && src.ConstKind == ir.ConstSymbolRef:
		e.w.Emit(0xB8 + dst.Preg.Num)
		e.w.Reloc(isa.RelocAbsolute, 0, src.Symbol, 0)
		e.w.Emit(le32(0)...)
	case dst.Residence == ir.ResidenceStackLocal && src.Residence == ir.ResidenceConstant && src.ConstKind == ir.ConstInt:
		e.w.Emit(0xC7)
		e.emitMemOperand(0, e.stackDisp(dst))
		e.w.Emit(le32(int32(src.IntValue))...)
	default:
		return cerr.Unsupported(stageName, "mov", "unsupported move operand combination %s <- %s", dst.Residence, src.Residence)
	}
	return nil
}

// emitALU encodes a ThreeToTwoAddress binary op after platform tweak has
// already made its first operand identical to its result.
func (e *emitter) emitALU(instr *ir.Instruction) error {
	enc := aluTable[instr.Opcode()]
	dst, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	src := instr.Operand(1)
	switch src.Residence {
	case ir.ResidenceCPURegister:
		e.w.Emit(enc.rmFromReg, modrm(3, src.Preg.Num, dst))
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
		e.w.Emit(0x0F, 0xAF, modrm(3, dst, src.Preg.Num))
	case ir.ResidenceConstant:
		if src.ConstKind != ir.ConstInt {
			return cerr.Unsupported(stageName, "mul.s", "non-integer constant operand")
		}
		if src.IntValue >= -128 && src.IntValue <= 127 {
			e.w.Emit(0x6B, modrm(3, dst, dst), byte(int8(src.IntValue)))
		} else {
			e.w.Emit(0x69, modrm(3, dst, dst))
			e.w.Emit(le32(int32(src.IntValue))...)
		}
	default:
		return cerr.Unsupported(stageName, "mul.s", "unsupported second operand residence %s", src.Residence)
	}
	return nil
}

// emitMulDivRem encodes the EAX/EDX-implicit one-operand forms: AssignFixedRegisters
// has already pinned operand(0)/the result onto eax or edx; the divisor/
// multiplier here (operand 1) must be a register or memory r/m operand,
// never an immediate, matching the real instruction's encoding.
func (e *emitter) emitMulDivRem(instr *ir.Instruction) error {
	divisor, err := regOf(instr.Operand(1))
	if err != nil {
		return err
	}
	switch instr.Opcode() {
	case ir.OpcodeMulUnsigned:
		e.w.Emit(0xF7, modrm(3, 4, divisor)) // MUL r/m32
	case ir.OpcodeDivUnsigned, ir.OpcodeRemUnsigned:
		e.w.Emit(0x31, modrm(3, 2, 2)) // xor edx, edx
		e.w.Emit(0xF7, modrm(3, 6, divisor)) // DIV r/m32
	case ir.OpcodeDivSigned, ir.OpcodeRemSigned:
		e.w.Emit(0x99)                        // cdq
		e.w.Emit(0xF7, modrm(3, 7, divisor)) // IDIV r/m32
	}
	return nil
}

func (e *emitter) emitUnaryGroup(instr *ir.Instruction, ext byte) error {
	dst, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	e.w.Emit(0xF7, modrm(3, ext, dst))
	return nil
}

// emitCompare shares the cmp encoding between the standalone value-
// producing form and the fused branch form.
func (e *emitter) emitCompare(lhs, rhs ir.Operand) error {
	dst, err := regOf(lhs)
	if err != nil {
		return err
	}
	switch rhs.Residence {
	case ir.ResidenceCPURegister:
		e.w.Emit(0x39, modrm(3, rhs.Preg.Num, dst))
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

// emitStandaloneCompare produces a 0/1 value via setcc+movzx, for a
// Compare whose result is consumed as a value rather than fused into a
// branch by Lower.
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
	e.w.Emit(0x0F, 0x90+tttn, modrm(3, 0, 0)) // setcc al
	e.w.Emit(0x0F, 0xB6, modrm(3, dst, 0))    // movzx dst, al
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
		if v.Residence != ir.ResidenceCPURegister || v.Preg != RegEAX {
			src, err := e.operandToReg(v)
			if err != nil {
				return err
			}
			if src != RegEAX.Num {
				e.w.Emit(0x89, modrm(3, src, RegEAX.Num))
			}
		}
	}
	e.epilogue()
	e.w.Emit(0xC3)
	return nil
}

// operandToReg resolves an operand already known to be a physical
// register, returning its encoding; used where the value is expected to
// already be register-resident by this point in the pipeline.
func (e *emitter) operandToReg(op ir.Operand) (byte, error) {
	return regOf(op)
}

// emitCall pushes arguments right-to-left, the cdecl convention the rest
// of the pack's ABI descriptions assume, then emits a rel32 call through
// a relocation (the callee lives in another method, resolved only once
// the linker has laid out every method's final address).
func (e *emitter) emitCall(instr *ir.Instruction) error {
	n := instr.OperandCount()
	for i := n - 1; i >= 0; i-- {
		arg := instr.Operand(i)
		if arg.Residence != ir.ResidenceCPURegister {
			return cerr.Unsupported(stageName, "call", "argument %d is not register-resident at code emission", i)
		}
		e.w.Emit(0x50 + arg.Preg.Num) // push reg
	}
	e.w.Emit(0xE8)
	e.w.Reloc(isa.RelocRelative32, 0, instr.Callee(), 0)
	e.w.Emit(le32(0)...)
	if n > 0 {
		e.emitALUImm(0x81, 0x83, 0, RegESP.Num, int64(n*4)) // add esp, n*4
	}
	res1, _, _ := instr.Results()
	if res1.Valid() && (res1.Residence != ir.ResidenceCPURegister || res1.Preg != RegEAX) {
		dst, err := regOf(res1)
		if err != nil {
			return err
		}
		e.w.Emit(0x89, modrm(3, RegEAX.Num, dst))
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
	e.w.Emit(0x8B, modrm(0, dst, base))
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
	e.w.Emit(0x89, modrm(0, value, base))
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

// emitRegMemDisp encodes reg,[base+disp] using the shortest disp8/disp32
// encoding, choosing the mod=00/no-displacement form only when base isn't
// ebp (mod=00,rm=101 means absolute disp32 instead of [ebp], so ebp-based
// field access always carries an explicit displacement).
func (e *emitter) emitRegMemDisp(opcode, reg, base byte, disp int32) {
	switch {
	case disp == 0 && base != RegEBP.Num:
		e.w.Emit(opcode, modrm(0, reg, base))
	case disp >= -128 && disp <= 127:
		e.w.Emit(opcode, modrm(1, reg, base), byte(int8(disp)))
	default:
		e.w.Emit(opcode, modrm(2, reg, base))
		e.w.Emit(le32(disp)...)
	}
}
