package arm64

import (
	"sort"

	"github.com/stjordanis/MOSA-Project/cerr"
	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
)

const stageName = "code-emission"

// condFlagTable follows the AArch64 condition-flag encoding (ARM DDI0596,
// "Conditional instructions"): eq=0000, ne=0001, and so on through the
// signed/unsigned ordering pairs this table maps onto.
var condFlagTable = map[ir.Condition]uint32{
	ir.CondEqual:                 0b0000,
	ir.CondNotEqual:               0b0001,
	ir.CondLessUnsigned:           0b0011, // lo
	ir.CondGreaterOrEqualUnsigned: 0b0010, // hs
	ir.CondLessOrEqualUnsigned:    0b1001, // ls
	ir.CondGreaterUnsigned:        0b1000, // hi
	ir.CondLessSigned:             0b1011, // lt
	ir.CondGreaterOrEqualSigned:   0b1010, // ge
	ir.CondLessOrEqualSigned:      0b1101, // le
	ir.CondGreaterSigned:          0b1100, // gt
}

type emitter struct {
	m           *Machine
	w           *isa.CodeWriter
	frame       isa.Frame
	blockOffset map[ir.BasicBlockID]int
	patches     []patch
}

type patch struct {
	siteOffset int // offset of the 4-byte instruction word carrying the branch immediate.
	target     *ir.BasicBlock
	cond       bool // true for B.cond (imm19 field), false for unconditional B (imm26 field).
}

func (e *emitter) emit32(word uint32) {
	e.w.Emit(byte(word), byte(word>>8), byte(word>>16), byte(word>>24))
}

// EmitMethod implements §4.6 for the fixed-32-bit-word target: it walks
// the graph in reverse postorder, encoding one instruction word (or a
// short fixed sequence, e.g. the multi-instruction constant load) per
// ir.Instruction, and backpatches intra-method branches once every
// block's starting offset is known.
func (m *Machine) EmitMethod(b *ir.Builder, frame isa.Frame) (*isa.CodeWriter, error) {
	e := &emitter{m: m, w: &isa.CodeWriter{}, frame: frame, blockOffset: map[ir.BasicBlockID]int{}}
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
		disp := int64(target - p.siteOffset)
		word := le32At(e.w.Bytes, p.siteOffset)
		if p.cond {
			imm19 := uint32(disp/4) & 0b111_11111111_11111111
			word |= imm19 << 5
		} else {
			imm26 := uint32(disp/4) & 0b11_11111111_11111111_11111111
			word |= imm26
		}
		putLE32At(e.w.Bytes, p.siteOffset, word)
	}
	return e.w, nil
}

func le32At(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func putLE32At(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
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

// prologue emits the stp fp,lr,[sp,#-16]! / mov fp,sp pair the epilogue's
// ldp undoes, then reserves the frame below the new fp the way x86's
// prologue subtracts esp.
func (e *emitter) prologue() {
	e.emit32(encodeStpPreIndex(RegFP.Num, RegLR.Num, RegSP.Num, -16))
	e.emit32(encodeMovReg(RegFP.Num, RegSP.Num, e.m.sf()))
	if e.frame.Size > 0 {
		e.emitAddSubImm(false, RegSP.Num, RegSP.Num, uint32(e.frame.Size))
	}
}

func (e *emitter) epilogue() {
	if e.frame.Size > 0 {
		e.emitAddSubImm(true, RegSP.Num, RegSP.Num, uint32(e.frame.Size))
	}
	e.emit32(encodeLdpPostIndex(RegFP.Num, RegLR.Num, RegSP.Num, 16))
}

func regOf(op ir.Operand) (uint32, error) {
	if op.Residence != ir.ResidenceCPURegister {
		return 0, cerr.Unsupported(stageName, op.String(), "operand is not a physical register at code emission")
	}
	return uint32(op.Preg.Num), nil
}

// stackDisp mirrors isa/x86's convention: slots sit below the frame
// pointer at [fp-Size, fp), so a slot's displacement is its ascending
// Stack Layout offset minus the total frame size.
func (e *emitter) stackDisp(op ir.Operand) int64 {
	return int64(e.frame.Offsets[op.Slot] - e.frame.Size)
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
	case ir.OpcodeShl, ir.OpcodeShrSigned, ir.OpcodeShrUnsigned:
		return e.emitShift(instr)
	case ir.OpcodeMulSigned, ir.OpcodeMulUnsigned:
		return e.emitMul(instr)
	case ir.OpcodeDivSigned, ir.OpcodeDivUnsigned:
		return e.emitDiv(instr)
	case ir.OpcodeRemSigned, ir.OpcodeRemUnsigned:
		return cerr.Unsupported(stageName, "rem", "remainder has no dedicated instruction on this target; lowering to div+msub is not implemented")
	case ir.OpcodeNeg:
		return e.emitNeg(instr)
	case ir.OpcodeNot:
		return e.emitNot(instr)
	case ir.OpcodeCompare:
		return e.emitStandaloneCompare(instr)
	case ir.OpcodeCompareIntBranch:
		return e.emitCompareBranch(instr)
	case ir.OpcodeJump:
		e.patches = append(e.patches, patch{siteOffset: e.w.Offset(), target: instr.Target()})
		e.emit32(0b101 << 26) // B, placeholder imm26
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
		return cerr.Unsupported(stageName, instr.Descriptor().Name, "opcode has no arm64 encoding in this target")
	}
}

// encodeAddSubtractRegister covers ADD/SUB (shifted register), shift=0.
func encodeAddSubtractRegister(sub bool, rd, rn, rm, sf uint32) uint32 {
	op := uint32(0b00001011_000)
	if sub {
		op = 0b01001011_000
	}
	return sf<<31 | op<<21 | rm<<16 | rn<<5 | rd
}

// emitAddSubImm covers ADD/SUB (immediate), used for frame pointer
// arithmetic and constant-operand ALU forms; imm must fit 12 bits.
func (e *emitter) emitAddSubImm(sub bool, rd, rn uint32, imm uint32) {
	op := uint32(0b100010)
	s := uint32(0)
	if sub {
		s = 1
	}
	word := e.m.sf()<<31 | s<<30 | op<<23 | (imm&0xFFF)<<10 | rn<<5 | rd
	e.emit32(word)
}

// encodeLogical covers AND/ORR/EOR (shifted register) and, with invert
// set, their N=1 complement-operand forms BIC/ORN/EON: "Logical (shifted
// register)" (ARM DDI0596).
func encodeLogical(opc uint32, invert bool, rd, rn, rm, sf uint32) uint32 {
	n := uint32(0)
	if invert {
		n = 1
	}
	return sf<<31 | opc<<29 | 0b01010<<24 | n<<21 | rm<<16 | rn<<5 | rd
}

func encodeMovReg(rd, rn, sf uint32) uint32 {
	// MOV (register) is an alias of ORR rd, xzr, rn.
	return encodeLogical(0b01, false, rd, RegXZR.Num, rn, sf)
}

func encodeMovZ(rd uint32, imm16 uint32, shift uint32, sf uint32) uint32 {
	return sf<<31 | 0b10<<29 | 0b100101<<23 | shift<<21 | (imm16&0xFFFF)<<5 | rd
}

func encodeMovK(rd uint32, imm16 uint32, shift uint32, sf uint32) uint32 {
	return sf<<31 | 0b11<<29 | 0b100101<<23 | shift<<21 | (imm16&0xFFFF)<<5 | rd
}

// encodeDataProcessing2Source covers the register-shift-count ALU forms
// (LSLV/LSRV/ASRV) and SDIV/UDIV, which all share the "Data-processing (2
// source)" layout.
func encodeDataProcessing2Source(opcode uint32, rd, rn, rm, sf uint32) uint32 {
	return sf<<31 | 0b11010110<<21 | rm<<16 | opcode<<10 | rn<<5 | rd
}

func encodeLdurStur(store bool, sizeBits uint32, rt, rn uint32, imm9 int64) uint32 {
	opc := uint32(0b01)
	if store {
		opc = 0b00
	}
	return sizeBits<<30 | 0b111<<27 | 0b0<<26 | opc<<22 | (uint32(imm9)&0b111111111)<<12 | rn<<5 | rt
}

func encodeStpPreIndex(rt, rt2, rn uint32, imm7 int64) uint32 {
	return encodeLoadStorePair(true, true, rt, rt2, rn, imm7)
}

func encodeLdpPostIndex(rt, rt2, rn uint32, imm7 int64) uint32 {
	return encodeLoadStorePair(false, false, rt, rt2, rn, imm7)
}

func encodeLoadStorePair(load, pre bool, rt, rt2, rn uint32, imm7 int64) uint32 {
	word := rt
	word |= rn << 5
	word |= rt2 << 10
	word |= (uint32(imm7/8) & 0b1111111) << 15
	if load {
		word |= 1 << 22
	}
	word |= 0b101010001 << 23
	if pre {
		word |= 1 << 24
	}
	return word
}

func encodeRet() uint32 {
	return 0b1101011001011111<<16 | RegLR.Num<<5
}

func encodeBL() uint32 { return 1<<31 | 0b101<<26 }

func (e *emitter) emitMove(instr *ir.Instruction) error {
	dst, _, _ := instr.Results()
	src := instr.Operand(0)
	sf := e.m.sf()

	switch {
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceCPURegister:
		e.emit32(encodeMovReg(uint32(dst.Preg.Num), uint32(src.Preg.Num), sf))
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceStackLocal:
		e.emit32(encodeLdurStur(false, sizeBitsFor(sf), uint32(dst.Preg.Num), RegFP.Num, e.stackDisp(src)))
	case dst.Residence == ir.ResidenceStackLocal && src.Residence == ir.ResidenceCPURegister:
		e.emit32(encodeLdurStur(true, sizeBitsFor(sf), uint32(src.Preg.Num), RegFP.Num, e.stackDisp(dst)))
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceConstant && src.ConstKind == ir.ConstInt:
		e.emitConstLoad(uint32(dst.Preg.Num), uint64(src.IntValue), sf)
	case dst.Residence == ir.ResidenceCPURegister && src.Residence == ir.ResidenceConstant && src.ConstKind == ir.ConstSymbolRef:
		e.w.Reloc(isa.RelocAbsolute, 0, src.Symbol, 0)
		e.emitConstLoad(uint32(dst.Preg.Num), 0, sf)
	default:
		return cerr.Unsupported(stageName, "mov", "unsupported move operand combination %s <- %s", dst.Residence, src.Residence)
	}
	return nil
}

func sizeBitsFor(sf uint32) uint32 {
	if sf == 1 {
		return 0b11
	}
	return 0b10
}

// emitConstLoad materializes an arbitrary constant through MOVZ followed
// by up to three MOVK instructions, one per 16-bit chunk that is
// non-zero (skipping the MOVZ chunk itself).
func (e *emitter) emitConstLoad(rd uint32, v uint64, sf uint32) {
	chunks := 2
	if sf == 1 {
		chunks = 4
	}
	e.emit32(encodeMovZ(rd, uint32(v&0xFFFF), 0, sf))
	for i := 1; i < chunks; i++ {
		chunk := uint32((v >> (16 * uint(i))) & 0xFFFF)
		if chunk == 0 {
			continue
		}
		e.emit32(encodeMovK(rd, chunk, uint32(i), sf))
	}
}

func (e *emitter) emitALU(instr *ir.Instruction) error {
	dst, _, _ := instr.Results()
	rd, err := regOf(dst)
	if err != nil {
		return err
	}
	rn, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	sf := e.m.sf()
	rhs := instr.Operand(1)

	if rhs.Residence == ir.ResidenceConstant {
		if rhs.ConstKind != ir.ConstInt {
			return cerr.Unsupported(stageName, instr.Descriptor().Name, "non-integer constant operand")
		}
		switch instr.Opcode() {
		case ir.OpcodeAdd:
			e.emitAddSubImm(false, rd, rn, uint32(rhs.IntValue))
			return nil
		case ir.OpcodeSub:
			e.emitAddSubImm(true, rd, rn, uint32(rhs.IntValue))
			return nil
		default:
			return cerr.Unsupported(stageName, instr.Descriptor().Name, "immediate logical operand is not implemented")
		}
	}

	rm, err := regOf(rhs)
	if err != nil {
		return err
	}
	switch instr.Opcode() {
	case ir.OpcodeAdd:
		e.emit32(encodeAddSubtractRegister(false, rd, rn, rm, sf))
	case ir.OpcodeSub:
		e.emit32(encodeAddSubtractRegister(true, rd, rn, rm, sf))
	case ir.OpcodeAnd:
		e.emit32(encodeLogical(0b00, false, rd, rn, rm, sf))
	case ir.OpcodeOr:
		e.emit32(encodeLogical(0b01, false, rd, rn, rm, sf))
	case ir.OpcodeXor:
		e.emit32(encodeLogical(0b10, false, rd, rn, rm, sf))
	}
	return nil
}

// emitShift always uses the register-shift-count form (LSLV/LSRV/ASRV):
// a constant shift count is materialized into a register first, since
// the hardware masks the count to the register width either way and
// this avoids a second, immediate-encoded opcode family.
func (e *emitter) emitShift(instr *ir.Instruction) error {
	dst, _, _ := instr.Results()
	rd, err := regOf(dst)
	if err != nil {
		return err
	}
	rn, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	count := instr.Operand(1)
	var rm uint32
	sf := e.m.sf()
	if count.Residence == ir.ResidenceConstant {
		if count.ConstKind != ir.ConstInt {
			return cerr.Unsupported(stageName, instr.Descriptor().Name, "non-integer shift count")
		}
		rm = RegX16.Num
		e.emitConstLoad(rm, uint64(count.IntValue), sf)
	} else {
		rm, err = regOf(count)
		if err != nil {
			return err
		}
	}
	var opcode uint32
	switch instr.Opcode() {
	case ir.OpcodeShl:
		opcode = 0b001000
	case ir.OpcodeShrUnsigned:
		opcode = 0b001001
	case ir.OpcodeShrSigned:
		opcode = 0b001010
	}
	e.emit32(encodeDataProcessing2Source(opcode, rd, rn, rm, sf))
	return nil
}

func (e *emitter) emitMul(instr *ir.Instruction) error {
	dst, _, _ := instr.Results()
	rd, err := regOf(dst)
	if err != nil {
		return err
	}
	rn, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	rm, err := regOf(instr.Operand(1))
	if err != nil {
		return err
	}
	sf := e.m.sf()
	// MUL rd, rn, rm is an alias of MADD rd, rn, rm, xzr ("Data-processing (3 source)").
	word := sf<<31 | 0b0011011000<<21 | rm<<16 | RegXZR.Num<<10 | rn<<5 | rd
	e.emit32(word)
	return nil
}

func (e *emitter) emitDiv(instr *ir.Instruction) error {
	dst, _, _ := instr.Results()
	rd, err := regOf(dst)
	if err != nil {
		return err
	}
	rn, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	rm, err := regOf(instr.Operand(1))
	if err != nil {
		return err
	}
	opcode := uint32(0b000010) // UDIV
	if instr.Opcode() == ir.OpcodeDivSigned {
		opcode = 0b000011 // SDIV
	}
	e.emit32(encodeDataProcessing2Source(opcode, rd, rn, rm, e.m.sf()))
	return nil
}

func (e *emitter) emitNeg(instr *ir.Instruction) error {
	dst, _, _ := instr.Results()
	rd, err := regOf(dst)
	if err != nil {
		return err
	}
	rm, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	// NEG rd, rm is an alias of SUB rd, xzr, rm.
	e.emit32(encodeAddSubtractRegister(true, rd, RegXZR.Num, rm, e.m.sf()))
	return nil
}

func (e *emitter) emitNot(instr *ir.Instruction) error {
	dst, _, _ := instr.Results()
	rd, err := regOf(dst)
	if err != nil {
		return err
	}
	rm, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	// MVN rd, rm is an alias of ORN rd, xzr, rm.
	e.emit32(encodeLogical(0b01, true, rd, RegXZR.Num, rm, e.m.sf()))
	return nil
}

func (e *emitter) emitCompare(lhs, rhs ir.Operand) error {
	rn, err := regOf(lhs)
	if err != nil {
		return err
	}
	sf := e.m.sf()
	switch rhs.Residence {
	case ir.ResidenceCPURegister:
		rm, err := regOf(rhs)
		if err != nil {
			return err
		}
		// CMP rn, rm is an alias of SUBS xzr, rn, rm.
		word := sf<<31 | 1<<29 | uint32(0b01001011_000)<<21 | rm<<16 | rn<<5 | RegXZR.Num
		e.emit32(word)
	case ir.ResidenceConstant:
		if rhs.ConstKind != ir.ConstInt {
			return cerr.Unsupported(stageName, "cmp", "non-integer constant operand")
		}
		// CMP rn, #imm is an alias of SUBS xzr, rn, #imm.
		word := sf<<31 | 1<<30 | 0b100010<<23 | (uint32(rhs.IntValue)&0xFFF)<<10 | rn<<5 | RegXZR.Num
		e.emit32(word)
	default:
		return cerr.Unsupported(stageName, "cmp", "unsupported second operand residence %s", rhs.Residence)
	}
	return nil
}

// emitStandaloneCompare produces a 0/1 value via CSET, for a Compare
// whose result is consumed as a value rather than fused into a branch.
func (e *emitter) emitStandaloneCompare(instr *ir.Instruction) error {
	if err := e.emitCompare(instr.Operand(0), instr.Operand(1)); err != nil {
		return err
	}
	flag, ok := condFlagTable[instr.Cond()]
	if !ok {
		return cerr.Invariant(stageName, "unknown condition %s", instr.Cond())
	}
	res, _, _ := instr.Results()
	rd, err := regOf(res)
	if err != nil {
		return err
	}
	// CSET rd, cond is an alias of CSINC rd, xzr, xzr, invert(cond).
	invCond := flag ^ 0b0001
	word := e.m.sf()<<31 | 0b11010100<<21 | RegXZR.Num<<16 | invCond<<12 | 0b01<<10 | RegXZR.Num<<5 | rd
	e.emit32(word)
	return nil
}

func (e *emitter) emitCompareBranch(instr *ir.Instruction) error {
	if err := e.emitCompare(instr.Operand(0), instr.Operand(1)); err != nil {
		return err
	}
	flag, ok := condFlagTable[instr.Cond()]
	if !ok {
		return cerr.Invariant(stageName, "unknown condition %s", instr.Cond())
	}
	e.patches = append(e.patches, patch{siteOffset: e.w.Offset(), target: instr.Target(), cond: true})
	e.emit32(0b01010100<<24 | flag) // B.cond, placeholder imm19
	return nil
}

func (e *emitter) emitReturn(instr *ir.Instruction) error {
	if instr.OperandCount() > 0 {
		v := instr.Operand(0)
		if v.Residence != ir.ResidenceCPURegister || v.Preg != RegX0 {
			src, err := regOf(v)
			if err != nil {
				return err
			}
			if src != RegX0.Num {
				e.emit32(encodeMovReg(RegX0.Num, src, e.m.sf()))
			}
		}
	}
	e.epilogue()
	e.emit32(encodeRet())
	return nil
}

// emitCall passes up to eight integer arguments in registers, x0 followed
// by x9-x15 (intArgRegs); beyond that this target does not implement stack
// argument passing.
var intArgRegs = []ir.PhysReg{RegX0, RegX9, RegX10, RegX11, RegX12, RegX13, RegX14, RegX15}

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
			e.emit32(encodeMovReg(want.Num, argReg, e.m.sf()))
		}
	}
	e.w.Reloc(isa.RelocRelative32, 0, instr.Callee(), 0)
	e.emit32(encodeBL())
	res1, _, _ := instr.Results()
	if res1.Valid() && (res1.Residence != ir.ResidenceCPURegister || res1.Preg != RegX0) {
		dst, err := regOf(res1)
		if err != nil {
			return err
		}
		e.emit32(encodeMovReg(dst, RegX0.Num, e.m.sf()))
	}
	return nil
}

func (e *emitter) emitLoad(instr *ir.Instruction) error {
	res, _, _ := instr.Results()
	rd, err := regOf(res)
	if err != nil {
		return err
	}
	rn, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	e.emit32(encodeLdurStur(false, sizeBitsFor(e.m.sf()), rd, rn, 0))
	return nil
}

func (e *emitter) emitStore(instr *ir.Instruction) error {
	rn, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	rt, err := regOf(instr.Operand(1))
	if err != nil {
		return err
	}
	e.emit32(encodeLdurStur(true, sizeBitsFor(e.m.sf()), rt, rn, 0))
	return nil
}

func (e *emitter) emitLoadField(instr *ir.Instruction) error {
	res, _, _ := instr.Results()
	rd, err := regOf(res)
	if err != nil {
		return err
	}
	rn, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	off := instr.Operand(1).IntValue
	e.emit32(encodeLdurStur(false, sizeBitsFor(e.m.sf()), rd, rn, off))
	return nil
}

func (e *emitter) emitStoreField(instr *ir.Instruction) error {
	rn, err := regOf(instr.Operand(0))
	if err != nil {
		return err
	}
	rt, err := regOf(instr.Operand(2))
	if err != nil {
		return err
	}
	off := instr.Operand(1).IntValue
	e.emit32(encodeLdurStur(true, sizeBitsFor(e.m.sf()), rt, rn, off))
	return nil
}
