package asm

import (
	"fmt"

	"github.com/colorfulnotion/lirx64/x64errors"
)

type encoderFunc func(s Sink, in *Inst) (*Relocation, error)

var instEncoders map[Op]encoderFunc

func init() {
	instEncoders = map[Op]encoderFunc{
		// group 1 arithmetic: 8-bit opcode is slot<<3, wide opcode slot<<3|1
		ADD: encodeArith(X86_REG_ADD),
		OR:  encodeArith(X86_REG_OR),
		AND: encodeArith(X86_REG_AND),
		SUB: encodeArith(X86_REG_SUB),
		XOR: encodeArith(X86_REG_XOR),
		CMP: encodeArith(X86_REG_CMP),

		TEST: encodeTest,
		IMUL: encodeImul,
		NEG:  encodeUnary(X86_REG_NEG),
		NOT:  encodeUnary(X86_REG_NOT),

		MOV:    encodeMov,
		MOVABS: encodeMov,
		MOVZX:  encodeExtend(X86_OP2_MOVZX_R_RM8, X86_OP2_MOVZX_R_RM16),
		MOVSX:  encodeExtend(X86_OP2_MOVSX_R_RM8, X86_OP2_MOVSX_R_RM16),
		MOVSXD: encodeMovsxd,
		LEA:    encodeLea,
		SETCC:  encodeSetcc,
		CMOVCC: encodeCmov,

		ROL: encodeShift(X86_REG_ROL),
		ROR: encodeShift(X86_REG_ROR),
		SHL: encodeShift(X86_REG_SHL),
		SHR: encodeShift(X86_REG_SHR),
		SAR: encodeShift(X86_REG_SAR),

		MOVSS:     encodeSSEMove(X86_PREFIX_REP),
		MOVSD:     encodeSSEMove(X86_PREFIX_REPNE),
		ADDSS:     encodeSSE(X86_PREFIX_REP, X86_OP2_ADDS),
		ADDSD:     encodeSSE(X86_PREFIX_REPNE, X86_OP2_ADDS),
		SUBSS:     encodeSSE(X86_PREFIX_REP, X86_OP2_SUBS),
		SUBSD:     encodeSSE(X86_PREFIX_REPNE, X86_OP2_SUBS),
		MULSS:     encodeSSE(X86_PREFIX_REP, X86_OP2_MULS),
		MULSD:     encodeSSE(X86_PREFIX_REPNE, X86_OP2_MULS),
		DIVSS:     encodeSSE(X86_PREFIX_REP, X86_OP2_DIVS),
		DIVSD:     encodeSSE(X86_PREFIX_REPNE, X86_OP2_DIVS),
		UCOMISS:   encodeSSE(0, X86_OP2_UCOMIS),
		UCOMISD:   encodeSSE(X86_PREFIX_66, X86_OP2_UCOMIS),
		CVTSS2SD:  encodeSSE(X86_PREFIX_REP, X86_OP2_CVTS2S),
		CVTSD2SS:  encodeSSE(X86_PREFIX_REPNE, X86_OP2_CVTS2S),
		XORPS:     encodeSSE(0, X86_OP2_XORPS),
		CVTSI2SS:  encodeCvtIntToFloat(X86_PREFIX_REP),
		CVTSI2SD:  encodeCvtIntToFloat(X86_PREFIX_REPNE),
		CVTTSS2SI: encodeCvtFloatToInt(X86_PREFIX_REP),
		CVTTSD2SI: encodeCvtFloatToInt(X86_PREFIX_REPNE),
		MOVQ:      encodeMovq,

		PUSH:  encodePush,
		POP:   encodePop,
		CALL:  encodeCall,
		RET:   encodeSingle(X86_OP_RET),
		LEAVE: encodeSingle(X86_OP_LEAVE),
		JMP:   encodeJmp,
		JCC:   encodeJcc,
	}
}

// Encode writes in to s. It returns the relocation the instruction needs,
// if any, with its offset relative to the start of s. Operands are checked
// before the first byte is written.
func Encode(s Sink, in Inst) (*Relocation, error) {
	enc, ok := instEncoders[in.Op]
	if !ok {
		return nil, fmt.Errorf("%w: unknown op %d", x64errors.ErrUnsupportedOperands, in.Op)
	}
	return enc(s, &in)
}

// Length reports the encoded size of in.
func Length(in Inst) (int, error) {
	var c SizeCounter
	if _, err := Encode(&c, in); err != nil {
		return 0, err
	}
	return c.Size(), nil
}

func unsupported(in *Inst) error {
	return fmt.Errorf("%w: %s %s, %s", x64errors.ErrUnsupportedOperands, in.Op, in.Src.Kind(), in.Dst.Kind())
}

func rangeError(v int64, width uint8) error {
	return fmt.Errorf("%w: %d does not fit in %d bytes", x64errors.ErrEncodingRange, v, width)
}

// modrmForm describes one ModRM-encoded instruction.
type modrmForm struct {
	size      uint8 // 2 emits the operand-size prefix
	mandatory byte  // SSE prefix, emitted after 0x66 and before REX
	w         bool
	op        [3]byte
	opLen     int
	reg       Register // ModRM.reg operand; zero when digit is used
	digit     uint8
	rm        Operand
	immWidth  uint8
	imm       int64
}

func (f *modrmForm) opcode(b ...byte) *modrmForm {
	f.opLen = copy(f.op[:], b)
	return f
}

func (f *modrmForm) emit(s Sink) (*Relocation, error) {
	var rex byte
	if f.w {
		rex |= X86_REX_W
	}
	regField := f.digit
	force := false
	high := false
	if f.reg.IsValid() {
		regField = f.reg.low3()
		if f.reg.NeedsREX() {
			rex |= X86_REX_R
		}
		force = f.reg.IsExtendedByte()
		high = f.reg.IsHighByte()
	}
	switch f.rm.Kind() {
	case KindRegister:
		r := f.rm.reg
		if r.NeedsREX() {
			rex |= X86_REX_B
		}
		force = force || r.IsExtendedByte()
		high = high || r.IsHighByte()
	case KindAddress:
		a := f.rm.addr
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if a.Base.NeedsREX() {
			rex |= X86_REX_B
		}
		if a.Index.NeedsREX() {
			rex |= X86_REX_X
		}
	default:
		return nil, fmt.Errorf("%w: r/m operand is %s", x64errors.ErrUnsupportedOperands, f.rm.Kind())
	}
	if high && (rex != 0 || force) {
		return nil, x64errors.ErrHighByteWithREX
	}

	if f.size == 2 {
		s.Emit8(X86_PREFIX_66)
	}
	if f.mandatory != 0 {
		s.Emit8(f.mandatory)
	}
	if rex != 0 || force {
		s.Emit8(X86_REX_BASE | rex)
	}
	for _, b := range f.op[:f.opLen] {
		s.Emit8(b)
	}
	reloc := emitRM(s, regField, f.rm, f.immWidth)
	emitImm(s, f.imm, f.immWidth)
	return reloc, nil
}

func modrm(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | rm&7
}

func scaleBits(scale uint8) byte {
	switch scale {
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	}
	return 0
}

// emitRM writes ModRM, SIB and displacement. trailing is the number of
// immediate bytes that follow, needed for the RIP-relative addend.
func emitRM(s Sink, reg byte, rm Operand, trailing uint8) *Relocation {
	if rm.IsRegister() {
		s.Emit8(modrm(X86_MOD_REGISTER, reg, rm.reg.low3()))
		return nil
	}
	a := rm.addr
	if a.IsSymbol() {
		s.Emit8(modrm(X86_MOD_INDIRECT, reg, X86_RIP_RELATIVE))
		off := s.Size()
		s.Emit32(0)
		return &Relocation{
			Offset: uint32(off),
			Symbol: a.Symbol,
			Type:   RelocPC32,
			Addend: int64(a.Disp) - int64(4+trailing),
		}
	}
	base := a.Base.low3()
	var mod byte
	switch {
	case a.Disp == 0 && base != X86_RBP_REGBITS:
		mod = X86_MOD_INDIRECT
	case FitsInt8(int64(a.Disp)):
		mod = X86_MOD_INDIRECT_DISP8
	default:
		mod = X86_MOD_INDIRECT_DISP32
	}
	if a.Index.IsValid() || base == X86_RSP_REGBITS {
		index := byte(X86_SIB_NO_INDEX)
		if a.Index.IsValid() {
			index = a.Index.low3()
		}
		s.Emit8(modrm(mod, reg, X86_SIB_INDICATOR))
		s.Emit8(scaleBits(a.Scale)<<6 | index<<3 | base)
	} else {
		s.Emit8(modrm(mod, reg, base))
	}
	switch mod {
	case X86_MOD_INDIRECT_DISP8:
		s.Emit8(uint8(int8(a.Disp)))
	case X86_MOD_INDIRECT_DISP32:
		s.Emit32(uint32(a.Disp))
	}
	return nil
}

func emitImm(s Sink, v int64, width uint8) {
	switch width {
	case 1:
		s.Emit8(uint8(v))
	case 2:
		s.Emit16(uint16(v))
	case 4:
		s.Emit32(uint32(v))
	case 8:
		s.Emit64(uint64(v))
	}
}

// emitOpReg writes the short "opcode + register" forms (push, pop, mov imm).
func emitOpReg(s Sink, size uint8, w bool, op byte, r Register) error {
	var rex byte
	if w {
		rex |= X86_REX_W
	}
	if r.NeedsREX() {
		rex |= X86_REX_B
	}
	force := r.IsExtendedByte()
	if r.IsHighByte() && (rex != 0 || force) {
		return x64errors.ErrHighByteWithREX
	}
	if size == 2 {
		s.Emit8(X86_PREFIX_66)
	}
	if rex != 0 || force {
		s.Emit8(X86_REX_BASE | rex)
	}
	s.Emit8(op + r.low3())
	return nil
}

// immWidthFor is the immediate width of a sized r/m,imm form. 64-bit
// operations take a sign-extended imm32.
func immWidthFor(size uint8) uint8 {
	if size == 8 {
		return 4
	}
	return size
}

func checkImm(v int64, size uint8) error {
	if size == 8 {
		if !FitsInt32(v) {
			return rangeError(v, 4)
		}
		return nil
	}
	if !fitsWidth(v, size) {
		return rangeError(v, size)
	}
	return nil
}

func checkSize(size uint8) error {
	switch size {
	case 1, 2, 4, 8:
		return nil
	}
	return fmt.Errorf("%w: operation size %d", x64errors.ErrUnsupportedOperands, size)
}

// checkGP rejects register operands that are not general purpose registers
// of width size.
func checkGP(op Operand, size uint8) error {
	if !op.IsRegister() {
		return nil
	}
	if !op.reg.IsGP() || op.reg.Size() != size {
		return fmt.Errorf("%w: %s used at width %d", x64errors.ErrUnsupportedOperands, op.reg, size)
	}
	return nil
}

func checkXMM(op Operand) error {
	if !op.IsRegister() {
		return nil
	}
	if !op.reg.IsVector() || op.reg.Size() != 16 {
		return fmt.Errorf("%w: %s is not an xmm register", x64errors.ErrUnsupportedOperands, op.reg)
	}
	return nil
}

func sizedGP(in *Inst) error {
	if err := checkSize(in.Size); err != nil {
		return err
	}
	if err := checkGP(in.Dst, in.Size); err != nil {
		return err
	}
	return checkGP(in.Src, in.Size)
}

func isRM(op Operand) bool {
	return op.IsRegister() || op.IsAddress()
}

func encodeArith(slot byte) encoderFunc {
	return func(s Sink, in *Inst) (*Relocation, error) {
		if err := sizedGP(in); err != nil {
			return nil, err
		}
		base := slot << 3
		var wide byte
		if in.Size != 1 {
			wide = 1
		}
		f := modrmForm{size: in.Size, w: in.Size == 8}
		switch {
		case in.Src.IsImmediate() && isRM(in.Dst):
			if err := checkImm(in.Src.imm.Value, in.Size); err != nil {
				return nil, err
			}
			op := byte(X86_OP_GROUP1_RM_IMM32)
			if in.Size == 1 {
				op = X86_OP_GROUP1_RM8_IMM8
			}
			f.opcode(op)
			f.digit = slot
			f.rm = in.Dst
			f.immWidth = immWidthFor(in.Size)
			f.imm = in.Src.imm.Value
		case in.Src.IsRegister() && isRM(in.Dst):
			f.opcode(base + wide)
			f.reg = in.Src.reg
			f.rm = in.Dst
		case in.Src.IsAddress() && in.Dst.IsRegister():
			f.opcode(base + 2 + wide)
			f.reg = in.Dst.reg
			f.rm = in.Src
		default:
			return nil, unsupported(in)
		}
		return f.emit(s)
	}
}

func encodeTest(s Sink, in *Inst) (*Relocation, error) {
	if err := sizedGP(in); err != nil {
		return nil, err
	}
	f := modrmForm{size: in.Size, w: in.Size == 8}
	switch {
	case in.Src.IsImmediate() && isRM(in.Dst):
		if err := checkImm(in.Src.imm.Value, in.Size); err != nil {
			return nil, err
		}
		op := byte(X86_OP_GROUP3_RM)
		if in.Size == 1 {
			op = X86_OP_GROUP3_RM8
		}
		f.opcode(op)
		f.digit = X86_REG_TEST
		f.rm = in.Dst
		f.immWidth = immWidthFor(in.Size)
		f.imm = in.Src.imm.Value
	case in.Src.IsRegister() && isRM(in.Dst), in.Src.IsAddress() && in.Dst.IsRegister():
		// test is symmetric: the memory side always goes in r/m
		reg, rm := in.Src, in.Dst
		if in.Src.IsAddress() {
			reg, rm = in.Dst, in.Src
		}
		op := byte(X86_OP_TEST_RM_R)
		if in.Size == 1 {
			op = X86_OP_TEST_RM8_R8
		}
		f.opcode(op)
		f.reg = reg.reg
		f.rm = rm
	default:
		return nil, unsupported(in)
	}
	return f.emit(s)
}

func encodeImul(s Sink, in *Inst) (*Relocation, error) {
	if err := sizedGP(in); err != nil {
		return nil, err
	}
	if in.Size == 1 || !in.Dst.IsRegister() {
		return nil, unsupported(in)
	}
	f := modrmForm{size: in.Size, w: in.Size == 8, reg: in.Dst.reg}
	switch {
	case isRM(in.Src):
		f.opcode(X86_PREFIX_0F, X86_OP2_IMUL_R_RM)
		f.rm = in.Src
	case in.Src.IsImmediate():
		if err := checkImm(in.Src.imm.Value, in.Size); err != nil {
			return nil, err
		}
		f.opcode(X86_OP_IMUL_R_RM_IMM)
		f.rm = in.Dst
		f.immWidth = immWidthFor(in.Size)
		f.imm = in.Src.imm.Value
	default:
		return nil, unsupported(in)
	}
	return f.emit(s)
}

func encodeUnary(digit byte) encoderFunc {
	return func(s Sink, in *Inst) (*Relocation, error) {
		if err := sizedGP(in); err != nil {
			return nil, err
		}
		if !isRM(in.Dst) || !in.Src.IsNone() {
			return nil, unsupported(in)
		}
		op := byte(X86_OP_GROUP3_RM)
		if in.Size == 1 {
			op = X86_OP_GROUP3_RM8
		}
		f := modrmForm{size: in.Size, w: in.Size == 8, digit: digit, rm: in.Dst}
		f.opcode(op)
		return f.emit(s)
	}
}

func encodeMov(s Sink, in *Inst) (*Relocation, error) {
	if err := sizedGP(in); err != nil {
		return nil, err
	}
	wide := byte(1)
	if in.Size == 1 {
		wide = 0
	}
	f := modrmForm{size: in.Size, w: in.Size == 8}
	switch {
	case in.Src.IsImmediate() && in.Dst.IsRegister():
		v := in.Src.imm.Value
		if in.Size == 8 {
			// 64-bit register loads always take the full imm64 form
			if err := emitOpReg(s, 8, true, X86_OP_MOV_R_IMM, in.Dst.reg); err != nil {
				return nil, err
			}
			s.Emit64(uint64(v))
			return nil, nil
		}
		if in.Op == MOVABS {
			return nil, unsupported(in)
		}
		if !fitsWidth(v, in.Size) {
			return nil, rangeError(v, in.Size)
		}
		op := byte(X86_OP_MOV_R_IMM)
		if in.Size == 1 {
			op = X86_OP_MOV_R8_IMM8
		}
		if err := emitOpReg(s, in.Size, false, op, in.Dst.reg); err != nil {
			return nil, err
		}
		emitImm(s, v, in.Size)
		return nil, nil
	case in.Op == MOVABS:
		return nil, unsupported(in)
	case in.Src.IsImmediate() && in.Dst.IsAddress():
		if err := checkImm(in.Src.imm.Value, in.Size); err != nil {
			return nil, err
		}
		f.opcode(X86_OP_MOV_RM8_IMM8 + wide)
		f.digit = 0
		f.rm = in.Dst
		f.immWidth = immWidthFor(in.Size)
		f.imm = in.Src.imm.Value
	case in.Src.IsRegister() && isRM(in.Dst):
		f.opcode(X86_OP_MOV_RM8_R8 + wide)
		f.reg = in.Src.reg
		f.rm = in.Dst
	case in.Src.IsAddress() && in.Dst.IsRegister():
		f.opcode(X86_OP_MOV_R8_RM8 + wide)
		f.reg = in.Dst.reg
		f.rm = in.Src
	default:
		return nil, unsupported(in)
	}
	return f.emit(s)
}

func encodeExtend(op8, op16 byte) encoderFunc {
	return func(s Sink, in *Inst) (*Relocation, error) {
		if !in.Dst.IsRegister() || !isRM(in.Src) || in.SrcSize >= in.Size {
			return nil, unsupported(in)
		}
		if err := checkGP(in.Dst, in.Size); err != nil {
			return nil, err
		}
		if err := checkGP(in.Src, in.SrcSize); err != nil {
			return nil, err
		}
		f := modrmForm{size: in.Size, w: in.Size == 8, reg: in.Dst.reg, rm: in.Src}
		switch in.SrcSize {
		case 1:
			f.opcode(X86_PREFIX_0F, op8)
		case 2:
			f.opcode(X86_PREFIX_0F, op16)
		default:
			return nil, unsupported(in)
		}
		return f.emit(s)
	}
}

func encodeMovsxd(s Sink, in *Inst) (*Relocation, error) {
	if !in.Dst.IsRegister() || !isRM(in.Src) {
		return nil, unsupported(in)
	}
	if err := checkGP(in.Dst, 8); err != nil {
		return nil, err
	}
	if err := checkGP(in.Src, 4); err != nil {
		return nil, err
	}
	f := modrmForm{w: true, reg: in.Dst.reg, rm: in.Src}
	f.opcode(X86_OP_MOVSXD)
	return f.emit(s)
}

func encodeLea(s Sink, in *Inst) (*Relocation, error) {
	if !in.Dst.IsRegister() || !in.Src.IsAddress() {
		return nil, unsupported(in)
	}
	if in.Size != 4 && in.Size != 8 {
		return nil, unsupported(in)
	}
	if err := checkGP(in.Dst, in.Size); err != nil {
		return nil, err
	}
	f := modrmForm{w: in.Size == 8, reg: in.Dst.reg, rm: in.Src}
	f.opcode(X86_OP_LEA)
	return f.emit(s)
}

func encodeSetcc(s Sink, in *Inst) (*Relocation, error) {
	if !isRM(in.Dst) {
		return nil, unsupported(in)
	}
	if err := checkGP(in.Dst, 1); err != nil {
		return nil, err
	}
	f := modrmForm{rm: in.Dst}
	f.opcode(X86_PREFIX_0F, X86_OP2_SETO+byte(in.Cond&15))
	return f.emit(s)
}

func encodeCmov(s Sink, in *Inst) (*Relocation, error) {
	if err := sizedGP(in); err != nil {
		return nil, err
	}
	if in.Size == 1 || !in.Dst.IsRegister() || !isRM(in.Src) {
		return nil, unsupported(in)
	}
	f := modrmForm{size: in.Size, w: in.Size == 8, reg: in.Dst.reg, rm: in.Src}
	f.opcode(X86_PREFIX_0F, X86_OP2_CMOVO+byte(in.Cond&15))
	return f.emit(s)
}

func encodeShift(digit byte) encoderFunc {
	return func(s Sink, in *Inst) (*Relocation, error) {
		if err := checkSize(in.Size); err != nil {
			return nil, err
		}
		if err := checkGP(in.Dst, in.Size); err != nil {
			return nil, err
		}
		if !isRM(in.Dst) {
			return nil, unsupported(in)
		}
		f := modrmForm{size: in.Size, w: in.Size == 8, digit: digit, rm: in.Dst}
		switch {
		case in.Src.IsImmediate():
			v := in.Src.imm.Value
			if v < 0 || v > 255 {
				return nil, rangeError(v, 1)
			}
			op := byte(X86_OP_GROUP2_RM_IMM8)
			if in.Size == 1 {
				op = X86_OP_GROUP2_RM8_IMM8
			}
			f.opcode(op)
			f.immWidth = 1
			f.imm = v
		case in.Src.IsRegister() && in.Src.reg == CL:
			op := byte(X86_OP_GROUP2_RM_CL)
			if in.Size == 1 {
				op = X86_OP_GROUP2_RM8_CL
			}
			f.opcode(op)
		default:
			return nil, unsupported(in)
		}
		return f.emit(s)
	}
}

// encodeSSEMove handles movss/movsd in both load and store directions.
func encodeSSEMove(prefix byte) encoderFunc {
	return func(s Sink, in *Inst) (*Relocation, error) {
		if err := checkXMM(in.Dst); err != nil {
			return nil, err
		}
		if err := checkXMM(in.Src); err != nil {
			return nil, err
		}
		f := modrmForm{mandatory: prefix}
		switch {
		case in.Dst.IsRegister() && isRM(in.Src):
			f.opcode(X86_PREFIX_0F, X86_OP2_MOVUPS_LOAD)
			f.reg = in.Dst.reg
			f.rm = in.Src
		case in.Dst.IsAddress() && in.Src.IsRegister():
			f.opcode(X86_PREFIX_0F, X86_OP2_MOVUPS_STORE)
			f.reg = in.Src.reg
			f.rm = in.Dst
		default:
			return nil, unsupported(in)
		}
		return f.emit(s)
	}
}

func encodeSSE(prefix, op byte) encoderFunc {
	return func(s Sink, in *Inst) (*Relocation, error) {
		if !in.Dst.IsRegister() || !isRM(in.Src) {
			return nil, unsupported(in)
		}
		if err := checkXMM(in.Dst); err != nil {
			return nil, err
		}
		if err := checkXMM(in.Src); err != nil {
			return nil, err
		}
		f := modrmForm{mandatory: prefix, reg: in.Dst.reg, rm: in.Src}
		f.opcode(X86_PREFIX_0F, op)
		return f.emit(s)
	}
}

func encodeCvtIntToFloat(prefix byte) encoderFunc {
	return func(s Sink, in *Inst) (*Relocation, error) {
		if !in.Dst.IsRegister() || !isRM(in.Src) || (in.Size != 4 && in.Size != 8) {
			return nil, unsupported(in)
		}
		if err := checkXMM(in.Dst); err != nil {
			return nil, err
		}
		if err := checkGP(in.Src, in.Size); err != nil {
			return nil, err
		}
		f := modrmForm{mandatory: prefix, w: in.Size == 8, reg: in.Dst.reg, rm: in.Src}
		f.opcode(X86_PREFIX_0F, X86_OP2_CVTSI2S)
		return f.emit(s)
	}
}

func encodeCvtFloatToInt(prefix byte) encoderFunc {
	return func(s Sink, in *Inst) (*Relocation, error) {
		if !in.Dst.IsRegister() || !isRM(in.Src) || (in.Size != 4 && in.Size != 8) {
			return nil, unsupported(in)
		}
		if err := checkGP(in.Dst, in.Size); err != nil {
			return nil, err
		}
		if err := checkXMM(in.Src); err != nil {
			return nil, err
		}
		f := modrmForm{mandatory: prefix, w: in.Size == 8, reg: in.Dst.reg, rm: in.Src}
		f.opcode(X86_PREFIX_0F, X86_OP2_CVTTS2SI)
		return f.emit(s)
	}
}

// encodeMovq moves 64 bits between a general purpose register (or memory)
// and an xmm register.
func encodeMovq(s Sink, in *Inst) (*Relocation, error) {
	f := modrmForm{mandatory: X86_PREFIX_66, w: true}
	switch {
	case in.Dst.IsRegister() && in.Dst.reg.IsVector() && isRM(in.Src):
		if err := checkGP(in.Src, 8); err != nil {
			return nil, err
		}
		f.opcode(X86_PREFIX_0F, X86_OP2_MOVQ_TO_XMM)
		f.reg = in.Dst.reg
		f.rm = in.Src
	case in.Src.IsRegister() && in.Src.reg.IsVector() && isRM(in.Dst):
		if err := checkGP(in.Dst, 8); err != nil {
			return nil, err
		}
		f.opcode(X86_PREFIX_0F, X86_OP2_MOVQ_FROM)
		f.reg = in.Src.reg
		f.rm = in.Dst
	default:
		return nil, unsupported(in)
	}
	return f.emit(s)
}

func encodePush(s Sink, in *Inst) (*Relocation, error) {
	switch {
	case in.Dst.IsRegister():
		if err := checkGP(in.Dst, 8); err != nil {
			return nil, err
		}
		return nil, emitOpReg(s, 0, false, X86_OP_PUSH_R, in.Dst.reg)
	case in.Dst.IsImmediate():
		v := in.Dst.imm.Value
		if !FitsInt32(v) {
			return nil, rangeError(v, 4)
		}
		s.Emit8(X86_OP_PUSH_IMM32)
		s.Emit32(uint32(v))
		return nil, nil
	case in.Dst.IsAddress():
		f := modrmForm{digit: X86_REG_PUSH_RM, rm: in.Dst}
		f.opcode(X86_OP_GROUP5_RM)
		return f.emit(s)
	}
	return nil, unsupported(in)
}

func encodePop(s Sink, in *Inst) (*Relocation, error) {
	switch {
	case in.Dst.IsRegister():
		if err := checkGP(in.Dst, 8); err != nil {
			return nil, err
		}
		return nil, emitOpReg(s, 0, false, X86_OP_POP_R, in.Dst.reg)
	case in.Dst.IsAddress():
		f := modrmForm{digit: 0, rm: in.Dst}
		f.opcode(X86_OP_POP_RM)
		return f.emit(s)
	}
	return nil, unsupported(in)
}

// encodeCall emits call rel32 for symbol targets and call *r/m otherwise.
func encodeCall(s Sink, in *Inst) (*Relocation, error) {
	if in.Dst.IsAddress() && in.Dst.addr.IsSymbol() {
		typ := RelocPC32
		if in.PLT {
			typ = RelocPLT32
		}
		s.Emit8(X86_OP_CALL_REL32)
		off := s.Size()
		s.Emit32(0)
		return &Relocation{
			Offset: uint32(off),
			Symbol: in.Dst.addr.Symbol,
			Type:   typ,
			Addend: int64(in.Dst.addr.Disp) - 4,
		}, nil
	}
	if !isRM(in.Dst) {
		return nil, unsupported(in)
	}
	if err := checkGP(in.Dst, 8); err != nil {
		return nil, err
	}
	f := modrmForm{digit: X86_REG_CALL_RM, rm: in.Dst}
	f.opcode(X86_OP_GROUP5_RM)
	return f.emit(s)
}

func encodeSingle(op byte) encoderFunc {
	return func(s Sink, in *Inst) (*Relocation, error) {
		s.Emit8(op)
		return nil, nil
	}
}

// encodeJmp takes a displacement immediate measured from the end of the
// instruction; Size 1 selects the rel8 form.
func encodeJmp(s Sink, in *Inst) (*Relocation, error) {
	switch {
	case in.Dst.IsImmediate():
		v := in.Dst.imm.Value
		if in.Size == 1 {
			if !FitsInt8(v) {
				return nil, rangeError(v, 1)
			}
			s.Emit8(X86_OP_JMP_REL8)
			s.Emit8(uint8(v))
			return nil, nil
		}
		if !FitsInt32(v) {
			return nil, rangeError(v, 4)
		}
		s.Emit8(X86_OP_JMP_REL32)
		s.Emit32(uint32(v))
		return nil, nil
	case isRM(in.Dst):
		if err := checkGP(in.Dst, 8); err != nil {
			return nil, err
		}
		f := modrmForm{digit: X86_REG_JMP_RM, rm: in.Dst}
		f.opcode(X86_OP_GROUP5_RM)
		return f.emit(s)
	}
	return nil, unsupported(in)
}

func encodeJcc(s Sink, in *Inst) (*Relocation, error) {
	if !in.Dst.IsImmediate() {
		return nil, unsupported(in)
	}
	v := in.Dst.imm.Value
	cc := byte(in.Cond & 15)
	if in.Size == 1 {
		if !FitsInt8(v) {
			return nil, rangeError(v, 1)
		}
		s.Emit8(X86_OP_JCC_REL8 + cc)
		s.Emit8(uint8(v))
		return nil, nil
	}
	if !FitsInt32(v) {
		return nil, rangeError(v, 4)
	}
	s.Emit8(X86_PREFIX_0F)
	s.Emit8(X86_OP2_JO + cc)
	s.Emit32(uint32(v))
	return nil, nil
}
