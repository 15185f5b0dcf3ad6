package isel

import (
	"fmt"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/x64errors"
)

var binaryOps = map[lir.Op]asm.Op{
	lir.OpAdd: asm.ADD,
	lir.OpSub: asm.SUB,
	lir.OpMul: asm.IMUL,
	lir.OpAnd: asm.AND,
	lir.OpOr:  asm.OR,
	lir.OpXor: asm.XOR,
}

var floatOps = map[lir.Op][2]asm.Op{
	lir.OpAdd: {asm.ADDSS, asm.ADDSD},
	lir.OpSub: {asm.SUBSS, asm.SUBSD},
	lir.OpMul: {asm.MULSS, asm.MULSD},
}

var shiftOps = map[lir.Op]asm.Op{
	lir.OpShl: asm.SHL,
	lir.OpShr: asm.SHR,
	lir.OpSar: asm.SAR,
}

func commutative(op lir.Op) bool {
	return op != lir.OpSub
}

func (s *selector) lowerConst(in *lir.Instr) error {
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	src, err := s.arg(in.Args[0], in.Type, s.tmp)
	if err != nil {
		return err
	}
	return s.move(in.Type, d, src)
}

func (s *selector) lowerCopy(in *lir.Instr) error {
	return s.lowerConst(in)
}

// lowerBinary lowers two-operand integer arithmetic onto the destructive
// two-address forms.
func (s *selector) lowerBinary(in *lir.Instr) error {
	op := binaryOps[in.Op]
	t := in.Type
	size := t.Size()
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	a, err := s.arg(in.Args[0], t, s.tmp)
	if err != nil {
		return err
	}
	b, err := s.arg(in.Args[1], t, s.tmp2)
	if err != nil {
		return err
	}
	if op == asm.IMUL && size == 1 {
		return s.lowerByteMul(d, a, b)
	}

	if !d.IsRegister() {
		// in place when the destination slot is also the first operand
		if d.Equal(a) && op != asm.IMUL && (b.IsRegister() || (b.IsImmediate() && fitsImm(b.Value(), size))) {
			return s.emit2(op, size, d, b)
		}
		r := asm.R(s.tmp.Sized(size))
		if b.Equal(r) {
			// b was materialized in tmp; keep it clear of the accumulator
			r = asm.R(s.tmp2.Sized(size))
		}
		if err := s.binaryInto(op, size, r, a, b, in.Op); err != nil {
			return err
		}
		return s.move(t, d, r)
	}
	return s.binaryInto(op, size, d, a, b, in.Op)
}

// binaryInto computes a op b into register d.
func (s *selector) binaryInto(op asm.Op, size uint8, d, a, b asm.Operand, lop lir.Op) error {
	t := intType(size)
	if sameReg(d, b) && !sameReg(d, a) {
		if commutative(lop) {
			a, b = b, a
		} else {
			// d = a - d  ==>  d = -d + a
			if err := s.emit1(asm.NEG, size, d); err != nil {
				return err
			}
			return s.applyOperand(asm.ADD, size, d, a)
		}
	}
	if err := s.move(t, d, a); err != nil {
		return err
	}
	return s.applyOperand(op, size, d, b)
}

// applyOperand emits d = d op b, staging immediates that do not fit the
// sign-extended imm32 field.
func (s *selector) applyOperand(op asm.Op, size uint8, d, b asm.Operand) error {
	if b.IsImmediate() && !fitsImm(b.Value(), size) {
		tmp := s.tmp
		if sameReg(d, asm.R(tmp)) {
			tmp = s.tmp2
		}
		r := asm.R(tmp.Sized(8))
		if err := s.emit2(asm.MOV, 8, r, b); err != nil {
			return err
		}
		b = r
	}
	return s.emit2(op, size, d, b)
}

// lowerByteMul multiplies at 32 bits; the low byte of the product only
// depends on the low bytes of the factors.
func (s *selector) lowerByteMul(d, a, b asm.Operand) error {
	r := d
	if !d.IsRegister() {
		r = asm.R(s.tmp.Sized(1))
	}
	wide := func(op asm.Operand) (asm.Operand, error) {
		switch {
		case op.IsRegister():
			return asm.R(op.Reg().Sized(4)), nil
		case op.IsAddress():
			w := asm.R(s.tmp2.Sized(4))
			return w, s.emit(asm.Inst{Op: asm.MOVZX, Size: 4, SrcSize: 1, Dst: w, Src: op})
		}
		return op, nil
	}
	if sameReg(r, b) {
		a, b = b, a
	}
	if err := s.move(lir.I8, r, a); err != nil {
		return err
	}
	wb, err := wide(b)
	if err != nil {
		return err
	}
	if err := s.emit2(asm.IMUL, 4, asm.R(r.Reg().Sized(4)), wb); err != nil {
		return err
	}
	return s.move(lir.I8, d, r)
}

func intType(size uint8) lir.Type {
	switch size {
	case 1:
		return lir.I8
	case 2:
		return lir.I16
	case 4:
		return lir.I32
	}
	return lir.I64
}

func (s *selector) lowerFloatBinary(in *lir.Instr) error {
	ops, ok := floatOps[in.Op]
	if !ok {
		return fmt.Errorf("%w: %s on %s", x64errors.ErrUnsupportedOperands, in.Op, in.Type)
	}
	op := ops[1]
	if in.Type == lir.F32 {
		op = ops[0]
	}
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	a, err := s.floatArg(in.Args[0], in.Type)
	if err != nil {
		return err
	}
	b, err := s.floatArg(in.Args[1], in.Type)
	if err != nil {
		return err
	}
	r := d
	if !d.IsRegister() {
		r = asm.R(s.ftmp)
	}
	if sameReg(r, b) && !sameReg(r, a) {
		if commutative(in.Op) {
			a, b = b, a
		} else {
			if err := s.move(in.Type, asm.R(s.ftmp), b); err != nil {
				return err
			}
			b = asm.R(s.ftmp)
		}
	}
	if err := s.move(in.Type, r, a); err != nil {
		return err
	}
	if err := s.emit2(op, 0, r, b); err != nil {
		return err
	}
	return s.move(in.Type, d, r)
}

// lowerFloatNeg flips the sign bit through a mask held in the vector
// scratch register.
func (s *selector) lowerFloatNeg(in *lir.Instr) error {
	if in.Op != lir.OpNeg {
		return fmt.Errorf("%w: %s on %s", x64errors.ErrUnsupportedOperands, in.Op, in.Type)
	}
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	a, err := s.floatArg(in.Args[0], in.Type)
	if err != nil {
		return err
	}
	mask := int64(-1 << 63)
	if in.Type == lir.F32 {
		mask = 1 << 31
	}
	if !d.IsRegister() {
		// integer path: both vector operands would need the scratch
		bt := floatBitsType(in.Type)
		size := bt.Size()
		r := asm.R(s.tmp.Sized(size))
		if a.IsRegister() {
			if err := s.emit2(asm.MOVQ, 8, asm.R(s.tmp), a); err != nil {
				return err
			}
		} else if err := s.move(bt, r, a); err != nil {
			return err
		}
		if err := s.emit2(asm.MOV, 8, asm.R(s.tmp2), asm.I(mask)); err != nil {
			return err
		}
		if err := s.emit2(asm.XOR, size, r, asm.R(s.tmp2.Sized(size))); err != nil {
			return err
		}
		return s.move(bt, d, r)
	}
	if err := s.move(in.Type, asm.R(s.ftmp), asm.I(mask)); err != nil {
		return err
	}
	if err := s.move(in.Type, d, a); err != nil {
		return err
	}
	return s.emit2(asm.XORPS, 0, d, asm.R(s.ftmp))
}

func (s *selector) lowerUnary(in *lir.Instr) error {
	op := asm.NEG
	if in.Op == lir.OpNot {
		op = asm.NOT
	}
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	a, err := s.arg(in.Args[0], in.Type, s.tmp)
	if err != nil {
		return err
	}
	size := in.Type.Size()
	if d.Equal(a) || d.IsRegister() || !a.IsAddress() {
		if err := s.move(in.Type, d, a); err != nil {
			return err
		}
		return s.emit1(op, size, d)
	}
	r := asm.R(s.tmp.Sized(size))
	if err := s.move(in.Type, r, a); err != nil {
		return err
	}
	if err := s.emit1(op, size, r); err != nil {
		return err
	}
	return s.move(in.Type, d, r)
}

// lowerShift handles immediate counts directly and variable counts through
// %cl, which liveness keeps free around every variable shift.
func (s *selector) lowerShift(in *lir.Instr) error {
	op := shiftOps[in.Op]
	t := in.Type
	size := t.Size()
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	var count asm.Operand
	if in.Args[1].IsConst() {
		count = asm.I(in.Args[1].Const & int64(size*8-1))
	} else {
		c, err := s.arg(in.Args[1], t, s.tmp2)
		if err != nil {
			return err
		}
		if err := s.move(t, asm.R(s.sized(asm.RCX, t)), c); err != nil {
			return err
		}
		count = asm.R(asm.CL)
	}
	a, err := s.arg(in.Args[0], t, s.tmp)
	if err != nil {
		return err
	}
	if err := s.move(t, d, a); err != nil {
		return err
	}
	return s.emit2(op, size, d, count)
}

// compare sets the flags for a Cond test of a against b.
func (s *selector) compare(t lir.Type, a, b lir.Arg) error {
	if t.IsFloat() {
		x, err := s.floatArg(a, t)
		if err != nil {
			return err
		}
		y, err := s.floatArg(b, t)
		if err != nil {
			return err
		}
		if x, err = s.inReg(t, x, s.ftmp); err != nil {
			return err
		}
		op := asm.UCOMISD
		if t == lir.F32 {
			op = asm.UCOMISS
		}
		if err := s.emit2(op, 0, x, y); err != nil {
			return err
		}
		s.flagsLive = true
		return nil
	}

	size := t.Size()
	x, err := s.arg(a, t, s.tmp)
	if err != nil {
		return err
	}
	y, err := s.arg(b, t, s.tmp2)
	if err != nil {
		return err
	}
	if x.IsImmediate() {
		if x, err = s.inReg(t, x, s.tmp); err != nil {
			return err
		}
	}
	switch {
	case x.IsAddress() && y.IsAddress():
		if y, err = s.inReg(t, y, s.tmp2); err != nil {
			return err
		}
	case y.IsImmediate() && !fitsImm(y.Value(), size):
		r := asm.R(s.tmp2)
		if err := s.emit2(asm.MOV, 8, r, y); err != nil {
			return err
		}
		y = r
	}
	if err := s.emit2(asm.CMP, size, x, y); err != nil {
		return err
	}
	s.flagsLive = true
	return nil
}

func (s *selector) lowerSetcc(in *lir.Instr) error {
	if err := s.compare(in.Type, in.Args[0], in.Args[1]); err != nil {
		return err
	}
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	err = s.emit(asm.Inst{Op: asm.SETCC, Size: 1, Cond: in.Cond.X86(in.Type.IsFloat()), Dst: d})
	s.flagsLive = false
	return err
}

// lowerSelect compares, loads the false value with a flag preserving mov
// and conditionally overwrites it with the true value. Byte selects run
// at 32 bits since cmov has no 8-bit form.
func (s *selector) lowerSelect(in *lir.Instr) error {
	t := in.Type
	if !t.IsInt() {
		return fmt.Errorf("%w: select on %s", x64errors.ErrUnsupportedOperands, t)
	}
	if err := s.compare(t, in.Args[0], in.Args[1]); err != nil {
		return err
	}
	defer func() { s.flagsLive = false }()

	size := t.Size()
	if size == 1 {
		size = 4
	}
	ct := intType(size)
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	r := d
	if !d.IsRegister() {
		r = asm.R(s.tmp)
	}
	r = asm.R(r.Reg().Sized(size))

	tv, err := s.selectArg(in.Args[2], ct)
	if err != nil {
		return err
	}
	fv, err := s.selectArg(in.Args[3], ct)
	if err != nil {
		return err
	}
	cond := in.Cond.X86(false)
	if sameReg(r, tv) && !sameReg(r, fv) {
		tv, fv = fv, tv
		cond = cond.Invert()
	}
	if err := s.move(ct, r, fv); err != nil {
		return err
	}
	if tv.IsImmediate() {
		tr := asm.R(s.tmp2.Sized(size))
		if err := s.move(ct, tr, tv); err != nil {
			return err
		}
		tv = tr
	}
	if err := s.emit(asm.Inst{Op: asm.CMOVCC, Size: size, Cond: cond, Dst: r, Src: tv}); err != nil {
		return err
	}
	if d.IsRegister() {
		return nil
	}
	return s.move(t, d, asm.R(r.Reg().Sized(t.Size())))
}

// selectArg resolves a select operand at width t; symbols are not
// accepted since every scratch may already be in use.
func (s *selector) selectArg(a lir.Arg, t lir.Type) (asm.Operand, error) {
	switch a.Kind {
	case lir.ArgValue:
		return s.loc(a.Value, t)
	case lir.ArgConst:
		return asm.I(truncate(a.Const, t)), nil
	}
	return asm.Operand{}, fmt.Errorf("%w: select operand %s", x64errors.ErrUnsupportedOperands, a)
}
