package isel

import (
	"fmt"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// zeroExtend returns the zero-extension of the low bytes of c kept by t.
func zeroExtend(c int64, t lir.Type) int64 {
	switch t.Size() {
	case 1:
		return int64(uint8(c))
	case 2:
		return int64(uint16(c))
	case 4:
		return int64(uint32(c))
	}
	return c
}

// lowerExtend handles sext, zext and trunc between integer widths.
func (s *selector) lowerExtend(in *lir.Instr) error {
	to, from := in.Type, in.From
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	if in.Op == lir.OpTrunc {
		src, err := s.arg(in.Args[0], to, s.tmp)
		if err != nil {
			return err
		}
		return s.move(to, d, src)
	}

	src, err := s.arg(in.Args[0], from, s.tmp)
	if err != nil {
		return err
	}
	if src.IsImmediate() {
		c := src.Value()
		if in.Op == lir.OpZext {
			c = zeroExtend(c, from)
		}
		return s.move(to, d, asm.I(truncate(c, to)))
	}
	if from.Size() >= to.Size() {
		if src.IsRegister() {
			src = asm.R(s.sized(src.Reg(), to))
		}
		return s.move(to, d, src)
	}

	r := d
	if !d.IsRegister() {
		r = asm.R(s.sized(s.tmp, to))
	}
	if err := s.extendInto(in.Op == lir.OpSext, to.Size(), from.Size(), r.Reg(), src); err != nil {
		return err
	}
	return s.move(to, d, r)
}

// extendInto widens src of fromSize bytes into r viewed at toSize bytes.
func (s *selector) extendInto(signed bool, toSize, fromSize uint8, r asm.Register, src asm.Operand) error {
	dst := asm.R(r.Sized(toSize))
	switch {
	case fromSize <= 2 && signed:
		return s.emit(asm.Inst{Op: asm.MOVSX, Size: toSize, SrcSize: fromSize, Dst: dst, Src: src})
	case fromSize <= 2:
		return s.emit(asm.Inst{Op: asm.MOVZX, Size: toSize, SrcSize: fromSize, Dst: dst, Src: src})
	case signed:
		return s.emit(asm.Inst{Op: asm.MOVSXD, Size: 8, SrcSize: 4, Dst: dst, Src: src})
	}
	// writing a 32-bit register clears the upper half
	return s.emit2(asm.MOV, 4, asm.R(r.Sized(4)), src)
}

func (s *selector) lowerIntToFloat(in *lir.Instr) error {
	to, from := in.Type, in.From
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	src, err := s.arg(in.Args[0], from, s.tmp)
	if err != nil {
		return err
	}
	cvt := asm.CVTSI2SD
	if to == lir.F32 {
		cvt = asm.CVTSI2SS
	}
	r := d
	if !d.IsRegister() {
		r = asm.R(s.ftmp)
	}

	if in.Op == lir.OpUtoF && from.Size() == 8 {
		if err := s.unsignedToFloat(to, r, src); err != nil {
			return err
		}
		return s.move(to, d, r)
	}

	signed := in.Op == lir.OpItoF
	width := from.Size()
	switch {
	case !signed:
		// every unsigned value below 2^32 is a non-negative int64
		w := asm.R(s.tmp)
		if src.IsImmediate() {
			err = s.emit2(asm.MOV, 8, w, asm.I(zeroExtend(src.Value(), from)))
		} else {
			err = s.extendInto(false, 8, width, s.tmp, src)
		}
		if err != nil {
			return err
		}
		src, width = w, 8
	case src.IsImmediate():
		size := max(width, 4)
		w := asm.R(s.tmp.Sized(size))
		if err := s.emit2(asm.MOV, size, w, asm.I(truncate(src.Value(), from))); err != nil {
			return err
		}
		src, width = w, size
	case width < 4:
		w := asm.R(s.tmp.Sized(4))
		if err := s.extendInto(true, 4, width, s.tmp, src); err != nil {
			return err
		}
		src, width = w, 4
	}
	if err := s.emit2(cvt, width, r, src); err != nil {
		return err
	}
	return s.move(to, d, r)
}

// unsignedToFloat converts a 64-bit unsigned integer. Values with the top
// bit set are halved, keeping the low bit so rounding is unchanged, then
// converted and doubled.
func (s *selector) unsignedToFloat(to lir.Type, r, src asm.Operand) error {
	cvt, add := asm.CVTSI2SD, asm.ADDSD
	if to == lir.F32 {
		cvt, add = asm.CVTSI2SS, asm.ADDSS
	}
	x := src
	if !x.IsRegister() || sameReg(x, asm.R(s.tmp)) {
		x = asm.R(s.tmp2)
		if err := s.emit2(asm.MOV, 8, x, src); err != nil {
			return err
		}
	}
	slow, done := s.a.NewLabel(), s.a.NewLabel()
	if err := s.emit2(asm.TEST, 8, x, x); err != nil {
		return err
	}
	if err := s.a.Jcc(asm.CondS, slow); err != nil {
		return err
	}
	if err := s.emit2(cvt, 8, r, x); err != nil {
		return err
	}
	if err := s.a.Jmp(done); err != nil {
		return err
	}
	if err := s.a.Bind(slow); err != nil {
		return err
	}
	half, low := asm.R(s.tmp), asm.R(s.tmp2)
	steps := []asm.Inst{
		asm.Ins(asm.MOV, 8, half, x),
		asm.Ins(asm.SHR, 8, half, asm.I(1)),
		asm.Ins(asm.MOV, 8, low, x),
		asm.Ins(asm.AND, 8, low, asm.I(1)),
		asm.Ins(asm.OR, 8, half, low),
		asm.Ins(cvt, 8, r, half),
		asm.Ins(add, 0, r, r),
	}
	for _, step := range steps {
		if step.Op == asm.MOV && step.Dst.Equal(step.Src) {
			continue
		}
		if err := s.emit(step); err != nil {
			return err
		}
	}
	return s.a.Bind(done)
}

func (s *selector) lowerFloatToInt(in *lir.Instr) error {
	to, from := in.Type, in.From
	if !from.IsFloat() || !to.IsInt() {
		return fmt.Errorf("%w: ftoi from %s to %s", x64errors.ErrUnsupportedOperands, from, to)
	}
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	src, err := s.floatArg(in.Args[0], from)
	if err != nil {
		return err
	}
	cvt := asm.CVTTSD2SI
	if from == lir.F32 {
		cvt = asm.CVTTSS2SI
	}
	size := max(to.Size(), 4)
	r := d
	if !d.IsRegister() {
		r = asm.R(s.tmp)
	}
	if err := s.emit2(cvt, size, asm.R(r.Reg().Sized(size)), src); err != nil {
		return err
	}
	return s.move(to, d, asm.R(r.Reg().Sized(to.Size())))
}

func (s *selector) lowerFloatConvert(in *lir.Instr) error {
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	src, err := s.floatArg(in.Args[0], in.From)
	if err != nil {
		return err
	}
	cvt := asm.CVTSS2SD
	if in.Op == lir.OpFtrunc {
		cvt = asm.CVTSD2SS
	}
	r := d
	if !d.IsRegister() {
		r = asm.R(s.ftmp)
	}
	if err := s.emit2(cvt, 0, r, src); err != nil {
		return err
	}
	return s.move(in.Type, d, r)
}
