package isel

import (
	"fmt"
	"math"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/regalloc"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// sized views r at the width values of type t occupy.
func (s *selector) sized(r asm.Register, t lir.Type) asm.Register {
	if t.IsFloat() {
		return r
	}
	return r.Sized(t.Size())
}

// truncate sign-extends the low bytes of c that a value of type t keeps.
func truncate(c int64, t lir.Type) int64 {
	switch t.Size() {
	case 1:
		return int64(int8(c))
	case 2:
		return int64(int16(c))
	case 4:
		return int64(int32(c))
	}
	return c
}

// loc is the home of v viewed at type t.
func (s *selector) loc(v lir.Value, t lir.Type) (asm.Operand, error) {
	l := s.alloc.Location(v)
	switch l.Kind {
	case regalloc.LocReg:
		return asm.R(s.sized(l.Reg, t)), nil
	case regalloc.LocStack:
		return asm.M(asm.Mem(asm.RBP, s.alloc.SlotOffset(l.Slot))), nil
	}
	return asm.Operand{}, fmt.Errorf("%w: %s has no location", x64errors.ErrUnsupportedOperands, v)
}

// dst is the home of the instruction result.
func (s *selector) dst(in *lir.Instr) (asm.Operand, error) {
	return s.loc(in.Dst, in.ResultType())
}

// arg resolves an operand. Symbols are materialized with lea into via.
// Float constants stay immediates holding the raw bits; only moves accept
// them.
func (s *selector) arg(a lir.Arg, t lir.Type, via asm.Register) (asm.Operand, error) {
	switch a.Kind {
	case lir.ArgValue:
		return s.loc(a.Value, t)
	case lir.ArgConst:
		if t.IsFloat() {
			return asm.I(a.Const), nil
		}
		return asm.I(truncate(a.Const, t)), nil
	case lir.ArgSymbol:
		r := via.Sized(8)
		addr := asm.SymAddr(s.symbol(a.Symbol))
		if err := s.emit2(asm.LEA, 8, asm.R(r), asm.M(addr)); err != nil {
			return asm.Operand{}, err
		}
		return asm.R(s.sized(r, t)), nil
	}
	return asm.Operand{}, fmt.Errorf("%w: empty argument", x64errors.ErrUnsupportedOperands)
}

// floatArg resolves a float operand that must be a register or memory.
func (s *selector) floatArg(a lir.Arg, t lir.Type) (asm.Operand, error) {
	if !a.IsValue() {
		return asm.Operand{}, fmt.Errorf("%w: float operand %s must be a value", x64errors.ErrUnsupportedOperands, a)
	}
	return s.loc(a.Value, t)
}

func sameReg(a, b asm.Operand) bool {
	return a.IsRegister() && b.IsRegister() && a.Reg().SameReg(b.Reg())
}

func fitsImm(v int64, size uint8) bool {
	if size == 8 {
		return asm.FitsInt32(v)
	}
	return true
}

func sseMove(t lir.Type) asm.Op {
	if t == lir.F32 {
		return asm.MOVSS
	}
	return asm.MOVSD
}

// move copies src to dst through the first scratch register.
func (s *selector) move(t lir.Type, dst, src asm.Operand) error {
	return s.moveVia(t, dst, src, s.tmp)
}

// moveVia copies src to dst. Self moves are dropped, zero immediates use
// xor unless flags are live, and memory to memory or wide immediate to
// memory moves go through tmp.
func (s *selector) moveVia(t lir.Type, dst, src asm.Operand, tmp asm.Register) error {
	if dst.Equal(src) {
		return nil
	}
	if t.IsFloat() {
		return s.moveFloat(t, dst, src, tmp)
	}
	size := t.Size()
	switch {
	case src.IsImmediate() && dst.IsRegister():
		if src.Value() == 0 && !s.flagsLive {
			r := asm.R(dst.Reg().Sized(4))
			return s.emit2(asm.XOR, 4, r, r)
		}
		return s.emit2(asm.MOV, size, dst, src)
	case src.IsImmediate():
		if fitsImm(src.Value(), size) {
			return s.emit2(asm.MOV, size, dst, src)
		}
		if err := s.emit2(asm.MOV, 8, asm.R(tmp.Sized(8)), src); err != nil {
			return err
		}
		return s.emit2(asm.MOV, 8, dst, asm.R(tmp.Sized(8)))
	case src.IsAddress() && dst.IsAddress():
		r := asm.R(tmp.Sized(size))
		if err := s.emit2(asm.MOV, size, r, src); err != nil {
			return err
		}
		return s.emit2(asm.MOV, size, dst, r)
	}
	return s.emit2(asm.MOV, size, dst, src)
}

// moveFloat moves scalar floats. Immediates carry raw bits and are staged
// through tmp.
func (s *selector) moveFloat(t lir.Type, dst, src asm.Operand, tmp asm.Register) error {
	op := sseMove(t)
	switch {
	case src.IsImmediate():
		if src.Value() == 0 && dst.IsRegister() {
			return s.emit2(asm.XORPS, 0, dst, dst)
		}
		bits := src.Value()
		if t == lir.F32 {
			bits = int64(uint32(bits))
		}
		if dst.IsAddress() {
			return s.moveVia(floatBitsType(t), dst, asm.I(bits), tmp)
		}
		if t == lir.F32 {
			if err := s.emit2(asm.MOV, 4, asm.R(tmp.Sized(4)), asm.I(int64(int32(bits)))); err != nil {
				return err
			}
		} else if err := s.emit2(asm.MOV, 8, asm.R(tmp.Sized(8)), asm.I(bits)); err != nil {
			return err
		}
		return s.emit2(asm.MOVQ, 8, dst, asm.R(tmp.Sized(8)))
	case src.IsAddress() && dst.IsAddress():
		if err := s.emit2(op, 0, asm.R(s.ftmp), src); err != nil {
			return err
		}
		return s.emit2(op, 0, dst, asm.R(s.ftmp))
	}
	return s.emit2(op, 0, dst, src)
}

// floatBitsType is the integer type with the width of float type t.
func floatBitsType(t lir.Type) lir.Type {
	if t == lir.F32 {
		return lir.I32
	}
	return lir.I64
}

// FloatBits returns the constant bits of x at float type t.
func FloatBits(t lir.Type, x float64) int64 {
	if t == lir.F32 {
		return int64(math.Float32bits(float32(x)))
	}
	return int64(math.Float64bits(x))
}

// inReg returns op when it is a register, otherwise loads it into tmp.
func (s *selector) inReg(t lir.Type, op asm.Operand, tmp asm.Register) (asm.Operand, error) {
	if op.IsRegister() {
		return op, nil
	}
	r := asm.R(s.sized(tmp, t))
	return r, s.moveVia(t, r, op, s.tmp2)
}
