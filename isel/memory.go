package isel

import (
	"fmt"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// address builds the memory operand of a load or store. A base that is not
// in a register is loaded into the first scratch and an index into the
// second; constant indices fold into the displacement.
func (s *selector) address(in *lir.Instr) (asm.Address, error) {
	base := in.Args[0]
	var index *lir.Arg
	if in.Op == lir.OpLoadIdx || in.Op == lir.OpStoreIdx {
		index = &in.Args[1]
	}
	disp := int64(in.Offset)
	var idxReg asm.Register
	if index != nil {
		switch index.Kind {
		case lir.ArgConst:
			disp += index.Const * int64(in.Scale)
			index = nil
		case lir.ArgValue:
			op, err := s.loc(index.Value, lir.I64)
			if err != nil {
				return asm.Address{}, err
			}
			if op, err = s.inReg(lir.I64, op, s.tmp2); err != nil {
				return asm.Address{}, err
			}
			idxReg = op.Reg()
		default:
			return asm.Address{}, fmt.Errorf("%w: index %s", x64errors.ErrUnsupportedOperands, index)
		}
	}
	if !asm.FitsInt32(disp) {
		return asm.Address{}, fmt.Errorf("%w: displacement %d", x64errors.ErrEncodingRange, disp)
	}

	var baseReg asm.Register
	switch base.Kind {
	case lir.ArgSymbol:
		sym := asm.SymAddr(s.symbol(base.Symbol)).Offset(int32(disp))
		if index == nil {
			return sym, nil
		}
		if err := s.emit2(asm.LEA, 8, asm.R(s.tmp), asm.M(sym)); err != nil {
			return asm.Address{}, err
		}
		return asm.MemIndex(s.tmp, idxReg, in.Scale, 0), nil
	case lir.ArgConst:
		if err := s.emit2(asm.MOV, 8, asm.R(s.tmp), asm.I(base.Const)); err != nil {
			return asm.Address{}, err
		}
		baseReg = s.tmp
	case lir.ArgValue:
		op, err := s.loc(base.Value, lir.I64)
		if err != nil {
			return asm.Address{}, err
		}
		if op, err = s.inReg(lir.I64, op, s.tmp); err != nil {
			return asm.Address{}, err
		}
		baseReg = op.Reg()
	default:
		return asm.Address{}, fmt.Errorf("%w: base %s", x64errors.ErrUnsupportedOperands, base)
	}
	if index == nil {
		return asm.Mem(baseReg, int32(disp)), nil
	}
	return asm.MemIndex(baseReg, idxReg, in.Scale, int32(disp)), nil
}

func usesScratch(addr asm.Address, regs ...asm.Register) bool {
	for _, r := range regs {
		if addr.Base.IsValid() && addr.Base.SameReg(r) || addr.Index.IsValid() && addr.Index.SameReg(r) {
			return true
		}
	}
	return false
}

func (s *selector) lowerLoad(in *lir.Instr) error {
	addr, err := s.address(in)
	if err != nil {
		return err
	}
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	t := in.Type
	if d.IsRegister() {
		return s.move(t, d, asm.M(addr))
	}
	// the loaded value passes through a scratch the address may be using;
	// the load reads the address before overwriting it
	r := asm.R(s.sized(s.tmp, t))
	if t.IsFloat() {
		r = asm.R(s.ftmp)
	}
	if err := s.move(t, r, asm.M(addr)); err != nil {
		return err
	}
	return s.move(t, d, r)
}

func (s *selector) lowerStore(in *lir.Instr) error {
	addr, err := s.address(in)
	if err != nil {
		return err
	}
	t := in.Type
	size := t.Size()
	val := in.Args[len(in.Args)-1]

	direct := false
	switch val.Kind {
	case lir.ArgValue:
		l := s.alloc.Location(val.Value)
		direct = l.IsReg()
	case lir.ArgConst:
		c := val.Const
		if t == lir.F32 {
			c = int64(int32(uint32(c)))
		} else if !t.IsFloat() {
			c = truncate(c, t)
		}
		direct = fitsImm(c, size)
	}
	if !direct && usesScratch(addr, s.tmp, s.tmp2) {
		if err := s.emit2(asm.LEA, 8, asm.R(s.tmp), asm.M(addr)); err != nil {
			return err
		}
		addr = asm.Mem(s.tmp, 0)
	}

	switch {
	case val.IsConst() && t.IsFloat():
		bt := floatBitsType(t)
		bits := val.Const
		if t == lir.F32 {
			bits = int64(int32(uint32(bits)))
		}
		return s.moveVia(bt, asm.M(addr), asm.I(bits), s.tmp2)
	case val.IsSymbol():
		r := asm.R(s.tmp2)
		if err := s.emit2(asm.LEA, 8, r, asm.M(asm.SymAddr(s.symbol(val.Symbol)))); err != nil {
			return err
		}
		return s.move(t, asm.M(addr), asm.R(s.sized(s.tmp2, t)))
	}
	src, err := s.arg(val, t, s.tmp2)
	if err != nil {
		return err
	}
	return s.moveVia(t, asm.M(addr), src, s.tmp2)
}

func (s *selector) lowerAddr(in *lir.Instr) error {
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	sym := asm.SymAddr(s.symbol(in.Args[0].Symbol)).Offset(in.Offset)
	r := d
	if !d.IsRegister() {
		r = asm.R(s.tmp)
	}
	if err := s.emit2(asm.LEA, 8, r, asm.M(sym)); err != nil {
		return err
	}
	return s.move(lir.I64, d, r)
}
