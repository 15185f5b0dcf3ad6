package isel

import (
	"fmt"
	"slices"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/regalloc"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// parallelMove is one copy of a set that must behave as if every source
// were read before any destination is written.
type parallelMove struct {
	t        lir.Type
	dst, src asm.Operand
}

func (m parallelMove) regToReg() bool {
	return m.dst.IsRegister() && m.src.IsRegister()
}

// parallelMove sequentializes moves. Memory destinations go first since
// they only read registers, register to register copies follow in an
// order that never overwrites a pending source, and loads and constants
// land last. A cycle is broken by parking one destination in scratch.
func (s *selector) parallelMove(moves []parallelMove) error {
	var regs, late []parallelMove
	for _, m := range moves {
		switch {
		case m.dst.IsAddress():
			if err := s.move(m.t, m.dst, m.src); err != nil {
				return err
			}
		case m.regToReg():
			if !sameReg(m.dst, m.src) {
				regs = append(regs, m)
			}
		default:
			late = append(late, m)
		}
	}

	for len(regs) > 0 {
		i := slices.IndexFunc(regs, func(m parallelMove) bool {
			return !slices.ContainsFunc(regs, func(o parallelMove) bool { return sameReg(o.src, m.dst) })
		})
		if i >= 0 {
			if err := s.move(regs[i].t, regs[i].dst, regs[i].src); err != nil {
				return err
			}
			regs = slices.Delete(regs, i, i+1)
			continue
		}
		// every destination is still needed: free the first one
		busy := regs[0].dst.Reg()
		full, scratch, t := busy.Sized(8), s.tmp, lir.I64
		if busy.IsVector() {
			full, scratch, t = busy, s.ftmp, lir.F64
		}
		if err := s.move(t, asm.R(scratch), asm.R(full)); err != nil {
			return err
		}
		for j := range regs {
			if sameReg(regs[j].src, regs[0].dst) {
				regs[j].src = asm.R(s.sized(scratch, regs[j].t))
			}
		}
	}

	for _, m := range late {
		if err := s.move(m.t, m.dst, m.src); err != nil {
			return err
		}
	}
	return nil
}

// lowerCall places the arguments in their registers, calls, and copies
// the result out of the return register.
func (s *selector) lowerCall(in *lir.Instr) error {
	var moves []parallelMove
	var addrs []lir.Arg
	var addrRegs []asm.Register
	ints, floats := 0, 0
	for _, a := range in.Args {
		t := lir.I64
		if a.IsValue() {
			t = s.fn.TypeOf(a.Value)
		}
		var reg asm.Register
		if t.IsFloat() {
			if floats >= len(s.cc.FloatArgs) {
				return fmt.Errorf("%w: call to @%s", x64errors.ErrTooManyArguments, in.Callee)
			}
			reg = s.cc.FloatArgs[floats]
			floats++
		} else {
			if ints >= len(s.cc.IntArgs) {
				return fmt.Errorf("%w: call to @%s", x64errors.ErrTooManyArguments, in.Callee)
			}
			reg = s.cc.IntArgs[ints]
			ints++
		}
		if a.IsSymbol() {
			addrs = append(addrs, a)
			addrRegs = append(addrRegs, reg)
			continue
		}
		src, err := s.arg(a, t, s.tmp)
		if err != nil {
			return err
		}
		moves = append(moves, parallelMove{t: t, dst: asm.R(s.sized(reg, t)), src: src})
	}
	if err := s.parallelMove(moves); err != nil {
		return err
	}
	for i, a := range addrs {
		if err := s.emit2(asm.LEA, 8, asm.R(addrRegs[i]), asm.M(asm.SymAddr(s.symbol(a.Symbol)))); err != nil {
			return err
		}
	}

	callee := s.symbol(in.Callee)
	external := s.syms.Get(callee).IsExternal()
	if external {
		// variadic callees read the vector argument count from %al
		if err := s.move(lir.I32, asm.R(asm.EAX), asm.I(int64(floats))); err != nil {
			return err
		}
	}
	if err := s.a.Call(callee, external); err != nil {
		return err
	}

	if in.Type == lir.Void || s.alloc.Location(in.Dst).Kind == regalloc.LocNone {
		return nil
	}
	ret := s.cc.IntRet
	if in.Type.IsFloat() {
		ret = s.cc.FloatRet
	}
	d, err := s.dst(in)
	if err != nil {
		return err
	}
	return s.move(in.Type, d, asm.R(s.sized(ret, in.Type)))
}
