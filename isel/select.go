// Package isel lowers LIR functions to x86-64 machine code once registers
// have been allocated. Blocks are emitted in preorder, one label each.
//
// The selector never allocates registers. Operand combinations the machine
// cannot express directly go through the scratch registers of the calling
// convention, which the allocator never hands out.
package isel

import (
	"fmt"

	"github.com/colorfulnotion/lirx64/abi"
	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/log"
	"github.com/colorfulnotion/lirx64/regalloc"
	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

type selector struct {
	fn    *lir.Func
	alloc *regalloc.Allocation
	cc    *abi.CallConv
	syms  *symbols.Table
	a     *asm.Assembler

	labels map[lir.BlockID]asm.Label
	// next is the block laid out after the current one, if any.
	next    lir.BlockID
	hasNext bool
	// flagsLive is set between a compare and its consumer; moves emitted
	// meanwhile must leave the flags alone.
	flagsLive bool

	tmp  asm.Register // first GP scratch, 64-bit view
	tmp2 asm.Register // second GP scratch
	ftmp asm.Register // vector scratch
}

// Select lowers fn into a fresh buffer.
func Select(fn *lir.Func, alloc *regalloc.Allocation, cc *abi.CallConv, syms *symbols.Table) (*asm.Code, error) {
	return SelectInto(asm.NewBuffer(256), fn, alloc, cc, syms)
}

// SelectInto lowers fn into sink. With an asm.SizeCounter it computes the
// exact size the real emission will have.
func SelectInto(sink asm.Sink, fn *lir.Func, alloc *regalloc.Allocation, cc *abi.CallConv, syms *symbols.Table) (*asm.Code, error) {
	s := newSelector(sink, fn, alloc, cc, syms)
	if log.IsModuleEnabled(log.IselMonitoring) {
		s.a.Trace = s.trace
	}
	return s.run()
}

func newSelector(sink asm.Sink, fn *lir.Func, alloc *regalloc.Allocation, cc *abi.CallConv, syms *symbols.Table) *selector {
	return &selector{
		fn:     fn,
		alloc:  alloc,
		cc:     cc,
		syms:   syms,
		a:      asm.NewAssembler(sink),
		labels: make(map[lir.BlockID]asm.Label),
		tmp:    cc.ScratchGP[0],
		tmp2:   cc.ScratchGP[1],
		ftmp:   cc.ScratchVec,
	}
}

func (s *selector) run() (*asm.Code, error) {
	fn := s.fn
	order := fn.Preorder()
	for _, b := range order {
		s.labels[b.ID] = s.a.NewLabel()
	}
	if err := s.prologue(); err != nil {
		return nil, fmt.Errorf("%s: prologue: %w", fn.Name, err)
	}
	for i, b := range order {
		s.hasNext = i+1 < len(order)
		if s.hasNext {
			s.next = order[i+1].ID
		}
		if err := s.a.Bind(s.labels[b.ID]); err != nil {
			return nil, err
		}
		for _, in := range b.Instrs {
			if err := s.lower(in); err != nil {
				return nil, fmt.Errorf("%s: %s: %s: %w", fn.Name, b.ID, in, err)
			}
		}
	}
	code, err := s.a.Finish()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name, err)
	}
	log.Debug(log.IselMonitoring, "function selected", "func", fn.Name, "bytes", s.a.Offset(), "relocs", len(code.Relocs))
	return code, nil
}

func (s *selector) namer(id symbols.ID) string { return s.syms.Name(id) }

func (s *selector) trace(off, n int, in asm.Inst) {
	var raw string
	if b, ok := s.a.Sink().(*asm.Buffer); ok {
		raw = asm.HexBytes(b.Bytes()[off : off+n])
	}
	log.Trace(log.IselMonitoring, "emit", "func", s.fn.Name, "off", off, "inst", in.Format(s.namer), "bytes", raw)
}

func (s *selector) emit(in asm.Inst) error {
	if s.flagsLive && in.Op.WritesFlags() {
		return fmt.Errorf("%w: %s would clobber live flags", x64errors.ErrUnsupportedOperands, in.Op)
	}
	return s.a.Emit(in)
}

func (s *selector) emit1(op asm.Op, size uint8, dst asm.Operand) error {
	return s.emit(asm.Inst{Op: op, Size: size, Dst: dst})
}

func (s *selector) emit2(op asm.Op, size uint8, dst, src asm.Operand) error {
	return s.emit(asm.Ins(op, size, dst, src))
}

// symbol returns the handle of name, registering it as external when the
// module never declared it.
func (s *selector) symbol(name string) symbols.ID {
	if id, ok := s.syms.Lookup(name); ok {
		return id
	}
	return s.syms.Intern(name, symbols.External)
}

// prologue sets up the frame and moves the parameters from their argument
// registers to their allocated homes.
func (s *selector) prologue() error {
	if err := s.emit1(asm.PUSH, 8, asm.R(asm.RBP)); err != nil {
		return err
	}
	if err := s.emit2(asm.MOV, 8, asm.R(asm.RBP), asm.R(asm.RSP)); err != nil {
		return err
	}
	for _, r := range s.alloc.CalleeSaved() {
		if err := s.emit1(asm.PUSH, 8, asm.R(r)); err != nil {
			return err
		}
	}
	if local := s.alloc.LocalSize(); local > 0 {
		if err := s.emit2(asm.SUB, 8, asm.R(asm.RSP), asm.I(int64(local))); err != nil {
			return err
		}
	}

	var moves []parallelMove
	ints, floats := 0, 0
	for _, p := range s.fn.Params {
		t := s.fn.TypeOf(p)
		var src asm.Register
		if t.IsFloat() {
			if floats >= len(s.cc.FloatArgs) {
				return fmt.Errorf("%w: parameter %s", x64errors.ErrTooManyArguments, p)
			}
			src = s.cc.FloatArgs[floats]
			floats++
		} else {
			if ints >= len(s.cc.IntArgs) {
				return fmt.Errorf("%w: parameter %s", x64errors.ErrTooManyArguments, p)
			}
			src = s.cc.IntArgs[ints]
			ints++
		}
		if s.alloc.Location(p).Kind == regalloc.LocNone {
			continue
		}
		dst, err := s.loc(p, t)
		if err != nil {
			return err
		}
		moves = append(moves, parallelMove{t: t, dst: dst, src: asm.R(s.sized(src, t))})
	}
	return s.parallelMove(moves)
}

// epilogue restores the callee-saved registers and returns.
func (s *selector) epilogue() error {
	saved := s.alloc.CalleeSaved()
	if len(saved) > 0 {
		restore := asm.Mem(asm.RBP, -int32(len(saved)*8))
		if err := s.emit2(asm.LEA, 8, asm.R(asm.RSP), asm.M(restore)); err != nil {
			return err
		}
		for i := len(saved) - 1; i >= 0; i-- {
			if err := s.emit1(asm.POP, 8, asm.R(saved[i])); err != nil {
				return err
			}
		}
	}
	if err := s.emit(asm.Inst{Op: asm.LEAVE}); err != nil {
		return err
	}
	return s.emit(asm.Inst{Op: asm.RET})
}

// lower dispatches one LIR instruction.
func (s *selector) lower(in *lir.Instr) error {
	switch in.Op {
	case lir.OpConst:
		return s.lowerConst(in)
	case lir.OpCopy:
		return s.lowerCopy(in)
	case lir.OpAdd, lir.OpSub, lir.OpMul, lir.OpAnd, lir.OpOr, lir.OpXor:
		if in.Type.IsFloat() {
			return s.lowerFloatBinary(in)
		}
		return s.lowerBinary(in)
	case lir.OpShl, lir.OpShr, lir.OpSar:
		return s.lowerShift(in)
	case lir.OpNeg, lir.OpNot:
		if in.Type.IsFloat() {
			return s.lowerFloatNeg(in)
		}
		return s.lowerUnary(in)
	case lir.OpLoad, lir.OpLoadIdx:
		return s.lowerLoad(in)
	case lir.OpStore, lir.OpStoreIdx:
		return s.lowerStore(in)
	case lir.OpAddr:
		return s.lowerAddr(in)
	case lir.OpSext, lir.OpZext, lir.OpTrunc:
		return s.lowerExtend(in)
	case lir.OpItoF, lir.OpUtoF:
		return s.lowerIntToFloat(in)
	case lir.OpFtoI:
		return s.lowerFloatToInt(in)
	case lir.OpFext, lir.OpFtrunc:
		return s.lowerFloatConvert(in)
	case lir.OpSetcc:
		return s.lowerSetcc(in)
	case lir.OpSelect:
		return s.lowerSelect(in)
	case lir.OpCall:
		return s.lowerCall(in)
	case lir.OpRet:
		return s.lowerRet(in)
	case lir.OpJmp:
		return s.lowerJmp(in)
	case lir.OpBr:
		return s.lowerBr(in)
	}
	return fmt.Errorf("%w: op %s", x64errors.ErrUnsupportedOperands, in.Op)
}

func (s *selector) lowerJmp(in *lir.Instr) error {
	target := in.Targets[0]
	if s.hasNext && target == s.next {
		return nil
	}
	return s.a.Jmp(s.labels[target])
}

// lowerBr branches on a comparison, inverting it when the true target is
// the fallthrough block.
func (s *selector) lowerBr(in *lir.Instr) error {
	if err := s.compare(in.Type, in.Args[0], in.Args[1]); err != nil {
		return err
	}
	s.flagsLive = false
	cond := in.Cond.X86(in.Type.IsFloat())
	then, els := in.Targets[0], in.Targets[1]
	switch {
	case s.hasNext && els == s.next:
		return s.a.Jcc(cond, s.labels[then])
	case s.hasNext && then == s.next:
		return s.a.Jcc(cond.Invert(), s.labels[els])
	}
	if err := s.a.Jcc(cond, s.labels[then]); err != nil {
		return err
	}
	return s.a.Jmp(s.labels[els])
}

func (s *selector) lowerRet(in *lir.Instr) error {
	if len(in.Args) == 1 {
		ret := s.cc.IntRet
		if in.Type.IsFloat() {
			ret = s.cc.FloatRet
		}
		src, err := s.arg(in.Args[0], in.Type, s.tmp)
		if err != nil {
			return err
		}
		if err := s.move(in.Type, asm.R(s.sized(ret, in.Type)), src); err != nil {
			return err
		}
	}
	return s.epilogue()
}
