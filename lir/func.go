package lir

import (
	"fmt"
	"slices"

	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// Instr is one LIR instruction.
//
//	const    Dst = Args[0]
//	binary   Dst = Args[0] op Args[1]
//	load     Dst = *(Args[0] + Offset)
//	store    *(Args[0] + Offset) = Args[1]
//	loadidx  Dst = *(Args[0] + Args[1]*Scale + Offset)
//	storeidx *(Args[0] + Args[1]*Scale + Offset) = Args[2]
//	setcc    Dst = Args[0] Cond Args[1]            (Dst is i8, Type is the compared type)
//	select   Dst = Args[0] Cond Args[1] ? Args[2] : Args[3]
//	br       if Args[0] Cond Args[1] goto Targets[0] else Targets[1]
//	addr     Dst = &Args[0] + Offset
//	call     Dst = Callee(Args...)
type Instr struct {
	Op      Op
	Type    Type
	From    Type
	Cond    Cond
	Dst     Value
	Args    []Arg
	Scale   uint8
	Offset  int32
	Callee  string
	Targets []BlockID
}

// ResultType is the type of Dst.
func (in *Instr) ResultType() Type {
	if in.Op == OpSetcc {
		return I8
	}
	if in.Op == OpAddr {
		return I64
	}
	return in.Type
}

// Uses returns the virtual registers read by in.
func (in *Instr) Uses() []Value {
	var out []Value
	for _, a := range in.Args {
		if a.IsValue() {
			out = append(out, a.Value)
		}
	}
	return out
}

type Block struct {
	ID     BlockID
	Instrs []*Instr
	Succs  []BlockID
	Preds  []BlockID
}

func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	return b.Instrs[len(b.Instrs)-1]
}

type Func struct {
	Name    string
	Linkage symbols.Linkage
	Params  []Value
	Blocks  []*Block
	Types   map[Value]Type
}

func (f *Func) Block(id BlockID) *Block {
	for _, b := range f.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// NumValues is one more than the largest value id in use.
func (f *Func) NumValues() int {
	n := Value(0)
	for v := range f.Types {
		n = max(n, v)
	}
	return int(n) + 1
}

func (f *Func) TypeOf(v Value) Type {
	return f.Types[v]
}

// ComputeCFG fills Succs from terminators and Preds from Succs.
func (f *Func) ComputeCFG() {
	for _, b := range f.Blocks {
		b.Succs = nil
		b.Preds = nil
	}
	for _, b := range f.Blocks {
		t := b.Terminator()
		if t == nil {
			continue
		}
		for _, s := range t.Targets {
			if !slices.Contains(b.Succs, s) {
				b.Succs = append(b.Succs, s)
			}
		}
	}
	for _, b := range f.Blocks {
		for _, s := range b.Succs {
			if sb := f.Block(s); sb != nil {
				sb.Preds = append(sb.Preds, b.ID)
			}
		}
	}
}

// Preorder returns the blocks reachable from the entry in depth-first
// preorder, visiting successors in order. This is the layout order.
func (f *Func) Preorder() []*Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	seen := make(map[BlockID]bool, len(f.Blocks))
	var out []*Block
	stack := []BlockID{f.Blocks[0].ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		b := f.Block(id)
		if b == nil {
			continue
		}
		out = append(out, b)
		for i := len(b.Succs) - 1; i >= 0; i-- {
			if !seen[b.Succs[i]] {
				stack = append(stack, b.Succs[i])
			}
		}
	}
	return out
}

func malformed(f *Func, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", x64errors.ErrMalformedLIR, f.Name, fmt.Sprintf(format, args...))
}

// Validate checks structural well-formedness: one terminator closing every
// block, known branch targets, typed values and per-op argument counts.
func (f *Func) Validate() error {
	if len(f.Blocks) == 0 {
		return malformed(f, "no blocks")
	}
	ids := make(map[BlockID]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		if ids[b.ID] {
			return malformed(f, "duplicate block %s", b.ID)
		}
		ids[b.ID] = true
	}
	for _, p := range f.Params {
		if f.Types[p] == Void {
			return malformed(f, "parameter %s has no type", p)
		}
	}
	for _, b := range f.Blocks {
		if len(b.Instrs) == 0 {
			return malformed(f, "empty block %s", b.ID)
		}
		for i, in := range b.Instrs {
			last := i == len(b.Instrs)-1
			if in.Op.IsTerminator() != last {
				if last {
					return malformed(f, "block %s does not end in a terminator", b.ID)
				}
				return malformed(f, "terminator %s in the middle of %s", in.Op, b.ID)
			}
			if err := f.validateInstr(in, ids); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *Func) validateInstr(in *Instr, ids map[BlockID]bool) error {
	if n := in.Op.arity(); n >= 0 && len(in.Args) != n {
		return malformed(f, "%s takes %d arguments, got %d", in.Op, n, len(in.Args))
	}
	for _, a := range in.Args {
		switch a.Kind {
		case ArgValue:
			if f.Types[a.Value] == Void {
				return malformed(f, "%s uses untyped value %s", in.Op, a.Value)
			}
		case ArgNone:
			return malformed(f, "%s has an empty argument", in.Op)
		}
	}
	for _, t := range in.Targets {
		if !ids[t] {
			return malformed(f, "%s targets unknown block %s", in.Op, t)
		}
	}
	switch in.Op {
	case OpJmp:
		if len(in.Targets) != 1 {
			return malformed(f, "jmp needs one target")
		}
	case OpBr:
		if len(in.Targets) != 2 {
			return malformed(f, "br needs two targets")
		}
	case OpRet:
		if len(in.Args) > 1 {
			return malformed(f, "ret takes at most one argument")
		}
	case OpCall:
		if in.Callee == "" {
			return malformed(f, "call without callee")
		}
	case OpLoadIdx, OpStoreIdx:
		switch in.Scale {
		case 1, 2, 4, 8:
		default:
			return malformed(f, "%s scale %d", in.Op, in.Scale)
		}
	case OpAddr:
		if !in.Args[0].IsSymbol() {
			return malformed(f, "addr of non-symbol")
		}
	}
	if in.Op.IsConversion() && in.From == Void {
		return malformed(f, "%s without source type", in.Op)
	}
	if in.Dst != 0 {
		if in.Op == OpStore || in.Op == OpStoreIdx || in.Op.IsTerminator() {
			return malformed(f, "%s cannot define a value", in.Op)
		}
		if f.Types[in.Dst] != in.ResultType() {
			return malformed(f, "%s defined as %s, typed %s", in.Dst, in.ResultType(), f.Types[in.Dst])
		}
	}
	return nil
}

// ConstKind tags a global initializer node.
type ConstKind uint8

const (
	ConstInt ConstKind = iota
	ConstString
	ConstAggregate
	ConstPointer
)

// Const is a global initializer: an integer or float scalar, a string, an
// aggregate of constants, or a pointer to a symbol.
type Const struct {
	Kind   ConstKind
	Type   Type
	Int    int64
	Str    string
	Elems  []Const
	Symbol string
	Addend int64
}

type Global struct {
	Name    string
	Linkage symbols.Linkage
	Value   Const
}

type Module struct {
	Funcs   []*Func
	Globals []*Global
	Externs []string
}

func (m *Module) Func(name string) *Func {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (m *Module) Validate() error {
	for _, f := range m.Funcs {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}
