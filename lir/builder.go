package lir

import (
	"math"

	"github.com/colorfulnotion/lirx64/symbols"
)

// Builder assembles a Func programmatically.
type Builder struct {
	f    *Func
	next Value
	cur  *Block
}

func NewBuilder(name string, linkage symbols.Linkage) *Builder {
	return &Builder{
		f:    &Func{Name: name, Linkage: linkage, Types: make(map[Value]Type)},
		next: 1,
	}
}

// NewValue allocates a fresh virtual register of type t.
func (b *Builder) NewValue(t Type) Value {
	v := b.next
	b.next++
	b.f.Types[v] = t
	return v
}

func (b *Builder) Param(t Type) Value {
	v := b.NewValue(t)
	b.f.Params = append(b.f.Params, v)
	return v
}

// Block creates a block and makes it current.
func (b *Builder) Block() BlockID {
	id := BlockID(len(b.f.Blocks))
	b.cur = &Block{ID: id}
	b.f.Blocks = append(b.f.Blocks, b.cur)
	return id
}

// SetBlock makes an existing block current.
func (b *Builder) SetBlock(id BlockID) {
	b.cur = b.f.Block(id)
}

func (b *Builder) Emit(in *Instr) {
	b.cur.Instrs = append(b.cur.Instrs, in)
}

func (b *Builder) def(in *Instr) Value {
	in.Dst = b.NewValue(in.ResultType())
	b.Emit(in)
	return in.Dst
}

func (b *Builder) Const(t Type, c int64) Value {
	return b.def(&Instr{Op: OpConst, Type: t, Args: []Arg{C(c)}})
}

func (b *Builder) ConstFloat(t Type, x float64) Value {
	bits := int64(math.Float64bits(x))
	if t == F32 {
		bits = int64(math.Float32bits(float32(x)))
	}
	return b.def(&Instr{Op: OpConst, Type: t, Args: []Arg{C(bits)}})
}

func (b *Builder) Binary(op Op, t Type, x, y Arg) Value {
	return b.def(&Instr{Op: op, Type: t, Args: []Arg{x, y}})
}

func (b *Builder) Unary(op Op, t Type, x Arg) Value {
	return b.def(&Instr{Op: op, Type: t, Args: []Arg{x}})
}

func (b *Builder) Convert(op Op, to, from Type, x Arg) Value {
	return b.def(&Instr{Op: op, Type: to, From: from, Args: []Arg{x}})
}

func (b *Builder) Load(t Type, addr Arg, off int32) Value {
	return b.def(&Instr{Op: OpLoad, Type: t, Args: []Arg{addr}, Offset: off})
}

func (b *Builder) Store(t Type, addr Arg, off int32, v Arg) {
	b.Emit(&Instr{Op: OpStore, Type: t, Args: []Arg{addr, v}, Offset: off})
}

// LoadIdx loads from base + index*scale + off.
func (b *Builder) LoadIdx(t Type, base, index Arg, scale uint8, off int32) Value {
	return b.def(&Instr{Op: OpLoadIdx, Type: t, Args: []Arg{base, index}, Scale: scale, Offset: off})
}

func (b *Builder) StoreIdx(t Type, base, index Arg, scale uint8, off int32, v Arg) {
	b.Emit(&Instr{Op: OpStoreIdx, Type: t, Args: []Arg{base, index, v}, Scale: scale, Offset: off})
}

// Addr materializes the address of a global or function.
func (b *Builder) Addr(sym string, off int32) Value {
	return b.def(&Instr{Op: OpAddr, Type: I64, Args: []Arg{S(sym)}, Offset: off})
}

func (b *Builder) Setcc(c Cond, t Type, x, y Arg) Value {
	return b.def(&Instr{Op: OpSetcc, Type: t, Cond: c, Args: []Arg{x, y}})
}

func (b *Builder) Select(c Cond, t Type, x, y, tv, fv Arg) Value {
	return b.def(&Instr{Op: OpSelect, Type: t, Cond: c, Args: []Arg{x, y, tv, fv}})
}

// Call emits a call; t is Void for calls without a result.
func (b *Builder) Call(t Type, callee string, args ...Arg) Value {
	in := &Instr{Op: OpCall, Type: t, Callee: callee, Args: args}
	if t == Void {
		b.Emit(in)
		return 0
	}
	return b.def(in)
}

func (b *Builder) Ret(t Type, args ...Arg) {
	b.Emit(&Instr{Op: OpRet, Type: t, Args: args})
}

func (b *Builder) Jmp(to BlockID) {
	b.Emit(&Instr{Op: OpJmp, Targets: []BlockID{to}})
}

func (b *Builder) Br(c Cond, t Type, x, y Arg, then, els BlockID) {
	b.Emit(&Instr{Op: OpBr, Type: t, Cond: c, Args: []Arg{x, y}, Targets: []BlockID{then, els}})
}

// Func finishes the function and computes its CFG.
func (b *Builder) Func() *Func {
	b.f.ComputeCFG()
	return b.f
}
