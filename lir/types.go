// Package lir is the low-level IR handed to the backend by a front end:
// functions of basic blocks over typed virtual registers, already in
// three-address form with phis eliminated.
package lir

import (
	"fmt"
	"strconv"

	"github.com/colorfulnotion/lirx64/asm"
)

type Type uint8

const (
	Void Type = iota
	I8
	I16
	I32
	I64
	F32
	F64
)

var typeNames = [...]string{"void", "i8", "i16", "i32", "i64", "f32", "f64"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Size in bytes; 0 for void.
func (t Type) Size() uint8 {
	switch t {
	case I8:
		return 1
	case I16:
		return 2
	case I32, F32:
		return 4
	case I64, F64:
		return 8
	}
	return 0
}

func (t Type) IsFloat() bool { return t == F32 || t == F64 }
func (t Type) IsInt() bool   { return t >= I8 && t <= I64 }

// Class is the register file values of type t live in.
func (t Type) Class() asm.RegClass {
	if t.IsFloat() {
		return asm.Vector
	}
	return asm.GP
}

func ParseType(s string) (Type, bool) {
	for i, n := range typeNames {
		if n == s {
			return Type(i), true
		}
	}
	return Void, false
}

// Value is a virtual register. Value 0 is "no value".
type Value uint32

func (v Value) String() string { return "%" + strconv.FormatUint(uint64(v), 10) }

type BlockID uint32

func (b BlockID) String() string { return "b" + strconv.FormatUint(uint64(b), 10) }

type Cond uint8

const (
	Eq Cond = iota
	Ne
	Lt
	Le
	Gt
	Ge
	Ult
	Ule
	Ugt
	Uge
	Ovf // signed overflow of the comparison subtraction
	NoOvf
)

var condNames = [...]string{"eq", "ne", "lt", "le", "gt", "ge", "ult", "ule", "ugt", "uge", "o", "no"}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("cond(%d)", uint8(c))
}

func ParseCond(s string) (Cond, bool) {
	for i, n := range condNames {
		if n == s {
			return Cond(i), true
		}
	}
	return 0, false
}

// X86 maps c to the condition code that tests it after cmp (integers) or
// ucomis (floats). ucomis sets the flags like an unsigned compare.
func (c Cond) X86(float bool) asm.Cond {
	switch c {
	case Eq:
		return asm.CondE
	case Ne:
		return asm.CondNE
	case Lt:
		if float {
			return asm.CondB
		}
		return asm.CondL
	case Le:
		if float {
			return asm.CondBE
		}
		return asm.CondLE
	case Gt:
		if float {
			return asm.CondA
		}
		return asm.CondG
	case Ge:
		if float {
			return asm.CondAE
		}
		return asm.CondGE
	case Ult:
		return asm.CondB
	case Ule:
		return asm.CondBE
	case Ugt:
		return asm.CondA
	case Uge:
		return asm.CondAE
	case Ovf:
		return asm.CondO
	case NoOvf:
		return asm.CondNO
	}
	return asm.CondE
}

type Op uint8

const (
	OpInvalid Op = iota
	OpConst
	OpCopy
	OpAdd
	OpSub
	OpMul
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpSar
	OpNeg
	OpNot
	OpLoad
	OpStore
	OpLoadIdx
	OpStoreIdx
	OpSext
	OpZext
	OpTrunc
	OpItoF
	OpUtoF
	OpFtoI
	OpFext
	OpFtrunc
	OpSetcc
	OpSelect
	OpAddr
	OpCall
	OpRet
	OpJmp
	OpBr
)

var opNames = [...]string{
	OpInvalid: "invalid", OpConst: "const", OpCopy: "copy", OpAdd: "add", OpSub: "sub", OpMul: "mul",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpShl: "shl", OpShr: "shr", OpSar: "sar",
	OpNeg: "neg", OpNot: "not", OpLoad: "load", OpStore: "store", OpLoadIdx: "loadidx",
	OpStoreIdx: "storeidx", OpSext: "sext", OpZext: "zext", OpTrunc: "trunc", OpItoF: "itof",
	OpUtoF: "utof", OpFtoI: "ftoi", OpFext: "fext", OpFtrunc: "ftrunc", OpSetcc: "setcc",
	OpSelect: "select", OpAddr: "addr", OpCall: "call", OpRet: "ret", OpJmp: "jmp", OpBr: "br",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

func ParseOp(s string) (Op, bool) {
	for i, n := range opNames {
		if n == s && i != int(OpInvalid) {
			return Op(i), true
		}
	}
	return OpInvalid, false
}

func (o Op) IsTerminator() bool {
	return o == OpRet || o == OpJmp || o == OpBr
}

// IsConversion reports ops whose source type is carried in Instr.From.
func (o Op) IsConversion() bool {
	return o >= OpSext && o <= OpFtrunc
}

// IsCompare reports ops carrying a Cond.
func (o Op) IsCompare() bool {
	return o == OpSetcc || o == OpSelect || o == OpBr
}

// IsBinary reports two-operand arithmetic.
func (o Op) IsBinary() bool {
	return o >= OpAdd && o <= OpSar
}

// arity is the fixed number of arguments of o, or -1 when variable.
func (o Op) arity() int {
	switch o {
	case OpConst, OpCopy, OpNeg, OpNot, OpLoad, OpAddr:
		return 1
	case OpSext, OpZext, OpTrunc, OpItoF, OpUtoF, OpFtoI, OpFext, OpFtrunc:
		return 1
	case OpAdd, OpSub, OpMul, OpAnd, OpOr, OpXor, OpShl, OpShr, OpSar:
		return 2
	case OpStore, OpLoadIdx, OpSetcc, OpBr:
		return 2
	case OpStoreIdx:
		return 3
	case OpSelect:
		return 4
	case OpJmp:
		return 0
	}
	return -1
}

type ArgKind uint8

const (
	ArgNone ArgKind = iota
	ArgValue
	ArgConst
	ArgSymbol
)

// Arg is an instruction operand: a virtual register, an integer constant
// or a symbol.
type Arg struct {
	Kind   ArgKind
	Value  Value
	Const  int64
	Symbol string
}

func V(v Value) Arg          { return Arg{Kind: ArgValue, Value: v} }
func C(c int64) Arg          { return Arg{Kind: ArgConst, Const: c} }
func S(name string) Arg      { return Arg{Kind: ArgSymbol, Symbol: name} }
func (a Arg) IsValue() bool  { return a.Kind == ArgValue }
func (a Arg) IsConst() bool  { return a.Kind == ArgConst }
func (a Arg) IsSymbol() bool { return a.Kind == ArgSymbol }

func (a Arg) String() string {
	switch a.Kind {
	case ArgValue:
		return a.Value.String()
	case ArgConst:
		return strconv.FormatInt(a.Const, 10)
	case ArgSymbol:
		return "@" + a.Symbol
	}
	return "_"
}
