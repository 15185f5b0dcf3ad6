package asm

import (
	"fmt"
	"math"

	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// Address is a memory operand. A symbol address is RIP-relative and carries
// neither base nor index; Disp is then added to the symbol.
type Address struct {
	Base   Register
	Index  Register
	Scale  uint8
	Disp   int32
	Symbol symbols.ID
}

// Mem is disp(base).
func Mem(base Register, disp int32) Address {
	return Address{Base: base, Disp: disp}
}

// MemIndex is disp(base,index,scale).
func MemIndex(base, index Register, scale uint8, disp int32) Address {
	return Address{Base: base, Index: index, Scale: scale, Disp: disp}
}

// SymAddr is sym(%rip).
func SymAddr(sym symbols.ID) Address {
	return Address{Symbol: sym}
}

func (a Address) IsSymbol() bool { return a.Symbol != symbols.NoSymbol }

// Validate checks the addressing invariants.
func (a Address) Validate() error {
	if a.IsSymbol() {
		if a.Base.IsValid() || a.Index.IsValid() {
			return fmt.Errorf("%w: symbol address with base or index", x64errors.ErrInvalidAddress)
		}
		return nil
	}
	if !a.Base.IsValid() {
		return fmt.Errorf("%w: missing base register", x64errors.ErrInvalidAddress)
	}
	if !a.Base.IsGP() || a.Base.Size() != 8 || a.Base.IsHighByte() {
		return fmt.Errorf("%w: base %s is not a 64-bit register", x64errors.ErrInvalidAddress, a.Base)
	}
	if a.Index.IsValid() {
		if !a.Index.IsGP() || a.Index.Size() != 8 {
			return fmt.Errorf("%w: index %s is not a 64-bit register", x64errors.ErrInvalidAddress, a.Index)
		}
		if a.Index.Code() == RSP.Code() {
			return fmt.Errorf("%w: %%rsp cannot be an index", x64errors.ErrInvalidAddress)
		}
		switch a.Scale {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("%w: scale %d", x64errors.ErrInvalidAddress, a.Scale)
		}
	}
	return nil
}

// Offset returns a copy of a displaced by d bytes.
func (a Address) Offset(d int32) Address {
	a.Disp += d
	return a
}

// Immediate is a constant operand. Width is the number of bytes it will be
// encoded in; 0 leaves it to the instruction.
type Immediate struct {
	Value int64
	Width uint8
}

// Fits accepts both the signed and the unsigned range of the width, so
// 0xFF is a valid 1-byte immediate (it truncates to -1).
func (i Immediate) Fits() bool {
	return fitsWidth(i.Value, i.Width)
}

func fitsWidth(v int64, width uint8) bool {
	switch width {
	case 1:
		return v >= math.MinInt8 && v <= math.MaxUint8
	case 2:
		return v >= math.MinInt16 && v <= math.MaxUint16
	case 4:
		return v >= math.MinInt32 && v <= math.MaxUint32
	}
	return true
}

// FitsInt8 and FitsInt32 test the sign-extended forms.
func FitsInt8(v int64) bool  { return v >= math.MinInt8 && v <= math.MaxInt8 }
func FitsInt32(v int64) bool { return v >= math.MinInt32 && v <= math.MaxInt32 }

type OperandKind uint8

const (
	KindNone OperandKind = iota
	KindRegister
	KindAddress
	KindImmediate
)

func (k OperandKind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindAddress:
		return "address"
	case KindImmediate:
		return "immediate"
	}
	return "none"
}

// Operand is one of Register, Address or Immediate.
type Operand struct {
	kind OperandKind
	reg  Register
	addr Address
	imm  Immediate
}

func R(r Register) Operand    { return Operand{kind: KindRegister, reg: r} }
func M(a Address) Operand     { return Operand{kind: KindAddress, addr: a} }
func I(v int64) Operand       { return Operand{kind: KindImmediate, imm: Immediate{Value: v}} }
func Imm(i Immediate) Operand { return Operand{kind: KindImmediate, imm: i} }

func (o Operand) Kind() OperandKind { return o.kind }
func (o Operand) IsNone() bool      { return o.kind == KindNone }
func (o Operand) IsRegister() bool  { return o.kind == KindRegister }
func (o Operand) IsAddress() bool   { return o.kind == KindAddress }
func (o Operand) IsImmediate() bool { return o.kind == KindImmediate }

func (o Operand) AsRegister() (Register, error) {
	if o.kind != KindRegister {
		return Register{}, fmt.Errorf("%w: %s is not a register", x64errors.ErrCast, o.kind)
	}
	return o.reg, nil
}

func (o Operand) AsAddress() (Address, error) {
	if o.kind != KindAddress {
		return Address{}, fmt.Errorf("%w: %s is not an address", x64errors.ErrCast, o.kind)
	}
	return o.addr, nil
}

func (o Operand) AsImmediate() (Immediate, error) {
	if o.kind != KindImmediate {
		return Immediate{}, fmt.Errorf("%w: %s is not an immediate", x64errors.ErrCast, o.kind)
	}
	return o.imm, nil
}

// Reg, Addr and Value are unchecked projections; they return the zero
// value for the other kinds.
func (o Operand) Reg() Register { return o.reg }
func (o Operand) Addr() Address { return o.addr }
func (o Operand) Value() int64  { return o.imm.Value }

// Equal compares operands structurally; registers compare by physical
// register and width.
func (o Operand) Equal(p Operand) bool {
	if o.kind != p.kind {
		return false
	}
	switch o.kind {
	case KindRegister:
		return o.reg == p.reg
	case KindAddress:
		return o.addr == p.addr
	case KindImmediate:
		return o.imm.Value == p.imm.Value
	}
	return true
}
