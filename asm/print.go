package asm

import (
	"fmt"
	"strings"

	"github.com/colorfulnotion/lirx64/symbols"
)

// Namer resolves symbol handles for printing.
type Namer func(symbols.ID) string

func sizeSuffix(size uint8) string {
	switch size {
	case 1:
		return "b"
	case 2:
		return "w"
	case 4:
		return "l"
	case 8:
		return "q"
	}
	return ""
}

func (in Inst) String() string {
	return in.Format(nil)
}

// Mnemonic is the AT&T mnemonic including the size suffix.
func (in Inst) Mnemonic() string {
	switch in.Op {
	case MOV:
		if in.Size == 8 && in.Src.IsImmediate() && in.Dst.IsRegister() {
			return "movabsq"
		}
		return "mov" + sizeSuffix(in.Size)
	case MOVABS:
		return "movabsq"
	case MOVZX:
		return "movz" + sizeSuffix(in.SrcSize) + sizeSuffix(in.Size)
	case MOVSX:
		return "movs" + sizeSuffix(in.SrcSize) + sizeSuffix(in.Size)
	case MOVSXD:
		return "movslq"
	case SETCC:
		return "set" + in.Cond.String()
	case CMOVCC:
		return "cmov" + in.Cond.String() + sizeSuffix(in.Size)
	case JCC:
		return "j" + in.Cond.String()
	case CVTSI2SS, CVTSI2SD:
		return in.Op.String() + sizeSuffix(in.Size)
	case PUSH, POP:
		return in.Op.String() + "q"
	case CALL, RET, LEAVE, JMP:
		return in.Op.String()
	}
	if in.Op.IsSSE() {
		return in.Op.String()
	}
	return in.Op.String() + sizeSuffix(in.Size)
}

// Format renders in in AT&T syntax, source operand first.
func (in Inst) Format(name Namer) string {
	mn := in.Mnemonic()
	switch in.Op {
	case RET, LEAVE:
		return mn
	case JMP, JCC:
		if in.Label != 0 {
			return fmt.Sprintf("%s .L%d", mn, in.Label)
		}
		if in.Dst.IsImmediate() {
			return fmt.Sprintf("%s .%+d", mn, in.Dst.imm.Value)
		}
		return mn + " *" + formatOperand(in.Dst, name)
	case CALL:
		if in.Dst.IsAddress() && in.Dst.addr.IsSymbol() {
			s := symbolName(in.Dst.addr.Symbol, name)
			if in.PLT {
				s += "@PLT"
			}
			return mn + " " + s
		}
		return mn + " *" + formatOperand(in.Dst, name)
	}
	if in.Src.IsNone() {
		return mn + " " + formatOperand(in.Dst, name)
	}
	return mn + " " + formatOperand(in.Src, name) + ", " + formatOperand(in.Dst, name)
}

func symbolName(id symbols.ID, name Namer) string {
	if name != nil {
		if s := name(id); s != "" {
			return s
		}
	}
	return fmt.Sprintf("sym%d", id)
}

func formatOperand(o Operand, name Namer) string {
	switch o.kind {
	case KindRegister:
		return o.reg.String()
	case KindImmediate:
		return fmt.Sprintf("$%d", o.imm.Value)
	case KindAddress:
		return formatAddress(o.addr, name)
	}
	return "?"
}

func formatAddress(a Address, name Namer) string {
	if a.IsSymbol() {
		s := symbolName(a.Symbol, name)
		if a.Disp != 0 {
			s = fmt.Sprintf("%s%+d", s, a.Disp)
		}
		return s + "(%rip)"
	}
	var sb strings.Builder
	if a.Disp != 0 {
		fmt.Fprintf(&sb, "%d", a.Disp)
	}
	sb.WriteString("(")
	sb.WriteString(a.Base.String())
	if a.Index.IsValid() {
		fmt.Fprintf(&sb, ",%s,%d", a.Index, a.Scale)
	}
	sb.WriteString(")")
	return sb.String()
}

func (a Address) String() string {
	return formatAddress(a, nil)
}

func (o Operand) String() string {
	return formatOperand(o, nil)
}
