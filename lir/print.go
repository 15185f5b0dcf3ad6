package lir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/colorfulnotion/lirx64/symbols"
)

func formatOffset(off int64) string {
	switch {
	case off > 0:
		return "+" + strconv.FormatInt(off, 10)
	case off < 0:
		return strconv.FormatInt(off, 10)
	}
	return ""
}

func formatAddr(base Arg, index *Arg, scale uint8, off int32) string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(base.String())
	if index != nil {
		fmt.Fprintf(&sb, "+%s*%d", index, scale)
	}
	sb.WriteString(formatOffset(int64(off)))
	sb.WriteString("]")
	return sb.String()
}

// FormatFloat renders raw constant bits of a float type.
func FormatFloat(t Type, bits int64) string {
	if t == F32 {
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(bits))), 'g', -1, 32)
	}
	return strconv.FormatFloat(math.Float64frombits(uint64(bits)), 'g', -1, 64)
}

func joinArgs(args []Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func (in *Instr) String() string {
	var sb strings.Builder
	if in.Dst != 0 {
		sb.WriteString(in.Dst.String())
		sb.WriteString(" = ")
	}
	sb.WriteString(in.Op.String())
	if in.Op.IsCompare() {
		sb.WriteString("." + in.Cond.String())
	}
	if in.Op.IsConversion() {
		sb.WriteString("." + in.From.String())
	}
	if in.Type != Void || in.Op == OpCall {
		sb.WriteString(" " + in.Type.String())
	}
	switch in.Op {
	case OpConst:
		if in.Type.IsFloat() {
			sb.WriteString(" " + FormatFloat(in.Type, in.Args[0].Const))
		} else {
			sb.WriteString(" " + in.Args[0].String())
		}
	case OpLoad, OpAddr:
		sb.WriteString(" " + formatAddr(in.Args[0], nil, 0, in.Offset))
	case OpStore:
		sb.WriteString(" " + formatAddr(in.Args[0], nil, 0, in.Offset) + ", " + in.Args[1].String())
	case OpLoadIdx:
		sb.WriteString(" " + formatAddr(in.Args[0], &in.Args[1], in.Scale, in.Offset))
	case OpStoreIdx:
		sb.WriteString(" " + formatAddr(in.Args[0], &in.Args[1], in.Scale, in.Offset) + ", " + in.Args[2].String())
	case OpCall:
		fmt.Fprintf(&sb, " @%s(%s)", in.Callee, joinArgs(in.Args))
	case OpJmp:
		sb.WriteString(" " + in.Targets[0].String())
	case OpBr:
		fmt.Fprintf(&sb, " %s, %s, %s", joinArgs(in.Args), in.Targets[0], in.Targets[1])
	default:
		if len(in.Args) > 0 {
			sb.WriteString(" " + joinArgs(in.Args))
		}
	}
	return sb.String()
}

func linkagePrefix(l symbols.Linkage) string {
	if l == symbols.Default {
		return ""
	}
	return l.String() + " "
}

func (f *Func) String() string {
	var sb strings.Builder
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = f.Types[p].String() + " " + p.String()
	}
	fmt.Fprintf(&sb, "%sfunc @%s(%s) {\n", linkagePrefix(f.Linkage), f.Name, strings.Join(params, ", "))
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "%s:\n", b.ID)
		for _, in := range b.Instrs {
			sb.WriteString("  " + in.String() + "\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (c Const) String() string {
	switch c.Kind {
	case ConstString:
		return "str " + strconv.Quote(c.Str)
	case ConstPointer:
		return "ptr @" + c.Symbol + formatOffset(c.Addend)
	case ConstAggregate:
		parts := make([]string, len(c.Elems))
		for i, e := range c.Elems {
			parts[i] = e.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	if c.Type.IsFloat() {
		return c.Type.String() + " " + FormatFloat(c.Type, c.Int)
	}
	return c.Type.String() + " " + strconv.FormatInt(c.Int, 10)
}

func (g *Global) String() string {
	return fmt.Sprintf("%sglobal @%s = %s", linkagePrefix(g.Linkage), g.Name, g.Value)
}

// String renders m in the text format accepted by Parse.
func (m *Module) String() string {
	var sb strings.Builder
	for _, e := range m.Externs {
		fmt.Fprintf(&sb, "extern @%s\n", e)
	}
	if len(m.Externs) > 0 {
		sb.WriteString("\n")
	}
	for _, g := range m.Globals {
		sb.WriteString(g.String() + "\n")
	}
	if len(m.Globals) > 0 {
		sb.WriteString("\n")
	}
	for i, f := range m.Funcs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(f.String())
	}
	return sb.String()
}
