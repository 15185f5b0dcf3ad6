package lir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

type parser struct {
	mod  *Module
	fn   *Func
	cur  *Block
	line int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", x64errors.ErrMalformedLIR, p.line, fmt.Sprintf(format, args...))
}

// Parse reads a module in the text format produced by Module.String. Each
// function is validated.
func Parse(src string) (*Module, error) {
	p := &parser{mod: &Module{}}
	for i, raw := range strings.Split(src, "\n") {
		p.line = i + 1
		line := raw
		if j := strings.Index(line, ";"); j >= 0 && !strings.Contains(line[:j], "\"") {
			line = line[:j]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := p.parseLine(line); err != nil {
			return nil, err
		}
	}
	if p.fn != nil {
		return nil, p.errorf("function @%s is not closed", p.fn.Name)
	}
	for _, f := range p.mod.Funcs {
		f.ComputeCFG()
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	return p.mod, nil
}

func cutWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	w, rest, _ := strings.Cut(s, " ")
	return w, strings.TrimSpace(rest)
}

func (p *parser) parseLine(line string) error {
	if p.fn != nil {
		switch {
		case line == "}":
			p.fn = nil
			p.cur = nil
			return nil
		case strings.HasSuffix(line, ":") && strings.HasPrefix(line, "b"):
			id, err := parseBlockID(strings.TrimSuffix(line, ":"))
			if err != nil {
				return p.errorf("%v", err)
			}
			p.cur = &Block{ID: id}
			p.fn.Blocks = append(p.fn.Blocks, p.cur)
			return nil
		}
		if p.cur == nil {
			return p.errorf("instruction outside a block")
		}
		in, err := p.parseInstr(line)
		if err != nil {
			return err
		}
		if in.Dst != 0 {
			p.fn.Types[in.Dst] = in.ResultType()
		}
		p.cur.Instrs = append(p.cur.Instrs, in)
		return nil
	}

	linkage := symbols.Default
	w, rest := cutWord(line)
	if l, ok := symbols.ParseLinkage(w); ok && w != "" && w != "extern" {
		linkage = l
		w, rest = cutWord(rest)
	}
	switch w {
	case "extern":
		name, err := parseSymbol(rest)
		if err != nil {
			return p.errorf("%v", err)
		}
		p.mod.Externs = append(p.mod.Externs, name)
	case "global":
		return p.parseGlobal(rest, linkage)
	case "func":
		return p.parseFuncHeader(rest, linkage)
	default:
		return p.errorf("unexpected %q", w)
	}
	return nil
}

func parseSymbol(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "@") || len(s) < 2 {
		return "", fmt.Errorf("expected @symbol, got %q", s)
	}
	return s[1:], nil
}

func parseBlockID(s string) (BlockID, error) {
	if !strings.HasPrefix(s, "b") {
		return 0, fmt.Errorf("expected block, got %q", s)
	}
	n, err := strconv.ParseUint(s[1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad block %q", s)
	}
	return BlockID(n), nil
}

func parseValue(s string) (Value, error) {
	if !strings.HasPrefix(s, "%") {
		return 0, fmt.Errorf("expected %%value, got %q", s)
	}
	n, err := strconv.ParseUint(s[1:], 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("bad value %q", s)
	}
	return Value(n), nil
}

func parseArg(s string) (Arg, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "%"):
		v, err := parseValue(s)
		return V(v), err
	case strings.HasPrefix(s, "@"):
		name, err := parseSymbol(s)
		return S(name), err
	}
	c, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return Arg{}, fmt.Errorf("bad operand %q", s)
	}
	return C(c), nil
}

func parseArgs(s string) ([]Arg, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []Arg
	for _, part := range strings.Split(s, ",") {
		a, err := parseArg(part)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (p *parser) parseFuncHeader(rest string, linkage symbols.Linkage) error {
	open := strings.Index(rest, "(")
	closeParen := strings.LastIndex(rest, ")")
	if open < 0 || closeParen < open || !strings.HasSuffix(rest, "{") {
		return p.errorf("malformed function header")
	}
	name, err := parseSymbol(rest[:open])
	if err != nil {
		return p.errorf("%v", err)
	}
	f := &Func{Name: name, Linkage: linkage, Types: make(map[Value]Type)}
	params := strings.TrimSpace(rest[open+1 : closeParen])
	if params != "" {
		for _, param := range strings.Split(params, ",") {
			tw, vw := cutWord(param)
			t, ok := ParseType(tw)
			if !ok || t == Void {
				return p.errorf("bad parameter type %q", tw)
			}
			v, err := parseValue(vw)
			if err != nil {
				return p.errorf("%v", err)
			}
			f.Params = append(f.Params, v)
			f.Types[v] = t
		}
	}
	p.mod.Funcs = append(p.mod.Funcs, f)
	p.fn = f
	return nil
}

// parseAddr parses [base+index*scale+off] where every part but base is
// optional.
func parseAddr(s string) (base Arg, index *Arg, scale uint8, off int32, rest string, err error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return base, nil, 0, 0, "", fmt.Errorf("expected [address], got %q", s)
	}
	end := strings.Index(s, "]")
	if end < 0 {
		return base, nil, 0, 0, "", fmt.Errorf("unterminated address %q", s)
	}
	inner := strings.ReplaceAll(s[1:end], " ", "")
	rest = strings.TrimSpace(s[end+1:])

	var terms []string
	start := 0
	for i := 1; i < len(inner); i++ {
		if inner[i] == '+' || inner[i] == '-' {
			terms = append(terms, inner[start:i])
			start = i
		}
	}
	terms = append(terms, inner[start:])

	var total int64
	for i, term := range terms {
		t := strings.TrimPrefix(term, "+")
		switch {
		case i == 0:
			base, err = parseArg(t)
			if err != nil {
				return
			}
		case strings.Contains(t, "*"):
			iv, sv, _ := strings.Cut(t, "*")
			a, perr := parseArg(iv)
			if perr != nil {
				return base, nil, 0, 0, "", perr
			}
			n, perr := strconv.ParseUint(sv, 10, 8)
			if perr != nil {
				return base, nil, 0, 0, "", fmt.Errorf("bad scale %q", sv)
			}
			index, scale = &a, uint8(n)
		default:
			n, perr := strconv.ParseInt(t, 0, 32)
			if perr != nil {
				return base, nil, 0, 0, "", fmt.Errorf("bad offset %q", t)
			}
			total += n
		}
	}
	if total < math.MinInt32 || total > math.MaxInt32 {
		return base, nil, 0, 0, "", fmt.Errorf("offset %d out of range", total)
	}
	return base, index, scale, int32(total), rest, nil
}

func parseFloatBits(t Type, s string) (int64, error) {
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad float %q", s)
	}
	if t == F32 {
		return int64(math.Float32bits(float32(x))), nil
	}
	return int64(math.Float64bits(x)), nil
}

func (p *parser) parseInstr(line string) (*Instr, error) {
	in := &Instr{}
	if strings.HasPrefix(line, "%") {
		lhs, rhs, ok := strings.Cut(line, "=")
		if !ok {
			return nil, p.errorf("expected '='")
		}
		v, err := parseValue(strings.TrimSpace(lhs))
		if err != nil {
			return nil, p.errorf("%v", err)
		}
		in.Dst = v
		line = strings.TrimSpace(rhs)
	}

	mn, rest := cutWord(line)
	parts := strings.Split(mn, ".")
	op, ok := ParseOp(parts[0])
	if !ok {
		return nil, p.errorf("unknown op %q", parts[0])
	}
	in.Op = op
	for _, suffix := range parts[1:] {
		if c, ok := ParseCond(suffix); ok && op.IsCompare() {
			in.Cond = c
		} else if t, ok := ParseType(suffix); ok && op.IsConversion() {
			in.From = t
		} else {
			return nil, p.errorf("bad suffix .%s on %s", suffix, op)
		}
	}
	if w, r := cutWord(rest); w != "" {
		if t, ok := ParseType(w); ok {
			in.Type = t
			rest = r
		}
	}

	var err error
	switch op {
	case OpConst:
		var a Arg
		if in.Type.IsFloat() {
			var bits int64
			bits, err = parseFloatBits(in.Type, rest)
			a = C(bits)
		} else {
			a, err = parseArg(rest)
		}
		in.Args = []Arg{a}
	case OpLoad, OpAddr:
		var base Arg
		base, _, _, in.Offset, _, err = parseAddr(rest)
		in.Args = []Arg{base}
	case OpStore, OpStoreIdx:
		var base Arg
		var index *Arg
		var tail string
		base, index, in.Scale, in.Offset, tail, err = parseAddr(rest)
		if err != nil {
			break
		}
		var v Arg
		v, err = parseArg(strings.TrimPrefix(tail, ","))
		in.Args = []Arg{base}
		if index != nil {
			in.Args = append(in.Args, *index)
		}
		in.Args = append(in.Args, v)
	case OpLoadIdx:
		var base Arg
		var index *Arg
		base, index, in.Scale, in.Offset, _, err = parseAddr(rest)
		if err == nil && index == nil {
			err = fmt.Errorf("loadidx without index")
		}
		if err == nil {
			in.Args = []Arg{base, *index}
		}
	case OpCall:
		open := strings.Index(rest, "(")
		closeParen := strings.LastIndex(rest, ")")
		if open < 0 || closeParen < open {
			return nil, p.errorf("malformed call")
		}
		in.Callee, err = parseSymbol(rest[:open])
		if err == nil {
			in.Args, err = parseArgs(rest[open+1 : closeParen])
		}
	case OpJmp:
		var id BlockID
		id, err = parseBlockID(rest)
		in.Targets = []BlockID{id}
	case OpBr:
		fields := strings.Split(rest, ",")
		if len(fields) != 4 {
			return nil, p.errorf("br takes two operands and two targets")
		}
		in.Args, err = parseArgs(strings.Join(fields[:2], ","))
		for _, fld := range fields[2:] {
			if err != nil {
				break
			}
			var id BlockID
			id, err = parseBlockID(strings.TrimSpace(fld))
			in.Targets = append(in.Targets, id)
		}
	default:
		in.Args, err = parseArgs(rest)
	}
	if err != nil {
		return nil, p.errorf("%v", err)
	}
	return in, nil
}

func (p *parser) parseGlobal(rest string, linkage symbols.Linkage) error {
	lhs, rhs, ok := strings.Cut(rest, "=")
	if !ok {
		return p.errorf("expected '=' in global")
	}
	name, err := parseSymbol(lhs)
	if err != nil {
		return p.errorf("%v", err)
	}
	cp := &constParser{s: strings.TrimSpace(rhs)}
	c, err := cp.parse()
	if err != nil {
		return p.errorf("%v", err)
	}
	cp.ws()
	if cp.i != len(cp.s) {
		return p.errorf("trailing %q after initializer", cp.s[cp.i:])
	}
	p.mod.Globals = append(p.mod.Globals, &Global{Name: name, Linkage: linkage, Value: c})
	return nil
}

type constParser struct {
	s string
	i int
}

func (cp *constParser) ws() {
	for cp.i < len(cp.s) && cp.s[cp.i] == ' ' {
		cp.i++
	}
}

// token reads up to the next delimiter.
func (cp *constParser) token() string {
	cp.ws()
	start := cp.i
	for cp.i < len(cp.s) && !strings.ContainsRune(" ,{}", rune(cp.s[cp.i])) {
		cp.i++
	}
	return cp.s[start:cp.i]
}

func (cp *constParser) parse() (Const, error) {
	cp.ws()
	if cp.i < len(cp.s) && cp.s[cp.i] == '{' {
		cp.i++
		agg := Const{Kind: ConstAggregate}
		for {
			cp.ws()
			if cp.i >= len(cp.s) {
				return Const{}, fmt.Errorf("unterminated aggregate")
			}
			if cp.s[cp.i] == '}' {
				cp.i++
				return agg, nil
			}
			e, err := cp.parse()
			if err != nil {
				return Const{}, err
			}
			agg.Elems = append(agg.Elems, e)
			cp.ws()
			if cp.i < len(cp.s) && cp.s[cp.i] == ',' {
				cp.i++
			}
		}
	}
	kind := cp.token()
	switch kind {
	case "str":
		cp.ws()
		q, err := strconv.QuotedPrefix(cp.s[cp.i:])
		if err != nil {
			return Const{}, fmt.Errorf("bad string literal")
		}
		cp.i += len(q)
		s, _ := strconv.Unquote(q)
		return Const{Kind: ConstString, Str: s}, nil
	case "ptr":
		ref := cp.token()
		name := ref
		var addend int64
		if j := strings.IndexAny(ref[1:], "+-"); j >= 0 {
			name = ref[:j+1]
			n, err := strconv.ParseInt(ref[j+1:], 0, 64)
			if err != nil {
				return Const{}, fmt.Errorf("bad addend in %q", ref)
			}
			addend = n
		}
		sym, err := parseSymbol(name)
		if err != nil {
			return Const{}, err
		}
		return Const{Kind: ConstPointer, Symbol: sym, Addend: addend}, nil
	}
	t, ok := ParseType(kind)
	if !ok || t == Void {
		return Const{}, fmt.Errorf("bad initializer type %q", kind)
	}
	lit := cp.token()
	if t.IsFloat() {
		bits, err := parseFloatBits(t, lit)
		return Const{Kind: ConstInt, Type: t, Int: bits}, err
	}
	n, err := strconv.ParseInt(lit, 0, 64)
	if err != nil {
		return Const{}, fmt.Errorf("bad integer %q", lit)
	}
	return Const{Kind: ConstInt, Type: t, Int: n}, nil
}
