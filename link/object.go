package link

import (
	"fmt"
	"strings"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/symbols"
)

// ObjectReloc is one entry of an object's relocation table.
type ObjectReloc struct {
	Section Section       `json:"section"`
	Offset  uint32        `json:"offset"`
	Symbol  string        `json:"symbol"`
	Type    asm.RelocType `json:"type"`
	Addend  int64         `json:"addend"`
}

func (r ObjectReloc) String() string {
	return fmt.Sprintf("%s+%#06x %-18s %s%+d", r.Section, r.Offset, r.Type, r.Symbol, r.Addend)
}

// ObjectSymbol is one entry of an object's symbol table. Undefined
// symbols carry no extent.
type ObjectSymbol struct {
	Name    string          `json:"name"`
	Linkage symbols.Linkage `json:"linkage"`
	Defined bool            `json:"defined"`
	Extent  Extent          `json:"extent"`
}

// Object is static output: the sections and the relocations an external
// linker resolves. Nothing is patched.
type Object struct {
	unit
}

func NewObject(syms *symbols.Table) *Object {
	return &Object{unit: newUnit(syms)}
}

// Relocations lists every relocation of the text section followed by those
// of the data section.
func (o *Object) Relocations() []ObjectReloc {
	out := make([]ObjectReloc, 0, len(o.relocs))
	for _, r := range o.relocs {
		out = append(out, ObjectReloc{
			Section: r.section,
			Offset:  r.Offset,
			Symbol:  o.syms.Name(r.Symbol),
			Type:    r.Type,
			Addend:  r.Addend,
		})
	}
	return out
}

// Symbols lists the defined symbols in layout order, then every referenced
// but undefined symbol.
func (o *Object) Symbols() []ObjectSymbol {
	var out []ObjectSymbol
	for _, id := range o.order {
		s := o.syms.Get(id)
		out = append(out, ObjectSymbol{Name: s.Name, Linkage: s.Linkage, Defined: true, Extent: o.extents[id]})
	}
	seen := map[symbols.ID]bool{}
	for _, r := range o.relocs {
		if _, defined := o.extents[r.Symbol]; defined || seen[r.Symbol] {
			continue
		}
		seen[r.Symbol] = true
		s := o.syms.Get(r.Symbol)
		out = append(out, ObjectSymbol{Name: s.Name, Linkage: s.Linkage})
	}
	return out
}

// Dump renders the symbol and relocation tables.
func (o *Object) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "text %d bytes, data %d bytes\n", len(o.Text()), len(o.Data()))
	sb.WriteString("symbols:\n")
	for _, s := range o.Symbols() {
		if s.Defined {
			fmt.Fprintf(&sb, "  %-24s %-8s %s+%#x len %d\n", s.Name, s.Linkage, s.Extent.Section, s.Extent.Offset, s.Extent.Length)
		} else {
			fmt.Fprintf(&sb, "  %-24s %-8s undefined\n", s.Name, s.Linkage)
		}
	}
	sb.WriteString("relocations:\n")
	for _, r := range o.Relocations() {
		sb.WriteString("  " + r.String() + "\n")
	}
	return sb.String()
}
