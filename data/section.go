package data

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/log"
	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// Directive binds a slot tree to the symbol naming it.
type Directive struct {
	Symbol symbols.ID
	Name   string
	Slot   Slot
}

// Placement is where a symbol's bytes landed in its section.
type Placement struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

// Section collects the directives of one module in declaration order.
type Section struct {
	syms       *symbols.Table
	directives []Directive
	byName     map[string]int
}

func NewSection(syms *symbols.Table) *Section {
	return &Section{syms: syms, byName: make(map[string]int)}
}

// Add declares a global. A second slot for the same name is rejected.
func (s *Section) Add(name string, linkage symbols.Linkage, slot Slot) (symbols.ID, error) {
	if _, dup := s.byName[name]; dup {
		return symbols.NoSymbol, fmt.Errorf("%w: %s", x64errors.ErrDuplicateSlot, name)
	}
	id := s.syms.Intern(name, linkage)
	s.byName[name] = len(s.directives)
	s.directives = append(s.directives, Directive{Symbol: id, Name: name, Slot: slot})
	return id, nil
}

// AddGlobals declares every global of m.
func (s *Section) AddGlobals(m *lir.Module) error {
	for _, g := range m.Globals {
		slot, err := FromConst(g.Value)
		if err != nil {
			return fmt.Errorf("global @%s: %w", g.Name, err)
		}
		if _, err := s.Add(g.Name, g.Linkage, slot); err != nil {
			return err
		}
	}
	return nil
}

func (s *Section) Directives() []Directive { return s.directives }
func (s *Section) Len() int                { return len(s.directives) }

// Lookup returns the directive declared under name.
func (s *Section) Lookup(name string) (Directive, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Directive{}, false
	}
	return s.directives[i], true
}

// Emitted is a laid out data section.
type Emitted struct {
	Bytes   []byte                   `json:"bytes"`
	Relocs  []asm.Relocation         `json:"relocs"`
	Symbols map[symbols.ID]Placement `json:"symbols"`
}

// Emit lays out every directive at an Alignment boundary.
func (s *Section) Emit() (*Emitted, error) {
	buf := asm.NewBuffer(256)
	out := &Emitted{Symbols: make(map[symbols.ID]Placement, len(s.directives))}
	for _, d := range s.directives {
		for buf.Size()%Alignment != 0 {
			buf.Emit8(0)
		}
		start := buf.Size()
		relocs, err := EmitSlot(buf, s.syms, d.Slot)
		if err != nil {
			return nil, fmt.Errorf("global @%s: %w", d.Name, err)
		}
		for _, r := range relocs {
			r.Offset += uint32(start)
			out.Relocs = append(out.Relocs, r)
		}
		out.Symbols[d.Symbol] = Placement{Offset: start, Length: buf.Size() - start}
	}
	out.Bytes = buf.Bytes()
	log.Debug(log.CodegenMonitoring, "data section emitted", "globals", len(s.directives), "bytes", len(out.Bytes), "relocs", len(out.Relocs))
	return out, nil
}

// Dump renders a slot tree.
func Dump(slot Slot) string {
	tree := treeprint.New()
	tree.SetValue(slot.label())
	addChildren(tree, slot)
	return tree.String()
}

func addChildren(tree treeprint.Tree, slot Slot) {
	agg, ok := slot.(Aggregate)
	if !ok {
		return
	}
	for _, c := range agg.Children {
		if _, nested := c.(Aggregate); nested {
			addChildren(tree.AddBranch(c.label()), c)
			continue
		}
		tree.AddNode(c.label())
	}
}

// Dump renders every directive of the section.
func (s *Section) Dump() string {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("data (%d globals)", len(s.directives)))
	for _, d := range s.directives {
		b := tree.AddBranch(fmt.Sprintf("@%s %s", d.Name, d.Slot.label()))
		addChildren(b, d.Slot)
	}
	return tree.String()
}
