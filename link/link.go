// Package link consumes the relocation records produced by the encoder and
// the data compiler. An Object keeps them for an external linker; an Image
// lays every function and the data section out in one buffer and patches
// them against a load address.
package link

import (
	"fmt"
	"slices"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/data"
	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// FunctionAlign is the alignment of every function in the text section.
const FunctionAlign = 16

// MaxCallArgs is how many integer arguments Executable.Call passes.
const MaxCallArgs = 6

type Section uint8

const (
	Text Section = iota
	Data
)

func (s Section) String() string {
	if s == Data {
		return "data"
	}
	return "text"
}

// Extent is where a symbol's bytes live within a section or image.
type Extent struct {
	Section Section `json:"section"`
	Offset  int     `json:"offset"`
	Length  int     `json:"length"`
}

type placedReloc struct {
	section Section
	asm.Relocation
}

// unit is the state shared by objects and images: a text section built by
// concatenating functions, an optional data section, and every relocation
// rebased to its section start.
type unit struct {
	syms    *symbols.Table
	text    *asm.Buffer
	extents map[symbols.ID]Extent
	order   []symbols.ID
	relocs  []placedReloc
	data    *data.Emitted
}

func newUnit(syms *symbols.Table) unit {
	return unit{syms: syms, text: asm.NewBuffer(4096), extents: make(map[symbols.ID]Extent)}
}

// AddFunction appends code under name at the next FunctionAlign boundary.
// Padding is int3.
func (u *unit) AddFunction(name string, code *asm.Code) error {
	id := u.syms.Intern(name, symbols.Default)
	if _, dup := u.extents[id]; dup {
		return fmt.Errorf("%w: function %s", x64errors.ErrDuplicateSymbol, name)
	}
	for u.text.Size()%FunctionAlign != 0 {
		u.text.Emit8(0xCC)
	}
	start := u.text.Size()
	u.text.Write(code.Bytes)
	u.extents[id] = Extent{Section: Text, Offset: start, Length: len(code.Bytes)}
	u.order = append(u.order, id)
	for _, r := range code.Relocs {
		r.Offset += uint32(start)
		u.relocs = append(u.relocs, placedReloc{section: Text, Relocation: r})
	}
	return nil
}

// SetData installs the data section; its symbols must not clash with
// functions.
func (u *unit) SetData(d *data.Emitted) error {
	ids := make([]symbols.ID, 0, len(d.Symbols))
	for id := range d.Symbols {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if e, dup := u.extents[id]; dup && e.Section == Text {
			return fmt.Errorf("%w: %s is both a function and a global", x64errors.ErrDuplicateSymbol, u.syms.Name(id))
		}
		p := d.Symbols[id]
		u.extents[id] = Extent{Section: Data, Offset: p.Offset, Length: p.Length}
		u.order = append(u.order, id)
	}
	for _, r := range d.Relocs {
		u.relocs = append(u.relocs, placedReloc{section: Data, Relocation: r})
	}
	u.data = d
	return nil
}

func (u *unit) Text() []byte { return u.text.Bytes() }

func (u *unit) Data() []byte {
	if u.data == nil {
		return nil
	}
	return u.data.Bytes
}

// Extent returns where the named symbol was placed.
func (u *unit) Extent(name string) (Extent, bool) {
	id, ok := u.syms.Lookup(name)
	if !ok {
		return Extent{}, false
	}
	e, ok := u.extents[id]
	return e, ok
}
