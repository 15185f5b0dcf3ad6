// Package data compiles global initializers into a data section. Slots are
// emitted through the same sink interface as instructions; pointers leave an
// 8-byte hole and a GLOB_DAT relocation.
package data

import (
	"fmt"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// Alignment of strings and of every directive in a section.
const Alignment = 8

type Width uint8

const (
	Byte  Width = 1
	Word  Width = 2
	DWord Width = 4
	QWord Width = 8
)

func (w Width) String() string {
	switch w {
	case Byte:
		return "byte"
	case Word:
		return "word"
	case DWord:
		return "dword"
	case QWord:
		return "qword"
	}
	return fmt.Sprintf("width%d", uint8(w))
}

// Slot is one node of a global initializer tree. The variants are Scalar,
// String, Aggregate and Pointer.
type Slot interface {
	Size() int
	emit(e *emitter) error
	label() string
}

// Scalar is a sized integer; floats are stored as their bit pattern.
type Scalar struct {
	Width Width
	Value int64
}

// String is a NUL-terminated byte string padded to Alignment.
type String struct {
	Value string
}

// Aggregate lays its children out back to back with no padding.
type Aggregate struct {
	Children []Slot
}

// Pointer is the absolute address of Symbol plus Addend.
type Pointer struct {
	Symbol string
	Addend int64
}

func (s Scalar) Size() int { return int(s.Width) }

func (s String) Size() int { return alignUp(len(s.Value)+1, Alignment) }

func (a Aggregate) Size() int {
	n := 0
	for _, c := range a.Children {
		n += c.Size()
	}
	return n
}

func (p Pointer) Size() int { return 8 }

func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// emitter writes slots to a sink and collects their relocations.
type emitter struct {
	sink   asm.Sink
	base   int
	syms   *symbols.Table
	relocs []asm.Relocation
}

func (s Scalar) emit(e *emitter) error {
	switch s.Width {
	case Byte:
		e.sink.Emit8(uint8(s.Value))
	case Word:
		e.sink.Emit16(uint16(s.Value))
	case DWord:
		e.sink.Emit32(uint32(s.Value))
	case QWord:
		e.sink.Emit64(uint64(s.Value))
	default:
		return fmt.Errorf("%w: scalar %s", x64errors.ErrUnsupportedOperands, s.Width)
	}
	return nil
}

func (s String) emit(e *emitter) error {
	for i := 0; i < len(s.Value); i++ {
		e.sink.Emit8(s.Value[i])
	}
	for n := len(s.Value); n < s.Size(); n++ {
		e.sink.Emit8(0)
	}
	return nil
}

func (a Aggregate) emit(e *emitter) error {
	for _, c := range a.Children {
		if err := c.emit(e); err != nil {
			return err
		}
	}
	return nil
}

func (p Pointer) emit(e *emitter) error {
	id, ok := e.syms.Lookup(p.Symbol)
	if !ok {
		id = e.syms.Intern(p.Symbol, symbols.External)
	}
	e.relocs = append(e.relocs, asm.Relocation{
		Offset: uint32(e.sink.Size() - e.base),
		Symbol: id,
		Type:   asm.RelocGlobDat,
		Addend: p.Addend,
	})
	e.sink.Emit64(0)
	return nil
}

func (s Scalar) label() string { return fmt.Sprintf("%s %d", s.Width, s.Value) }

func (s String) label() string { return fmt.Sprintf("string %q (%d bytes)", s.Value, s.Size()) }

func (a Aggregate) label() string {
	return fmt.Sprintf("aggregate (%d bytes)", a.Size())
}

func (p Pointer) label() string {
	if p.Addend != 0 {
		return fmt.Sprintf("ptr @%s%+d", p.Symbol, p.Addend)
	}
	return "ptr @" + p.Symbol
}

// EmitSlot writes slot to sink and returns its relocations, with offsets
// relative to the first byte of the slot.
func EmitSlot(sink asm.Sink, syms *symbols.Table, slot Slot) ([]asm.Relocation, error) {
	e := &emitter{sink: sink, base: sink.Size(), syms: syms}
	if err := slot.emit(e); err != nil {
		return nil, err
	}
	return e.relocs, nil
}

// FromConst converts a parsed global initializer.
func FromConst(c lir.Const) (Slot, error) {
	switch c.Kind {
	case lir.ConstInt:
		if c.Type == lir.Void {
			return nil, fmt.Errorf("%w: untyped scalar", x64errors.ErrMalformedLIR)
		}
		return Scalar{Width: Width(c.Type.Size()), Value: c.Int}, nil
	case lir.ConstString:
		return String{Value: c.Str}, nil
	case lir.ConstPointer:
		return Pointer{Symbol: c.Symbol, Addend: c.Addend}, nil
	case lir.ConstAggregate:
		agg := Aggregate{Children: make([]Slot, 0, len(c.Elems))}
		for _, el := range c.Elems {
			s, err := FromConst(el)
			if err != nil {
				return nil, err
			}
			agg.Children = append(agg.Children, s)
		}
		return agg, nil
	}
	return nil, fmt.Errorf("%w: initializer kind %d", x64errors.ErrMalformedLIR, c.Kind)
}
