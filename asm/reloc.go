package asm

import (
	"fmt"

	"github.com/colorfulnotion/lirx64/symbols"
)

// RelocType values are the ELF x86-64 relocation numbers.
type RelocType uint32

const (
	RelocPC32    RelocType = 2 // R_X86_64_PC32: S + A - P, 32 bits
	RelocPLT32   RelocType = 4 // R_X86_64_PLT32: L + A - P, 32 bits
	RelocGlobDat RelocType = 6 // R_X86_64_GLOB_DAT: S, 64 bits
)

func (t RelocType) String() string {
	switch t {
	case RelocPC32:
		return "R_X86_64_PC32"
	case RelocPLT32:
		return "R_X86_64_PLT32"
	case RelocGlobDat:
		return "R_X86_64_GLOB_DAT"
	}
	return fmt.Sprintf("R_X86_64_%d", uint32(t))
}

// Width is the number of bytes the relocation patches.
func (t RelocType) Width() int {
	if t == RelocGlobDat {
		return 8
	}
	return 4
}

// Relocation marks bytes at Offset, relative to the start of the enclosing
// function or data section, to be patched with the address of Symbol.
type Relocation struct {
	Offset uint32     `json:"offset"`
	Symbol symbols.ID `json:"symbol"`
	Type   RelocType  `json:"type"`
	Addend int64      `json:"addend"`
}

func (r Relocation) String() string {
	return fmt.Sprintf("%#x %s sym%d%+d", r.Offset, r.Type, r.Symbol, r.Addend)
}

// Format renders the relocation with a symbol namer.
func (r Relocation) Format(name func(symbols.ID) string) string {
	if name == nil {
		return r.String()
	}
	return fmt.Sprintf("%#06x %-18s %s%+d", r.Offset, r.Type, name(r.Symbol), r.Addend)
}
