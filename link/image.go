package link

import (
	"encoding/binary"
	"fmt"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/log"
	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// Image is JIT output: text followed by data in one buffer.
type Image struct {
	unit
}

func NewImage(syms *symbols.Table) *Image {
	return &Image{unit: newUnit(syms)}
}

// dataOffset is where data starts when it is aligned to align.
func (img *Image) dataOffset(align int) int {
	n := img.text.Size()
	return (n + align - 1) / align * align
}

// Layout returns the unpatched image bytes.
func (img *Image) Layout() []byte {
	return img.layout(FunctionAlign)
}

func (img *Image) layout(align int) []byte {
	start := img.dataOffset(align)
	out := make([]byte, start, start+len(img.Data()))
	copy(out, img.Text())
	for i := img.text.Size(); i < len(out); i++ {
		out[i] = 0xCC
	}
	return append(out, img.Data()...)
}

// offsetOf returns the image offset of a defined symbol.
func (img *Image) offsetOf(id symbols.ID, align int) (int, bool) {
	e, ok := img.extents[id]
	if !ok {
		return 0, false
	}
	if e.Section == Data {
		return img.dataOffset(align) + e.Offset, true
	}
	return e.Offset, true
}

// Symbols maps every defined symbol to its extent within the image.
func (img *Image) Symbols() map[string]Extent {
	return img.symbols(FunctionAlign)
}

func (img *Image) symbols(align int) map[string]Extent {
	out := make(map[string]Extent, len(img.extents))
	for _, id := range img.order {
		e := img.extents[id]
		off, _ := img.offsetOf(id, align)
		out[img.syms.Name(id)] = Extent{Section: e.Section, Offset: off, Length: e.Length}
	}
	return out
}

// Resolve lays the image out for loading at base and patches every
// relocation. Externs maps symbol names to absolute addresses.
//
//	PC32     S + A - P against the definition inside the image
//	PLT32    the external address when there is one, else the definition
//	GLOB_DAT base + S + A, or the external address + A
func (img *Image) Resolve(base uint64, externs map[string]uint64) ([]byte, error) {
	return img.resolve(base, externs, FunctionAlign)
}

// resolve is Resolve with data aligned to align.
func (img *Image) resolve(base uint64, externs map[string]uint64, align int) ([]byte, error) {
	out := img.layout(align)
	for _, r := range img.relocs {
		p := int64(r.Offset)
		if r.section == Data {
			p += int64(img.dataOffset(align))
		}
		name := img.syms.Name(r.Symbol)
		internal, defined := img.offsetOf(r.Symbol, align)
		ext, hasExt := externs[name]

		switch r.Type {
		case asm.RelocPC32, asm.RelocPLT32:
			var disp int64
			switch {
			case r.Type == asm.RelocPLT32 && hasExt, !defined && hasExt:
				disp = int64(ext) + r.Addend - (int64(base) + p)
			case defined:
				disp = int64(internal) + r.Addend - p
			default:
				return nil, fmt.Errorf("%w: %s (%s at %#x)", x64errors.ErrUnresolvedSymbol, name, r.Type, p)
			}
			if !asm.FitsInt32(disp) {
				return nil, fmt.Errorf("%w: %s to %s is %d bytes away", x64errors.ErrEncodingRange, r.Type, name, disp)
			}
			binary.LittleEndian.PutUint32(out[p:], uint32(int32(disp)))
		case asm.RelocGlobDat:
			var addr uint64
			switch {
			case defined:
				addr = base + uint64(internal)
			case hasExt:
				addr = ext
			default:
				return nil, fmt.Errorf("%w: %s (%s at %#x)", x64errors.ErrUnresolvedSymbol, name, r.Type, p)
			}
			binary.LittleEndian.PutUint64(out[p:], addr+uint64(r.Addend))
		default:
			return nil, fmt.Errorf("%w: relocation type %s", x64errors.ErrUnsupportedOperands, r.Type)
		}
	}
	log.Debug(log.LinkMonitoring, "image resolved", "base", fmt.Sprintf("%#x", base), "bytes", len(out), "relocs", len(img.relocs))
	return out, nil
}
