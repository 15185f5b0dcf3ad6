package codegen

import (
	"fmt"
	"strings"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/data"
	"github.com/colorfulnotion/lirx64/link"
)

// Func returns the compiled function called name.
func (r *Result) Func(name string) *Function {
	for _, f := range r.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// TextSize is the sum of the function sizes, without alignment padding.
func (r *Result) TextSize() int {
	n := 0
	for _, f := range r.Funcs {
		n += len(f.Code.Bytes)
	}
	return n
}

func (r *Result) Object() (*link.Object, error) {
	obj := link.NewObject(r.Symbols)
	if err := r.place(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (r *Result) Image() (*link.Image, error) {
	img := link.NewImage(r.Symbols)
	if err := r.place(img); err != nil {
		return nil, err
	}
	return img, nil
}

type placer interface {
	AddFunction(name string, code *asm.Code) error
	SetData(d *data.Emitted) error
}

func (r *Result) place(p placer) error {
	for _, f := range r.Funcs {
		if err := p.AddFunction(f.Name, f.Code); err != nil {
			return err
		}
	}
	if r.Emitted == nil {
		return nil
	}
	return p.SetData(r.Emitted)
}

// Listing disassembles every function and lists its relocations.
func (r *Result) Listing() string {
	var sb strings.Builder
	for i, f := range r.Funcs {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: ; %d bytes", f.Name, len(f.Code.Bytes))
		if f.Cached {
			sb.WriteString(", cached")
		}
		sb.WriteString("\n")
		sb.WriteString(asm.Disassemble(f.Code.Bytes))
		for _, rel := range f.Code.Relocs {
			fmt.Fprintf(&sb, "  ; reloc %s\n", rel.Format(r.Symbols.Name))
		}
	}
	return sb.String()
}
