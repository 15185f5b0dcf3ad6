package asm

import (
	"fmt"

	"github.com/colorfulnotion/lirx64/log"
	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// Label names a code position inside one Assembler. The zero Label is
// invalid.
type Label uint32

type labelState struct {
	bound  bool
	offset int
	// fixups are offsets of rel32 fields waiting for this label.
	fixups []int
}

// Code is the finished, immutable output of an Assembler.
type Code struct {
	Bytes  []byte       `json:"bytes"`
	Relocs []Relocation `json:"relocs"`
}

func (c *Code) Size() int { return len(c.Bytes) }

// Assembler emits instructions into a sink and resolves branches to labels.
// Backward branches are resolved immediately; forward branches are written
// as rel32 placeholders and patched by Bind.
type Assembler struct {
	sink   Sink
	labels []labelState
	relocs []Relocation
	// Trace, when set, sees every instruction with its offset and length.
	Trace func(off, n int, in Inst)
}

func NewAssembler(s Sink) *Assembler {
	return &Assembler{
		sink:   s,
		labels: []labelState{{}},
	}
}

func (a *Assembler) Sink() Sink  { return a.sink }
func (a *Assembler) Offset() int { return a.sink.Size() }

func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, labelState{})
	return Label(len(a.labels) - 1)
}

func (a *Assembler) label(l Label) (*labelState, error) {
	if l == 0 || int(l) >= len(a.labels) {
		return nil, fmt.Errorf("%w: unknown label %d", x64errors.ErrUnsupportedOperands, l)
	}
	return &a.labels[l], nil
}

// IsBound reports whether l has been placed.
func (a *Assembler) IsBound(l Label) bool {
	st, err := a.label(l)
	return err == nil && st.bound
}

// Bind places l at the current offset and patches every pending branch.
// When a branch is out of range nothing is patched and l stays unbound.
func (a *Assembler) Bind(l Label) error {
	st, err := a.label(l)
	if err != nil {
		return err
	}
	if st.bound {
		return fmt.Errorf("%w: label %d", x64errors.ErrLabelRebound, l)
	}
	at := a.sink.Size()
	for _, p := range st.fixups {
		if disp := int64(at) - int64(p+4); !FitsInt32(disp) {
			return rangeError(disp, 4)
		}
	}
	for _, p := range st.fixups {
		a.sink.Patch32(p, uint32(int32(int64(at)-int64(p+4))))
	}
	st.bound = true
	st.offset = at
	st.fixups = nil
	return nil
}

// Jmp emits an unconditional branch to l.
func (a *Assembler) Jmp(l Label) error {
	return a.branch(Inst{Op: JMP, Label: l}, 2, 5)
}

// Jcc emits a conditional branch to l.
func (a *Assembler) Jcc(c Cond, l Label) error {
	return a.branch(Inst{Op: JCC, Cond: c, Label: l}, 2, 6)
}

// branch encodes a jmp/jcc whose short form is short bytes long and whose
// rel32 form is long bytes long.
func (a *Assembler) branch(in Inst, short, long int) error {
	st, err := a.label(in.Label)
	if err != nil {
		return err
	}
	cur := a.sink.Size()
	if st.bound {
		disp := int64(st.offset - (cur + short))
		if FitsInt8(disp) {
			in.Size = 1
		} else {
			in.Size = 4
			disp = int64(st.offset - (cur + long))
		}
		in.Dst = I(disp)
		return a.encode(in)
	}
	in.Size = 4
	in.Dst = I(X86_MAX_INT32)
	if err := a.encode(in); err != nil {
		return err
	}
	st.fixups = append(st.fixups, a.sink.Size()-4)
	return nil
}

// Call emits a direct call to sym; external targets go through the PLT.
func (a *Assembler) Call(sym symbols.ID, external bool) error {
	return a.encode(Inst{Op: CALL, Dst: M(SymAddr(sym)), PLT: external})
}

// Emit encodes one instruction. Branches carrying a Label are routed
// through Jmp/Jcc.
func (a *Assembler) Emit(in Inst) error {
	if (in.Op == JMP || in.Op == JCC) && in.Label != 0 {
		if in.Op == JMP {
			return a.Jmp(in.Label)
		}
		return a.Jcc(in.Cond, in.Label)
	}
	return a.encode(in)
}

func (a *Assembler) encode(in Inst) error {
	off := a.sink.Size()
	r, err := Encode(a.sink, in)
	if err != nil {
		return err
	}
	if r != nil {
		a.relocs = append(a.relocs, *r)
	}
	if a.Trace != nil {
		a.Trace(off, a.sink.Size()-off, in)
	}
	return nil
}

// AddReloc records a relocation produced outside Emit.
func (a *Assembler) AddReloc(r Relocation) {
	a.relocs = append(a.relocs, r)
}

func (a *Assembler) Relocs() []Relocation {
	return a.relocs
}

// Finish checks that no branch is left dangling and returns the code. For
// sinks that do not keep bytes only the relocations are meaningful.
func (a *Assembler) Finish() (*Code, error) {
	for i := 1; i < len(a.labels); i++ {
		if len(a.labels[i].fixups) > 0 {
			return nil, fmt.Errorf("%w: label %d has %d pending branches", x64errors.ErrLabelUnbound, i, len(a.labels[i].fixups))
		}
	}
	if fb, ok := a.sink.(*FixedBuffer); ok && fb.Err() != nil {
		return nil, fb.Err()
	}
	code := &Code{Relocs: append([]Relocation(nil), a.relocs...)}
	if b, ok := a.sink.(interface{ Bytes() []byte }); ok {
		code.Bytes = append([]byte(nil), b.Bytes()...)
	}
	log.Trace(log.AsmMonitoring, "assembler finished", "bytes", a.sink.Size(), "relocs", len(a.relocs), "labels", len(a.labels)-1)
	return code, nil
}
