package regalloc

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
)

type LocKind uint8

const (
	LocNone LocKind = iota
	LocReg
	LocStack
)

// Location is where a virtual register lives for the whole function.
type Location struct {
	Kind LocKind
	Reg  asm.Register // full width view
	Slot int
}

func (l Location) IsReg() bool   { return l.Kind == LocReg }
func (l Location) IsStack() bool { return l.Kind == LocStack }

func (l Location) String() string {
	switch l.Kind {
	case LocReg:
		return l.Reg.String()
	case LocStack:
		return fmt.Sprintf("slot%d", l.Slot)
	}
	return "none"
}

// Allocation is the immutable result of register allocation for one
// function.
type Allocation struct {
	fn          string
	locs        map[lir.Value]Location
	calleeSaved []asm.Register
	numSlots    int
}

func (a *Allocation) Func() string { return a.fn }

// Location returns the home of v; values that are never live have none.
func (a *Allocation) Location(v lir.Value) Location { return a.locs[v] }

// CalleeSaved returns the callee-saved registers in use, in push order.
func (a *Allocation) CalleeSaved() []asm.Register { return slices.Clone(a.calleeSaved) }

func (a *Allocation) NumSlots() int { return a.numSlots }

// LocalSize is the spill area below the callee-saved pushes, padded so
// that the whole frame keeps the 16-byte call alignment.
func (a *Allocation) LocalSize() int32 {
	n := int32(a.numSlots * 8)
	if (int32(len(a.calleeSaved)*8)+n)%16 != 0 {
		n += 8
	}
	return n
}

// FrameSize is the number of bytes below the saved frame pointer.
func (a *Allocation) FrameSize() int32 {
	return int32(len(a.calleeSaved)*8) + a.LocalSize()
}

// SlotOffset is the %rbp-relative displacement of a spill slot.
func (a *Allocation) SlotOffset(slot int) int32 {
	return -int32(len(a.calleeSaved)*8 + (slot+1)*8)
}

// Spills lists the values living on the stack in ascending order.
func (a *Allocation) Spills() []lir.Value {
	var out []lir.Value
	for v, l := range a.locs {
		if l.IsStack() {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

// Values lists every allocated value in ascending order.
func (a *Allocation) Values() []lir.Value {
	out := make([]lir.Value, 0, len(a.locs))
	for v := range a.locs {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

type allocationJSON struct {
	Func        string            `json:"func"`
	Locations   map[string]string `json:"locations"`
	CalleeSaved []string          `json:"callee_saved"`
	Slots       int               `json:"slots"`
	FrameSize   int32             `json:"frame_size"`
}

func (a *Allocation) MarshalJSON() ([]byte, error) {
	out := allocationJSON{
		Func:        a.fn,
		Locations:   make(map[string]string, len(a.locs)),
		CalleeSaved: []string{},
		Slots:       a.numSlots,
		FrameSize:   a.FrameSize(),
	}
	for v, l := range a.locs {
		out.Locations[v.String()] = l.String()
	}
	for _, r := range a.calleeSaved {
		out.CalleeSaved = append(out.CalleeSaved, r.String())
	}
	return json.Marshal(out)
}
