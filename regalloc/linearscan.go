// Package regalloc assigns every virtual register of a function a physical
// register or a stack slot with the linear-scan algorithm.
package regalloc

import (
	"slices"

	"github.com/google/btree"

	"github.com/colorfulnotion/lirx64/abi"
	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/liveness"
	"github.com/colorfulnotion/lirx64/log"
)

type activeItem struct {
	iv  *liveness.Interval
	reg asm.Register
}

// byEnd orders the active set by interval end; value ids break ties so that
// no two items compare equal.
func byEnd(a, b activeItem) bool {
	if a.iv.Finish() != b.iv.Finish() {
		return a.iv.Finish() < b.iv.Finish()
	}
	return a.iv.Value < b.iv.Value
}

type linearScan struct {
	lv     *liveness.Result
	cc     *abi.CallConv
	active *btree.BTreeG[activeItem]
	holder map[asm.Register]lir.Value
	locs   map[lir.Value]Location
	// slots lists, per stack slot, the intervals sharing it.
	slots [][]*liveness.Interval
}

// Allocate walks the intervals of lv in start order. Registers blocked by a
// fixed interval that intersects the current one are never handed out.
func Allocate(lv *liveness.Result, cc *abi.CallConv) *Allocation {
	ls := &linearScan{
		lv:     lv,
		cc:     cc,
		active: btree.NewG[activeItem](8, byEnd),
		holder: make(map[asm.Register]lir.Value),
		locs:   make(map[lir.Value]Location),
	}
	for _, cur := range lv.Intervals() {
		ls.expire(cur.Start())
		if reg, ok := ls.freeReg(cur); ok {
			ls.assign(cur, reg)
			continue
		}
		ls.spillAt(cur)
	}

	used := map[asm.Register]bool{}
	for _, l := range ls.locs {
		if l.IsReg() {
			used[l.Reg] = true
		}
	}
	var saved []asm.Register
	for _, r := range cc.CalleeSaved {
		if used[r] {
			saved = append(saved, r)
		}
	}
	a := &Allocation{fn: lv.Func.Name, locs: ls.locs, calleeSaved: saved, numSlots: len(ls.slots)}
	log.Debug(log.RegAllocMonitoring, "registers allocated", "func", lv.Func.Name, "values", len(ls.locs),
		"spills", len(a.Spills()), "slots", a.numSlots, "calleeSaved", len(saved), "frame", a.FrameSize())
	return a
}

// expire releases every active interval that ends at or before pos.
func (ls *linearScan) expire(pos int) {
	for {
		it, ok := ls.active.Min()
		if !ok || it.iv.Finish() > pos {
			return
		}
		ls.active.DeleteMin()
		delete(ls.holder, it.reg)
	}
}

func (ls *linearScan) usable(reg asm.Register, cur *liveness.Interval) bool {
	f := ls.lv.Fixed[reg]
	return f == nil || !f.Intersects(cur)
}

func (ls *linearScan) freeReg(cur *liveness.Interval) (asm.Register, bool) {
	for _, reg := range ls.cc.Allocatable(cur.Class) {
		if _, busy := ls.holder[reg]; busy {
			continue
		}
		if ls.usable(reg, cur) {
			return reg, true
		}
	}
	return asm.Register{}, false
}

func (ls *linearScan) assign(cur *liveness.Interval, reg asm.Register) {
	ls.locs[cur.Value] = Location{Kind: LocReg, Reg: reg}
	ls.holder[reg] = cur.Value
	ls.active.ReplaceOrInsert(activeItem{iv: cur, reg: reg})
	log.Trace(log.RegAllocMonitoring, "assign", "value", cur.Value, "reg", reg, "start", cur.Start(), "end", cur.Finish())
}

// spillAt frees a register for cur by evicting the active interval of the
// same class that ends last, provided it outlives cur; otherwise cur itself
// goes to the stack.
func (ls *linearScan) spillAt(cur *liveness.Interval) {
	var victim activeItem
	found := false
	ls.active.Descend(func(it activeItem) bool {
		if it.iv.Class != cur.Class || !ls.usable(it.reg, cur) {
			return true
		}
		victim, found = it, true
		return false
	})
	if found && victim.iv.Finish() > cur.Finish() {
		ls.active.Delete(victim)
		delete(ls.holder, victim.reg)
		ls.toStack(victim.iv)
		ls.assign(cur, victim.reg)
		return
	}
	ls.toStack(cur)
}

// toStack gives iv the first slot none of whose occupants intersect it.
func (ls *linearScan) toStack(iv *liveness.Interval) {
	slot := slices.IndexFunc(ls.slots, func(owners []*liveness.Interval) bool {
		return !slices.ContainsFunc(owners, iv.Intersects)
	})
	if slot < 0 {
		slot = len(ls.slots)
		ls.slots = append(ls.slots, nil)
	}
	ls.slots[slot] = append(ls.slots[slot], iv)
	ls.locs[iv.Value] = Location{Kind: LocStack, Slot: slot}
	log.Trace(log.RegAllocMonitoring, "spill", "value", iv.Value, "slot", slot, "start", iv.Start(), "end", iv.Finish())
}
