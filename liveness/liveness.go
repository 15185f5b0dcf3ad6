// Package liveness computes per-block live sets and per-value live
// intervals over a function laid out in preorder.
//
// Instruction k of the layout owns positions 2k and 2k+1: operands are
// read at 2k and the result is written at 2k+1. Call results are written
// at 2k+2, after the call has clobbered the caller-saved registers.
package liveness

import (
	"slices"

	"github.com/bits-and-blooms/bitset"

	"github.com/colorfulnotion/lirx64/abi"
	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/log"
)

// BlockInfo is the layout and dataflow summary of one block.
type BlockInfo struct {
	Block   *lir.Block
	From    int // position of the first instruction
	To      int // one past the last position of the block
	Uses    *bitset.BitSet
	Defs    *bitset.BitSet
	LiveIn  *bitset.BitSet
	LiveOut *bitset.BitSet
}

type Result struct {
	Func   *lir.Func
	Order  []*BlockInfo
	blocks map[lir.BlockID]*BlockInfo

	intervals map[lir.Value]*Interval
	// Fixed holds, per physical register, the positions where the register
	// is unavailable to the allocator.
	Fixed map[asm.Register]*Interval
	// NumPositions is one past the last position in the function.
	NumPositions int
}

func (r *Result) Block(id lir.BlockID) *BlockInfo { return r.blocks[id] }

// Interval returns the live interval of v, or nil when v is never live.
func (r *Result) Interval(v lir.Value) *Interval { return r.intervals[v] }

// Intervals returns every value interval ordered by start, ties by value.
func (r *Result) Intervals() []*Interval {
	out := make([]*Interval, 0, len(r.intervals))
	for _, iv := range r.intervals {
		out = append(out, iv)
	}
	slices.SortFunc(out, func(a, b *Interval) int {
		if a.Start() != b.Start() {
			return a.Start() - b.Start()
		}
		return int(a.Value) - int(b.Value)
	})
	return out
}

// UsePos and DefPos give the read and write positions of instruction k.
func UsePos(k int) int { return 2 * k }

func DefPos(in *lir.Instr, k int) int {
	if in.Op == lir.OpCall {
		return 2*k + 2
	}
	return 2*k + 1
}

// Analyze runs the backward dataflow to a fixed point and builds one
// interval per value plus the fixed intervals implied by calls and
// variable shifts under cc.
func Analyze(fn *lir.Func, cc *abi.CallConv) *Result {
	n := uint(fn.NumValues())
	res := &Result{
		Func:      fn,
		blocks:    make(map[lir.BlockID]*BlockInfo),
		intervals: make(map[lir.Value]*Interval),
		Fixed:     make(map[asm.Register]*Interval),
	}

	k := 0
	for _, b := range fn.Preorder() {
		bi := &BlockInfo{
			Block:   b,
			From:    UsePos(k),
			Uses:    bitset.New(n),
			Defs:    bitset.New(n),
			LiveIn:  bitset.New(n),
			LiveOut: bitset.New(n),
		}
		k += len(b.Instrs)
		bi.To = UsePos(k)
		for _, in := range b.Instrs {
			for _, v := range in.Uses() {
				if !bi.Defs.Test(uint(v)) {
					bi.Uses.Set(uint(v))
				}
			}
			if in.Dst != 0 {
				bi.Defs.Set(uint(in.Dst))
			}
		}
		res.Order = append(res.Order, bi)
		res.blocks[b.ID] = bi
	}
	// a trailing call defines its result one past the last block position
	res.NumPositions = UsePos(k) + 1
	if len(res.Order) == 0 {
		return res
	}
	for _, p := range fn.Params {
		res.Order[0].Defs.Set(uint(p))
	}

	iterations := 0
	for changed := true; changed; {
		changed = false
		iterations++
		for i := len(res.Order) - 1; i >= 0; i-- {
			bi := res.Order[i]
			out := bitset.New(n)
			for _, s := range bi.Block.Succs {
				if si := res.blocks[s]; si != nil {
					out.InPlaceUnion(si.LiveIn)
				}
			}
			in := out.Difference(bi.Defs)
			in.InPlaceUnion(bi.Uses)
			if !out.Equal(bi.LiveOut) || !in.Equal(bi.LiveIn) {
				bi.LiveOut, bi.LiveIn = out, in
				changed = true
			}
		}
	}

	res.buildIntervals(fn)
	res.buildFixed(cc)
	log.Debug(log.LivenessMonitoring, "liveness analyzed", "func", fn.Name, "blocks", len(res.Order),
		"values", len(res.intervals), "iterations", iterations, "positions", res.NumPositions)
	return res
}

// buildIntervals emits one range per (value, block) and merges them.
func (r *Result) buildIntervals(fn *lir.Func) {
	add := func(v lir.Value, rg Range) {
		if rg.End <= rg.Start {
			return
		}
		iv := r.intervals[v]
		if iv == nil {
			iv = NewInterval(v, fn.TypeOf(v).Class())
			r.intervals[v] = iv
		}
		iv.AddRange(rg)
	}

	k := 0
	for i, info := range r.Order {
		start := map[lir.Value]int{}
		end := map[lir.Value]int{}
		if i == 0 {
			for _, p := range fn.Params {
				start[p] = 0
				end[p] = 1
			}
		}
		for _, in := range info.Block.Instrs {
			for _, v := range in.Uses() {
				end[v] = UsePos(k) + 1
			}
			if in.Dst != 0 {
				d := DefPos(in, k)
				if _, ok := start[in.Dst]; !ok {
					start[in.Dst] = d
				}
				end[in.Dst] = max(end[in.Dst], d+1)
			}
			k++
		}
		for v, e := range end {
			s, ok := start[v]
			if !ok || info.LiveIn.Test(uint(v)) {
				s = info.From
			}
			if info.LiveOut.Test(uint(v)) {
				e = max(e, info.To)
			}
			add(v, Range{s, e})
		}
		for v, ok := info.LiveIn.NextSet(0); ok; v, ok = info.LiveIn.NextSet(v + 1) {
			if _, seen := end[lir.Value(v)]; !seen && info.LiveOut.Test(v) {
				add(lir.Value(v), Range{info.From, info.To})
			}
		}
	}
}

func (r *Result) fixed(reg asm.Register, rg Range) {
	iv := r.Fixed[reg]
	if iv == nil {
		iv = NewInterval(0, reg.Class())
		r.Fixed[reg] = iv
	}
	iv.AddRange(rg)
}

func (r *Result) buildFixed(cc *abi.CallConv) {
	k := 0
	for _, info := range r.Order {
		for _, in := range info.Block.Instrs {
			switch {
			case in.Op == lir.OpCall:
				for _, class := range []asm.RegClass{asm.GP, asm.Vector} {
					for _, reg := range cc.CallClobbers(class) {
						r.fixed(reg, Range{2*k + 1, 2*k + 2})
					}
				}
			case (in.Op == lir.OpShl || in.Op == lir.OpShr || in.Op == lir.OpSar) && in.Args[1].IsValue():
				r.fixed(asm.RCX, Range{2 * k, 2*k + 2})
			}
			k++
		}
	}
}

// Pressure counts, per position, the values whose interval covers it.
func (r *Result) Pressure() []int {
	p := make([]int, r.NumPositions)
	for _, iv := range r.intervals {
		for _, rg := range iv.Ranges {
			for i := rg.Start; i < rg.End && i < len(p); i++ {
				p[i]++
			}
		}
	}
	return p
}

// MaxPressure is the peak of Pressure split by register class.
func (r *Result) MaxPressure() (gp, vec int) {
	counts := map[asm.RegClass][]int{
		asm.GP:     make([]int, r.NumPositions),
		asm.Vector: make([]int, r.NumPositions),
	}
	for _, iv := range r.intervals {
		c := counts[iv.Class]
		for _, rg := range iv.Ranges {
			for i := rg.Start; i < rg.End && i < len(c); i++ {
				c[i]++
			}
		}
	}
	return slices.Max(append(counts[asm.GP], 0)), slices.Max(append(counts[asm.Vector], 0))
}

// sortedRegs orders the fixed registers by class then number.
func sortedRegs(m map[asm.Register]*Interval) []asm.Register {
	regs := make([]asm.Register, 0, len(m))
	for r := range m {
		regs = append(regs, r)
	}
	slices.SortFunc(regs, func(a, b asm.Register) int {
		if a.Class() != b.Class() {
			return int(a.Class()) - int(b.Class())
		}
		return int(a.Code()) - int(b.Code())
	})
	return regs
}
