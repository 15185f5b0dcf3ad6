package regalloc

import (
	"encoding/json"
	"testing"

	"github.com/nsf/jsondiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/lirx64/abi"
	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/liveness"
	"github.com/colorfulnotion/lirx64/symbols"
)

const straightSrc = `func @f(i64 %1, i64 %2) {
b0:
  %3 = add i64 %1, %2
  br.lt i64 %3, 10, b1, b2
b1:
  %4 = shl i64 %3, %2
  ret i64 %4
b2:
  %5 = call i64 @g(%3)
  ret i64 %5
}
`

func analyze(t *testing.T, fn *lir.Func) (*liveness.Result, *Allocation) {
	t.Helper()
	lv := liveness.Analyze(fn, abi.SysV())
	alloc := Allocate(lv, abi.SysV())
	checkNoSharedRegisters(t, lv, alloc)
	return lv, alloc
}

// checkNoSharedRegisters asserts that intersecting intervals never share a
// register and that no value sits in a register blocked by a fixed interval.
func checkNoSharedRegisters(t *testing.T, lv *liveness.Result, alloc *Allocation) {
	t.Helper()
	ivs := lv.Intervals()
	for i, a := range ivs {
		la := alloc.Location(a.Value)
		if !la.IsReg() {
			continue
		}
		if f := lv.Fixed[la.Reg]; f != nil {
			assert.False(t, f.Intersects(a), "%s in %s crosses a fixed interval", a.Value, la.Reg)
		}
		for _, b := range ivs[i+1:] {
			lb := alloc.Location(b.Value)
			if lb.IsReg() && lb.Reg == la.Reg {
				assert.False(t, a.Intersects(b), "%s and %s share %s", a.Value, b.Value, la.Reg)
			}
		}
	}
}

func TestAllocateStraightLine(t *testing.T) {
	m, err := lir.Parse(straightSrc)
	require.NoError(t, err)
	_, alloc := analyze(t, m.Funcs[0])

	want := map[lir.Value]asm.Register{1: asm.RAX, 2: asm.RDX, 3: asm.RAX, 4: asm.RDX, 5: asm.RAX}
	for v, reg := range want {
		assert.Equal(t, Location{Kind: LocReg, Reg: reg}, alloc.Location(v), v.String())
	}
	assert.Empty(t, alloc.Spills())
	assert.Empty(t, alloc.CalleeSaved())
	assert.Equal(t, int32(0), alloc.FrameSize())

	got, err := json.Marshal(alloc)
	require.NoError(t, err)
	expected := `{
		"func": "f",
		"locations": {"%1": "%rax", "%2": "%rdx", "%3": "%rax", "%4": "%rdx", "%5": "%rax"},
		"callee_saved": [],
		"slots": 0,
		"frame_size": 0
	}`
	opts := jsondiff.DefaultConsoleOptions()
	diff, report := jsondiff.Compare(got, []byte(expected), &opts)
	assert.Equal(t, jsondiff.FullMatch, diff, report)
}

// pressureFunc keeps n constants live at once and then sums them.
func pressureFunc(n int) *lir.Func {
	b := lir.NewBuilder("pressure", symbols.Default)
	b.Block()
	vals := make([]lir.Value, n)
	for i := range vals {
		vals[i] = b.Const(lir.I64, int64(i))
	}
	sum := b.Binary(lir.OpAdd, lir.I64, lir.V(vals[0]), lir.V(vals[1]))
	for _, v := range vals[2:] {
		sum = b.Binary(lir.OpAdd, lir.I64, lir.V(sum), lir.V(v))
	}
	b.Ret(lir.I64, lir.V(sum))
	return b.Func()
}

func TestAllocateSpills(t *testing.T) {
	_, alloc := analyze(t, pressureFunc(14))

	assert.Equal(t, []lir.Value{13, 14}, alloc.Spills())
	assert.Equal(t, []asm.Register{asm.RBX, asm.R12, asm.R13, asm.R14, asm.R15}, alloc.CalleeSaved())
	assert.Equal(t, 2, alloc.NumSlots())
	assert.Equal(t, int32(24), alloc.LocalSize())
	assert.Equal(t, int32(64), alloc.FrameSize())
	assert.Equal(t, int32(-48), alloc.SlotOffset(0))
	assert.Equal(t, int32(-56), alloc.SlotOffset(1))
	assert.Equal(t, "slot1", alloc.Location(14).String())
	assert.Equal(t, asm.R9, alloc.Location(7).Reg)
}

func TestAllocateEvictsLongerInterval(t *testing.T) {
	// %1 outlives every other value, so it is the one pushed to the stack
	// when the thirteenth value arrives.
	b := lir.NewBuilder("evict", symbols.Default)
	long := b.Param(lir.I64)
	b.Block()
	vals := make([]lir.Value, 12)
	for i := range vals {
		vals[i] = b.Const(lir.I64, int64(i))
	}
	sum := b.Binary(lir.OpAdd, lir.I64, lir.V(vals[0]), lir.V(vals[1]))
	for _, v := range vals[2:] {
		sum = b.Binary(lir.OpAdd, lir.I64, lir.V(sum), lir.V(v))
	}
	sum = b.Binary(lir.OpAdd, lir.I64, lir.V(sum), lir.V(long))
	b.Ret(lir.I64, lir.V(sum))

	_, alloc := analyze(t, b.Func())
	assert.Equal(t, []lir.Value{long}, alloc.Spills())
}

func TestAllocateVectorClass(t *testing.T) {
	src := `func @fadd(f64 %1, f64 %2, i64 %3) {
b0:
  %4 = add f64 %1, %2
  ret f64 %4
}
`
	m, err := lir.Parse(src)
	require.NoError(t, err)
	_, alloc := analyze(t, m.Funcs[0])
	assert.Equal(t, asm.XMM0, alloc.Location(1).Reg)
	assert.Equal(t, asm.XMM1, alloc.Location(2).Reg)
	assert.Equal(t, asm.RAX, alloc.Location(3).Reg)
	assert.Equal(t, asm.XMM0, alloc.Location(4).Reg)
}

func TestValuesLiveAcrossCallsAvoidCallerSaved(t *testing.T) {
	src := `func @keep(i64 %1) {
b0:
  %2 = call i64 @g()
  %3 = add i64 %1, %2
  ret i64 %3
}
`
	m, err := lir.Parse(src)
	require.NoError(t, err)
	_, alloc := analyze(t, m.Funcs[0])
	assert.Equal(t, asm.RBX, alloc.Location(1).Reg)
	assert.Equal(t, []asm.Register{asm.RBX}, alloc.CalleeSaved())
	assert.Equal(t, int32(16), alloc.FrameSize())
	assert.Equal(t, asm.RAX, alloc.Location(2).Reg)
}

func TestStackSlotSharing(t *testing.T) {
	ls := &linearScan{locs: make(map[lir.Value]Location)}
	ls.toStack(liveness.NewInterval(1, asm.GP, liveness.Range{Start: 0, End: 4}))
	ls.toStack(liveness.NewInterval(2, asm.GP, liveness.Range{Start: 2, End: 6}))
	ls.toStack(liveness.NewInterval(3, asm.GP, liveness.Range{Start: 4, End: 8}))
	ls.toStack(liveness.NewInterval(4, asm.GP, liveness.Range{Start: 6, End: 7}))

	assert.Equal(t, 0, ls.locs[1].Slot)
	assert.Equal(t, 1, ls.locs[2].Slot)
	assert.Equal(t, 0, ls.locs[3].Slot, "adjacent intervals share")
	assert.Equal(t, 1, ls.locs[4].Slot)
	assert.Len(t, ls.slots, 2)
}
