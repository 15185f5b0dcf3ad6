package liveness

import (
	"testing"

	"github.com/colorfulnotion/lirx64/abi"
	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFunc(t *testing.T, src string) *lir.Func {
	t.Helper()
	m, err := lir.Parse(src)
	require.NoError(t, err)
	require.Len(t, m.Funcs, 1)
	return m.Funcs[0]
}

func TestIntervalMerge(t *testing.T) {
	a := NewInterval(1, asm.GP, Range{0, 4}, Range{10, 12})
	b := NewInterval(1, asm.GP, Range{3, 6}, Range{20, 22})

	same := a.Clone()
	same.MergeWith(a.Clone())
	assert.True(t, same.Equal(a), "merge is idempotent")

	m := a.Clone()
	m.MergeWith(b)
	assert.Equal(t, []Range{{0, 6}, {10, 12}, {20, 22}}, m.Ranges)
	assert.Equal(t, max(a.Finish(), b.Finish()), m.Finish())
	assert.Equal(t, 0, m.Start())
}

func TestIntervalCanonical(t *testing.T) {
	iv := NewInterval(2, asm.GP, Range{8, 9}, Range{0, 2}, Range{2, 4}, Range{5, 5})
	assert.Equal(t, []Range{{0, 4}, {8, 9}}, iv.Ranges)
	assert.Equal(t, 0, iv.Start())
	assert.Equal(t, 9, iv.Finish())
	assert.True(t, iv.Covers(3))
	assert.False(t, iv.Covers(4))
	assert.False(t, iv.Covers(9))
}

func TestIntervalRelations(t *testing.T) {
	cases := []struct {
		name       string
		a, b       []Range
		intersects bool
		follows    bool
	}{
		{"overlap", []Range{{0, 4}}, []Range{{3, 6}}, true, false},
		{"adjacent", []Range{{0, 4}}, []Range{{4, 6}}, false, true},
		{"adjacent reversed", []Range{{4, 6}}, []Range{{0, 4}}, false, true},
		{"gap", []Range{{0, 4}}, []Range{{5, 6}}, false, false},
		{"hole", []Range{{0, 2}, {8, 10}}, []Range{{3, 7}}, false, false},
		{"into hole end", []Range{{0, 2}, {8, 10}}, []Range{{3, 9}}, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewInterval(1, asm.GP, tc.a...)
			b := NewInterval(2, asm.GP, tc.b...)
			assert.Equal(t, tc.intersects, a.Intersects(b))
			assert.Equal(t, tc.intersects, b.Intersects(a))
			assert.Equal(t, tc.follows, a.Follows(b))
		})
	}
}

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

func TestAnalyzeIntervals(t *testing.T) {
	res := Analyze(parseFunc(t, straightSrc), abi.SysV())

	require.Len(t, res.Order, 3)
	assert.Equal(t, 0, res.Block(0).From)
	assert.Equal(t, 4, res.Block(1).From)
	assert.Equal(t, 12, res.Block(2).To)
	assert.Equal(t, 13, res.NumPositions)

	cases := []struct {
		v    lir.Value
		want []Range
	}{
		{1, []Range{{0, 1}}},
		{2, []Range{{0, 5}}},
		{3, []Range{{1, 5}, {8, 9}}},
		{4, []Range{{5, 7}}},
		{5, []Range{{10, 11}}},
	}
	for _, tc := range cases {
		iv := res.Interval(tc.v)
		require.NotNil(t, iv, tc.v.String())
		assert.Equal(t, tc.want, iv.Ranges, tc.v.String())
	}

	assert.True(t, res.Block(1).LiveIn.Test(2))
	assert.True(t, res.Block(1).LiveIn.Test(3))
	assert.False(t, res.Block(2).LiveIn.Test(2))
	assert.True(t, res.Block(0).LiveOut.Test(3))

	var order []lir.Value
	for _, iv := range res.Intervals() {
		order = append(order, iv.Value)
	}
	assert.Equal(t, []lir.Value{1, 2, 3, 4, 5}, order)
}

func TestAnalyzeFixed(t *testing.T) {
	res := Analyze(parseFunc(t, straightSrc), abi.SysV())

	rcx := res.Fixed[asm.RCX]
	require.NotNil(t, rcx)
	assert.Equal(t, []Range{{4, 6}, {9, 10}}, rcx.Ranges)
	assert.Equal(t, []Range{{9, 10}}, res.Fixed[asm.RAX].Ranges)
	assert.Equal(t, []Range{{9, 10}}, res.Fixed[asm.XMM3].Ranges)
	assert.Nil(t, res.Fixed[asm.RBX], "callee-saved registers survive calls")

	// the shift count may not live in %rcx, the call result may live in %rax
	assert.True(t, res.Interval(2).Intersects(rcx))
	assert.False(t, res.Interval(5).Intersects(res.Fixed[asm.RAX]))
	assert.False(t, res.Interval(3).Intersects(res.Fixed[asm.RAX]), "last use at the call")
}

func TestAnalyzeLoop(t *testing.T) {
	src := `func @loop(i64 %1) {
b0:
  %2 = const i64 0
  jmp b1
b1:
  %2 = add i64 %2, %1
  br.lt i64 %2, 100, b1, b2
b2:
  ret i64 %2
}
`
	res := Analyze(parseFunc(t, src), abi.SysV())
	assert.Equal(t, []Range{{0, 8}}, res.Interval(1).Ranges)
	assert.Equal(t, []Range{{1, 9}}, res.Interval(2).Ranges)
	assert.True(t, res.Block(1).LiveOut.Test(1), "loop-carried parameter")
	assert.Empty(t, res.Fixed)
}

func TestPressure(t *testing.T) {
	res := Analyze(parseFunc(t, straightSrc), abi.SysV())
	p := res.Pressure()
	require.Len(t, p, 13)
	assert.Equal(t, 2, p[0])
	assert.Equal(t, 2, p[4])
	assert.Equal(t, 1, p[5])
	assert.Equal(t, 0, p[9])
	assert.Equal(t, 1, p[10])

	gp, vec := res.MaxPressure()
	assert.Equal(t, 2, gp)
	assert.Equal(t, 0, vec)
}

func TestDump(t *testing.T) {
	out := Analyze(parseFunc(t, straightSrc), abi.SysV()).Dump()
	assert.Contains(t, out, "liveness @f (13 positions)")
	assert.Contains(t, out, "b1 [4,8)")
	assert.Contains(t, out, "in  {%2 %3}")
	assert.Contains(t, out, "%3 gp [1,5) [8,9)")
	assert.Contains(t, out, "%rcx [4,6) [9,10)")
}
