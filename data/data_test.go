package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

func TestAggregateWithPointer(t *testing.T) {
	syms := symbols.NewTable()
	slot := Aggregate{Children: []Slot{
		Scalar{Width: DWord, Value: 0x11223344},
		Pointer{Symbol: "target", Addend: 16},
	}}
	require.Equal(t, 12, slot.Size())

	buf := asm.NewBuffer(16)
	relocs, err := EmitSlot(buf, syms, slot)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11, 0, 0, 0, 0, 0, 0, 0, 0}, buf.Bytes())

	require.Len(t, relocs, 1)
	assert.Equal(t, asm.RelocGlobDat, relocs[0].Type)
	assert.Equal(t, uint32(4), relocs[0].Offset)
	assert.Equal(t, int64(16), relocs[0].Addend)
	assert.Equal(t, "target", syms.Name(relocs[0].Symbol))
}

func TestSlotSizes(t *testing.T) {
	cases := []struct {
		name string
		slot Slot
		size int
	}{
		{"byte", Scalar{Width: Byte, Value: 7}, 1},
		{"word", Scalar{Width: Word}, 2},
		{"qword", Scalar{Width: QWord}, 8},
		{"empty string", String{}, 8},
		{"seven chars", String{Value: "1234567"}, 8},
		{"eight chars", String{Value: "12345678"}, 16},
		{"pointer", Pointer{Symbol: "x"}, 8},
		{"empty aggregate", Aggregate{}, 0},
		{"no padding between children", Aggregate{Children: []Slot{
			Scalar{Width: Byte}, Scalar{Width: QWord}, Scalar{Width: Word},
		}}, 11},
		{"nested", Aggregate{Children: []Slot{
			Scalar{Width: Byte},
			Aggregate{Children: []Slot{
				Scalar{Width: Word},
				Aggregate{Children: []Slot{String{Value: "abc"}, Pointer{Symbol: "y"}}},
			}},
		}}, 1 + 2 + 8 + 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.size, tc.slot.Size())
			var counter asm.SizeCounter
			_, err := EmitSlot(&counter, symbols.NewTable(), tc.slot)
			require.NoError(t, err)
			assert.Equal(t, tc.size, counter.Size(), "emitted bytes match Size")
		})
	}
}

func TestStringPadding(t *testing.T) {
	buf := asm.NewBuffer(8)
	_, err := EmitSlot(buf, symbols.NewTable(), String{Value: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []byte{'h', 'i', 0, 0, 0, 0, 0, 0}, buf.Bytes())
}

func TestSectionLayout(t *testing.T) {
	syms := symbols.NewTable()
	sec := NewSection(syms)
	a, err := sec.Add("a", symbols.Default, Scalar{Width: Byte, Value: 1})
	require.NoError(t, err)
	b, err := sec.Add("b", symbols.Internal, Aggregate{Children: []Slot{
		Scalar{Width: DWord, Value: 2}, Pointer{Symbol: "a"},
	}})
	require.NoError(t, err)

	_, err = sec.Add("a", symbols.Default, Scalar{Width: Byte})
	require.ErrorIs(t, err, x64errors.ErrDuplicateSlot)

	out, err := sec.Emit()
	require.NoError(t, err)
	assert.Equal(t, Placement{Offset: 0, Length: 1}, out.Symbols[a])
	assert.Equal(t, Placement{Offset: 8, Length: 12}, out.Symbols[b])
	assert.Len(t, out.Bytes, 20)
	require.Len(t, out.Relocs, 1)
	assert.Equal(t, uint32(12), out.Relocs[0].Offset)
	assert.Equal(t, a, out.Relocs[0].Symbol)
	assert.Equal(t, symbols.Internal, syms.Get(b).Linkage)
}

func TestSectionPointerAfterScalar(t *testing.T) {
	syms := symbols.NewTable()
	sec := NewSection(syms)
	a, err := sec.Add("a", symbols.Default, Scalar{Width: QWord, Value: 1})
	require.NoError(t, err)
	p, err := sec.Add("p", symbols.Default, Pointer{Symbol: "a"})
	require.NoError(t, err)
	q, err := sec.Add("q", symbols.Default, Aggregate{Children: []Slot{
		Pointer{Symbol: "p"}, Pointer{Symbol: "a", Addend: 4},
	}})
	require.NoError(t, err)

	out, err := sec.Emit()
	require.NoError(t, err)
	assert.Len(t, out.Bytes, 32)
	assert.Equal(t, Placement{Offset: 8, Length: 8}, out.Symbols[p])
	assert.Equal(t, Placement{Offset: 16, Length: 16}, out.Symbols[q])

	require.Len(t, out.Relocs, 3)
	for i, want := range []struct {
		offset uint32
		sym    symbols.ID
	}{{8, a}, {16, p}, {24, a}} {
		assert.Equal(t, want.offset, out.Relocs[i].Offset, "reloc %d", i)
		assert.Equal(t, want.sym, out.Relocs[i].Symbol, "reloc %d", i)
		assert.LessOrEqual(t, int(want.offset)+8, len(out.Bytes))
	}
}

func TestEmitSlotOffsetsAreSlotRelative(t *testing.T) {
	buf := asm.NewBuffer(32)
	buf.Emit64(0xdeadbeef)
	relocs, err := EmitSlot(buf, symbols.NewTable(), Aggregate{Children: []Slot{
		Scalar{Width: Word}, Pointer{Symbol: "x"},
	}})
	require.NoError(t, err)
	require.Len(t, relocs, 1)
	assert.Equal(t, uint32(2), relocs[0].Offset)
	assert.Equal(t, 18, buf.Size())
}

func TestAddGlobals(t *testing.T) {
	m, err := lir.Parse(`global @counter = i64 5
internal global @msg = str "hi"
global @tab = {i32 1, {i8 2, f64 1.5}, ptr @counter+8}
`)
	require.NoError(t, err)

	sec := NewSection(symbols.NewTable())
	require.NoError(t, sec.AddGlobals(m))
	assert.Equal(t, 3, sec.Len())

	tab, ok := sec.Lookup("tab")
	require.True(t, ok)
	assert.Equal(t, 4+1+8+8, tab.Slot.Size())

	out, err := sec.Emit()
	require.NoError(t, err)
	// counter at 0, msg at 8, tab at 16; the pointer follows 13 bytes of tab
	require.Len(t, out.Relocs, 1)
	assert.Equal(t, uint32(16+13), out.Relocs[0].Offset)
	assert.Equal(t, int64(8), out.Relocs[0].Addend)
	assert.Equal(t, byte(5), out.Bytes[0])
	assert.Equal(t, []byte("hi\x00"), out.Bytes[8:11])
}

func TestDump(t *testing.T) {
	slot := Aggregate{Children: []Slot{
		Scalar{Width: DWord, Value: 1},
		Aggregate{Children: []Slot{Scalar{Width: Byte, Value: 2}}},
		Pointer{Symbol: "counter", Addend: 8},
	}}
	out := Dump(slot)
	for _, want := range []string{"aggregate (13 bytes)", "dword 1", "aggregate (1 bytes)", "byte 2", "ptr @counter+8"} {
		assert.Contains(t, out, want)
	}
}
