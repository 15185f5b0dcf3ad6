package link

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/data"
	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// fixture builds f (calls g directly and puts through the PLT), g (ret) and
// a data section {counter: 5, ptr @g}.
func fixture(t *testing.T, u interface {
	AddFunction(string, *asm.Code) error
	SetData(*data.Emitted) error
}, syms *symbols.Table) {
	t.Helper()
	g := syms.Intern("g", symbols.Internal)
	puts := syms.Intern("puts", symbols.External)

	f := &asm.Code{
		Bytes: []byte{0xE8, 0, 0, 0, 0, 0xE8, 0, 0, 0, 0, 0xC3},
		Relocs: []asm.Relocation{
			{Offset: 1, Symbol: g, Type: asm.RelocPC32, Addend: -4},
			{Offset: 6, Symbol: puts, Type: asm.RelocPLT32, Addend: -4},
		},
	}
	require.NoError(t, u.AddFunction("f", f))
	require.NoError(t, u.AddFunction("g", &asm.Code{Bytes: []byte{0xC3}}))

	sec := data.NewSection(syms)
	_, err := sec.Add("counter", symbols.Default, data.Scalar{Width: data.QWord, Value: 5})
	require.NoError(t, err)
	_, err = sec.Add("gp", symbols.Default, data.Pointer{Symbol: "g"})
	require.NoError(t, err)
	emitted, err := sec.Emit()
	require.NoError(t, err)
	require.NoError(t, u.SetData(emitted))
}

func TestImageLayoutAndSymbols(t *testing.T) {
	syms := symbols.NewTable()
	img := NewImage(syms)
	fixture(t, img, syms)

	layout := img.Layout()
	require.Len(t, layout, 32+16)
	assert.Equal(t, byte(0xCC), layout[11], "padding between functions")
	assert.Equal(t, byte(0xC3), layout[16])
	assert.Equal(t, byte(0xCC), layout[17], "padding before data")
	assert.Equal(t, byte(5), layout[32])

	got := img.Symbols()
	assert.Equal(t, Extent{Section: Text, Offset: 0, Length: 11}, got["f"])
	assert.Equal(t, Extent{Section: Text, Offset: 16, Length: 1}, got["g"])
	assert.Equal(t, Extent{Section: Data, Offset: 32, Length: 8}, got["counter"])
	assert.Equal(t, Extent{Section: Data, Offset: 40, Length: 8}, got["gp"])
}

func TestImageResolve(t *testing.T) {
	syms := symbols.NewTable()
	img := NewImage(syms)
	fixture(t, img, syms)

	const base = 0x10000
	out, err := img.Resolve(base, map[string]uint64{"puts": 0x20000})
	require.NoError(t, err)

	// call g: 16 - (0 + 5)
	assert.Equal(t, int32(11), int32(binary.LittleEndian.Uint32(out[1:])))
	// call puts: absolute target minus the end of the call
	assert.Equal(t, int32(0x20000-(base+10)), int32(binary.LittleEndian.Uint32(out[6:])))
	// data pointer to g is absolute
	assert.Equal(t, uint64(base+16), binary.LittleEndian.Uint64(out[40:]))
	// the layout itself is untouched
	assert.Equal(t, []byte{0, 0, 0, 0}, img.Layout()[1:5])
}

func TestImageResolvePLTFallsBackToDefinition(t *testing.T) {
	syms := symbols.NewTable()
	img := NewImage(syms)
	fixture(t, img, syms)
	require.NoError(t, img.AddFunction("puts", &asm.Code{Bytes: []byte{0xC3}}))

	out, err := img.Resolve(0, nil)
	require.NoError(t, err)
	// puts is placed at 32, the data section moves to 48
	assert.Equal(t, int32(32-10), int32(binary.LittleEndian.Uint32(out[6:])))
	assert.Equal(t, uint64(16), binary.LittleEndian.Uint64(out[56:]))
}

func TestImageResolveErrors(t *testing.T) {
	syms := symbols.NewTable()
	img := NewImage(syms)
	fixture(t, img, syms)

	_, err := img.Resolve(0x10000, nil)
	require.ErrorIs(t, err, x64errors.ErrUnresolvedSymbol)

	_, err = img.Resolve(0x10000, map[string]uint64{"puts": 1 << 40})
	require.ErrorIs(t, err, x64errors.ErrEncodingRange)
}

func TestDuplicateDefinitions(t *testing.T) {
	syms := symbols.NewTable()
	img := NewImage(syms)
	require.NoError(t, img.AddFunction("f", &asm.Code{Bytes: []byte{0xC3}}))
	err := img.AddFunction("f", &asm.Code{Bytes: []byte{0xC3}})
	require.ErrorIs(t, err, x64errors.ErrDuplicateSymbol)

	sec := data.NewSection(syms)
	_, err = sec.Add("f", symbols.Default, data.Scalar{Width: data.Byte})
	require.NoError(t, err)
	emitted, err := sec.Emit()
	require.NoError(t, err)
	require.ErrorIs(t, img.SetData(emitted), x64errors.ErrDuplicateSymbol)
}

func TestObjectKeepsRelocations(t *testing.T) {
	syms := symbols.NewTable()
	obj := NewObject(syms)
	fixture(t, obj, syms)

	assert.Equal(t, []ObjectReloc{
		{Section: Text, Offset: 1, Symbol: "g", Type: asm.RelocPC32, Addend: -4},
		{Section: Text, Offset: 6, Symbol: "puts", Type: asm.RelocPLT32, Addend: -4},
		{Section: Data, Offset: 8, Symbol: "g", Type: asm.RelocGlobDat},
	}, obj.Relocations())
	// nothing is patched
	assert.Equal(t, []byte{0xE8, 0, 0, 0, 0}, obj.Text()[:5])

	syms1 := obj.Symbols()
	require.Len(t, syms1, 5)
	assert.Equal(t, "f", syms1[0].Name)
	assert.Equal(t, ObjectSymbol{Name: "puts", Linkage: symbols.External}, syms1[4])
	assert.Contains(t, obj.Dump(), "text+0x0006 R_X86_64_PLT32     puts-4")
}
