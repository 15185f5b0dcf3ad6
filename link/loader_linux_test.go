//go:build linux && amd64

package link

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/symbols"
)

func TestLoadPlacesDataOnItsOwnPage(t *testing.T) {
	syms := symbols.NewTable()
	img := NewImage(syms)
	fixture(t, img, syms)

	require.NoError(t, img.AddFunction("puts", &asm.Code{Bytes: []byte{0xC3}}))

	exe, err := Load(img, nil)
	if err != nil {
		t.Skipf("mapping executable memory not permitted: %v", err)
	}
	defer exe.Close()

	page := unix.Getpagesize()
	f, ok := exe.Addr("f")
	require.True(t, ok)
	g, ok := exe.Addr("g")
	require.True(t, ok)
	counter, ok := exe.Addr("counter")
	require.True(t, ok)
	puts, ok := exe.Addr("puts")
	require.True(t, ok)
	_, ok = exe.Addr("missing")
	assert.False(t, ok)

	assert.Equal(t, exe.Base(), f)
	assert.Equal(t, uintptr(16), g-f)
	assert.Equal(t, uintptr(page), counter-f)

	mem := exe.Bytes()
	assert.Equal(t, uint64(5), binary.LittleEndian.Uint64(mem[page:]))
	assert.Equal(t, uint64(g), binary.LittleEndian.Uint64(mem[page+8:]))
	assert.Equal(t, int32(11), int32(binary.LittleEndian.Uint32(mem[1:])))
	assert.Equal(t, int32(puts-f-10), int32(binary.LittleEndian.Uint32(mem[6:])))

	// data stays writable
	mem[page] = 7
	require.NoError(t, exe.Close())
	assert.Nil(t, exe.Bytes())
}

func TestLoadLeavesImageLayoutUnchanged(t *testing.T) {
	syms := symbols.NewTable()
	img := NewImage(syms)
	fixture(t, img, syms)
	require.NoError(t, img.AddFunction("puts", &asm.Code{Bytes: []byte{0xC3}}))
	layout := img.Layout()
	symbolsBefore := img.Symbols()

	for i := 0; i < 2; i++ {
		exe, err := Load(img, nil)
		if err != nil {
			t.Skipf("mapping executable memory not permitted: %v", err)
		}
		counter, ok := exe.Addr("counter")
		require.True(t, ok)
		assert.Equal(t, uintptr(unix.Getpagesize()), counter-exe.Base(), "load %d", i)
		require.NoError(t, exe.Close())

		assert.Equal(t, layout, img.Layout(), "load %d", i)
		assert.Equal(t, symbolsBefore, img.Symbols(), "load %d", i)
	}
	assert.Equal(t, 48, symbolsBefore["counter"].Offset)
}
