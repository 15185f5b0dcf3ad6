package codecache

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/symbols"
)

func TestKeyDependsOnConventionAndText(t *testing.T) {
	a := KeyFor("func @f() {}", "sysv")
	assert.Equal(t, a, KeyFor("func @f() {}", "sysv"))
	assert.NotEqual(t, a, KeyFor("func @f() {}", "win64"))
	assert.NotEqual(t, a, KeyFor("func @g() {}", "sysv"))
	assert.Len(t, a.String(), 64)
}

func TestEntryRebindsSymbols(t *testing.T) {
	src := symbols.NewTable()
	g := src.Intern("g", symbols.Internal)
	code := &asm.Code{
		Bytes:  []byte{0xE8, 0, 0, 0, 0, 0xC3},
		Relocs: []asm.Relocation{{Offset: 1, Symbol: g, Type: asm.RelocPLT32, Addend: -4}},
	}
	e := NewEntry(code, src)
	assert.Equal(t, []Reloc{{Offset: 1, Symbol: "g", Type: asm.RelocPLT32, Addend: -4}}, e.Relocs)

	// a different table assigns different handles
	dst := symbols.NewTable()
	dst.Intern("other", symbols.Default)
	back := e.Rebind(dst)
	require.Len(t, back.Relocs, 1)
	assert.Equal(t, "g", dst.Name(back.Relocs[0].Symbol))
	assert.NotEqual(t, g, back.Relocs[0].Symbol)
	assert.Equal(t, code.Bytes, back.Bytes)
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := Open("")
	require.NoError(t, err)
	defer c.Close()

	key := KeyFor("func @f() {}", "sysv")
	_, ok, err := c.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := &Entry{
		Code:   bytes.Repeat([]byte{0x90}, 300),
		Relocs: []Reloc{{Offset: 12, Symbol: "memcpy", Type: asm.RelocPLT32, Addend: -4}},
		Spills: 2,
		Frame:  16,
	}
	require.NoError(t, c.Put(key, want))
	got, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.Delete(key))
	_, ok, err = c.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachePersistsOnDisk(t *testing.T) {
	dir := t.TempDir()
	key := KeyFor("func @f() {}", "sysv")

	c, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, c.Put(key, &Entry{Code: []byte{0xC3}}))
	require.NoError(t, c.Close())

	c, err = Open(dir)
	require.NoError(t, err)
	defer c.Close()
	got, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0xC3}, got.Code)
}

func TestCompression(t *testing.T) {
	for _, tc := range []struct {
		name  string
		plain []byte
		tag   byte
	}{
		{"repetitive", bytes.Repeat([]byte(`{"code":"kJCQ"}`), 64), tagLZ4},
		{"tiny", []byte(`{}`), tagRaw},
	} {
		t.Run(tc.name, func(t *testing.T) {
			stored, err := compress(tc.plain)
			require.NoError(t, err)
			assert.Equal(t, tc.tag, stored[0])
			back, err := decompress(stored)
			require.NoError(t, err)
			assert.Equal(t, tc.plain, back)
		})
	}

	_, err := decompress([]byte{'x', 1, 0})
	assert.ErrorIs(t, err, errCorrupt)
	_, err = decompress([]byte{tagRaw, 5, 0})
	assert.ErrorIs(t, err, errCorrupt)
}

func TestDecompressRejectsOversizeLength(t *testing.T) {
	for _, size := range []uint64{maxValueSize + 1, 1 << 62, 4*maxLZ4Ratio + 1} {
		stored := binary.AppendUvarint([]byte{tagLZ4}, size)
		stored = append(stored, 0x10, 'a', 0, 0)
		_, err := decompress(stored)
		assert.ErrorIs(t, err, errCorrupt, "size %d", size)
	}
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	c, err := Open("")
	require.NoError(t, err)
	defer c.Close()

	key := KeyFor("func @f() {}", "sysv")
	huge := binary.AppendUvarint([]byte{tagLZ4}, 1<<40)
	require.NoError(t, c.db.Put(key[:], append(huge, 0x10, 'a'), nil))

	e, ok, err := c.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, e)
	_, misses := c.Stats()
	assert.Equal(t, uint64(1), misses)
	n, err := c.Len()
	require.NoError(t, err)
	assert.Zero(t, n, "corrupt value is removed")
}
