//go:build linux && amd64 && cgo

package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/data"
	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

func TestExecutableCall(t *testing.T) {
	syms := symbols.NewTable()
	img := NewImage(syms)
	// mov %rdi, %rax; add %rsi, %rax; ret
	require.NoError(t, img.AddFunction("add", &asm.Code{Bytes: []byte{0x48, 0x89, 0xF8, 0x48, 0x01, 0xF0, 0xC3}}))
	sec := data.NewSection(syms)
	_, err := sec.Add("word", symbols.Default, data.Scalar{Width: data.QWord, Value: 1})
	require.NoError(t, err)
	emitted, err := sec.Emit()
	require.NoError(t, err)
	require.NoError(t, img.SetData(emitted))

	exe, err := Load(img, nil)
	if err != nil {
		t.Skipf("mapping executable memory not permitted: %v", err)
	}
	defer exe.Close()

	for _, tc := range []struct {
		a, b, want int64
	}{
		{2, 3, 5},
		{-7, 7, 0},
		{1 << 40, -1, 1<<40 - 1},
	} {
		got, err := exe.Call("add", tc.a, tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "add(%d, %d)", tc.a, tc.b)
	}

	_, err = exe.Call("missing")
	assert.ErrorIs(t, err, x64errors.ErrUnresolvedSymbol)
	_, err = exe.Call("word")
	assert.ErrorIs(t, err, x64errors.ErrUnresolvedSymbol)
	_, err = exe.Call("add", 1, 2, 3, 4, 5, 6, 7)
	assert.ErrorIs(t, err, x64errors.ErrTooManyArguments)

	require.NoError(t, exe.Close())
	_, err = exe.Call("add", 1, 2)
	assert.ErrorIs(t, err, x64errors.ErrUnresolvedSymbol)
}
