package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/lirx64/codegen"
)

func TestDecodeHex(t *testing.T) {
	for _, in := range []string{"48 89 c8", "4889C8", "0x48,0x89,0xc8"} {
		b, err := decodeHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, []byte{0x48, 0x89, 0xC8}, b, in)
	}
	_, err := decodeHex("4")
	assert.Error(t, err)
}

func TestConsole(t *testing.T) {
	cfg = codegen.DefaultConfig()
	var out bytes.Buffer
	con, err := newConsole(context.Background(), &out)
	require.NoError(t, err)

	got, err := con.Eval(`disasm("c3")`)
	require.NoError(t, err)
	assert.Contains(t, got, "ret")

	got, err = con.Eval("compile(\"func @f(i64 %1) {\\nb0:\\n  ret i64 %1\\n}\\n\")")
	require.NoError(t, err)
	assert.Contains(t, got, "f: ;")

	got, err = con.Eval("pressure(\"func @f(i64 %1) {\\nb0:\\n  ret i64 %1\\n}\\n\")")
	require.NoError(t, err)
	assert.Contains(t, got, "gp:1")

	_, err = con.Eval(`print("a", 1)`)
	require.NoError(t, err)
	assert.Equal(t, "a 1\n", out.String())

	_, err = con.Eval(`compile("func @f(")`)
	assert.Error(t, err)
}
