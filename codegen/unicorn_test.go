//go:build unicorn
// +build unicorn

package codegen

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

const (
	emuBase  = 0x100000
	emuSize  = 0x10000
	emuStack = 0x200000
	emuStop  = 0x300000
)

const runSrc = `global @bias = i64 100

func @scale(i64 %1, i64 %2) {
b0:
  %3 = mul i64 %1, %2
  ret i64 %3
}

func @entry(i64 %1, i64 %2) {
b0:
  %3 = call i64 @scale(%1, %2)
  %4 = load i64 [@bias]
  %5 = add i64 %3, %4
  br.lt i64 %5, 0, b1, b2
b1:
  %6 = neg i64 %5
  ret i64 %6
b2:
  ret i64 %5
}
`

// run executes entry(a, b) under the emulator and returns rax.
func run(t *testing.T, image []byte, entry uint64, a, b int64) int64 {
	t.Helper()
	mu, err := uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
	require.NoError(t, err)
	defer mu.Close()

	require.NoError(t, mu.MemMap(emuBase, emuSize))
	require.NoError(t, mu.MemWrite(emuBase, image))
	require.NoError(t, mu.MemMap(emuStack-0x10000, 0x10000))
	require.NoError(t, mu.MemMap(emuStop, 0x1000))

	// as if called: rsp is 8 mod 16 and the return address is emuStop
	rsp := uint64(emuStack - 0x108)
	ret := make([]byte, 8)
	binary.LittleEndian.PutUint64(ret, emuStop)
	require.NoError(t, mu.MemWrite(rsp, ret))
	require.NoError(t, mu.RegWrite(uc.X86_REG_RSP, rsp))
	require.NoError(t, mu.RegWrite(uc.X86_REG_RDI, uint64(a)))
	require.NoError(t, mu.RegWrite(uc.X86_REG_RSI, uint64(b)))

	require.NoError(t, mu.Start(entry, emuStop))
	rax, err := mu.RegRead(uc.X86_REG_RAX)
	require.NoError(t, err)
	return int64(rax)
}

func TestEmulatedExecution(t *testing.T) {
	res := compile(t, runSrc)
	img, err := res.Image()
	require.NoError(t, err)
	image, err := img.Resolve(emuBase, nil)
	require.NoError(t, err)
	entry := uint64(emuBase + img.Symbols()["entry"].Offset)

	for _, tc := range []struct {
		a, b, want int64
	}{
		{3, 4, 112},
		{-10, 20, 100},
		{-50, 3, 50},
	} {
		assert.Equal(t, tc.want, run(t, image, entry, tc.a, tc.b), "entry(%d, %d)", tc.a, tc.b)
	}
}
