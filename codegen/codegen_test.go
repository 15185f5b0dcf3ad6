package codegen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/codecache"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/link"
	"github.com/colorfulnotion/lirx64/x64errors"
)

const moduleSrc = `extern @puts

global @counter = i64 5
global @msg = str "hi"
global @ptr = ptr @counter+8

func @twice(i64 %1) {
b0:
  %2 = add i64 %1, %1
  ret i64 %2
}

func @main(i64 %1) {
b0:
  %2 = call i64 @twice(%1)
  %3 = call i64 @puts(@msg)
  ret i64 %2
}
`

func compile(t *testing.T, src string, opts ...Option) *Result {
	t.Helper()
	m, err := lir.Parse(src)
	require.NoError(t, err)
	cfg := DefaultConfig()
	c, err := NewCompiler(cfg, opts...)
	require.NoError(t, err)
	res, err := c.CompileModule(context.Background(), m)
	require.NoError(t, err)
	return res
}

func TestCompileModuleObject(t *testing.T) {
	res := compile(t, moduleSrc)
	require.Len(t, res.Funcs, 2)
	assert.Equal(t, "twice", res.Funcs[0].Name)
	assert.Equal(t, "main", res.Funcs[1].Name)
	assert.Equal(t, 24, len(res.Emitted.Bytes))

	obj, err := res.Object()
	require.NoError(t, err)

	type kind struct {
		Section link.Section
		Symbol  string
		Type    asm.RelocType
	}
	var got []kind
	for _, r := range obj.Relocations() {
		got = append(got, kind{r.Section, r.Symbol, r.Type})
	}
	assert.Equal(t, []kind{
		{link.Text, "twice", asm.RelocPC32},
		{link.Text, "msg", asm.RelocPC32},
		{link.Text, "puts", asm.RelocPLT32},
		{link.Data, "counter", asm.RelocGlobDat},
	}, got)
	relocs := obj.Relocations()
	assert.Equal(t, uint32(16), relocs[3].Offset)
	assert.Equal(t, int64(8), relocs[3].Addend)

	main, ok := obj.Extent("main")
	require.True(t, ok)
	assert.Equal(t, 0, main.Offset%link.FunctionAlign)

	listing := res.Listing()
	assert.Contains(t, listing, "main: ;")
	assert.Contains(t, listing, "; reloc")
}

func TestCompileModuleImageResolves(t *testing.T) {
	res := compile(t, moduleSrc)
	img, err := res.Image()
	require.NoError(t, err)

	_, err = img.Resolve(0x400000, nil)
	require.ErrorIs(t, err, x64errors.ErrUnresolvedSymbol)

	out, err := img.Resolve(0x400000, map[string]uint64{"puts": 0x401000})
	require.NoError(t, err)
	assert.Len(t, out, len(img.Layout()))
}

func TestCompileUsesCache(t *testing.T) {
	cache, err := codecache.Open("")
	require.NoError(t, err)
	defer cache.Close()

	first := compile(t, moduleSrc, WithCache(cache))
	second := compile(t, moduleSrc, WithCache(cache))
	for i := range first.Funcs {
		assert.False(t, first.Funcs[i].Cached)
		assert.True(t, second.Funcs[i].Cached)
		assert.Equal(t, first.Funcs[i].Code.Bytes, second.Funcs[i].Code.Bytes)
		assert.Len(t, second.Funcs[i].Code.Relocs, len(first.Funcs[i].Code.Relocs))
	}
	hits, misses := cache.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(2), misses)

	// the callee becoming external changes the lowering, so the key changes
	external := `extern @twice

func @main(i64 %1) {
b0:
  %2 = call i64 @twice(%1)
  %3 = call i64 @puts(@msg)
  ret i64 %2
}
`
	res := compile(t, external, WithCache(cache))
	assert.False(t, res.Funcs[0].Cached)
}

func TestCompileErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		want error
	}{
		{
			"duplicate function",
			"func @f() {\nb0:\n  ret\n}\nfunc @f() {\nb0:\n  ret\n}\n",
			x64errors.ErrDuplicateSymbol,
		},
		{
			"global named like a function",
			"global @f = i64 1\nfunc @f() {\nb0:\n  ret\n}\n",
			x64errors.ErrDuplicateSymbol,
		},
		{
			"too many arguments",
			"func @f(i64 %1) {\nb0:\n  call void @g(%1, %1, %1, %1, %1, %1, %1)\n  ret\n}\n",
			x64errors.ErrTooManyArguments,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m, err := lir.Parse(tc.src)
			require.NoError(t, err)
			c, err := NewCompiler(DefaultConfig())
			require.NoError(t, err)
			_, err = c.CompileModule(context.Background(), m)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCompileRecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	compile(t, moduleSrc, WithTracerProvider(tp))
	names := map[string]int{}
	for _, s := range sr.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, map[string]int{"CompileModule": 1, "CompileFunc": 2}, names)
}

func TestFailedCompileTagsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	m, err := lir.Parse("func @f(i64 %1) {\nb0:\n  call void @g(%1, %1, %1, %1, %1, %1, %1)\n  ret\n}\n")
	require.NoError(t, err)
	c, err := NewCompiler(DefaultConfig(), WithTracerProvider(tp))
	require.NoError(t, err)
	_, err = c.CompileModule(context.Background(), m)
	require.ErrorIs(t, err, x64errors.ErrTooManyArguments)

	kinds := map[string]string{}
	for _, s := range sr.Ended() {
		for _, kv := range s.Attributes() {
			if kv.Key == "error.kind" {
				kinds[s.Name()] = kv.Value.AsString()
			}
		}
	}
	assert.Equal(t, map[string]string{
		"CompileFunc":   "F2_TooManyArguments",
		"CompileModule": "F2_TooManyArguments",
	}, kinds)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	cfg, err := LoadConfig(write("ok.json", `{"mode": "jit", "trace_modules": ["isel"], "jobs": 2}`))
	require.NoError(t, err)
	assert.Equal(t, ModeJIT, cfg.Mode)
	assert.Equal(t, "sysv", cfg.CallConv)
	assert.Equal(t, []string{"isel"}, cfg.TraceModules)
	assert.Equal(t, 2, cfg.Jobs)

	_, err = LoadConfig(write("mode.json", `{"mode": "elf"}`))
	require.ErrorIs(t, err, x64errors.ErrUnknownOutputMode)
	_, err = LoadConfig(write("cc.json", `{"call_conv": "win64"}`))
	require.ErrorIs(t, err, x64errors.ErrUnknownCallConv)
	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestPressure(t *testing.T) {
	m, err := lir.Parse(moduleSrc)
	require.NoError(t, err)
	c, err := NewCompiler(DefaultConfig())
	require.NoError(t, err)

	p := c.Pressure(m.Func("twice"))
	assert.Equal(t, "twice", p.Func)
	assert.Equal(t, 1, p.MaxGP)
	assert.Equal(t, 0, p.MaxVector)
	assert.NotEmpty(t, p.PerPosition)
}
