package isel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/lirx64/abi"
	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/lir"
	"github.com/colorfulnotion/lirx64/liveness"
	"github.com/colorfulnotion/lirx64/regalloc"
	"github.com/colorfulnotion/lirx64/symbols"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// listing selects the first function of src and returns the AT&T text of
// every instruction emitted.
func listing(t *testing.T, src string, syms *symbols.Table) ([]string, *asm.Code) {
	t.Helper()
	m, err := lir.Parse(src)
	require.NoError(t, err)
	return listFunc(t, m.Funcs[0], syms)
}

func listFunc(t *testing.T, fn *lir.Func, syms *symbols.Table) ([]string, *asm.Code) {
	t.Helper()
	if syms == nil {
		syms = symbols.NewTable()
	}
	cc := abi.SysV()
	alloc := regalloc.Allocate(liveness.Analyze(fn, cc), cc)
	s := newSelector(asm.NewBuffer(64), fn, alloc, cc, syms)
	var out []string
	s.a.Trace = func(_, _ int, in asm.Inst) {
		out = append(out, in.Format(syms.Name))
	}
	code, err := s.run()
	require.NoError(t, err)
	return out, code
}

const branchSrc = `func @f(i64 %1, i64 %2) {
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

func TestSelectBranchesAndCalls(t *testing.T) {
	got, code := listing(t, branchSrc, nil)
	want := []string{
		"pushq %rbp",
		"movq %rsp, %rbp",
		"movq %rdi, %rax",
		"movq %rsi, %rdx",
		// b0
		"addq %rdx, %rax",
		"cmpq $10, %rax",
		"jge .L3",
		// b1 falls through from b0
		"movq %rdx, %rcx",
		"movq %rax, %rdx",
		"shlq %cl, %rdx",
		"movq %rdx, %rax",
		"leave",
		"ret",
		// b2
		"movq %rax, %rdi",
		"xorl %eax, %eax",
		"call g@PLT",
		"leave",
		"ret",
	}
	assert.Equal(t, want, got)

	require.Len(t, code.Relocs, 1)
	assert.Equal(t, asm.RelocPLT32, code.Relocs[0].Type)
}

func TestSelectInternalCallUsesPC32(t *testing.T) {
	syms := symbols.NewTable()
	_, err := syms.Declare("g", symbols.Internal)
	require.NoError(t, err)

	got, code := listing(t, branchSrc, syms)
	assert.Contains(t, got, "call g")
	assert.NotContains(t, got, "xorl %eax, %eax")
	require.Len(t, code.Relocs, 1)
	assert.Equal(t, asm.RelocPC32, code.Relocs[0].Type)
}

func TestSelectSubtractIntoSecondOperand(t *testing.T) {
	src := `func @rsub(i64 %1, i64 %2) {
b0:
  %3 = sub i64 %2, %1
  ret i64 %3
}
`
	got, _ := listing(t, src, nil)
	assert.Equal(t, []string{
		"pushq %rbp",
		"movq %rsp, %rbp",
		"movq %rdi, %rax",
		"movq %rsi, %rcx",
		"negq %rax",
		"addq %rcx, %rax",
		"leave",
		"ret",
	}, got)
}

func TestSelectUnsignedToFloat(t *testing.T) {
	src := `func @u2f(i64 %1) {
b0:
  %2 = utof.i64 f64 %1
  ret f64 %2
}
`
	got, code := listing(t, src, nil)
	assert.Equal(t, []string{
		"pushq %rbp",
		"movq %rsp, %rbp",
		"movq %rdi, %rax",
		"testq %rax, %rax",
		"js .L2",
		"cvtsi2sdq %rax, %xmm0",
		"jmp .L3",
		"movq %rax, %r11",
		"shrq $1, %r11",
		"movq %rax, %r10",
		"andq $1, %r10",
		"orq %r10, %r11",
		"cvtsi2sdq %r11, %xmm0",
		"addsd %xmm0, %xmm0",
		"leave",
		"ret",
	}, got)
	assert.Empty(t, code.Relocs)
}

func TestSelectFloatNegate(t *testing.T) {
	src := `func @fneg(f64 %1) {
b0:
  %2 = neg f64 %1
  ret f64 %2
}
`
	got, _ := listing(t, src, nil)
	assert.Equal(t, []string{
		"pushq %rbp",
		"movq %rsp, %rbp",
		"movabsq $-9223372036854775808, %r11",
		"movq %r11, %xmm15",
		"xorps %xmm15, %xmm0",
		"leave",
		"ret",
	}, got)
}

func TestSelectConditionalMoveAliasingTrueValue(t *testing.T) {
	src := `func @min(i64 %1, i64 %2) {
b0:
  %3 = select.lt i64 %1, %2, %1, %2
  ret i64 %3
}
`
	got, _ := listing(t, src, nil)
	assert.Equal(t, []string{
		"pushq %rbp",
		"movq %rsp, %rbp",
		"movq %rdi, %rax",
		"movq %rsi, %rcx",
		"cmpq %rcx, %rax",
		"cmovgeq %rcx, %rax",
		"leave",
		"ret",
	}, got)
}

func TestParallelMoveBreaksCycles(t *testing.T) {
	syms := symbols.NewTable()
	s := newSelector(asm.NewBuffer(16), &lir.Func{Name: "swap"}, nil, abi.SysV(), syms)
	var got []string
	s.a.Trace = func(_, _ int, in asm.Inst) { got = append(got, in.Format(syms.Name)) }

	err := s.parallelMove([]parallelMove{
		{t: lir.I64, dst: asm.R(asm.RDI), src: asm.R(asm.RSI)},
		{t: lir.I64, dst: asm.R(asm.RSI), src: asm.R(asm.RDI)},
		{t: lir.I32, dst: asm.R(asm.EDX), src: asm.I(7)},
		{t: lir.I64, dst: asm.M(asm.Mem(asm.RBP, -8)), src: asm.R(asm.RDX)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"movq %rdx, -8(%rbp)",
		"movq %rdi, %r11",
		"movq %rsi, %rdi",
		"movq %r11, %rsi",
		"movl $7, %edx",
	}, got)
}

func TestSelectTooManyArguments(t *testing.T) {
	b := lir.NewBuilder("many", symbols.Default)
	b.Block()
	args := make([]lir.Arg, 7)
	for i := range args {
		args[i] = lir.C(int64(i))
	}
	r := b.Call(lir.I64, "g", args...)
	b.Ret(lir.I64, lir.V(r))
	fn := b.Func()

	cc := abi.SysV()
	alloc := regalloc.Allocate(liveness.Analyze(fn, cc), cc)
	_, err := Select(fn, alloc, cc, symbols.NewTable())
	require.ErrorIs(t, err, x64errors.ErrTooManyArguments)
}

func TestFlagsSurviveUntilConsumer(t *testing.T) {
	s := newSelector(asm.NewBuffer(16), &lir.Func{Name: "flags"}, nil, abi.SysV(), symbols.NewTable())
	s.flagsLive = true
	err := s.emit2(asm.ADD, 8, asm.R(asm.RAX), asm.I(1))
	require.ErrorIs(t, err, x64errors.ErrUnsupportedOperands)

	// zeroing a register must not use xor while flags are live
	require.NoError(t, s.move(lir.I64, asm.R(asm.RAX), asm.I(0)))
	got, err := s.a.Finish()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0xB8, 0, 0, 0, 0, 0, 0, 0, 0}, got.Bytes)
}

const everyOpSrc = `extern @memcpy

global @counter = i64 5

func @main(i64 %1, f64 %2) {
b0:
  %3 = const i64 -7
  %4 = load i32 [%1+8]
  store i32 [@counter], %4
  %5 = loadidx i32 [%1+%3*4-16]
  %6 = sext.i32 i64 %5
  %7 = setcc.lt i64 %1, %6
  %8 = select.ult i64 %1, %6, %3, 7
  %9 = addr i64 [@counter+8]
  %10 = call i64 @memcpy(%9, %1, 16)
  call void @memcpy()
  %11 = const f64 2.5
  %12 = mul f64 %2, %11
  %13 = ftoi.f64 i32 %12
  %14 = itof.i8 f32 %7
  %15 = fext.f32 f64 %14
  %16 = zext.i8 i64 %7
  %17 = sar i64 %16, %3
  br.ge i64 %8, %10, b1, b2
b1:
  storeidx i64 [%1+%3*8], %10
  store f64 [%1], %15
  jmp b2
b2:
  ret i64 %3
}
`

func TestSizeCounterMatchesBuffer(t *testing.T) {
	m, err := lir.Parse(everyOpSrc)
	require.NoError(t, err)
	fn := m.Func("main")
	cc := abi.SysV()
	alloc := regalloc.Allocate(liveness.Analyze(fn, cc), cc)

	code, err := Select(fn, alloc, cc, symbols.NewTable())
	require.NoError(t, err)

	var counter asm.SizeCounter
	sized, err := SelectInto(&counter, fn, alloc, cc, symbols.NewTable())
	require.NoError(t, err)
	assert.Equal(t, len(code.Bytes), counter.Size())
	assert.Equal(t, len(code.Relocs), len(sized.Relocs))

	// every instruction decodes back
	for off := 0; off < len(code.Bytes); {
		_, n, err := asm.DecodeOne(code.Bytes[off:])
		require.NoError(t, err, "offset %d", off)
		off += n
	}
}
