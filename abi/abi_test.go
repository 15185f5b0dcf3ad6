package abi

import (
	"errors"
	"testing"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/x64errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSysVRegisters(t *testing.T) {
	cc := SysV()
	assert.Equal(t, []asm.Register{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}, cc.IntArgs)
	assert.Len(t, cc.FloatArgs, 8)
	assert.Equal(t, asm.RAX, cc.IntRet)
	assert.Equal(t, asm.XMM0, cc.FloatRet)
	assert.Equal(t, 16, cc.StackAlign)

	for _, r := range []asm.Register{asm.RBX, asm.R12, asm.R13, asm.R14, asm.R15} {
		assert.True(t, cc.IsCalleeSaved(r), r.Name())
		assert.False(t, cc.IsCallerSaved(r), r.Name())
	}
	assert.True(t, cc.IsCallerSaved(asm.RCX.Sized(1)))
}

func TestScratchNeverAllocatable(t *testing.T) {
	cc := SysV()
	for _, class := range []asm.RegClass{asm.GP, asm.Vector} {
		for _, r := range cc.Allocatable(class) {
			assert.False(t, cc.IsScratch(r), r.Name())
			assert.False(t, r.SameReg(asm.RSP) || r.SameReg(asm.RBP), r.Name())
		}
	}
	assert.True(t, cc.IsScratch(asm.R11))
	assert.True(t, cc.IsScratch(asm.R10.Sized(4)))
	assert.True(t, cc.IsScratch(asm.XMM15))
}

func TestCallClobbers(t *testing.T) {
	cc := SysV()
	gp := cc.CallClobbers(asm.GP)
	assert.Equal(t, []asm.Register{asm.RAX, asm.RCX, asm.RDX, asm.RSI, asm.RDI, asm.R8, asm.R9}, gp)
	assert.Len(t, cc.CallClobbers(asm.Vector), 15)
}

func TestLookup(t *testing.T) {
	cc, err := Lookup("sysv")
	require.NoError(t, err)
	assert.Same(t, SysV(), cc)
	_, err = Lookup("win64")
	assert.True(t, errors.Is(err, x64errors.ErrUnknownCallConv))
}
