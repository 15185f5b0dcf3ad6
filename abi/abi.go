// Package abi describes calling conventions: which registers carry
// arguments and results, which survive calls, and which are reserved as
// scratch for the instruction selector.
package abi

import (
	"fmt"
	"slices"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/x64errors"
)

type CallConv struct {
	Name        string
	IntArgs     []asm.Register
	FloatArgs   []asm.Register
	IntRet      asm.Register
	FloatRet    asm.Register
	CallerSaved []asm.Register
	CalleeSaved []asm.Register
	// AllocatableGP and AllocatableVec are in allocation preference order.
	AllocatableGP  []asm.Register
	AllocatableVec []asm.Register
	// ScratchGP are never allocated; the selector uses them for memory to
	// memory moves, large immediates and parallel move cycles.
	ScratchGP  [2]asm.Register
	ScratchVec asm.Register
	StackAlign int
}

var sysv = &CallConv{
	Name:      "sysv",
	IntArgs:   []asm.Register{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9},
	FloatArgs: []asm.Register{asm.XMM0, asm.XMM1, asm.XMM2, asm.XMM3, asm.XMM4, asm.XMM5, asm.XMM6, asm.XMM7},
	IntRet:    asm.RAX,
	FloatRet:  asm.XMM0,
	CallerSaved: []asm.Register{
		asm.RAX, asm.RCX, asm.RDX, asm.RSI, asm.RDI, asm.R8, asm.R9, asm.R10, asm.R11,
		asm.XMM0, asm.XMM1, asm.XMM2, asm.XMM3, asm.XMM4, asm.XMM5, asm.XMM6, asm.XMM7,
		asm.XMM8, asm.XMM9, asm.XMM10, asm.XMM11, asm.XMM12, asm.XMM13, asm.XMM14, asm.XMM15,
	},
	CalleeSaved: []asm.Register{asm.RBX, asm.R12, asm.R13, asm.R14, asm.R15},
	AllocatableGP: []asm.Register{
		asm.RAX, asm.RCX, asm.RDX, asm.RSI, asm.RDI, asm.R8, asm.R9,
		asm.RBX, asm.R12, asm.R13, asm.R14, asm.R15,
	},
	AllocatableVec: []asm.Register{
		asm.XMM0, asm.XMM1, asm.XMM2, asm.XMM3, asm.XMM4, asm.XMM5, asm.XMM6, asm.XMM7,
		asm.XMM8, asm.XMM9, asm.XMM10, asm.XMM11, asm.XMM12, asm.XMM13, asm.XMM14,
	},
	ScratchGP:  [2]asm.Register{asm.R11, asm.R10},
	ScratchVec: asm.XMM15,
	StackAlign: 16,
}

// SysV is the x86-64 System V convention.
func SysV() *CallConv {
	return sysv
}

// Lookup returns the convention registered under name.
func Lookup(name string) (*CallConv, error) {
	switch name {
	case "sysv", "":
		return sysv, nil
	}
	return nil, fmt.Errorf("%w: %q", x64errors.ErrUnknownCallConv, name)
}

func contains(regs []asm.Register, r asm.Register) bool {
	return slices.ContainsFunc(regs, r.SameReg)
}

func (cc *CallConv) IsCallerSaved(r asm.Register) bool { return contains(cc.CallerSaved, r) }
func (cc *CallConv) IsCalleeSaved(r asm.Register) bool { return contains(cc.CalleeSaved, r) }

// IsScratch reports the registers reserved for the selector.
func (cc *CallConv) IsScratch(r asm.Register) bool {
	return cc.ScratchGP[0].SameReg(r) || cc.ScratchGP[1].SameReg(r) || cc.ScratchVec.SameReg(r)
}

// Allocatable returns the allocation order for a register class.
func (cc *CallConv) Allocatable(class asm.RegClass) []asm.Register {
	if class == asm.Vector {
		return cc.AllocatableVec
	}
	return cc.AllocatableGP
}

// CallClobbers lists the allocatable registers of class destroyed by a call.
func (cc *CallConv) CallClobbers(class asm.RegClass) []asm.Register {
	var out []asm.Register
	for _, r := range cc.Allocatable(class) {
		if cc.IsCallerSaved(r) {
			out = append(out, r)
		}
	}
	return out
}
