package asm

import (
	"bytes"
	"fmt"

	"github.com/colorfulnotion/lirx64/log"
)

type selfTestCase struct {
	name string
	inst Inst
	want []byte
	text string
}

var selfTestCases = []selfTestCase{
	{
		name: "seto r12b",
		inst: Inst{Op: SETCC, Cond: CondO, Dst: R(R12B)},
		want: []byte{0x41, 0x0F, 0x90, 0xC4},
		text: "seto %r12b",
	},
	{
		name: "seto dil",
		inst: Inst{Op: SETCC, Cond: CondO, Dst: R(DIL)},
		want: []byte{0x40, 0x0F, 0x90, 0xC7},
		text: "seto %dil",
	},
	{
		name: "movss xmm1 to xmm10",
		inst: Ins(MOVSS, 0, R(XMM10), R(XMM1)),
		want: []byte{0xF3, 0x44, 0x0F, 0x10, 0xD1},
		text: "movss %xmm1, %xmm10",
	},
	{
		name: "lea scaled index",
		inst: Ins(LEA, 8, R(R12), M(MemIndex(R12, R13, 4, 8))),
		want: []byte{0x4F, 0x8D, 0x64, 0xAC, 0x08},
		text: "leaq 8(%r12,%r13,4), %r12",
	},
}

var selfTestBranch = []byte{0xE9, 0x0A, 0x00, 0x00, 0x00, 0x48, 0xB8, 0x08, 0, 0, 0, 0, 0, 0, 0, 0xC3}

// SelfTest encodes a fixed set of instructions with known encodings into a
// FixedBuffer and checks bytes and AT&T text.
func SelfTest() error {
	var fb FixedBuffer
	for _, tc := range selfTestCases {
		fb.Reset()
		if _, err := Encode(&fb, tc.inst); err != nil {
			return fmt.Errorf("%s: %w", tc.name, err)
		}
		if fb.Err() != nil {
			return fmt.Errorf("%s: %w", tc.name, fb.Err())
		}
		if !bytes.Equal(fb.Bytes(), tc.want) {
			return fmt.Errorf("%s: got % X want % X", tc.name, fb.Bytes(), tc.want)
		}
		if got := tc.inst.String(); got != tc.text {
			return fmt.Errorf("%s: printed %q want %q", tc.name, got, tc.text)
		}
		log.Trace(log.AsmMonitoring, "selftest ok", "case", tc.name, "bytes", HexBytes(tc.want))
	}

	fb.Reset()
	a := NewAssembler(&fb)
	l := a.NewLabel()
	if err := a.Jmp(l); err != nil {
		return err
	}
	if err := a.Emit(Ins(MOV, 8, R(RAX), I(8))); err != nil {
		return err
	}
	if err := a.Bind(l); err != nil {
		return err
	}
	if err := a.Emit(Inst{Op: RET}); err != nil {
		return err
	}
	code, err := a.Finish()
	if err != nil {
		return err
	}
	if !bytes.Equal(code.Bytes, selfTestBranch) {
		return fmt.Errorf("forward jump: got % X want % X", code.Bytes, selfTestBranch)
	}
	log.Trace(log.AsmMonitoring, "selftest ok", "case", "forward jump", "bytes", HexBytes(code.Bytes))
	return nil
}
