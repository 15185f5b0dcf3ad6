package asm

// Op is a machine instruction family.
type Op uint8

const (
	BAD Op = iota
	ADD
	OR
	AND
	SUB
	XOR
	CMP
	TEST
	IMUL
	NEG
	NOT
	MOV
	MOVABS
	MOVZX
	MOVSX
	MOVSXD
	LEA
	SETCC
	CMOVCC
	ROL
	ROR
	SHL
	SHR
	SAR
	MOVSS
	MOVSD
	ADDSS
	ADDSD
	SUBSS
	SUBSD
	MULSS
	MULSD
	DIVSS
	DIVSD
	UCOMISS
	UCOMISD
	CVTSI2SS
	CVTSI2SD
	CVTTSS2SI
	CVTTSD2SI
	CVTSS2SD
	CVTSD2SS
	XORPS
	MOVQ
	PUSH
	POP
	CALL
	RET
	LEAVE
	JMP
	JCC
)

var opNames = map[Op]string{
	ADD: "add", OR: "or", AND: "and", SUB: "sub", XOR: "xor", CMP: "cmp", TEST: "test",
	IMUL: "imul", NEG: "neg", NOT: "not", MOV: "mov", MOVABS: "movabs",
	MOVZX: "movzx", MOVSX: "movsx", MOVSXD: "movsxd", LEA: "lea", SETCC: "set", CMOVCC: "cmov",
	ROL: "rol", ROR: "ror", SHL: "shl", SHR: "shr", SAR: "sar",
	MOVSS: "movss", MOVSD: "movsd", ADDSS: "addss", ADDSD: "addsd", SUBSS: "subss", SUBSD: "subsd",
	MULSS: "mulss", MULSD: "mulsd", DIVSS: "divss", DIVSD: "divsd", UCOMISS: "ucomiss", UCOMISD: "ucomisd",
	CVTSI2SS: "cvtsi2ss", CVTSI2SD: "cvtsi2sd", CVTTSS2SI: "cvttss2si", CVTTSD2SI: "cvttsd2si",
	CVTSS2SD: "cvtss2sd", CVTSD2SS: "cvtsd2ss", XORPS: "xorps", MOVQ: "movq",
	PUSH: "push", POP: "pop", CALL: "call", RET: "ret", LEAVE: "leave", JMP: "jmp", JCC: "j",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "bad"
}

// OpByName is the inverse of Op.String.
func OpByName(name string) (Op, bool) {
	for op, n := range opNames {
		if n == name {
			return op, true
		}
	}
	return BAD, false
}

// Inst is one machine instruction. Operands follow Intel order in the
// struct (Dst first) and AT&T order when printed.
type Inst struct {
	Op   Op
	Size uint8 // operation width for GP forms; integer width for cvt forms
	// SrcSize is the source width of movzx/movsx.
	SrcSize uint8
	Cond    Cond
	Dst     Operand
	Src     Operand
	// PLT routes a direct call through the procedure linkage table.
	PLT bool
	// Label is the branch target of jmp/jcc emitted through an Assembler.
	Label Label
}

// Ins builds a two-operand instruction.
func Ins(op Op, size uint8, dst, src Operand) Inst {
	return Inst{Op: op, Size: size, Dst: dst, Src: src}
}

// IsSSE reports the scalar floating point families.
func (o Op) IsSSE() bool {
	return o >= MOVSS && o <= MOVQ
}

// WritesFlags reports families that clobber the arithmetic flags.
func (o Op) WritesFlags() bool {
	switch o {
	case ADD, OR, AND, SUB, XOR, CMP, TEST, IMUL, NEG, ROL, ROR, SHL, SHR, SAR, UCOMISS, UCOMISD:
		return true
	}
	return false
}
