package asm

import "fmt"

// RegClass separates general purpose and vector register files.
type RegClass uint8

const (
	NoClass RegClass = iota
	GP
	Vector
)

func (c RegClass) String() string {
	switch c {
	case GP:
		return "gp"
	case Vector:
		return "vec"
	}
	return "none"
}

// Register is a physical register viewed at a given width. The zero value
// is "no register".
type Register struct {
	class RegClass
	code  uint8 // 4-bit hardware number
	size  uint8 // bytes: 1,2,4,8 for GP; 16,32,64 for vector
	high  bool  // ah/ch/dh/bh
}

var (
	gp64Names = [16]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi", "r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
	gp32Names = [16]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi", "r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
	gp16Names = [16]string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di", "r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w"}
	gp8Names  = [16]string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil", "r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b"}
	highNames = [4]string{"ah", "ch", "dh", "bh"}
)

// Standard x86-64 register definitions
var (
	RAX = GPR(0, 8) // return value
	RCX = GPR(1, 8) // fourth argument, variable shift count
	RDX = GPR(2, 8)
	RBX = GPR(3, 8)
	RSP = GPR(4, 8)
	RBP = GPR(5, 8) // frame pointer
	RSI = GPR(6, 8)
	RDI = GPR(7, 8)
	R8  = GPR(8, 8)
	R9  = GPR(9, 8)
	R10 = GPR(10, 8)
	R11 = GPR(11, 8)
	R12 = GPR(12, 8)
	R13 = GPR(13, 8)
	R14 = GPR(14, 8)
	R15 = GPR(15, 8)

	EAX = GPR(0, 4)
	ECX = GPR(1, 4)
	EDX = GPR(2, 4)
	EBX = GPR(3, 4)

	AL  = GPR(0, 1)
	CL  = GPR(1, 1)
	DL  = GPR(2, 1)
	BL  = GPR(3, 1)
	SPL = GPR(4, 1)
	BPL = GPR(5, 1)
	SIL = GPR(6, 1)
	DIL = GPR(7, 1)

	R12B = GPR(12, 1)

	AH = Register{class: GP, code: 4, size: 1, high: true}
	CH = Register{class: GP, code: 5, size: 1, high: true}
	DH = Register{class: GP, code: 6, size: 1, high: true}
	BH = Register{class: GP, code: 7, size: 1, high: true}
)

var (
	XMM0  = XMM(0)
	XMM1  = XMM(1)
	XMM2  = XMM(2)
	XMM3  = XMM(3)
	XMM4  = XMM(4)
	XMM5  = XMM(5)
	XMM6  = XMM(6)
	XMM7  = XMM(7)
	XMM8  = XMM(8)
	XMM9  = XMM(9)
	XMM10 = XMM(10)
	XMM11 = XMM(11)
	XMM12 = XMM(12)
	XMM13 = XMM(13)
	XMM14 = XMM(14)
	XMM15 = XMM(15)
)

// GPR returns general purpose register code at width size.
func GPR(code, size uint8) Register {
	return Register{class: GP, code: code & 15, size: size}
}

// XMM returns vector register code as a 16-byte xmm view.
func XMM(code uint8) Register {
	return Register{class: Vector, code: code & 15, size: 16}
}

func (r Register) Class() RegClass { return r.class }
func (r Register) Code() uint8     { return r.code }
func (r Register) Size() uint8     { return r.size }
func (r Register) IsValid() bool   { return r.class != NoClass }
func (r Register) IsGP() bool      { return r.class == GP }
func (r Register) IsVector() bool  { return r.class == Vector }

// NeedsREX reports whether the register number needs a REX extension bit.
func (r Register) NeedsREX() bool {
	return r.IsValid() && !r.high && r.code >= 8
}

// IsExtendedByte reports spl/bpl/sil/dil, which are only reachable with a
// REX prefix present.
func (r Register) IsExtendedByte() bool {
	return r.class == GP && r.size == 1 && !r.high && r.code >= 4 && r.code < 8
}

// IsHighByte reports ah/ch/dh/bh, which cannot be encoded with any REX prefix.
func (r Register) IsHighByte() bool {
	return r.high
}

// Sized returns the same physical register viewed at width n.
func (r Register) Sized(n uint8) Register {
	if !r.IsValid() {
		return r
	}
	if r.class == Vector {
		return Register{class: Vector, code: r.code, size: n}
	}
	return GPR(r.code, n)
}

// SameReg reports whether r and o name the same physical register.
func (r Register) SameReg(o Register) bool {
	if r.class != o.class || !r.IsValid() {
		return false
	}
	return r.Sized(8).code == o.Sized(8).code && r.high == o.high
}

// low3 is the register number as it appears in ModRM/SIB fields.
func (r Register) low3() byte {
	return r.code & 7
}

func (r Register) Name() string {
	switch r.class {
	case GP:
		if r.high {
			return highNames[r.code-4]
		}
		switch r.size {
		case 1:
			return gp8Names[r.code]
		case 2:
			return gp16Names[r.code]
		case 4:
			return gp32Names[r.code]
		default:
			return gp64Names[r.code]
		}
	case Vector:
		switch r.size {
		case 32:
			return fmt.Sprintf("ymm%d", r.code)
		case 64:
			return fmt.Sprintf("zmm%d", r.code)
		default:
			return fmt.Sprintf("xmm%d", r.code)
		}
	}
	return "none"
}

func (r Register) String() string {
	return "%" + r.Name()
}

// RegisterByName parses names such as "rax", "r12b", "xmm3" or "ah", with or
// without the leading '%'.
func RegisterByName(name string) (Register, bool) {
	if len(name) > 0 && name[0] == '%' {
		name = name[1:]
	}
	for i := 0; i < 16; i++ {
		switch name {
		case gp64Names[i]:
			return GPR(uint8(i), 8), true
		case gp32Names[i]:
			return GPR(uint8(i), 4), true
		case gp16Names[i]:
			return GPR(uint8(i), 2), true
		case gp8Names[i]:
			return GPR(uint8(i), 1), true
		case fmt.Sprintf("xmm%d", i):
			return XMM(uint8(i)), true
		case fmt.Sprintf("ymm%d", i):
			return XMM(uint8(i)).Sized(32), true
		case fmt.Sprintf("zmm%d", i):
			return XMM(uint8(i)).Sized(64), true
		}
	}
	for i, n := range highNames {
		if n == name {
			return Register{class: GP, code: uint8(i + 4), size: 1, high: true}, true
		}
	}
	return Register{}, false
}
