package asm

// Cond is an x86 condition code as encoded in Jcc/SETcc/CMOVcc.
type Cond uint8

const (
	CondO  Cond = 0x0
	CondNO Cond = 0x1
	CondB  Cond = 0x2 // unsigned <
	CondAE Cond = 0x3 // unsigned >=
	CondE  Cond = 0x4
	CondNE Cond = 0x5
	CondBE Cond = 0x6 // unsigned <=
	CondA  Cond = 0x7 // unsigned >
	CondS  Cond = 0x8
	CondNS Cond = 0x9
	CondP  Cond = 0xA
	CondNP Cond = 0xB
	CondL  Cond = 0xC // signed <
	CondGE Cond = 0xD // signed >=
	CondLE Cond = 0xE // signed <=
	CondG  Cond = 0xF // signed >
)

var condNames = [16]string{"o", "no", "b", "ae", "e", "ne", "be", "a", "s", "ns", "p", "np", "l", "ge", "le", "g"}

// Invert flips the low bit, which negates every x86 condition.
func (c Cond) Invert() Cond {
	return c ^ 1
}

func (c Cond) String() string {
	return condNames[c&15]
}

// CondByName accepts the suffixes printed by String plus the common
// aliases z, nz, c, nc.
func CondByName(s string) (Cond, bool) {
	for i, n := range condNames {
		if n == s {
			return Cond(i), true
		}
	}
	switch s {
	case "z":
		return CondE, true
	case "nz":
		return CondNE, true
	case "c":
		return CondB, true
	case "nc":
		return CondAE, true
	}
	return 0, false
}
