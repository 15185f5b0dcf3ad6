package asm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// DecodeOne decodes the first instruction of code and returns its GNU
// (AT&T) rendering and length.
func DecodeOne(code []byte) (string, int, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return "", 0, err
	}
	return x86asm.GNUSyntax(inst, 0, nil), inst.Len, nil
}

// Disassemble renders code as an offset/bytes/AT&T listing. Undecodable
// bytes are printed as db.
func Disassemble(code []byte) string {
	var sb strings.Builder
	offset := 0
	for offset < len(code) {
		inst, err := x86asm.Decode(code[offset:], 64)
		length := inst.Len
		if err != nil {
			sb.WriteString(fmt.Sprintf("0x%04x: db 0x%02x\n", offset, code[offset]))
			offset++
			continue
		}

		var hexBytes []string
		for i := 0; i < length; i++ {
			hexBytes = append(hexBytes, fmt.Sprintf("%02x", code[offset+i]))
		}
		sb.WriteString(fmt.Sprintf(
			"0x%04x: %-30s %s\n",
			offset,
			strings.Join(hexBytes, " "),
			x86asm.GNUSyntax(inst, uint64(offset), nil),
		))
		offset += length
	}
	return sb.String()
}

// HexBytes formats b as space separated upper-case hex pairs.
func HexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02X", c)
	}
	return strings.Join(parts, " ")
}
