// Package asm is the x86-64 operand model, instruction encoder, label
// resolver and AT&T printer used by the code generator.
package asm

// REX Prefix Constants
const (
	X86_REX_BASE = 0x40 // Base value for REX prefix
	X86_REX_W    = 0x08 // REX.W - 64-bit operand size
	X86_REX_R    = 0x04 // REX.R - Extension of ModRM reg field
	X86_REX_X    = 0x02 // REX.X - Extension of SIB index field
	X86_REX_B    = 0x01 // REX.B - Extension of ModRM r/m, SIB base, or opcode reg field
)

// ModRM Mode Constants
const (
	X86_MOD_INDIRECT        = 0x00 // [reg] or [disp32]
	X86_MOD_INDIRECT_DISP8  = 0x01 // [reg + disp8]
	X86_MOD_INDIRECT_DISP32 = 0x02 // [reg + disp32]
	X86_MOD_REGISTER        = 0x03 // reg
)

// SIB (Scale-Index-Base) Constants
const (
	X86_SIB_NO_INDEX  = 0x04 // No index register (RSP encoding)
	X86_SIB_INDICATOR = 0x04 // rm=4 indicates SIB byte follows
	X86_RIP_RELATIVE  = 0x05 // mod=00 rm=5 is [rip + disp32]
	X86_RSP_REGBITS   = 0x04 // RSP/R12 low register bits
	X86_RBP_REGBITS   = 0x05 // RBP/R13 low register bits
)

// Prefixes
const (
	X86_PREFIX_0F    = 0x0F // Two-byte opcode prefix
	X86_PREFIX_66    = 0x66 // Operand-size override prefix
	X86_PREFIX_REPNE = 0xF2 // F2: scalar double SSE
	X86_PREFIX_REP   = 0xF3 // F3: scalar single SSE
)

// Primary Opcodes
const (
	X86_OP_PUSH_R          = 0x50 // PUSH r64 (+ reg)
	X86_OP_POP_R           = 0x58 // POP r64 (+ reg)
	X86_OP_MOVSXD          = 0x63 // MOVSXD r64, r/m32
	X86_OP_PUSH_IMM32      = 0x68 // PUSH imm32
	X86_OP_IMUL_R_RM_IMM   = 0x69 // IMUL r, r/m, imm32
	X86_OP_JCC_REL8        = 0x70 // Jcc rel8 (+ cc)
	X86_OP_GROUP1_RM8_IMM8 = 0x80 // Group 1 operations on r/m8 with imm8
	X86_OP_GROUP1_RM_IMM32 = 0x81 // Group 1 operations with imm16/imm32
	X86_OP_TEST_RM8_R8     = 0x84 // TEST r/m8, r8
	X86_OP_TEST_RM_R       = 0x85 // TEST r/m, r
	X86_OP_MOV_RM8_R8      = 0x88 // MOV r/m8, r8
	X86_OP_MOV_RM_R        = 0x89 // MOV r/m, r
	X86_OP_MOV_R8_RM8      = 0x8A // MOV r8, r/m8
	X86_OP_MOV_R_RM        = 0x8B // MOV r, r/m
	X86_OP_LEA             = 0x8D // LEA r, m
	X86_OP_POP_RM          = 0x8F // POP r/m64
	X86_OP_MOV_R8_IMM8     = 0xB0 // MOV r8, imm8 (+ reg)
	X86_OP_MOV_R_IMM       = 0xB8 // MOV r, imm (+ reg)
	X86_OP_GROUP2_RM8_IMM8 = 0xC0 // Group 2 shift operations on r/m8 with imm8
	X86_OP_GROUP2_RM_IMM8  = 0xC1 // Group 2 shift operations with imm8
	X86_OP_RET             = 0xC3 // RET
	X86_OP_MOV_RM8_IMM8    = 0xC6 // MOV r/m8, imm8
	X86_OP_MOV_RM_IMM      = 0xC7 // MOV r/m, imm32
	X86_OP_LEAVE           = 0xC9 // LEAVE
	X86_OP_GROUP2_RM8_CL   = 0xD2 // Group 2 shift operations on r/m8 by CL
	X86_OP_GROUP2_RM_CL    = 0xD3 // Group 2 shift operations by CL
	X86_OP_CALL_REL32      = 0xE8 // CALL rel32
	X86_OP_JMP_REL32       = 0xE9 // JMP rel32
	X86_OP_JMP_REL8        = 0xEB // JMP rel8
	X86_OP_GROUP3_RM8      = 0xF6 // Group 3 unary operations on r/m8
	X86_OP_GROUP3_RM       = 0xF7 // Group 3 unary operations
	X86_OP_GROUP5_RM       = 0xFF // Group 5 operations (CALL, JMP, PUSH)
)

// Two-byte Opcodes (0x0F prefix)
const (
	X86_OP2_MOVUPS_LOAD  = 0x10 // MOVSS/MOVSD xmm, xmm/m
	X86_OP2_MOVUPS_STORE = 0x11 // MOVSS/MOVSD xmm/m, xmm
	X86_OP2_CVTSI2S      = 0x2A // CVTSI2SS/SD xmm, r/m
	X86_OP2_CVTTS2SI     = 0x2C // CVTTSS2SI/CVTTSD2SI r, xmm/m
	X86_OP2_UCOMIS       = 0x2E // UCOMISS/UCOMISD xmm, xmm/m
	X86_OP2_CMOVO        = 0x40 // CMOVcc r, r/m (+ cc)
	X86_OP2_XORPS        = 0x57 // XORPS xmm, xmm/m
	X86_OP2_ADDS         = 0x58 // ADDSS/ADDSD
	X86_OP2_MULS         = 0x59 // MULSS/MULSD
	X86_OP2_CVTS2S       = 0x5A // CVTSS2SD/CVTSD2SS
	X86_OP2_SUBS         = 0x5C // SUBSS/SUBSD
	X86_OP2_DIVS         = 0x5E // DIVSS/DIVSD
	X86_OP2_MOVQ_TO_XMM  = 0x6E // MOVQ xmm, r/m64 (66 REX.W)
	X86_OP2_MOVQ_FROM    = 0x7E // MOVQ r/m64, xmm (66 REX.W)
	X86_OP2_JO           = 0x80 // Jcc rel32 (+ cc)
	X86_OP2_SETO         = 0x90 // SETcc r/m8 (+ cc)
	X86_OP2_IMUL_R_RM    = 0xAF // IMUL r, r/m
	X86_OP2_MOVZX_R_RM8  = 0xB6 // MOVZX r, r/m8
	X86_OP2_MOVZX_R_RM16 = 0xB7 // MOVZX r, r/m16
	X86_OP2_MOVSX_R_RM8  = 0xBE // MOVSX r, r/m8
	X86_OP2_MOVSX_R_RM16 = 0xBF // MOVSX r, r/m16
)

// ModRM reg field constants for group 1 (0x80/0x81)
const (
	X86_REG_ADD = 0
	X86_REG_OR  = 1
	X86_REG_AND = 4
	X86_REG_SUB = 5
	X86_REG_XOR = 6
	X86_REG_CMP = 7
)

// Unary operation reg field constants (for 0xF6/0xF7 opcode)
const (
	X86_REG_TEST = 0
	X86_REG_NOT  = 2
	X86_REG_NEG  = 3
)

// Shift operation reg field constants (for 0xC0/0xC1/0xD2/0xD3 opcodes)
const (
	X86_REG_ROL = 0
	X86_REG_ROR = 1
	X86_REG_SHL = 4
	X86_REG_SHR = 5
	X86_REG_SAR = 7
)

// Group 5 reg field constants (for 0xFF opcode)
const (
	X86_REG_CALL_RM = 2
	X86_REG_JMP_RM  = 4
	X86_REG_PUSH_RM = 6
)

// Placeholder written into forward rel32 fields until the label is bound.
const X86_MAX_INT32 = 0x7FFFFFFF
