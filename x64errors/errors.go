// Package x64errors holds the sentinel errors of the backend. Messages read
// "Code|Name: description"; callers wrap them with %w and context.
package x64errors

import (
	"errors"
	"strings"
)

// Encoding (E) Errors
var (
	ErrEncodingRange       = errors.New("E1|EncodingRange: An immediate or displacement does not fit in its required width.")
	ErrUnsupportedOperands = errors.New("E2|UnsupportedOperandCombination: No lowering exists for this operand-kind combination.")
	ErrUnresolvedSymbol    = errors.New("E3|UnresolvedSymbol: A relocation target is absent from the symbol tables at resolve time.")
	ErrDuplicateSymbol     = errors.New("E4|DuplicateSymbol: A symbol with this name is already defined.")
	ErrDuplicateSlot       = errors.New("E5|DuplicateSlot: A global slot with this name is already defined.")
	ErrCast                = errors.New("E6|Cast: Operand accessed through the wrong variant projection.")
	ErrHighByteWithREX     = errors.New("E7|HighByteWithREX: Legacy high-byte register used in an instruction that needs a REX prefix.")
	ErrInvalidAddress      = errors.New("E8|InvalidAddress: Address operand cannot be encoded.")
	ErrSinkOverflow        = errors.New("E9|SinkOverflow: Fixed-capacity code sink is full.")
)

// Label (L) Errors
var (
	ErrLabelRebound = errors.New("L1|LabelRebound: Label is already bound.")
	ErrLabelUnbound = errors.New("L2|LabelUnbound: Label has pending fixups but was never bound.")
)

// Front-end (F) Errors
var (
	ErrMalformedLIR      = errors.New("F1|MalformedLIR: LIR input is not well formed.")
	ErrTooManyArguments  = errors.New("F2|TooManyArguments: Call passes more arguments than the convention has registers for.")
	ErrUnknownCallConv   = errors.New("F3|UnknownCallConv: Calling convention is not known.")
	ErrUnknownOutputMode = errors.New("F4|UnknownOutputMode: Output mode must be object or jit.")
)

// Tag returns "Code_Name" (e.g. "E1_EncodingRange") for the sentinel err
// wraps, or "" when err is not one of ours.
func Tag(err error) string {
	s := Classify(err)
	if s == nil {
		return ""
	}
	code, rest, _ := strings.Cut(s.Error(), "|")
	name, _, _ := strings.Cut(rest, ":")
	return code + "_" + name
}

// Classify returns the sentinel that err wraps, or nil when err is not one
// of ours.
func Classify(err error) error {
	for _, s := range all {
		if errors.Is(err, s) {
			return s
		}
	}
	return nil
}

var all = []error{
	ErrEncodingRange, ErrUnsupportedOperands, ErrUnresolvedSymbol, ErrDuplicateSymbol,
	ErrDuplicateSlot, ErrCast, ErrHighByteWithREX, ErrInvalidAddress, ErrSinkOverflow,
	ErrLabelRebound, ErrLabelUnbound,
	ErrMalformedLIR, ErrTooManyArguments, ErrUnknownCallConv, ErrUnknownOutputMode,
}
