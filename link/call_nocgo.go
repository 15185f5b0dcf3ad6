//go:build linux && amd64 && !cgo

package link

import (
	"fmt"

	"github.com/colorfulnotion/lirx64/x64errors"
)

func (e *Executable) Call(name string, args ...int64) (int64, error) {
	if _, err := e.entry(name, len(args)); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: calling loaded code needs cgo", x64errors.ErrUnsupportedOperands)
}
