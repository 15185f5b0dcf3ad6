//go:build !(linux && amd64)

package link

import (
	"fmt"

	"github.com/colorfulnotion/lirx64/x64errors"
)

// Executable is unavailable off linux/amd64; images can still be resolved
// and written out.
type Executable struct{}

func Load(img *Image, externs map[string]uint64) (*Executable, error) {
	return nil, fmt.Errorf("%w: loading images needs linux/amd64", x64errors.ErrUnsupportedOperands)
}

func (e *Executable) Addr(name string) (uintptr, bool) { return 0, false }
func (e *Executable) Base() uintptr                    { return 0 }
func (e *Executable) Bytes() []byte                    { return nil }
func (e *Executable) Close() error                     { return nil }

func (e *Executable) Call(name string, args ...int64) (int64, error) {
	return 0, fmt.Errorf("%w: calling loaded code needs linux/amd64", x64errors.ErrUnsupportedOperands)
}
