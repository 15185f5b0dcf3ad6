//go:build linux && amd64

package link

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/colorfulnotion/lirx64/log"
	"github.com/colorfulnotion/lirx64/x64errors"
)

// Executable is an Image mapped into this process: text read+execute,
// data read+write.
type Executable struct {
	mem     []byte
	base    uintptr
	symbols map[string]Extent
}

// Load maps img, resolves it against the mapping address and protects the
// pages. Data starts on its own page.
func Load(img *Image, externs map[string]uint64) (*Executable, error) {
	page := unix.Getpagesize()
	textSize := img.dataOffset(page)
	size := textSize + len(img.Data())
	size = (size + page - 1) / page * page
	if size == 0 {
		size = page
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap image: %w", err)
	}
	base := uintptr(unsafe.Pointer(&mem[0]))
	code, err := img.resolve(uint64(base), externs, page)
	if err != nil {
		unix.Munmap(mem)
		return nil, err
	}
	copy(mem, code)
	if textSize > 0 {
		if err := unix.Mprotect(mem[:textSize], unix.PROT_READ|unix.PROT_EXEC); err != nil {
			unix.Munmap(mem)
			return nil, fmt.Errorf("failed to mprotect text: %w", err)
		}
	}
	exe := &Executable{mem: mem, base: base, symbols: img.symbols(page)}
	log.Debug(log.LinkMonitoring, "image loaded", "base", fmt.Sprintf("%#x", base), "text", textSize, "size", size)
	return exe, nil
}

// Addr returns the absolute address of a defined symbol.
func (e *Executable) Addr(name string) (uintptr, bool) {
	ext, ok := e.symbols[name]
	if !ok {
		return 0, false
	}
	return e.base + uintptr(ext.Offset), true
}

func (e *Executable) Base() uintptr { return e.base }

// entry returns the address of a text symbol that can take nargs arguments.
func (e *Executable) entry(name string, nargs int) (uintptr, error) {
	if e.mem == nil {
		return 0, fmt.Errorf("%w: %s: executable is closed", x64errors.ErrUnresolvedSymbol, name)
	}
	ext, ok := e.symbols[name]
	if !ok || ext.Section != Text {
		return 0, fmt.Errorf("%w: no function %s", x64errors.ErrUnresolvedSymbol, name)
	}
	if nargs > MaxCallArgs {
		return 0, fmt.Errorf("%w: %s called with %d arguments", x64errors.ErrTooManyArguments, name, nargs)
	}
	return e.base + uintptr(ext.Offset), nil
}

// Bytes views the mapped image.
func (e *Executable) Bytes() []byte { return e.mem }

func (e *Executable) Close() error {
	if e.mem == nil {
		return nil
	}
	err := unix.Munmap(e.mem)
	e.mem = nil
	return err
}
