//go:build linux && amd64 && cgo

package link

/*
#include <stdint.h>

typedef int64_t (*lirx64_fn)(int64_t, int64_t, int64_t, int64_t, int64_t, int64_t);

static int64_t lirx64_call(uintptr_t fn, int64_t a0, int64_t a1, int64_t a2, int64_t a3, int64_t a4, int64_t a5) {
	return ((lirx64_fn)fn)(a0, a1, a2, a3, a4, a5);
}
*/
import "C"

import (
	"fmt"

	"github.com/colorfulnotion/lirx64/log"
)

// Call runs the named function with integer arguments passed in the System V
// argument registers and returns %rax. The code runs on the cgo stack.
func (e *Executable) Call(name string, args ...int64) (int64, error) {
	addr, err := e.entry(name, len(args))
	if err != nil {
		return 0, err
	}
	var a [MaxCallArgs]C.int64_t
	for i, v := range args {
		a[i] = C.int64_t(v)
	}
	r := int64(C.lirx64_call(C.uintptr_t(addr), a[0], a[1], a[2], a[3], a[4], a[5]))
	log.Debug(log.LinkMonitoring, "called", "func", name, "addr", fmt.Sprintf("%#x", addr), "args", args, "result", r)
	return r, nil
}
