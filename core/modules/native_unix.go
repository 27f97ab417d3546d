//go:build darwin || linux

package modules

import (
	"fmt"

	"github.com/ebitengine/purego"
)

type dlLibrary struct {
	handle uintptr
}

func openLibrary(path string) (Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, err
	}
	return &dlLibrary{handle: handle}, nil
}

func (l *dlLibrary) Symbol(name string) (uintptr, error) {
	fn, err := purego.Dlsym(l.handle, name)
	if err != nil || fn == 0 {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	return fn, nil
}

func (l *dlLibrary) Call(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(fn, args...)
	return r1
}

func newCallback(fn any) uintptr {
	return purego.NewCallback(fn)
}
