//go:build windows

package modules

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

type dllLibrary struct {
	dll *windows.DLL
}

func openLibrary(path string) (Library, error) {
	dll, err := windows.LoadDLL(path)
	if err != nil {
		return nil, err
	}
	return &dllLibrary{dll: dll}, nil
}

func (l *dllLibrary) Symbol(name string) (uintptr, error) {
	proc, err := l.dll.FindProc(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	return proc.Addr(), nil
}

func (l *dllLibrary) Call(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := syscall.SyscallN(fn, args...)
	return r1
}

func newCallback(fn any) uintptr {
	return windows.NewCallback(fn)
}
