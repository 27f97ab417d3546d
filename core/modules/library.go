package modules

import (
	"fmt"
	"runtime"
	"sync"
)

// Library is an open dynamic library.
type Library interface {
	// Symbol resolves an exported function, ErrSymbolNotFound when absent.
	Symbol(name string) (uintptr, error)
	// Call invokes a C function pointer with integer arguments and returns
	// its integer result.
	Call(fn uintptr, args ...uintptr) uintptr
}

// Opener opens the library at path.
type Opener func(path string) (Library, error)

// CallbackFactory turns a Go function taking and returning uintptr values
// into a C function pointer.
type CallbackFactory func(fn any) uintptr

// LibraryExt returns the dynamic library suffix for goos.
func LibraryExt(goos string) (string, error) {
	switch goos {
	case "linux":
		return ".so", nil
	case "windows":
		return ".dll", nil
	case "darwin":
		return ".dylib", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedOS, goos)
	}
}

func hostLibraryExt() (string, error) {
	return LibraryExt(runtime.GOOS)
}

// handleTable hands out integer handles for host objects passed through the
// C boundary. Handle 0 is never issued.
type handleTable struct {
	mu   sync.RWMutex
	next uintptr
	objs map[uintptr]any
}

func newHandleTable() *handleTable {
	return &handleTable{objs: make(map[uintptr]any)}
}

func (t *handleTable) put(obj any) uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	t.objs[t.next] = obj
	return t.next
}

func (t *handleTable) get(h uintptr) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	obj, ok := t.objs[h]
	return obj, ok
}

func (t *handleTable) delete(h uintptr) {
	t.mu.Lock()
	delete(t.objs, h)
	t.mu.Unlock()
}

func (t *handleTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.objs)
}

func lookup[T any](t *handleTable, h uintptr) (T, bool) {
	obj, ok := t.get(h)
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := obj.(T)
	return v, ok
}
