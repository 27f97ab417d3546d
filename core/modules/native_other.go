//go:build !(darwin || linux || windows)

package modules

func openLibrary(string) (Library, error) {
	return nil, ErrNativeUnsupported
}

func newCallback(any) uintptr {
	return 0
}
