//go:build windows

package http

import (
	"net"
	"syscall"

	"golang.org/x/sys/windows"
)

func shutdown(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}

	var opErr error
	err = raw.Control(func(fd uintptr) {
		opErr = windows.Shutdown(windows.Handle(fd), windows.SHUT_RDWR)
	})
	if err != nil {
		return err
	}
	return opErr
}
