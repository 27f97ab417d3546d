//go:build unix

package http

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// shutdown closes both directions of the socket before the descriptor is
// released, so the peer sees EOF even if the descriptor is shared.
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
		opErr = unix.Shutdown(int(fd), unix.SHUT_RDWR)
	})
	if err != nil {
		return err
	}
	if opErr == unix.ENOTCONN {
		return nil
	}
	return opErr
}
