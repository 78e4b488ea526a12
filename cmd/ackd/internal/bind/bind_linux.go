//go:build linux
// +build linux

package bind

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listen creates the socket by hand so the backlog passed to listen(2) is
// the configured one rather than the runtime's somaxconn.
func listen(port, backlog int) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	// Zero address is INADDR_ANY
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	// FileListener dups the descriptor, so f is closed here.
	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp4:0.0.0.0:%d", port))
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("file listener: %w", err)
	}
	return ln, nil
}
