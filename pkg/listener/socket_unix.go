//go:build linux || darwin

package listener

import (
	"fmt"
	"net"
	"os"
	"syscall"
)

// bindStreamTCP creates, binds and listens on a TCP socket with an
// explicit backlog, since net.Listen hides the listen(2) backlog
// behind a platform default that ignores the configurable
// value workerman wants to expose. reusePort applies SO_REUSEPORT before bind when set.
func bindStreamTCP(address string, backlog int, reusePort bool) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}

	domain := syscall.AF_INET
	if addr.IP != nil && addr.IP.To4() == nil {
		domain = syscall.AF_INET6
	}

	fd, err := syscall.Socket(domain, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("setsockopt reuseaddr: %w", err)
	}
	if reusePort {
		if err := setReusePort(fd); err != nil {
			syscall.Close(fd)
			return nil, fmt.Errorf("setsockopt reuseport: %w", err)
		}
	}

	sa, err := tcpSockaddr(addr, domain)
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	f := os.NewFile(uintptr(fd), "workerman-listener-"+address)
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("file listener: %w", err)
	}
	return ln, nil
}

// bindStreamUnix creates, binds and listens on a unix domain socket
// with an explicit backlog. The path is removed first if it exists
// and nothing is currently listening on it (a stale socket file from
// a crashed prior run), mirroring how the rendezvous package treats
// stale files as safely replaceable.
func bindStreamUnix(path string, backlog int) (net.Listener, error) {
	if _, err := net.Dial("unix", path); err == nil {
		return nil, fmt.Errorf("address already in use: %s", path)
	}
	os.Remove(path)

	fd, err := syscall.Socket(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}

	sa := &syscall.SockaddrUnix{Name: path}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	f := os.NewFile(uintptr(fd), "workerman-listener-"+path)
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("file listener: %w", err)
	}
	return ln, nil
}

func setReusePort(fd int) error {
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEPORT, 1)
}

func tcpSockaddr(addr *net.TCPAddr, domain int) (syscall.Sockaddr, error) {
	if domain == syscall.AF_INET6 {
		sa := &syscall.SockaddrInet6{Port: addr.Port}
		if addr.IP != nil {
			copy(sa.Addr[:], addr.IP.To16())
		}
		return sa, nil
	}
	sa := &syscall.SockaddrInet4{Port: addr.Port}
	if addr.IP != nil {
		copy(sa.Addr[:], addr.IP.To4())
	}
	return sa, nil
}
