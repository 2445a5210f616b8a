package util

import (
	"errors"
	"strings"
	"syscall"
)

var ErrNoDescriptor = errors.New("util: value has no OS descriptor")

type fdUintptr interface {
	Fd() uintptr
}

type fdInt interface {
	Fd() int
}

// Fd returns the OS descriptor number behind v. It accepts syscall.Conn
// implementations (net conns, *os.File), values with an Fd method and raw
// int descriptors. A closed file or conn yields an error.
func Fd(v interface{}) (int, error) {
	switch s := v.(type) {
	case nil:
		return -1, ErrNoDescriptor
	case int:
		if s < 0 {
			return -1, ErrNoDescriptor
		}
		return s, nil
	case syscall.Conn:
		raw, err := s.SyscallConn()
		if err != nil {
			return -1, err
		}
		fd := -1
		if err := raw.Control(func(ufd uintptr) {
			fd = int(ufd)
		}); err != nil {
			return -1, err
		}
		if fd < 0 {
			return -1, ErrNoDescriptor
		}
		return fd, nil
	case fdUintptr:
		fd := s.Fd()
		if fd == ^uintptr(0) {
			return -1, ErrNoDescriptor
		}
		return int(fd), nil
	case fdInt:
		fd := s.Fd()
		if fd < 0 {
			return -1, ErrNoDescriptor
		}
		return fd, nil
	}
	return -1, ErrNoDescriptor
}

// ParseListenerAddr splits "unix:///tmp/s" style addresses, defaulting to tcp.
func ParseListenerAddr(addr string) (network, address string) {
	if n, a, ok := strings.Cut(addr, "://"); ok {
		return n, a
	}
	return "tcp", addr
}
