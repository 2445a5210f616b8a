//go:build linux || darwin || netbsd || freebsd || openbsd || dragonfly
// +build linux darwin netbsd freebsd openbsd dragonfly

package util

import (
	"errors"

	"golang.org/x/sys/unix"
)

func IsInterrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

func TemporaryErr(err error) bool {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno.Temporary()
}
