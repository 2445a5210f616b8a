//go:build !linux && !darwin && !netbsd && !freebsd && !openbsd && !dragonfly
// +build !linux,!darwin,!netbsd,!freebsd,!openbsd,!dragonfly

package util

import (
	"errors"
	"syscall"
)

func IsInterrupted(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

func TemporaryErr(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno.Temporary()
}
