//go:build !linux && !darwin && !netbsd && !freebsd && !openbsd && !dragonfly
// +build !linux,!darwin,!netbsd,!freebsd,!openbsd,!dragonfly

package poller

func New(maxEvents int) (Poller, error) {
	return nil, ErrUnsupported
}
