package evreact

import "errors"

var (
	ErrIntervalOverflow  = errors.New("evreact: interval overflow")
	ErrInvalidStream     = errors.New("evreact: stream has no descriptor")
	ErrPollerUnavailable = errors.New("evreact: poller unavailable")
	ErrLoopRunning       = errors.New("evreact: loop already running")
	ErrLoopClosed        = errors.New("evreact: loop closed")
)
