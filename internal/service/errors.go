package service

import "errors"

var (
	ErrNotConnected           = errors.New("not connected to the event backend")
	ErrAlreadyConnected       = errors.New("already connected")
	ErrInvalidRole            = errors.New("unknown role")
	ErrNoRole                 = errors.New("no role selected")
	ErrOtherCoordinatorActive = errors.New("another device already holds the coordinator role")
	ErrInvalidCapacity        = errors.New("capacity must be at least 1")
	ErrEmptyMessage           = errors.New("message text is empty")
	ErrResetNotConfirmed      = errors.New("reset confirmation phrase does not match")
)
