package engine

import "errors"

// Input validation failures, rejected before any computation begins.
var (
	ErrBadWindow     = errors.New("window size must be a positive integer")
	ErrUnknownSensor = errors.New("unknown sensor filter")
	ErrInvalidRange  = errors.New("start must not be after end")
)
