package services

import "errors"

// Data service errors
var (
	ErrHistoryDisabled = errors.New("run history is not configured")
	ErrWatchTarget     = errors.New("watch target is not a directory")
)
