package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyPool         = errors.New("campaign has no account pool")
	ErrAlreadyRunning    = errors.New("campaign is already running")
)
