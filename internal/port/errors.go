package port

import "errors"

// Sentinel errors used across ports.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRepoNotFound      = errors.New("repository not found")
	ErrJobNotFound       = errors.New("job not found")
	ErrEmptySelection    = errors.New("no repositories selected")
	ErrInvalidTransition = errors.New("invalid workflow transition")
)
