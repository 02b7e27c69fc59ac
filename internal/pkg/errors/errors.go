package errors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalid            = errors.New("invalid")
	ErrUnsupportedType    = errors.New("unsupported file type")
	ErrTooLarge           = errors.New("file too large")
	ErrNotReady           = errors.New("document index not ready")
	ErrCorrupt            = errors.New("corrupt persistent state")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrUpstream           = errors.New("upstream failure")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTooMany            = errors.New("too many requests")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotReady reports whether err means no usable index exists. A corrupt blob
// is treated the same as a missing one.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalid) || errors.Is(err, ErrUnsupportedType) || errors.Is(err, ErrTooLarge)
}
