package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrFileTooLarge
	ErrUploadFailed
	ErrNotReady
	ErrBackendUnavailable
	ErrUpstream
)
