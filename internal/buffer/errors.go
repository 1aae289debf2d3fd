package buffer

import "codeberg.org/mutker/infologger/internal/errors"

const (
	ErrOpenFailed   = errors.ErrorCode("buffer_open_failed")
	ErrWriteFailed  = errors.ErrorCode("buffer_write_failed")
	ErrReadFailed   = errors.ErrorCode("buffer_read_failed")
	ErrRemoveFailed = errors.ErrorCode("buffer_remove_failed")
	ErrClosed       = errors.ErrorCode("buffer_closed")
)
