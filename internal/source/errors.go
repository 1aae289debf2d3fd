package source

import "codeberg.org/mutker/infologger/internal/errors"

const (
	ErrProcessNotFound = errors.ErrorCode("source_process_not_found")
)
