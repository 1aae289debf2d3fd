package sampling

import "codeberg.org/mutker/infologger/internal/errors"

const (
	ErrUnknownChannel = errors.ErrorCode("sampling_unknown_channel")
)
