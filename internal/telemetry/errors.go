package telemetry

import "codeberg.org/mutker/infologger/internal/errors"

const (
	ErrRegisterFailed = errors.ErrorCode("telemetry_register_failed")
)
