package capture

import "fmt"

// ErrorCode is the fixed result vocabulary returned from a capture attempt,
// per the external error-code contract. None is the zero value.
type ErrorCode int

const (
	ErrorNone ErrorCode = iota
	ErrorBusy
	ErrorBadParams
	ErrorHardwareError
	ErrorUnexpectedError
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorNone:
		return "None"
	case ErrorBusy:
		return "Busy"
	case ErrorBadParams:
		return "BadParams"
	case ErrorHardwareError:
		return "HardwareError"
	case ErrorUnexpectedError:
		return "UnexpectedError"
	default:
		return "Unknown"
	}
}

// ValidationError reports a single capture-plan validation failure. A
// ValidationError always maps to ErrorBadParams.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("capture: invalid parameters: %s", e.Reason)
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// CodeFor maps an error returned by Plan to its external error code.
// Engine.Start returns an ErrorCode directly.
func CodeFor(err error) ErrorCode {
	if err == nil {
		return ErrorNone
	}
	var ve *ValidationError
	if asValidationError(err, &ve) {
		return ErrorBadParams
	}
	return ErrorUnexpectedError
}

func asValidationError(err error, target **ValidationError) bool {
	for err != nil {
		if ve, ok := err.(*ValidationError); ok {
			*target = ve
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
