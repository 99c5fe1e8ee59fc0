package llm

import (
	"errors"
	"net/http"
)

// TransientError marks a failure worth retrying: rate limits, server
// errors, network trouble.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure retrying cannot fix, such as a rejected
// request or bad credentials.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// classifyStatus wraps err according to the HTTP status that produced it.
// Rate limits and server-side failures are worth another attempt; any other
// client error means the request itself is wrong.
func classifyStatus(status int, err error) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return &TransientError{Err: err}
	}
	return &FatalError{Err: err}
}
