package app

import (
	"errors"
	"fmt"
)

// BackendError reports why a mandatory backend could not be brought up.
// Code is stable for alerting; Target is the address or mode that was tried.
type BackendError struct {
	Backend string
	Code    string
	Target  string
	Cause   error
}

const codeConnectFailed = "connect_failed"

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s unavailable (code=%s target=%q): %v", e.Backend, e.Code, e.Target, e.Cause)
}

func (e *BackendError) Unwrap() error { return e.Cause }

// backendErrorCode returns the code of the BackendError in err's chain, or
// connect_failed when there is none.
func backendErrorCode(err error) string {
	var be *BackendError
	if errors.As(err, &be) && be.Code != "" {
		return be.Code
	}
	return codeConnectFailed
}
