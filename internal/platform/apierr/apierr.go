// Package apierr maps classified errors onto ops API statuses.
package apierr

import (
	"net/http"
	"strconv"

	"github.com/yungbote/evidence-backend/internal/platform/errkind"
)

// Error pairs a failure with the status and code the API reports for it.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	case e.Code != "":
		return e.Code
	}
	return "api error " + strconv.Itoa(e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

var statusByKind = map[errkind.Kind]int{
	errkind.Validation:  http.StatusBadRequest,
	errkind.Duplicate:   http.StatusConflict,
	errkind.Consistency: http.StatusConflict,
	errkind.Dependency:  http.StatusBadGateway,
}

// FromError classifies err. Kinds without an entry, infrastructure among
// them, are reported as 503.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	kind := errkind.Classify(err)
	return New(StatusFor(kind), string(kind), err)
}

func StatusFor(kind errkind.Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusServiceUnavailable
}
