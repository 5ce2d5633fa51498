package qdrant

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/yungbote/evidence-backend/internal/platform/errkind"
)

type OperationErrorCode string

const (
	OperationErrorValidation        OperationErrorCode = "validation_failed"
	OperationErrorUnsupportedFilter OperationErrorCode = "unsupported_filter"
	OperationErrorEncodeFailed      OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed      OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed   OperationErrorCode = "transport_failed"
	OperationErrorTimeout           OperationErrorCode = "timeout"
	OperationErrorQueryFailed       OperationErrorCode = "query_failed"
)

// OperationError is every failure the index adapter returns. StatusCode is
// zero unless Qdrant answered.
type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "qdrant: <nil>"
	}
	var b strings.Builder
	b.WriteString("qdrant ")
	b.WriteString(e.Operation)
	b.WriteString(": ")
	b.WriteString(string(e.Code))
	if e.StatusCode != 0 {
		b.WriteString(" (http " + strconv.Itoa(e.StatusCode) + ")")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	} else if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ErrorKind treats rejected input as validation; everything else is the
// index being unavailable.
func (e *OperationError) ErrorKind() errkind.Kind {
	if e == nil {
		return errkind.Infrastructure
	}
	switch e.Code {
	case OperationErrorValidation, OperationErrorUnsupportedFilter:
		return errkind.Validation
	}
	return errkind.Infrastructure
}

// IsNotFound reports a 404, which for a per-case collection means the case
// was never indexed.
func IsNotFound(err error) bool {
	var oe *OperationError
	if !errors.As(err, &oe) {
		return false
	}
	return oe.StatusCode == http.StatusNotFound
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{Operation: op, Code: code, Message: msg, Cause: cause}
}

func statusErr(op string, status int, msg string) error {
	return &OperationError{Operation: op, Code: OperationErrorQueryFailed, StatusCode: status, Message: msg}
}
