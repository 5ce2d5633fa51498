package consistency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/evidence-backend/internal/platform/errkind"
)

var (
	ErrAlreadyExists    = errors.New("record already exists")
	ErrAlreadyCompleted = errors.New("record already completed")
	ErrCaseMismatch     = errors.New("record belongs to a different case")
	ErrTxClosed         = errors.New("transaction already finished")
)

// Error is the only failure type the Manager returns. Callers read
// PartialSuccess and Compensations rather than probing the stores.
type Error struct {
	TxID           string
	Operation      string
	RecordID       string
	PartialSuccess bool
	Compensations  []string
	Cause          error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (tx %s) failed", e.Operation, e.TxID)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.PartialSuccess {
		b.WriteString(" [partial]")
	}
	if len(e.Compensations) > 0 {
		fmt.Fprintf(&b, " compensations=%s", strings.Join(e.Compensations, ","))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrorKind reports a lost race on a natural key as a duplicate; everything
// else is a consistency failure.
func (e *Error) ErrorKind() errkind.Kind {
	if errors.Is(e.Cause, ErrAlreadyCompleted) || errors.Is(e.Cause, ErrAlreadyExists) {
		return errkind.Duplicate
	}
	return errkind.Consistency
}

// IsLostRace reports whether err means another runner completed the record.
func IsLostRace(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted)
}
