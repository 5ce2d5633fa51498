// Package errkind classifies ingestion failures into the small set of kinds
// callers branch on. The kind, not the concrete type, is what crosses the
// per-item boundary.
package errkind

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Validation     Kind = "validation"
	Duplicate      Kind = "duplicate"
	Infrastructure Kind = "infrastructure"
	Dependency     Kind = "dependency"
	Consistency    Kind = "consistency"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	default:
		return string(e.Kind) + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorKind() Kind { return e.Kind }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Kinder is implemented by error types that know their own kind.
type Kinder interface {
	ErrorKind() Kind
}

// Classify returns the kind of err. The outermost Kinder in the chain wins;
// anything unrecognised is treated as infrastructure.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if k, ok := e.(Kinder); ok {
			return k.ErrorKind()
		}
	}
	var k Kinder
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return Infrastructure
}

func Is(err error, kind Kind) bool {
	return err != nil && Classify(err) == kind
}
