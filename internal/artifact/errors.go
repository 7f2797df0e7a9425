package artifact

import (
	"errors"
	"fmt"
)

// NotFoundError reports a requested artifact that was never written.
// Downstream this maps to workflow incompleteness (UNVERIFIED), never to a
// mechanical failure.
type NotFoundError struct {
	RunID string
	Flow  string
	Name  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: %s/%s/%s", e.RunID, e.Flow, e.Name)
}

// IOError reports a filesystem failure while touching an artifact.
// Downstream this maps to mechanical failure (CANNOT_PROCEED).
type IOError struct {
	Op   string // "put", "get", "exists", "list"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error is a missing-artifact error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsIOFailure returns true if the error is a filesystem failure.
// Uses errors.As to handle wrapped errors.
func IsIOFailure(err error) bool {
	var io *IOError
	return errors.As(err, &io)
}
