package helper

import "fmt"

// WrappedError carries the operation that failed alongside the cause.
type WrappedError struct {
	Op  string
	Err error
}

// NewError wraps err with the name of the failed operation.
func NewError(op string, err error) error {
	return &WrappedError{Op: op, Err: err}
}

func (e *WrappedError) Error() string {
	return fmt.Sprintf("error in %s: %v", e.Op, e.Err)
}

func (e *WrappedError) Unwrap() error {
	return e.Err
}
