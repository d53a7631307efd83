package indexer

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/levkin/ragbase/embedding"
)

// ErrKind classifies a job failure for the retry decision.
type ErrKind int

const (
	// ErrKindConfig marks failures that no retry can fix, like a missing
	// embedding provider or an unresolvable document.
	ErrKindConfig ErrKind = iota + 1
	// ErrKindValidation marks input problems, like a document that chunks
	// to nothing.
	ErrKindValidation
	// ErrKindTransient marks failures worth retrying with backoff.
	ErrKindTransient
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConfig:
		return "config"
	case ErrKindValidation:
		return "validation"
	case ErrKindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// JobError wraps a pipeline failure with its kind and the failing operation.
type JobError struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Op, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError creates a classified job error.
func NewJobError(kind ErrKind, op string, err error) *JobError {
	return &JobError{Kind: kind, Op: op, Err: err}
}

// Retryable reports whether a failure should be retried. Explicit
// classification wins; otherwise provider status codes, network errors and
// deadline expiry count as transient, everything else does not.
func Retryable(err error) bool {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind == ErrKindTransient
	}

	var providerErr *embedding.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
