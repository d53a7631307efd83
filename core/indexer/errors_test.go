package indexer

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/levkin/ragbase/embedding"
	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	t.Run("Explicit job error kinds", func(t *testing.T) {
		assert.True(t, Retryable(NewJobError(ErrKindTransient, "upsert", errors.New("timeout"))))
		assert.False(t, Retryable(NewJobError(ErrKindConfig, "resolve", errors.New("missing provider"))))
		assert.False(t, Retryable(NewJobError(ErrKindValidation, "chunk", errors.New("empty document"))))
	})

	t.Run("Provider errors follow their status code", func(t *testing.T) {
		assert.True(t, Retryable(&embedding.ProviderError{StatusCode: 429}))
		assert.True(t, Retryable(&embedding.ProviderError{StatusCode: 502}))
		assert.False(t, Retryable(&embedding.ProviderError{StatusCode: 401}))
	})

	t.Run("Wrapped provider errors are classified", func(t *testing.T) {
		wrapped := fmt.Errorf("embed chunk 3: %w", &embedding.ProviderError{StatusCode: 503})
		assert.True(t, Retryable(wrapped))
	})

	t.Run("Deadline expiry is transient", func(t *testing.T) {
		assert.True(t, Retryable(context.DeadlineExceeded))
	})

	t.Run("Database connection failures are transient", func(t *testing.T) {
		assert.True(t, Retryable(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))
		assert.True(t, Retryable(fmt.Errorf("load document: %w", driver.ErrBadConn)))
		assert.True(t, Retryable(fmt.Errorf("load document: %w", sql.ErrConnDone)))
	})

	t.Run("A missing row is not retried", func(t *testing.T) {
		assert.False(t, Retryable(fmt.Errorf("load document: %w", sql.ErrNoRows)))
	})

	t.Run("Unknown errors are not retried", func(t *testing.T) {
		assert.False(t, Retryable(errors.New("something broke")))
	})
}

func TestJobErrorFormat(t *testing.T) {
	err := NewJobError(ErrKindTransient, "upsert vectors", errors.New("connection refused"))
	assert.Equal(t, "transient error in upsert vectors: connection refused", err.Error())
	assert.Equal(t, "connection refused", errors.Unwrap(err).Error())
}
