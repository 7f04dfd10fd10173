package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidEvent signals an inbound event that fails validation.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrInvalidQuery signals malformed query parameters.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrIssueNotFound signals a missing issue.
	ErrIssueNotFound = errors.New("issue not found")
	// ErrMessageNotFound signals a missing message.
	ErrMessageNotFound = errors.New("message not found")
	// ErrDuplicateMessage signals a message whose external id is already stored.
	ErrDuplicateMessage = errors.New("duplicate message")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrMalformedVector signals a zero-norm or non-finite vector.
	ErrMalformedVector = errors.New("malformed vector")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrOracleUnavailable signals an oracle that is not configured or failed.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrBudgetExceeded signals an exhausted provider token budget.
	ErrBudgetExceeded = errors.New("token budget exceeded")
	// ErrOracleBudgetExceeded signals an exhausted oracle token budget.
	ErrOracleBudgetExceeded = errors.New("oracle token budget exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrQueueFull signals that the async ingest queue cannot accept more events.
	ErrQueueFull = errors.New("ingest queue full")
)

// VectorError wraps ErrMalformedVector or ErrVectorDimMismatch with the offending detail.
type VectorError struct {
	Reason string
	Err    error
}

func (e *VectorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Reason)
}

func (e *VectorError) Unwrap() error { return e.Err }
