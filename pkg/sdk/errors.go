package triage

import "github.com/kailas-cloud/triage/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidEvent           = domain.ErrInvalidEvent
	ErrInvalidQuery           = domain.ErrInvalidQuery
	ErrIssueNotFound          = domain.ErrIssueNotFound
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrBudgetExceeded         = domain.ErrBudgetExceeded
)
