package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrFragmentNotFound signals a missing fragment.
	ErrFragmentNotFound = errors.New("fragment not found")
	// ErrEmbeddingExists signals that a fragment is already embedded under the
	// requested model. Callers treat it as idempotent success, not failure.
	ErrEmbeddingExists = errors.New("embedding already exists")
	// ErrEmbeddingProviderError signals an embedding service failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrModelProviderError signals a language model call failure.
	ErrModelProviderError = errors.New("model provider error")
)
