package graph

import "errors"

var (
	// ErrStoreUnavailable indicates the backing connection could not be
	// established or was lost. It is never retried internally; retry and
	// backoff are the caller's responsibility.
	ErrStoreUnavailable = errors.New("graph store unavailable")

	// ErrNotFound indicates the requested node does not exist. Absence is
	// expected and non-exceptional; callers should branch on it rather than
	// log it as a failure.
	ErrNotFound = errors.New("node not found")

	// ErrValidation indicates caller-supplied input was rejected before
	// reaching the store.
	ErrValidation = errors.New("validation failed")

	// ErrDimensionMismatch indicates an embedding's length does not match
	// the dimensions recorded for the store.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
