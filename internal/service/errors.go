package service

import "errors"

// ─── Errors ─────────────────────────────────────────────────
//
// InsufficientData and collaborator outages are deliberately NOT errors:
// stats, pricing, and matching degrade to documented fallbacks (static
// base rates, neutral factor scores, empty rule sets) instead of failing
// the request. Hard failures are reserved for bad input and for illegal
// state transitions on persisted match results.

var (
	// ErrInvalidInput flags missing or malformed required fields (route
	// endpoints, weights). Rejected before any computation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState flags feedback submitted against a match result
	// that is no longer in the suggested state. No mutation is performed.
	ErrInvalidState = errors.New("match result is not in suggested state")

	// ErrNotFound flags a missing primary entity (request, candidate, or
	// match result).
	ErrNotFound = errors.New("not found")
)
