package models

import "errors"

// Custom errors
var (
	// ErrDataUnavailable indicates a missing or stale mandatory input
	// (snapshot, enrichment, calibration). Fail closed, caller may retry
	// later with fresh data.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrConfigInvalid indicates a malformed or missing threshold
	// configuration. Fatal: the pipeline must not run with substituted
	// defaults.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrEstimation indicates a probability/odds inconsistency for a single
	// candidate. Degrades that leg only, treated as data unavailable for it.
	ErrEstimation = errors.New("estimation failure")

	// ErrAllocation indicates an arithmetic edge case in stake sizing
	// (negative budget, zero increment). Fatal configuration error.
	ErrAllocation = errors.New("allocation failure")

	// ErrUnknownPhase indicates an unrecognized pipeline phase value.
	ErrUnknownPhase = errors.New("unknown phase")

	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
)
