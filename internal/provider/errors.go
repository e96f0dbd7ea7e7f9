// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package provider

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed classification every adapter maps its
// provider-specific failures onto. The scheduler's handling is a plain
// switch over this enum; no error-type dispatch.
type ErrorKind int

const (
	// KindRetryable marks transient failures (timeout, connection
	// reset, 5xx, malformed response). Eligible for the optional retry
	// pass after the batch completes.
	KindRetryable ErrorKind = iota

	// KindRateLimited marks provider-level quota exhaustion. The
	// scheduler stops submitting new jobs to the provider but never
	// fails already-completed items.
	KindRateLimited

	// KindPermanent marks data that will never exist (not found, bad
	// request, provider business error). Treated identically to "no
	// data"; adapters usually return (nil, nil) instead.
	KindPermanent
)

// String returns the metric/log label for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindPermanent:
		return "permanent"
	default:
		return "retryable"
	}
}

// FetchError is the tagged failure result of a provider fetch.
type FetchError struct {
	Provider string
	Kind     ErrorKind
	Reason   string
	Err      error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error { return e.Err }

// RateLimited constructs a quota-exhaustion failure.
func RateLimited(provider string) *FetchError {
	return &FetchError{Provider: provider, Kind: KindRateLimited, Reason: "rate limit reached"}
}

// Retryable constructs a transient failure.
func Retryable(provider, reason string, err error) *FetchError {
	return &FetchError{Provider: provider, Kind: KindRetryable, Reason: reason, Err: err}
}

// Permanent constructs a will-never-exist failure.
func Permanent(provider, reason string) *FetchError {
	return &FetchError{Provider: provider, Kind: KindPermanent, Reason: reason}
}

// Classify extracts the ErrorKind from err. Unknown errors classify as
// retryable: misjudging a transient failure as permanent loses data,
// the reverse only costs a retry.
func Classify(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindRetryable
}
