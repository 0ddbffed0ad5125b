package source

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// FailureKind classifies how an adapter call failed. The kind decides the
// resolver's reaction: skip, retry once, disable the source, or drop the
// affected field.
type FailureKind string

const (
	// FailUnavailable covers network errors, timeouts and non-2xx
	// responses. The source is skipped for this entity, no retry.
	FailUnavailable FailureKind = "unavailable"
	// FailRateLimited means the provider throttled us. Exactly one retry
	// with backoff, then skip.
	FailRateLimited FailureKind = "rate_limited"
	// FailAuth means credentials were rejected. The source is disabled
	// for the remainder of the run.
	FailAuth FailureKind = "auth"
	// FailParse means one field's value could not be interpreted. Only
	// the affected field is dropped; other candidates survive.
	FailParse FailureKind = "parse"
)

// AdapterError is the only error type adapters surface past the fetch
// boundary. Anything else degrades to "no candidates from this source".
type AdapterError struct {
	SourceID string
	Kind     FailureKind
	Err      error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.SourceID, e.Kind, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.SourceID, e.Kind)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as a skip-no-retry failure.
func Unavailable(sourceID string, err error) *AdapterError {
	return &AdapterError{SourceID: sourceID, Kind: FailUnavailable, Err: err}
}

// RateLimited wraps err as a retry-once failure.
func RateLimited(sourceID string, err error) *AdapterError {
	return &AdapterError{SourceID: sourceID, Kind: FailRateLimited, Err: err}
}

// AuthError wraps err as a disable-for-run failure.
func AuthError(sourceID string, err error) *AdapterError {
	return &AdapterError{SourceID: sourceID, Kind: FailAuth, Err: err}
}

// ParseError wraps err as a single-field failure.
func ParseError(sourceID string, err error) *AdapterError {
	return &AdapterError{SourceID: sourceID, Kind: FailParse, Err: err}
}

// KindOf extracts the failure kind from an error chain. Network timeouts
// and connection failures that were never classified by an adapter count
// as unavailable, matching the resolver's timeout handling.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailUnavailable
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return FailUnavailable
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"no such host",
		"i/o timeout",
		"tls handshake timeout",
	} {
		if strings.Contains(msg, p) {
			return FailUnavailable
		}
	}
	return FailUnavailable
}

// IsRateLimited reports whether the error chain carries a rate-limit
// classification.
func IsRateLimited(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Kind == FailRateLimited
}

// IsAuth reports whether the error chain carries an auth classification.
func IsAuth(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Kind == FailAuth
}
