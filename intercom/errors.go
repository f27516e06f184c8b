package intercom

import "errors"

// ErrNotFound reports that Intercom has no record of the conversation, most
// often because it was deleted between the webhook firing and the lookup.
// The client surfaces 404 responses as a FatalError wrapping ErrNotFound so
// callers can drop the stale ticket instead of retrying.
var ErrNotFound = errors.New("conversation not found")

// The client sorts every failed request into one of two shapes so that the
// retry loop, the event bus, and the bridge all agree on what is worth
// another attempt. Rate limits (429) and server errors (5xx) come back as
// TransientError; the rest of the 4xx range, which no retry will cure, comes
// back as FatalError. Handlers that pass these errors upward should wrap
// with %w so the classification survives the chain.

// TransientError marks a failure expected to clear on its own, such as a
// rate limit or an Intercom outage.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }

func (e *TransientError) Unwrap() error { return e.err }

// NewTransientError marks err as retryable.
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError marks a failure that retrying cannot fix, such as bad
// credentials or a malformed request.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }

func (e *FatalError) Unwrap() error { return e.err }

// NewFatalError marks err as non-retryable.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient reports whether err, anywhere in its chain, was classified as
// retryable.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal reports whether err, anywhere in its chain, was classified as
// non-retryable.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
