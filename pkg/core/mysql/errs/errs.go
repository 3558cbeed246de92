// Package errs defines the error kinds from spec §7 and the propagation
// policy: per-message errors are counted per {stream, kind} rather than
// halting a tick.
package errs

import "errors"

// Kind is one of the five error kinds spec §7 names.
type Kind string

const (
	// Truncated: not enough bytes yet; leave the buffer, retry next tick.
	Truncated Kind = "truncated"
	// Malformed: the current message is unparseable; log, advance past one
	// packet frame, continue.
	Malformed Kind = "malformed"
	// Cancelled: a multi-packet response isn't complete yet; leave packets
	// queued.
	Cancelled Kind = "cancelled"
	// Internal: an invariant violation (e.g. num_columns == 0); drop the
	// tracker's current response window, record a metric.
	Internal Kind = "internal"
	// Permission: startup only — the raw-event source couldn't attach;
	// propagated as a fatal initialization failure.
	Permission Kind = "permission"
)

// Error wraps an underlying cause with the kind that determines how the
// stitcher's tick loop reacts to it.
type Error struct {
	Kind  Kind
	cause error
}

func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, errs.Truncated) work against an *Error's Kind by
// comparing against a sentinel constructed with that kind and no cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// defaulting to Malformed for anything else — an unrecognized error from a
// parsing step is treated as unparseable rather than silently ignored.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Malformed
}
