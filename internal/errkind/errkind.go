// Package errkind classifies the failures of the calibration and geometry core.
//
// Per-item failures (a chessboard that was not found, a ray pair that does not
// intersect, a pose whose timing error is too large) are recoverable: batch
// operations drop the item and continue. Every other kind is a precondition
// violation that aborts the call that raised it.
package errkind

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the category of a failure.
type Kind int

const (
	// Unknown is any error that was not raised through this package.
	Unknown Kind = iota
	// InputEmpty is an empty file, image or point list where at least one item is required.
	InputEmpty
	// DetectionFailure is a corner search that did not succeed on one image.
	DetectionFailure
	// SizeMismatch is inconsistent image dimensions or left/right view counts.
	SizeMismatch
	// CountMismatch is a corner count that differs from the requested grid size.
	CountMismatch
	// DiscoveryAmbiguity is zero or several matches for a required file pattern.
	DiscoveryAmbiguity
	// TimingRejection is a matched pose whose timing error exceeds the caller tolerance.
	TimingRejection
	// GeometricRejection is a ray pair that does not meet within tolerance.
	GeometricRejection
	// ParseFailure is a malformed or short calibration file.
	ParseFailure
	// NotReady is a query against a matcher that has not been initialised.
	NotReady
	// InvalidInput is any other argument that cannot be processed.
	InvalidInput
)

var kindNames = map[Kind]string{
	Unknown:            "unknown",
	InputEmpty:         "input empty",
	DetectionFailure:   "detection failure",
	SizeMismatch:       "size mismatch",
	CountMismatch:      "count mismatch",
	DiscoveryAmbiguity: "discovery ambiguity",
	TimingRejection:    "timing rejection",
	GeometricRejection: "geometric rejection",
	ParseFailure:       "parse failure",
	NotReady:           "not ready",
	InvalidInput:       "invalid input",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Recoverable reports whether a failure of this kind only affects a single item of a batch.
func (k Kind) Recoverable() bool {
	switch k { //nolint:exhaustive
	case DetectionFailure, CountMismatch, TimingRejection, GeometricRejection:
		return true
	default:
		return false
	}
}

// Error is an error tagged with a Kind.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String() + ": " + e.msg
	}
	return e.Kind.String() + ": " + e.msg + ": " + e.cause.Error()
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error { return e.cause }

// Cause returns the wrapped error for github.com/pkg/errors.Cause.
func (e *Error) Cause() error { return e.cause }

// New returns an error of the given kind.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with a kind and a message. It returns nil if err is nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, msg: msg, cause: err}
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, kind Kind, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), cause: err}
}

// KindOf returns the kind of the outermost tagged error in the chain.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
