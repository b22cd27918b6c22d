// Package errs defines the five error kinds the core can raise, per spec §7.
// Each kind is a wrapped sentinel so callers can branch with errors.Is instead
// of parsing messages, mirroring the closed exception taxonomy of the
// original Python port (markovdp/exceptions.py) in idiomatic Go.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap one of these with fmt.Errorf("...: %w", ErrX) via the
// constructors below, or check with errors.Is(err, errs.ErrStateNotSet).
var (
	// ErrConfiguration indicates missing or malformed construction input.
	// Fatal for the model instance.
	ErrConfiguration = errors.New("configuration error")
	// ErrMissingParameter indicates a required parameter was absent from a
	// measurement. Caller-recoverable.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrStateNotSet indicates an operation required a prior SetState call.
	// Caller-recoverable.
	ErrStateNotSet = errors.New("state has not been set")
	// ErrParameter indicates an unknown criterion/test/algorithm name was
	// passed to a setter.
	ErrParameter = errors.New("unknown parameter")
	// ErrInternal indicates a broken invariant. These should never fire; if
	// one does the model may be left in an undefined state.
	ErrInternal = errors.New("internal error")
)

// Configuration wraps ErrConfiguration with a message.
func Configuration(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConfiguration)...)
}

// MissingParameter wraps ErrMissingParameter naming the absent parameter.
func MissingParameter(name string) error {
	return fmt.Errorf("missing measurement %q: %w", name, ErrMissingParameter)
}

// StateNotSet wraps ErrStateNotSet.
func StateNotSet() error {
	return fmt.Errorf("set_state has not been called: %w", ErrStateNotSet)
}

// Parameter wraps ErrParameter naming the offending value.
func Parameter(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrParameter)...)
}

// Internal wraps ErrInternal with a message describing the broken invariant.
func Internal(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInternal)...)
}
