package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSetupFailure covers program lookup, pipeline creation and buffer
	// allocation failures. A unit that fails setup must not be driven.
	ErrSetupFailure = errors.New("setup failure")

	// ErrInvariantViolation covers caller-supplied configuration that would
	// lead to undefined geometry or indexing.
	ErrInvariantViolation = errors.New("invariant violation")
)

func SetupFailure(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSetupFailure, fmt.Sprintf(format, args...))
}

func InvariantViolation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}
