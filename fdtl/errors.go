package fdtl

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by every configuration failure, regardless of which package raised it
	ErrConfiguration = errors.New("configuration error")

	// ErrValidationInput is matched by every malformed duty state or flight
	ErrValidationInput = errors.New("validation input error")
)

// ConfigurationError reports a missing or malformed rule set.
// It is fatal at startup and is never treated as "no limit".
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ValidationInputError reports a duty state or flight that cannot be evaluated.
// Compliance is unknown when this is returned, never assumed.
type ValidationInputError struct {
	Field  string
	Reason string
}

func (e *ValidationInputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *ValidationInputError) Unwrap() error { return ErrValidationInput }
