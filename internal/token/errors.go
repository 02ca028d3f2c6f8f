package token

import "errors"

var (
	// ErrNotFound is returned when no token has the requested value.
	ErrNotFound = errors.New("token: not found")

	// ErrInvalidToken is returned when token attributes fail validation on creation.
	ErrInvalidToken = errors.New("token: invalid attributes")

	// ErrGenerationExhausted is returned when no unique value could be generated
	// within the configured number of attempts. This points at a broken entropy
	// source or a misconfigured strength, never at bad luck.
	ErrGenerationExhausted = errors.New("token: unique value generation exhausted")
)
