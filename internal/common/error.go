// Package common defines shared constants and sentinel errors used across
// the OpenChat server. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors.
	ErrorInvalidInput      = errors.New("invalid input")
	ErrorInvalidLocation   = errors.New("invalid store location")
	ErrorWeakPassword      = errors.New("password too weak")
	ErrorIncompleteAccount = errors.New("account is incomplete")

	// Conflict errors.
	ErrorDuplicateUsername = errors.New("username already exists")
	ErrorAlreadyLinked     = errors.New("databases are already linked")
	ErrorSelfLinkRejected  = errors.New("cannot link to your own database")

	// Directory errors.
	ErrorAuthenticatorNotFound  = errors.New("authenticator not found")
	ErrorAuthenticatorExhausted = errors.New("could not generate unique authenticator")
	ErrorUnknownCaller          = errors.New("caller not found in directory")

	// Linking errors.
	ErrorMissingKeys = errors.New("public key not found for caller")
	ErrorPartialLink = errors.New("link established on one side only")

	// Multi-store errors.
	ErrorUnreachable    = errors.New("store unreachable")
	ErrorPartialFailure = errors.New("partial fan-out failure")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidPassword = errors.New("invalid password")
)
