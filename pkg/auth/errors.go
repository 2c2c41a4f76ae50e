package auth

import "errors"

var (
	// ErrIdentityAlreadyRegistered is returned by Register when the identity
	// already holds a credential
	ErrIdentityAlreadyRegistered = errors.New("identity already registered")

	// ErrIdentityNotFound is returned when no credential exists for the identity
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrChallengeNotFound is returned when no unexpired challenge is
	// outstanding for the identity
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrVerificationFailed is returned when the response does not satisfy the
	// verification equations
	ErrVerificationFailed = errors.New("verification failed")

	// ErrInvalidIdentity is returned for empty or oversized identities
	ErrInvalidIdentity = errors.New("invalid identity")
)
