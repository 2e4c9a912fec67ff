package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Authentication errors returned by the library. Callers should compare with errors.Is.
var (
	// ErrAuthenticationFailed is returned for an unknown email or a wrong password below the lockout threshold
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrAccountLocked is returned when the account is locked or this attempt locked it
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified is returned when credentials are correct but the account is not active yet
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrEmailAlreadyUsed is returned when registering an email that already has an account
	ErrEmailAlreadyUsed = errors.New("email already used")
	// ErrAccountNotFound is returned when an account id does not resolve
	ErrAccountNotFound = errors.New("account not found")
	// ErrAlreadyVerified is returned when verifying an account that is already active
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrTokenInvalid is returned when a refresh token fails validation or is not recognized
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenRevoked is returned when a refresh token was revoked
	ErrTokenRevoked = errors.New("token revoked")
	// ErrContextMismatch is returned when a refresh token is presented from another IP or device
	ErrContextMismatch = errors.New("token context mismatch")
	// ErrTokenMalformed is returned when a token cannot be parsed or verified
	ErrTokenMalformed = errors.New("token malformed")

	// ErrInvalidVerificationCode is returned for a missing, expired or wrong verification code
	ErrInvalidVerificationCode = errors.New("invalid verification code")
	// ErrResetTokenInvalid is returned for an unknown, used or expired password reset token
	ErrResetTokenInvalid = errors.New("invalid password reset token")
	// ErrResetAlreadyRequested is returned while an unused password reset is still pending
	ErrResetAlreadyRequested = errors.New("password reset already requested")

	// ErrInfrastructure marks storage or messaging failures on the primary write path
	ErrInfrastructure = errors.New("infrastructure failure")
)

var businessErrors = []error{
	ErrAuthenticationFailed,
	ErrAccountLocked,
	ErrEmailNotVerified,
	ErrEmailAlreadyUsed,
	ErrAccountNotFound,
	ErrAlreadyVerified,
	ErrTokenInvalid,
	ErrTokenRevoked,
	ErrContextMismatch,
	ErrTokenMalformed,
	ErrInvalidVerificationCode,
	ErrResetTokenInvalid,
	ErrResetAlreadyRequested,
}

// infraError wraps a collaborator failure so that both ErrInfrastructure and the cause match errors.Is.
func infraError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInfrastructure, op, err)
}

// IsBusinessError reports whether err belongs to the business-rule taxonomy.
func IsBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// StatusCode maps an error returned by this package to an HTTP status code.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrTokenMalformed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountLocked):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrEmailNotVerified):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrEmailAlreadyUsed), errors.Is(err, ErrResetAlreadyRequested):
		return http.StatusConflict
	case errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyVerified),
		errors.Is(err, ErrInvalidVerificationCode),
		errors.Is(err, ErrResetTokenInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrContextMismatch):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
