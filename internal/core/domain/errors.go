package domain

import "errors"

// Token failures.
var (
	ErrMalformedToken        = errors.New("malformed token")
	ErrSignatureInvalid      = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenBlacklisted      = errors.New("token blacklisted")
	ErrSigningKeyUnavailable = errors.New("signing key unavailable")
)

// Session store failures.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already exists")
	ErrSessionTooLarge  = errors.New("session record too large")
	ErrStoreUnavailable = errors.New("session store unavailable")
	ErrStoreConflict    = errors.New("session store write conflict")
)

// Authentication and authorization failures.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrUserNotFound       = errors.New("user not found")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrTransientNotFound  = errors.New("transient data not found")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrMalformedToken, "MALFORMED_TOKEN"},
	{ErrSignatureInvalid, "SIGNATURE_INVALID"},
	{ErrTokenExpired, "TOKEN_EXPIRED"},
	{ErrTokenBlacklisted, "TOKEN_BLACKLISTED"},
	{ErrSigningKeyUnavailable, "SIGNING_KEY_UNAVAILABLE"},
	{ErrSessionNotFound, "SESSION_NOT_FOUND"},
	{ErrSessionExists, "ALREADY_EXISTS"},
	{ErrSessionTooLarge, "SESSION_TOO_LARGE"},
	{ErrStoreUnavailable, "STORE_UNAVAILABLE"},
	{ErrStoreConflict, "STORE_CONFLICT"},
	{ErrNotAuthenticated, "NOT_AUTHENTICATED"},
	{ErrNotAuthorized, "NOT_AUTHORIZED"},
	{ErrInvalidCredentials, "INVALID_CREDENTIALS"},
	{ErrAccountDisabled, "ACCOUNT_DISABLED"},
	{ErrUserNotFound, "USER_NOT_FOUND"},
	{ErrResourceNotFound, "RESOURCE_NOT_FOUND"},
	{ErrTransientNotFound, "TRANSIENT_NOT_FOUND"},
}

// ErrorCode returns the stable taxonomy code for err, or "INTERNAL" when err
// does not wrap a known sentinel. A nil error has no code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "INTERNAL"
}
