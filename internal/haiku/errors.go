package haiku

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks transport failures and timeouts. Only these are retried.
	ErrNetwork = errors.New("network error")
	// ErrAuthChallenge means the server wants a fresh one-shot code.
	ErrAuthChallenge = errors.New("server requested an authorization code")
	// ErrSessionExpired means the server rejected the session; the token was cleared.
	ErrSessionExpired = errors.New("session expired")
	ErrStatus         = errors.New("unexpected status")
	ErrDecode         = errors.New("malformed response")
)

// CredentialKind tells the caller which credential to obtain after a 401.
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	// CredentialCode asks for a one-shot code on the next request.
	CredentialCode
	// CredentialRetry asks for a new sign-in; the session token is gone.
	CredentialRetry
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialCode:
		return "code"
	case CredentialRetry:
		return "retry"
	default:
		return "none"
	}
}

// APIError is a non-2xx response from the Haiku+ server.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Kind       CredentialKind
	err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %s %s returned status %d: %v", e.Method, e.Path, e.StatusCode, e.err)
}

// Unwrap returns the sentinel the error was classified as.
func (e *APIError) Unwrap() error { return e.err }

// NeedsSignIn reports whether err should send the user back through sign-in.
func NeedsSignIn(err error) bool {
	return errors.Is(err, ErrAuthChallenge) || errors.Is(err, ErrSessionExpired)
}
