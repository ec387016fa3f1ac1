// Package identity obtains account credentials from an OpenID Connect
// provider: one-shot authorization codes for the server to exchange, and ID
// tokens usable as bearer credentials.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// CodeRequest describes a one-shot authorization code request.
type CodeRequest struct {
	Scopes         []string
	VisibleActions []string
	// Interactive asks the provider to show its consent screen instead of
	// failing with ErrConsentRequired.
	Interactive bool
}

// Provider fetches credentials for an account from the identity provider.
// All methods block on the network and must not run on the UI goroutine.
type Provider interface {
	// IDToken returns a signed identity assertion usable as a bearer credential.
	IDToken(ctx context.Context, account, scope string) (string, error)

	// AuthCode returns a short-lived code the server exchanges for its own tokens.
	AuthCode(ctx context.Context, account string, req CodeRequest) (string, error)

	// ClearToken drops any cached copy of token so the next call mints a new one.
	ClearToken(ctx context.Context, token string) error
}

var (
	ErrConsentRequired = errors.New("identity provider requires user consent")
	ErrNetwork         = errors.New("identity provider unreachable")
)

// ConsentRequiredError is returned when the provider needs the user to act
// out-of-band. ResolveURL is the provider's consent page for the request;
// approving there records consent, after which the call can be retried. The
// redirect at the end of that page is not served. Retrying with
// CodeRequest.Interactive does both in one step.
type ConsentRequiredError struct {
	Account    string
	Reason     string
	ResolveURL string
}

func (e *ConsentRequiredError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("consent required for %s", e.Account)
	}
	return fmt.Sprintf("consent required for %s: %s", e.Account, e.Reason)
}

// Unwrap lets errors.Is match ErrConsentRequired.
func (e *ConsentRequiredError) Unwrap() error { return ErrConsentRequired }

// networkError marks transport failures so callers can match ErrNetwork.
func networkError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
}

func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
