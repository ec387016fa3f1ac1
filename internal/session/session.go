// Package session holds the Haiku+ authentication state: the chosen account,
// the server session token, a one-shot authorization code and an ID token.
//
// The account and session token are persisted in a prefs.Store named
// HaikuPlus-HaikuSession; the code and ID token live only in memory. All
// access goes through Session's methods, which serialize on a mutex so
// background identity fetches and request workers can share one instance.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/five82/haikuplus/internal/identity"
	"github.com/five82/haikuplus/internal/prefs"
)

// StoreName is the preference store holding persisted session fields.
const StoreName = "HaikuPlus-HaikuSession"

const (
	keyAccountName = "accountName"
	keySessionID   = "sessionId"
)

// ErrNoAccount is returned when an operation needs an account and none is set.
var ErrNoAccount = errors.New("no account selected")

// Status is the authentication level derived from the session fields.
type Status int

const (
	Unauthenticated Status = iota
	HasAccount
	HasSession
)

func (s Status) String() string {
	switch s {
	case HasAccount:
		return "has-account"
	case HasSession:
		return "has-session"
	default:
		return "unauthenticated"
	}
}

// SignInState is the position in the sign-in protocol, derived like Status.
type SignInState int

const (
	SignedOut SignInState = iota
	AccountChosen
	CodeObtained
	SessionEstablished
)

func (s SignInState) String() string {
	switch s {
	case AccountChosen:
		return "account-chosen"
	case CodeObtained:
		return "code-obtained"
	case SessionEstablished:
		return "session-established"
	default:
		return "signed-out"
	}
}

// Credentials is a consistent copy of the session fields. Empty means absent.
type Credentials struct {
	Account      string
	SessionToken string
	Code         string
	IDToken      string
}

// Options configures a Session.
type Options struct {
	Provider identity.Provider
	// Scopes and VisibleActions are passed to the provider when minting codes.
	Scopes         []string
	VisibleActions []string
	// IDTokenScope is passed to Provider.IDToken.
	IDTokenScope string
	Logger       *slog.Logger
}

// Session is the process-wide authentication state.
type Session struct {
	store    prefs.Store
	provider identity.Provider
	opts     Options
	logger   *slog.Logger

	mu      sync.Mutex
	account string
	token   string
	code    string
	idToken string
}

// New builds a Session over store and pre-populates it from persisted values.
func New(store prefs.Store, opts Options) (*Session, error) {
	if store == nil {
		return nil, fmt.Errorf("prefs store is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		store:    store,
		provider: opts.Provider,
		opts:     opts,
		logger:   logger.With("component", "session"),
	}
	s.mu.Lock()
	err := s.reloadLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Status reports the current authentication level. When force is set, or no
// account is known, persisted values are re-read first; a failed read is
// logged and the in-memory values are used.
func (s *Session) Status(force bool) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if force || s.account == "" {
		if err := s.reloadLocked(); err != nil {
			s.logger.Warn("reload session prefs failed", "error", err)
		}
	}
	switch {
	case s.token != "":
		return HasSession
	case s.account != "":
		return HasAccount
	default:
		return Unauthenticated
	}
}

// SignInState reports the sign-in protocol state without touching storage.
func (s *Session) SignInState() SignInState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.token != "":
		return SessionEstablished
	case s.account != "" && s.code != "":
		return CodeObtained
	case s.account != "":
		return AccountChosen
	default:
		return SignedOut
	}
}

// SetAccount stores the account name. An empty name clears it.
func (s *Session) SetAccount(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(keyAccountName, name); err != nil {
		return err
	}
	s.account = name
	return nil
}

// SetSessionToken stores the server session token. An empty token clears it.
func (s *Session) SetSessionToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(keySessionID, token); err != nil {
		return err
	}
	s.token = token
	return nil
}

// Account returns the account name.
func (s *Session) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// SessionToken returns the server session token.
func (s *Session) SessionToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetOneShotAuthCode keeps code in memory until a request consumes it.
func (s *Session) SetOneShotAuthCode(code string) {
	s.mu.Lock()
	s.code = code
	s.mu.Unlock()
}

// OneShotAuthCode returns the pending code.
func (s *Session) OneShotAuthCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// ConsumeOneShotAuthCode clears the pending code if it is still code, so a
// code set concurrently by a newer sign-in survives.
func (s *Session) ConsumeOneShotAuthCode(code string) {
	s.mu.Lock()
	if s.code == code {
		s.code = ""
	}
	s.mu.Unlock()
}

// SetIDToken keeps the ID token in memory.
func (s *Session) SetIDToken(token string) {
	s.mu.Lock()
	s.idToken = token
	s.mu.Unlock()
}

// IDToken returns the ID token.
func (s *Session) IDToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idToken
}

// Credentials returns a copy of all fields taken under one lock.
func (s *Session) Credentials() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Credentials{
		Account:      s.account,
		SessionToken: s.token,
		Code:         s.code,
		IDToken:      s.idToken,
	}
}

// Clear drops every field, in memory and on disk. Both keys are removed even
// if the first removal fails.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.code = ""
	s.idToken = ""
	s.token = ""
	s.account = ""
	return errors.Join(
		s.persistLocked(keySessionID, ""),
		s.persistLocked(keyAccountName, ""),
	)
}

// RequestFreshAuthCode asks the identity provider for a new one-shot code for
// the current account. The code is cleared at the provider right away so
// the next call mints a distinct one. Blocks on the network.
func (s *Session) RequestFreshAuthCode(ctx context.Context) (string, error) {
	return s.requestAuthCode(ctx, false)
}

// RequestInteractiveAuthCode is RequestFreshAuthCode with the provider's
// consent screen enabled; use it after ErrConsentRequired.
func (s *Session) RequestInteractiveAuthCode(ctx context.Context) (string, error) {
	return s.requestAuthCode(ctx, true)
}

func (s *Session) requestAuthCode(ctx context.Context, interactive bool) (string, error) {
	account := s.Account()
	if account == "" {
		return "", ErrNoAccount
	}
	if s.provider == nil {
		return "", fmt.Errorf("no identity provider configured")
	}

	code, err := s.provider.AuthCode(ctx, account, identity.CodeRequest{
		Scopes:         s.opts.Scopes,
		VisibleActions: s.opts.VisibleActions,
		Interactive:    interactive,
	})
	if err != nil {
		return "", fmt.Errorf("request auth code: %w", err)
	}
	if err := s.provider.ClearToken(ctx, code); err != nil {
		s.logger.Warn("clear auth code at provider failed", "error", err)
	}
	return code, nil
}

// RefreshIDToken fetches an ID token for the current account and keeps it
// for the bearer credential path.
func (s *Session) RefreshIDToken(ctx context.Context) (string, error) {
	account := s.Account()
	if account == "" {
		return "", ErrNoAccount
	}
	if s.provider == nil {
		return "", fmt.Errorf("no identity provider configured")
	}
	token, err := s.provider.IDToken(ctx, account, s.opts.IDTokenScope)
	if err != nil {
		return "", fmt.Errorf("fetch id token: %w", err)
	}
	s.SetIDToken(token)
	return token, nil
}

func (s *Session) reloadLocked() error {
	account, _, err := s.store.Get(keyAccountName)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	token, _, err := s.store.Get(keySessionID)
	if err != nil {
		return fmt.Errorf("load session token: %w", err)
	}
	s.account = account
	s.token = token
	return nil
}

func (s *Session) persistLocked(key, value string) error {
	var err error
	if value == "" {
		err = s.store.Remove(key)
	} else {
		err = s.store.Put(key, value)
	}
	if err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}
