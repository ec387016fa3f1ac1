package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	callbackPath        = "/oauth2/callback"
	defaultListenAddr   = "127.0.0.1:0"
	tokenExpirySkew     = time.Minute
	shutdownGracePeriod = 2 * time.Second
)

// Provider error codes that mean "ask the user", per OpenID Connect Core 3.1.2.6.
var consentErrorCodes = map[string]bool{
	"consent_required":           true,
	"interaction_required":       true,
	"login_required":             true,
	"account_selection_required": true,
}

// OAuthConfig configures an OAuthProvider.
type OAuthConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	// ServerClientID is the client the one-shot code is issued for.
	ServerClientID string

	HTTPClient *http.Client
	// OpenBrowser sends the user to the authorization URL. Defaults to the
	// platform URL opener.
	OpenBrowser func(authURL string) error
	ListenAddr  string
	Logger      *slog.Logger
}

// OAuthProvider implements Provider against an OpenID Connect issuer. Both
// codes and ID tokens are obtained through the authorization code flow with
// a loopback redirect; ID tokens are verified and cached per account.
type OAuthProvider struct {
	cfg      OAuthConfig
	endpoint oauth2.Endpoint
	verifier *oidc.IDTokenVerifier
	logger   *slog.Logger

	mu     sync.Mutex
	tokens map[string]cachedToken
}

type cachedToken struct {
	raw    string
	expiry time.Time
}

var _ Provider = (*OAuthProvider)(nil)

// NewOAuthProvider fetches the issuer's discovery document and builds a provider.
// Makes an outbound HTTP request at startup.
func NewOAuthProvider(ctx context.Context, cfg OAuthConfig) (*OAuthProvider, error) {
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}
	p, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		if isTransportError(err) {
			return nil, networkError("oidc discovery", err)
		}
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	verifier := p.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return NewOAuthProviderWithEndpoint(cfg, p.Endpoint(), verifier), nil
}

// NewOAuthProviderWithEndpoint builds a provider without discovery.
func NewOAuthProviderWithEndpoint(cfg OAuthConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *OAuthProvider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OpenBrowser == nil {
		cfg.OpenBrowser = openURL
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	return &OAuthProvider{
		cfg:      cfg,
		endpoint: endpoint,
		verifier: verifier,
		logger:   logger,
		tokens:   make(map[string]cachedToken),
	}
}

// AuthCode runs the authorization code flow for the server's client and
// returns the code without exchanging it.
func (p *OAuthProvider) AuthCode(ctx context.Context, account string, req CodeRequest) (string, error) {
	clientID := p.cfg.ServerClientID
	if clientID == "" {
		clientID = p.cfg.ClientID
	}
	conf := p.oauthConfig(clientID, "", req.Scopes)

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("login_hint", account),
	}
	if len(req.VisibleActions) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("request_visible_actions", strings.Join(req.VisibleActions, " ")))
	}
	if req.Interactive {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "consent"))
	} else {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "none"))
	}

	code, err := p.authorize(ctx, conf, account, opts...)
	if err != nil {
		return "", err
	}
	p.logger.Debug("obtained authorization code", "account", account)
	return code, nil
}

// IDToken returns a cached ID token for account, or runs a silent
// authorization code flow with PKCE and verifies the returned id_token. The
// provider is asked not to prompt; if it needs the user, IDToken returns a
// *ConsentRequiredError instead of waiting on a consent screen.
func (p *OAuthProvider) IDToken(ctx context.Context, account, scope string) (string, error) {
	if raw, ok := p.cached(account); ok {
		return raw, nil
	}

	scopes := strings.Fields(scope)
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email"}
	}
	conf := p.oauthConfig(p.cfg.ClientID, p.cfg.ClientSecret, scopes)

	verifier := oauth2.GenerateVerifier()
	code, err := p.authorize(ctx, conf, account,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("login_hint", account),
		oauth2.SetAuthURLParam("prompt", "none"),
	)
	if err != nil {
		return "", err
	}

	token, err := conf.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", classify("exchanging code", account, err)
	}

	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", fmt.Errorf("no id_token in token response")
	}
	idToken, err := p.verifier.Verify(p.clientContext(ctx), raw)
	if err != nil {
		return "", fmt.Errorf("verifying id token: %w", err)
	}

	p.mu.Lock()
	p.tokens[account] = cachedToken{raw: raw, expiry: idToken.Expiry}
	p.mu.Unlock()
	return raw, nil
}

// ClearToken forgets a cached ID token. Codes are never cached, so clearing
// a code only guarantees the next AuthCode call runs a fresh flow.
func (p *OAuthProvider) ClearToken(_ context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for account, cached := range p.tokens {
		if cached.raw == token {
			delete(p.tokens, account)
		}
	}
	return nil
}

func (p *OAuthProvider) cached(account string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tokens[account]
	if !ok {
		return "", false
	}
	if !t.expiry.IsZero() && time.Now().Add(tokenExpirySkew).After(t.expiry) {
		delete(p.tokens, account)
		return "", false
	}
	return t.raw, true
}

func (p *OAuthProvider) oauthConfig(clientID, secret string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		Endpoint:     p.endpoint,
		Scopes:       scopes,
	}
}

func (p *OAuthProvider) clientContext(ctx context.Context) context.Context {
	if p.cfg.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
}

type callbackResult struct {
	code        string
	errCode     string
	description string
}

// authorize starts a loopback receiver, opens the authorization URL and
// waits for the redirect carrying the code.
func (p *OAuthProvider) authorize(ctx context.Context, conf *oauth2.Config, account string, opts ...oauth2.AuthCodeOption) (string, error) {
	ln, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		return "", fmt.Errorf("listen for redirect: %w", err)
	}
	conf.RedirectURL = "http://" + ln.Addr().String() + callbackPath

	state := uuid.NewString()
	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := conf.AuthCodeURL(state, opts...)
	p.logger.Debug("opening authorization url", "account", account, "redirect", conf.RedirectURL)
	if err := p.cfg.OpenBrowser(authURL); err != nil {
		return "", fmt.Errorf("open browser: %w", err)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-results:
		if res.errCode != "" {
			if consentErrorCodes[res.errCode] {
				return "", &ConsentRequiredError{Account: account, Reason: res.errCode, ResolveURL: interactiveURL(conf, state, opts)}
			}
			if res.description != "" {
				return "", fmt.Errorf("authorization failed: %s: %s", res.errCode, res.description)
			}
			return "", fmt.Errorf("authorization failed: %s", res.errCode)
		}
		return res.code, nil
	}
}

// interactiveURL is the authorization URL with the consent screen forced,
// for the user to open when a silent request needs them.
func interactiveURL(conf *oauth2.Config, state string, opts []oauth2.AuthCodeOption) string {
	opts = append(opts[:len(opts):len(opts)], oauth2.SetAuthURLParam("prompt", "consent"))
	return conf.AuthCodeURL(state, opts...)
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	r := chi.NewRouter()
	r.Get(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}

		res := callbackResult{
			code:        q.Get("code"),
			errCode:     q.Get("error"),
			description: q.Get("error_description"),
		}
		if res.errCode == "" && res.code == "" {
			res.errCode = "missing_code"
		}
		select {
		case results <- res:
		default:
		}

		if res.errCode != "" {
			http.Error(w, "Sign-in did not complete. You can close this window.", http.StatusBadRequest)
			return
		}
		_, _ = fmt.Fprintln(w, "Signed in to Haiku+. You can close this window.")
	})
	return r
}

func classify(op, account string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && consentErrorCodes[retrieveErr.ErrorCode] {
		return &ConsentRequiredError{Account: account, Reason: retrieveErr.ErrorCode}
	}
	if isTransportError(err) {
		return networkError(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func openURL(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	slog.Info("open this URL to continue sign-in", "url", target)
	if err := cmd.Start(); err != nil {
		// The URL is logged; a missing opener is not fatal.
		return nil
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
