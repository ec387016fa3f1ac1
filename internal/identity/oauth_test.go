package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const testIssuer = "https://issuer.test"

// redirectingBrowser simulates a user approving the request: it follows the
// redirect_uri with the given query values plus the request's state.
func redirectingBrowser(t *testing.T, values url.Values, seen *url.Values) func(string) error {
	t.Helper()
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		if seen != nil {
			*seen = q
		}
		redirect := q.Get("redirect_uri")
		out := url.Values{}
		for k, v := range values {
			out[k] = v
		}
		out.Set("state", q.Get("state"))
		resp, err := http.Get(redirect + "?" + out.Encode())
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		return nil
	}
}

func TestAuthCode_ReturnsCodeAndSendsHints(t *testing.T) {
	var seen url.Values
	p := NewOAuthProviderWithEndpoint(OAuthConfig{
		ClientID:       "cli",
		ServerClientID: "server",
		OpenBrowser:    redirectingBrowser(t, url.Values{"code": {"one-shot"}}, &seen),
	}, oauth2.Endpoint{AuthURL: "https://issuer.test/auth"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	code, err := p.AuthCode(ctx, "alice@example.com", CodeRequest{
		Scopes:         []string{"openid", "email"},
		VisibleActions: []string{"http://schemas.google.com/AddActivity"},
	})
	if err != nil {
		t.Fatalf("AuthCode returned error: %v", err)
	}
	if code != "one-shot" {
		t.Fatalf("code = %q, want one-shot", code)
	}
	if seen.Get("client_id") != "server" {
		t.Fatalf("client_id = %q, want server", seen.Get("client_id"))
	}
	if seen.Get("login_hint") != "alice@example.com" {
		t.Fatalf("login_hint = %q", seen.Get("login_hint"))
	}
	if seen.Get("prompt") != "none" {
		t.Fatalf("prompt = %q, want none for non-interactive request", seen.Get("prompt"))
	}
	if seen.Get("access_type") != "offline" {
		t.Fatalf("access_type = %q, want offline", seen.Get("access_type"))
	}
	if seen.Get("request_visible_actions") != "http://schemas.google.com/AddActivity" {
		t.Fatalf("request_visible_actions = %q", seen.Get("request_visible_actions"))
	}
}

func TestAuthCode_ConsentRequired(t *testing.T) {
	p := NewOAuthProviderWithEndpoint(OAuthConfig{
		ClientID:    "cli",
		OpenBrowser: redirectingBrowser(t, url.Values{"error": {"consent_required"}}, nil),
	}, oauth2.Endpoint{AuthURL: "https://issuer.test/auth"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	_, err := p.AuthCode(ctx, "alice@example.com", CodeRequest{})
	if !errors.Is(err, ErrConsentRequired) {
		t.Fatalf("AuthCode error = %v, want ErrConsentRequired", err)
	}
	var consent *ConsentRequiredError
	if !errors.As(err, &consent) || consent.Account != "alice@example.com" || consent.Reason != "consent_required" {
		t.Fatalf("AuthCode error = %#v, want ConsentRequiredError for alice", err)
	}
	resolve, err := url.Parse(consent.ResolveURL)
	if err != nil || !strings.HasPrefix(consent.ResolveURL, "https://issuer.test/auth?") {
		t.Fatalf("ResolveURL = %q, want the provider's authorization URL", consent.ResolveURL)
	}
	if q := resolve.Query(); q.Get("prompt") != "consent" || q.Get("login_hint") != "alice@example.com" {
		t.Fatalf("ResolveURL query = %v, want prompt=consent for alice", q)
	}
}

func TestIDToken_SilentAndReportsConsent(t *testing.T) {
	var seen url.Values
	p := NewOAuthProviderWithEndpoint(OAuthConfig{
		ClientID:    "cli",
		OpenBrowser: redirectingBrowser(t, url.Values{"error": {"login_required"}}, &seen),
	}, oauth2.Endpoint{AuthURL: "https://issuer.test/auth"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	_, err := p.IDToken(ctx, "alice@example.com", "")
	if seen.Get("prompt") != "none" {
		t.Fatalf("prompt = %q, want none for ID tokens", seen.Get("prompt"))
	}
	var consent *ConsentRequiredError
	if !errors.As(err, &consent) || consent.Reason != "login_required" {
		t.Fatalf("IDToken error = %v, want ConsentRequiredError", err)
	}
	if consent.ResolveURL == "" {
		t.Fatalf("ResolveURL is empty")
	}
}

func TestAuthCode_InteractiveAsksForConsent(t *testing.T) {
	var seen url.Values
	p := NewOAuthProviderWithEndpoint(OAuthConfig{
		ClientID:    "cli",
		OpenBrowser: redirectingBrowser(t, url.Values{"code": {"c"}}, &seen),
	}, oauth2.Endpoint{AuthURL: "https://issuer.test/auth"}, nil)

	if _, err := p.AuthCode(context.Background(), "a", CodeRequest{Interactive: true}); err != nil {
		t.Fatalf("AuthCode returned error: %v", err)
	}
	if seen.Get("prompt") != "consent" {
		t.Fatalf("prompt = %q, want consent", seen.Get("prompt"))
	}
}

func TestAuthCode_OtherProviderErrorIsNotConsent(t *testing.T) {
	p := NewOAuthProviderWithEndpoint(OAuthConfig{
		ClientID:    "cli",
		OpenBrowser: redirectingBrowser(t, url.Values{"error": {"access_denied"}}, nil),
	}, oauth2.Endpoint{AuthURL: "https://issuer.test/auth"}, nil)

	_, err := p.AuthCode(context.Background(), "a", CodeRequest{})
	if err == nil || errors.Is(err, ErrConsentRequired) {
		t.Fatalf("AuthCode error = %v, want non-consent failure", err)
	}
	if !strings.Contains(err.Error(), "access_denied") {
		t.Fatalf("AuthCode error = %v, want it to mention access_denied", err)
	}
}

func TestAuthCode_ContextCancelled(t *testing.T) {
	p := NewOAuthProviderWithEndpoint(OAuthConfig{
		ClientID:    "cli",
		OpenBrowser: func(string) error { return nil },
	}, oauth2.Endpoint{AuthURL: "https://issuer.test/auth"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	t.Cleanup(cancel)
	if _, err := p.AuthCode(ctx, "a", CodeRequest{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("AuthCode error = %v, want deadline exceeded", err)
	}
}

func TestCallbackHandler_RejectsWrongState(t *testing.T) {
	results := make(chan callbackResult, 1)
	h := callbackHandler("expected", results)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackPath+"?state=forged&code=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	select {
	case res := <-results:
		t.Fatalf("forged callback delivered %#v", res)
	default:
	}
}

func TestIDToken_ExchangesVerifiesAndCaches(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	idToken := signJWT(t, key, map[string]any{
		"iss":   testIssuer,
		"aud":   "cli",
		"sub":   "123",
		"email": "alice@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	})

	var mu sync.Mutex
	var exchanges int
	var gotVerifier string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		exchanges++
		gotVerifier = r.Form.Get("code_verifier")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	t.Cleanup(tokenServer.Close)

	browserCalls := 0
	browser := redirectingBrowser(t, url.Values{"code": {"c"}}, nil)
	verifier := oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{ClientID: "cli"})
	p := NewOAuthProviderWithEndpoint(OAuthConfig{
		ClientID:     "cli",
		ClientSecret: "secret",
		OpenBrowser: func(u string) error {
			browserCalls++
			return browser(u)
		},
	}, oauth2.Endpoint{
		AuthURL:   "https://issuer.test/auth",
		TokenURL:  tokenServer.URL,
		AuthStyle: oauth2.AuthStyleInParams,
	}, verifier)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	got, err := p.IDToken(ctx, "alice@example.com", "openid email")
	if err != nil {
		t.Fatalf("IDToken returned error: %v", err)
	}
	if got != idToken {
		t.Fatalf("IDToken returned a different token")
	}
	mu.Lock()
	verifierSent := gotVerifier != ""
	mu.Unlock()
	if !verifierSent {
		t.Fatalf("token exchange did not send a PKCE code_verifier")
	}

	if _, err := p.IDToken(ctx, "alice@example.com", "openid email"); err != nil {
		t.Fatalf("second IDToken returned error: %v", err)
	}
	mu.Lock()
	gotExchanges := exchanges
	mu.Unlock()
	if browserCalls != 1 || gotExchanges != 1 {
		t.Fatalf("browser/exchanges = %d/%d, want cached second call (1/1)", browserCalls, gotExchanges)
	}

	if err := p.ClearToken(ctx, idToken); err != nil {
		t.Fatalf("ClearToken returned error: %v", err)
	}
	if _, err := p.IDToken(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("IDToken after clear returned error: %v", err)
	}
	if browserCalls != 2 {
		t.Fatalf("browserCalls = %d, want 2 after ClearToken", browserCalls)
	}
}

func TestClassify(t *testing.T) {
	consent := classify("exchange", "a", &oauth2.RetrieveError{ErrorCode: "interaction_required"})
	if !errors.Is(consent, ErrConsentRequired) {
		t.Fatalf("classify(interaction_required) = %v, want ErrConsentRequired", consent)
	}

	netErr := classify("exchange", "a", &url.Error{Op: "Post", URL: "https://x", Err: errors.New("connection refused")})
	if !errors.Is(netErr, ErrNetwork) {
		t.Fatalf("classify(url.Error) = %v, want ErrNetwork", netErr)
	}

	other := classify("exchange", "a", errors.New("boom"))
	if errors.Is(other, ErrNetwork) || errors.Is(other, ErrConsentRequired) {
		t.Fatalf("classify(boom) = %v, want plain error", other)
	}
}

func signJWT(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header, _ := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	signingInput := enc.EncodeToString(header) + "." + enc.EncodeToString(payload)
	sum := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return fmt.Sprintf("%s.%s", signingInput, enc.EncodeToString(sig))
}
