package haiku

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/five82/haikuplus/internal/session"
)

// API is the synchronous Haiku+ API. It is implemented by *Client and can be
// replaced with a fake through Install. Methods returning a single object
// return a non-nil value whenever the error is nil.
type API interface {
	FetchCurrentUser(ctx context.Context) (*User, error)
	FetchHaiku(ctx context.Context, id string) (*Haiku, error)
	FetchStream(ctx context.Context, mode StreamMode) ([]Haiku, error)
	WriteHaiku(ctx context.Context, h Haiku) (*Haiku, error)
	WriteHaikuVote(ctx context.Context, h Haiku) (*Haiku, error)
	SignOut(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Ensure Client implements API at compile time.
var _ API = (*Client)(nil)

// Endpoint paths.
const (
	PathCurrentUser = "/api/users/me"
	PathHaikus      = "/api/haikus"
	PathSignOut     = "/api/signout"
	PathDisconnect  = "/api/disconnect"

	pathVoteSuffix = "/vote"
)

const (
	defaultServerURL = "http://127.0.0.1:4567"
	defaultUserAgent = "Haiku+Client-Go"
	maxResponseBytes = 4 << 20
)

// Client talks to the Haiku+ HTTP API on behalf of one Session.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	session   *session.Session
	retry     RetryPolicy
	logger    *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Per-attempt timeouts come from the
// retry policy, so the client's own Timeout should be zero.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithUserAgent overrides the client identifier header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRetryPolicy sets the policy for every request except sign-out and disconnect.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p.normalized() }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds a Client for serverURL. sess may be nil, in which case
// requests go out without credentials and session cookies are ignored.
func NewClient(serverURL string, sess *session.Session, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(serverURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{},
		userAgent: defaultUserAgent,
		session:   sess,
		retry:     DefaultRetryPolicy,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "haiku-client")
	return c, nil
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *session.Session { return c.session }

// FetchCurrentUser retrieves the signed-in user. A pending one-shot code is
// sent with this request, so it is also the call that establishes a session.
func (c *Client) FetchCurrentUser(ctx context.Context) (*User, error) {
	var user *User
	err := c.do(ctx, http.MethodGet, &url.URL{Path: PathCurrentUser}, nil, &user, c.retry)
	return required(user, err)
}

// FetchHaiku retrieves a single haiku.
func (c *Client) FetchHaiku(ctx context.Context, id string) (*Haiku, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("haiku id required")
	}
	var h *Haiku
	err := c.do(ctx, http.MethodGet, haikuURL(id, ""), nil, &h, c.retry)
	return required(h, err)
}

// FetchStream lists haikus, optionally restricted to the user's circles.
func (c *Client) FetchStream(ctx context.Context, mode StreamMode) ([]Haiku, error) {
	rel := &url.URL{Path: PathHaikus}
	if mode == StreamFriends {
		rel.RawQuery = "filter=circles"
	}
	var haikus []Haiku
	if err := c.do(ctx, http.MethodGet, rel, nil, &haikus, c.retry); err != nil {
		return nil, err
	}
	return haikus, nil
}

// WriteHaiku validates and posts a new haiku, returning the server's copy.
func (c *Client) WriteHaiku(ctx context.Context, h Haiku) (*Haiku, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	var created *Haiku
	err := c.do(ctx, http.MethodPost, &url.URL{Path: PathHaikus}, h, &created, c.retry)
	return required(created, err)
}

// WriteHaikuVote adds the user's vote to h and returns the updated haiku.
func (c *Client) WriteHaikuVote(ctx context.Context, h Haiku) (*Haiku, error) {
	if strings.TrimSpace(h.ID) == "" {
		return nil, fmt.Errorf("haiku id required")
	}
	var voted *Haiku
	err := c.do(ctx, http.MethodPost, haikuURL(h.ID, pathVoteSuffix), nil, &voted, c.retry)
	return required(voted, err)
}

// SignOut ends the server session. The local session is cleared whatever
// the server answers; the returned error is informational.
func (c *Client) SignOut(ctx context.Context) error {
	return c.endSession(ctx, PathSignOut)
}

// Disconnect revokes the app's access to the account. Like SignOut, the
// local session is always cleared.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.endSession(ctx, PathDisconnect)
}

func (c *Client) endSession(ctx context.Context, path string) error {
	err := c.do(ctx, http.MethodPost, &url.URL{Path: path}, nil, nil, NoRetry)
	if c.session != nil {
		if clearErr := c.session.Clear(); clearErr != nil {
			c.logger.Warn("clear session failed", "path", path, "error", clearErr)
		}
	}
	if err != nil {
		c.logger.Info("server did not acknowledge sign-out", "path", path, "error", err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method string, rel *url.URL, body, dest any, policy RetryPolicy) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = encoded
	}

	for attempt := 0; ; attempt++ {
		err := c.attempt(ctx, method, rel, payload, dest, policy.attemptTimeout(attempt))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !policy.shouldRetry(attempt, err) {
			return err
		}
		c.logger.Debug("retrying request", "method", method, "path", rel.Path, "attempt", attempt+1, "error", err)
	}
}

func (c *Client) attempt(ctx context.Context, method string, rel *url.URL, payload []byte, dest any, timeout time.Duration) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(attemptCtx, method, reqURL.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("execute request: %w", ctx.Err())
		}
		return fmt.Errorf("execute request: %w: %w", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.captureSession(resp.Header)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("read response: %w", ctx.Err())
		}
		return fmt.Errorf("read response: %w: %w", ErrNetwork, err)
	}

	if resp.StatusCode >= 400 {
		return c.statusError(method, rel, resp)
	}
	if dest == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response: %w: %w", ErrDecode, err)
	}
	return nil
}

// authorize applies the first matching credential rule. A one-shot code is
// consumed as soon as it is attached.
func (c *Client) authorize(h http.Header) {
	if c.session == nil {
		return
	}
	creds := c.session.Credentials()
	rule, ok := selectCredential(creds)
	if !ok {
		if creds.Account != "" {
			c.logger.Debug("no credential available for account", "account", creds.Account)
		}
		return
	}
	rule.apply(h, creds)
	if rule.consumesCode {
		c.session.ConsumeOneShotAuthCode(creds.Code)
	}
}

func (c *Client) captureSession(h http.Header) {
	if c.session == nil {
		return
	}
	token, ok := sessionTokenFromHeader(h)
	if !ok {
		return
	}
	if err := c.session.SetSessionToken(token); err != nil {
		c.logger.Warn("persist session token failed", "error", err)
	}
}

func (c *Client) statusError(method string, rel *url.URL, resp *http.Response) error {
	apiErr := &APIError{
		Method:     method,
		Path:       rel.String(),
		StatusCode: resp.StatusCode,
		err:        ErrStatus,
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return apiErr
	}
	switch {
	case resp.Header.Get(HeaderOAuthCode) != "":
		apiErr.Kind = CredentialCode
		apiErr.err = ErrAuthChallenge
	case resp.Header.Get("WWW-Authenticate") != "":
		if c.session != nil {
			if err := c.session.SetSessionToken(""); err != nil {
				c.logger.Warn("clear session token failed", "error", err)
			}
		}
		apiErr.Kind = CredentialRetry
		apiErr.err = ErrSessionExpired
	}
	return apiErr
}

// required rejects a successful response that carried no object, either an
// empty body or a JSON null. Single-object endpoints never return nil, nil.
func required[T any](v *T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("decode response: %w: empty response", ErrDecode)
	}
	return v, nil
}

func haikuURL(id, suffix string) *url.URL {
	return &url.URL{
		Path:    PathHaikus + "/" + id + suffix,
		RawPath: PathHaikus + "/" + url.PathEscape(id) + suffix,
	}
}

func parseBaseURL(serverURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(serverURL)
	if trimmed == "" {
		trimmed = defaultServerURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse server url %q: %w", serverURL, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
