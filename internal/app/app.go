package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/five82/haikuplus/internal/config"
	"github.com/five82/haikuplus/internal/haiku"
	"github.com/five82/haikuplus/internal/identity"
	"github.com/five82/haikuplus/internal/prefs"
	"github.com/five82/haikuplus/internal/queue"
	"github.com/five82/haikuplus/internal/session"
	"github.com/five82/haikuplus/internal/state"
)

// resumeTokenTimeout bounds the silent ID token fetch during Resume. The
// provider answers a silent request by redirecting at once; a browser that
// never opens must not hold up start-up.
const resumeTokenTimeout = 30 * time.Second

// Options configure a Runtime. Zero fields are filled from the config file.
type Options struct {
	ConfigPath string
	// Config, when set, is used instead of loading ConfigPath.
	Config *config.Config

	Prefs      prefs.Store
	Provider   identity.Provider
	Dispatcher queue.Dispatcher
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Runtime owns the process-wide session and everything bound to it.
type Runtime struct {
	Config  config.Config
	Session *session.Session
	API     haiku.API
	Queue   *queue.Queue
	Facade  *haiku.Facade
	State   *state.Store

	logger       *slog.Logger
	closers      []io.Closer
	tokenTimeout time.Duration
}

// Open builds a Runtime. It performs no network I/O; the identity provider
// discovers its endpoints on first use.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cfg config.Config
	if opts.Config != nil {
		cfg = *opts.Config
	} else {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	rt := &Runtime{Config: cfg, State: &state.Store{}, logger: logger, tokenTimeout: resumeTokenTimeout}

	store := opts.Prefs
	if store == nil {
		opened, err := prefs.Open(cfg.PrefsBackend, session.StoreName, cfg.PrefsPath)
		if err != nil {
			return nil, fmt.Errorf("open prefs: %w", err)
		}
		if c, ok := opened.(io.Closer); ok {
			rt.closers = append(rt.closers, c)
		}
		store = opened
	}

	provider := opts.Provider
	if provider == nil {
		provider = newDiscoveringProvider(identity.OAuthConfig{
			Issuer:         cfg.Issuer,
			ClientID:       cfg.OAuthClientID,
			ClientSecret:   cfg.OAuthClientSecret,
			ServerClientID: cfg.ServerClientID,
			HTTPClient:     opts.HTTPClient,
			Logger:         logger,
		})
	}

	sess, err := session.New(store, session.Options{
		Provider:       provider,
		Scopes:         cfg.Scopes,
		VisibleActions: cfg.VisibleActions,
		IDTokenScope:   strings.Join(cfg.Scopes, " "),
		Logger:         logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("init session: %w", err)
	}
	rt.Session = sess

	clientOpts := []haiku.Option{
		haiku.WithUserAgent(cfg.UserAgent),
		haiku.WithRetryPolicy(haiku.RetryPolicy{
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
			Multiplier: cfg.BackoffMultiplier,
		}),
		haiku.WithLogger(logger),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, haiku.WithHTTPClient(opts.HTTPClient))
	}
	api, err := haiku.New(cfg.ServerURL, sess, clientOpts...)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("init haiku client: %w", err)
	}
	rt.API = api

	rt.Queue = queue.New(queue.Options{
		Workers:    cfg.Workers,
		Dispatcher: opts.Dispatcher,
		Logger:     logger,
	})
	rt.Facade = haiku.NewFacade(api, rt.Queue, sess, logger)

	logger.Debug("runtime opened",
		"server", cfg.ServerURL,
		"prefs_backend", cfg.PrefsBackend,
		"status", sess.Status(false).String(),
	)
	return rt, nil
}

// Close stops the queue and releases the preference store.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	if r.Queue != nil {
		r.Queue.Close()
	}
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Resume restores the signed-in user on start-up. With no stored account it
// returns (nil, nil). With an account but no session cookie it first fetches
// an ID token so the request carries a bearer credential. That fetch never
// prompts and gives up after a bounded wait; the user request then goes out
// without credentials and fails with a sign-in error.
func (r *Runtime) Resume(ctx context.Context) (*haiku.User, error) {
	switch r.Session.Status(true) {
	case session.Unauthenticated:
		return nil, nil
	case session.HasAccount:
		tokenCtx, cancel := context.WithTimeout(ctx, r.tokenTimeout)
		_, err := r.Session.RefreshIDToken(tokenCtx)
		cancel()
		if err != nil {
			r.logger.Info("no id token for stored account", "error", err)
		}
	}
	user, err := r.API.FetchCurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}
	r.State.SetUser(user)
	return user, nil
}

// SignOut ends the session on the server and locally. Local state is
// cleared even when the server call fails; that failure is only logged.
func (r *Runtime) SignOut(ctx context.Context) {
	if err := r.API.SignOut(ctx); err != nil {
		r.logger.Info("sign-out not acknowledged", "error", err)
	}
	r.signedOut()
}

// Disconnect revokes access on the server and clears local state.
func (r *Runtime) Disconnect(ctx context.Context) {
	if err := r.API.Disconnect(ctx); err != nil {
		r.logger.Info("disconnect not acknowledged", "error", err)
	}
	r.signedOut()
}

func (r *Runtime) signedOut() {
	// The API clears the session itself; a fake installed in tests may not.
	if err := r.Session.Clear(); err != nil {
		r.logger.Warn("clear session failed", "error", err)
	}
	r.State.Reset()
}
