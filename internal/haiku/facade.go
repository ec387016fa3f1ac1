package haiku

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/five82/haikuplus/internal/queue"
	"github.com/five82/haikuplus/internal/session"
)

// Queue tags, one per endpoint.
const (
	TagCurrentUser = PathCurrentUser
	TagStream      = PathHaikus
	TagHaiku       = PathHaikus + "/{id}"
	TagWrite       = "POST " + PathHaikus
	TagVote        = PathHaikus + "/{id}" + pathVoteSuffix
	TagSignOut     = PathSignOut
	TagDisconnect  = PathDisconnect
	TagAuthCode    = "identity/auth-code"
)

// Result is the outcome of an asynchronous call: Value on success, Err with
// a zero Value on failure.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Facade runs API calls on a queue and delivers each outcome exactly once
// through the queue's dispatcher.
type Facade struct {
	api     API
	queue   *queue.Queue
	session *session.Session
	logger  *slog.Logger
}

// NewFacade wraps api. sess is only needed for RequestFreshAuthCode.
func NewFacade(api API, q *queue.Queue, sess *session.Session, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		api:     api,
		queue:   q,
		session: sess,
		logger:  logger.With("component", "haiku-facade"),
	}
}

// API returns the wrapped synchronous API.
func (f *Facade) API() API { return f.api }

// FetchCurrentUser delivers the signed-in user.
func (f *Facade) FetchCurrentUser(ctx context.Context, cb func(Result[*User])) {
	submit(f, ctx, TagCurrentUser, cb, func(ctx context.Context) (*User, error) {
		return f.api.FetchCurrentUser(ctx)
	}, nil)
}

// FetchHaiku delivers one haiku.
func (f *Facade) FetchHaiku(ctx context.Context, id string, cb func(Result[*Haiku])) {
	submit(f, ctx, TagHaiku, cb, func(ctx context.Context) (*Haiku, error) {
		return f.api.FetchHaiku(ctx, id)
	}, nil)
}

// FetchStream delivers the haiku stream.
func (f *Facade) FetchStream(ctx context.Context, mode StreamMode, cb func(Result[[]Haiku])) {
	submit(f, ctx, TagStream, cb, func(ctx context.Context) ([]Haiku, error) {
		return f.api.FetchStream(ctx, mode)
	}, nil)
}

// WriteHaiku posts h and delivers the created haiku.
func (f *Facade) WriteHaiku(ctx context.Context, h Haiku, cb func(Result[*Haiku])) {
	submit(f, ctx, TagWrite, cb, func(ctx context.Context) (*Haiku, error) {
		return f.api.WriteHaiku(ctx, h)
	}, nil)
}

// WriteHaikuVote votes for h. On failure the error is logged and the callback
// receives an unmodified copy of h as a successful result.
func (f *Facade) WriteHaikuVote(ctx context.Context, h Haiku, cb func(Result[*Haiku])) {
	original := h
	submit(f, ctx, TagVote, cb, func(ctx context.Context) (*Haiku, error) {
		return f.api.WriteHaikuVote(ctx, h)
	}, func(err error) Result[*Haiku] {
		f.logger.Info("vote failed, keeping original haiku", "haiku", original.ID, "error", err)
		unchanged := original
		return Result[*Haiku]{Value: &unchanged}
	})
}

// SignOut ends the session. done always runs.
func (f *Facade) SignOut(ctx context.Context, done func()) {
	f.endSession(ctx, TagSignOut, f.api.SignOut, done)
}

// Disconnect revokes access. done always runs.
func (f *Facade) Disconnect(ctx context.Context, done func()) {
	f.endSession(ctx, TagDisconnect, f.api.Disconnect, done)
}

// RequestFreshAuthCode fetches a one-shot code off the caller's goroutine
// and stores it in the session before delivering it.
func (f *Facade) RequestFreshAuthCode(ctx context.Context, cb func(Result[string])) {
	submit(f, ctx, TagAuthCode, cb, func(ctx context.Context) (string, error) {
		if f.session == nil {
			return "", fmt.Errorf("no session configured")
		}
		code, err := f.session.RequestFreshAuthCode(ctx)
		if err != nil {
			return "", err
		}
		f.session.SetOneShotAuthCode(code)
		return code, nil
	}, nil)
}

// CancelAll cancels queued and running calls under tag; their callbacks are
// not delivered.
func (f *Facade) CancelAll(tag string) int {
	return f.queue.CancelAll(tag)
}

func (f *Facade) endSession(ctx context.Context, tag string, call func(context.Context) error, done func()) {
	submit(f, ctx, tag, func(Result[struct{}]) {
		if done != nil {
			done()
		}
	}, func(ctx context.Context) (struct{}, error) {
		if err := call(ctx); err != nil {
			f.logger.Debug("ignoring sign-out failure", "tag", tag, "error", err)
		}
		return struct{}{}, nil
	}, nil)
}

// submit runs call on the queue. onErr, when set, builds the failure result
// instead of the default zero Value.
func submit[T any](f *Facade, ctx context.Context, tag string, cb func(Result[T]), call func(context.Context) (T, error), onErr func(error) Result[T]) {
	deliver := func(res Result[T]) func() {
		if cb == nil {
			return nil
		}
		return func() { cb(res) }
	}
	fail := func(err error) Result[T] {
		if onErr != nil {
			return onErr(err)
		}
		return Result[T]{Err: err}
	}

	_, err := f.queue.Add(ctx, tag, func(ctx context.Context) func() {
		value, err := call(ctx)
		if err != nil {
			return deliver(fail(err))
		}
		return deliver(Result[T]{Value: value})
	})
	if err != nil {
		f.logger.Warn("request not queued", "tag", tag, "error", err)
		if d := deliver(fail(fmt.Errorf("queue %s: %w", tag, err))); d != nil {
			f.queue.Dispatch(d)
		}
	}
}

var installed struct {
	mu  sync.RWMutex
	api API
}

// Install replaces the API returned by New until restore is called. Tests
// use it to substitute a fake without touching call sites.
func Install(api API) (restore func()) {
	installed.mu.Lock()
	prev := installed.api
	installed.api = api
	installed.mu.Unlock()
	return func() {
		installed.mu.Lock()
		installed.api = prev
		installed.mu.Unlock()
	}
}

// New returns the installed API if there is one, otherwise a new Client.
func New(serverURL string, sess *session.Session, opts ...Option) (API, error) {
	installed.mu.RLock()
	api := installed.api
	installed.mu.RUnlock()
	if api != nil {
		return api, nil
	}
	return NewClient(serverURL, sess, opts...)
}
