package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/five82/haikuplus/internal/haiku"
	"github.com/five82/haikuplus/internal/identity"
	"github.com/five82/haikuplus/internal/session"
)

// TagSignIn groups queued sign-in attempts.
const TagSignIn = "signin"

const maxSignInAttempts = 3

// ConsentResolver is called when the identity provider needs the user to
// act. Returning nil retries with the provider's consent screen; returning
// an error aborts sign-in with that error.
type ConsentResolver func(ctx context.Context, consent *identity.ConsentRequiredError) error

// SignIn selects account, obtains a one-shot code and exchanges it with the
// server by fetching the current user. An empty account reuses the stored
// one. A server rejection of the code restarts the exchange with a new code.
func (r *Runtime) SignIn(ctx context.Context, account string, resolve ConsentResolver) (*haiku.User, error) {
	if account != "" {
		if err := r.Session.SetAccount(account); err != nil {
			return nil, fmt.Errorf("sign in: %w", err)
		}
	}
	if r.Session.Account() == "" {
		return nil, fmt.Errorf("sign in: %w", session.ErrNoAccount)
	}

	var lastErr error
	for attempt := 1; attempt <= maxSignInAttempts; attempt++ {
		code, err := r.authCode(ctx, resolve)
		if err != nil {
			return nil, fmt.Errorf("sign in: %w", err)
		}
		r.Session.SetOneShotAuthCode(code)

		user, err := r.API.FetchCurrentUser(ctx)
		if err == nil {
			r.State.SetUser(user)
			r.logger.Info("signed in", "account", r.Session.Account(), "user", user.ID)
			return user, nil
		}
		if !haiku.NeedsSignIn(err) {
			return nil, fmt.Errorf("sign in: %w", err)
		}
		r.logger.Debug("server rejected credential, retrying", "attempt", attempt, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("sign in: gave up after %d attempts: %w", maxSignInAttempts, lastErr)
}

// SignInAsync runs SignIn on the queue and delivers the result through the
// runtime's dispatcher.
func (r *Runtime) SignInAsync(ctx context.Context, account string, resolve ConsentResolver, cb func(haiku.Result[*haiku.User])) {
	_, err := r.Queue.Add(ctx, TagSignIn, func(ctx context.Context) func() {
		user, err := r.SignIn(ctx, account, resolve)
		if cb == nil {
			return nil
		}
		return func() { cb(haiku.Result[*haiku.User]{Value: user, Err: err}) }
	})
	if err != nil && cb != nil {
		r.Queue.Dispatch(func() { cb(haiku.Result[*haiku.User]{Err: fmt.Errorf("queue %s: %w", TagSignIn, err)}) })
	}
}

func (r *Runtime) authCode(ctx context.Context, resolve ConsentResolver) (string, error) {
	code, err := r.Session.RequestFreshAuthCode(ctx)
	if err == nil {
		return code, nil
	}
	var consent *identity.ConsentRequiredError
	if !errors.As(err, &consent) || resolve == nil {
		return "", err
	}
	if err := resolve(ctx, consent); err != nil {
		return "", err
	}
	return r.Session.RequestInteractiveAuthCode(ctx)
}

// OpenDeepLink fetches the haiku a deep link points at and performs its
// action. For a vote the user is signed in first if the server asks for it;
// when the vote still fails the fetched haiku is returned with the error.
func (r *Runtime) OpenDeepLink(ctx context.Context, raw string, resolve ConsentResolver) (*haiku.Haiku, error) {
	link, err := haiku.ParseDeepLink(raw)
	if err != nil {
		return nil, err
	}
	h, err := r.API.FetchHaiku(ctx, link.HaikuID)
	if err != nil {
		return nil, err
	}
	if link.Action != haiku.ActionVote {
		return h, nil
	}
	return r.Vote(ctx, *h, resolve)
}

// Vote casts a vote for h. If the server wants a fresh sign-in and an
// account is known, it signs in once and retries.
func (r *Runtime) Vote(ctx context.Context, h haiku.Haiku, resolve ConsentResolver) (*haiku.Haiku, error) {
	voted, err := r.API.WriteHaikuVote(ctx, h)
	if haiku.NeedsSignIn(err) && r.Session.Account() != "" {
		if _, signErr := r.SignIn(ctx, "", resolve); signErr != nil {
			return &h, signErr
		}
		voted, err = r.API.WriteHaikuVote(ctx, h)
	}
	if err != nil {
		return &h, err
	}
	r.State.UpdateHaiku(*voted)
	return voted, nil
}
