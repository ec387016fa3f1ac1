package app

import (
	"context"
	"sync"

	"github.com/five82/haikuplus/internal/identity"
)

// discoveringProvider defers OIDC discovery until the first credential is
// needed, so commands that never sign in stay offline. A failed discovery is
// retried on the next call.
type discoveringProvider struct {
	cfg identity.OAuthConfig

	mu       sync.Mutex
	provider *identity.OAuthProvider
}

var _ identity.Provider = (*discoveringProvider)(nil)

func newDiscoveringProvider(cfg identity.OAuthConfig) *discoveringProvider {
	return &discoveringProvider{cfg: cfg}
}

func (d *discoveringProvider) get(ctx context.Context) (*identity.OAuthProvider, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.provider != nil {
		return d.provider, nil
	}
	p, err := identity.NewOAuthProvider(ctx, d.cfg)
	if err != nil {
		return nil, err
	}
	d.provider = p
	return p, nil
}

func (d *discoveringProvider) IDToken(ctx context.Context, account, scope string) (string, error) {
	p, err := d.get(ctx)
	if err != nil {
		return "", err
	}
	return p.IDToken(ctx, account, scope)
}

func (d *discoveringProvider) AuthCode(ctx context.Context, account string, req identity.CodeRequest) (string, error) {
	p, err := d.get(ctx)
	if err != nil {
		return "", err
	}
	return p.AuthCode(ctx, account, req)
}

func (d *discoveringProvider) ClearToken(ctx context.Context, token string) error {
	d.mu.Lock()
	p := d.provider
	d.mu.Unlock()
	if p == nil {
		// Nothing has been cached yet.
		return nil
	}
	return p.ClearToken(ctx, token)
}
