package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

var ErrEmailNotVerified = errors.New("email address not verified")

// Google resolves Google access tokens through the OIDC userinfo endpoint.
type Google struct {
	provider *oidc.Provider
}

type googleClaims struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// NewGoogle performs OIDC discovery against Google.
func NewGoogle(ctx context.Context) (*Google, error) {
	return newGoogle(ctx, googleIssuer)
}

func newGoogle(ctx context.Context, issuer string) (*Google, error) {
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("new oidc provider: %w", err)
	}
	return &Google{provider: p}, nil
}

// Resolve fails with ErrEmailNotVerified when Google has not verified the address.
func (g *Google) Resolve(ctx context.Context, token string) (ExternalIdentity, error) {
	info, err := g.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("userinfo: %w", err)
	}

	var claims googleClaims
	if err := info.Claims(&claims); err != nil {
		return ExternalIdentity{}, fmt.Errorf("read claims: %w", err)
	}

	email := info.Email
	if email == "" {
		email = claims.Email
	}
	if email != "" && !info.EmailVerified {
		return ExternalIdentity{}, fmt.Errorf("google %s: %w", email, ErrEmailNotVerified)
	}
	return ExternalIdentity{
		ID:     info.Subject,
		Name:   nameOrDefault(claims.Name, email),
		Email:  email,
		Avatar: claims.Picture,
	}, nil
}
