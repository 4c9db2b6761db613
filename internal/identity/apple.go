package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

const appleIssuer = "https://appleid.apple.com"

// Apple resolves Sign in with Apple identity tokens.
// Apple does not return a display name in the token, so the email local part stands in.
type Apple struct {
	verifier *oidc.IDTokenVerifier
}

type appleClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func NewApple(ctx context.Context, clientID string) (*Apple, error) {
	p, err := oidc.NewProvider(ctx, appleIssuer)
	if err != nil {
		return nil, fmt.Errorf("new oidc provider: %w", err)
	}
	return &Apple{verifier: p.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

func (a *Apple) Resolve(ctx context.Context, token string) (ExternalIdentity, error) {
	idTok, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("verify id token: %w", err)
	}

	var claims appleClaims
	if err := idTok.Claims(&claims); err != nil {
		return ExternalIdentity{}, fmt.Errorf("read claims: %w", err)
	}

	return ExternalIdentity{
		ID:    idTok.Subject,
		Name:  nameOrDefault(claims.Name, claims.Email),
		Email: claims.Email,
	}, nil
}
