package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrProviderConflict    = errors.New("provider already registered")
	ErrProviderFailure     = errors.New("provider failure")
)

const defaultTimeout = 10 * time.Second

// ExternalIdentity is the canonical shape every provider resolves a token into.
type ExternalIdentity struct {
	ID     string
	Name   string
	Email  string
	Avatar string
}

// Provider exchanges a third-party token for an identity.
type Provider interface {
	Resolve(ctx context.Context, token string) (ExternalIdentity, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, token string) (ExternalIdentity, error)

func (f ProviderFunc) Resolve(ctx context.Context, token string) (ExternalIdentity, error) {
	return f(ctx, token)
}

// Gateway is a registry of named providers.
type Gateway struct {
	providers map[string]Provider
	timeout   time.Duration
	mu        sync.RWMutex
}

func NewGateway(timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gateway{
		providers: make(map[string]Provider),
		timeout:   timeout,
	}
}

func (g *Gateway) Use(name string, p Provider) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	name = strings.ToLower(name)
	if _, ok := g.providers[name]; ok {
		return ErrProviderConflict
	}
	g.providers[name] = p
	return nil
}

// Supports reports whether a provider is registered under name.
func (g *Gateway) Supports(name string) bool {
	_, err := g.getProvider(name)
	return err == nil
}

// Resolve asks the named provider for the identity behind token.
// Every provider error, including a timeout, is wrapped in ErrProviderFailure.
func (g *Gateway) Resolve(ctx context.Context, provider, token string) (ExternalIdentity, error) {
	p, err := g.getProvider(provider)
	if err != nil {
		return ExternalIdentity{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ident, err := p.Resolve(ctx, token)
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: %s: %w", ErrProviderFailure, provider, err)
	}
	if ctx.Err() != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: %s: %w", ErrProviderFailure, provider, ctx.Err())
	}

	ident.Email = strings.ToLower(strings.TrimSpace(ident.Email))
	return ident, nil
}

func (g *Gateway) getProvider(name string) (Provider, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, ok := g.providers[strings.ToLower(name)]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return p, nil
}

// nameOrDefault returns name when set, otherwise the local part of email.
func nameOrDefault(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}
