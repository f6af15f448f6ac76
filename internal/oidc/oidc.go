package oidc

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrNotConfigured  = errors.New("oidc provider not configured")
	ErrMissingIDToken = errors.New("token response has no id_token")
	ErrNonceMismatch  = errors.New("id token nonce mismatch")
)

// DefaultScopes are requested on every login.
var DefaultScopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}

type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
}

// Identity is the verified result of a code exchange.
type Identity struct {
	Claims       map[string]interface{}
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Provider runs the authorization-code flow against one issuer.
// Discovery happens on first use and is retried on later calls until it succeeds.
type Provider struct {
	cfg Config

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
}

func NewProvider(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	ctx = oidc.ClientContext(ctx, p.cfg.HTTPClient)
	return context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
}

func (p *Provider) discover() (*oidc.IDTokenVerifier, *oauth2.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.oauth != nil {
		return p.verifier, p.oauth, nil
	}
	if p.cfg.Issuer == "" || p.cfg.ClientID == "" {
		return nil, nil, ErrNotConfigured
	}
	// the provider keeps this context for later key fetches, so it must not be cancelled
	provider, err := oidc.NewProvider(p.clientContext(context.Background()), p.cfg.Issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	p.verifier = provider.Verifier(&oidc.Config{ClientID: p.cfg.ClientID})
	p.oauth = &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       p.cfg.Scopes,
	}
	return p.verifier, p.oauth, nil
}

// AuthCodeURL returns the provider's authorization URL carrying state and nonce.
func (p *Provider) AuthCodeURL(ctx context.Context, state, nonce string) (string, error) {
	_, oc, err := p.discover()
	if err != nil {
		return "", err
	}
	return oc.AuthCodeURL(state, oidc.Nonce(nonce)), nil
}

// Exchange redeems code and verifies the returned ID token against the
// client id and the nonce issued with the login.
func (p *Provider) Exchange(ctx context.Context, code, nonce string) (*Identity, error) {
	v, oc, err := p.discover()
	if err != nil {
		return nil, err
	}
	ctx = p.clientContext(ctx)

	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, ErrMissingIDToken
	}
	idToken, err := v.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	if nonce == "" || subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(nonce)) != 1 {
		return nil, ErrNonceMismatch
	}

	claims := map[string]interface{}{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}
	return &Identity{
		Claims:       claims,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}
