// Package bearer verifies service-to-service bearer tokens issued by an
// Azure AD tenant: RS256 signatures from the tenant key set, a fixed
// audience, either of the two issuer formats for the tenant, and an
// optional required app role.
package bearer

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hireloop/ats-gateway/pkg/metrics"
)

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrForbidden    = errors.New("forbidden")
)

// Error is a verification failure. Kind is ErrInvalidToken or ErrForbidden;
// Detail is for logs and debug responses only.
type Error struct {
	Kind   error
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalid(detail string, err error) *Error {
	return &Error{Kind: ErrInvalidToken, Detail: detail, Err: err}
}

type Config struct {
	Audience     string
	IssuerTenant string
	RequiredRole string
}

// Issuers lists the accepted iss values for the configured tenant.
func (c Config) Issuers() []string {
	if c.IssuerTenant == "" {
		return nil
	}
	return []string{
		"https://sts.windows.net/" + c.IssuerTenant + "/",
		"https://login.microsoftonline.com/" + c.IssuerTenant + "/v2.0",
	}
}

// DefaultJWKSURL is the key set location for an Azure AD tenant.
func DefaultJWKSURL(tenant string) string {
	if tenant == "" {
		return ""
	}
	return "https://login.microsoftonline.com/" + tenant + "/discovery/v2.0/keys"
}

// Roles accepts either a single string or a list in the token payload.
type Roles []string

func (r *Roles) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*r = Roles{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("roles: %w", err)
	}
	*r = many
	return nil
}

type Claims struct {
	jwt.RegisteredClaims
	Roles    Roles  `json:"roles,omitempty"`
	TenantID string `json:"tid,omitempty"`
	AppID    string `json:"appid,omitempty"`
	AZP      string `json:"azp,omitempty"`
}

func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Client returns the calling application id (v1 appid or v2 azp).
func (c *Claims) Client() string {
	if c.AppID != "" {
		return c.AppID
	}
	return c.AZP
}

// KeySource resolves a signing key by id.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

type Verifier struct {
	cfg  Config
	keys KeySource
	now  func() time.Time
}

func NewVerifier(cfg Config, keys KeySource) *Verifier {
	return &Verifier{cfg: cfg, keys: keys, now: time.Now}
}

// Verify validates raw and returns its claims. Every failure is an *Error.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims, err := v.verify(ctx, raw)
	switch {
	case err == nil:
		metrics.BearerVerifications.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrForbidden):
		metrics.BearerVerifications.WithLabelValues("forbidden").Inc()
	default:
		metrics.BearerVerifications.WithLabelValues("invalid_token").Inc()
	}
	return claims, err
}

func (v *Verifier) verify(ctx context.Context, raw string) (*Claims, error) {
	if v.cfg.Audience == "" || v.cfg.IssuerTenant == "" {
		return nil, invalid("bearer audience or issuer tenant not configured", nil)
	}
	if v.keys == nil {
		return nil, invalid("no key set configured", nil)
	}
	if raw == "" {
		return nil, invalid("empty token", nil)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return v.keys.Key(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, invalid(err.Error(), err)
	}

	if !v.issuerAllowed(claims.Issuer) {
		return nil, invalid(fmt.Sprintf("unexpected issuer %q", claims.Issuer), nil)
	}
	if v.cfg.RequiredRole != "" && !claims.HasRole(v.cfg.RequiredRole) {
		return nil, &Error{Kind: ErrForbidden, Detail: fmt.Sprintf("missing role %q", v.cfg.RequiredRole)}
	}
	return claims, nil
}

func (v *Verifier) issuerAllowed(iss string) bool {
	for _, want := range v.cfg.Issuers() {
		if iss == want {
			return true
		}
	}
	return false
}
