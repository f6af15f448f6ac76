package sessions

import (
	"errors"
	"time"

	"github.com/hireloop/ats-gateway/internal/models"
)

var ErrIncompletePrincipal = errors.New("principal requires id and email")

// Session is the server-side record behind the session cookie.
type Session struct {
	ID           string                 `bson:"_id" json:"id"`
	User         *models.User           `bson:"user,omitempty" json:"user,omitempty"`
	Claims       map[string]interface{} `bson:"claims,omitempty" json:"claims,omitempty"`
	AccessToken  string                 `bson:"accessToken,omitempty" json:"accessToken,omitempty"`
	RefreshToken string                 `bson:"refreshToken,omitempty" json:"refreshToken,omitempty"`
	// LoginState and LoginNonce live only between /auth/login and /auth/callback.
	LoginState string    `bson:"loginState,omitempty" json:"loginState,omitempty"`
	LoginNonce string    `bson:"loginNonce,omitempty" json:"loginNonce,omitempty"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt  time.Time `bson:"expiresAt" json:"expiresAt"`
}

// Authenticated reports whether the session holds a complete principal.
func (s *Session) Authenticated() bool {
	return s != nil && s.User.Complete()
}

// SetUser stores u as the principal. Incomplete principals are refused and
// leave the session unchanged.
func (s *Session) SetUser(u *models.User) error {
	if !u.Complete() {
		return ErrIncompletePrincipal
	}
	s.User = u
	return nil
}

func (s *Session) ClearLoginState() {
	s.LoginState = ""
	s.LoginNonce = ""
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
