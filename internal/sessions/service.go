package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultMaxAge is the absolute session lifetime. Activity does not extend it.
const DefaultMaxAge = 4 * time.Hour

// Service wraps repository operations with session lifecycle rules
type Service struct {
	repo   Repository
	maxAge time.Duration
	now    func() time.Time
}

func NewService(r Repository, maxAge time.Duration) *Service {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Service{repo: r, maxAge: maxAge, now: time.Now}
}

func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// New returns an unsaved session starting now.
func (s *Service) New() (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &Session{ID: id, CreatedAt: now, ExpiresAt: now.Add(s.maxAge)}, nil
}

// Load returns the session for id, or nil when it is unknown or past its
// absolute expiry. Expired records are deleted.
func (s *Service) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	sess, err := s.repo.Get(ctx, id)
	if err != nil || sess == nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		_ = s.repo.Delete(ctx, id)
		return nil, nil
	}
	return sess, nil
}

func (s *Service) Save(ctx context.Context, sess *Session) error {
	return s.repo.Save(ctx, sess)
}

func (s *Service) Destroy(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return nil
	}
	return s.repo.Delete(ctx, sess.ID)
}

// Rotate gives sess a fresh id and removes the old record. Expiry is kept.
// The caller saves the session afterwards.
func (s *Service) Rotate(ctx context.Context, sess *Session) error {
	old := sess.ID
	id, err := newID()
	if err != nil {
		return err
	}
	sess.ID = id
	if old != "" {
		if err := s.repo.Delete(ctx, old); err != nil {
			return fmt.Errorf("delete rotated session: %w", err)
		}
	}
	return nil
}
