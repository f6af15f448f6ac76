package users

import (
	"context"

	"github.com/hireloop/ats-gateway/internal/models"
	"github.com/hireloop/ats-gateway/pkg/logger"
)

// Service turns login claims into principals and, when a repository is
// configured, records them in the user directory.
type Service struct {
	repo UserRepository
}

// NewService accepts a nil repository; logins are then not recorded.
func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// RecordLogin returns the principal for claims. Directory failures are
// logged and do not fail the login.
func (s *Service) RecordLogin(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	u, err := FromClaims(claims)
	if err != nil {
		return nil, err
	}
	if s == nil || s.repo == nil {
		return u, nil
	}
	if _, err := s.repo.Upsert(ctx, u); err != nil {
		logger.L().Warn().Err(err).Str("principal", u.ID).Msg("user directory upsert failed")
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	if s == nil || s.repo == nil {
		return nil, nil
	}
	return s.repo.Get(ctx, id)
}
