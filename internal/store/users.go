package store

import (
	"context"
	"strings"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/apperr"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
)

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "get user", "user %s not found", id)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", strings.ToLower(email)).Error; err != nil {
		return nil, notFoundOr(err, "get user", "user %s not found", email)
	}
	return &user, nil
}

// SetPushToken stores or, with an empty token, clears the user's push token.
func (s *Store) SetPushToken(ctx context.Context, userID, token string) error {
	var value *string
	if token = strings.TrimSpace(token); token != "" {
		value = &token
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("push_token", value)
	if res.Error != nil {
		return apperr.Internal("set push token", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user %s not found", userID)
	}
	return nil
}

// SetRole changes a user's role. It is only reachable from the operator CLI.
func (s *Store) SetRole(ctx context.Context, email string, role models.Role) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return apperr.Validation("unknown role %q", role)
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", strings.ToLower(email)).Update("role", role)
	if res.Error != nil {
		return apperr.Internal("set role", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user %s not found", email)
	}
	return nil
}

// PushTokens returns the users among ids that have a push token.
func (s *Store) PushTokens(ctx context.Context, ids []string) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := s.db.WithContext(ctx).
		Select("id", "push_token").
		Where("id IN ?", ids).
		Where("push_token IS NOT NULL AND push_token <> ''").
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, apperr.Internal("load push tokens", err)
	}
	return users, nil
}
