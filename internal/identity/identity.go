// Package identity is the local authentication provider: it owns password
// credentials and issues access tokens.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/apperr"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/auth"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Provider struct {
	db     *gorm.DB
	tokens *auth.Tokens
	cost   int
}

func NewProvider(db *gorm.DB, tokens *auth.Tokens) *Provider {
	return &Provider{db: db, tokens: tokens, cost: bcrypt.DefaultCost}
}

// Register creates the credential and the matching user record.
func (p *Provider) Register(ctx context.Context, req models.RegisterRequest) (*models.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, "", apperr.Validation("email is required")
	}
	if len(req.Password) < 6 {
		return nil, "", apperr.Validation("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), p.cost)
	if err != nil {
		return nil, "", apperr.Internal("hash password", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = generateDisplayNameFromEmail(email)
	}
	user := models.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
		Role:        models.RoleUser,
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Credential{
			UserID:       user.ID,
			Email:        email,
			PasswordHash: string(hash),
		}).Error; err != nil {
			return err
		}
		return tx.Create(&user).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, "", apperr.Validation("email already registered")
	}
	if err != nil {
		return nil, "", apperr.Internal("create user", err)
	}

	token, err := p.issue(&user)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// Authenticate verifies the password and returns a token carrying the
// user's current role.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var cred models.Credential
	if err := p.db.WithContext(ctx).First(&cred, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", apperr.Internal("load credential", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	var user models.User
	if err := p.db.WithContext(ctx).First(&user, "id = ?", cred.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", apperr.Internal("load user", err)
	}

	token, err := p.issue(&user)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// Delete removes the credential and the user row for userID together, which
// ends the account. Deleting a missing identity is not an error.
func (p *Provider) Delete(ctx context.Context, userID string) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.Credential{}).Error; err != nil {
			return apperr.Internal("delete credential", err)
		}
		if err := tx.Where("id = ?", userID).Delete(&models.User{}).Error; err != nil {
			return apperr.Internal("delete user", err)
		}
		return nil
	})
}

func (p *Provider) issue(user *models.User) (string, error) {
	token, err := p.tokens.Issue(auth.Principal{UserID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		return "", apperr.Internal("issue token", err)
	}
	return token, nil
}

func generateDisplayNameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
