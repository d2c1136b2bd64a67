// Package store is the transactional persistence layer for reports, votes,
// rate limits, users and the status-change outbox.
package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/apperr"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/auth"
)

const DefaultVoteCooldown = 60 * time.Second

type Store struct {
	db       *gorm.DB
	now      func() time.Time
	cooldown time.Duration
	authz    auth.Authorizer
}

type Option func(*Store)

// WithClock overrides the time source used for report timestamps and the
// vote cooldown.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithVoteCooldown(d time.Duration) Option {
	return func(s *Store) { s.cooldown = d }
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now, cooldown: DefaultVoteCooldown}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying session for components that share the store's
// connection, such as the identity provider.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) clock() time.Time { return s.now().UTC() }

// notFoundOr maps gorm.ErrRecordNotFound to a NotFound error and everything
// else to Internal.
func notFoundOr(err error, op, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(format, args...)
	}
	return internal(op, err)
}

// internal passes domain errors through untouched.
func internal(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(op, err)
}
