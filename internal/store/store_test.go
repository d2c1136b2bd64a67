package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/database/sqlitetest"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	return sqlitetest.Open(t)
}

func setupStore(t *testing.T) (*Store, *gorm.DB, *fakeClock) {
	t.Helper()
	db := setupDB(t)
	clock := newFakeClock()
	return New(db, WithClock(clock.Now)), db, clock
}

func ptrFloat(f float64) *float64 { return &f }

func seedUser(t *testing.T, db *gorm.DB, role models.Role, token string) *models.User {
	t.Helper()
	id := uuid.NewString()
	u := &models.User{ID: id, Email: id + "@example.com", DisplayName: "Resident", Role: role}
	if token != "" {
		u.PushToken = &token
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedReport(t *testing.T, s *Store, authorID string, public bool) *models.Report {
	t.Helper()
	r := &models.Report{
		AuthorID:    authorID,
		Description: "Broken light",
		Latitude:    ptrFloat(44.8125),
		Longitude:   ptrFloat(20.4612),
		Address:     "Knez Mihailova 1",
		IsPublic:    public,
	}
	require.NoError(t, s.CreateReport(context.Background(), r))
	return r
}
