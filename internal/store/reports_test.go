package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/apperr"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
)

func TestCreateReport(t *testing.T) {
	s, _, clock := setupStore(t)
	ctx := context.Background()

	r := seedReport(t, s, "author-1", true)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, models.StatusNew, r.Status)
	assert.Equal(t, 0, r.VoteCount)
	assert.Equal(t, 50.0, r.UrgencyScore)
	assert.True(t, r.CreatedAt.Equal(clock.Now()))

	saved, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Broken light", saved.Description)
	assert.Equal(t, []string{}, saved.PhotoRefs)
	assert.Equal(t, 50.0, saved.UrgencyScore)
}

func TestCreateReportValidation(t *testing.T) {
	s, _, _ := setupStore(t)

	tests := []struct {
		name   string
		report models.Report
	}{
		{name: "empty description", report: models.Report{AuthorID: "a", Description: "   ", Latitude: ptrFloat(1), Longitude: ptrFloat(1)}},
		{name: "too long", report: models.Report{AuthorID: "a", Description: strings.Repeat("x", models.MaxDescriptionLength+1), Latitude: ptrFloat(1), Longitude: ptrFloat(1)}},
		{name: "missing latitude", report: models.Report{AuthorID: "a", Description: "pothole", Longitude: ptrFloat(1)}},
		{name: "missing longitude", report: models.Report{AuthorID: "a", Description: "pothole", Latitude: ptrFloat(1)}},
		{name: "latitude out of range", report: models.Report{AuthorID: "a", Description: "pothole", Latitude: ptrFloat(91), Longitude: ptrFloat(1)}},
		{name: "missing author", report: models.Report{Description: "pothole", Latitude: ptrFloat(1), Longitude: ptrFloat(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.report
			err := s.CreateReport(context.Background(), &r)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestGetReportNotFound(t *testing.T) {
	s, _, _ := setupStore(t)

	_, err := s.GetReport(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListOrdering(t *testing.T) {
	s, _, clock := setupStore(t)
	ctx := context.Background()

	first := seedReport(t, s, "author-1", true)
	clock.Advance(time.Minute)
	hidden := seedReport(t, s, "author-1", false)
	clock.Advance(time.Minute)
	other := seedReport(t, s, "author-2", true)
	clock.Advance(time.Minute)
	last := seedReport(t, s, "author-1", true)

	public, err := s.ListPublic(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{last.ID, other.ID, first.ID}, ids(public))

	mine, err := s.ListByAuthor(ctx, "author-1")
	require.NoError(t, err)
	assert.Equal(t, []string{last.ID, hidden.ID, first.ID}, ids(mine))

	none, err := s.ListByAuthor(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateStatus(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()
	r := seedReport(t, s, "author-1", true)

	event, err := s.UpdateStatus(ctx, r.ID, models.StatusInProgress, "admin-1", nil)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, models.StatusNew, event.OldStatus)
	assert.Equal(t, models.StatusInProgress, event.NewStatus)
	assert.Equal(t, "admin-1", event.ChangedBy)

	saved, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, saved.Status)

	// Same status is a no-op and records nothing.
	event, err = s.UpdateStatus(ctx, r.ID, models.StatusInProgress, "admin-1", nil)
	require.NoError(t, err)
	assert.Nil(t, event)

	// Resolved can move back.
	_, err = s.UpdateStatus(ctx, r.ID, models.StatusResolved, "admin-1", nil)
	require.NoError(t, err)
	event, err = s.UpdateStatus(ctx, r.ID, models.StatusNew, "author-1", nil)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, models.StatusResolved, event.OldStatus)

	pending, err := s.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestCreatePrivateReportStaysPrivate(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()
	private := seedReport(t, s, "author-1", false)
	public := seedReport(t, s, "author-1", true)

	saved, err := s.GetReport(ctx, private.ID)
	require.NoError(t, err)
	assert.False(t, saved.IsPublic)

	list, err := s.ListPublic(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{public.ID}, ids(list))
}

func TestStatusEventKeepsPreviousStatus(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()
	r := seedReport(t, s, "author-1", true)

	_, err := s.UpdateStatus(ctx, r.ID, models.StatusResolved, "author-1", nil)
	require.NoError(t, err)

	pending, err := s.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.StatusNew, pending[0].OldStatus)
	assert.Equal(t, models.StatusResolved, pending[0].NewStatus)
}

func TestUpdateStatusErrors(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()
	r := seedReport(t, s, "author-1", true)

	_, err := s.UpdateStatus(ctx, r.ID, "closed", "author-1", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.UpdateStatus(ctx, "missing", models.StatusResolved, "author-1", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	deny := func(*models.Report) error { return apperr.PermissionDenied("nope") }
	_, err = s.UpdateStatus(ctx, r.ID, models.StatusResolved, "intruder", deny)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	saved, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, saved.Status)

	pending, err := s.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func ids(reports []models.Report) []string {
	out := make([]string, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.ID)
	}
	return out
}
