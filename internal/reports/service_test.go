package reports

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/apperr"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/auth"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/database/sqlitetest"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/identity"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/photos"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/store"
)

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type fixture struct {
	svc       *Service
	store     *store.Store
	ids       *identity.Provider
	notifier  *countingNotifier
	uploadDir string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := sqlitetest.Open(t)
	st := store.New(db)
	ids := identity.NewProvider(db, auth.NewTokens("test-secret", time.Hour))
	dir := t.TempDir()
	notifier := &countingNotifier{}
	return &fixture{
		svc:       NewService(st, photos.NewFileStore(dir, "/uploads"), ids, notifier),
		store:     st,
		ids:       ids,
		notifier:  notifier,
		uploadDir: dir,
	}
}

func (f *fixture) register(t *testing.T, email string, role models.Role) auth.Principal {
	t.Helper()
	user, _, err := f.ids.Register(context.Background(), models.RegisterRequest{Email: email, Password: "secret1"})
	require.NoError(t, err)
	if role == models.RoleAdmin {
		require.NoError(t, f.store.SetRole(context.Background(), email, models.RoleAdmin))
	}
	return auth.Principal{UserID: user.ID, Email: user.Email, Role: role}
}

func ptrFloat(f float64) *float64 { return &f }
func ptrBool(b bool) *bool        { return &b }

func request(desc string, public bool) models.CreateReportRequest {
	return models.CreateReportRequest{
		Description: desc,
		Latitude:    ptrFloat(44.8125),
		Longitude:   ptrFloat(20.4612),
		Address:     "Trg Republike",
		IsPublic:    ptrBool(public),
	}
}

func png() PhotoUpload {
	return PhotoUpload{ContentType: "image/png", Body: bytes.NewReader([]byte("\x89PNG"))}
}

func TestCreateReport(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	author := f.register(t, "author@example.com", models.RoleUser)

	report, err := f.svc.Create(ctx, author, request("Broken light", true), []PhotoUpload{png()})
	require.NoError(t, err)
	assert.Equal(t, 50.0, report.UrgencyScore)
	assert.Equal(t, models.StatusNew, report.Status)
	require.Len(t, report.PhotoRefs, 1)
	assert.True(t, strings.HasPrefix(report.PhotoRefs[0], "/uploads/users/"+author.UserID+"/"+report.ID+"/"))

	saved, err := f.svc.Get(ctx, nil, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.PhotoRefs, saved.PhotoRefs)
}

func TestCreateReportDefaultsToPublic(t *testing.T) {
	f := setup(t)
	author := f.register(t, "author@example.com", models.RoleUser)
	req := request("Pothole", true)
	req.IsPublic = nil

	report, err := f.svc.Create(context.Background(), author, req, nil)
	require.NoError(t, err)
	assert.True(t, report.IsPublic)
}

func TestCreateReportRejectsBadInput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	author := f.register(t, "author@example.com", models.RoleUser)

	_, err := f.svc.Create(ctx, author, request("", true), nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	noLocation := request("Pothole", true)
	noLocation.Latitude = nil
	_, err = f.svc.Create(ctx, author, noLocation, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	pdf := PhotoUpload{ContentType: "application/pdf", Body: bytes.NewReader(nil)}
	_, err = f.svc.Create(ctx, author, request("Pothole", true), []PhotoUpload{png(), pdf})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	tooMany := make([]PhotoUpload, photos.MaxPhotos+1)
	for i := range tooMany {
		tooMany[i] = png()
	}
	_, err = f.svc.Create(ctx, author, request("Pothole", true), tooMany)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// The PNG stored before the PDF was rejected has been cleaned up.
	assert.Zero(t, countFiles(t, f.uploadDir))
}

func TestPrivateReportVisibility(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	author := f.register(t, "author@example.com", models.RoleUser)
	admin := f.register(t, "admin@example.com", models.RoleAdmin)
	other := f.register(t, "other@example.com", models.RoleUser)

	report, err := f.svc.Create(ctx, author, request("Graffiti", false), nil)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, nil, report.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Get(ctx, &other, report.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Get(ctx, &author, report.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, &admin, report.ID)
	assert.NoError(t, err)

	public, err := f.svc.ListPublic(ctx)
	require.NoError(t, err)
	assert.Empty(t, public)

	mine, err := f.svc.ListByAuthor(ctx, author)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.svc.Vote(ctx, other, report.ID)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
}

func TestSetStatusAuthorization(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	author := f.register(t, "author@example.com", models.RoleUser)
	admin := f.register(t, "admin@example.com", models.RoleAdmin)
	other := f.register(t, "other@example.com", models.RoleUser)

	report, err := f.svc.Create(ctx, author, request("Broken light", true), nil)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, other, report.ID, models.StatusResolved)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Zero(t, f.notifier.count())

	updated, err := f.svc.SetStatus(ctx, admin, report.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, 1, f.notifier.count())

	// Repeating the same status is not a transition.
	_, err = f.svc.SetStatus(ctx, admin, report.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.count())

	_, err = f.svc.SetStatus(ctx, author, report.ID, models.StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, 2, f.notifier.count())

	pending, err := f.store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestVoteFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	author := f.register(t, "author@example.com", models.RoleUser)
	voter := f.register(t, "voter@example.com", models.RoleUser)

	report, err := f.svc.Create(ctx, author, request("Broken light", true), nil)
	require.NoError(t, err)

	voted, err := f.svc.Vote(ctx, voter, report.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, voted.VoteCount)
	assert.InDelta(t, 56.02, voted.UrgencyScore, 0.01)

	_, err = f.svc.Vote(ctx, voter, report.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyVoted)

	_, err = f.svc.Vote(ctx, voter, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteAccount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	leaving := f.register(t, "leaving@example.com", models.RoleUser)
	staying := f.register(t, "staying@example.com", models.RoleUser)

	for i, uploads := range [][]PhotoUpload{{png()}, {png()}, nil} {
		_, err := f.svc.Create(ctx, leaving, request("Report "+string(rune('A'+i)), i != 2), uploads)
		require.NoError(t, err)
	}
	kept, err := f.svc.Create(ctx, staying, request("Their report", true), []PhotoUpload{png()})
	require.NoError(t, err)
	assert.Equal(t, 3, countFiles(t, f.uploadDir))

	require.NoError(t, f.svc.DeleteAccount(ctx, leaving))

	mine, err := f.svc.ListByAuthor(ctx, leaving)
	require.NoError(t, err)
	assert.Empty(t, mine)
	assert.Equal(t, 1, countFiles(t, f.uploadDir))

	_, _, err = f.ids.Authenticate(ctx, "leaving@example.com", "secret1")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = f.svc.Me(ctx, leaving)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Get(ctx, nil, kept.ID)
	assert.NoError(t, err)

	// Retrying after completion is harmless.
	assert.NoError(t, f.svc.DeleteAccount(ctx, leaving))
}

type failingIdentities struct{}

func (failingIdentities) Delete(ctx context.Context, userID string) error {
	return apperr.Internal("delete credential", errors.New("provider down"))
}

func TestDeleteAccountKeepsIdentityOnFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	leaving := f.register(t, "leaving@example.com", models.RoleUser)
	_, err := f.svc.Create(ctx, leaving, request("Broken light", true), nil)
	require.NoError(t, err)

	broken := NewService(f.store, photos.NewFileStore(f.uploadDir, "/uploads"), failingIdentities{}, nil)
	err = broken.DeleteAccount(ctx, leaving)
	assert.ErrorIs(t, err, apperr.ErrInternal)

	// The user can still sign in and retry.
	_, _, err = f.ids.Authenticate(ctx, "leaving@example.com", "secret1")
	require.NoError(t, err)
	_, err = f.svc.Me(ctx, leaving)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAccount(ctx, leaving))
	_, _, err = f.ids.Authenticate(ctx, "leaving@example.com", "secret1")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestPushToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u := f.register(t, "push@example.com", models.RoleUser)

	require.NoError(t, f.svc.SetPushToken(ctx, u, "ExponentPushToken[x]"))
	me, err := f.svc.Me(ctx, u)
	require.NoError(t, err)
	require.NotNil(t, me.PushToken)
	assert.Equal(t, "ExponentPushToken[x]", *me.PushToken)
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}
