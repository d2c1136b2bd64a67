// Package reports is the domain service behind the HTTP handlers. It applies
// authorization, stores photos and coordinates multi-step operations such as
// account deletion.
package reports

import (
	"context"
	"errors"
	"io"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/apperr"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/auth"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/metrics"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/photos"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/store"
)

// Store is the transactional persistence the service depends on.
type Store interface {
	CreateReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListPublic(ctx context.Context) ([]models.Report, error)
	ListByAuthor(ctx context.Context, userID string) ([]models.Report, error)
	UpdateStatus(ctx context.Context, id string, status models.Status, actorID string, check func(*models.Report) error) (*models.StatusEvent, error)
	CastVote(ctx context.Context, reportID, userID string) (*models.Report, error)
	DeleteAccountData(ctx context.Context, userID string) (store.ErasureResult, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetPushToken(ctx context.Context, userID, token string) error
}

// Identities is the authentication provider boundary.
type Identities interface {
	Delete(ctx context.Context, userID string) error
}

// Notifier is told after a status transition commits.
type Notifier interface {
	Notify()
}

type Service struct {
	store      Store
	photos     photos.ObjectStore
	identities Identities
	notifier   Notifier
	authz      auth.Authorizer
}

func NewService(st Store, objects photos.ObjectStore, identities Identities, notifier Notifier) *Service {
	return &Service{store: st, photos: objects, identities: identities, notifier: notifier}
}

// PhotoUpload is one photo attached to a new report.
type PhotoUpload struct {
	ContentType string
	Body        io.Reader
}

// Create stores the photos and then the report. Photos are removed again if
// the report cannot be saved.
func (s *Service) Create(ctx context.Context, p auth.Principal, req models.CreateReportRequest, uploads []PhotoUpload) (*models.Report, error) {
	if len(uploads) > photos.MaxPhotos {
		return nil, apperr.Validation("at most %d photos are allowed", photos.MaxPhotos)
	}

	report := &models.Report{
		ID:          uuid.NewString(),
		AuthorID:    p.UserID,
		Description: req.Description,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Address:     req.Address,
		IsPublic:    req.IsPublic == nil || *req.IsPublic,
	}
	if err := store.ValidateReport(report); err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		ref, err := s.putPhoto(ctx, p.UserID, report.ID, upload)
		if err != nil {
			s.discardPhotos(ctx, refs)
			return nil, err
		}
		refs = append(refs, ref)
	}
	report.PhotoRefs = refs

	if err := s.store.CreateReport(ctx, report); err != nil {
		s.discardPhotos(ctx, refs)
		return nil, err
	}
	log.WithFields(log.Fields{"report_id": report.ID, "author_id": p.UserID, "photos": len(refs)}).Info("Report created")
	return report, nil
}

func (s *Service) putPhoto(ctx context.Context, userID, reportID string, upload PhotoUpload) (string, error) {
	key, err := photos.NewKey(userID, reportID, upload.ContentType)
	if err != nil {
		return "", apperr.Validation("photos must be JPEG, PNG or WebP")
	}
	ref, err := s.photos.Put(ctx, key, upload.Body, upload.ContentType)
	if errors.Is(err, photos.ErrTooLarge) {
		return "", apperr.Validation("each photo must be at most %d MB", photos.MaxPhotoSize>>20)
	}
	if err != nil {
		return "", apperr.Internal("store photo", err)
	}
	return ref, nil
}

func (s *Service) discardPhotos(ctx context.Context, refs []string) {
	if len(refs) == 0 {
		return
	}
	if err := s.photos.Delete(ctx, refs); err != nil {
		log.Warnf("Failed to discard %d orphaned photo(s): %v", len(refs), err)
	}
}

// Get returns the report if p may see it. Private reports look absent to
// everyone except their author and admins.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id string) (*models.Report, error) {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanView(p, report) {
		return nil, apperr.NotFound("report %s not found", id)
	}
	return report, nil
}

func (s *Service) ListPublic(ctx context.Context) ([]models.Report, error) {
	return s.store.ListPublic(ctx)
}

func (s *Service) ListByAuthor(ctx context.Context, p auth.Principal) ([]models.Report, error) {
	return s.store.ListByAuthor(ctx, p.UserID)
}

// SetStatus changes the status if p is the author or an admin. A real
// transition wakes the notification dispatcher.
func (s *Service) SetStatus(ctx context.Context, p auth.Principal, id string, status models.Status) (*models.Report, error) {
	check := func(r *models.Report) error {
		if !s.authz.CanUpdateStatus(p, r) {
			return apperr.PermissionDenied("only the author or an admin can change the status")
		}
		return nil
	}
	event, err := s.store.UpdateStatus(ctx, id, status, p.UserID, check)
	if err != nil {
		return nil, err
	}
	if event != nil {
		metrics.StatusTransitionsTotal.WithLabelValues(string(event.NewStatus)).Inc()
		log.WithFields(log.Fields{
			"report_id": id,
			"from":      event.OldStatus,
			"to":        event.NewStatus,
			"actor":     p.UserID,
		}).Info("Report status changed")
		if s.notifier != nil {
			s.notifier.Notify()
		}
	}
	return s.store.GetReport(ctx, id)
}

func (s *Service) Vote(ctx context.Context, p auth.Principal, id string) (*models.Report, error) {
	report, err := s.store.CastVote(ctx, id, p.UserID)
	if err != nil {
		metrics.VotesTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, err
	}
	metrics.VotesTotal.WithLabelValues("ok").Inc()
	return report, nil
}

// DeleteAccount erases the caller's data, then their photos, then their
// authentication identity. Each step is safe to repeat, so a failed attempt
// can simply be retried while the identity still exists.
func (s *Service) DeleteAccount(ctx context.Context, p auth.Principal) error {
	logger := log.WithField("user_id", p.UserID)

	result, err := s.store.DeleteAccountData(ctx, p.UserID)
	if err != nil {
		return err
	}
	if err := s.photos.DeletePrefix(ctx, photos.UserPrefix(p.UserID)); err != nil {
		return apperr.Internal("delete photos", err)
	}
	if err := s.identities.Delete(ctx, p.UserID); err != nil {
		return err
	}

	metrics.AccountsErasedTotal.Inc()
	logger.WithFields(log.Fields{
		"reports":   result.DeletedReports,
		"recounted": result.RecountedReports,
	}).Info("Account deleted")
	return nil
}

func (s *Service) Me(ctx context.Context, p auth.Principal) (*models.User, error) {
	return s.store.GetUser(ctx, p.UserID)
}

func (s *Service) SetPushToken(ctx context.Context, p auth.Principal, token string) error {
	return s.store.SetPushToken(ctx, p.UserID, token)
}
