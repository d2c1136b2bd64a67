package store

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/golang/geo/s2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/apperr"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/scoring"
)

// ValidateReport checks the fields a caller must supply when creating a report.
func ValidateReport(r *models.Report) error {
	r.Description = strings.TrimSpace(r.Description)
	if r.Description == "" {
		return apperr.Validation("description is required")
	}
	if utf8.RuneCountInString(r.Description) > models.MaxDescriptionLength {
		return apperr.Validation("description must be at most %d characters", models.MaxDescriptionLength)
	}
	if r.Latitude == nil || r.Longitude == nil {
		return apperr.Validation("location is required")
	}
	if !s2.LatLngFromDegrees(*r.Latitude, *r.Longitude).IsValid() {
		return apperr.Validation("location is out of range")
	}
	if r.AuthorID == "" {
		return apperr.Validation("author is required")
	}
	return nil
}

// CreateReport validates r, fills the server-owned fields and inserts it.
// If r.ID is empty a new UUID is assigned.
func (s *Store) CreateReport(ctx context.Context, r *models.Report) error {
	if err := ValidateReport(r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.clock()
	r.Status = models.StatusNew
	r.VoteCount = 0
	r.UrgencyScore = scoring.Urgency(0)
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.PhotoRefs == nil {
		r.PhotoRefs = []string{}
	}

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return apperr.Internal("create report", err)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	if err := s.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "get report", "report %s not found", id)
	}
	return &report, nil
}

// ListPublic returns every public report, newest first.
func (s *Store) ListPublic(ctx context.Context) ([]models.Report, error) {
	reports := []models.Report{}
	err := s.db.WithContext(ctx).
		Where("is_public = ?", true).
		Order("created_at desc").Order("id desc").
		Find(&reports).Error
	if err != nil {
		return nil, apperr.Internal("list public reports", err)
	}
	return reports, nil
}

// ListByAuthor returns the author's reports, public and private, newest first.
func (s *Store) ListByAuthor(ctx context.Context, userID string) ([]models.Report, error) {
	reports := []models.Report{}
	err := s.db.WithContext(ctx).
		Where("author_id = ?", userID).
		Order("created_at desc").Order("id desc").
		Find(&reports).Error
	if err != nil {
		return nil, apperr.Internal("list reports by author", err)
	}
	return reports, nil
}

// UpdateStatus sets the report status and, when it actually changes, records
// a StatusEvent in the same transaction. check runs against the locked row
// before the write; a non-nil error from it aborts the update.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.Status, actorID string, check func(*models.Report) error) (*models.StatusEvent, error) {
	if !status.Valid() {
		return nil, apperr.Validation("unknown status %q", status)
	}

	var event *models.StatusEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var report models.Report
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&report, "id = ?", id).Error
		if err != nil {
			return notFoundOr(err, "load report", "report %s not found", id)
		}
		if check != nil {
			if err := check(&report); err != nil {
				return err
			}
		}
		if report.Status == status {
			return nil
		}

		old := report.Status
		now := s.clock()
		if err := tx.Model(&report).Updates(map[string]interface{}{
			"status":     status,
			"updated_at": now,
		}).Error; err != nil {
			return apperr.Internal("update status", err)
		}

		event = &models.StatusEvent{
			ReportID:  id,
			OldStatus: old,
			NewStatus: status,
			ChangedBy: actorID,
			CreatedAt: now,
		}
		if err := tx.Create(event).Error; err != nil {
			return apperr.Internal("record status event", err)
		}
		return nil
	})
	if err != nil {
		return nil, internal("update status", err)
	}
	return event, nil
}
