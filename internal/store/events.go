package store

import (
	"context"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/apperr"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
)

// PendingEvents returns undelivered status events, oldest first.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]models.StatusEvent, error) {
	events := []models.StatusEvent{}
	err := s.db.WithContext(ctx).
		Where("delivered_at IS NULL").
		Order("id").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, apperr.Internal("load pending events", err)
	}
	return events, nil
}

func (s *Store) MarkDelivered(ctx context.Context, eventID int) error {
	now := s.clock()
	err := s.db.WithContext(ctx).Model(&models.StatusEvent{}).
		Where("id = ? AND delivered_at IS NULL", eventID).
		Update("delivered_at", now).Error
	if err != nil {
		return apperr.Internal("mark event delivered", err)
	}
	return nil
}

// Recipients returns the author of reportID followed by its voters, without
// duplicates.
func (s *Store) Recipients(ctx context.Context, reportID string) ([]string, error) {
	var authorIDs []string
	err := s.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ?", reportID).
		Pluck("author_id", &authorIDs).Error
	if err != nil {
		return nil, apperr.Internal("load report author", err)
	}
	if len(authorIDs) == 0 {
		return nil, apperr.NotFound("report %s not found", reportID)
	}

	voters, err := s.Voters(ctx, reportID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{authorIDs[0]: true}
	recipients := []string{authorIDs[0]}
	for _, id := range voters {
		if !seen[id] {
			seen[id] = true
			recipients = append(recipients, id)
		}
	}
	return recipients, nil
}
