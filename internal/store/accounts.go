package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/apperr"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/scoring"
)

type ErasureResult struct {
	DeletedReports   int
	RecountedReports int
}

// DeleteAccountData removes everything the store holds for userID in one
// transaction: their reports with those reports' votes and events, the votes
// they cast on other reports and their rate-limit row. Reports they had voted
// on get vote_count and urgency_score recomputed. The user row stays until the
// identity is deleted, so a failed erasure can be retried after signing in.
// Running it again for the same user is a no-op.
func (s *Store) DeleteAccountData(ctx context.Context, userID string) (ErasureResult, error) {
	var result ErasureResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var own []string
		if err := tx.Model(&models.Report{}).Where("author_id = ?", userID).Pluck("id", &own).Error; err != nil {
			return apperr.Internal("list own reports", err)
		}

		var voted []string
		q := tx.Model(&models.Vote{}).Where("voter_id = ?", userID)
		if len(own) > 0 {
			q = q.Where("report_id NOT IN ?", own)
		}
		if err := q.Pluck("report_id", &voted).Error; err != nil {
			return apperr.Internal("list cast votes", err)
		}

		if len(voted) > 0 {
			// Lock before deleting so concurrent votes land after the recount.
			var locked []models.Report
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id").Where("id IN ?", voted).Find(&locked).Error; err != nil {
				return apperr.Internal("lock voted reports", err)
			}
		}

		if err := tx.Where("voter_id = ?", userID).Delete(&models.Vote{}).Error; err != nil {
			return apperr.Internal("delete cast votes", err)
		}

		if len(own) > 0 {
			if err := tx.Where("report_id IN ?", own).Delete(&models.Vote{}).Error; err != nil {
				return apperr.Internal("delete votes on own reports", err)
			}
			if err := tx.Where("report_id IN ?", own).Delete(&models.StatusEvent{}).Error; err != nil {
				return apperr.Internal("delete status events", err)
			}
			res := tx.Where("id IN ?", own).Delete(&models.Report{})
			if res.Error != nil {
				return apperr.Internal("delete reports", res.Error)
			}
			result.DeletedReports = int(res.RowsAffected)
		}

		for _, reportID := range voted {
			var count int64
			if err := tx.Model(&models.Vote{}).Where("report_id = ?", reportID).Count(&count).Error; err != nil {
				return apperr.Internal("recount votes", err)
			}
			if err := tx.Model(&models.Report{}).Where("id = ?", reportID).Updates(map[string]interface{}{
				"vote_count":    count,
				"urgency_score": scoring.Urgency(int(count)),
			}).Error; err != nil {
				return apperr.Internal("update recounted report", err)
			}
			result.RecountedReports++
		}

		if err := tx.Where("user_id = ?", userID).Delete(&models.RateLimit{}).Error; err != nil {
			return apperr.Internal("delete rate limit", err)
		}
		return nil
	})
	if err != nil {
		return ErasureResult{}, internal("delete account data", err)
	}
	return result, nil
}
