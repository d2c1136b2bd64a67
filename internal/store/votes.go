package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/apperr"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/auth"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/scoring"
)

// CastVote records userID's vote on reportID and returns the updated report.
//
// Duplicates are rejected by the unique (report_id, voter_id) index and the
// cooldown by a conditional upsert on rate_limits; either failure rolls the
// whole transaction back.
func (s *Store) CastVote(ctx context.Context, reportID, userID string) (*models.Report, error) {
	var report models.Report
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id", "author_id", "is_public").First(&report, "id = ?", reportID).Error; err != nil {
			return notFoundOr(err, "load report", "report %s not found", reportID)
		}
		if !s.authz.CanVote(auth.Principal{UserID: userID}, &report) {
			return apperr.PermissionDenied("report %s is not public", reportID)
		}

		now := s.clock()
		vote := models.Vote{ReportID: reportID, VoterID: userID, CreatedAt: now}
		if err := tx.Create(&vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.AlreadyVoted()
			}
			return apperr.Internal("insert vote", err)
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"last_vote_at": now}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Lte{Column: clause.Column{Table: "rate_limits", Name: "last_vote_at"}, Value: now.Add(-s.cooldown)},
			}},
		}).Create(&models.RateLimit{UserID: userID, LastVoteAt: now})
		if res.Error != nil {
			return apperr.Internal("update rate limit", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.RateLimited()
		}

		if err := tx.Model(&models.Report{}).Where("id = ?", reportID).
			Update("vote_count", gorm.Expr("vote_count + 1")).Error; err != nil {
			return apperr.Internal("increment vote count", err)
		}
		if err := tx.First(&report, "id = ?", reportID).Error; err != nil {
			return apperr.Internal("reload report", err)
		}
		report.UrgencyScore = scoring.Urgency(report.VoteCount)
		if err := tx.Model(&report).Update("urgency_score", report.UrgencyScore).Error; err != nil {
			return apperr.Internal("update urgency score", err)
		}
		return nil
	})
	if err != nil {
		return nil, internal("cast vote", err)
	}
	return &report, nil
}

// Voters returns the ids of every user who voted on reportID.
func (s *Store) Voters(ctx context.Context, reportID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("report_id = ?", reportID).
		Order("id").
		Pluck("voter_id", &ids).Error
	if err != nil {
		return nil, apperr.Internal("list voters", err)
	}
	return ids, nil
}
