package models

import "time"

// Vote tracks a single user's endorsement of a report. The pair
// (report_id, voter_id) is unique.
type Vote struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	ReportID  string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_votes_report_voter,priority:1" json:"report_id"`
	VoterID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_votes_report_voter,priority:2;index" json:"voter_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RateLimit holds the time of a user's last successful vote.
type RateLimit struct {
	UserID     string    `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	LastVoteAt time.Time `gorm:"not null" json:"last_vote_at"`
}
