package models

import "time"

type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// MaxDescriptionLength is counted in runes.
const MaxDescriptionLength = 1000

type Report struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AuthorID     string    `gorm:"type:varchar(36);not null;index" json:"author_id"`
	Description  string    `gorm:"type:text;not null" json:"description"`
	PhotoRefs    []string  `gorm:"type:text;serializer:json" json:"photos"`
	Latitude     *float64  `gorm:"not null" json:"latitude"`
	Longitude    *float64  `gorm:"not null" json:"longitude"`
	Address      string    `json:"address"`
	IsPublic     bool      `gorm:"not null;index" json:"is_public"`
	Status       Status    `gorm:"type:varchar(16);not null;default:new" json:"status"`
	VoteCount    int       `gorm:"not null;default:0" json:"vote_count"`
	UrgencyScore float64   `gorm:"not null;default:50" json:"urgency_score"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatusEvent is written in the same transaction as a status change and
// consumed by the notification dispatcher.
type StatusEvent struct {
	ID          int        `gorm:"primaryKey" json:"id"`
	ReportID    string     `gorm:"type:varchar(36);not null;index" json:"report_id"`
	OldStatus   Status     `gorm:"type:varchar(16);not null" json:"old_status"`
	NewStatus   Status     `gorm:"type:varchar(16);not null" json:"new_status"`
	ChangedBy   string     `gorm:"type:varchar(36);not null" json:"changed_by"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `gorm:"index" json:"delivered_at,omitempty"`
}

type CreateReportRequest struct {
	Description string   `json:"description" form:"description"`
	Latitude    *float64 `json:"latitude" form:"latitude"`
	Longitude   *float64 `json:"longitude" form:"longitude"`
	Address     string   `json:"address" form:"address"`
	IsPublic    *bool    `json:"is_public" form:"is_public"`
}

type UpdateStatusRequest struct {
	Status Status `json:"status" binding:"required"`
}
