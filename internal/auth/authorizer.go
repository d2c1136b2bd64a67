package auth

import "github.com/emilythestrangee/municipality-reporter/backend/internal/models"

// Authorizer holds the role and ownership rules for reports.
type Authorizer struct{}

// CanView reports whether p may read r. A nil principal is anonymous.
func (Authorizer) CanView(p *Principal, r *models.Report) bool {
	if r.IsPublic {
		return true
	}
	if p == nil {
		return false
	}
	return p.IsAdmin() || p.UserID == r.AuthorID
}

// CanUpdateStatus allows the author and any admin.
func (Authorizer) CanUpdateStatus(p Principal, r *models.Report) bool {
	return p.IsAdmin() || p.UserID == r.AuthorID
}

// CanVote allows any authenticated user on a public report.
func (Authorizer) CanVote(p Principal, r *models.Report) bool {
	return p.UserID != "" && r.IsPublic
}
