package handlers

import (
	"context"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/apperr"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/auth"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/middleware"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/reports"
)

// Identities is the part of the authentication provider the HTTP API exposes.
type Identities interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, string, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, string, error)
}

// Handler combines all handler types
type Handler struct {
	Auth    *AuthHandler
	Report  *ReportHandler
	Account *AccountHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(svc *reports.Service, ids Identities) *Handler {
	return &Handler{
		Auth:    NewAuthHandler(ids),
		Report:  NewReportHandler(svc),
		Account: NewAccountHandler(svc),
	}
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:         http.StatusNotFound,
	apperr.KindPermissionDenied: http.StatusForbidden,
	apperr.KindAlreadyVoted:     http.StatusConflict,
	apperr.KindRateLimited:      http.StatusTooManyRequests,
	apperr.KindValidation:       http.StatusBadRequest,
	apperr.KindInternal:         http.StatusInternalServerError,
}

// respondError writes err with its stable code. Internal details are logged,
// never returned.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Errorf("Request failed: %v", err)
	}
	c.JSON(statusByKind[kind], gin.H{"error": apperr.Message(err), "code": string(kind)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": string(apperr.KindValidation)})
}

// currentPrincipal returns the caller set by the auth middleware, writing a
// 401 when there is none.
func currentPrincipal(c *gin.Context) (auth.Principal, bool) {
	p, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated", "code": "unauthenticated"})
	}
	return p, ok
}
