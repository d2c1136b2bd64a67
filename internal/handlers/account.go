package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/reports"
)

type AccountHandler struct {
	svc *reports.Service
}

func NewAccountHandler(svc *reports.Service) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// GetMe returns the current authenticated user
func (h *AccountHandler) GetMe(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}

	user, err := h.svc.Me(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"display_name":   user.DisplayName,
		"role":           user.Role,
		"has_push_token": user.PushToken != nil,
		"created_at":     user.CreatedAt,
	})
}

// UpdatePushToken stores the device push token; an empty token clears it.
func (h *AccountHandler) UpdatePushToken(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}

	var input models.PushTokenRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := h.svc.SetPushToken(c.Request.Context(), p, input.Token); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Push token updated"})
}

// DeleteAccount erases the caller's reports, votes, photos and identity.
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteAccount(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
}
