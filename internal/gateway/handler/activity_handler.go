package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/service"
)

// ActivityHandler serves listing, opt-out, and engagement-feed endpoints.
// These are called by the chat gateway, not by end users directly.
type ActivityHandler struct {
	listingSvc *service.ListingService
}

// NewActivityHandler creates an ActivityHandler.
func NewActivityHandler(listingSvc *service.ListingService) *ActivityHandler {
	return &ActivityHandler{listingSvc: listingSvc}
}

// ListAccount godoc
// POST /api/accounts
// Body: {"id":123,"username":"bob","display_name":"Bob","avatar_url":"..."}
// Idempotent: re-listing an existing account returns it unchanged.
func (h *ActivityHandler) ListAccount(c *gin.Context) {
	var body struct {
		ID          int64   `json:"id"           binding:"required"`
		Username    string  `json:"username"     binding:"required"`
		DisplayName string  `json:"display_name" binding:"required"`
		AvatarURL   *string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	acct, err := h.listingSvc.ListAccount(c.Request.Context(), body.ID, body.Username, body.DisplayName, body.AvatarURL)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, acct)
}

// RecordActivity godoc
// POST /api/accounts/:id/activity
// Body: {"kind":"message","amount":1}
func (h *ActivityHandler) RecordActivity(c *gin.Context) {
	accountID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var body struct {
		Kind   string `json:"kind"   binding:"required"`
		Amount int64  `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	kind := domain.ActivityKind(body.Kind)
	if err := h.listingSvc.RecordActivity(c.Request.Context(), accountID, kind, body.Amount); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusAccepted, gin.H{"recorded": true})
}

// OptOut godoc
// POST /api/accounts/:id/opt-out
func (h *ActivityHandler) OptOut(c *gin.Context) {
	accountID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.listingSvc.OptOut(c.Request.Context(), accountID); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"opted_out": true})
}

// OptIn godoc
// POST /api/accounts/:id/opt-in
func (h *ActivityHandler) OptIn(c *gin.Context) {
	accountID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.listingSvc.OptIn(c.Request.Context(), accountID); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"opted_out": false})
}

// UpdateProfile godoc
// PATCH /api/accounts/:id/profile
// Body: {"display_name":"New Name","avatar_url":"..."}
func (h *ActivityHandler) UpdateProfile(c *gin.Context) {
	accountID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var body struct {
		DisplayName string  `json:"display_name" binding:"required"`
		AvatarURL   *string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if err := h.listingSvc.UpdateProfile(c.Request.Context(), accountID, body.DisplayName, body.AvatarURL); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"updated": true})
}
