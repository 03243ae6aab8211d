package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/service"
)

// AdminHandler serves operator-only endpoints: manual event injection and
// manual splits. The route group is expected to sit behind network-level
// access control.
type AdminHandler struct {
	eventSvc      *service.EventService
	settlementSvc *service.SettlementService
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(eventSvc *service.EventService, settlementSvc *service.SettlementService) *AdminHandler {
	return &AdminHandler{eventSvc: eventSvc, settlementSvc: settlementSvc}
}

// InjectEvent godoc
// POST /admin/events
// Body: {"type":"crash","magnitude":"0.80","description":"...","target_id":null,"duration_minutes":60}
func (h *AdminHandler) InjectEvent(c *gin.Context) {
	var body struct {
		Type            string `json:"type"      binding:"required"`
		Magnitude       string `json:"magnitude" binding:"required"`
		Description     string `json:"description"`
		TargetID        *int64 `json:"target_id"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	magnitude, err := decimal.NewFromString(body.Magnitude)
	if err != nil || !magnitude.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MAGNITUDE", "magnitude must be a positive decimal string")
		return
	}

	duration := time.Duration(body.DurationMinutes) * time.Minute
	event, err := h.eventSvc.InjectEvent(c.Request.Context(),
		domain.EventType(body.Type), magnitude, body.Description, body.TargetID, duration)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, event)
}

// ApplySplit godoc
// POST /admin/instruments/:id/split
// Body: {"ratio":2}
func (h *AdminHandler) ApplySplit(c *gin.Context) {
	instrumentID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var body struct {
		Ratio int `json:"ratio" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	split, err := h.settlementSvc.ApplySplit(c.Request.Context(), instrumentID, body.Ratio)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, split)
}
