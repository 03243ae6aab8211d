package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// respondList writes {"success": true, "data": items, "meta": {...}}.
func respondList(c *gin.Context, items interface{}, total, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// respondDomainError translates a domain error into the matching HTTP status:
// not-found → 404, rejection → 422, conflict → 409, transient → 503. Anything
// unrecognised is a 500 with the detail suppressed.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case domain.IsRejection(err):
		respondError(c, http.StatusUnprocessableEntity, "ERR_REJECTED", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "ERR_CONFLICT", err.Error())
	case domain.IsTransient(err):
		respondError(c, http.StatusServiceUnavailable, "ERR_BUSY", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "internal error")
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Param helpers
// ──────────────────────────────────────────────────────────────────────────────

// parsePagination reads ?page= and ?limit= with sane defaults and caps.
func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// parseQueryID reads a positive int64 query parameter.
func parseQueryID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid "+name)
		return 0, false
	}
	return id, true
}

// parseID reads a positive int64 path parameter.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid "+name)
		return 0, false
	}
	return id, true
}
