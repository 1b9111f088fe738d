package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type UpdatePreferencesRequest struct {
	EmailEnabled *bool `json:"email_enabled"`
	WarningDays  *int  `json:"warning_days"`
	CriticalDays *int  `json:"critical_days"`
}

// GetPreferences returns the user's notification settings, creating the
// default row on first access.
func (h *Handler) GetPreferences(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	pref, err := h.repo.GetOrCreatePreferences(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load notification settings"})
		return
	}

	c.JSON(http.StatusOK, pref)
}

func (h *Handler) UpdatePreferences(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pref, err := h.repo.GetOrCreatePreferences(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load notification settings"})
		return
	}

	if req.EmailEnabled != nil {
		pref.EmailEnabled = *req.EmailEnabled
	}
	if req.WarningDays != nil {
		if *req.WarningDays < 0 || *req.WarningDays > 365 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "warning_days out of range"})
			return
		}
		pref.WarningDays = *req.WarningDays
	}
	if req.CriticalDays != nil {
		if *req.CriticalDays < 0 || *req.CriticalDays > 365 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "critical_days out of range"})
			return
		}
		pref.CriticalDays = *req.CriticalDays
	}
	if pref.CriticalDays > pref.WarningDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "critical_days cannot exceed warning_days"})
		return
	}

	if err := h.repo.UpsertPreferences(c.Request.Context(), pref); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save notification settings"})
		return
	}

	c.JSON(http.StatusOK, pref)
}
