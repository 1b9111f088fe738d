package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certsentry/certsentry/internal/core"
	"github.com/certsentry/certsentry/internal/expiry"
)

type CreateDomainRequest struct {
	Hostname string `json:"hostname" binding:"required,hostname"`
	Port     int    `json:"port"`
	Notes    string `json:"notes"`
}

type UpdateDomainRequest struct {
	Port  *int    `json:"port"`
	Notes *string `json:"notes"`
}

func (h *Handler) ListDomains(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	domains, err := h.repo.GetDomainsByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list domains"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"domains": domains,
		"count":   len(domains),
	})
}

func (h *Handler) CreateDomain(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Port == 0 {
		req.Port = 443
	}
	if req.Port < 1 || req.Port > 65535 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Port out of range"})
		return
	}

	exists, err := h.repo.DomainExists(c.Request.Context(), userID, req.Hostname, req.Port, uuid.Nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check domain"})
		return
	}
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "Domain already monitored"})
		return
	}

	if err := h.resolver.Resolves(c.Request.Context(), req.Hostname); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Hostname does not resolve"})
		return
	}

	// The first check runs inline so a domain never enters monitoring
	// without a certificate snapshot.
	cert, err := h.checker.Check(c.Request.Context(), req.Hostname, req.Port)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No certificate info available for this host"})
		return
	}

	res := expiry.Evaluate(cert.ExpiresAt, time.Now())
	now := time.Now()

	domain := &core.MonitoredDomain{
		ID:            uuid.New(),
		OwnerID:       userID,
		Hostname:      req.Hostname,
		Port:          req.Port,
		Notes:         req.Notes,
		Certificate:   cert,
		LastCheckedAt: &now,
		DaysLeft:      res.DaysLeft,
		Status:        res.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.repo.CreateDomain(c.Request.Context(), domain); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create domain"})
		return
	}

	h.logger.Info("domain registered",
		zap.String("user_id", userID.String()),
		zap.String("hostname", domain.Hostname),
		zap.Int("port", domain.Port),
		zap.Int("days_left", domain.DaysLeft),
	)

	c.JSON(http.StatusCreated, domain)
}

func (h *Handler) GetDomain(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	domainID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain id"})
		return
	}

	domain, err := h.repo.GetDomain(c.Request.Context(), domainID, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
		return
	}

	c.JSON(http.StatusOK, domain)
}

func (h *Handler) UpdateDomain(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	domainID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain id"})
		return
	}

	var req UpdateDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	domain, err := h.repo.GetDomain(c.Request.Context(), domainID, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
		return
	}

	if req.Port != nil {
		if *req.Port < 1 || *req.Port > 65535 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Port out of range"})
			return
		}
		if *req.Port != domain.Port {
			exists, err := h.repo.DomainExists(c.Request.Context(), userID, domain.Hostname, *req.Port, domain.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check domain"})
				return
			}
			if exists {
				c.JSON(http.StatusConflict, gin.H{"error": "Domain already monitored on that port"})
				return
			}
		}
		domain.Port = *req.Port
	}
	if req.Notes != nil {
		domain.Notes = *req.Notes
	}

	if err := h.repo.UpdateDomainMeta(c.Request.Context(), domain.ID, domain.Port, domain.Notes); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update domain"})
		return
	}

	c.JSON(http.StatusOK, domain)
}

func (h *Handler) DeleteDomain(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	domainID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain id"})
		return
	}

	if err := h.repo.DeleteDomain(c.Request.Context(), domainID, userID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete domain"})
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// TriggerCheck runs a fresh certificate check for one domain and returns
// the updated record. The check is synchronous; unreachable hosts keep
// their last-known snapshot.
func (h *Handler) TriggerCheck(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	domainID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain id"})
		return
	}

	domain, err := h.repo.GetDomain(c.Request.Context(), domainID, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
		return
	}

	cert, err := h.checker.Check(c.Request.Context(), domain.Hostname, domain.Port)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "No certificate info available for this host",
			"domain": domain,
		})
		return
	}

	res := expiry.Evaluate(cert.ExpiresAt, time.Now())
	if err := h.repo.UpdateCheckResult(c.Request.Context(), domain.ID, cert, res.DaysLeft, res.Status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store check result"})
		return
	}

	now := time.Now()
	domain.Certificate = cert
	domain.LastCheckedAt = &now
	domain.DaysLeft = res.DaysLeft
	domain.Status = res.Status

	c.JSON(http.StatusOK, domain)
}

func (h *Handler) GetDomainStats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	stats, err := h.repo.GetDomainStats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token subject"})
		c.Abort()
		return uuid.Nil, false
	}
	return id, true
}
