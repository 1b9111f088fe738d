package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certsentry/certsentry/internal/notifier"
	"github.com/certsentry/certsentry/internal/storage/redis"
)

// TriggerBatch starts a notification batch in the background and returns
// an acknowledgment with the run id. Per-domain checks can take tens of
// seconds, so the run is decoupled from the request; the report is
// fetched via GetBatchRun once the run finishes.
func (h *Handler) TriggerBatch(c *gin.Context) {
	if !cronCallAllowed(c.GetHeader("Authorization"), h.config.Server.CronSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid batch credential"})
		return
	}

	forceRefresh := h.config.Scheduler.ForceRefresh
	if v, ok := c.GetQuery("force_refresh"); ok {
		forceRefresh = v == "true" || v == "1"
	}

	runID := uuid.New()
	opts := notifier.Options{
		ForceRefresh: forceRefresh,
		Trigger:      "manual",
		RunID:        runID,
	}
	if c.GetHeader("Authorization") != "" {
		opts.Trigger = "cron"
	}

	go h.runBatch(opts)

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Batch run started",
		"run_id":  runID.String(),
	})
}

func (h *Handler) runBatch(opts notifier.Options) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Scheduler.BatchTimeout)
	defer cancel()

	report, err := h.batch.RunBatch(ctx, opts)
	if errors.Is(err, notifier.ErrBatchInProgress) {
		h.logger.Warn("batch run rejected, another run in progress",
			zap.String("run_id", opts.RunID.String()),
		)
		return
	}
	if err != nil {
		h.logger.Error("batch run failed",
			zap.String("run_id", opts.RunID.String()),
			zap.Error(err),
		)
		if report == nil {
			return
		}
	}

	if h.cache == nil {
		return
	}
	storeCtx, storeCancel := context.WithTimeout(context.Background(), redis.DefaultTimeout)
	defer storeCancel()
	if err := h.cache.StoreBatchReport(storeCtx, report, h.config.Scheduler.ReportTTL); err != nil {
		h.logger.Error("failed to store batch report",
			zap.String("run_id", report.RunID.String()),
			zap.Error(err),
		)
	}
}

// GetBatchRun returns the stored report for a finished run.
func (h *Handler) GetBatchRun(c *gin.Context) {
	if !cronCallAllowed(c.GetHeader("Authorization"), h.config.Server.CronSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid batch credential"})
		return
	}

	if h.cache == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run reports are not retained"})
		return
	}

	runID := c.Param("id")
	if _, err := uuid.Parse(runID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run id"})
		return
	}

	report, err := h.cache.GetBatchReport(c.Request.Context(), runID)
	if err != nil {
		if redis.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found or still in progress"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load run report"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// cronCallAllowed rejects only a presented credential that mismatches a
// configured secret. Calls without a credential are accepted so the
// endpoint stays usable for manual runs when no secret is set up.
func cronCallAllowed(authHeader, secret string) bool {
	if secret == "" || authHeader == "" {
		return true
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	return token == secret
}
