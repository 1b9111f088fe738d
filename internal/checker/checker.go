// Package checker wraps the TLS probe with a bounded retry loop. It is the
// only component that blocks on network I/O; callers must expect a worst
// case of roughly 23 seconds per domain when a host is unreachable.
package checker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/certsentry/certsentry/internal/config"
	"github.com/certsentry/certsentry/internal/core"
)

// ErrExhausted is returned after every attempt failed. Callers decide
// whether to keep the last known-good snapshot; the error is never fatal to
// a batch.
var ErrExhausted = errors.New("certificate check failed after all attempts")

// Prober is a single-attempt certificate fetch bounded by timeout.
type Prober interface {
	Probe(ctx context.Context, hostname string, port int, timeout time.Duration) (*core.CertificateRecord, error)
}

type Checker struct {
	prober      Prober
	logger      *zap.Logger
	maxAttempts int
	baseTimeout time.Duration
	timeoutStep time.Duration
	retryDelay  time.Duration
}

func New(prober Prober, logger *zap.Logger, cfg config.CheckerConfig) *Checker {
	c := &Checker{
		prober:      prober,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		baseTimeout: cfg.BaseTimeout,
		timeoutStep: cfg.TimeoutStep,
		retryDelay:  cfg.RetryDelay,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.baseTimeout <= 0 {
		c.baseTimeout = 5 * time.Second
	}
	if c.timeoutStep <= 0 {
		c.timeoutStep = 2 * time.Second
	}
	if c.retryDelay <= 0 {
		c.retryDelay = time.Second
	}
	return c
}

// AttemptTimeout returns the wall-clock bound for attempt k (1-indexed).
// Each retry gets a more patient timeout so a transient slow handshake on
// the first attempt is not fatal, while total latency stays bounded.
func (c *Checker) AttemptTimeout(attempt int) time.Duration {
	return c.baseTimeout + time.Duration(attempt)*c.timeoutStep
}

// Check fetches the certificate for hostname:port, retrying failed attempts
// with a fixed delay in between. The first success is returned immediately.
func (c *Checker) Check(ctx context.Context, hostname string, port int) (*core.CertificateRecord, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		timeout := c.AttemptTimeout(attempt)

		record, err := c.prober.Probe(ctx, hostname, port, timeout)
		if err == nil {
			c.logger.Debug("certificate check succeeded",
				zap.String("hostname", hostname),
				zap.Int("port", port),
				zap.Int("attempt", attempt),
				zap.Time("expires_at", record.ExpiresAt),
			)
			return record, nil
		}

		c.logger.Warn("certificate check attempt failed",
			zap.String("hostname", hostname),
			zap.Int("port", port),
			zap.Int("attempt", attempt),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)

		if attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}

	return nil, ErrExhausted
}
