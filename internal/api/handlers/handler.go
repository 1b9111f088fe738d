package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/certsentry/certsentry/internal/config"
	"github.com/certsentry/certsentry/internal/core"
	"github.com/certsentry/certsentry/internal/notifier"
	"github.com/certsentry/certsentry/internal/storage/postgres"
	"github.com/certsentry/certsentry/internal/storage/redis"
)

// CertChecker fetches the current certificate for a host, retrying
// internally. Calls can take tens of seconds for unreachable hosts.
type CertChecker interface {
	Check(ctx context.Context, hostname string, port int) (*core.CertificateRecord, error)
}

// HostResolver verifies a hostname resolves before it is accepted for
// monitoring.
type HostResolver interface {
	Resolves(ctx context.Context, hostname string) error
}

// BatchRunner runs one notification batch to completion.
type BatchRunner interface {
	RunBatch(ctx context.Context, opts notifier.Options) (*core.BatchReport, error)
}

type Handler struct {
	repo     *postgres.Repository
	cache    *redis.Client
	checker  CertChecker
	resolver HostResolver
	batch    BatchRunner
	config   *config.Config
	logger   *zap.Logger
}

func NewHandler(repo *postgres.Repository, cache *redis.Client, checker CertChecker, resolver HostResolver, batch BatchRunner, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		checker:  checker,
		resolver: resolver,
		batch:    batch,
		config:   cfg,
		logger:   logger,
	}
}
