// Package notifier runs the per-user notification batch: load preferences,
// evaluate (or refresh) every domain, filter by the user's threshold and
// dispatch one batched mail per user. One user's failure never aborts the
// batch for the rest.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/certsentry/certsentry/internal/config"
	"github.com/certsentry/certsentry/internal/core"
	"github.com/certsentry/certsentry/internal/expiry"
	"github.com/certsentry/certsentry/internal/mailer"
	"github.com/certsentry/certsentry/internal/metrics"
)

// ErrBatchInProgress is returned when another batch run holds the run lock.
var ErrBatchInProgress = errors.New("a notification batch is already running")

// Registry is the store-backed view of users, domains and preferences the
// scheduler needs. Absent records surface as core.ErrNotFound.
type Registry interface {
	ListUsers(ctx context.Context) ([]core.User, error)
	GetPreferences(ctx context.Context, userID uuid.UUID) (*core.NotificationPreference, error)
	GetDomainsByUser(ctx context.Context, ownerID uuid.UUID) ([]*core.MonitoredDomain, error)
	UpdateCheckResult(ctx context.Context, domainID uuid.UUID, cert *core.CertificateRecord, daysLeft int, status core.DomainStatus) error
	UpdateDomainStatus(ctx context.Context, domainID uuid.UUID, daysLeft int, status core.DomainStatus) error
	UpdateLastNotified(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// CertChecker is the retrying certificate fetch. A call can block for tens
// of seconds when a host is unreachable.
type CertChecker interface {
	Check(ctx context.Context, hostname string, port int) (*core.CertificateRecord, error)
}

// Locker provides the in-flight markers that dedupe overlapping runs and
// duplicate simultaneous probes of one host.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// NopLocker always acquires. Used when redis is not configured; overlap is
// then possible, matching the unguarded behavior this replaces.
type NopLocker struct{}

func (NopLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (NopLocker) Unlock(ctx context.Context, key string) error { return nil }

// Options selects the refresh policy for one run.
type Options struct {
	// ForceRefresh re-checks every domain live instead of evaluating
	// the persisted snapshot. A failed refresh keeps the last good
	// snapshot and flags a check error; it never erases known data.
	ForceRefresh bool
	// Trigger labels the run for metrics and logs ("cron", "manual").
	Trigger string
	// RunID identifies the run in the report. Zero means a fresh id is
	// assigned; callers that acknowledge before running pass their own.
	RunID uuid.UUID
}

type Scheduler struct {
	registry Registry
	checker  CertChecker
	mailer   mailer.Dispatcher
	locker   Locker
	metrics  *metrics.Collector
	logger   *zap.Logger
	limiter  *rate.Limiter
	cfg      config.SchedulerConfig
}

func NewScheduler(registry Registry, checker CertChecker, dispatcher mailer.Dispatcher, locker Locker, collector *metrics.Collector, logger *zap.Logger, cfg config.SchedulerConfig) *Scheduler {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.ProbesPerSec <= 0 {
		cfg.ProbesPerSec = 5
	}
	if cfg.ProbeBurst <= 0 {
		cfg.ProbeBurst = 10
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if locker == nil {
		locker = NopLocker{}
	}
	return &Scheduler{
		registry: registry,
		checker:  checker,
		mailer:   dispatcher,
		locker:   locker,
		metrics:  collector,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(cfg.ProbesPerSec), cfg.ProbeBurst),
		cfg:      cfg,
	}
}

// RunBatch processes every user and returns one outcome entry per user.
// Overlapping runs are serialized via the run lock.
func (s *Scheduler) RunBatch(ctx context.Context, opts Options) (*core.BatchReport, error) {
	acquired, err := s.locker.TryLock(ctx, "batch:run", s.cfg.LockTTL)
	if err != nil {
		// A lock backend outage must not stop notifications.
		s.logger.Warn("batch run lock unavailable, proceeding unguarded", zap.Error(err))
	} else if !acquired {
		return nil, ErrBatchInProgress
	} else {
		defer s.locker.Unlock(ctx, "batch:run")
	}

	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}

	start := time.Now()
	report := &core.BatchReport{
		RunID:     runID,
		StartedAt: start,
	}

	s.logger.Info("starting notification batch",
		zap.String("run_id", report.RunID.String()),
		zap.Bool("force_refresh", opts.ForceRefresh),
		zap.String("trigger", opts.Trigger),
	)

	users, err := s.registry.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	for _, user := range users {
		if ctx.Err() != nil {
			report.FinishedAt = time.Now()
			return report, ctx.Err()
		}
		report.Users = append(report.Users, s.processUser(ctx, user, opts))
	}

	report.FinishedAt = time.Now()

	if s.metrics != nil {
		s.metrics.RecordBatch(opts.Trigger, time.Since(start).Seconds(), report)
	}

	s.logger.Info("notification batch finished",
		zap.String("run_id", report.RunID.String()),
		zap.Int("users", len(report.Users)),
		zap.Int("success", report.Count(core.OutcomeSuccess)),
		zap.Int("failed", report.Count(core.OutcomeFailed)),
		zap.Int("skipped", report.Count(core.OutcomeSkipped)),
		zap.Duration("duration", time.Since(start)),
	)

	return report, nil
}

func (s *Scheduler) processUser(ctx context.Context, user core.User, opts Options) core.UserResult {
	result := core.UserResult{UserID: user.ID, Email: user.Email}

	pref, err := s.registry.GetPreferences(ctx, user.ID)
	if errors.Is(err, core.ErrNotFound) {
		result.Outcome = core.OutcomeSkipped
		result.Reason = "no notification settings"
		return result
	}
	if err != nil {
		result.Outcome = core.OutcomeFailed
		result.Reason = fmt.Sprintf("failed to load notification settings: %v", err)
		return result
	}
	if !pref.EmailEnabled {
		result.Outcome = core.OutcomeSkipped
		result.Reason = "email notifications disabled"
		return result
	}

	domains, err := s.registry.GetDomainsByUser(ctx, user.ID)
	if err != nil {
		result.Outcome = core.OutcomeFailed
		result.Reason = fmt.Sprintf("failed to load domains: %v", err)
		return result
	}

	evals := s.evaluateDomains(ctx, user, domains, opts)

	var notices []core.ExpiryNotice
	for _, e := range evals {
		if e.checkErr != "" {
			result.CheckErrors = append(result.CheckErrors, e.checkErr)
		}
		if !e.evaluated {
			continue
		}
		if e.notice.DaysLeft <= pref.WarningDays {
			notices = append(notices, e.notice)
		}
	}

	if len(notices) == 0 {
		result.Outcome = core.OutcomeSkipped
		result.Reason = "no domains need notification"
		return result
	}

	msg := mailer.RenderBatch(notices, pref.CriticalDays)

	dispatchStart := time.Now()
	err = s.mailer.Send(ctx, user.Email, msg.Subject, msg.Body)
	if s.metrics != nil {
		s.metrics.RecordNotification(user.ID.String(), err == nil, time.Since(dispatchStart).Seconds())
	}

	if err != nil {
		s.logger.Error("notification dispatch failed",
			zap.String("user_id", user.ID.String()),
			zap.String("email", user.Email),
			zap.Error(err),
		)
		result.Outcome = core.OutcomeFailed
		result.Reason = fmt.Sprintf("dispatch failed: %v", err)
		return result
	}

	if err := s.registry.UpdateLastNotified(ctx, user.ID, time.Now()); err != nil {
		s.logger.Error("failed to record last notified time",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
	}

	result.Outcome = core.OutcomeSuccess
	result.Notified = notices
	return result
}

type domainEval struct {
	notice    core.ExpiryNotice
	evaluated bool
	checkErr  string
}

// evaluateDomains checks and evaluates all of one user's domains, using a
// bounded pool so a user with many domains does not serialize tens of
// seconds of probing per host. Probes are read-only, so no cross-domain
// coordination is needed.
func (s *Scheduler) evaluateDomains(ctx context.Context, user core.User, domains []*core.MonitoredDomain, opts Options) []domainEval {
	evals := make([]domainEval, len(domains))
	if len(domains) == 0 {
		return evals
	}

	workers := s.cfg.WorkerCount
	if workers > len(domains) {
		workers = len(domains)
	}

	type job struct {
		idx    int
		domain *core.MonitoredDomain
	}

	jobs := make(chan job)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				evals[j.idx] = s.evaluateDomain(ctx, user, j.domain, opts)
			}
		}()
	}

	for i, d := range domains {
		jobs <- job{idx: i, domain: d}
	}
	close(jobs)
	wg.Wait()

	return evals
}

func (s *Scheduler) evaluateDomain(ctx context.Context, user core.User, domain *core.MonitoredDomain, opts Options) domainEval {
	logger := s.logger.With(
		zap.String("user_id", user.ID.String()),
		zap.String("hostname", domain.Hostname),
		zap.Int("port", domain.Port),
	)

	cert := domain.Certificate
	refreshed := false

	if opts.ForceRefresh {
		fresh, err := s.refreshDomain(ctx, domain, logger)
		if err != nil {
			// Known-good data survives a failed refresh.
			return s.finishEval(ctx, domain, cert, false, fmt.Sprintf("%s:%d: %v", domain.Hostname, domain.Port, err))
		}
		if fresh != nil {
			cert = fresh
			refreshed = true
		}
	}

	return s.finishEval(ctx, domain, cert, refreshed, "")
}

// refreshDomain runs a live check behind a per-domain in-flight marker.
// Returns (nil, nil) when another run already holds the marker; the caller
// falls back to the persisted snapshot.
func (s *Scheduler) refreshDomain(ctx context.Context, domain *core.MonitoredDomain, logger *zap.Logger) (*core.CertificateRecord, error) {
	lockKey := fmt.Sprintf("check:%s", domain.ID)
	acquired, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		logger.Warn("check lock unavailable, probing unguarded", zap.Error(err))
	} else if !acquired {
		logger.Debug("check already in flight, using cached snapshot")
		return nil, nil
	} else {
		defer s.locker.Unlock(ctx, lockKey)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	fresh, err := s.checker.Check(ctx, domain.Hostname, domain.Port)
	if s.metrics != nil {
		s.metrics.RecordCheck(domain.Hostname, time.Since(start).Seconds(), err == nil)
	}
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *Scheduler) finishEval(ctx context.Context, domain *core.MonitoredDomain, cert *core.CertificateRecord, refreshed bool, checkErr string) domainEval {
	eval := domainEval{checkErr: checkErr}

	if cert == nil || cert.ExpiresAt.IsZero() {
		if eval.checkErr == "" {
			eval.checkErr = fmt.Sprintf("%s:%d: no certificate info available", domain.Hostname, domain.Port)
		}
		return eval
	}

	res := expiry.Evaluate(cert.ExpiresAt, time.Now())

	var err error
	if refreshed {
		err = s.registry.UpdateCheckResult(ctx, domain.ID, cert, res.DaysLeft, res.Status)
	} else {
		err = s.registry.UpdateDomainStatus(ctx, domain.ID, res.DaysLeft, res.Status)
	}
	if err != nil {
		s.logger.Error("failed to persist check result",
			zap.String("domain_id", domain.ID.String()),
			zap.Error(err),
		)
	}

	if s.metrics != nil {
		s.metrics.RecordDomainStatus(domain.OwnerID.String(), domain.Hostname, fmt.Sprintf("%d", domain.Port), res.DaysLeft, res.Status)
	}

	eval.evaluated = true
	eval.notice = core.ExpiryNotice{
		Domain:    domain.Hostname,
		Port:      domain.Port,
		DaysLeft:  res.DaysLeft,
		ExpiresAt: cert.ExpiresAt,
	}
	return eval
}
