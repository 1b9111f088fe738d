package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certsentry/certsentry/internal/config"
	"github.com/certsentry/certsentry/internal/core"
)

type fakeRegistry struct {
	mu            sync.Mutex
	users         []core.User
	prefs         map[uuid.UUID]*core.NotificationPreference
	domains       map[uuid.UUID][]*core.MonitoredDomain
	checkResults  []uuid.UUID
	statusUpdates []uuid.UUID
	lastNotified  map[uuid.UUID]time.Time
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		prefs:        make(map[uuid.UUID]*core.NotificationPreference),
		domains:      make(map[uuid.UUID][]*core.MonitoredDomain),
		lastNotified: make(map[uuid.UUID]time.Time),
	}
}

func (r *fakeRegistry) ListUsers(ctx context.Context) ([]core.User, error) {
	return r.users, nil
}

func (r *fakeRegistry) GetPreferences(ctx context.Context, userID uuid.UUID) (*core.NotificationPreference, error) {
	p, ok := r.prefs[userID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return p, nil
}

func (r *fakeRegistry) GetDomainsByUser(ctx context.Context, ownerID uuid.UUID) ([]*core.MonitoredDomain, error) {
	return r.domains[ownerID], nil
}

func (r *fakeRegistry) UpdateCheckResult(ctx context.Context, domainID uuid.UUID, cert *core.CertificateRecord, daysLeft int, status core.DomainStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkResults = append(r.checkResults, domainID)
	for _, ds := range r.domains {
		for _, d := range ds {
			if d.ID == domainID {
				d.Certificate = cert
				d.DaysLeft = daysLeft
				d.Status = status
			}
		}
	}
	return nil
}

func (r *fakeRegistry) UpdateDomainStatus(ctx context.Context, domainID uuid.UUID, daysLeft int, status core.DomainStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusUpdates = append(r.statusUpdates, domainID)
	return nil
}

func (r *fakeRegistry) UpdateLastNotified(ctx context.Context, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastNotified[userID] = at
	return nil
}

type fakeChecker struct {
	mu    sync.Mutex
	certs map[string]*core.CertificateRecord
	errs  map[string]error
	calls []string
}

func (c *fakeChecker) Check(ctx context.Context, hostname string, port int) (*core.CertificateRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fmt.Sprintf("%s:%d", hostname, port)
	c.calls = append(c.calls, key)
	if err, ok := c.errs[key]; ok {
		return nil, err
	}
	if cert, ok := c.certs[key]; ok {
		return cert, nil
	}
	return nil, errors.New("unexpected check")
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeDispatcher struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo map[string]error
}

func (d *fakeDispatcher) Send(ctx context.Context, to, subject, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failTo[to]; ok {
		return err
	}
	d.sent = append(d.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func certExpiring(days int) *core.CertificateRecord {
	now := time.Now()
	return &core.CertificateRecord{
		SerialNumber: "1",
		IssuedAt:     now.AddDate(0, -1, 0),
		ExpiresAt:    now.AddDate(0, 0, days),
	}
}

func testDomain(ownerID uuid.UUID, hostname string, cert *core.CertificateRecord) *core.MonitoredDomain {
	return &core.MonitoredDomain{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Hostname:    hostname,
		Port:        443,
		Certificate: cert,
	}
}

func testScheduler(reg *fakeRegistry, chk *fakeChecker, disp *fakeDispatcher) *Scheduler {
	cfg := config.SchedulerConfig{
		WorkerCount:  4,
		ProbesPerSec: 1000,
		ProbeBurst:   1000,
		LockTTL:      time.Minute,
	}
	return NewScheduler(reg, chk, disp, NopLocker{}, nil, zap.NewNop(), cfg)
}

func TestRunBatchSkipsWithoutPreferences(t *testing.T) {
	reg := newFakeRegistry()
	user := core.User{ID: uuid.New(), Email: "nobody@example.com"}
	reg.users = []core.User{user}

	disp := &fakeDispatcher{}
	s := testScheduler(reg, &fakeChecker{}, disp)

	report, err := s.RunBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(report.Users) != 1 {
		t.Fatalf("expected 1 user result, got %d", len(report.Users))
	}
	res := report.Users[0]
	if res.Outcome != core.OutcomeSkipped {
		t.Errorf("expected skipped, got %s", res.Outcome)
	}
	if res.Reason != "no notification settings" {
		t.Errorf("unexpected reason %q", res.Reason)
	}
	if len(disp.sent) != 0 {
		t.Errorf("dispatcher called for user without settings")
	}
}

func TestRunBatchSkipsDisabledUser(t *testing.T) {
	reg := newFakeRegistry()
	user := core.User{ID: uuid.New(), Email: "off@example.com"}
	reg.users = []core.User{user}
	reg.prefs[user.ID] = &core.NotificationPreference{UserID: user.ID, EmailEnabled: false, WarningDays: 30, CriticalDays: 7}
	reg.domains[user.ID] = []*core.MonitoredDomain{
		testDomain(user.ID, "expiring.example.com", certExpiring(3)),
	}

	disp := &fakeDispatcher{}
	s := testScheduler(reg, &fakeChecker{}, disp)

	report, err := s.RunBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if report.Users[0].Outcome != core.OutcomeSkipped {
		t.Errorf("expected skipped, got %s", report.Users[0].Outcome)
	}
	if len(disp.sent) != 0 {
		t.Errorf("dispatcher called for disabled user")
	}
}

func TestRunBatchSkipsWhenNothingCrossesThreshold(t *testing.T) {
	reg := newFakeRegistry()
	user := core.User{ID: uuid.New(), Email: "healthy@example.com"}
	reg.users = []core.User{user}
	reg.prefs[user.ID] = &core.NotificationPreference{UserID: user.ID, EmailEnabled: true, WarningDays: 30, CriticalDays: 7}
	reg.domains[user.ID] = []*core.MonitoredDomain{
		testDomain(user.ID, "healthy.example.com", certExpiring(40)),
	}

	disp := &fakeDispatcher{}
	s := testScheduler(reg, &fakeChecker{}, disp)

	report, err := s.RunBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	res := report.Users[0]
	if res.Outcome != core.OutcomeSkipped {
		t.Errorf("expected skipped, got %s", res.Outcome)
	}
	if res.Reason != "no domains need notification" {
		t.Errorf("unexpected reason %q", res.Reason)
	}
	if len(disp.sent) != 0 {
		t.Errorf("dispatcher called with nothing to notify")
	}
	if len(reg.statusUpdates) != 1 {
		t.Errorf("expected dashboard status update for the healthy domain, got %d", len(reg.statusUpdates))
	}
}

func TestRunBatchNotifiesAndRecordsLastNotified(t *testing.T) {
	reg := newFakeRegistry()
	user := core.User{ID: uuid.New(), Email: "ops@example.com"}
	reg.users = []core.User{user}
	reg.prefs[user.ID] = &core.NotificationPreference{UserID: user.ID, EmailEnabled: true, WarningDays: 30, CriticalDays: 7}
	reg.domains[user.ID] = []*core.MonitoredDomain{
		testDomain(user.ID, "soon.example.com", certExpiring(5)),
		testDomain(user.ID, "fine.example.com", certExpiring(90)),
	}

	disp := &fakeDispatcher{}
	s := testScheduler(reg, &fakeChecker{}, disp)

	report, err := s.RunBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	res := report.Users[0]
	if res.Outcome != core.OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Reason)
	}
	if len(res.Notified) != 1 || res.Notified[0].Domain != "soon.example.com" {
		t.Errorf("expected only the expiring domain in the payload, got %+v", res.Notified)
	}
	if len(disp.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(disp.sent))
	}
	// 5 days with critical threshold 7 lands in the critical tier.
	if !strings.HasPrefix(disp.sent[0].subject, "Urgent:") {
		t.Errorf("expected urgent subject, got %q", disp.sent[0].subject)
	}
	if _, ok := reg.lastNotified[user.ID]; !ok {
		t.Errorf("lastNotifiedAt not recorded after successful dispatch")
	}
}

func TestRunBatchDispatchFailureIsolated(t *testing.T) {
	reg := newFakeRegistry()
	broken := core.User{ID: uuid.New(), Email: "broken@example.com"}
	healthy := core.User{ID: uuid.New(), Email: "fine@example.com"}
	reg.users = []core.User{broken, healthy}
	for _, u := range []core.User{broken, healthy} {
		reg.prefs[u.ID] = &core.NotificationPreference{UserID: u.ID, EmailEnabled: true, WarningDays: 30, CriticalDays: 7}
		reg.domains[u.ID] = []*core.MonitoredDomain{
			testDomain(u.ID, "soon.example.com", certExpiring(5)),
		}
	}

	disp := &fakeDispatcher{failTo: map[string]error{"broken@example.com": errors.New("smtp unavailable")}}
	s := testScheduler(reg, &fakeChecker{}, disp)

	report, err := s.RunBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(report.Users) != 2 {
		t.Fatalf("expected 2 user results, got %d", len(report.Users))
	}
	outcomes := map[string]core.UserOutcome{}
	for _, res := range report.Users {
		outcomes[res.Email] = res.Outcome
	}
	if outcomes["broken@example.com"] != core.OutcomeFailed {
		t.Errorf("expected failed for broken user, got %s", outcomes["broken@example.com"])
	}
	if outcomes["fine@example.com"] != core.OutcomeSuccess {
		t.Errorf("expected success for healthy user, got %s", outcomes["fine@example.com"])
	}
	if _, ok := reg.lastNotified[broken.ID]; ok {
		t.Errorf("lastNotifiedAt recorded despite dispatch failure")
	}
	if _, ok := reg.lastNotified[healthy.ID]; !ok {
		t.Errorf("lastNotifiedAt missing for healthy user")
	}
}

func TestRunBatchForceRefreshKeepsSnapshotOnFailure(t *testing.T) {
	reg := newFakeRegistry()
	user := core.User{ID: uuid.New(), Email: "ops@example.com"}
	reg.users = []core.User{user}
	reg.prefs[user.ID] = &core.NotificationPreference{UserID: user.ID, EmailEnabled: true, WarningDays: 30, CriticalDays: 7}

	reachable := testDomain(user.ID, "reachable.example.com", certExpiring(10))
	unreachable := testDomain(user.ID, "down.example.com", certExpiring(5))
	reg.domains[user.ID] = []*core.MonitoredDomain{reachable, unreachable}

	freshCert := certExpiring(20)
	chk := &fakeChecker{
		certs: map[string]*core.CertificateRecord{"reachable.example.com:443": freshCert},
		errs:  map[string]error{"down.example.com:443": errors.New("no certificate info available")},
	}

	disp := &fakeDispatcher{}
	s := testScheduler(reg, chk, disp)

	report, err := s.RunBatch(context.Background(), Options{ForceRefresh: true})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	res := report.Users[0]
	if res.Outcome != core.OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Reason)
	}

	// The failed refresh falls back to the stored snapshot, so both
	// domains still land in the payload.
	byDomain := map[string]int{}
	for _, n := range res.Notified {
		byDomain[n.Domain] = n.DaysLeft
	}
	if _, ok := byDomain["down.example.com"]; !ok {
		t.Errorf("domain with failed refresh dropped from payload: %+v", res.Notified)
	}
	if days := byDomain["reachable.example.com"]; days < 19 || days > 20 {
		t.Errorf("expected refreshed daysLeft near 20, got %d", days)
	}

	if len(res.CheckErrors) != 1 || !strings.Contains(res.CheckErrors[0], "down.example.com") {
		t.Errorf("expected a check error for down.example.com, got %v", res.CheckErrors)
	}

	// Only the successful refresh persists a new certificate snapshot.
	if len(reg.checkResults) != 1 || reg.checkResults[0] != reachable.ID {
		t.Errorf("unexpected snapshot writes %v", reg.checkResults)
	}
	if unreachable.Certificate == nil {
		t.Errorf("known-good snapshot erased by failed refresh")
	}
}

func TestRunBatchExpiredDomainIncluded(t *testing.T) {
	reg := newFakeRegistry()
	user := core.User{ID: uuid.New(), Email: "ops@example.com"}
	reg.users = []core.User{user}
	reg.prefs[user.ID] = &core.NotificationPreference{UserID: user.ID, EmailEnabled: true, WarningDays: 30, CriticalDays: 7}
	reg.domains[user.ID] = []*core.MonitoredDomain{
		testDomain(user.ID, "expired.example.com", certExpiring(-3)),
	}

	disp := &fakeDispatcher{}
	s := testScheduler(reg, &fakeChecker{}, disp)

	report, err := s.RunBatch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	res := report.Users[0]
	if res.Outcome != core.OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Reason)
	}
	if len(res.Notified) != 1 || res.Notified[0].DaysLeft >= 0 {
		t.Errorf("expected expired domain in payload, got %+v", res.Notified)
	}
}

func TestRunBatchSerializedByLock(t *testing.T) {
	reg := newFakeRegistry()
	s := testScheduler(reg, &fakeChecker{}, &fakeDispatcher{})
	s.locker = &heldLocker{}

	_, err := s.RunBatch(context.Background(), Options{})
	if !errors.Is(err, ErrBatchInProgress) {
		t.Fatalf("expected ErrBatchInProgress, got %v", err)
	}
}

type heldLocker struct{}

func (heldLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, nil
}
func (heldLocker) Unlock(ctx context.Context, key string) error { return nil }
