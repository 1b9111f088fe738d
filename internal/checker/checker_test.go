package checker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/certsentry/certsentry/internal/config"
	"github.com/certsentry/certsentry/internal/core"
)

type fakeProber struct {
	attempts  int
	timeouts  []time.Duration
	failUntil int // attempts up to and including this number fail
	err       error
}

func (f *fakeProber) Probe(ctx context.Context, hostname string, port int, timeout time.Duration) (*core.CertificateRecord, error) {
	f.attempts++
	f.timeouts = append(f.timeouts, timeout)
	if f.attempts <= f.failUntil {
		return nil, f.err
	}
	return &core.CertificateRecord{
		SerialNumber: "01",
		IssuedAt:     time.Now().Add(-24 * time.Hour),
		ExpiresAt:    time.Now().Add(30 * 24 * time.Hour),
	}, nil
}

func testConfig() config.CheckerConfig {
	return config.CheckerConfig{
		MaxAttempts: 3,
		BaseTimeout: 5 * time.Second,
		TimeoutStep: 2 * time.Second,
		RetryDelay:  time.Millisecond,
	}
}

func TestCheckExhaustsAllAttempts(t *testing.T) {
	prober := &fakeProber{failUntil: 99, err: errors.New("connection refused")}
	c := New(prober, zap.NewNop(), testConfig())

	record, err := c.Check(context.Background(), "example.com", 443)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if record != nil {
		t.Errorf("expected nil record, got %+v", record)
	}
	if prober.attempts != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", prober.attempts)
	}
}

func TestCheckReturnsFirstSuccess(t *testing.T) {
	prober := &fakeProber{failUntil: 1, err: errors.New("timeout")}
	c := New(prober, zap.NewNop(), testConfig())

	record, err := c.Check(context.Background(), "example.com", 443)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if record == nil {
		t.Fatal("expected a record")
	}
	if prober.attempts != 2 {
		t.Errorf("expected success on attempt 2 with no 3rd attempt, got %d attempts", prober.attempts)
	}
}

func TestAttemptTimeoutProgression(t *testing.T) {
	prober := &fakeProber{failUntil: 99, err: errors.New("unreachable")}
	c := New(prober, zap.NewNop(), testConfig())

	c.Check(context.Background(), "example.com", 443)

	expected := []time.Duration{7 * time.Second, 9 * time.Second, 11 * time.Second}
	if len(prober.timeouts) != len(expected) {
		t.Fatalf("expected %d attempts, got %d", len(expected), len(prober.timeouts))
	}
	for i, want := range expected {
		if prober.timeouts[i] != want {
			t.Errorf("attempt %d timeout = %v, expected %v", i+1, prober.timeouts[i], want)
		}
	}
	for i := 1; i < len(prober.timeouts); i++ {
		if prober.timeouts[i] <= prober.timeouts[i-1] {
			t.Errorf("timeouts not strictly increasing: %v", prober.timeouts)
		}
	}
}

func TestCheckHonorsContextCancellation(t *testing.T) {
	prober := &fakeProber{failUntil: 99, err: errors.New("unreachable")}
	cfg := testConfig()
	cfg.RetryDelay = time.Minute
	c := New(prober, zap.NewNop(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Check(ctx, "example.com", 443)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if prober.attempts != 1 {
		t.Errorf("expected cancellation during retry delay after 1 attempt, got %d", prober.attempts)
	}
}
