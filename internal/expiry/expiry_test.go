package expiry

import (
	"testing"
	"time"

	"github.com/certsentry/certsentry/internal/core"
)

func midnight(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}

func TestEvaluateDayBoundaries(t *testing.T) {
	now := midnight(2026, time.March, 1)

	tests := []struct {
		name      string
		expiresAt time.Time
		daysLeft  int
		status    core.DomainStatus
	}{
		{"same instant", now, 0, core.StatusWarning},
		{"later same day", now.Add(23 * time.Hour), 0, core.StatusWarning},
		{"tomorrow", midnight(2026, time.March, 2), 1, core.StatusWarning},
		{"expired yesterday", midnight(2026, time.February, 28), -1, core.StatusExpired},
		{"expired three days ago", midnight(2026, time.February, 26), -3, core.StatusExpired},
		{"at warning boundary", midnight(2026, time.March, 31), 30, core.StatusWarning},
		{"just past warning boundary", midnight(2026, time.April, 1), 31, core.StatusOk},
		{"well clear", midnight(2026, time.April, 10), 40, core.StatusOk},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Evaluate(test.expiresAt, now)
			if result.DaysLeft != test.daysLeft {
				t.Errorf("DaysLeft = %d, expected %d", result.DaysLeft, test.daysLeft)
			}
			if result.Status != test.status {
				t.Errorf("Status = %s, expected %s", result.Status, test.status)
			}
		})
	}
}

func TestEvaluateIgnoresTimeOfDay(t *testing.T) {
	expiresAt := time.Date(2026, time.June, 10, 3, 12, 44, 0, time.Local)

	early := time.Date(2026, time.June, 5, 0, 30, 0, 0, time.Local)
	late := time.Date(2026, time.June, 5, 23, 45, 0, 0, time.Local)

	if a, b := DaysLeft(expiresAt, early), DaysLeft(expiresAt, late); a != b {
		t.Errorf("time of day shifted the count: %d vs %d", a, b)
	}
	if got := DaysLeft(expiresAt, early); got != 5 {
		t.Errorf("DaysLeft = %d, expected 5", got)
	}
}

func TestDaysLeftMonotonicallyNonIncreasing(t *testing.T) {
	expiresAt := midnight(2026, time.August, 1)

	prev := DaysLeft(expiresAt, midnight(2026, time.June, 1))
	for day := 2; day <= 60; day++ {
		now := midnight(2026, time.June, 1).AddDate(0, 0, day-1)
		got := DaysLeft(expiresAt, now)
		if got > prev {
			t.Fatalf("daysLeft increased from %d to %d as now advanced to %v", prev, got, now)
		}
		prev = got
	}
}
