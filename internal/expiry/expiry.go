// Package expiry computes days-remaining and status for a certificate's
// expiry timestamp. Pure, deterministic, no I/O.
package expiry

import (
	"math"
	"time"

	"github.com/certsentry/certsentry/internal/core"
)

type Result struct {
	DaysLeft int
	Status   core.DomainStatus
}

// Evaluate truncates both timestamps to midnight in the local zone before
// subtracting, so time-of-day skew can never shift the day count.
func Evaluate(expiresAt, now time.Time) Result {
	days := DaysLeft(expiresAt, now)
	return Result{DaysLeft: days, Status: StatusFor(days)}
}

func DaysLeft(expiresAt, now time.Time) int {
	expiry := truncateToMidnight(expiresAt)
	today := truncateToMidnight(now)
	// Ceil keeps the count exact across DST transitions, where a
	// midnight-to-midnight span is not a whole multiple of 24h.
	return int(math.Ceil(expiry.Sub(today).Hours() / 24))
}

// StatusFor maps a day count onto the fixed dashboard boundary. Per-user
// warning thresholds apply to notification filtering, not to this status.
func StatusFor(daysLeft int) core.DomainStatus {
	switch {
	case daysLeft < 0:
		return core.StatusExpired
	case daysLeft <= core.DashboardWarningDays:
		return core.StatusWarning
	default:
		return core.StatusOk
	}
}

func truncateToMidnight(t time.Time) time.Time {
	local := t.Local()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
}
