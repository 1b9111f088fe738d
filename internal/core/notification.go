package core

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultWarningDays  = 30
	DefaultCriticalDays = 7
)

// NotificationPreference holds one user's notification settings. Created
// lazily with defaults on first access.
type NotificationPreference struct {
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	EmailEnabled   bool       `json:"email_enabled" db:"email_enabled"`
	WarningDays    int        `json:"warning_days" db:"warning_days"`
	CriticalDays   int        `json:"critical_days" db:"critical_days"`
	LastNotifiedAt *time.Time `json:"last_notified_at" db:"last_notified_at"`
}

func DefaultPreference(userID uuid.UUID) *NotificationPreference {
	return &NotificationPreference{
		UserID:       userID,
		EmailEnabled: true,
		WarningDays:  DefaultWarningDays,
		CriticalDays: DefaultCriticalDays,
	}
}

// ExpiryNotice is one domain's entry in a batched notification.
type ExpiryNotice struct {
	Domain    string    `json:"domain"`
	Port      int       `json:"port"`
	DaysLeft  int       `json:"days_left"`
	ExpiresAt time.Time `json:"expires_at"`
}

type UserOutcome string

const (
	OutcomeSuccess UserOutcome = "success"
	OutcomeFailed  UserOutcome = "failed"
	OutcomeSkipped UserOutcome = "skipped"
)

// UserResult is one user's entry in a BatchReport.
type UserResult struct {
	UserID      uuid.UUID      `json:"user_id"`
	Email       string         `json:"email"`
	Outcome     UserOutcome    `json:"outcome"`
	Reason      string         `json:"reason,omitempty"`
	Notified    []ExpiryNotice `json:"notified,omitempty"`
	CheckErrors []string       `json:"check_errors,omitempty"`
}

// BatchReport aggregates one scheduler run. A user's dispatch or check
// failure never aborts the batch; it lands here instead.
type BatchReport struct {
	RunID      uuid.UUID    `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Users      []UserResult `json:"users"`
}

func (r *BatchReport) Count(outcome UserOutcome) int {
	n := 0
	for _, u := range r.Users {
		if u.Outcome == outcome {
			n++
		}
	}
	return n
}
