package core

import (
	"time"

	"github.com/google/uuid"
)

type DomainStatus string

const (
	StatusOk      DomainStatus = "ok"
	StatusWarning DomainStatus = "warning"
	StatusExpired DomainStatus = "expired"
)

// DashboardWarningDays is the fixed boundary used for the persisted status
// column and dashboard coloring. Per-user thresholds govern notification
// filtering only.
const DashboardWarningDays = 30

// MonitoredDomain is one (owner, hostname, port) triple under watch. The
// certificate snapshot and the derived status/days-left columns are rewritten
// on every check.
type MonitoredDomain struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	OwnerID       uuid.UUID          `json:"owner_id" db:"owner_id"`
	Hostname      string             `json:"hostname" db:"hostname"`
	Port          int                `json:"port" db:"port"`
	LastCheckedAt *time.Time         `json:"last_checked_at" db:"last_checked_at"`
	Status        DomainStatus       `json:"status" db:"status"`
	DaysLeft      int                `json:"days_left" db:"days_left"`
	Notes         string             `json:"notes" db:"notes"`
	Certificate   *CertificateRecord `json:"certificate,omitempty"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// HasCertificate reports whether a certificate snapshot has ever been stored
// for this domain.
func (d *MonitoredDomain) HasCertificate() bool {
	return d.Certificate != nil && !d.Certificate.ExpiresAt.IsZero()
}

type DomainStats struct {
	Total   int `json:"total" db:"total"`
	Ok      int `json:"ok" db:"ok"`
	Warning int `json:"warning" db:"warning"`
	Expired int `json:"expired" db:"expired"`
}
