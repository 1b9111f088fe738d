package core

import (
	"errors"
	"time"
)

// CertificateRecord is an immutable snapshot of the leaf certificate a host
// presented at one check instant. It is replaced wholesale on every
// successful check, never mutated in place.
type CertificateRecord struct {
	SerialNumber      string    `json:"serial_number" db:"cert_serial"`
	IssuedAt          time.Time `json:"issued_at" db:"cert_issued_at"`
	ExpiresAt         time.Time `json:"expires_at" db:"cert_expires_at"`
	SHA1Fingerprint   string    `json:"sha1_fingerprint" db:"cert_sha1_fingerprint"`
	SHA256Fingerprint string    `json:"sha256_fingerprint" db:"cert_sha256_fingerprint"`
	RawDER            []byte    `json:"raw_der,omitempty" db:"cert_raw"`
	Issuer            Issuer    `json:"issuer"`
}

type Issuer struct {
	Organization string `json:"organization" db:"issuer_organization"`
	Country      string `json:"country" db:"issuer_country"`
	CommonName   string `json:"common_name" db:"issuer_common_name"`
}

var ErrInvalidValidity = errors.New("certificate validity dates missing or inverted")

// Validate rejects snapshots with absent or inverted validity dates. A record
// that fails here is treated as a failed check and never stored.
func (c *CertificateRecord) Validate() error {
	if c.IssuedAt.IsZero() || c.ExpiresAt.IsZero() {
		return ErrInvalidValidity
	}
	if c.ExpiresAt.Before(c.IssuedAt) {
		return ErrInvalidValidity
	}
	return nil
}
