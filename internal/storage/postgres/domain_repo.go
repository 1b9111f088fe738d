package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/certsentry/certsentry/internal/core"
)

// domainRow flattens MonitoredDomain and its optional certificate snapshot
// onto the single domains table.
type domainRow struct {
	ID            uuid.UUID         `db:"id"`
	OwnerID       uuid.UUID         `db:"owner_id"`
	Hostname      string            `db:"hostname"`
	Port          int               `db:"port"`
	LastCheckedAt *time.Time        `db:"last_checked_at"`
	Status        core.DomainStatus `db:"status"`
	DaysLeft      int               `db:"days_left"`
	Notes         string            `db:"notes"`
	CreatedAt     time.Time         `db:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at"`

	CertSerial   sql.NullString `db:"cert_serial"`
	CertIssuedAt sql.NullTime   `db:"cert_issued_at"`
	CertExpires  sql.NullTime   `db:"cert_expires_at"`
	CertSHA1     sql.NullString `db:"cert_sha1_fingerprint"`
	CertSHA256   sql.NullString `db:"cert_sha256_fingerprint"`
	CertRaw      []byte         `db:"cert_raw"`
	IssuerOrg    sql.NullString `db:"issuer_organization"`
	IssuerC      sql.NullString `db:"issuer_country"`
	IssuerCN     sql.NullString `db:"issuer_common_name"`
}

func (row *domainRow) toDomain() *core.MonitoredDomain {
	d := &core.MonitoredDomain{
		ID:            row.ID,
		OwnerID:       row.OwnerID,
		Hostname:      row.Hostname,
		Port:          row.Port,
		LastCheckedAt: row.LastCheckedAt,
		Status:        row.Status,
		DaysLeft:      row.DaysLeft,
		Notes:         row.Notes,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}

	if row.CertExpires.Valid && row.CertIssuedAt.Valid {
		d.Certificate = &core.CertificateRecord{
			SerialNumber:      row.CertSerial.String,
			IssuedAt:          row.CertIssuedAt.Time,
			ExpiresAt:         row.CertExpires.Time,
			SHA1Fingerprint:   row.CertSHA1.String,
			SHA256Fingerprint: row.CertSHA256.String,
			RawDER:            row.CertRaw,
			Issuer: core.Issuer{
				Organization: row.IssuerOrg.String,
				Country:      row.IssuerC.String,
				CommonName:   row.IssuerCN.String,
			},
		}
	}

	return d
}

const domainColumns = `
    id, owner_id, hostname, port, last_checked_at, status, days_left, notes,
    cert_serial, cert_issued_at, cert_expires_at,
    cert_sha1_fingerprint, cert_sha256_fingerprint, cert_raw,
    issuer_organization, issuer_country, issuer_common_name,
    created_at, updated_at`

func (r *Repository) CreateDomain(ctx context.Context, d *core.MonitoredDomain) error {
	query := `
        INSERT INTO domains (
            id, owner_id, hostname, port, last_checked_at, status, days_left, notes,
            cert_serial, cert_issued_at, cert_expires_at,
            cert_sha1_fingerprint, cert_sha256_fingerprint, cert_raw,
            issuer_organization, issuer_country, issuer_common_name,
            created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8,
            $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
        )`

	cert := d.Certificate
	if cert == nil {
		cert = &core.CertificateRecord{}
	}

	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.OwnerID, d.Hostname, d.Port, d.LastCheckedAt, d.Status, d.DaysLeft, d.Notes,
		nullString(cert.SerialNumber), nullTime(cert.IssuedAt), nullTime(cert.ExpiresAt),
		nullString(cert.SHA1Fingerprint), nullString(cert.SHA256Fingerprint), cert.RawDER,
		nullString(cert.Issuer.Organization), nullString(cert.Issuer.Country), nullString(cert.Issuer.CommonName),
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *Repository) GetDomain(ctx context.Context, id, ownerID uuid.UUID) (*core.MonitoredDomain, error) {
	var row domainRow
	query := `SELECT ` + domainColumns + ` FROM domains WHERE id = $1 AND owner_id = $2`
	err := r.db.GetContext(ctx, &row, query, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) GetDomainsByUser(ctx context.Context, ownerID uuid.UUID) ([]*core.MonitoredDomain, error) {
	rows := []domainRow{}
	query := `
        SELECT ` + domainColumns + ` FROM domains
        WHERE owner_id = $1
        ORDER BY
            CASE status
                WHEN 'expired' THEN 1
                WHEN 'warning' THEN 2
                ELSE 3
            END,
            cert_expires_at ASC NULLS LAST`

	if err := r.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, err
	}

	domains := make([]*core.MonitoredDomain, 0, len(rows))
	for i := range rows {
		domains = append(domains, rows[i].toDomain())
	}
	return domains, nil
}

func (r *Repository) DomainExists(ctx context.Context, ownerID uuid.UUID, hostname string, port int, exclude uuid.UUID) (bool, error) {
	var exists bool
	query := `
        SELECT EXISTS(
            SELECT 1 FROM domains
            WHERE owner_id = $1 AND hostname = $2 AND port = $3 AND id != $4
        )`
	err := r.db.GetContext(ctx, &exists, query, ownerID, hostname, port, exclude)
	return exists, err
}

// UpdateDomainMeta changes the user-editable fields only.
func (r *Repository) UpdateDomainMeta(ctx context.Context, id uuid.UUID, port int, notes string) error {
	query := `UPDATE domains SET port = $2, notes = $3, updated_at = now() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, port, notes)
	return err
}

func (r *Repository) DeleteDomain(ctx context.Context, id, ownerID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM domains WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCheckResult replaces the certificate snapshot wholesale and rewrites
// the derived columns. Called only after a successful check; a failed
// refresh must never erase known-good data.
func (r *Repository) UpdateCheckResult(ctx context.Context, domainID uuid.UUID, cert *core.CertificateRecord, daysLeft int, status core.DomainStatus) error {
	query := `
        UPDATE domains SET
            last_checked_at = now(),
            status = $2,
            days_left = $3,
            cert_serial = $4,
            cert_issued_at = $5,
            cert_expires_at = $6,
            cert_sha1_fingerprint = $7,
            cert_sha256_fingerprint = $8,
            cert_raw = $9,
            issuer_organization = $10,
            issuer_country = $11,
            issuer_common_name = $12,
            updated_at = now()
        WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query,
		domainID, status, daysLeft,
		nullString(cert.SerialNumber), nullTime(cert.IssuedAt), nullTime(cert.ExpiresAt),
		nullString(cert.SHA1Fingerprint), nullString(cert.SHA256Fingerprint), cert.RawDER,
		nullString(cert.Issuer.Organization), nullString(cert.Issuer.Country), nullString(cert.Issuer.CommonName),
	)
	return err
}

// UpdateDomainStatus rewrites the derived columns from a cached snapshot
// without touching the certificate itself.
func (r *Repository) UpdateDomainStatus(ctx context.Context, domainID uuid.UUID, daysLeft int, status core.DomainStatus) error {
	query := `UPDATE domains SET days_left = $2, status = $3, updated_at = now() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, domainID, daysLeft, status)
	return err
}

func (r *Repository) GetDomainStats(ctx context.Context, ownerID uuid.UUID) (*core.DomainStats, error) {
	var stats core.DomainStats
	query := `
        SELECT
            COUNT(*) AS total,
            COUNT(*) FILTER (WHERE status = 'ok') AS ok,
            COUNT(*) FILTER (WHERE status = 'warning') AS warning,
            COUNT(*) FILTER (WHERE status = 'expired') AS expired
        FROM domains
        WHERE owner_id = $1`

	err := r.db.GetContext(ctx, &stats, query, ownerID)
	return &stats, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
