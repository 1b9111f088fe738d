// Package probe opens a single TLS connection to a host and extracts the
// leaf certificate it presents. Retry policy lives in the checker package.
package probe

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/certsentry/certsentry/internal/core"
)

type FailureReason string

const (
	ReasonTimeout            FailureReason = "timeout"
	ReasonConnectionError    FailureReason = "connection_error"
	ReasonNoCertificate      FailureReason = "no_certificate"
	ReasonIncompleteValidity FailureReason = "incomplete_validity"
)

// Failure describes why a single probe attempt produced no usable
// certificate. All reasons are recoverable via retry.
type Failure struct {
	Reason FailureReason
	Host   string
	Port   int
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("probe %s:%d: %s: %v", f.Host, f.Port, f.Reason, f.Err)
	}
	return fmt.Sprintf("probe %s:%d: %s", f.Host, f.Port, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

type Prober struct{}

func NewProber() *Prober {
	return &Prober{}
}

// Probe makes one TLS connection attempt to hostname:port, bounded by
// timeout across connect, handshake and certificate read. Chain trust is
// deliberately not validated: the point is to read whatever certificate is
// being served, expired and self-signed ones included.
func (p *Prober) Probe(ctx context.Context, hostname string, port int, timeout time.Duration) (*core.CertificateRecord, error) {
	addr := net.JoinHostPort(hostname, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &net.Dialer{Timeout: timeout, KeepAlive: -1}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, p.failure(hostname, port, err)
	}

	tlsConn := tls.Client(conn, &tls.Config{
		ServerName: hostname,
		// Trust validation is off on purpose: an expired or
		// self-signed certificate must still be reported, not fail
		// the connection.
		InsecureSkipVerify: true,
	})
	defer tlsConn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(timeout)
	}
	if err := tlsConn.SetDeadline(deadline); err != nil {
		return nil, &Failure{Reason: ReasonConnectionError, Host: hostname, Port: port, Err: err}
	}

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, p.failure(hostname, port, err)
	}

	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, &Failure{Reason: ReasonNoCertificate, Host: hostname, Port: port}
	}

	cert := certs[0]
	if cert.NotBefore.IsZero() || cert.NotAfter.IsZero() {
		return nil, &Failure{Reason: ReasonIncompleteValidity, Host: hostname, Port: port}
	}

	sha1Sum := sha1.Sum(cert.Raw)
	sha256Sum := sha256.Sum256(cert.Raw)

	record := &core.CertificateRecord{
		SerialNumber:      strings.ToUpper(cert.SerialNumber.Text(16)),
		IssuedAt:          cert.NotBefore,
		ExpiresAt:         cert.NotAfter,
		SHA1Fingerprint:   formatFingerprint(sha1Sum[:]),
		SHA256Fingerprint: formatFingerprint(sha256Sum[:]),
		RawDER:            cert.Raw,
		Issuer: core.Issuer{
			Organization: firstOrEmpty(cert.Issuer.Organization),
			Country:      firstOrEmpty(cert.Issuer.Country),
			CommonName:   cert.Issuer.CommonName,
		},
	}

	if err := record.Validate(); err != nil {
		return nil, &Failure{Reason: ReasonIncompleteValidity, Host: hostname, Port: port, Err: err}
	}

	return record, nil
}

func (p *Prober) failure(hostname string, port int, err error) *Failure {
	reason := ReasonConnectionError
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		reason = ReasonTimeout
	} else if errors.Is(err, context.DeadlineExceeded) {
		reason = ReasonTimeout
	}
	return &Failure{Reason: reason, Host: hostname, Port: port, Err: err}
}

// formatFingerprint renders a digest as uppercase colon-separated hex, the
// format the dashboard displays and exports.
func formatFingerprint(sum []byte) string {
	var b strings.Builder
	for i, c := range sum {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String()
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
