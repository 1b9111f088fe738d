package mailer

import (
	"strings"
	"testing"
	"time"

	"github.com/certsentry/certsentry/internal/core"
)

func notice(domain string, daysLeft int) core.ExpiryNotice {
	return core.ExpiryNotice{
		Domain:    domain,
		Port:      443,
		DaysLeft:  daysLeft,
		ExpiresAt: time.Now().AddDate(0, 0, daysLeft),
	}
}

func TestRenderBatchSubjectSeverity(t *testing.T) {
	tests := []struct {
		name    string
		notices []core.ExpiryNotice
		urgent  bool
	}{
		{"warning only", []core.ExpiryNotice{notice("a.example.com", 20)}, false},
		{"critical present", []core.ExpiryNotice{notice("a.example.com", 5)}, true},
		{"mixed tiers", []core.ExpiryNotice{notice("a.example.com", 20), notice("b.example.com", 3)}, true},
		{"expired counts as critical", []core.ExpiryNotice{notice("a.example.com", -3)}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			msg := RenderBatch(test.notices, core.DefaultCriticalDays)
			isUrgent := strings.HasPrefix(msg.Subject, "Urgent")
			if isUrgent != test.urgent {
				t.Errorf("subject = %q, urgent = %v, expected %v", msg.Subject, isUrgent, test.urgent)
			}
		})
	}
}

func TestRenderBatchPartitionsTiers(t *testing.T) {
	notices := []core.ExpiryNotice{
		notice("warn.example.com", 20),
		notice("crit.example.com", 5),
	}

	msg := RenderBatch(notices, core.DefaultCriticalDays)

	critIdx := strings.Index(msg.Body, "CRITICAL")
	warnIdx := strings.Index(msg.Body, "WARNING")
	if critIdx < 0 || warnIdx < 0 {
		t.Fatalf("body missing tier headers:\n%s", msg.Body)
	}
	if critIdx > warnIdx {
		t.Error("critical tier should come before warning tier")
	}
	if !strings.Contains(msg.Body, "crit.example.com") || !strings.Contains(msg.Body, "warn.example.com") {
		t.Errorf("body missing domains:\n%s", msg.Body)
	}
}

func TestRenderBatchTierBoundary(t *testing.T) {
	// daysLeft == criticalDays belongs to the critical tier.
	msg := RenderBatch([]core.ExpiryNotice{notice("edge.example.com", 7)}, 7)
	if !strings.Contains(msg.Body, "CRITICAL") {
		t.Errorf("daysLeft at the critical boundary should be critical:\n%s", msg.Body)
	}

	msg = RenderBatch([]core.ExpiryNotice{notice("edge.example.com", 8)}, 7)
	if strings.Contains(msg.Body, "CRITICAL") {
		t.Errorf("daysLeft past the critical boundary should be warning:\n%s", msg.Body)
	}
}

func TestRenderBatchNonDefaultPort(t *testing.T) {
	n := notice("api.example.com", 10)
	n.Port = 8443
	msg := RenderBatch([]core.ExpiryNotice{n}, core.DefaultCriticalDays)
	if !strings.Contains(msg.Body, "api.example.com:8443") {
		t.Errorf("body should include the non-default port:\n%s", msg.Body)
	}
}
