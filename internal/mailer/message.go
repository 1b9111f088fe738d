package mailer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/certsentry/certsentry/internal/core"
)

// BatchMessage is the rendered text of one batched expiry notification.
// Notices are split into critical and warning tiers for presentation only;
// tiering never decides whether the message is sent.
type BatchMessage struct {
	Subject string
	Body    string
}

// RenderBatch builds the per-user notification from the filtered notices.
// criticalDays selects the severity wording, nothing else.
func RenderBatch(notices []core.ExpiryNotice, criticalDays int) BatchMessage {
	critical, warning := partition(notices, criticalDays)

	subject := "Warning: SSL certificates expiring soon"
	if len(critical) > 0 {
		subject = "Urgent: SSL certificates expiring soon"
	}
	if len(notices) == 1 {
		if len(critical) > 0 {
			subject = fmt.Sprintf("Urgent: SSL certificate for %s is about to expire", notices[0].Domain)
		} else {
			subject = fmt.Sprintf("Warning: SSL certificate for %s is about to expire", notices[0].Domain)
		}
	}

	var b strings.Builder
	b.WriteString("The following SSL certificates are approaching expiration.\n\n")

	if len(critical) > 0 {
		b.WriteString("CRITICAL\n")
		writeNotices(&b, critical)
		b.WriteString("\n")
	}
	if len(warning) > 0 {
		b.WriteString("WARNING\n")
		writeNotices(&b, warning)
		b.WriteString("\n")
	}

	b.WriteString("Renew these certificates before they expire to avoid outages.\n")

	return BatchMessage{Subject: subject, Body: b.String()}
}

func partition(notices []core.ExpiryNotice, criticalDays int) (critical, warning []core.ExpiryNotice) {
	for _, n := range notices {
		if n.DaysLeft <= criticalDays {
			critical = append(critical, n)
		} else {
			warning = append(warning, n)
		}
	}
	sort.Slice(critical, func(i, j int) bool { return critical[i].DaysLeft < critical[j].DaysLeft })
	sort.Slice(warning, func(i, j int) bool { return warning[i].DaysLeft < warning[j].DaysLeft })
	return critical, warning
}

func writeNotices(b *strings.Builder, notices []core.ExpiryNotice) {
	for _, n := range notices {
		target := n.Domain
		if n.Port != 0 && n.Port != 443 {
			target = fmt.Sprintf("%s:%d", n.Domain, n.Port)
		}
		switch {
		case n.DaysLeft < 0:
			fmt.Fprintf(b, "  %s - expired %d day(s) ago (%s)\n", target, -n.DaysLeft, n.ExpiresAt.Format("2006-01-02"))
		case n.DaysLeft == 0:
			fmt.Fprintf(b, "  %s - expires today (%s)\n", target, n.ExpiresAt.Format("2006-01-02"))
		default:
			fmt.Fprintf(b, "  %s - %d day(s) left (%s)\n", target, n.DaysLeft, n.ExpiresAt.Format("2006-01-02"))
		}
	}
}
