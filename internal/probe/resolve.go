package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver answers "does this hostname resolve at all" before a domain is
// registered, so an unresolvable name fails fast instead of sitting
// through the checker's full retry sequence.
type Resolver struct {
	client  *dns.Client
	servers []string
}

func NewResolver() *Resolver {
	r := &Resolver{
		client: &dns.Client{Timeout: 5 * time.Second},
	}

	if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
		for _, s := range conf.Servers {
			r.servers = append(r.servers, net.JoinHostPort(s, conf.Port))
		}
	}
	if len(r.servers) == 0 {
		r.servers = []string{"8.8.8.8:53"}
	}

	return r
}

// Resolves returns nil if the hostname has at least one A or AAAA record.
func (r *Resolver) Resolves(ctx context.Context, hostname string) error {
	// Literal IPs are always accepted.
	if net.ParseIP(hostname) != nil {
		return nil
	}

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		if r.hasRecords(ctx, hostname, qtype) {
			return nil
		}
	}
	return fmt.Errorf("hostname %s does not resolve", hostname)
}

func (r *Resolver) hasRecords(ctx context.Context, hostname string, qtype uint16) bool {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(hostname), qtype)
	msg.RecursionDesired = true

	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil || resp == nil {
			continue
		}
		if resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0 {
			return true
		}
	}
	return false
}
