// Package resolve performs DNS resolution for the outbound dialer, kept
// deliberately separate from connect so the two failure modes stay
// distinguishable.
package resolve

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// Error wraps a resolution failure. The dialer checks for this type with
// errors.As to decide whether a session's teardown should log "cannot
// resolve" (ResolveError) rather than a connect failure.
type Error struct {
	Host string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("resolve %s: %v", e.Host, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Resolver looks up the IP addresses for a host.
type Resolver interface {
	// Resolve returns at least one address for host, or an *Error. Only
	// the first entry is ever dialed by the caller; the resolver itself
	// may return more for observability.
	Resolve(ctx context.Context, host string) ([]net.IP, error)
}

// DNSResolver resolves names by querying the resolvers configured in the
// host's resolv.conf directly with github.com/miekg/dns, rather than
// through the platform stub resolver. This keeps "no such host" and
// "query timed out"/"server refused" as distinct, inspectable error
// values instead of being folded into net.DNSError by the stdlib resolver.
type DNSResolver struct {
	client  *dns.Client
	servers []string
}

// NewDNSResolver builds a resolver against the given upstream servers
// (host:port form, e.g. "1.1.1.1:53"). If servers is empty, it reads
// /etc/resolv.conf, matching the host's normal DNS configuration.
func NewDNSResolver(servers ...string) (*DNSResolver, error) {
	if len(servers) == 0 {
		cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("resolve: read resolv.conf: %w", err)
		}
		for _, s := range cfg.Servers {
			servers = append(servers, net.JoinHostPort(s, cfg.Port))
		}
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("resolve: no upstream DNS servers configured")
	}
	return &DNSResolver{client: &dns.Client{}, servers: servers}, nil
}

// Resolve implements Resolver. host is used as-is, with no normalization;
// a literal IP address is returned directly without a network round trip.
func (r *DNSResolver) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	ips, err := r.query(ctx, host, dns.TypeA)
	if err == nil && len(ips) > 0 {
		return ips, nil
	}
	ips6, err6 := r.query(ctx, host, dns.TypeAAAA)
	if err6 == nil && len(ips6) > 0 {
		return ips6, nil
	}
	if err != nil {
		return nil, &Error{Host: host, Err: err}
	}
	return nil, &Error{Host: host, Err: fmt.Errorf("no records found")}
}

func (r *DNSResolver) query(ctx context.Context, host string, qtype uint16) ([]net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("upstream %s returned %s", server, dns.RcodeToString[resp.Rcode])
			continue
		}
		var ips []net.IP
		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				ips = append(ips, rec.A)
			case *dns.AAAA:
				ips = append(ips, rec.AAAA)
			}
		}
		return ips, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no upstream servers reachable")
	}
	return nil, lastErr
}
