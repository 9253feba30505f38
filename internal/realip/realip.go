package realip

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/asergeyev/nradix"
)

// Resolver determines the originating client of a request, honouring
// forwarding headers only when they were set by a trusted proxy.
type Resolver struct {
	t *nradix.Tree
}

// NewResolver builds a Resolver trusting the given CIDRs or addresses. An
// empty list trusts nobody, so the TCP peer is always the client.
func NewResolver(trusted []string) (*Resolver, error) {
	tree := nradix.NewTree(len(trusted))
	for _, cidr := range trusted {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if err := tree.AddCIDR(cidr, true); err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
	}
	return &Resolver{t: tree}, nil
}

func (rs *Resolver) trusted(ip string) bool {
	if rs == nil || rs.t == nil {
		return false
	}
	v, err := rs.t.FindCIDR(ip)
	if err != nil || v == nil {
		return false
	}
	return v.(bool)
}

// ClientIP returns the client address for r. When the peer is trusted,
// X-Forwarded-For is walked right to left and the first untrusted hop wins.
func (rs *Resolver) ClientIP(r *http.Request) string {
	peer := PeerIP(r)
	if !rs.trusted(peer) {
		return peer
	}

	hops := forwardedFor(r.Header)
	for i := len(hops) - 1; i >= 0; i-- {
		if net.ParseIP(hops[i]) == nil {
			break
		}
		if !rs.trusted(hops[i]) {
			return hops[i]
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(real) != nil {
		return real
	}
	return peer
}

// Proto returns the scheme the client used to reach the edge.
func (rs *Resolver) Proto(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if rs.trusted(PeerIP(r)) {
		switch p := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))); p {
		case "http", "https":
			return p
		}
	}
	return "http"
}

// PeerIP returns the address of the TCP peer that sent r.
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedFor(h http.Header) []string {
	var hops []string
	for _, v := range h.Values("X-Forwarded-For") {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				hops = append(hops, part)
			}
		}
	}
	return hops
}
