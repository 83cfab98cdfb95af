package http

import (
	"net"
	"net/http"
	"strings"
)

// ClientIPResolver resolves the originating client address for a request.
// Forwarding headers are honored only when the direct peer falls inside a
// trusted proxy range; from anyone else they are attacker-controlled and
// ignored.
type ClientIPResolver struct {
	trusted []*net.IPNet
}

// NewClientIPResolver parses the trusted proxy CIDR ranges once. Ranges
// that fail to parse are skipped.
func NewClientIPResolver(trustedProxies []string) *ClientIPResolver {
	resolver := &ClientIPResolver{}
	for _, cidr := range trustedProxies {
		if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
			resolver.trusted = append(resolver.trusted, ipNet)
		}
	}
	return resolver
}

// ClientIP returns the first valid X-Forwarded-For entry, then X-Real-IP,
// when the peer is a trusted proxy; otherwise the peer address itself.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	peer := peerIP(r)
	if c == nil || !c.trustedPeer(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, candidate := range strings.Split(xff, ",") {
			candidate = strings.TrimSpace(candidate)
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
		return xri
	}

	return peer
}

// peerIP strips the port from RemoteAddr when one is present.
func peerIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (c *ClientIPResolver) trustedPeer(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range c.trusted {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}
