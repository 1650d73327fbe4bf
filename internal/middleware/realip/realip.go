// Package realip resolves the client address of requests that arrive through
// trusted reverse proxies.
package realip

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type contextKey string

// ClientIPKey is the context key holding the resolved client IP
const ClientIPKey contextKey = "client_ip"

// Config controls which forwarding headers are believed
type Config struct {
	// TrustProxy enables X-Forwarded-For and X-Real-IP parsing
	TrustProxy bool
	// TrustedProxies are CIDR ranges or bare addresses of proxies
	TrustedProxies []string
}

// ParsePrefixes parses CIDR ranges and bare addresses. A bare address
// becomes a single-host prefix.
func ParsePrefixes(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q is neither a CIDR nor an address", entry)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Middleware stores the client IP in the request context. Forwarding headers
// are only read when the direct peer is a trusted proxy. Invalid proxy
// entries are ignored; validate them with ParsePrefixes at startup.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	var trusted []netip.Prefix
	if cfg.TrustProxy {
		for _, entry := range cfg.TrustedProxies {
			if p, err := ParsePrefixes([]string{entry}); err == nil {
				trusted = append(trusted, p...)
			}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, cfg.TrustProxy, trusted)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClientIPKey, ip)))
		})
	}
}

func clientIP(r *http.Request, trustProxy bool, trusted []netip.Prefix) string {
	remote := extractIP(r.RemoteAddr)
	if !trustProxy || !isTrustedProxy(remote, trusted) {
		return remote
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
			return real
		}
		return remote
	}

	// Walk right to left; the first hop that is not a trusted proxy is
	// the client. If every hop is trusted the leftmost one wins.
	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !isTrustedProxy(hop, trusted) {
			return hop
		}
	}
	if first := strings.TrimSpace(hops[0]); first != "" {
		return first
	}
	return remote
}

// extractIP strips the port from a host:port address
func extractIP(addr string) string {
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap().String()
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func isTrustedProxy(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// GetClientIP returns the IP stored by Middleware, or the peer address when
// the middleware did not run.
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return extractIP(r.RemoteAddr)
}
