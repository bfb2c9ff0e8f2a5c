package server

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ForwardedHost restores the public Host from X-Forwarded-Host when the
// peer is one of the trusted proxies. Signatures cover the host header, so
// a TLS terminator that rewrites it would otherwise break verification.
//
// Entries are IP addresses or CIDR prefixes.
func ForwardedHost(trusted []string) (func(http.Handler) http.Handler, error) {
	prefixes := make([]netip.Prefix, 0, len(trusted))

	for _, entry := range trusted {
		entry = strings.TrimSpace(entry)

		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("server: invalid trusted proxy %q", entry)
		}

		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if host := r.Header.Get("X-Forwarded-Host"); host != "" && trustedPeer(r.RemoteAddr, prefixes) {
				// A proxy chain appends hosts; the first is the client's.
				host, _, _ = strings.Cut(host, ",")
				r.Host = strings.TrimSpace(host)
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func trustedPeer(remoteAddr string, prefixes []netip.Prefix) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	addr = addr.Unmap()

	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}

	return false
}
