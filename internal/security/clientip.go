package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the caller's IP. Forwarding headers are only honored
// when the TCP peer is a trusted proxy: first the first hop of
// X-Forwarded-For, then X-Real-IP, otherwise the peer address itself.
func ClientIP(r *http.Request, trustedProxies []string) string {
	peer := peerIP(r.RemoteAddr)
	if !isTrusted(peer, trustedProxies) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	return peer
}

func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isTrusted(peer string, trustedProxies []string) bool {
	for _, p := range trustedProxies {
		if p == peer {
			return true
		}
	}
	return false
}
