// Package httputil has small HTTP request helpers shared by the API and
// the stream handlers.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the originating client address for a request.
//
// With trustProxy set, proxy headers win: the leftmost valid address in
// X-Forwarded-For, then X-Real-IP. Anything unparseable is skipped, so a
// forged header cannot smuggle an arbitrary string into logs or rate
// limiter keys. Without trustProxy the peer address is used as-is.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
