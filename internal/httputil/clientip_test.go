package httputil

import (
	"net/http"
	"testing"
)

func newRequest(remoteAddr, xff, xri string) *http.Request {
	r := &http.Request{RemoteAddr: remoteAddr, Header: http.Header{}}
	if xff != "" {
		r.Header.Set("X-Forwarded-For", xff)
	}
	if xri != "" {
		r.Header.Set("X-Real-IP", xri)
	}
	return r
}

func TestClientIPPeerAddress(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.168.1.1:12345", "192.168.1.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"192.168.1.1", "192.168.1.1"},
	}
	for _, tt := range tests {
		if got := ClientIP(newRequest(tt.remoteAddr, "", ""), false); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

func TestClientIPProxyHeaders(t *testing.T) {
	tests := []struct {
		name string
		xff  string
		xri  string
		want string
	}{
		{"single forwarded address", "1.2.3.4", "", "1.2.3.4"},
		{"first of a forwarding chain", "1.2.3.4, 10.0.0.1, 10.0.0.2", "", "1.2.3.4"},
		{"garbage entries skipped", "not-an-ip, 1.2.3.4", "", "1.2.3.4"},
		{"real-ip fallback", "", "5.6.7.8", "5.6.7.8"},
		{"forwarded-for wins over real-ip", "1.2.3.4", "5.6.7.8", "1.2.3.4"},
		{"all headers invalid falls back to peer", "spoofed", "also spoofed", "10.0.0.9"},
		{"no headers falls back to peer", "", "", "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClientIP(newRequest("10.0.0.9:1234", tt.xff, tt.xri), true)
			if got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIPUntrustedIgnoresHeaders(t *testing.T) {
	r := newRequest("10.0.0.9:1234", "1.2.3.4", "5.6.7.8")
	if got := ClientIP(r, false); got != "10.0.0.9" {
		t.Errorf("ClientIP = %q, want peer address 10.0.0.9", got)
	}
}
