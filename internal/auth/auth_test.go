package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authHandler(cfg Config) http.Handler {
	return Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

// TestMiddlewareDisabled verifies everything is open without a token.
func TestMiddlewareDisabled(t *testing.T) {
	h := authHandler(Config{})

	for _, path := range []string{"/epochs", "/admin/refresh", "/api/v1/admin/refresh"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: got %d, want 200 with auth disabled", path, rec.Code)
		}
	}
}

// TestMiddlewarePublicPaths verifies the data API stays public when a
// token is configured.
func TestMiddlewarePublicPaths(t *testing.T) {
	h := authHandler(Config{Token: "s3cret"})

	for _, path := range []string{"/", "/epochs", "/now", "/api/v1/epochs"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: got %d, want 200 without credentials", path, rec.Code)
		}
	}
}

// TestMiddlewareProtectedPaths verifies admin paths enforce the token.
func TestMiddlewareProtectedPaths(t *testing.T) {
	h := authHandler(Config{Token: "s3cret"})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing bearer prefix", "s3cret", http.StatusUnauthorized},
		{"basic auth scheme", "Basic czNjcmV0", http.StatusUnauthorized},
		{"valid token", "Bearer s3cret", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/refresh", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("got %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
