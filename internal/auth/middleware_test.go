package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Subject", SubjectFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_DisabledAllowsAll(t *testing.T) {
	handler := NewMiddleware(nil, NewDefaultPolicy(nil, nil)).Wrap(okHandler())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/data", nil))
	if resp.Code != http.StatusOK || resp.Header().Get("X-Subject") != "anonymous" {
		t.Fatalf("expected anonymous 200, got %d %q", resp.Code, resp.Header().Get("X-Subject"))
	}
}

func TestAuthMiddleware_JWT(t *testing.T) {
	secret := []byte("test-secret")
	handler := NewMiddleware(JWTVerifier{Secret: secret}, NewDefaultPolicy([]string{"/api/health"}, nil)).Wrap(okHandler())

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "no token", path: "/api/data", want: http.StatusUnauthorized},
		{name: "garbage", path: "/api/data", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong secret", path: "/api/data", header: "Bearer " + mustToken(t, []byte("other"), time.Hour), want: http.StatusUnauthorized},
		{name: "expired", path: "/api/data", header: "Bearer " + mustToken(t, secret, -time.Minute), want: http.StatusUnauthorized},
		{name: "valid", path: "/api/data", header: "Bearer " + mustToken(t, secret, time.Hour), want: http.StatusOK},
		{name: "exempt", path: "/api/health", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
		})
	}
}

func TestAuthMiddleware_Basic(t *testing.T) {
	handler := NewMiddleware(BasicVerifier{Username: "admin", Password: "s3cret"}, NewDefaultPolicy(nil, []string{"/metrics"})).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized || !strings.HasPrefix(resp.Header().Get("WWW-Authenticate"), "Basic") {
		t.Fatalf("expected basic challenge, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.SetBasicAuth("admin", "wrong")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.SetBasicAuth("admin", "s3cret")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || resp.Header().Get("X-Subject") != "admin" {
		t.Fatalf("expected 200 as admin, got %d", resp.Code)
	}
}

func TestNewVerifier(t *testing.T) {
	if v, err := NewVerifier("", "", "", ""); err != nil || v != (Disabled{}) {
		t.Fatalf("expected disabled verifier, got %v %v", v, err)
	}
	if _, err := NewVerifier("jwt", "", "", ""); err == nil {
		t.Fatalf("expected error for jwt without secret")
	}
	if _, err := NewVerifier("basic", "", "admin", ""); err == nil {
		t.Fatalf("expected error for basic without password")
	}
	if _, err := NewVerifier("ldap", "", "", ""); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestIngestAuthMiddleware(t *testing.T) {
	secret := []byte("ingest-secret")
	now := time.Date(2025, time.September, 11, 17, 0, 0, 0, time.UTC)
	mw := NewIngestAuthMiddleware(secret, 5*time.Minute)
	mw.Now = func() time.Time { return now }

	var seen string
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = string(body)
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"t1":21.5}`
	send := func(ts int64, sig string) int {
		req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body))
		if ts != 0 {
			req.Header.Set(HeaderIngestTimestamp, strconv.FormatInt(ts, 10))
		}
		if sig != "" {
			req.Header.Set(HeaderIngestSignature, sig)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	ts := now.Unix()
	good := ComputeIngestSignature(secret, strconv.FormatInt(ts, 10), []byte(body))
	if code := send(ts, good); code != http.StatusOK || seen != body {
		t.Fatalf("expected 200 with body passed through, got %d %q", code, seen)
	}
	if code := send(ts, strings.ToUpper(good)); code != http.StatusOK {
		t.Fatalf("expected case-insensitive signature, got %d", code)
	}
	if code := send(0, ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without headers, got %d", code)
	}
	if code := send(ts, "deadbeef"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", code)
	}
	stale := now.Add(-10 * time.Minute).Unix()
	if code := send(stale, ComputeIngestSignature(secret, strconv.FormatInt(stale, 10), []byte(body))); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for stale timestamp, got %d", code)
	}
}

func mustToken(t *testing.T, secret []byte, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
