package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/terreiro/giras/internal/auth"
)

type stubResolver struct {
	tokens map[string]auth.Caller
	err    error
}

func (s stubResolver) ResolveCaller(ctx context.Context, token string) (auth.Caller, error) {
	if s.err != nil {
		return auth.Caller{}, s.err
	}
	if c, ok := s.tokens[token]; ok {
		return c, nil
	}
	return auth.Caller{}, auth.ErrSessionInvalid
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestAuthResolvesBearerAndCookie(t *testing.T) {
	medium := int64(7)
	resolver := stubResolver{tokens: map[string]auth.Caller{
		"tok-staff":  {UsuarioID: 1, Privilegiado: true, MediumID: &medium},
		"tok-medium": {UsuarioID: 2},
	}}

	var seen *auth.Caller
	h := Auth(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCaller(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok-staff")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen == nil || seen.UsuarioID != 1 {
		t.Fatalf("bearer not resolved: code=%d caller=%v", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok-medium"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen.UsuarioID != 2 {
		t.Fatalf("cookie not resolved: code=%d caller=%v", rec.Code, seen)
	}
}

func TestAuthRejectsMissingAndUnknownToken(t *testing.T) {
	h := Auth(stubResolver{})(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer desconhecido")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", rec.Code)
	}
}

func TestAuthFalhaDeInfraNaoViraSessaoInvalida(t *testing.T) {
	h := Auth(stubResolver{err: errors.New("redis: connection refused")})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer qualquer")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for backend failure, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"INTERNAL"`) {
		t.Fatalf("expected INTERNAL code, got %s", rec.Body.String())
	}

	h = Auth(stubResolver{err: fmt.Errorf("token: %w", auth.ErrSessionInvalid)})(http.HandlerFunc(okHandler))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrapped session error must stay 401, got %d", rec.Code)
	}
}

func TestRequireStaff(t *testing.T) {
	h := RequireStaff(http.HandlerFunc(okHandler))

	cases := []struct {
		name   string
		caller *auth.Caller
		status int
	}{
		{"anonimo", nil, http.StatusUnauthorized},
		{"medium", &auth.Caller{UsuarioID: 2}, http.StatusForbidden},
		{"staff", &auth.Caller{UsuarioID: 1, Privilegiado: true}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/giras", nil)
			if tc.caller != nil {
				req = req.WithContext(WithCaller(req.Context(), *tc.caller))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestCORSWildcardRequiresSubdomain(t *testing.T) {
	h := CORS([]string{"http://localhost:5173", "*.giras.example"})(http.HandlerFunc(okHandler))

	cases := map[string]bool{
		"http://localhost:5173":     true,
		"https://app.giras.example": true,
		"https://giras.example":     false,
		"https://malicioso.example": false,
		"":                          false,
	}
	for origin, allowed := range cases {
		req := httptest.NewRequest(http.MethodGet, "/funcoes", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		got := rec.Header().Get("Access-Control-Allow-Origin") == origin && origin != ""
		if got != allowed {
			t.Fatalf("origin %q: expected allowed=%v", origin, allowed)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/funcoes/assumir", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight expected 204, got %d", rec.Code)
	}
}

func TestIPRateLimit(t *testing.T) {
	h := IPRateLimit(NewRateLimiter(0.0001, 2))(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Real-IP", "10.0.0.2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other ip should not be limited, got %d", rec.Code)
	}
}

func TestUserRateLimitPorUsuario(t *testing.T) {
	limiter := NewRateLimiter(0.0001, 1)
	h := UserRateLimit(limiter)(http.HandlerFunc(okHandler))

	request := func(caller *auth.Caller) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/funcoes/assumir", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		if caller != nil {
			req = req.WithContext(WithCaller(req.Context(), *caller))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	ana := &auth.Caller{UsuarioID: 2}
	if rec := request(ana); rec.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", rec.Code)
	}
	rec := request(ana)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("Retry-After") == "0" {
		t.Fatalf("missing Retry-After, got %q", rec.Header().Get("Retry-After"))
	}
	if rec := request(&auth.Caller{UsuarioID: 3}); rec.Code != http.StatusOK {
		t.Fatalf("same ip, other user must pass, got %d", rec.Code)
	}
	if rec := request(nil); rec.Code != http.StatusOK {
		t.Fatalf("request without caller is not limited here, got %d", rec.Code)
	}
}

func TestRateLimiterReabasteceEExpira(t *testing.T) {
	now := time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	if ok, _ := limiter.Allow("ip:10.0.0.1"); !ok {
		t.Fatal("first token must be available")
	}
	ok, wait := limiter.Allow("ip:10.0.0.1")
	if ok || wait <= 0 || wait > time.Second {
		t.Fatalf("expected refusal with wait up to 1s, got ok=%v wait=%v", ok, wait)
	}

	now = now.Add(time.Second)
	if ok, _ := limiter.Allow("ip:10.0.0.1"); !ok {
		t.Fatal("token must refill after one second")
	}

	now = now.Add(11 * time.Minute)
	limiter.Allow("ip:10.0.0.2")
	if n := limiter.size(); n != 1 {
		t.Fatalf("idle buckets must be swept, got %d", n)
	}
}

func TestRecoverWritesEnvelope(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/funcoes", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
