package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/workmesh/workledger/internal/app/auth"
)

var testSecret = []byte("test-secret")

func authedHandler(t *testing.T, got *auth.Actor) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = auth.ActorFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	var actor auth.Actor
	m := NewAuthMiddleware(testSecret, nil, nil)
	handler := m.Handler(authedHandler(t, &actor))

	token, err := IssueToken(testSecret, auth.Actor{ID: "client-1", Role: auth.RoleClient}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if actor.ID != "client-1" || actor.Role != auth.RoleClient {
		t.Fatalf("got actor %+v", actor)
	}
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	var actor auth.Actor
	m := NewAuthMiddleware(testSecret, nil, nil)
	handler := m.Handler(authedHandler(t, &actor))

	expired, err := IssueToken(testSecret, auth.Actor{ID: "client-1"}, -time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	foreign, err := IssueToken([]byte("other-secret"), auth.Actor{ID: "client-1"}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.token"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + foreign},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: got status %d, want 401", tc.name, rec.Code)
		}
	}
}

func TestAuthMiddlewareSkipsConfiguredPaths(t *testing.T) {
	var actor auth.Actor
	m := NewAuthMiddleware(testSecret, nil, []string{"/health"})
	handler := m.Handler(authedHandler(t, &actor))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if actor.ID != "" {
		t.Fatalf("skip path should stay unauthenticated, got %+v", actor)
	}
}

func TestRateLimiterThrottlesPerKey(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("burst requests rejected: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third request got %d, want 429", statuses[2])
	}

	// A different key has its own budget.
	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh key got %d, want 200", rec.Code)
	}
}
