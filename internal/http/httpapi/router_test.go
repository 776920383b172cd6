package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"genjobs/internal/admission"
	"genjobs/internal/clock"
	"genjobs/internal/domain"
	"genjobs/internal/http/handlers"
	"genjobs/internal/middleware"
)

type okGenerator struct{}

func (okGenerator) Generate(context.Context, domain.GenerationRequest, string) (*domain.GenerationResult, error) {
	return &domain.GenerationResult{Outputs: []string{"ok"}, ProviderUsed: "runpod-llama", AttemptsMade: 1}, nil
}

func newTestRouter(gate admission.Gate) http.Handler {
	app := &handlers.App{Generator: okGenerator{}, Logger: zerolog.Nop()}
	return NewRouter(app, RouterOptions{
		JWTSecret: "secret",
		Gate:      gate,
		Gatherer:  prometheus.NewRegistry(),
		Logger:    zerolog.Nop(),
	})
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	token, err := middleware.SignJWT("secret", middleware.TokenClaims{Sub: sub, Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	return "Bearer " + token
}

func TestPublicRoutes(t *testing.T) {
	h := newTestRouter(admission.NewMemoryGate(admission.DefaultPolicies(), clock.Real{}))
	for _, path := range []string{"/v1/healthz", "/v1/openapi.json", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestGenerateRequiresToken(t *testing.T) {
	h := newTestRouter(admission.NewMemoryGate(admission.DefaultPolicies(), clock.Real{}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"kind":"llm-text","prompt":"hi"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"kind":"llm-text","prompt":"hi"}`))
	req.Header.Set("Authorization", bearer(t, "user-1"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authorized status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestDeploymentAdmissionQuota(t *testing.T) {
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	h := newTestRouter(admission.NewMemoryGate(admission.DefaultPolicies(), fake))
	token := bearer(t, "user-9")

	for i := 1; i <= 11; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/deployments/admit", nil)
		req.Header.Set("Authorization", token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		want := http.StatusOK
		if i == 11 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("call %d: status = %d, want %d", i, rec.Code, want)
		}
		if i == 11 && rec.Header().Get("Retry-After") != "3600" {
			t.Fatalf("Retry-After = %q, want 3600", rec.Header().Get("Retry-After"))
		}
	}
}
