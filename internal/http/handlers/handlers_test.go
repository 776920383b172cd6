package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"genjobs/internal/domain"
	"genjobs/internal/middleware"
	"genjobs/internal/orchestrator"
)

type stubGenerator struct {
	gotReq         domain.GenerationRequest
	gotCaller      string
	gotRID         string
	gotCorrelation string
	gotDeadline    bool
	// block makes Generate wait for ctx to end, the way a polling chain does.
	block  bool
	result *domain.GenerationResult
	err    error
}

func (s *stubGenerator) Generate(ctx context.Context, req domain.GenerationRequest, callerID string) (*domain.GenerationResult, error) {
	s.gotReq = req
	s.gotCaller = callerID
	s.gotRID = orchestrator.RequestIDFrom(ctx)
	s.gotCorrelation = orchestrator.CorrelationIDFrom(ctx)
	_, s.gotDeadline = ctx.Deadline()
	if s.block {
		<-ctx.Done()
		return nil, domain.NewOrchestrationError(domain.KindCancelled, "request cancelled", ctx.Err())
	}
	return s.result, s.err
}

type stubCatalogue struct{}

func (stubCatalogue) All() []domain.ProviderDescriptor {
	return []domain.ProviderDescriptor{
		{ID: "runpod-flux", Family: domain.FamilyRunpod, Endpoint: "secret-endpoint", Configured: true, MediaKinds: []domain.MediaKind{domain.MediaKindImage}},
	}
}

func (c stubCatalogue) ListConfigured(kind domain.MediaKind) []domain.ProviderDescriptor {
	if kind == domain.MediaKindImage {
		return c.All()
	}
	return nil
}

func (stubCatalogue) DefaultOrder(kind domain.MediaKind) []string {
	if kind == domain.MediaKindImage {
		return []string{"runpod-flux", "replicate-flux-schnell"}
	}
	return nil
}

type stubAttempts struct {
	records []domain.AttemptRecord
}

func (s stubAttempts) ListByRequest(_ context.Context, id string) ([]domain.AttemptRecord, error) {
	var out []domain.AttemptRecord
	for _, r := range s.records {
		if r.RequestID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s stubAttempts) ListByCaller(_ context.Context, caller string, limit int64) ([]domain.AttemptRecord, error) {
	var out []domain.AttemptRecord
	for _, r := range s.records {
		if r.CallerID == caller && int64(len(out)) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func newApp(gen Generator) *App {
	return &App{Generator: gen, Catalogue: stubCatalogue{}, Logger: zerolog.Nop()}
}

func postGenerate(t *testing.T, app *App, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), caller))
	rec := httptest.NewRecorder()
	middleware.RequestID(http.HandlerFunc(app.Generate)).ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestGenerateSuccess(t *testing.T) {
	gen := &stubGenerator{result: &domain.GenerationResult{Outputs: []string{"https://cdn/x.png"}, ProviderUsed: "runpod-flux", AttemptsMade: 1}}
	rec := postGenerate(t, newApp(gen), "user-1", `{"kind":"IMAGE","prompt":" a cat ","width":512,"preferred_providers":["replicate-sdxl"]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gen.gotCaller != "user-1" {
		t.Fatalf("caller = %q", gen.gotCaller)
	}
	if gen.gotReq.Kind != domain.MediaKindImage || gen.gotReq.Prompt != "a cat" || gen.gotReq.Dimensions.Width != 512 {
		t.Fatalf("request = %+v", gen.gotReq)
	}
	if len(gen.gotReq.PreferredProviderOrder) != 1 {
		t.Fatalf("preferred = %v", gen.gotReq.PreferredProviderOrder)
	}
	if gen.gotRID == "" || gen.gotRID != rec.Header().Get(GenerationIDHeader) {
		t.Fatalf("request id %q not propagated (header %q)", gen.gotRID, rec.Header().Get(GenerationIDHeader))
	}
	if gen.gotCorrelation == "" || gen.gotCorrelation != rec.Header().Get("X-Request-ID") {
		t.Fatalf("correlation id %q, X-Request-ID %q", gen.gotCorrelation, rec.Header().Get("X-Request-ID"))
	}
	if gen.gotDeadline {
		t.Fatal("no GenerateTimeout configured but context had a deadline")
	}
	var res domain.GenerationResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ProviderUsed != "runpod-flux" || len(res.Outputs) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestGenerateReusedClientRequestIDGetsFreshRequestIDs(t *testing.T) {
	app := newApp(nil)
	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		gen := &stubGenerator{result: &domain.GenerationResult{Outputs: []string{"x"}}}
		app.Generator = gen
		req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"kind":"IMAGE","prompt":"a cat"}`))
		req.Header.Set("X-Request-ID", "client-fixed")
		req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
		rec := httptest.NewRecorder()
		middleware.RequestID(http.HandlerFunc(app.Generate)).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if gen.gotCorrelation != "client-fixed" {
			t.Fatalf("correlation id = %q, want client-fixed", gen.gotCorrelation)
		}
		if gen.gotRID == "client-fixed" || seen[gen.gotRID] {
			t.Fatalf("request id %q reused across calls", gen.gotRID)
		}
		seen[gen.gotRID] = true
	}
}

func TestGenerateTimeoutCancelsChain(t *testing.T) {
	gen := &stubGenerator{block: true}
	app := newApp(gen)
	app.GenerateTimeout = 20 * time.Millisecond

	rec := postGenerate(t, app, "user-1", `{"kind":"VIDEO","prompt":"waves"}`)

	if !gen.gotDeadline {
		t.Fatal("generator context had no deadline")
	}
	if rec.Code != http.StatusRequestTimeout {
		t.Fatalf("status = %d, want 408", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != string(domain.KindCancelled) {
		t.Fatalf("code = %q", got.Code)
	}
	if rec.Header().Get(GenerationIDHeader) == "" {
		t.Fatal("missing generation id header on failure")
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"malformed":     `{"kind":`,
		"unknown field": `{"kind":"image","prompt":"x","colour":"red"}`,
		"unknown kind":  `{"kind":"hologram","prompt":"x"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			gen := &stubGenerator{}
			rec := postGenerate(t, newApp(gen), "user-1", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeError(t, rec).Code; got != string(domain.KindInvalidRequest) {
				t.Fatalf("code = %q", got)
			}
			if gen.gotCaller != "" {
				t.Fatalf("generator must not be called")
			}
		})
	}
}

func TestGenerateRequiresCaller(t *testing.T) {
	rec := postGenerate(t, newApp(&stubGenerator{}), "", `{"kind":"image","prompt":"x"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGenerateErrorMapping(t *testing.T) {
	denied := domain.NewOrchestrationError(domain.KindAdmissionDenied, "rate limit exceeded", nil)
	denied.RetryAfterSeconds = 42
	exhausted := domain.NewOrchestrationError(domain.KindExhausted, "all providers failed", nil)
	exhausted.Attempts = []domain.AttemptFailure{
		{ProviderID: "runpod-flux", AttemptIndex: 0, Kind: domain.KindProviderUnavailable},
		{ProviderID: "replicate-flux-schnell", AttemptIndex: 1, Kind: domain.KindTimedOut},
	}

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"denied", denied, http.StatusTooManyRequests, "AdmissionDenied"},
		{"rejected", domain.NewOrchestrationError(domain.KindContentRejected, "rejected", nil), http.StatusUnprocessableEntity, "ContentRejected"},
		{"exhausted", exhausted, http.StatusBadGateway, "Exhausted"},
		{"invalid", domain.NewOrchestrationError(domain.KindInvalidRequest, "prompt is required", nil), http.StatusBadRequest, "InvalidRequest"},
		{"cancelled", domain.NewOrchestrationError(domain.KindCancelled, "cancelled", nil), http.StatusRequestTimeout, "Cancelled"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postGenerate(t, newApp(&stubGenerator{err: tc.err}), "user-1", `{"kind":"image","prompt":"x"}`)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			detail := decodeError(t, rec)
			if detail.Code != tc.code {
				t.Fatalf("code = %q, want %q", detail.Code, tc.code)
			}
			switch tc.name {
			case "denied":
				if rec.Header().Get("Retry-After") != "42" || detail.RetryAfterSeconds != 42 {
					t.Fatalf("retry-after header %q body %d", rec.Header().Get("Retry-After"), detail.RetryAfterSeconds)
				}
			case "exhausted":
				if len(detail.Attempts) != 2 || detail.Attempts[1].Kind != domain.KindTimedOut {
					t.Fatalf("attempts = %+v", detail.Attempts)
				}
			case "unclassified":
				if strings.Contains(detail.Message, "boom") {
					t.Fatalf("internal error leaked: %q", detail.Message)
				}
			}
		})
	}
}

func TestProvidersHidesEndpoints(t *testing.T) {
	rec := httptest.NewRecorder()
	newApp(nil).Providers(rec, httptest.NewRequest(http.MethodGet, "/v1/providers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	raw := rec.Body.String()
	if strings.Contains(raw, "secret-endpoint") {
		t.Fatalf("endpoint leaked: %s", raw)
	}
	var resp providersResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Kinds) != len(domain.MediaKinds) {
		t.Fatalf("kinds = %d", len(resp.Kinds))
	}
	image := resp.Kinds[0]
	if image.Kind != domain.MediaKindImage || len(image.DefaultOrder) != 2 || len(image.Configured) != 1 {
		t.Fatalf("image entry = %+v", image)
	}
}

func TestRequestAttemptsScopedToCaller(t *testing.T) {
	app := newApp(nil)
	app.Attempts = stubAttempts{records: []domain.AttemptRecord{
		{ID: "a1", RequestID: "r1", CallerID: "user-1", ProviderID: "runpod-flux", ErrorDetail: "upstream said no"},
		{ID: "a2", RequestID: "r2", CallerID: "user-2"},
	}}
	get := func(caller, id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/requests/"+id+"/attempts", nil)
		req = req.WithContext(middleware.ContextWithUserID(req.Context(), caller))
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rec := httptest.NewRecorder()
		app.RequestAttempts(rec, req)
		return rec
	}

	rec := get("user-1", "r1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "upstream said no") {
		t.Fatalf("error detail leaked: %s", rec.Body.String())
	}
	if rec := get("user-1", "r2"); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign request status = %d, want 404", rec.Code)
	}

	app.Attempts = nil
	if rec := get("user-1", "r1"); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled history status = %d, want 404", rec.Code)
	}
}

func TestOpenAPIDocumentListsRoutes(t *testing.T) {
	rec := httptest.NewRecorder()
	newApp(nil).OpenAPIJSON(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("openapi.json is not valid JSON: %v", err)
	}
	for _, path := range []string{"/v1/generate", "/v1/providers", "/v1/requests/{id}/attempts", "/v1/deployments/admit"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Fatalf("path %s missing", path)
		}
	}
}

func TestRecentAttempts(t *testing.T) {
	app := newApp(nil)
	app.Attempts = stubAttempts{records: []domain.AttemptRecord{
		{ID: "a1", RequestID: "r1", CallerID: "user-1"},
		{ID: "a2", RequestID: "r1", CallerID: "user-1"},
		{ID: "a3", RequestID: "r2", CallerID: "user-2"},
	}}
	get := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/attempts"+query, nil)
		req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
		rec := httptest.NewRecorder()
		app.RecentAttempts(rec, req)
		return rec
	}

	rec := get("?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Attempts []domain.AttemptRecord `json:"attempts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Attempts) != 1 || body.Attempts[0].CallerID != "user-1" {
		t.Fatalf("attempts = %+v", body.Attempts)
	}
	if rec := get("?limit=zero"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}
}
