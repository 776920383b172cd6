package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genjobs/internal/admission"
	"genjobs/internal/clock"
	"genjobs/internal/domain"
	"genjobs/internal/providers"
	"genjobs/internal/providers/registry"
)

type harness struct {
	orch     *Orchestrator
	client   *fakeClient
	clock    *clock.Fake
	recorder *memoryRecorder
	metrics  *Metrics
}

func newHarness(t *testing.T, configured []string, scripts map[string]*script, gate admission.Gate) *harness {
	t.Helper()
	endpoints := make(map[string]string, len(configured))
	for _, id := range configured {
		endpoints[id] = "ep-" + id
	}
	catalogue := registry.New(registry.Settings{
		Credentials:  map[domain.ProviderFamily]bool{domain.FamilyRunpod: true, domain.FamilyReplicate: true},
		Endpoints:    endpoints,
		PollInterval: 2 * time.Second,
	})
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	if gate == nil {
		gate = admission.NewMemoryGate(nil, clk)
	}
	client := newFakeClient(scripts)
	recorder := &memoryRecorder{}
	metrics := NewMetrics(prometheus.NewRegistry())
	orch, err := New(Options{
		Catalogue: catalogue,
		Clients:   providers.Set{domain.FamilyRunpod: client, domain.FamilyReplicate: client},
		Gate:      gate,
		Clock:     clk,
		Recorder:  recorder,
		Metrics:   metrics,
	})
	require.NoError(t, err)
	return &harness{orch: orch, client: client, clock: clk, recorder: recorder, metrics: metrics}
}

func orchestrationError(t *testing.T, err error) *domain.OrchestrationError {
	t.Helper()
	var oe *domain.OrchestrationError
	require.True(t, errors.As(err, &oe), "err = %v", err)
	return oe
}

func imageRequest() domain.GenerationRequest {
	return domain.GenerationRequest{Kind: domain.MediaKindImage, Prompt: "storefront of a batik shop"}
}

func TestGenerateSyncProviderSucceedsWithoutPolling(t *testing.T) {
	h := newHarness(t, []string{"replicate-flux-schnell", "runpod-flux"}, map[string]*script{
		"replicate-flux-schnell": {immediate: &providers.PollResult{Status: providers.StatusSucceeded, Output: []byte(`["https://cdn.test/a.webp"]`)}},
	}, nil)

	res, err := h.orch.Generate(context.Background(), imageRequest(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.test/a.webp"}, res.Outputs)
	assert.Equal(t, "replicate-flux-schnell", res.ProviderUsed)
	assert.Equal(t, 1, res.AttemptsMade)
	assert.Zero(t, h.client.polls["replicate-flux-schnell"])
	assert.Empty(t, h.clock.Sleeps())
	assert.Equal(t, 0, h.client.submitCount("runpod-flux"))
}

func TestGenerateFallsBackOnUnavailableProvider(t *testing.T) {
	h := newHarness(t, []string{"replicate-flux-schnell", "runpod-flux"}, map[string]*script{
		"replicate-flux-schnell": {submitErr: &domain.ProviderError{Kind: domain.KindProviderUnavailable, ProviderID: "replicate-flux-schnell", StatusCode: 503}},
		"runpod-flux":            {polls: []providers.PollResult{queued, running, succeeded(`{"image_url":"https://cdn.test/b.png"}`)}},
	}, nil)

	res, err := h.orch.Generate(context.Background(), imageRequest(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "runpod-flux", res.ProviderUsed)
	assert.Equal(t, 2, res.AttemptsMade)
	assert.Equal(t, []string{"https://cdn.test/b.png"}, res.Outputs)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, h.clock.Sleeps())
	assert.Equal(t, int64(4000), res.TotalLatencyMs)

	require.Len(t, h.recorder.records, 2)
	assert.Equal(t, 0, h.recorder.records[0].AttemptIndex)
	assert.Equal(t, domain.JobStatusFailed, h.recorder.records[0].Status)
	assert.Equal(t, domain.KindProviderUnavailable, h.recorder.records[0].FailureKind)
	assert.Equal(t, 1, h.recorder.records[1].AttemptIndex)
	assert.Equal(t, domain.JobStatusSucceeded, h.recorder.records[1].Status)
	assert.Equal(t, h.recorder.records[0].RequestID, h.recorder.records[1].RequestID)
	assert.NotEqual(t, h.recorder.records[0].ID, h.recorder.records[1].ID)
	assert.Equal(t, res.RequestID, h.recorder.records[0].RequestID)
	assert.Empty(t, h.recorder.records[0].CorrelationID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.generations.WithLabelValues("image", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.attempts.WithLabelValues("runpod-flux", "image", "succeeded")))
}

func TestGenerateKeepsCorrelationIDApartFromRequestID(t *testing.T) {
	h := newHarness(t, []string{"replicate-flux-schnell"}, map[string]*script{
		"replicate-flux-schnell": {immediate: &providers.PollResult{Status: providers.StatusSucceeded, Output: []byte(`["https://cdn.test/a.webp"]`)}},
	}, nil)

	ctx := WithCorrelationID(WithRequestID(context.Background(), "gen-1"), "client-abc")
	res, err := h.orch.Generate(ctx, imageRequest(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "gen-1", res.RequestID)

	require.Len(t, h.recorder.records, 1)
	assert.Equal(t, "gen-1", h.recorder.records[0].RequestID)
	assert.Equal(t, "client-abc", h.recorder.records[0].CorrelationID)
}

func TestGenerateContentRejectedDoesNotFallBack(t *testing.T) {
	h := newHarness(t, []string{"runpod-flux", "runpod-sdxl"}, map[string]*script{
		"runpod-flux": {polls: []providers.PollResult{{Status: providers.StatusFailed, Error: "NSFW content detected"}}},
		"runpod-sdxl": {immediate: &providers.PollResult{Status: providers.StatusSucceeded, Output: []byte(`"https://cdn.test/c.png"`)}},
	}, nil)

	_, err := h.orch.Generate(context.Background(), imageRequest(), "user-1")
	oe := orchestrationError(t, err)
	assert.Equal(t, domain.KindContentRejected, oe.Kind)
	require.Len(t, oe.Attempts, 1)
	assert.Equal(t, "runpod-flux", oe.Attempts[0].ProviderID)
	assert.Equal(t, 0, h.client.submitCount("runpod-sdxl"))
	assert.NotContains(t, oe.Error(), "NSFW content detected")
}

func TestGenerateAdmissionDeniedMakesNoProviderCalls(t *testing.T) {
	h := newHarness(t, []string{"replicate-flux-schnell"}, map[string]*script{
		"replicate-flux-schnell": {immediate: &providers.PollResult{Status: providers.StatusSucceeded, Output: []byte(`"https://cdn.test/d.webp"`)}},
	}, nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := h.orch.Generate(ctx, imageRequest(), "user-1")
		require.NoError(t, err)
	}
	before := h.client.totalSubmits()

	_, err := h.orch.Generate(ctx, imageRequest(), "user-1")
	oe := orchestrationError(t, err)
	assert.Equal(t, domain.KindAdmissionDenied, oe.Kind)
	assert.Greater(t, oe.RetryAfterSeconds, 0)
	assert.Equal(t, before, h.client.totalSubmits())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.denied.WithLabelValues("aiGeneration")))

	// another caller keeps its own quota
	_, err = h.orch.Generate(ctx, imageRequest(), "user-2")
	assert.NoError(t, err)
}

func TestGenerateTimeoutCancelsAndFallsBack(t *testing.T) {
	h := newHarness(t, []string{"runpod-svd", "replicate-svd"}, map[string]*script{
		"runpod-svd":    {}, // running forever
		"replicate-svd": {polls: []providers.PollResult{succeeded(`"https://cdn.test/clip.mp4"`)}},
	}, nil)
	req := domain.GenerationRequest{Kind: domain.MediaKindVideo, Prompt: "slow pan", SourceImageReference: "https://cdn.test/still.png"}

	res, err := h.orch.Generate(context.Background(), req, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "replicate-svd", res.ProviderUsed)
	assert.Equal(t, 2, res.AttemptsMade)
	assert.Equal(t, []string{"remote-runpod-svd"}, h.client.cancelled)

	require.Len(t, h.recorder.records, 2)
	first := h.recorder.records[0]
	assert.Equal(t, domain.JobStatusTimedOut, first.Status)
	assert.Equal(t, domain.KindTimedOut, first.FailureKind)
	assert.Equal(t, 10*time.Minute, first.FinishedAt.Sub(first.SubmittedAt))
}

func TestGenerateExhaustedListsEveryAttempt(t *testing.T) {
	unavailable := func(id string) *script {
		return &script{submitErr: &domain.ProviderError{Kind: domain.KindProviderUnavailable, ProviderID: id}}
	}
	h := newHarness(t, []string{"runpod-musicgen", "replicate-musicgen"}, map[string]*script{
		"runpod-musicgen":    unavailable("runpod-musicgen"),
		"replicate-musicgen": unavailable("replicate-musicgen"),
	}, nil)

	_, err := h.orch.Generate(context.Background(), domain.GenerationRequest{Kind: domain.MediaKindAudio, Prompt: "gamelan loop"}, "user-1")
	oe := orchestrationError(t, err)
	assert.Equal(t, domain.KindExhausted, oe.Kind)
	require.Len(t, oe.Attempts, 2)
	assert.Equal(t, domain.AttemptFailure{ProviderID: "runpod-musicgen", AttemptIndex: 0, Kind: domain.KindProviderUnavailable}, oe.Attempts[0])
	assert.Equal(t, domain.AttemptFailure{ProviderID: "replicate-musicgen", AttemptIndex: 1, Kind: domain.KindProviderUnavailable}, oe.Attempts[1])
	assert.True(t, errors.Is(err, &domain.OrchestrationError{Kind: domain.KindExhausted}))
}

func TestGenerateNoConfiguredProvider(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	_, err := h.orch.Generate(context.Background(), domain.GenerationRequest{Kind: domain.MediaKindEmbedding, Prompt: "x"}, "user-1")
	oe := orchestrationError(t, err)
	assert.Equal(t, domain.KindExhausted, oe.Kind)
	assert.Empty(t, oe.Attempts)
	assert.Zero(t, h.client.totalSubmits())
}

func TestGenerateVideoWithOnlyImageProvidersReportsMismatches(t *testing.T) {
	h := newHarness(t, []string{"replicate-flux-schnell", "runpod-flux", "runpod-sdxl"}, nil, nil)

	req := domain.GenerationRequest{Kind: domain.MediaKindVideo, Prompt: "pan across the shop", SourceImageReference: "https://cdn.example/shop.png"}
	_, err := h.orch.Generate(context.Background(), req, "user-1")
	oe := orchestrationError(t, err)
	assert.Equal(t, domain.KindExhausted, oe.Kind)
	require.Len(t, oe.Attempts, 3)
	ids := make([]string, 0, len(oe.Attempts))
	for i, a := range oe.Attempts {
		assert.Equal(t, domain.KindCapabilityMismatch, a.Kind)
		assert.Equal(t, i, a.AttemptIndex)
		ids = append(ids, a.ProviderID)
	}
	assert.ElementsMatch(t, []string{"replicate-flux-schnell", "runpod-flux", "runpod-sdxl"}, ids)
	assert.Zero(t, h.client.totalSubmits())
	assert.Empty(t, h.recorder.records)
}

func TestGenerateCallerCancellationDuringPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, []string{"runpod-flux", "runpod-sdxl"}, map[string]*script{
		"runpod-flux": {onPoll: func(n int) {
			if n == 2 {
				cancel()
			}
		}},
	}, nil)

	_, err := h.orch.Generate(ctx, imageRequest(), "user-1")
	oe := orchestrationError(t, err)
	assert.Equal(t, domain.KindCancelled, oe.Kind)
	assert.Equal(t, []string{"remote-runpod-flux"}, h.client.cancelled)
	assert.Equal(t, 0, h.client.submitCount("runpod-sdxl"))
	require.Len(t, h.recorder.records, 1)
	assert.Equal(t, domain.JobStatusCancelled, h.recorder.records[0].Status)
}

func TestGenerateInvalidRequest(t *testing.T) {
	h := newHarness(t, []string{"runpod-flux"}, nil, nil)

	_, err := h.orch.Generate(context.Background(), domain.GenerationRequest{Kind: domain.MediaKindImage}, "user-1")
	oe := orchestrationError(t, err)
	assert.Equal(t, domain.KindInvalidRequest, oe.Kind)
	assert.Zero(t, h.client.totalSubmits())
}

func TestGeneratePreferredOrderIsHonoured(t *testing.T) {
	h := newHarness(t, []string{"replicate-flux-schnell", "runpod-sdxl"}, map[string]*script{
		"runpod-sdxl": {immediate: &providers.PollResult{Status: providers.StatusSucceeded, Output: []byte(`{"images":[{"url":"https://cdn.test/e.png"}]}`)}},
	}, nil)
	req := imageRequest()
	req.PreferredProviderOrder = []string{"no-such-provider", "runpod-flux", "runpod-sdxl", "replicate-flux-schnell"}

	res, err := h.orch.Generate(context.Background(), req, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "runpod-sdxl", res.ProviderUsed)
	assert.Equal(t, 1, res.AttemptsMade)
	assert.Equal(t, 0, h.client.submitCount("replicate-flux-schnell"))
}

func TestGenerateCapabilityMismatchAdvancesWithoutNetworkCall(t *testing.T) {
	h := newHarness(t, []string{"replicate-flux-schnell", "runpod-sdxl"}, map[string]*script{
		"runpod-sdxl": {immediate: &providers.PollResult{Status: providers.StatusSucceeded, Output: []byte(`"https://cdn.test/f.png"`)}},
	}, nil)
	req := domain.GenerationRequest{Kind: domain.MediaKindImage, SourceImageReference: "https://cdn.test/original.png"}

	res, err := h.orch.Generate(context.Background(), req, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "runpod-sdxl", res.ProviderUsed)
	assert.Equal(t, 2, res.AttemptsMade)
	assert.Equal(t, 0, h.client.submitCount("replicate-flux-schnell"))
	assert.Equal(t, domain.KindCapabilityMismatch, h.recorder.records[0].FailureKind)
}

func TestGenerateEmptyOutputAdvances(t *testing.T) {
	h := newHarness(t, []string{"runpod-llama", "replicate-llama"}, map[string]*script{
		"runpod-llama":    {immediate: &providers.PollResult{Status: providers.StatusSucceeded, Output: []byte(`[]`)}},
		"replicate-llama": {polls: []providers.PollResult{succeeded(`["Batik ", "for ", "everyone"]`)}},
	}, nil)

	res, err := h.orch.Generate(context.Background(), domain.GenerationRequest{Kind: domain.MediaKindLLMText, Prompt: "tagline"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "replicate-llama", res.ProviderUsed)
	assert.Equal(t, []string{"Batik for everyone"}, res.Outputs)
}

func TestGenerateUnknownStatusKeepsPolling(t *testing.T) {
	h := newHarness(t, []string{"runpod-flux"}, map[string]*script{
		"runpod-flux": {polls: []providers.PollResult{{Status: providers.StatusUnknown}, succeeded(`"https://cdn.test/g.png"`)}},
	}, nil)

	res, err := h.orch.Generate(context.Background(), imageRequest(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "runpod-flux", res.ProviderUsed)
	assert.Equal(t, 2, h.client.polls["runpod-flux"])
}

type failingGate struct{}

func (failingGate) Admit(context.Context, string, admission.Class) (admission.Decision, error) {
	return admission.Decision{}, errors.New("gate offline")
}

func TestGenerateGateErrorAdmits(t *testing.T) {
	h := newHarness(t, []string{"runpod-embed"}, map[string]*script{
		"runpod-embed": {immediate: &providers.PollResult{Status: providers.StatusSucceeded, Output: []byte(`{"data":[{"embedding":[0.1,0.2]}]}`)}},
	}, failingGate{})

	res, err := h.orch.Generate(context.Background(), domain.GenerationRequest{Kind: domain.MediaKindEmbedding, Prompt: "x"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"[0.1,0.2]"}, res.Outputs)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Catalogue: registry.New(registry.Settings{})})
	assert.Error(t, err)
}
