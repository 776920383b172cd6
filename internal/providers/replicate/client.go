// Package replicate drives Replicate predictions.
package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genjobs/internal/domain"
	"genjobs/internal/infra"
	"genjobs/internal/providers"
	"genjobs/internal/providers/normalize"
)

const defaultBaseURL = "https://api.replicate.com/v1"

// Options configures the Replicate client.
type Options struct {
	BaseURL     string
	Secrets     providers.SecretSource
	HTTPClient  *http.Client
	Logger      *infra.Logger
	CallTimeout time.Duration
	SyncTimeout time.Duration
}

// Client creates, reads and cancels predictions.
type Client struct {
	baseURL     string
	secrets     providers.SecretSource
	httpClient  *http.Client
	logger      *infra.Logger
	callTimeout time.Duration
	syncTimeout time.Duration
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

type createRequest struct {
	Version string            `json:"version,omitempty"`
	Input   normalize.Payload `json:"input"`
}

// NewClient constructs a client with defaults for unset options.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	syncTimeout := opts.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = 90 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:     baseURL,
		secrets:     opts.Secrets,
		httpClient:  httpClient,
		logger:      logger,
		callTimeout: callTimeout,
		syncTimeout: syncTimeout,
	}
}

// Submit creates a prediction. Synchronous descriptors send "Prefer: wait"
// so Replicate holds the connection until the prediction settles.
//
// The descriptor endpoint is either a version hash or an "owner/model" name;
// the latter uses the official-model route.
func (c *Client) Submit(ctx context.Context, d domain.ProviderDescriptor, payload normalize.Payload) (providers.SubmitResult, error) {
	if payload == nil || payload.Family() != domain.FamilyReplicate {
		return providers.SubmitResult{}, &domain.ProviderError{Kind: domain.KindCapabilityMismatch, ProviderID: d.ID, Detail: "payload is not a replicate input"}
	}
	key, err := c.apiKey(ctx, d)
	if err != nil {
		return providers.SubmitResult{}, err
	}

	endpoint := c.baseURL + "/predictions"
	body := createRequest{Version: d.Endpoint, Input: payload}
	if owner, model, ok := officialModel(d.Endpoint); ok {
		endpoint = c.baseURL + "/models/" + url.PathEscape(owner) + "/" + url.PathEscape(model) + "/predictions"
		body.Version = ""
	}
	call := providers.Call{
		Method:  http.MethodPost,
		URL:     endpoint,
		APIKey:  key,
		Body:    body,
		Timeout: c.callTimeout,
	}
	if d.Transport == domain.TransportSyncWait {
		call.Header = http.Header{"Prefer": []string{fmt.Sprintf("wait=%d", preferWaitSeconds(c.syncTimeout))}}
		call.Timeout = c.syncTimeout
	}
	raw, err := providers.Do(ctx, c.httpClient, d, call)
	if err != nil {
		c.logFailure(d, "create", err)
		return providers.SubmitResult{}, err
	}
	var decoded prediction
	if err := providers.Decode(d, raw, &decoded); err != nil {
		return providers.SubmitResult{}, err
	}
	if decoded.ID == "" {
		return providers.SubmitResult{}, &domain.ProviderError{Kind: domain.KindProviderUnavailable, ProviderID: d.ID, Detail: "prediction without id"}
	}
	c.logger.Debug().Str("provider", d.ID).Str("job_id", decoded.ID).Str("status", decoded.Status).Msg("replicate: prediction created")

	result := providers.SubmitResult{JobID: decoded.ID}
	if poll := toPollResult(decoded); poll.Status.IsTerminal() {
		result.Immediate = &poll
	}
	return result, nil
}

// Poll reads the prediction.
func (c *Client) Poll(ctx context.Context, d domain.ProviderDescriptor, jobID string) (providers.PollResult, error) {
	key, err := c.apiKey(ctx, d)
	if err != nil {
		return providers.PollResult{}, err
	}
	raw, err := providers.Do(ctx, c.httpClient, d, providers.Call{
		Method:  http.MethodGet,
		URL:     c.baseURL + "/predictions/" + url.PathEscape(jobID),
		APIKey:  key,
		Timeout: c.callTimeout,
	})
	if err != nil {
		c.logFailure(d, "get", err)
		return providers.PollResult{}, err
	}
	var decoded prediction
	if err := providers.Decode(d, raw, &decoded); err != nil {
		return providers.PollResult{}, err
	}
	return toPollResult(decoded), nil
}

// Cancel requests cancellation of the prediction.
func (c *Client) Cancel(ctx context.Context, d domain.ProviderDescriptor, jobID string) (bool, error) {
	key, err := c.apiKey(ctx, d)
	if err != nil {
		return false, err
	}
	raw, err := providers.Do(ctx, c.httpClient, d, providers.Call{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/predictions/" + url.PathEscape(jobID) + "/cancel",
		APIKey:  key,
		Timeout: c.callTimeout,
	})
	if err != nil {
		return false, err
	}
	var decoded prediction
	if err := providers.Decode(d, raw, &decoded); err != nil {
		return false, err
	}
	return mapStatus(decoded.Status) == providers.StatusCancelled, nil
}

func (c *Client) apiKey(ctx context.Context, d domain.ProviderDescriptor) (string, error) {
	if c.secrets == nil {
		return "", domain.NewProviderError(domain.KindProviderUnavailable, d.ID, domain.ErrNotConfigured)
	}
	key, err := c.secrets.APIKey(ctx, domain.FamilyReplicate)
	if err != nil {
		return "", domain.NewProviderError(domain.KindProviderUnavailable, d.ID, fmt.Errorf("resolve api key: %w", err))
	}
	return key, nil
}

func (c *Client) logFailure(d domain.ProviderDescriptor, op string, err error) {
	c.logger.Warn().Err(err).Str("provider", d.ID).Str("op", op).Msg("replicate: call failed")
}

func officialModel(endpoint string) (string, string, bool) {
	if strings.Contains(endpoint, ":") {
		return "", "", false
	}
	owner, model, ok := strings.Cut(endpoint, "/")
	if !ok || owner == "" || model == "" || strings.Contains(model, "/") {
		return "", "", false
	}
	return owner, model, true
}

// Replicate caps the blocking wait at 60 seconds.
func preferWaitSeconds(timeout time.Duration) int {
	secs := int(timeout.Seconds())
	if secs < 1 {
		return 1
	}
	if secs > 60 {
		return 60
	}
	return secs
}

func toPollResult(p prediction) providers.PollResult {
	return providers.PollResult{
		Status: mapStatus(p.Status),
		Output: p.Output,
		Error:  providers.MessageOf(p.Error),
	}
}

func mapStatus(s string) providers.RemoteStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "starting":
		return providers.StatusQueued
	case "processing":
		return providers.StatusRunning
	case "succeeded":
		return providers.StatusSucceeded
	case "failed":
		return providers.StatusFailed
	case "canceled", "cancelled", "aborted":
		return providers.StatusCancelled
	default:
		return providers.StatusUnknown
	}
}

var _ providers.Client = (*Client)(nil)
