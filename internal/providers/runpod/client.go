// Package runpod drives Runpod serverless endpoints.
package runpod

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

const defaultBaseURL = "https://api.runpod.ai/v2"

// Options configures the Runpod client.
type Options struct {
	BaseURL     string
	Secrets     providers.SecretSource
	HTTPClient  *http.Client
	Logger      *infra.Logger
	CallTimeout time.Duration
	SyncTimeout time.Duration
}

// Client talks to /run, /runsync, /status and /cancel of an endpoint.
type Client struct {
	baseURL     string
	secrets     providers.SecretSource
	httpClient  *http.Client
	logger      *infra.Logger
	callTimeout time.Duration
	syncTimeout time.Duration
}

type jobResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

type submitRequest struct {
	Input normalize.Payload `json:"input"`
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

// Submit queues a job, or for synchronous descriptors waits on /runsync.
func (c *Client) Submit(ctx context.Context, d domain.ProviderDescriptor, payload normalize.Payload) (providers.SubmitResult, error) {
	if payload == nil || payload.Family() != domain.FamilyRunpod {
		return providers.SubmitResult{}, &domain.ProviderError{Kind: domain.KindCapabilityMismatch, ProviderID: d.ID, Detail: "payload is not a runpod input"}
	}
	key, err := c.apiKey(ctx, d)
	if err != nil {
		return providers.SubmitResult{}, err
	}
	op, timeout := "run", c.callTimeout
	if d.Transport == domain.TransportSyncWait {
		op, timeout = "runsync", c.syncTimeout
	}
	raw, err := providers.Do(ctx, c.httpClient, d, providers.Call{
		Method:  http.MethodPost,
		URL:     c.endpointURL(d, op),
		APIKey:  key,
		Body:    submitRequest{Input: payload},
		Timeout: timeout,
	})
	if err != nil {
		c.logFailure(d, op, err)
		return providers.SubmitResult{}, err
	}
	var decoded jobResponse
	if err := providers.Decode(d, raw, &decoded); err != nil {
		return providers.SubmitResult{}, err
	}
	if decoded.ID == "" {
		return providers.SubmitResult{}, &domain.ProviderError{Kind: domain.KindProviderUnavailable, ProviderID: d.ID, Detail: "submit response without job id"}
	}
	c.logger.Debug().Str("provider", d.ID).Str("job_id", decoded.ID).Str("status", decoded.Status).Msg("runpod: job submitted")

	result := providers.SubmitResult{JobID: decoded.ID}
	if poll := toPollResult(decoded); poll.Status.IsTerminal() {
		result.Immediate = &poll
	}
	return result, nil
}

// Poll reads the current job state.
func (c *Client) Poll(ctx context.Context, d domain.ProviderDescriptor, jobID string) (providers.PollResult, error) {
	key, err := c.apiKey(ctx, d)
	if err != nil {
		return providers.PollResult{}, err
	}
	raw, err := providers.Do(ctx, c.httpClient, d, providers.Call{
		Method:  http.MethodGet,
		URL:     c.endpointURL(d, "status", jobID),
		APIKey:  key,
		Timeout: c.callTimeout,
	})
	if err != nil {
		c.logFailure(d, "status", err)
		return providers.PollResult{}, err
	}
	var decoded jobResponse
	if err := providers.Decode(d, raw, &decoded); err != nil {
		return providers.PollResult{}, err
	}
	return toPollResult(decoded), nil
}

// Cancel asks Runpod to stop the job.
func (c *Client) Cancel(ctx context.Context, d domain.ProviderDescriptor, jobID string) (bool, error) {
	key, err := c.apiKey(ctx, d)
	if err != nil {
		return false, err
	}
	raw, err := providers.Do(ctx, c.httpClient, d, providers.Call{
		Method:  http.MethodPost,
		URL:     c.endpointURL(d, "cancel", jobID),
		APIKey:  key,
		Timeout: c.callTimeout,
	})
	if err != nil {
		return false, err
	}
	var decoded jobResponse
	if err := providers.Decode(d, raw, &decoded); err != nil {
		return false, err
	}
	return mapStatus(decoded.Status) == providers.StatusCancelled, nil
}

func (c *Client) apiKey(ctx context.Context, d domain.ProviderDescriptor) (string, error) {
	if c.secrets == nil {
		return "", domain.NewProviderError(domain.KindProviderUnavailable, d.ID, domain.ErrNotConfigured)
	}
	key, err := c.secrets.APIKey(ctx, domain.FamilyRunpod)
	if err != nil {
		return "", domain.NewProviderError(domain.KindProviderUnavailable, d.ID, fmt.Errorf("resolve api key: %w", err))
	}
	return key, nil
}

func (c *Client) endpointURL(d domain.ProviderDescriptor, parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, url.PathEscape(d.Endpoint))
	for _, p := range parts {
		segments = append(segments, url.PathEscape(p))
	}
	return c.baseURL + "/" + strings.Join(segments, "/")
}

func (c *Client) logFailure(d domain.ProviderDescriptor, op string, err error) {
	c.logger.Warn().Err(err).Str("provider", d.ID).Str("op", op).Msg("runpod: call failed")
}

func toPollResult(r jobResponse) providers.PollResult {
	return providers.PollResult{
		Status: mapStatus(r.Status),
		Output: r.Output,
		Error:  providers.MessageOf(r.Error),
	}
}

func mapStatus(s string) providers.RemoteStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IN_QUEUE":
		return providers.StatusQueued
	case "IN_PROGRESS":
		return providers.StatusRunning
	case "COMPLETED":
		return providers.StatusSucceeded
	case "FAILED":
		return providers.StatusFailed
	case "CANCELLED":
		return providers.StatusCancelled
	case "TIMED_OUT":
		return providers.StatusTimedOut
	default:
		return providers.StatusUnknown
	}
}

var _ providers.Client = (*Client)(nil)
