package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"genjobs/internal/domain"
)

const maxBodyBytes = 8 << 20

// Call describes one HTTP exchange with a provider API.
type Call struct {
	Method  string
	URL     string
	APIKey  string
	Body    any
	Header  http.Header
	Timeout time.Duration
}

// Do performs call under its own timeout and returns the response body of a
// 2xx reply. Every failure is a classified *domain.ProviderError.
func Do(ctx context.Context, hc *http.Client, d domain.ProviderDescriptor, call Call) ([]byte, error) {
	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}
	var body io.Reader
	if call.Body != nil {
		raw, err := json.Marshal(call.Body)
		if err != nil {
			return nil, &domain.ProviderError{Kind: domain.KindCapabilityMismatch, ProviderID: d.ID, Detail: "encode request", Err: err}
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return nil, domain.NewProviderError(domain.KindProviderUnavailable, d.ID, fmt.Errorf("build request: %w", err))
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if call.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+call.APIKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		kind := domain.KindProviderUnavailable
		if errors.Is(err, context.Canceled) {
			kind = domain.KindCancelled
		}
		return nil, domain.NewProviderError(kind, d.ID, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewProviderError(domain.KindProviderUnavailable, d.ID, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.ProviderError{
			Kind:       ClassifyStatus(resp.StatusCode, string(raw)),
			ProviderID: d.ID,
			StatusCode: resp.StatusCode,
			Detail:     Truncate(string(raw), 512),
		}
	}
	return raw, nil
}

// Decode unmarshals a provider body, classifying malformed JSON as unavailability.
func Decode(d domain.ProviderDescriptor, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &domain.ProviderError{
			Kind:       domain.KindProviderUnavailable,
			ProviderID: d.ID,
			Detail:     "malformed response: " + Truncate(string(raw), 256),
			Err:        err,
		}
	}
	return nil
}

// MessageOf renders a provider error field that may be a string or an object.
func MessageOf(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
