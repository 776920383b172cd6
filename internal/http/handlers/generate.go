package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"genjobs/internal/domain"
	"genjobs/internal/middleware"
	"genjobs/internal/orchestrator"
)

const defaultMaxBodyBytes = 1 << 20

// GenerationIDHeader carries the id to pass to /v1/requests/{id}/attempts.
const GenerationIDHeader = "X-Generation-ID"

type generateRequest struct {
	Kind               string                   `json:"kind"`
	Prompt             string                   `json:"prompt"`
	SourceImage        string                   `json:"source_image"`
	Width              int                      `json:"width"`
	Height             int                      `json:"height"`
	Style              string                   `json:"style"`
	Quality            domain.QualityParameters `json:"quality"`
	PreferredProviders []string                 `json:"preferred_providers"`
}

func (g generateRequest) toDomain() (domain.GenerationRequest, error) {
	kind, err := domain.ParseMediaKind(g.Kind)
	if err != nil {
		return domain.GenerationRequest{}, err
	}
	return domain.GenerationRequest{
		Kind:                   kind,
		Prompt:                 strings.TrimSpace(g.Prompt),
		SourceImageReference:   strings.TrimSpace(g.SourceImage),
		Dimensions:             domain.Dimensions{Width: g.Width, Height: g.Height},
		StyleHint:              g.Style,
		Quality:                g.Quality,
		PreferredProviderOrder: g.PreferredProviders,
	}, nil
}

// Generate handles POST /v1/generate.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserIDFromContext(r.Context())
	if callerID == "" {
		a.fail(w, http.StatusUnauthorized, "unauthorized", "missing caller identity")
		return
	}
	limit := a.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	var body generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		a.fail(w, http.StatusBadRequest, string(domain.KindInvalidRequest), "invalid JSON body")
		return
	}
	req, err := body.toDomain()
	if err != nil {
		a.fail(w, http.StatusBadRequest, string(domain.KindInvalidRequest), err.Error())
		return
	}

	ctx := r.Context()
	if a.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.GenerateTimeout)
		defer cancel()
	}
	requestID := uuid.NewString()
	ctx = orchestrator.WithRequestID(ctx, requestID)
	if rid := middleware.RequestIDFromContext(ctx); rid != "" {
		ctx = orchestrator.WithCorrelationID(ctx, rid)
	}
	w.Header().Set(GenerationIDHeader, requestID)

	result, err := a.Generator.Generate(ctx, req, callerID)
	if err != nil {
		a.writeGenerateError(w, err)
		return
	}
	a.json(w, http.StatusOK, result)
}

func (a *App) writeGenerateError(w http.ResponseWriter, err error) {
	var oe *domain.OrchestrationError
	if !errors.As(err, &oe) {
		a.Logger.Error().Err(err).Msg("generate: unexpected error")
		a.fail(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	status := StatusFor(oe.Kind)
	if oe.Kind == domain.KindAdmissionDenied && oe.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(oe.RetryAfterSeconds))
	}
	a.json(w, status, errorBody{Error: errorDetail{
		Code:              string(oe.Kind),
		Message:           oe.Message,
		RetryAfterSeconds: oe.RetryAfterSeconds,
		Attempts:          oe.Attempts,
	}})
}

// StatusFor maps an orchestration error kind to its HTTP status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindAdmissionDenied:
		return http.StatusTooManyRequests
	case domain.KindContentRejected:
		return http.StatusUnprocessableEntity
	case domain.KindExhausted:
		return http.StatusBadGateway
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
