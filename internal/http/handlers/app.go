package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"genjobs/internal/domain"
)

// Generator runs one generation request.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest, callerID string) (*domain.GenerationResult, error)
}

// ProviderCatalogue exposes the provider registry.
type ProviderCatalogue interface {
	All() []domain.ProviderDescriptor
	ListConfigured(kind domain.MediaKind) []domain.ProviderDescriptor
	DefaultOrder(kind domain.MediaKind) []string
}

// AttemptLister reads attempt history.
type AttemptLister interface {
	ListByRequest(ctx context.Context, requestID string) ([]domain.AttemptRecord, error)
	ListByCaller(ctx context.Context, callerID string, limit int64) ([]domain.AttemptRecord, error)
}

type App struct {
	Generator Generator
	Catalogue ProviderCatalogue
	// Attempts is nil when attempt history is not configured.
	Attempts     AttemptLister
	Logger       zerolog.Logger
	MaxBodyBytes int64
	// GenerateTimeout bounds one /v1/generate call. It must stay below the
	// server WriteTimeout so a timed-out chain still cancels its remote job
	// and answers 408. Zero leaves the request context as is.
	GenerateTimeout time.Duration
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code              string                  `json:"code"`
	Message           string                  `json:"message"`
	RetryAfterSeconds int                     `json:"retry_after_seconds,omitempty"`
	Attempts          []domain.AttemptFailure `json:"attempts,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) fail(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
