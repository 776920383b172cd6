package handlers

import (
	"net/http"

	"genjobs/internal/domain"
)

type kindProviders struct {
	Kind         domain.MediaKind `json:"kind"`
	DefaultOrder []string         `json:"default_order"`
	Configured   []string         `json:"configured"`
}

type providersResponse struct {
	Kinds     []kindProviders             `json:"kinds"`
	Providers []domain.ProviderDescriptor `json:"providers"`
}

// Providers handles GET /v1/providers. Endpoint ids and keys are never exposed.
func (a *App) Providers(w http.ResponseWriter, r *http.Request) {
	resp := providersResponse{Providers: a.Catalogue.All()}
	for _, kind := range domain.MediaKinds {
		entry := kindProviders{Kind: kind, DefaultOrder: a.Catalogue.DefaultOrder(kind), Configured: []string{}}
		for _, d := range a.Catalogue.ListConfigured(kind) {
			entry.Configured = append(entry.Configured, d.ID)
		}
		resp.Kinds = append(resp.Kinds, entry)
	}
	a.json(w, http.StatusOK, resp)
}
