package domain

import "time"

// ProviderFamily groups descriptors that share a transport and credential.
type ProviderFamily string

const (
	FamilyRunpod    ProviderFamily = "runpod"
	FamilyReplicate ProviderFamily = "replicate"
)

// ModelVariant identifies the payload shape a descriptor expects.
type ModelVariant string

const (
	ModelFlux        ModelVariant = "flux"
	ModelFluxSchnell ModelVariant = "flux-schnell"
	ModelSDXL        ModelVariant = "sdxl"
	ModelSVD         ModelVariant = "svd"
	ModelMusicGen    ModelVariant = "musicgen"
	ModelLlama       ModelVariant = "llama"
	ModelEmbed       ModelVariant = "embed"
)

// TransportMode describes how a provider reports completion.
type TransportMode string

const (
	TransportSyncWait      TransportMode = "synchronous-wait"
	TransportSubmitAndPoll TransportMode = "submit-then-poll"
)

// ProviderDescriptor is the static capability record of one backend. It is
// built once at startup and never mutated at request time.
type ProviderDescriptor struct {
	ID           string                      `json:"id"`
	Family       ProviderFamily              `json:"family"`
	Model        ModelVariant                `json:"model"`
	MediaKinds   []MediaKind                 `json:"media_kinds"`
	Transport    TransportMode               `json:"transport"`
	Endpoint     string                      `json:"-"`
	Configured   bool                        `json:"configured"`
	PollInterval time.Duration               `json:"-"`
	Timeouts     map[MediaKind]time.Duration `json:"-"`
}

// Supports reports whether the descriptor can execute the given kind.
func (d ProviderDescriptor) Supports(kind MediaKind) bool {
	for _, k := range d.MediaKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Timeout returns the job ceiling configured for the kind, or fallback.
func (d ProviderDescriptor) Timeout(kind MediaKind, fallback time.Duration) time.Duration {
	if t, ok := d.Timeouts[kind]; ok && t > 0 {
		return t
	}
	return fallback
}
