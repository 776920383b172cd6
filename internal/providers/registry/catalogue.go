package registry

import (
	"strings"

	"genjobs/internal/domain"
)

type entry struct {
	id        string
	family    domain.ProviderFamily
	model     domain.ModelVariant
	kinds     []domain.MediaKind
	transport domain.TransportMode
}

// catalogue is the static list of backends the service knows how to drive.
var catalogue = []entry{
	{"runpod-flux", domain.FamilyRunpod, domain.ModelFlux, []domain.MediaKind{domain.MediaKindImage}, domain.TransportSubmitAndPoll},
	{"runpod-sdxl", domain.FamilyRunpod, domain.ModelSDXL, []domain.MediaKind{domain.MediaKindImage}, domain.TransportSyncWait},
	{"runpod-svd", domain.FamilyRunpod, domain.ModelSVD, []domain.MediaKind{domain.MediaKindVideo}, domain.TransportSubmitAndPoll},
	{"runpod-musicgen", domain.FamilyRunpod, domain.ModelMusicGen, []domain.MediaKind{domain.MediaKindAudio}, domain.TransportSubmitAndPoll},
	{"runpod-llama", domain.FamilyRunpod, domain.ModelLlama, []domain.MediaKind{domain.MediaKindLLMText}, domain.TransportSyncWait},
	{"runpod-embed", domain.FamilyRunpod, domain.ModelEmbed, []domain.MediaKind{domain.MediaKindEmbedding}, domain.TransportSyncWait},
	{"replicate-flux-schnell", domain.FamilyReplicate, domain.ModelFluxSchnell, []domain.MediaKind{domain.MediaKindImage}, domain.TransportSyncWait},
	{"replicate-sdxl", domain.FamilyReplicate, domain.ModelSDXL, []domain.MediaKind{domain.MediaKindImage}, domain.TransportSubmitAndPoll},
	{"replicate-svd", domain.FamilyReplicate, domain.ModelSVD, []domain.MediaKind{domain.MediaKindVideo}, domain.TransportSubmitAndPoll},
	{"replicate-musicgen", domain.FamilyReplicate, domain.ModelMusicGen, []domain.MediaKind{domain.MediaKindAudio}, domain.TransportSubmitAndPoll},
	{"replicate-llama", domain.FamilyReplicate, domain.ModelLlama, []domain.MediaKind{domain.MediaKindLLMText}, domain.TransportSubmitAndPoll},
}

// defaultOrder lists providers per kind, fastest and cheapest first.
var defaultOrder = map[domain.MediaKind][]string{
	domain.MediaKindImage:     {"replicate-flux-schnell", "runpod-flux", "runpod-sdxl", "replicate-sdxl"},
	domain.MediaKindVideo:     {"runpod-svd", "replicate-svd"},
	domain.MediaKindAudio:     {"runpod-musicgen", "replicate-musicgen"},
	domain.MediaKindLLMText:   {"runpod-llama", "replicate-llama"},
	domain.MediaKindEmbedding: {"runpod-embed"},
}

// IDs returns every provider id in catalogue order.
func IDs() []string {
	out := make([]string, 0, len(catalogue))
	for _, e := range catalogue {
		out = append(out, e.id)
	}
	return out
}

// EndpointEnvKey names the environment variable that carries the endpoint
// id (Runpod) or model version (Replicate) of a provider, e.g.
// runpod-flux -> RUNPOD_ENDPOINT_FLUX, replicate-flux-schnell -> REPLICATE_VERSION_FLUX_SCHNELL.
func EndpointEnvKey(id string) string {
	for _, e := range catalogue {
		if e.id != id {
			continue
		}
		model := strings.ToUpper(strings.ReplaceAll(string(e.model), "-", "_"))
		if e.family == domain.FamilyReplicate {
			return "REPLICATE_VERSION_" + model
		}
		return "RUNPOD_ENDPOINT_" + model
	}
	return ""
}

// DefaultEndpoints lists identifiers that work without operator input:
// Replicate official models are addressed by name.
func DefaultEndpoints() map[string]string {
	return map[string]string{
		"replicate-flux-schnell": "black-forest-labs/flux-schnell",
		"replicate-llama":        "meta/meta-llama-3-8b-instruct",
	}
}
