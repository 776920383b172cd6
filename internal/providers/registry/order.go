package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"genjobs/internal/domain"
)

type orderFile struct {
	Order map[string][]string `yaml:"order"`
}

// LoadOrderFile reads a per-kind provider order override such as:
//
//	order:
//	  image: [runpod-flux, replicate-flux-schnell]
//	  video: [replicate-svd]
func LoadOrderFile(path string) (map[domain.MediaKind][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read order file: %w", err)
	}
	return ParseOrder(raw)
}

// ParseOrder decodes the YAML order document and rejects unknown kinds or ids.
func ParseOrder(raw []byte) (map[domain.MediaKind][]string, error) {
	var doc orderFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("registry: decode order file: %w", err)
	}
	known := make(map[string]domain.ProviderDescriptor, len(catalogue))
	r := New(Settings{})
	for _, d := range r.All() {
		known[d.ID] = d
	}
	out := make(map[domain.MediaKind][]string, len(doc.Order))
	for rawKind, ids := range doc.Order {
		kind, err := domain.ParseMediaKind(rawKind)
		if err != nil {
			return nil, fmt.Errorf("registry: order file: %w", err)
		}
		for _, id := range ids {
			d, ok := known[id]
			if !ok {
				return nil, fmt.Errorf("registry: order file: unknown provider %q", id)
			}
			if !d.Supports(kind) {
				return nil, fmt.Errorf("registry: order file: %s does not support %s", id, kind)
			}
		}
		out[kind] = ids
	}
	return out, nil
}
