package domain

import (
	"fmt"
	"strings"
)

// MediaKind enumerates the generation job categories a provider can execute.
type MediaKind string

const (
	MediaKindImage     MediaKind = "image"
	MediaKindVideo     MediaKind = "video"
	MediaKindAudio     MediaKind = "audio"
	MediaKindLLMText   MediaKind = "llm-text"
	MediaKindEmbedding MediaKind = "embedding"
)

// MediaKinds lists every supported kind in a stable order.
var MediaKinds = []MediaKind{
	MediaKindImage,
	MediaKindVideo,
	MediaKindAudio,
	MediaKindLLMText,
	MediaKindEmbedding,
}

// ParseMediaKind sanitizes free-form input into a supported kind.
func ParseMediaKind(v string) (MediaKind, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "image":
		return MediaKindImage, nil
	case "video":
		return MediaKindVideo, nil
	case "audio":
		return MediaKindAudio, nil
	case "llm-text", "llm", "text":
		return MediaKindLLMText, nil
	case "embedding", "embeddings":
		return MediaKindEmbedding, nil
	default:
		return "", fmt.Errorf("%w: unsupported kind %q", ErrInvalidRequest, v)
	}
}

// Dimensions carries the requested output size. Zero values mean "provider default".
type Dimensions struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// QualityParameters holds kind-dependent tuning knobs. Nil pointers are omitted
// and replaced by the provider-appropriate default during normalization.
type QualityParameters struct {
	Steps           *int     `json:"steps,omitempty"`
	GuidanceScale   *float64 `json:"guidance_scale,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
	MotionBucket    *int     `json:"motion_bucket,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
	NegativePrompt  string   `json:"negative_prompt,omitempty"`
}

// GenerationRequest is the caller's logical intent. It is passed by value and
// never mutated once handed to the orchestrator.
type GenerationRequest struct {
	Kind                   MediaKind         `json:"kind"`
	Prompt                 string            `json:"prompt"`
	SourceImageReference   string            `json:"source_image,omitempty"`
	Dimensions             Dimensions        `json:"dimensions"`
	StyleHint              string            `json:"style,omitempty"`
	Quality                QualityParameters `json:"quality"`
	PreferredProviderOrder []string          `json:"preferred_providers,omitempty"`
}

// Validate reports request-level problems that no provider could fix.
func (r GenerationRequest) Validate() error {
	switch r.Kind {
	case MediaKindImage, MediaKindVideo, MediaKindAudio, MediaKindLLMText, MediaKindEmbedding:
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidRequest, r.Kind)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		// pure image-to-image enhancement may omit the prompt
		if r.Kind != MediaKindImage || strings.TrimSpace(r.SourceImageReference) == "" {
			return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
		}
	}
	if r.Dimensions.Width < 0 || r.Dimensions.Height < 0 {
		return fmt.Errorf("%w: dimensions must be positive", ErrInvalidRequest)
	}
	return nil
}

// GenerationResult is the normalized caller-facing outcome of one request.
type GenerationResult struct {
	RequestID      string   `json:"request_id"`
	Outputs        []string `json:"outputs"`
	ProviderUsed   string   `json:"provider_used"`
	AttemptsMade   int      `json:"attempts_made"`
	TotalLatencyMs int64    `json:"total_latency_ms"`
}
