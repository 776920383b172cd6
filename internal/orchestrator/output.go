package orchestrator

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"genjobs/internal/domain"
)

var errEmptyOutput = errors.New("provider returned no usable output")

var mediaKeys = []string{
	"image_url", "image", "images",
	"video_url", "video",
	"audio_url", "audio", "audio_out",
	"url", "urls", "output", "result", "data",
}

var textKeys = []string{"text", "generated_text", "output", "response", "content", "choices", "message"}

var embeddingKeys = []string{"embedding", "embeddings", "data", "output"}

// NormalizeOutput turns a provider's raw success output into the caller
// shape: URLs or data URIs for media, one string for text and one
// JSON-encoded vector payload for embeddings.
func NormalizeOutput(kind domain.MediaKind, raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errEmptyOutput
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	switch kind {
	case domain.MediaKindLLMText:
		text := collectText(v)
		if strings.TrimSpace(text) == "" {
			return nil, errEmptyOutput
		}
		return []string{text}, nil
	case domain.MediaKindEmbedding:
		vec := findEmbedding(v)
		if vec == nil {
			return nil, errEmptyOutput
		}
		encoded, err := json.Marshal(vec)
		if err != nil {
			return nil, err
		}
		return []string{string(encoded)}, nil
	default:
		refs := collectMedia(kind, v)
		if len(refs) == 0 {
			return nil, errEmptyOutput
		}
		return refs, nil
	}
}

func collectMedia(kind domain.MediaKind, v any) []string {
	switch t := v.(type) {
	case string:
		if ref := mediaRef(kind, t); ref != "" {
			return []string{ref}
		}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, collectMedia(kind, item)...)
		}
		return out
	case map[string]any:
		for _, key := range mediaKeys {
			if child, ok := t[key]; ok {
				if refs := collectMedia(kind, child); len(refs) > 0 {
					return refs
				}
			}
		}
	}
	return nil
}

func mediaRef(kind domain.MediaKind, s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"), strings.HasPrefix(s, "data:"):
		return s
	case strings.Contains(s, "://"):
		return s
	}
	if len(s) < 16 {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	// bare base64 only counts when its leading bytes sniff as media of the kind
	mime := sniffMedia(kind, decoded)
	if mime == "" {
		return ""
	}
	return "data:" + mime + ";base64," + s
}

func sniffMedia(kind domain.MediaKind, decoded []byte) string {
	detected, _, _ := strings.Cut(http.DetectContentType(decoded), ";")
	prefix := "image/"
	switch kind {
	case domain.MediaKindVideo:
		prefix = "video/"
	case domain.MediaKindAudio:
		prefix = "audio/"
		if detected == "application/ogg" {
			return "audio/ogg"
		}
	}
	if !strings.HasPrefix(detected, prefix) {
		return ""
	}
	return detected
}

func collectText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var b strings.Builder
		for _, item := range t {
			b.WriteString(collectText(item))
		}
		return b.String()
	case map[string]any:
		if tokens, ok := t["tokens"]; ok {
			if s := collectText(tokens); s != "" {
				return s
			}
		}
		for _, key := range textKeys {
			if child, ok := t[key]; ok {
				if s := collectText(child); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func findEmbedding(v any) any {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil
		}
		if isVector(t) {
			return t
		}
		if inner, ok := t[0].([]any); ok && isVector(inner) {
			return t
		}
		for _, item := range t {
			if found := findEmbedding(item); found != nil {
				return found
			}
		}
	case map[string]any:
		for _, key := range embeddingKeys {
			if child, ok := t[key]; ok {
				if found := findEmbedding(child); found != nil {
					return found
				}
			}
		}
	}
	return nil
}

func isVector(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if _, ok := item.(json.Number); !ok {
			return false
		}
	}
	return true
}
