package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lower = cases.Lower(language.Und)

var styleSuffixes = map[string]string{
	"photographic": "photographic, natural lighting, high detail",
	"cinematic":    "cinematic lighting, film still, shallow depth of field",
	"anime":        "anime style, vibrant colors, clean line art",
	"digital-art":  "digital art, detailed illustration",
	"minimalist":   "minimalist, clean composition, generous negative space",
	"3d-render":    "3d render, soft global illumination",
	"watercolor":   "watercolor painting, soft edges, paper texture",
	"line-art":     "line art, monochrome, crisp outlines",
}

// CanonicalStyle lower-cases a style tag and joins words with hyphens so
// "Digital Art" and "digital_art" resolve to the same key.
func CanonicalStyle(hint string) string {
	fields := strings.FieldsFunc(lower.String(strings.TrimSpace(hint)), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	})
	return strings.Join(fields, "-")
}

// ApplyStyle appends the prompt suffix for hint. Unknown hints are appended
// as given.
func ApplyStyle(prompt, hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return prompt
	}
	suffix, ok := styleSuffixes[CanonicalStyle(hint)]
	if !ok {
		suffix = hint
	}
	if prompt == "" {
		return suffix
	}
	return prompt + ", " + suffix
}
