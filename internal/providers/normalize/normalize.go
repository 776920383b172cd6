// Package normalize converts a caller's GenerationRequest into the exact
// input body one provider model expects, filling every default.
package normalize

import (
	"fmt"
	"math"
	"strings"

	"genjobs/internal/domain"
)

const (
	defaultSide = 1024

	sdxlSteps    = 30
	sdxlGuidance = 7.5
	sdxlMaxSide  = 1536
	// img2img strength when a source image is given
	sdxlStrength = 0.6

	fluxSteps    = 28
	fluxGuidance = 3.5
	fluxMaxSide  = 2048

	schnellSteps = 4

	svdMotionBucket = 127
	svdFPS          = 6
	svdFrames       = 25

	musicDuration    = 8
	musicMaxDuration = 30

	llamaTemperature = 0.7
	llamaMaxTokens   = 512
	llamaTokenCap    = 4096
)

// Normalize validates req against d and builds the provider payload. A
// CapabilityMismatch ProviderError is returned when d cannot honour req; no
// network call is involved.
func Normalize(req domain.GenerationRequest, d domain.ProviderDescriptor) (Payload, error) {
	if !d.Supports(req.Kind) {
		return nil, mismatch(d, "does not support kind %s", req.Kind)
	}
	prompt := strings.TrimSpace(req.Prompt)
	source := strings.TrimSpace(req.SourceImageReference)
	q := req.Quality

	switch d.Model {
	case domain.ModelFlux, domain.ModelFluxSchnell:
		if source != "" {
			return nil, mismatch(d, "image-to-image is not supported")
		}
		prompt = ApplyStyle(prompt, req.StyleHint)
		if d.Model == domain.ModelFluxSchnell {
			w, h := dimensions(req.Dimensions, fluxMaxSide, 8)
			return ReplicateFluxSchnellInput{
				Prompt:            prompt,
				AspectRatio:       AspectRatio(w, h),
				NumOutputs:        1,
				NumInferenceSteps: clampInt(intOr(q.Steps, schnellSteps), 1, schnellSteps),
				OutputFormat:      "webp",
				Seed:              q.Seed,
			}, nil
		}
		if d.Family != domain.FamilyRunpod {
			break
		}
		w, h := dimensions(req.Dimensions, fluxMaxSide, 8)
		return RunpodFluxInput{
			Prompt:            prompt,
			Width:             w,
			Height:            h,
			NumInferenceSteps: clampInt(intOr(q.Steps, fluxSteps), 1, 50),
			GuidanceScale:     clampFloat(floatOr(q.GuidanceScale, fluxGuidance), 0, 20),
			Seed:              q.Seed,
		}, nil

	case domain.ModelSDXL:
		if prompt == "" && source == "" {
			return nil, mismatch(d, "prompt is required")
		}
		prompt = ApplyStyle(prompt, req.StyleHint)
		w, h := dimensions(req.Dimensions, sdxlMaxSide, 64)
		steps := clampInt(intOr(q.Steps, sdxlSteps), 1, 100)
		guidance := clampFloat(floatOr(q.GuidanceScale, sdxlGuidance), 0, 20)
		var strength float64
		if source != "" {
			strength = sdxlStrength
		}
		if d.Family == domain.FamilyReplicate {
			return ReplicateSDXLInput{
				Prompt:            prompt,
				NegativePrompt:    strings.TrimSpace(q.NegativePrompt),
				Width:             w,
				Height:            h,
				NumInferenceSteps: steps,
				GuidanceScale:     guidance,
				Image:             source,
				PromptStrength:    strength,
				Seed:              q.Seed,
			}, nil
		}
		return RunpodSDXLInput{
			Prompt:            prompt,
			NegativePrompt:    strings.TrimSpace(q.NegativePrompt),
			Width:             w,
			Height:            h,
			NumInferenceSteps: steps,
			GuidanceScale:     guidance,
			Image:             source,
			Strength:          strength,
			Seed:              q.Seed,
		}, nil

	case domain.ModelSVD:
		if source == "" {
			return nil, mismatch(d, "image-to-video requires a source image")
		}
		motion := clampInt(intOr(q.MotionBucket, svdMotionBucket), 1, 255)
		if d.Family == domain.FamilyReplicate {
			return ReplicateSVDInput{
				InputImage:      source,
				MotionBucket:    motion,
				FramesPerSecond: svdFPS,
				VideoLength:     "25_frames_with_svd_xt",
				Seed:            q.Seed,
			}, nil
		}
		return RunpodSVDInput{
			Image:        source,
			MotionBucket: motion,
			FPS:          svdFPS,
			NumFrames:    svdFrames,
			Seed:         q.Seed,
		}, nil

	case domain.ModelMusicGen:
		prompt = ApplyStyle(prompt, req.StyleHint)
		duration := clampInt(intOr(q.DurationSeconds, musicDuration), 1, musicMaxDuration)
		if d.Family == domain.FamilyReplicate {
			return ReplicateMusicGenInput{
				Prompt:       prompt,
				Duration:     duration,
				OutputFormat: "mp3",
				Seed:         q.Seed,
			}, nil
		}
		return RunpodMusicGenInput{Prompt: prompt, Duration: duration, Seed: q.Seed}, nil

	case domain.ModelLlama:
		temp := clampFloat(floatOr(q.Temperature, llamaTemperature), 0, 2)
		maxTokens := clampInt(intOr(q.MaxTokens, llamaMaxTokens), 1, llamaTokenCap)
		if d.Family == domain.FamilyReplicate {
			return ReplicateLlamaInput{
				Prompt:       prompt,
				Temperature:  temp,
				MaxNewTokens: maxTokens,
				Seed:         q.Seed,
			}, nil
		}
		return RunpodLlamaInput{
			Prompt:         prompt,
			SamplingParams: SamplingParams{Temperature: temp, MaxTokens: maxTokens, Seed: q.Seed},
		}, nil

	case domain.ModelEmbed:
		if d.Family == domain.FamilyRunpod {
			return RunpodEmbedInput{Input: []string{prompt}}, nil
		}
	}
	return nil, mismatch(d, "no payload mapping for %s/%s", d.Family, d.Model)
}

func mismatch(d domain.ProviderDescriptor, format string, args ...any) error {
	return &domain.ProviderError{
		Kind:       domain.KindCapabilityMismatch,
		ProviderID: d.ID,
		Detail:     fmt.Sprintf(format, args...),
	}
}

// dimensions fills the default size, clamps each side to maxSide and snaps
// down to a multiple of step.
func dimensions(in domain.Dimensions, maxSide, step int) (int, int) {
	w, h := in.Width, in.Height
	switch {
	case w <= 0 && h <= 0:
		w, h = defaultSide, defaultSide
	case w <= 0:
		w = h
	case h <= 0:
		h = w
	}
	return snap(w, maxSide, step), snap(h, maxSide, step)
}

func snap(v, maxSide, step int) int {
	if v > maxSide {
		v = maxSide
	}
	v -= v % step
	if v < step {
		v = step
	}
	return v
}

var aspectRatios = []struct {
	label string
	value float64
}{
	{"1:1", 1},
	{"16:9", 16.0 / 9},
	{"21:9", 21.0 / 9},
	{"3:2", 3.0 / 2},
	{"2:3", 2.0 / 3},
	{"4:5", 4.0 / 5},
	{"5:4", 5.0 / 4},
	{"3:4", 3.0 / 4},
	{"4:3", 4.0 / 3},
	{"9:16", 9.0 / 16},
	{"9:21", 9.0 / 21},
}

// AspectRatio picks the supported ratio label closest to w:h.
func AspectRatio(w, h int) string {
	if w <= 0 || h <= 0 {
		return "1:1"
	}
	target := float64(w) / float64(h)
	best := aspectRatios[0]
	bestDiff := math.Abs(target - best.value)
	for _, r := range aspectRatios[1:] {
		if diff := math.Abs(target - r.value); diff < bestDiff {
			best, bestDiff = r, diff
		}
	}
	return best.label
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
