package normalize

import "genjobs/internal/domain"

// Payload is the provider-specific input body for one model variant. The set
// of implementations is closed; clients switch on the concrete type.
type Payload interface {
	Family() domain.ProviderFamily
	Variant() domain.ModelVariant
	isPayload()
}

type runpodPayload struct{}

func (runpodPayload) Family() domain.ProviderFamily { return domain.FamilyRunpod }
func (runpodPayload) isPayload()                    {}

type replicatePayload struct{}

func (replicatePayload) Family() domain.ProviderFamily { return domain.FamilyReplicate }
func (replicatePayload) isPayload()                    {}

// RunpodFluxInput targets a Flux.1-dev worker.
type RunpodFluxInput struct {
	runpodPayload
	Prompt            string  `json:"prompt"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Seed              *int64  `json:"seed,omitempty"`
}

func (RunpodFluxInput) Variant() domain.ModelVariant { return domain.ModelFlux }

// RunpodSDXLInput targets an SDXL worker; Image switches it to img2img.
type RunpodSDXLInput struct {
	runpodPayload
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Image             string  `json:"image_url,omitempty"`
	Strength          float64 `json:"strength,omitempty"`
	Seed              *int64  `json:"seed,omitempty"`
}

func (RunpodSDXLInput) Variant() domain.ModelVariant { return domain.ModelSDXL }

// RunpodSVDInput targets a Stable Video Diffusion image-to-video worker.
type RunpodSVDInput struct {
	runpodPayload
	Image        string `json:"image_url"`
	MotionBucket int    `json:"motion_bucket_id"`
	FPS          int    `json:"fps"`
	NumFrames    int    `json:"num_frames"`
	Seed         *int64 `json:"seed,omitempty"`
}

func (RunpodSVDInput) Variant() domain.ModelVariant { return domain.ModelSVD }

// RunpodMusicGenInput targets a MusicGen worker.
type RunpodMusicGenInput struct {
	runpodPayload
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
	Seed     *int64 `json:"seed,omitempty"`
}

func (RunpodMusicGenInput) Variant() domain.ModelVariant { return domain.ModelMusicGen }

// SamplingParams mirrors the vLLM worker sampling block.
type SamplingParams struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Seed        *int64  `json:"seed,omitempty"`
}

// RunpodLlamaInput targets a vLLM worker serving a Llama model.
type RunpodLlamaInput struct {
	runpodPayload
	Prompt         string         `json:"prompt"`
	SamplingParams SamplingParams `json:"sampling_params"`
}

func (RunpodLlamaInput) Variant() domain.ModelVariant { return domain.ModelLlama }

// RunpodEmbedInput targets an embedding worker.
type RunpodEmbedInput struct {
	runpodPayload
	Input []string `json:"input"`
}

func (RunpodEmbedInput) Variant() domain.ModelVariant { return domain.ModelEmbed }

// ReplicateFluxSchnellInput targets black-forest-labs/flux-schnell.
type ReplicateFluxSchnellInput struct {
	replicatePayload
	Prompt            string `json:"prompt"`
	AspectRatio       string `json:"aspect_ratio"`
	NumOutputs        int    `json:"num_outputs"`
	NumInferenceSteps int    `json:"num_inference_steps"`
	OutputFormat      string `json:"output_format"`
	Seed              *int64 `json:"seed,omitempty"`
}

func (ReplicateFluxSchnellInput) Variant() domain.ModelVariant { return domain.ModelFluxSchnell }

// ReplicateSDXLInput targets stability-ai/sdxl.
type ReplicateSDXLInput struct {
	replicatePayload
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Image             string  `json:"image,omitempty"`
	PromptStrength    float64 `json:"prompt_strength,omitempty"`
	Seed              *int64  `json:"seed,omitempty"`
}

func (ReplicateSDXLInput) Variant() domain.ModelVariant { return domain.ModelSDXL }

// ReplicateSVDInput targets stability-ai/stable-video-diffusion.
type ReplicateSVDInput struct {
	replicatePayload
	InputImage      string `json:"input_image"`
	MotionBucket    int    `json:"motion_bucket_id"`
	FramesPerSecond int    `json:"frames_per_second"`
	VideoLength     string `json:"video_length"`
	Seed            *int64 `json:"seed,omitempty"`
}

func (ReplicateSVDInput) Variant() domain.ModelVariant { return domain.ModelSVD }

// ReplicateMusicGenInput targets meta/musicgen.
type ReplicateMusicGenInput struct {
	replicatePayload
	Prompt       string `json:"prompt"`
	Duration     int    `json:"duration"`
	OutputFormat string `json:"output_format"`
	Seed         *int64 `json:"seed,omitempty"`
}

func (ReplicateMusicGenInput) Variant() domain.ModelVariant { return domain.ModelMusicGen }

// ReplicateLlamaInput targets meta/llama chat models.
type ReplicateLlamaInput struct {
	replicatePayload
	Prompt       string  `json:"prompt"`
	Temperature  float64 `json:"temperature"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Seed         *int64  `json:"seed,omitempty"`
}

func (ReplicateLlamaInput) Variant() domain.ModelVariant { return domain.ModelLlama }
