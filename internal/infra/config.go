package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"genjobs/internal/domain"
	"genjobs/internal/providers/registry"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	DatabaseURL   string
	RedisURL      string
	MongoURI      string
	MongoDatabase string
	JWTSecret     string
	// CredentialsKey is the hex or base64 AES-256 key for stored provider keys.
	CredentialsKey string

	RunpodAPIKey      string
	RunpodBaseURL     string
	ReplicateAPIToken string
	ReplicateBaseURL  string
	// ProviderEndpoints maps provider id to endpoint id or model version.
	ProviderEndpoints map[string]string
	ProviderOrderFile string

	PollInterval        time.Duration
	JobTimeouts         map[domain.MediaKind]time.Duration
	ProviderCallTimeout time.Duration
	ProviderSyncTimeout time.Duration

	RateLimitAIPerMinute   int
	RateLimitDeployPerHour int

	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:                 getEnv("APP_ENV", "development"),
		Port:                   getEnv("PORT", "8080"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisURL:               os.Getenv("REDIS_URL"),
		MongoURI:               os.Getenv("MONGODB_URI"),
		MongoDatabase:          getEnv("MONGODB_DATABASE", "genjobs"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		CredentialsKey:         os.Getenv("CREDENTIALS_ENCRYPTION_KEY"),
		RunpodAPIKey:           strings.TrimSpace(os.Getenv("RUNPOD_API_KEY")),
		RunpodBaseURL:          getEnv("RUNPOD_BASE_URL", "https://api.runpod.ai/v2"),
		ReplicateAPIToken:      strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN")),
		ReplicateBaseURL:       getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ProviderEndpoints:      loadEndpoints(),
		ProviderOrderFile:      os.Getenv("PROVIDER_ORDER_FILE"),
		PollInterval:           time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)),
		ProviderCallTimeout:    time.Second * time.Duration(getEnvInt("PROVIDER_CALL_TIMEOUT_SECONDS", 30)),
		ProviderSyncTimeout:    time.Second * time.Duration(getEnvInt("PROVIDER_SYNC_TIMEOUT_SECONDS", 90)),
		RateLimitAIPerMinute:   getEnvInt("RATE_LIMIT_AI_PER_MINUTE", 20),
		RateLimitDeployPerHour: getEnvInt("RATE_LIMIT_DEPLOY_PER_HOUR", 10),
		CORSAllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS"),
		HTTPReadTimeout:        time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:       time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 660)),
		HTTPIdleTimeout:        time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		JobTimeouts: map[domain.MediaKind]time.Duration{
			domain.MediaKindImage:     time.Second * time.Duration(getEnvInt("IMAGE_JOB_TIMEOUT_SECONDS", 120)),
			domain.MediaKindVideo:     time.Second * time.Duration(getEnvInt("VIDEO_JOB_TIMEOUT_SECONDS", 600)),
			domain.MediaKindAudio:     time.Second * time.Duration(getEnvInt("AUDIO_JOB_TIMEOUT_SECONDS", 300)),
			domain.MediaKindLLMText:   time.Second * time.Duration(getEnvInt("LLM_JOB_TIMEOUT_SECONDS", 120)),
			domain.MediaKindEmbedding: time.Second * time.Duration(getEnvInt("EMBEDDING_JOB_TIMEOUT_SECONDS", 30)),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.RateLimitAIPerMinute <= 0 || cfg.RateLimitDeployPerHour <= 0 {
		return nil, fmt.Errorf("rate limits must be positive")
	}
	if cfg.DatabaseURL != "" && cfg.CredentialsKey == "" {
		return nil, fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY is required when DATABASE_URL is set")
	}

	return cfg, nil
}

// ProviderCredentials reports which families have an environment key. Keys
// held only in the credential store are added by the caller after probing it.
func (c *Config) ProviderCredentials() map[domain.ProviderFamily]bool {
	return map[domain.ProviderFamily]bool{
		domain.FamilyRunpod:    c.RunpodAPIKey != "",
		domain.FamilyReplicate: c.ReplicateAPIToken != "",
	}
}

// GenerateBudget is the longest a single /v1/generate call can legitimately
// run: for each kind, the job ceiling times every catalogue entry that can
// serve it, taking the largest kind.
func (c *Config) GenerateBudget() time.Duration {
	sums := make(map[domain.MediaKind]time.Duration)
	for _, d := range registry.New(registry.Settings{Timeouts: c.JobTimeouts}).All() {
		for _, kind := range d.MediaKinds {
			sums[kind] += d.Timeouts[kind]
		}
	}
	var budget time.Duration
	for _, sum := range sums {
		if sum > budget {
			budget = sum
		}
	}
	return budget
}

func loadEndpoints() map[string]string {
	endpoints := registry.DefaultEndpoints()
	for _, id := range registry.IDs() {
		if v := strings.TrimSpace(os.Getenv(registry.EndpointEnvKey(id))); v != "" {
			endpoints[id] = v
		}
	}
	return endpoints
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
