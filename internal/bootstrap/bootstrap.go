// Package bootstrap assembles the generation service from configuration.
// Postgres, Redis and MongoDB are each optional.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"genjobs/internal/adapter/repo"
	"genjobs/internal/admission"
	"genjobs/internal/clock"
	"genjobs/internal/domain"
	"genjobs/internal/infra"
	"genjobs/internal/infra/credentials"
	"genjobs/internal/infra/secretbox"
	"genjobs/internal/orchestrator"
	"genjobs/internal/providers"
	"genjobs/internal/providers/registry"
	"genjobs/internal/providers/replicate"
	"genjobs/internal/providers/runpod"
)

// Services is the wired object graph shared by the API and the CLI.
type Services struct {
	Config       *infra.Config
	Registry     *registry.Resolver
	Gate         admission.Gate
	Orchestrator *orchestrator.Orchestrator
	Credentials  *credentials.Store
	Attempts     *repo.AttemptRepositoryMongo
	Prometheus   *prometheus.Registry

	closers []func()
}

// Close releases every connection opened by Build, last opened first.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Policies derives the admission quotas from cfg.
func Policies(cfg *infra.Config) map[admission.Class]admission.Policy {
	return map[admission.Class]admission.Policy{
		admission.ClassAIGeneration: {Limit: cfg.RateLimitAIPerMinute, Window: time.Minute},
		admission.ClassDeployment:   {Limit: cfg.RateLimitDeployPerHour, Window: time.Hour},
	}
}

// Build connects the optional backing stores and wires the orchestrator.
func Build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Services, error) {
	s := &Services{Config: cfg, Prometheus: prometheus.NewRegistry()}
	s.Prometheus.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := s.openCredentials(ctx, cfg, logger); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.openGate(ctx, cfg, logger); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.openAttempts(ctx, cfg, logger); err != nil {
		s.Close()
		return nil, err
	}

	creds := cfg.ProviderCredentials()
	if s.Credentials != nil {
		for family := range creds {
			if creds[family] {
				continue
			}
			ok, err := s.Credentials.Has(ctx, family)
			if err != nil {
				logger.Warn().Err(err).Str("family", string(family)).Msg("credential probe failed")
				continue
			}
			creds[family] = ok
		}
	}

	settings := registry.Settings{
		Credentials:  creds,
		Endpoints:    cfg.ProviderEndpoints,
		Timeouts:     cfg.JobTimeouts,
		PollInterval: cfg.PollInterval,
	}
	if cfg.ProviderOrderFile != "" {
		order, err := registry.LoadOrderFile(cfg.ProviderOrderFile)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("load provider order: %w", err)
		}
		settings.Order = order
	}
	s.Registry = registry.New(settings)
	for _, d := range s.Registry.All() {
		logger.Info().Str("provider", d.ID).Bool("configured", d.Configured).Msg("provider registered")
	}

	secrets := s.secretSource(cfg)
	providerLogger := logger.With().Str("component", "providers").Logger()
	clients := providers.Set{
		domain.FamilyRunpod: runpod.NewClient(runpod.Options{
			BaseURL:     cfg.RunpodBaseURL,
			Secrets:     secrets,
			Logger:      &providerLogger,
			CallTimeout: cfg.ProviderCallTimeout,
			SyncTimeout: cfg.ProviderSyncTimeout,
		}),
		domain.FamilyReplicate: replicate.NewClient(replicate.Options{
			BaseURL:     cfg.ReplicateBaseURL,
			Secrets:     secrets,
			Logger:      &providerLogger,
			CallTimeout: cfg.ProviderCallTimeout,
			SyncTimeout: cfg.ProviderSyncTimeout,
		}),
	}

	var recorder orchestrator.AttemptRecorder
	if s.Attempts != nil {
		recorder = s.Attempts
	}
	orchLogger := logger.With().Str("component", "orchestrator").Logger()
	orch, err := orchestrator.New(orchestrator.Options{
		Catalogue: s.Registry,
		Clients:   clients,
		Gate:      s.Gate,
		Clock:     clock.Real{},
		Recorder:  recorder,
		Metrics:   orchestrator.NewMetrics(s.Prometheus),
		Logger:    &orchLogger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Orchestrator = orch
	return s, nil
}

func (s *Services) secretSource(cfg *infra.Config) providers.SecretSource {
	static := providers.StaticSecrets{
		domain.FamilyRunpod:    cfg.RunpodAPIKey,
		domain.FamilyReplicate: cfg.ReplicateAPIToken,
	}
	if s.Credentials == nil {
		return static
	}
	return providers.ChainSecrets{static, s.Credentials}
}

func (s *Services) openCredentials(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) error {
	if cfg.DatabaseURL == "" {
		return nil
	}
	store, pool, err := OpenCredentialStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, pool.Close)
	s.Credentials = store
	logger.Info().Msg("credential store enabled")
	return nil
}

// OpenCredentialStore connects Postgres and returns the encrypted key store.
// The caller owns the returned pool.
func OpenCredentialStore(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*credentials.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for stored credentials")
	}
	box, err := secretbox.New(cfg.CredentialsKey)
	if err != nil {
		return nil, nil, fmt.Errorf("credentials key: %w", err)
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return credentials.NewStore(infra.NewSQLRunner(pool, logger), box), pool, nil
}

func (s *Services) openGate(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) error {
	policies := Policies(cfg)
	if cfg.RedisURL == "" {
		s.Gate = admission.NewMemoryGate(policies, clock.Real{})
		logger.Info().Msg("admission gate: in-memory")
		return nil
	}
	client, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func() { _ = client.Close() })
	gateLogger := logger.With().Str("component", "admission").Logger()
	s.Gate = admission.NewRedisGate(client, admission.RedisOptions{Policies: policies, Logger: &gateLogger})
	logger.Info().Msg("admission gate: redis")
	return nil
}

func (s *Services) openAttempts(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) error {
	if cfg.MongoURI == "" {
		return nil
	}
	client, err := infra.NewMongoClient(ctx, cfg)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	})
	attempts := repo.NewAttemptRepository(client.Database(cfg.MongoDatabase).Collection(repo.AttemptCollection))
	if err := attempts.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("attempt indexes: %w", err)
	}
	s.Attempts = attempts
	logger.Info().Str("database", cfg.MongoDatabase).Msg("attempt history enabled")
	return nil
}

// RunSweeper drops expired in-memory admission windows every interval until
// ctx is done. It returns immediately for the Redis gate, whose keys expire
// on their own.
func (s *Services) RunSweeper(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	mem, ok := s.Gate.(*admission.MemoryGate)
	if !ok {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mem.Sweep(); n > 0 {
				logger.Debug().Int("removed", n).Msg("admission windows swept")
			}
		}
	}
}
