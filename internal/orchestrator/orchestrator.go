// Package orchestrator runs one logical generation request across the
// configured providers: admission, normalization, submission, polling and
// fallback.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genjobs/internal/admission"
	"genjobs/internal/clock"
	"genjobs/internal/domain"
	"genjobs/internal/infra"
	"genjobs/internal/providers"
	"genjobs/internal/providers/normalize"
)

// Options wires the orchestrator's collaborators.
type Options struct {
	Catalogue Catalogue
	Clients   providers.Set
	Gate      admission.Gate
	Clock     clock.Clock
	Recorder  AttemptRecorder
	Metrics   *Metrics
	Logger    *infra.Logger
	// DefaultTimeout applies when a descriptor has no ceiling for the kind.
	DefaultTimeout time.Duration
	CancelTimeout  time.Duration
	MaxPollErrors  int
	NewID          func() string
}

// Orchestrator is safe for concurrent use; each Generate call owns its jobs.
type Orchestrator struct {
	catalogue Catalogue
	clients   providers.Set
	gate      admission.Gate
	clock     clock.Clock
	recorder  AttemptRecorder
	metrics   *Metrics
	logger    *infra.Logger
	poller    *Poller
	newID     func() string
}

// New validates opts and builds an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Catalogue == nil {
		return nil, errors.New("orchestrator: catalogue is required")
	}
	if opts.Gate == nil {
		return nil, errors.New("orchestrator: admission gate is required")
	}
	o := &Orchestrator{
		catalogue: opts.Catalogue,
		clients:   opts.Clients,
		gate:      opts.Gate,
		clock:     opts.Clock,
		recorder:  opts.Recorder,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		newID:     opts.NewID,
	}
	if o.clock == nil {
		o.clock = clock.Real{}
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		o.logger = &l
	}
	if o.newID == nil {
		o.newID = func() string { return uuid.NewString() }
	}
	o.poller = NewPoller(PollerOptions{
		Clock:          o.clock,
		Logger:         o.logger,
		DefaultTimeout: opts.DefaultTimeout,
		CancelTimeout:  opts.CancelTimeout,
		MaxPollErrors:  opts.MaxPollErrors,
	})
	return o, nil
}

// Generate executes req on behalf of callerID. Every failure is returned as
// a *domain.OrchestrationError.
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest, callerID string) (*domain.GenerationResult, error) {
	started := o.clock.Now()
	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = o.newID()
	}
	log := o.logger.With().Str("request_id", requestID).Str("caller_id", callerID).Str("kind", string(req.Kind)).Logger()

	if err := req.Validate(); err != nil {
		o.metrics.observeGenerate(req.Kind, string(domain.KindInvalidRequest))
		return nil, domain.NewOrchestrationError(domain.KindInvalidRequest, err.Error(), err)
	}
	if err := ctx.Err(); err != nil {
		o.metrics.observeGenerate(req.Kind, string(domain.KindCancelled))
		return nil, domain.NewOrchestrationError(domain.KindCancelled, "request cancelled", err)
	}

	decision, err := o.gate.Admit(ctx, callerID, admission.ClassAIGeneration)
	switch {
	case err != nil && ctx.Err() != nil:
		o.metrics.observeGenerate(req.Kind, string(domain.KindCancelled))
		return nil, domain.NewOrchestrationError(domain.KindCancelled, "request cancelled", ctx.Err())
	case err != nil:
		log.Warn().Err(err).Msg("orchestrator: admission check failed; admitting")
	case !decision.Allowed:
		o.metrics.observeDenied(string(admission.ClassAIGeneration))
		o.metrics.observeGenerate(req.Kind, string(domain.KindAdmissionDenied))
		denied := domain.NewOrchestrationError(domain.KindAdmissionDenied, "generation quota exceeded", nil)
		denied.RetryAfterSeconds = decision.RetryAfterSeconds
		return nil, denied
	}

	chain := NewChain(ResolveCandidates(o.catalogue, req))
	d, ok := chain.Current()
	if !ok {
		exhausted := chain.Exhausted()
		exhausted.Attempts = KindMismatches(o.catalogue, req.Kind)
		log.Warn().Int("mismatched", len(exhausted.Attempts)).Msg("orchestrator: no configured provider for request")
		o.metrics.observeGenerate(req.Kind, string(domain.KindExhausted))
		return nil, exhausted
	}

	for {
		attempt := chain.Attempt()
		outputs, err := o.attempt(ctx, log, req, d, attempt, requestID, callerID)
		if err == nil {
			o.metrics.observeGenerate(req.Kind, "succeeded")
			return &domain.GenerationResult{
				RequestID:      requestID,
				Outputs:        outputs,
				ProviderUsed:   d.ID,
				AttemptsMade:   attempt + 1,
				TotalLatencyMs: o.clock.Now().Sub(started).Milliseconds(),
			}, nil
		}

		next, advance := chain.Advance(err)
		if advance {
			log.Info().Err(err).Str("provider", d.ID).Str("next", next.ID).Int("attempt", attempt).Msg("orchestrator: falling back")
			d = next
			continue
		}

		kind := domain.KindOf(err)
		if ctx.Err() != nil {
			kind = domain.KindCancelled
		}
		var out *domain.OrchestrationError
		switch kind {
		case domain.KindContentRejected:
			out = domain.NewOrchestrationError(kind, "the provider rejected the prompt or input content", err)
		case domain.KindCancelled:
			out = domain.NewOrchestrationError(kind, "request cancelled", err)
		default:
			out = chain.Exhausted()
		}
		out.Attempts = chain.Failures()
		o.metrics.observeGenerate(req.Kind, string(out.Kind))
		return nil, out
	}
}

func (o *Orchestrator) attempt(ctx context.Context, log zerolog.Logger, req domain.GenerationRequest, d domain.ProviderDescriptor, index int, requestID, callerID string) ([]string, error) {
	job := domain.NewJob(o.newID(), d.ID, req.Kind, index, o.clock.Now())
	outputs, err := o.run(ctx, job, req, d)
	o.finish(ctx, log, job, err, requestID, callerID)
	return outputs, err
}

func (o *Orchestrator) run(ctx context.Context, job *domain.Job, req domain.GenerationRequest, d domain.ProviderDescriptor) ([]string, error) {
	fail := func(err error) ([]string, error) {
		status := domain.JobStatusFailed
		if domain.KindOf(err) == domain.KindCancelled {
			status = domain.JobStatusCancelled
		}
		job.Transition(status, o.clock.Now(), nil, err)
		return nil, err
	}

	payload, err := normalize.Normalize(req, d)
	if err != nil {
		return fail(err)
	}
	client, err := o.clients.For(d)
	if err != nil {
		return fail(domain.NewProviderError(domain.KindProviderUnavailable, d.ID, err))
	}

	submitted, err := client.Submit(ctx, d, payload)
	if err != nil {
		if ctx.Err() != nil {
			return fail(domain.NewProviderError(domain.KindCancelled, d.ID, ctx.Err()))
		}
		return fail(err)
	}
	job.RemoteID = submitted.JobID

	if submitted.Immediate != nil {
		if _, err := o.poller.Settle(job, d, *submitted.Immediate, o.clock.Now()); err != nil {
			return nil, err
		}
	} else if err := o.poller.Drive(ctx, job, client, d); err != nil {
		return nil, err
	}

	outputs, err := NormalizeOutput(req.Kind, job.RawOutput)
	if err != nil {
		return nil, &domain.ProviderError{Kind: domain.KindProviderUnavailable, ProviderID: d.ID, Detail: "unusable output", Err: err}
	}
	return outputs, nil
}

func (o *Orchestrator) finish(ctx context.Context, log zerolog.Logger, job *domain.Job, err error, requestID, callerID string) {
	rec := domain.AttemptRecord{
		ID:            job.ID,
		RequestID:     requestID,
		CorrelationID: CorrelationIDFrom(ctx),
		CallerID:      callerID,
		ProviderID:    job.ProviderID,
		Kind:          job.Kind,
		AttemptIndex:  job.AttemptIndex,
		RemoteID:      job.RemoteID,
		Status:        job.Status,
		SubmittedAt:   job.SubmittedAt,
		FinishedAt:    job.FinishedAt,
	}
	event := log.Info()
	if err != nil {
		rec.FailureKind = domain.KindOf(err)
		rec.ErrorDetail = err.Error()
		event = log.Warn().Err(err).Str("failure_kind", string(rec.FailureKind))
	}
	event.Str("provider", job.ProviderID).
		Str("job_id", job.ID).
		Str("remote_id", job.RemoteID).
		Int("attempt", job.AttemptIndex).
		Str("status", string(job.Status)).
		Dur("elapsed", job.Elapsed(o.clock.Now())).
		Msg("orchestrator: attempt finished")

	o.metrics.observeAttempt(job)
	if recErr := o.recorder.Record(context.WithoutCancel(ctx), rec); recErr != nil {
		log.Error().Err(recErr).Str("job_id", job.ID).Msg("orchestrator: record attempt")
	}
}

