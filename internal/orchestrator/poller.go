package orchestrator

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"genjobs/internal/clock"
	"genjobs/internal/domain"
	"genjobs/internal/infra"
	"genjobs/internal/providers"
)

const (
	defaultPollInterval  = 2 * time.Second
	defaultJobTimeout    = 5 * time.Minute
	defaultCancelTimeout = 10 * time.Second
	// consecutive failed status reads tolerated before the attempt is abandoned
	defaultMaxPollErrors = 3
)

// Poller drives a submitted remote job to a terminal state.
type Poller struct {
	clock          clock.Clock
	logger         *infra.Logger
	defaultTimeout time.Duration
	cancelTimeout  time.Duration
	maxPollErrors  int
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Clock          clock.Clock
	Logger         *infra.Logger
	DefaultTimeout time.Duration
	CancelTimeout  time.Duration
	MaxPollErrors  int
}

// NewPoller builds a poller with defaults for unset options.
func NewPoller(opts PollerOptions) *Poller {
	p := &Poller{
		clock:          opts.Clock,
		logger:         opts.Logger,
		defaultTimeout: opts.DefaultTimeout,
		cancelTimeout:  opts.CancelTimeout,
		maxPollErrors:  opts.MaxPollErrors,
	}
	if p.clock == nil {
		p.clock = clock.Real{}
	}
	if p.logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		p.logger = &l
	}
	if p.defaultTimeout <= 0 {
		p.defaultTimeout = defaultJobTimeout
	}
	if p.cancelTimeout <= 0 {
		p.cancelTimeout = defaultCancelTimeout
	}
	if p.maxPollErrors <= 0 {
		p.maxPollErrors = defaultMaxPollErrors
	}
	return p
}

// Drive polls job.RemoteID until the job is terminal, the per-kind ceiling
// elapses, or ctx is cancelled. It returns nil only when the job succeeded.
func (p *Poller) Drive(ctx context.Context, job *domain.Job, client providers.Client, d domain.ProviderDescriptor) error {
	interval := d.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ceiling := d.Timeout(job.Kind, p.defaultTimeout)
	pollErrors := 0

	for {
		if ctx.Err() != nil {
			return p.abandon(ctx, job, client, d)
		}
		res, err := client.Poll(ctx, d, job.RemoteID)
		now := p.clock.Now()
		if err != nil {
			if ctx.Err() != nil {
				return p.abandon(ctx, job, client, d)
			}
			pollErrors++
			p.logger.Warn().Err(err).
				Str("provider", d.ID).
				Str("job_id", job.ID).
				Str("remote_id", job.RemoteID).
				Int("consecutive", pollErrors).
				Msg("orchestrator: status read failed")
			if pollErrors >= p.maxPollErrors {
				job.Transition(domain.JobStatusFailed, now, nil, err)
				p.cancelRemote(ctx, job, client, d)
				return err
			}
		} else {
			pollErrors = 0
			if done, err := p.Settle(job, d, res, now); done {
				return err
			}
		}

		if job.Elapsed(now) >= ceiling {
			timeoutErr := &domain.ProviderError{Kind: domain.KindTimedOut, ProviderID: d.ID, Detail: "job exceeded " + ceiling.String()}
			job.Transition(domain.JobStatusTimedOut, now, nil, timeoutErr)
			p.cancelRemote(ctx, job, client, d)
			return timeoutErr
		}

		wait := interval
		if remaining := ceiling - job.Elapsed(now); remaining < wait {
			wait = remaining
		}
		if ctx.Err() != nil {
			return p.abandon(ctx, job, client, d)
		}
		if err := p.clock.Sleep(ctx, wait); err != nil {
			return p.abandon(ctx, job, client, d)
		}
	}
}

// Settle applies one observation to job. done reports whether the job
// reached a terminal state; err is nil only for success.
func (p *Poller) Settle(job *domain.Job, d domain.ProviderDescriptor, res providers.PollResult, now time.Time) (done bool, err error) {
	switch res.Status {
	case providers.StatusQueued:
		job.Transition(domain.JobStatusQueued, now, nil, nil)
		return false, nil
	case providers.StatusSucceeded:
		job.Transition(domain.JobStatusSucceeded, now, res.Output, nil)
		return true, nil
	case providers.StatusFailed:
		perr := providers.FailedJobError(d, res)
		p.logger.Info().
			Str("provider", d.ID).
			Str("job_id", job.ID).
			Str("remote_id", job.RemoteID).
			Str("detail", perr.Detail).
			Msg("orchestrator: remote job failed")
		job.Transition(domain.JobStatusFailed, now, nil, perr)
		return true, perr
	case providers.StatusCancelled:
		// cancelled on the provider side, not by our caller
		perr := &domain.ProviderError{Kind: domain.KindProviderUnavailable, ProviderID: d.ID, Detail: "remote job cancelled by provider"}
		job.Transition(domain.JobStatusFailed, now, nil, perr)
		return true, perr
	case providers.StatusTimedOut:
		perr := &domain.ProviderError{Kind: domain.KindTimedOut, ProviderID: d.ID, Detail: "remote job timed out"}
		job.Transition(domain.JobStatusTimedOut, now, nil, perr)
		return true, perr
	default:
		// running and any status we do not recognise
		job.Transition(domain.JobStatusRunning, now, nil, nil)
		return false, nil
	}
}

func (p *Poller) abandon(ctx context.Context, job *domain.Job, client providers.Client, d domain.ProviderDescriptor) error {
	job.Transition(domain.JobStatusCancelled, p.clock.Now(), nil, nil)
	p.cancelRemote(ctx, job, client, d)
	return domain.NewProviderError(domain.KindCancelled, d.ID, ctx.Err())
}

// cancelRemote is best-effort and runs on a fresh context so it still
// reaches the provider after the caller has gone away.
func (p *Poller) cancelRemote(ctx context.Context, job *domain.Job, client providers.Client, d domain.ProviderDescriptor) {
	if job.RemoteID == "" {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cancelTimeout)
	defer cancel()
	ok, err := client.Cancel(cctx, d, job.RemoteID)
	if err != nil || !ok {
		p.logger.Warn().Err(err).
			Str("provider", d.ID).
			Str("job_id", job.ID).
			Str("remote_id", job.RemoteID).
			Bool("acknowledged", ok).
			Msg("orchestrator: remote cancel not confirmed")
	}
}
