package service

import (
	"context"
	"time"

	"payment-tracker/internal/core/ports"
	"payment-tracker/pkg/apperror"

	"github.com/LerianStudio/lib-uncommons/v2/uncommons/backoff"
	"github.com/rs/zerolog"
)

// Resyncer is the part of ports.SyncService the poller drives.
type Resyncer interface {
	Resync(ctx context.Context) (*ports.SyncSummary, error)
}

// PollerConfig controls the resync cadence.
type PollerConfig struct {
	Interval    time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Poller resyncs on a fixed interval and backs off while the ledger is
// unreachable.
type Poller struct {
	target Resyncer
	cfg    PollerConfig
	log    zerolog.Logger
	jitter func(time.Duration) time.Duration
}

// NewPoller creates a poller for target.
func NewPoller(target Resyncer, cfg PollerConfig, log zerolog.Logger) *Poller {
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	return &Poller{
		target: target,
		cfg:    cfg,
		log:    log,
		jitter: equalJitter,
	}
}

// Run blocks until ctx is done. A zero interval disables polling.
func (p *Poller) Run(ctx context.Context) error {
	if p.cfg.Interval <= 0 {
		p.log.Info().Msg("Polling disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		_, err := p.target.Resync(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := p.cfg.Interval
		if err != nil && apperror.HasCode(err, apperror.CodeConnectivity) {
			failures++
			wait = p.backoff(failures)
			p.log.Warn().Err(err).Int("failures", failures).Dur("retry_in", wait).Msg("Ledger unreachable")
		} else {
			if failures > 0 {
				p.log.Info().Int("failures", failures).Msg("Ledger reachable again")
			}
			failures = 0
		}
		timer.Reset(wait)
	}
}

// backoff returns the wait after the given number of consecutive failures:
// base * 2^(failures-1), capped at MaxBackoff, then jittered.
func (p *Poller) backoff(failures int) time.Duration {
	return p.jitter(min(backoff.Exponential(p.cfg.BaseBackoff, failures-1), p.cfg.MaxBackoff))
}

// equalJitter keeps the lower half of d so a failing ledger is never polled
// in a tight loop. The result lies in [d/2, d).
func equalJitter(d time.Duration) time.Duration {
	half := d / 2
	return half + backoff.FullJitter(d-half)
}
