package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/fieldsync/internal/connectivity"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

const defaultDrainInterval = time.Minute

type drainer interface {
	Drain(ctx context.Context) (int, error)
}

type connectivitySource interface {
	Online() bool
	Subscribe(fn connectivity.Observer) (unsubscribe func())
}

// RunnerParams configure the background drain loop.
type RunnerParams struct {
	Logger   *logger.Logger
	Drainer  drainer
	Monitor  connectivitySource
	Lock     Lock
	Interval time.Duration
}

// Runner drains the outbox whenever connectivity comes back and on a fixed
// cadence while online.
type Runner struct {
	logg     *logger.Logger
	drainer  drainer
	monitor  connectivitySource
	lock     Lock
	interval time.Duration
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Drainer == nil {
		return nil, fmt.Errorf("drainer required")
	}
	if params.Monitor == nil {
		return nil, fmt.Errorf("connectivity monitor required")
	}
	lock := params.Lock
	if lock == nil {
		lock = NopLock{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	return &Runner{
		logg:     params.Logger,
		drainer:  params.Drainer,
		monitor:  params.Monitor,
		lock:     lock,
		interval: interval,
	}, nil
}

// Run loops until ctx is cancelled. The monitor fires once on subscribe, so
// an agent that starts online drains straight away.
func (r *Runner) Run(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	unsubscribe := r.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "drain runner context canceled")
			return ctx.Err()
		case <-wake:
			r.runCycle(r.logg.WithField(ctx, "trigger", "reconnect"))
		case <-ticker.C:
			if r.monitor.Online() {
				r.runCycle(r.logg.WithField(ctx, "trigger", "interval"))
			}
		}
	}
}

func (r *Runner) runCycle(ctx context.Context) {
	locked, err := r.lock.Acquire(ctx)
	if err != nil {
		r.logg.Error(ctx, "drain lock acquire failed", err)
		return
	}
	if !locked {
		r.logg.Info(ctx, "another agent is draining; skipping this cycle")
		return
	}
	defer func() {
		if relErr := r.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			r.logg.Error(ctx, "failed to release drain lock", relErr)
		}
	}()

	if _, err := r.drainer.Drain(ctx); err != nil && ctx.Err() == nil {
		r.logg.Error(ctx, "scheduled drain failed", err)
	}
}
