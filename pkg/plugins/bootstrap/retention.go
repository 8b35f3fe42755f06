package bootstrap

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

// Retention prunes memories older than the configured age on a background
// ticker. It is disabled until RETENTION_DAYS resolves to a positive value.
type Retention struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetention returns an idle sweeper; Start reads its configuration from
// the runtime settings.
func NewRetention() *Retention {
	return &Retention{}
}

func (*Retention) Name() string { return "retention" }
func (*Retention) Kind() string { return "maintenance" }

func (r *Retention) Start(ctx context.Context, tk core.Toolkit) error {
	days := settingInt(tk, SettingRetentionDays, 0)
	if days <= 0 {
		tk.Logger().Info("retention disabled", slog.Int("days", days))
		return nil
	}
	interval := settingDuration(tk, SettingRetentionInterval, time.Hour)
	maxAge := time.Duration(days) * 24 * time.Hour

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	go r.sweep(runCtx, tk, interval, maxAge, done)
	return nil
}

func (r *Retention) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Retention) sweep(ctx context.Context, tk core.Toolkit, interval, maxAge time.Duration, done chan struct{}) {
	defer close(done)
	logger := tk.Logger()
	logger.Info("retention sweeper started",
		slog.Duration("interval", interval),
		slog.Duration("max_age", maxAge),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-maxAge)
			removed, err := tk.Store().DeleteMemoriesBefore(ctx, core.ZeroID, cutoff)
			if err != nil {
				if !errors.IsCode(err, errors.CodeUnavailable) {
					logger.Warn("retention sweep failed", slog.String("error", err.Error()))
				}
				continue
			}
			if removed > 0 {
				logger.Info("retention sweep pruned memories",
					slog.Int("removed", removed),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}
