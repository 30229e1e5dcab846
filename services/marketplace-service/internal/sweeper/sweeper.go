package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Completer is the slice of the session store the sweeper needs.
type Completer interface {
	CompleteDue(ctx context.Context, cutoff time.Time, batchSize int) (checked int, completed int, err error)
}

type Worker struct {
	sessions  Completer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(sessions Completer, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		sessions:  sessions,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

type Result struct {
	Checked   int
	Completed int
}

// Run sweeps ended sessions into completed on a fixed interval until the
// context is cancelled. The cron endpoint shares RunOnce, so an external
// scheduler and this loop never disagree on semantics.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := w.RunOnce(ctx, w.now())
			if err != nil {
				w.logger.Error("session sweep failed", "err", err)
				continue
			}
			if res.Completed > 0 {
				w.logger.Info("sessions auto-completed", "checked", res.Checked, "completed", res.Completed)
			}
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context, cutoff time.Time) (Result, error) {
	checked, completed, err := w.sessions.CompleteDue(ctx, cutoff, w.batchSize)
	if err != nil {
		return Result{}, err
	}
	return Result{Checked: checked, Completed: completed}, nil
}
