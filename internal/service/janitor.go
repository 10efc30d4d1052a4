package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmylchreest/brickify/internal/observability"
	"github.com/robfig/cron/v3"
)

// Janitor periodically forgets finished transcode jobs older than the
// retention and deletes their output files.
type Janitor struct {
	jobs      *TranscodeService
	retention time.Duration
	schedule  cron.Schedule
	expr      string
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor parses expr, a five-field cron expression or a descriptor such
// as "@every 15m".
func NewJanitor(jobs *TranscodeService, retention time.Duration, expr string) (*Janitor, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing cleanup schedule %q: %w", expr, err)
	}
	return &Janitor{
		jobs:      jobs,
		retention: retention,
		schedule:  schedule,
		expr:      expr,
		logger:    slog.Default(),
		now:       time.Now,
	}, nil
}

// WithLogger sets a custom logger.
func (j *Janitor) WithLogger(logger *slog.Logger) *Janitor {
	j.logger = logger
	return j
}

// Start runs the cleanup loop until ctx is cancelled or Stop is called.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return fmt.Errorf("janitor already started")
	}
	ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.loop(ctx)

	j.logger.Info("transcode janitor started",
		slog.String("schedule", j.expr),
		slog.Duration("retention", j.retention))
	return nil
}

// Stop ends the cleanup loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if j.cancel != nil {
		j.cancel()
	}
	j.mu.Unlock()

	j.wg.Wait()

	j.mu.Lock()
	j.cancel = nil
	j.mu.Unlock()
}

func (j *Janitor) loop(ctx context.Context) {
	defer j.wg.Done()
	for {
		now := j.now()
		timer := time.NewTimer(j.schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce removes expired jobs immediately and returns how many were removed.
func (j *Janitor) RunOnce(ctx context.Context) int {
	removed := j.jobs.PruneFinishedBefore(j.now().Add(-j.retention))
	for _, job := range removed {
		if job.Output == "" {
			continue
		}
		if err := os.Remove(job.Output); err != nil && !errors.Is(err, fs.ErrNotExist) {
			j.logger.WarnContext(ctx, "failed to remove transcode output",
				slog.String("job_id", job.ID.String()),
				slog.String("output", job.Output),
				observability.Err(err))
		}
	}
	if len(removed) > 0 {
		j.logger.InfoContext(ctx, "expired transcode jobs removed", slog.Int("count", len(removed)))
	}
	return len(removed)
}
