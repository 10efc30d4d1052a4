// Package service holds application services used by the HTTP surface.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/brickify/internal/observability"
	"github.com/jmylchreest/brickify/internal/pipeline"
	"github.com/jmylchreest/brickify/internal/transcode"
)

// DefaultMaxJobs is the number of finished jobs kept in memory.
const DefaultMaxJobs = 100

// Service errors.
var (
	ErrJobNotFound = errors.New("transcode job not found")
	ErrEmptyInput  = errors.New("input path is required")
	ErrNoRunner    = errors.New("transcoder not configured")
	ErrJobFinished = errors.New("transcode job already finished")
)

// JobStatus is the coarse lifecycle of a transcode job.
type JobStatus string

// Job statuses.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// TranscodeJob is a snapshot of one submitted transcode.
type TranscodeJob struct {
	ID        uuid.UUID
	Input     string
	BlockSize int
	Status    JobStatus
	State     string
	Output    string
	ErrorKind string
	Error     string

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Runner starts transcodes. *transcode.Transcoder implements it.
type Runner interface {
	ProcessVideoWithID(ctx context.Context, id, input string, blockSize int, completion func(pipeline.Result))
}

// TranscodeService tracks transcode jobs in memory. Jobs do not survive a
// restart.
type TranscodeService struct {
	runner  Runner
	baseCtx context.Context
	maxJobs int
	logger  *slog.Logger

	mu      sync.RWMutex
	jobs    map[uuid.UUID]*TranscodeJob
	cancels map[uuid.UUID]context.CancelFunc
}

// NewTranscodeService creates a service whose jobs run under ctx.
func NewTranscodeService(ctx context.Context) *TranscodeService {
	return &TranscodeService{
		baseCtx: ctx,
		maxJobs: DefaultMaxJobs,
		logger:  slog.Default(),
		jobs:    make(map[uuid.UUID]*TranscodeJob),
		cancels: make(map[uuid.UUID]context.CancelFunc),
	}
}

// WithLogger sets a custom logger.
func (s *TranscodeService) WithLogger(logger *slog.Logger) *TranscodeService {
	s.logger = logger
	return s
}

// WithRunner sets the transcoder.
func (s *TranscodeService) WithRunner(runner Runner) *TranscodeService {
	s.runner = runner
	return s
}

// WithMaxJobs sets how many finished jobs are retained.
func (s *TranscodeService) WithMaxJobs(n int) *TranscodeService {
	if n > 0 {
		s.maxJobs = n
	}
	return s
}

// Submit starts a transcode and returns the pending job.
func (s *TranscodeService) Submit(_ context.Context, input string, blockSize int) (*TranscodeJob, error) {
	if input == "" {
		return nil, ErrEmptyInput
	}
	if s.runner == nil {
		return nil, ErrNoRunner
	}

	job := &TranscodeJob{
		ID:        uuid.New(),
		Input:     input,
		BlockSize: blockSize,
		Status:    JobStatusPending,
		State:     transcode.StateIdle.String(),
		CreatedAt: time.Now(),
	}
	ctx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.cancels[job.ID] = cancel
	s.pruneLocked()
	snapshot := *job
	s.mu.Unlock()

	s.logger.Info("transcode job submitted",
		slog.String("job_id", job.ID.String()),
		slog.String("input", input),
		slog.Int("block_size", blockSize))

	s.runner.ProcessVideoWithID(ctx, job.ID.String(), input, blockSize, func(res pipeline.Result) {
		s.complete(job.ID, res)
	})
	return &snapshot, nil
}

// OnState records transcoder state transitions. Pass it as
// transcode.Options.OnState.
func (s *TranscodeService) OnState(id string, state transcode.State) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || isFinished(job.Status) {
		return
	}
	job.State = state.String()
	if state == transcode.StateConfiguring && job.StartedAt == nil {
		now := time.Now()
		job.StartedAt = &now
		job.Status = JobStatusRunning
	}
}

func (s *TranscodeService) complete(id uuid.UUID, res pipeline.Result) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if cancel, found := s.cancels[id]; found {
		cancel()
		delete(s.cancels, id)
	}
	if !ok {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	job.FinishedAt = &now
	if res.OK() {
		job.Status = JobStatusCompleted
		job.State = transcode.StateCompleted.String()
		job.Output = res.Location
	} else {
		job.Status = JobStatusFailed
		job.State = transcode.StateFailed.String()
		job.ErrorKind = res.Kind().String()
		job.Error = res.Err.Error()
	}
	s.mu.Unlock()

	s.logger.Info("transcode job finished",
		slog.String("job_id", id.String()),
		slog.String("status", string(job.Status)),
		observability.Result(res))
}

// GetByID returns a snapshot of a job.
func (s *TranscodeService) GetByID(_ context.Context, id uuid.UUID) (*TranscodeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	snapshot := *job
	return &snapshot, nil
}

// GetAll returns every retained job, newest first.
func (s *TranscodeService) GetAll(_ context.Context) []*TranscodeJob {
	s.mu.RLock()
	out := make([]*TranscodeJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		out = append(out, &snapshot)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Cancel stops a running job. Its result is reported as cancelled.
func (s *TranscodeService) Cancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if isFinished(job.Status) {
		return ErrJobFinished
	}
	if cancel, found := s.cancels[id]; found {
		cancel()
	}
	return nil
}

// PruneFinishedBefore removes finished jobs that ended before cutoff and
// returns them. Running jobs are never removed.
func (s *TranscodeService) PruneFinishedBefore(cutoff time.Time) []*TranscodeJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*TranscodeJob
	for id, job := range s.jobs {
		if !isFinished(job.Status) || job.FinishedAt == nil || !job.FinishedAt.Before(cutoff) {
			continue
		}
		removed = append(removed, job)
		delete(s.jobs, id)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].FinishedAt.Before(*removed[j].FinishedAt) })
	return removed
}

// pruneLocked drops the oldest finished jobs beyond maxJobs.
func (s *TranscodeService) pruneLocked() {
	if len(s.jobs) <= s.maxJobs {
		return
	}
	finished := make([]*TranscodeJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if isFinished(job.Status) {
			finished = append(finished, job)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].CreatedAt.Before(finished[j].CreatedAt) })
	for _, job := range finished {
		if len(s.jobs) <= s.maxJobs {
			return
		}
		delete(s.jobs, job.ID)
	}
}

func isFinished(status JobStatus) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}
