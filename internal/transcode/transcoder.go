package transcode

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/brickify/internal/bufpool"
	"github.com/jmylchreest/brickify/internal/effect"
	"github.com/jmylchreest/brickify/internal/observability"
	"github.com/jmylchreest/brickify/internal/pipeline"
)

// Defaults applied by New.
const (
	DefaultPoolSize = 4
	outputPrefix    = "brickify-"
	outputExt       = ".mp4"
)

// Observer receives the start and outcome of every transcode. Implementations
// must be safe for concurrent use.
type Observer interface {
	TranscodeStarted()
	TranscodeFinished(res pipeline.Result, elapsed time.Duration, pool bufpool.Stats)
}

// Options configures a Transcoder.
type Options struct {
	// TempDir receives output files. Defaults to os.TempDir().
	TempDir string
	// Width and Height force the output geometry. Zero keeps the source size.
	Width  int
	Height int

	PoolSize     int
	PoolPolicy   bufpool.Policy
	PoolMaxBytes int64

	FragmentDuration time.Duration
	JPEGQuality      int

	Bounds   effect.Bounds
	Renderer effect.Renderer
	Observer Observer
	Logger   *slog.Logger

	// OnState is called on every state transition of every session.
	OnState func(id string, s State)
}

// Transcoder runs transcode sessions. It holds no per-run state, so one
// Transcoder may run many sessions concurrently.
type Transcoder struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Transcoder, filling in defaults.
func New(opts Options) *Transcoder {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.PoolPolicy == "" {
		opts.PoolPolicy = bufpool.PolicyBlock
	}
	if opts.Bounds == (effect.Bounds{}) {
		opts.Bounds = effect.DefaultBounds()
	}
	if opts.Renderer == nil {
		opts.Renderer = effect.Brick{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{
		opts:   opts,
		logger: observability.WithComponent(logger, "transcoder"),
	}
}

// Transcode runs one session to completion and returns its single terminal
// result. blockSize is clamped to the configured bounds.
func (t *Transcoder) Transcode(ctx context.Context, input string, blockSize int) pipeline.Result {
	return t.run(ctx, uuid.NewString(), input, blockSize)
}

// ProcessVideo runs a session on its own goroutine and calls completion exactly
// once with the result.
func (t *Transcoder) ProcessVideo(ctx context.Context, input string, blockSize int, completion func(pipeline.Result)) {
	t.ProcessVideoWithID(ctx, uuid.NewString(), input, blockSize, completion)
}

// ProcessVideoWithID is ProcessVideo with a caller-chosen session id, passed to
// OnState and used in the output file name.
func (t *Transcoder) ProcessVideoWithID(ctx context.Context, id, input string, blockSize int, completion func(pipeline.Result)) {
	go func() {
		res := t.run(ctx, id, input, blockSize)
		if completion != nil {
			completion(res)
		}
	}()
}

func (t *Transcoder) run(ctx context.Context, id, input string, blockSize int) pipeline.Result {
	params := t.opts.Bounds.Params(blockSize)
	logger := t.logger.With(
		slog.String("session_id", id),
		slog.String("input", input),
		slog.Int("block_size", params.BlockSize),
	)

	if t.opts.Observer != nil {
		t.opts.Observer.TranscodeStarted()
	}
	start := time.Now()
	s := &session{
		id:     id,
		input:  input,
		output: filepath.Join(t.opts.TempDir, outputPrefix+id+outputExt),
		params: params,
		opts:   &t.opts,
		logger: logger,
	}
	res := s.run(ctx)
	elapsed := time.Since(start)

	level := slog.LevelInfo
	if !res.OK() {
		level = slog.LevelError
	}
	logger.Log(ctx, level, "transcode finished",
		observability.Result(res),
		slog.Int("frames", s.frames),
		slog.Int("audio_samples", s.audioSamples),
		slog.Duration("duration", elapsed),
	)
	if t.opts.Observer != nil {
		var pool bufpool.Stats
		if s.pool != nil {
			pool = s.pool.Stats()
		}
		t.opts.Observer.TranscodeFinished(res, elapsed, pool)
	}
	return res
}
