package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/brickify/internal/bufpool"
	"github.com/jmylchreest/brickify/internal/container"
	"github.com/jmylchreest/brickify/internal/effect"
	"github.com/jmylchreest/brickify/internal/frame"
	"github.com/jmylchreest/brickify/internal/observability"
	"github.com/jmylchreest/brickify/internal/pipeline"
)

// RecordTimeScale is the video timescale of recordings.
const RecordTimeScale = 90000

var errRecordingAborted = errors.New("recording aborted")

const (
	defaultRecordQueue = 8
	defaultFrameTicks  = RecordTimeScale / 30
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// OutputDir receives the recording. It must exist. Defaults to
	// os.TempDir().
	OutputDir string
	// Width and Height are the recorded geometry. Frames of another size are
	// scaled.
	Width  int
	Height int
	// QueueSize bounds the frames waiting to be rendered. When full, the
	// oldest waiting frame is dropped.
	QueueSize int

	PoolSize         int
	FragmentDuration time.Duration
	JPEGQuality      int

	Renderer effect.Renderer
	// BlockSize is read once per frame when the frame is dequeued.
	BlockSize func() effect.Params
	Logger    *slog.Logger
}

// RecorderStats counts what happened to enqueued frames.
type RecorderStats struct {
	Enqueued int64
	Written  int64
	Dropped  int64
}

// Recorder writes live frames, with the effect applied, to a new video-only
// file. Frames are never read back.
type Recorder struct {
	opts   RecorderOptions
	logger *slog.Logger

	writer *container.Writer
	vin    *container.VideoInput
	pool   *bufpool.Pool
	queue  chan *frame.Frame

	mu      sync.Mutex
	closing bool

	abort     chan struct{}
	abortOnce sync.Once
	done      chan struct{}
	result    pipeline.Result

	baseTicks int64
	lastDTS   int64
	lastDelta uint32
	haveFirst bool

	enqueued atomic.Int64
	written  atomic.Int64
	dropped  atomic.Int64
}

// StartRecorder creates the output file and starts the recording worker. The
// worker stops with Failure(Cancelled) if ctx is cancelled.
func StartRecorder(ctx context.Context, opts RecorderOptions) (*Recorder, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultRecordQueue
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 2
	}
	if opts.Renderer == nil {
		opts.Renderer = effect.Brick{}
	}
	if opts.BlockSize == nil {
		opts.BlockSize = func() effect.Params { return effect.Params{BlockSize: effect.DefaultBlockSize} }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	path := filepath.Join(opts.OutputDir, "recording-"+uuid.NewString()+outputExt)
	w, err := container.NewWriter(path, container.WriterOptions{
		FragmentDuration: opts.FragmentDuration,
		JPEGQuality:      opts.JPEGQuality,
	})
	if err != nil {
		return nil, pipeline.NewError(pipeline.KindWriterCreationFailed, err)
	}
	vin, err := w.AddVideoInput(container.VideoInputConfig{
		Width:     opts.Width,
		Height:    opts.Height,
		TimeScale: RecordTimeScale,
	})
	if err != nil {
		return nil, pipeline.NewError(pipeline.KindVideoInputRejected, err)
	}
	pool, err := bufpool.New(bufpool.Config{
		Width:  opts.Width,
		Height: opts.Height,
		Size:   opts.PoolSize,
		Policy: bufpool.PolicyBlock,
	})
	if err != nil {
		return nil, pipeline.NewError(pipeline.KindPixelBufferExhausted, err)
	}
	if err := w.StartWriting(); err != nil {
		return nil, pipeline.NewError(pipeline.KindWriterCreationFailed, err)
	}

	r := &Recorder{
		opts:      opts,
		logger:    observability.WithComponent(logger, "recorder").With(slog.String("output", path)),
		writer:    w,
		vin:       vin,
		pool:      pool,
		queue:     make(chan *frame.Frame, opts.QueueSize),
		abort:     make(chan struct{}),
		done:      make(chan struct{}),
		lastDelta: defaultFrameTicks,
	}
	go r.run(ctx)
	r.logger.InfoContext(ctx, "recording started",
		slog.Int("width", opts.Width),
		slog.Int("height", opts.Height),
	)
	return r, nil
}

// Path returns the output location.
func (r *Recorder) Path() string { return r.writer.Path() }

// Enqueue offers a raw frame for recording without blocking. The frame is only
// read, never written, and must not be modified by the caller afterwards.
// It returns false once the recorder is stopping.
func (r *Recorder) Enqueue(f *frame.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return false
	}
	r.enqueued.Add(1)
	for {
		select {
		case r.queue <- f:
			return true
		default:
		}
		select {
		case <-r.queue:
			r.dropped.Add(1)
		default:
		}
	}
}

// Stop drains the queue, finalizes the file and returns the result. If ctx
// ends first the recording is abandoned and the result is Cancelled.
func (r *Recorder) Stop(ctx context.Context) pipeline.Result {
	r.closeQueue()
	select {
	case <-r.done:
	case <-ctx.Done():
		r.Abort()
	}
	<-r.done
	return r.result
}

// Abort abandons the recording, removing the partial file.
func (r *Recorder) Abort() pipeline.Result {
	r.abortOnce.Do(func() { close(r.abort) })
	r.closeQueue()
	<-r.done
	return r.result
}

// Done is closed once the recorder has produced its result.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Stats returns frame counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Enqueued: r.enqueued.Load(),
		Written:  r.written.Load(),
		Dropped:  r.dropped.Load(),
	}
}

func (r *Recorder) closeQueue() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closing {
		r.closing = true
		close(r.queue)
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	defer r.pool.Close()

	var scratch *frame.Frame
	for {
		if err := r.interrupted(ctx); err != nil {
			r.result = r.cancel(err)
			return
		}
		select {
		case <-ctx.Done():
			r.result = r.cancel(ctx.Err())
			return
		case <-r.abort:
			r.result = r.cancel(errRecordingAborted)
			return
		case f, ok := <-r.queue:
			if !ok {
				if err := r.interrupted(ctx); err != nil {
					r.result = r.cancel(err)
					return
				}
				r.vin.MarkFinished()
				r.result = finalize(r.writer)
				r.logger.Info("recording stopped",
					slog.Int64("frames", r.written.Load()),
					slog.Int64("dropped", r.dropped.Load()),
					slog.Bool("ok", r.result.OK()),
				)
				return
			}
			if f.Empty() {
				r.dropped.Add(1)
				continue
			}
			if scratch == nil || !scratch.SameGeometry(f) {
				scratch = frame.New(f.Width, f.Height)
			}
			if err := r.write(ctx, scratch, f); err != nil {
				r.writer.Cancel()
				r.result = pipeline.Failure(err)
				r.logger.Error("recording failed", observability.Err(err))
				return
			}
		}
	}
}

// interrupted reports an abort or context cancellation. Either takes priority
// over frames still queued.
func (r *Recorder) interrupted(ctx context.Context) error {
	select {
	case <-r.abort:
		return errRecordingAborted
	default:
	}
	return ctx.Err()
}

func (r *Recorder) cancel(cause error) pipeline.Result {
	r.writer.Cancel()
	r.logger.Info("recording cancelled", slog.Int64("frames", r.written.Load()))
	return pipeline.Failure(pipeline.NewError(pipeline.KindCancelled, cause))
}

// write renders f and appends it. Frames whose timestamp does not advance are
// dropped.
func (r *Recorder) write(ctx context.Context, scratch, f *frame.Frame) error {
	ticks := container.DurationToTicks(f.PTS, RecordTimeScale)
	if !r.haveFirst {
		r.baseTicks = ticks
	}
	dts := ticks - r.baseTicks
	if r.haveFirst && dts <= r.lastDTS {
		r.dropped.Add(1)
		return nil
	}
	if r.haveFirst {
		r.lastDelta = uint32(dts - r.lastDTS)
	}

	if err := r.opts.Renderer.RenderInto(scratch, f, r.opts.BlockSize()); err != nil {
		r.dropped.Add(1)
		r.logger.Debug("skipping unrenderable frame", observability.Err(err))
		return nil
	}

	buf, err := r.pool.Acquire(ctx)
	if err != nil {
		return poolErr(ctx, err)
	}
	defer func() { _ = r.pool.Release(buf) }()
	if err := scratch.CopyTo(buf); err != nil {
		return pipeline.NewError(pipeline.KindVideoInputRejected, err)
	}
	if err := r.vin.AppendFrame(buf, container.Timing{DTS: dts, Duration: r.lastDelta}); err != nil {
		return pipeline.NewError(pipeline.KindWriterFinalizeFailed, fmt.Errorf("frame at %s: %w", f.PTS, err))
	}
	r.haveFirst = true
	r.lastDTS = dts
	r.written.Add(1)
	return nil
}
