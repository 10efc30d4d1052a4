// Package live renders a push stream of captured frames with the brick effect,
// keeping only the most recent frame when rendering falls behind.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/brickify/internal/capture"
	"github.com/jmylchreest/brickify/internal/effect"
	"github.com/jmylchreest/brickify/internal/frame"
	"github.com/jmylchreest/brickify/internal/observability"
	"github.com/jmylchreest/brickify/internal/pipeline"
	"github.com/jmylchreest/brickify/internal/snapshot"
	"github.com/jmylchreest/brickify/internal/transcode"
)

// Processor errors.
var (
	ErrNoFrame          = errors.New("no processed frame yet")
	ErrNoSaver          = errors.New("snapshots are not configured")
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("not recording")
	ErrClosed           = errors.New("processor closed")
)

// Observer receives per-frame events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	FrameCaptured()
	FrameDropped()
	FrameRendered(latency time.Duration)
	RenderFailed()
}

// Published is the latest raw and processed frame pair. Both frames are
// read-only.
type Published struct {
	Raw       *frame.Frame
	Processed *frame.Frame
	Sequence  uint64
	BlockSize int
	At        time.Time
}

// Stats is a point-in-time view of the processor.
type Stats struct {
	Available      bool
	Captured       uint64
	Rendered       uint64
	Dropped        uint64
	RenderFailures uint64
	Sequence       uint64
	BlockSize      int
	Recording      bool
	Subscribers    int
}

// Options configures a Processor.
type Options struct {
	Source    capture.Source
	Bounds    effect.Bounds
	BlockSize int
	Renderer  effect.Renderer
	Saver     snapshot.Saver
	// Recording is the template for recordings. Width and Height, when zero,
	// are taken from the latest captured frame.
	Recording transcode.RecorderOptions
	Observer  Observer
	Logger    *slog.Logger
}

// Processor bridges a capture source to the renderer through a single worker.
type Processor struct {
	opts   Options
	logger *slog.Logger

	pending chan *frame.Frame

	startOnce sync.Once
	available atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closing   chan struct{}
	closeOnce sync.Once

	blockSize atomic.Int64

	mu        sync.RWMutex
	published *Published
	sequence  uint64
	subs      map[chan Published]struct{}
	closed    bool

	recMu    sync.Mutex
	recorder *transcode.Recorder

	captured       atomic.Uint64
	rendered       atomic.Uint64
	dropped        atomic.Uint64
	renderFailures atomic.Uint64
}

// New creates an idle processor.
func New(opts Options) *Processor {
	if opts.Source == nil {
		opts.Source = capture.Unavailable{}
	}
	if opts.Bounds == (effect.Bounds{}) {
		opts.Bounds = effect.DefaultBounds()
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = effect.DefaultBlockSize
	}
	if opts.Renderer == nil {
		opts.Renderer = effect.Brick{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		opts:    opts,
		logger:  observability.WithComponent(logger, "live"),
		pending: make(chan *frame.Frame, 1),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		subs:    make(map[chan Published]struct{}),
	}
	p.blockSize.Store(int64(opts.Bounds.Clamp(opts.BlockSize)))
	return p
}

// Start starts the capture source and the render worker. If the source cannot
// start, the processor stays idle and Start returns CaptureUnavailable. Only
// the first call has any effect.
func (p *Processor) Start(ctx context.Context) error {
	var err error
	p.startOnce.Do(func() {
		p.ctx, p.cancel = context.WithCancel(ctx)
		if startErr := p.opts.Source.Start(p.ctx, p.onFrame); startErr != nil {
			p.cancel()
			close(p.done)
			p.logger.WarnContext(ctx, "capture unavailable",
				slog.String("source", p.opts.Source.Name()),
				observability.Err(startErr),
			)
			err = pipeline.NewError(pipeline.KindCaptureUnavailable, startErr)
			return
		}
		p.available.Store(true)
		go p.run()
		p.logger.InfoContext(ctx, "live capture started",
			slog.String("source", p.opts.Source.Name()),
			slog.Int("block_size", p.BlockSize()),
		)
	})
	return err
}

// Available reports whether capture is running.
func (p *Processor) Available() bool { return p.available.Load() }

// onFrame runs on the capture goroutine and never blocks. A frame waiting for
// the worker is replaced by the newer one.
func (p *Processor) onFrame(f *frame.Frame) {
	p.captured.Add(1)
	p.opts.Observer.FrameCaptured()

	p.recMu.Lock()
	if p.recorder != nil {
		p.recorder.Enqueue(f)
	}
	p.recMu.Unlock()

	for {
		select {
		case p.pending <- f:
			return
		default:
		}
		select {
		case <-p.pending:
			p.dropped.Add(1)
			p.opts.Observer.FrameDropped()
		default:
		}
	}
}

func (p *Processor) run() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case f := <-p.pending:
			p.process(f)
		}
	}
}

func (p *Processor) process(raw *frame.Frame) {
	params := p.opts.Bounds.Params(p.BlockSize())
	start := time.Now()
	out := p.opts.Renderer.Render(raw, params)
	if out.Empty() {
		p.renderFailures.Add(1)
		p.opts.Observer.RenderFailed()
		p.logger.Debug("skipping frame that cannot be rendered",
			slog.Int("width", raw.Width),
			slog.Int("height", raw.Height),
			slog.String("format", raw.Format.String()),
		)
		return
	}
	p.rendered.Add(1)
	p.opts.Observer.FrameRendered(time.Since(start))
	p.publish(raw, out, params.BlockSize)
}

func (p *Processor) publish(raw, processed *frame.Frame, blockSize int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequence++
	pub := &Published{
		Raw:       raw,
		Processed: processed,
		Sequence:  p.sequence,
		BlockSize: blockSize,
		At:        time.Now(),
	}
	p.published = pub
	for ch := range p.subs {
		offer(ch, *pub)
	}
}

// offer replaces any unread value in a capacity-1 channel.
func offer(ch chan Published, v Published) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Latest returns the most recently published pair.
func (p *Processor) Latest() (Published, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.published == nil {
		return Published{}, false
	}
	return *p.published, true
}

// Subscribe returns a channel that always holds the newest publication not
// yet read. It is closed when ctx ends or the processor closes.
func (p *Processor) Subscribe(ctx context.Context) <-chan Published {
	ch := make(chan Published, 1)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(ch)
		return ch
	}
	p.subs[ch] = struct{}{}
	if p.published != nil {
		ch <- *p.published
	}
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-p.closing:
		}
		p.unsubscribe(ch)
	}()
	return ch
}

func (p *Processor) unsubscribe(ch chan Published) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[ch]; ok {
		delete(p.subs, ch)
		close(ch)
	}
}

// BlockSize returns the block size applied to the next processed frame.
func (p *Processor) BlockSize() int { return int(p.blockSize.Load()) }

// IncreaseBlockSize steps the block size up, saturating at the maximum.
func (p *Processor) IncreaseBlockSize() int {
	return p.updateBlockSize(p.opts.Bounds.Increase)
}

// DecreaseBlockSize steps the block size down, saturating at the minimum.
func (p *Processor) DecreaseBlockSize() int {
	return p.updateBlockSize(p.opts.Bounds.Decrease)
}

func (p *Processor) updateBlockSize(step func(int) int) int {
	for {
		cur := p.blockSize.Load()
		next := int64(step(int(cur)))
		if p.blockSize.CompareAndSwap(cur, next) {
			return int(next)
		}
	}
}

// TakePhoto saves the latest processed frame and returns its location.
func (p *Processor) TakePhoto(ctx context.Context) (string, error) {
	if p.opts.Saver == nil {
		return "", ErrNoSaver
	}
	pub, ok := p.Latest()
	if !ok {
		return "", ErrNoFrame
	}
	path, err := p.opts.Saver.Save(ctx, pub.Processed)
	if err != nil {
		return "", fmt.Errorf("saving photo: %w", err)
	}
	p.logger.InfoContext(ctx, "photo saved",
		slog.String("path", path),
		slog.Uint64("sequence", pub.Sequence),
	)
	return path, nil
}

// StartRecording begins writing the raw stream, with the effect applied, to a
// new file. The recording outlives ctx and ends with StopRecording or Close.
func (p *Processor) StartRecording(ctx context.Context) error {
	if !p.Available() {
		return pipeline.ErrCaptureUnavailable
	}
	p.recMu.Lock()
	defer p.recMu.Unlock()
	if p.recorder != nil {
		return ErrAlreadyRecording
	}

	opts := p.opts.Recording
	if opts.Width == 0 || opts.Height == 0 {
		pub, ok := p.Latest()
		if !ok {
			return ErrNoFrame
		}
		opts.Width, opts.Height = pub.Raw.Width, pub.Raw.Height
	}
	opts.Renderer = p.opts.Renderer
	opts.BlockSize = func() effect.Params { return p.opts.Bounds.Params(p.BlockSize()) }
	opts.Logger = p.logger

	rec, err := transcode.StartRecorder(p.ctx, opts)
	if err != nil {
		return err
	}
	p.recorder = rec
	p.logger.InfoContext(ctx, "recording started", slog.String("path", rec.Path()))
	return nil
}

// StopRecording finalizes the current recording and returns its result.
func (p *Processor) StopRecording(ctx context.Context) (pipeline.Result, error) {
	p.recMu.Lock()
	rec := p.recorder
	p.recorder = nil
	p.recMu.Unlock()
	if rec == nil {
		return pipeline.Result{}, ErrNotRecording
	}
	res := rec.Stop(ctx)
	stats := rec.Stats()
	p.logger.InfoContext(ctx, "recording finished",
		slog.Bool("ok", res.OK()),
		slog.String("path", res.Location),
		slog.Int64("frames", stats.Written),
		slog.Int64("dropped", stats.Dropped),
	)
	return res, nil
}

// Recording reports whether a recording is in progress.
func (p *Processor) Recording() bool {
	p.recMu.Lock()
	defer p.recMu.Unlock()
	return p.recorder != nil
}

// Stats returns current counters.
func (p *Processor) Stats() Stats {
	p.mu.RLock()
	seq, subs := p.sequence, len(p.subs)
	p.mu.RUnlock()
	return Stats{
		Available:      p.Available(),
		Captured:       p.captured.Load(),
		Rendered:       p.rendered.Load(),
		Dropped:        p.dropped.Load(),
		RenderFailures: p.renderFailures.Load(),
		Sequence:       seq,
		BlockSize:      p.BlockSize(),
		Recording:      p.Recording(),
		Subscribers:    subs,
	}
}

// Close stops capture and the worker, abandons any recording and closes every
// subscription.
func (p *Processor) Close() {
	p.closeOnce.Do(func() { close(p.closing) })
	p.startOnce.Do(func() { close(p.done) })
	if p.available.Swap(false) {
		p.opts.Source.Stop()
	}
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done

	p.recMu.Lock()
	rec := p.recorder
	p.recorder = nil
	p.recMu.Unlock()
	if rec != nil {
		res := rec.Abort()
		p.logger.Warn("recording abandoned by close",
			slog.String("path", rec.Path()),
			slog.Int64("frames", rec.Stats().Written),
			observability.Result(res),
		)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for ch := range p.subs {
		delete(p.subs, ch)
		close(ch)
	}
}

type nopObserver struct{}

func (nopObserver) FrameCaptured()              {}
func (nopObserver) FrameDropped()               {}
func (nopObserver) FrameRendered(time.Duration) {}
func (nopObserver) RenderFailed()               {}
