package container

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/jmylchreest/brickify/internal/codec"
	"github.com/jmylchreest/brickify/internal/frame"
)

// DefaultFragmentDuration is used when WriterOptions leaves it unset.
const DefaultFragmentDuration = time.Second

// Status is the writer lifecycle state.
type Status int

// Writer states.
const (
	StatusUnknown Status = iota
	StatusWriting
	StatusCompleted
	StatusFailed
	StatusCancelled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusWriting:
		return "writing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	// FragmentDuration is the amount of media buffered per track before a
	// moof+mdat pair is written.
	FragmentDuration time.Duration
	// JPEGQuality is used by video inputs.
	JPEGQuality int
}

// Writer muxes per-track inputs into a new fMP4 file. The file is created by
// StartWriting, never before, and removed again if the writer fails or is
// cancelled. Inputs may append from different goroutines; fragment writes are
// serialized.
type Writer struct {
	path string
	opts WriterOptions

	mu     sync.Mutex
	status Status
	err    error
	file   *os.File
	seq    uint32
	inputs []*trackInput
}

// NewWriter binds a writer to a fresh output location. The parent directory
// must exist and path must not.
func NewWriter(path string, opts WriterOptions) (*Writer, error) {
	if path == "" {
		return nil, errors.New("empty output path")
	}
	dir := filepath.Dir(path)
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("output directory %s is not a directory", dir)
	}
	if _, err := os.Lstat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrOutputExists, path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking output: %w", err)
	}
	if opts.FragmentDuration <= 0 {
		opts.FragmentDuration = DefaultFragmentDuration
	}
	return &Writer{path: path, opts: opts, seq: 1}, nil
}

// Path returns the output location.
func (w *Writer) Path() string { return w.path }

// Status returns the lifecycle state.
func (w *Writer) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Err returns the error that failed the writer, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// VideoInputConfig describes the video track to write.
type VideoInputConfig struct {
	Width     int
	Height    int
	TimeScale uint32
}

func (w *Writer) addInput(kind codec.Kind, c mp4.Codec, timeScale uint32) (*trackInput, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != StatusUnknown {
		return nil, ErrWritingStarted
	}
	if timeScale == 0 {
		return nil, errors.New("zero timescale")
	}
	for _, in := range w.inputs {
		if in.kind == kind {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInput, kind)
		}
	}
	in := &trackInput{
		w:         w,
		id:        len(w.inputs) + 1,
		kind:      kind,
		codec:     c,
		timeScale: timeScale,
		fragTicks: uint64(DurationToTicks(w.opts.FragmentDuration, timeScale)),
	}
	if in.fragTicks == 0 {
		in.fragTicks = 1
	}
	w.inputs = append(w.inputs, in)
	return in, nil
}

// AddVideoInput adds an MJPEG video track fed with raw frames.
func (w *Writer) AddVideoInput(cfg VideoInputConfig) (*VideoInput, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid video geometry %dx%d", cfg.Width, cfg.Height)
	}
	in, err := w.addInput(codec.KindVideo, &mp4.CodecMJPEG{Width: cfg.Width, Height: cfg.Height}, cfg.TimeScale)
	if err != nil {
		return nil, err
	}
	return &VideoInput{trackInput: in, cfg: cfg, encoder: codec.MJPEG{Quality: w.opts.JPEGQuality}}, nil
}

// AddAudioInput adds an audio track that receives compressed samples verbatim.
func (w *Writer) AddAudioInput(c mp4.Codec, timeScale uint32) (*AudioInput, error) {
	if codec.KindOf(c) != codec.KindAudio {
		return nil, fmt.Errorf("%w: %s is not an audio codec", ErrUnsupported, codec.Describe(c).Name)
	}
	in, err := w.addInput(codec.KindAudio, c, timeScale)
	if err != nil {
		return nil, err
	}
	return &AudioInput{trackInput: in}, nil
}

// StartWriting creates the output file and writes the initialization segment.
func (w *Writer) StartWriting() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != StatusUnknown {
		return ErrWritingStarted
	}
	if len(w.inputs) == 0 {
		return ErrNoInputs
	}

	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		w.status = StatusFailed
		w.err = fmt.Errorf("creating output: %w", err)
		return w.err
	}
	w.file = f
	w.status = StatusWriting

	init := &fmp4.Init{}
	for _, in := range w.inputs {
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        in.id,
			TimeScale: in.timeScale,
			Codec:     in.codec,
		})
	}
	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return w.failLocked(fmt.Errorf("marshaling init segment: %w", err))
	}
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return w.failLocked(fmt.Errorf("writing init segment: %w", err))
	}
	return nil
}

// Finalize flushes every input, marks them finished and closes the file. It
// returns the error that failed the writer. Finalizing a writer that never
// started leaves its status unchanged.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.status {
	case StatusWriting:
	case StatusFailed:
		return w.err
	default:
		return nil
	}

	for _, in := range w.inputs {
		if err := in.flushLocked(); err != nil {
			return w.failLocked(err)
		}
		in.finished = true
	}
	if err := w.file.Sync(); err != nil {
		return w.failLocked(fmt.Errorf("syncing output: %w", err))
	}
	if err := w.file.Close(); err != nil {
		w.file = nil
		return w.failLocked(fmt.Errorf("closing output: %w", err))
	}
	w.file = nil
	w.status = StatusCompleted
	return nil
}

// Cancel abandons the output. A completed file is left in place.
func (w *Writer) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.status {
	case StatusCompleted, StatusCancelled:
		return
	case StatusFailed:
		w.discardLocked()
		return
	}
	w.status = StatusCancelled
	w.discardLocked()
}

func (w *Writer) failLocked(err error) error {
	if w.status == StatusFailed {
		return w.err
	}
	w.status = StatusFailed
	w.err = err
	w.discardLocked()
	return err
}

// discardLocked closes and removes a partially written file.
func (w *Writer) discardLocked() {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
		_ = os.Remove(w.path)
	}
}

type pendingSample struct {
	Timing
	payload []byte
}

// trackInput is the per-track muxing state shared by video and audio inputs.
type trackInput struct {
	w         *Writer
	id        int
	kind      codec.Kind
	codec     mp4.Codec
	timeScale uint32
	fragTicks uint64

	pending      []pendingSample
	pendingTicks uint64
	lastDTS      int64
	appended     int
	finished     bool
}

// Ready reports whether the input accepts more samples.
func (in *trackInput) Ready() bool {
	in.w.mu.Lock()
	defer in.w.mu.Unlock()
	return in.w.status == StatusWriting && !in.finished
}

// Appended returns the number of samples accepted so far.
func (in *trackInput) Appended() int {
	in.w.mu.Lock()
	defer in.w.mu.Unlock()
	return in.appended
}

// TimeScale returns the track timescale.
func (in *trackInput) TimeScale() uint32 { return in.timeScale }

// MarkFinished flushes buffered samples and stops accepting new ones.
func (in *trackInput) MarkFinished() {
	in.w.mu.Lock()
	defer in.w.mu.Unlock()
	if in.finished || in.w.status != StatusWriting {
		in.finished = true
		return
	}
	in.finished = true
	if err := in.flushLocked(); err != nil {
		_ = in.w.failLocked(err)
	}
}

func (in *trackInput) append(t Timing, payload []byte) error {
	in.w.mu.Lock()
	defer in.w.mu.Unlock()
	if in.w.status != StatusWriting || in.finished {
		return ErrNotReady
	}
	if t.DTS < 0 {
		return fmt.Errorf("negative dts %d", t.DTS)
	}
	if in.appended > 0 && t.DTS <= in.lastDTS {
		return fmt.Errorf("%w: %d after %d", ErrNonMonotonic, t.DTS, in.lastDTS)
	}
	in.pending = append(in.pending, pendingSample{Timing: t, payload: payload})
	in.pendingTicks += uint64(t.Duration)
	in.lastDTS = t.DTS
	in.appended++

	if in.pendingTicks >= in.fragTicks {
		if err := in.flushHeldLocked(); err != nil {
			return in.w.failLocked(err)
		}
	}
	return nil
}

// flushHeldLocked writes all but the newest pending sample. The held sample
// opens the next fragment, so the last written duration still reaches the next
// decode time and the timeline has no holes between fragments.
func (in *trackInput) flushHeldLocked() error {
	n := len(in.pending)
	if n < 2 {
		return nil
	}
	held := in.pending[n-1]
	if err := in.writeLocked(in.pending[:n-1], held.DTS); err != nil {
		return err
	}
	in.pending = append(in.pending[:0], held)
	in.pendingTicks = uint64(held.Duration)
	return nil
}

// flushLocked writes every pending sample. The last one keeps its own
// duration.
func (in *trackInput) flushLocked() error {
	if len(in.pending) == 0 {
		return nil
	}
	if err := in.writeLocked(in.pending, -1); err != nil {
		return err
	}
	in.pending = in.pending[:0]
	in.pendingTicks = 0
	return nil
}

// writeLocked writes pending as one single-track fragment. Sample durations
// are taken from DTS deltas so decode times survive exactly. A non-negative
// nextDTS sets the duration of the last sample.
func (in *trackInput) writeLocked(pending []pendingSample, nextDTS int64) error {
	samples := make([]*fmp4.Sample, len(pending))
	for i, p := range pending {
		d := p.Duration
		switch {
		case i+1 < len(pending):
			d = uint32(pending[i+1].DTS - p.DTS)
		case nextDTS >= 0:
			d = uint32(nextDTS - p.DTS)
		}
		samples[i] = &fmp4.Sample{
			Duration:        d,
			PTSOffset:       p.PTSOffset,
			IsNonSyncSample: !p.Sync,
			Payload:         p.payload,
		}
	}
	part := &fmp4.Part{
		SequenceNumber: in.w.seq,
		Tracks: []*fmp4.PartTrack{{
			ID:       in.id,
			BaseTime: uint64(pending[0].DTS),
			Samples:  samples,
		}},
	}

	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return fmt.Errorf("marshaling fragment %d: %w", in.w.seq, err)
	}
	if _, err := in.w.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing fragment %d: %w", in.w.seq, err)
	}
	in.w.seq++
	return nil
}

// VideoInput encodes raw frames into the MJPEG video track.
type VideoInput struct {
	*trackInput
	cfg     VideoInputConfig
	encoder codec.MJPEG
}

// Config returns the track geometry.
func (v *VideoInput) Config() VideoInputConfig { return v.cfg }

// AppendFrame encodes f and appends it at t. The frame can be reused as soon as
// this returns.
func (v *VideoInput) AppendFrame(f *frame.Frame, t Timing) error {
	if f.Width != v.cfg.Width || f.Height != v.cfg.Height {
		return fmt.Errorf("%w: got %dx%d, track is %dx%d", frame.ErrGeometryMismatch,
			f.Width, f.Height, v.cfg.Width, v.cfg.Height)
	}
	if !v.Ready() {
		return ErrNotReady
	}
	payload, err := v.encoder.Encode(f)
	if err != nil {
		return err
	}
	t.Sync = true
	return v.append(t, payload)
}

// AudioInput appends compressed audio samples verbatim.
type AudioInput struct {
	*trackInput
}

// AppendSample appends s unchanged.
func (a *AudioInput) AppendSample(s Sample) error {
	return a.append(s.Timing, s.Payload)
}
