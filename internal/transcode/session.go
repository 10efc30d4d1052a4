package transcode

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/jmylchreest/brickify/internal/bufpool"
	"github.com/jmylchreest/brickify/internal/codec"
	"github.com/jmylchreest/brickify/internal/container"
	"github.com/jmylchreest/brickify/internal/effect"
	"github.com/jmylchreest/brickify/internal/frame"
	"github.com/jmylchreest/brickify/internal/observability"
	"github.com/jmylchreest/brickify/internal/pipeline"
	"golang.org/x/sync/errgroup"
)

// session is one run from source to output. It is created when the run begins
// and discarded once the result is returned.
type session struct {
	id     string
	input  string
	output string
	params effect.Params
	opts   *Options
	logger *slog.Logger

	state State

	asset  *container.Asset
	reader *container.Reader
	writer *container.Writer
	vout   *container.VideoOutput
	aout   *container.AudioOutput
	vin    *container.VideoInput
	ain    *container.AudioInput
	pool   *bufpool.Pool

	frames       int
	audioSamples int
}

func (s *session) setState(st State) {
	s.state = st
	s.logger.Debug("transcode state", slog.String("state", st.String()))
	if s.opts.OnState != nil {
		s.opts.OnState(s.id, st)
	}
}

func (s *session) run(ctx context.Context) pipeline.Result {
	res := s.execute(ctx)
	if s.asset != nil {
		_ = s.asset.Close()
	}
	if res.OK() {
		s.setState(StateCompleted)
	} else {
		s.setState(StateFailed)
	}
	return res
}

func (s *session) execute(ctx context.Context) pipeline.Result {
	s.setState(StateConfiguring)
	if err := s.configure(); err != nil {
		return pipeline.Failure(err)
	}

	if err := s.reader.Start(); err != nil {
		s.discard()
		return pipeline.Failure(pipeline.NewError(pipeline.KindReaderFailed, err))
	}
	if err := s.writer.StartWriting(); err != nil {
		s.discard()
		return pipeline.Failure(pipeline.NewError(pipeline.KindWriterCreationFailed, err))
	}

	s.setState(StateRunning)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.audioLoop(gctx) })
	g.Go(func() error { return s.videoLoop(gctx) })
	if err := g.Wait(); err != nil {
		s.discard()
		if ctx.Err() != nil {
			return pipeline.Failure(pipeline.NewError(pipeline.KindCancelled, ctx.Err()))
		}
		return pipeline.Failure(err)
	}
	if err := ctx.Err(); err != nil {
		s.discard()
		return pipeline.Failure(pipeline.NewError(pipeline.KindCancelled, err))
	}

	s.setState(StateFinalizing)
	res := finalize(s.writer)
	if n := s.pool.Close(); n > 0 {
		s.logger.Warn("pixel buffers outstanding at finalize", slog.Int("count", n))
	}
	return res
}

// configure opens the source and builds the reader/writer pair. Nothing is
// written to the output location here.
func (s *session) configure() error {
	asset, err := container.LoadAsset(s.input)
	if err != nil {
		return pipeline.NewError(pipeline.KindSourceUnavailable, err)
	}
	s.asset = asset

	videos := asset.TracksOfKind(codec.KindVideo)
	audios := asset.TracksOfKind(codec.KindAudio)
	if len(videos) == 0 || len(audios) == 0 {
		return pipeline.NewError(pipeline.KindSourceTrackMissing, missingTrackErr(len(videos), len(audios)))
	}
	if len(videos) > 1 || len(audios) > 1 {
		s.logger.Debug("source has extra tracks, using the first of each kind",
			slog.Int("video_tracks", len(videos)),
			slog.Int("audio_tracks", len(audios)),
		)
	}
	vt, at := videos[0], audios[0]

	comp := container.NewComposition()
	if err := comp.InsertTrack(vt, container.FullRange(vt)); err != nil {
		return pipeline.NewError(pipeline.KindCompositionFailure, err)
	}
	if err := comp.InsertTrack(at, container.FullRange(at)); err != nil {
		return pipeline.NewError(pipeline.KindCompositionFailure, err)
	}

	if s.reader, err = container.NewReader(asset, comp); err != nil {
		return pipeline.NewError(pipeline.KindReaderCreationFailed, err)
	}
	s.writer, err = container.NewWriter(s.output, container.WriterOptions{
		FragmentDuration: s.opts.FragmentDuration,
		JPEGQuality:      s.opts.JPEGQuality,
	})
	if err != nil {
		return pipeline.NewError(pipeline.KindWriterCreationFailed, err)
	}

	if s.vout, err = s.reader.AddVideoOutput(vt, codec.MJPEG{}); err != nil {
		return pipeline.NewError(pipeline.KindVideoOutputRejected, err)
	}
	if s.aout, err = s.reader.AddAudioOutput(at); err != nil {
		return pipeline.NewError(pipeline.KindAudioOutputRejected, err)
	}

	width, height := s.outputGeometry(vt)
	s.vin, err = s.writer.AddVideoInput(container.VideoInputConfig{
		Width:     width,
		Height:    height,
		TimeScale: vt.TimeScale,
	})
	if err != nil {
		return pipeline.NewError(pipeline.KindVideoInputRejected, err)
	}
	if s.ain, err = s.writer.AddAudioInput(at.Codec, at.TimeScale); err != nil {
		return pipeline.NewError(pipeline.KindAudioInputRejected, err)
	}

	s.pool, err = bufpool.New(bufpool.Config{
		Width:    width,
		Height:   height,
		Size:     s.opts.PoolSize,
		Policy:   s.opts.PoolPolicy,
		MaxBytes: s.opts.PoolMaxBytes,
	})
	if err != nil {
		return pipeline.NewError(pipeline.KindPixelBufferExhausted, err)
	}

	s.logger.Debug("transcode configured",
		slog.String("video_codec", vt.CodecName()),
		slog.String("audio_codec", at.CodecName()),
		slog.Int("width", width),
		slog.Int("height", height),
		slog.Int("video_samples", vt.SampleCount),
		slog.Int("audio_samples", at.SampleCount),
	)
	return nil
}

func (s *session) outputGeometry(vt *container.Track) (int, int) {
	if s.opts.Width > 0 && s.opts.Height > 0 {
		return s.opts.Width, s.opts.Height
	}
	if c, ok := vt.Codec.(*mp4.CodecMJPEG); ok {
		return c.Width, c.Height
	}
	return 0, 0
}

// audioLoop copies every audio sample verbatim.
func (s *session) audioLoop(ctx context.Context) error {
	for s.ain.Ready() {
		sample, err := s.aout.NextSample(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return readErr(ctx, err)
		}
		if err := s.ain.AppendSample(sample); err != nil {
			return pipeline.NewError(pipeline.KindWriterFinalizeFailed, err)
		}
		s.audioSamples++
	}
	s.ain.MarkFinished()
	return nil
}

// videoLoop renders every decoded frame into a pool buffer at the output
// geometry and appends it at its original timestamps.
func (s *session) videoLoop(ctx context.Context) error {
	var scratch *frame.Frame
	for s.vin.Ready() {
		f, timing, err := s.vout.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return readErr(ctx, err)
		}

		if scratch == nil || !scratch.SameGeometry(f) {
			scratch = frame.New(f.Width, f.Height)
		}
		if err := s.opts.Renderer.RenderInto(scratch, f, s.params); err != nil {
			return pipeline.NewError(pipeline.KindReaderFailed, err)
		}
		if err := s.appendRendered(ctx, scratch, timing); err != nil {
			return err
		}
		s.frames++
	}
	s.vin.MarkFinished()
	return nil
}

func (s *session) appendRendered(ctx context.Context, rendered *frame.Frame, timing container.Timing) error {
	buf, err := s.pool.Acquire(ctx)
	if err != nil {
		return poolErr(ctx, err)
	}
	defer func() {
		if err := s.pool.Release(buf); err != nil {
			s.logger.Warn("releasing pixel buffer", observability.Err(err))
		}
	}()

	if err := rendered.CopyTo(buf); err != nil {
		return pipeline.NewError(pipeline.KindVideoInputRejected, err)
	}
	if err := s.vin.AppendFrame(buf, timing); err != nil {
		return pipeline.NewError(pipeline.KindWriterFinalizeFailed, err)
	}
	return nil
}

// discard aborts a run that will not be finalized.
func (s *session) discard() {
	if s.reader != nil {
		s.reader.Cancel()
	}
	if s.writer != nil {
		s.writer.Cancel()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func readErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, container.ErrCancelled) {
		return pipeline.NewError(pipeline.KindCancelled, err)
	}
	return pipeline.NewError(pipeline.KindReaderFailed, err)
}

func poolErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, bufpool.ErrExhausted):
		return pipeline.NewError(pipeline.KindPixelBufferExhausted, err)
	case ctx.Err() != nil, errors.Is(err, bufpool.ErrClosed):
		return pipeline.NewError(pipeline.KindCancelled, err)
	default:
		return pipeline.NewError(pipeline.KindPixelBufferExhausted, err)
	}
}

func missingTrackErr(video, audio int) error {
	switch {
	case video == 0 && audio == 0:
		return errors.New("source has neither a video nor an audio track")
	case video == 0:
		return errors.New("source has no video track")
	default:
		return errors.New("source has no audio track")
	}
}
