package container

import (
	"context"
	"errors"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/jmylchreest/brickify/internal/codec"
	"github.com/jmylchreest/brickify/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	videoTimeScale = 90000
	frameTicks     = 3000 // 30 fps
	audioTimeScale = 8000
	audioTicks     = 160
)

func solid(w, h int, c color.RGBA) *frame.Frame {
	f := frame.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := f.Offset(x, y)
			f.Data[o], f.Data[o+1], f.Data[o+2], f.Data[o+3] = c.R, c.G, c.B, c.A
		}
	}
	return f
}

func lpcm() mp4.Codec {
	return &mp4.CodecLPCM{BitDepth: 16, SampleRate: audioTimeScale, ChannelCount: 1}
}

// writeFixture writes frames video samples and samples audio samples.
func writeFixture(t *testing.T, path string, frames, samples int) {
	t.Helper()
	w, err := NewWriter(path, WriterOptions{FragmentDuration: 100 * time.Millisecond})
	require.NoError(t, err)

	var vin *VideoInput
	if frames > 0 {
		vin, err = w.AddVideoInput(VideoInputConfig{Width: 32, Height: 16, TimeScale: videoTimeScale})
		require.NoError(t, err)
	}
	var ain *AudioInput
	if samples > 0 {
		ain, err = w.AddAudioInput(lpcm(), audioTimeScale)
		require.NoError(t, err)
	}
	require.NoError(t, w.StartWriting())

	for i := 0; i < frames; i++ {
		f := solid(32, 16, color.RGBA{R: uint8(i * 20), G: 100, B: 50, A: 255})
		require.NoError(t, vin.AppendFrame(f, Timing{DTS: int64(i * frameTicks), Duration: frameTicks}))
	}
	for i := 0; i < samples; i++ {
		payload := make([]byte, audioTicks*2)
		for j := range payload {
			payload[j] = byte(i + j)
		}
		require.NoError(t, ain.AppendSample(Sample{
			Timing:  Timing{DTS: int64(i * audioTicks), Duration: audioTicks, Sync: true},
			Payload: payload,
		}))
	}
	require.NoError(t, w.Finalize())
	require.Equal(t, StatusCompleted, w.Status())
}

func TestTicksConversion(t *testing.T) {
	assert.Equal(t, time.Second, TicksToDuration(90000, 90000))
	assert.Equal(t, 33333333*time.Nanosecond, TicksToDuration(3000, 90000))
	assert.Equal(t, time.Duration(0), TicksToDuration(5, 0))
	assert.Equal(t, int64(45000), DurationToTicks(500*time.Millisecond, 90000))
	assert.Equal(t, 24*time.Hour, TicksToDuration(DurationToTicks(24*time.Hour, 48000), 48000))
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.mp4")
	writeFixture(t, path, 12, 40)

	a, err := LoadAsset(path)
	require.NoError(t, err)
	defer a.Close()

	require.Len(t, a.Tracks, 2)
	video := a.TracksOfKind(codec.KindVideo)
	audio := a.TracksOfKind(codec.KindAudio)
	require.Len(t, video, 1)
	require.Len(t, audio, 1)

	assert.Equal(t, "mjpeg", video[0].CodecName())
	assert.Equal(t, 12, video[0].SampleCount)
	assert.Equal(t, uint64(12*frameTicks), video[0].Duration)
	assert.Equal(t, 400*time.Millisecond, video[0].DurationTime())
	assert.Equal(t, 40, audio[0].SampleCount)
	assert.Equal(t, uint64(40*audioTicks), audio[0].Duration)
	assert.Greater(t, a.FragmentCount(), 2)

	comp := NewComposition()
	require.NoError(t, comp.InsertTrack(video[0], FullRange(video[0])))
	require.NoError(t, comp.InsertTrack(audio[0], FullRange(audio[0])))

	r, err := NewReader(a, comp)
	require.NoError(t, err)
	vout, err := r.AddVideoOutput(video[0], codec.MJPEG{})
	require.NoError(t, err)
	aout, err := r.AddAudioOutput(audio[0])
	require.NoError(t, err)
	require.NoError(t, r.Start())

	ctx := context.Background()
	for i := 0; ; i++ {
		f, tm, err := vout.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			assert.Equal(t, 12, i)
			break
		}
		require.NoError(t, err)
		assert.Equal(t, int64(i*frameTicks), tm.DTS)
		assert.Equal(t, uint32(frameTicks), tm.Duration)
		assert.True(t, tm.Sync)
		assert.Equal(t, 32, f.Width)
		assert.InDelta(t, i*20, int(f.Data[f.Offset(4, 4)]), 10)
	}

	for i := 0; ; i++ {
		s, err := aout.NextSample(ctx)
		if errors.Is(err, io.EOF) {
			assert.Equal(t, 40, i)
			break
		}
		require.NoError(t, err)
		assert.Equal(t, int64(i*audioTicks), s.DTS)
		require.Len(t, s.Payload, audioTicks*2)
		assert.Equal(t, byte(i), s.Payload[0])
		assert.Equal(t, byte(i+7), s.Payload[7])
	}
}

func TestLoadAsset_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadAsset(filepath.Join(dir, "missing.mp4"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	junk := filepath.Join(dir, "junk.mp4")
	require.NoError(t, os.WriteFile(junk, []byte("this is not an mp4 container at all"), 0o644))
	_, err = LoadAsset(junk)
	assert.ErrorIs(t, err, ErrNotFMP4)

	empty := filepath.Join(dir, "empty.mp4")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = LoadAsset(empty)
	assert.ErrorIs(t, err, ErrNotFMP4)
}

func TestComposition_InsertTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.mp4")
	writeFixture(t, path, 3, 3)
	a, err := LoadAsset(path)
	require.NoError(t, err)
	defer a.Close()

	v := a.TracksOfKind(codec.KindVideo)[0]
	comp := NewComposition()
	assert.Error(t, comp.InsertTrack(nil, TimeRange{}))
	assert.Error(t, comp.InsertTrack(v, TimeRange{Duration: 0}))
	assert.Error(t, comp.InsertTrack(v, TimeRange{Duration: v.Duration + 1}))
	require.NoError(t, comp.InsertTrack(v, FullRange(v)))
	assert.Error(t, comp.InsertTrack(v, FullRange(v)), "one track per kind")

	seg, ok := comp.Segment(codec.KindVideo)
	require.True(t, ok)
	assert.Same(t, v, seg.Track)
	_, ok = comp.Segment(codec.KindAudio)
	assert.False(t, ok)
}

func TestComposition_PartialRangeShiftsTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.mp4")
	writeFixture(t, path, 6, 0)
	a, err := LoadAsset(path)
	require.NoError(t, err)
	defer a.Close()

	v := a.Tracks[0]
	comp := NewComposition()
	require.NoError(t, comp.InsertTrack(v, TimeRange{Start: 2 * frameTicks, Duration: 3 * frameTicks}))
	r, err := NewReader(a, comp)
	require.NoError(t, err)
	out, err := r.AddVideoOutput(v, codec.MJPEG{})
	require.NoError(t, err)
	require.NoError(t, r.Start())

	var dts []int64
	for {
		_, tm, err := out.NextFrame(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		dts = append(dts, tm.DTS)
	}
	assert.Equal(t, []int64{0, frameTicks, 2 * frameTicks}, dts)
}

func TestReader_Rejections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.mp4")
	writeFixture(t, path, 2, 2)
	a, err := LoadAsset(path)
	require.NoError(t, err)
	defer a.Close()

	v := a.TracksOfKind(codec.KindVideo)[0]
	au := a.TracksOfKind(codec.KindAudio)[0]

	_, err = NewReader(a, NewComposition())
	assert.Error(t, err)

	comp := NewComposition()
	require.NoError(t, comp.InsertTrack(v, FullRange(v)))
	r, err := NewReader(a, comp)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Start(), ErrNoOutputs)

	_, err = r.AddVideoOutput(au, codec.MJPEG{})
	assert.ErrorIs(t, err, ErrUnsupported, "audio track behind a video output")
	_, err = r.AddAudioOutput(au)
	assert.ErrorIs(t, err, ErrTrackNotFound, "track outside the composition")

	_, err = r.AddVideoOutput(v, codec.MJPEG{})
	require.NoError(t, err)
	_, err = r.AddVideoOutput(v, codec.MJPEG{})
	assert.Error(t, err, "duplicate output")

	require.NoError(t, r.Start())
	_, err = r.AddAudioOutput(au)
	assert.ErrorIs(t, err, ErrReaderStarted)
}

func TestReader_Cancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.mp4")
	writeFixture(t, path, 20, 0)
	a, err := LoadAsset(path)
	require.NoError(t, err)
	defer a.Close()

	v := a.Tracks[0]
	comp := NewComposition()
	require.NoError(t, comp.InsertTrack(v, FullRange(v)))
	r, err := NewReader(a, comp)
	require.NoError(t, err)
	out, err := r.AddVideoOutput(v, codec.MJPEG{})
	require.NoError(t, err)
	require.NoError(t, r.Start())

	r.Cancel()
	r.Cancel()
	_, _, err = out.NextFrame(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestWriter_DoesNotTouchOutputBeforeStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")
	w, err := NewWriter(path, WriterOptions{})
	require.NoError(t, err)
	_, err = w.AddVideoInput(VideoInputConfig{Width: 4, Height: 4, TimeScale: 90000})
	require.NoError(t, err)

	assert.NoFileExists(t, path)
	w.Cancel()
	assert.Equal(t, StatusCancelled, w.Status())
	assert.NoFileExists(t, path)
}

func TestWriter_Rejections(t *testing.T) {
	dir := t.TempDir()

	_, err := NewWriter(filepath.Join(dir, "nope", "out.mp4"), WriterOptions{})
	assert.Error(t, err)

	existing := filepath.Join(dir, "taken.mp4")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))
	_, err = NewWriter(existing, WriterOptions{})
	assert.ErrorIs(t, err, ErrOutputExists)

	w, err := NewWriter(filepath.Join(dir, "out.mp4"), WriterOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, w.StartWriting(), ErrNoInputs)

	_, err = w.AddVideoInput(VideoInputConfig{Width: 0, Height: 4, TimeScale: 90000})
	assert.Error(t, err)
	_, err = w.AddAudioInput(&mp4.CodecMJPEG{Width: 4, Height: 4}, 90000)
	assert.ErrorIs(t, err, ErrUnsupported)

	vin, err := w.AddVideoInput(VideoInputConfig{Width: 4, Height: 4, TimeScale: 90000})
	require.NoError(t, err)
	_, err = w.AddVideoInput(VideoInputConfig{Width: 4, Height: 4, TimeScale: 90000})
	assert.ErrorIs(t, err, ErrDuplicateInput)

	assert.False(t, vin.Ready(), "not ready before writing starts")
	assert.ErrorIs(t, vin.AppendFrame(frame.New(4, 4), Timing{Duration: 1}), ErrNotReady)

	require.NoError(t, w.StartWriting())
	_, err = w.AddAudioInput(lpcm(), audioTimeScale)
	assert.ErrorIs(t, err, ErrWritingStarted)

	assert.ErrorIs(t, vin.AppendFrame(frame.New(8, 8), Timing{Duration: 1}), frame.ErrGeometryMismatch)
	require.NoError(t, vin.AppendFrame(frame.New(4, 4), Timing{DTS: 10, Duration: 1}))
	assert.ErrorIs(t, vin.AppendFrame(frame.New(4, 4), Timing{DTS: 10, Duration: 1}), ErrNonMonotonic)
	assert.Equal(t, 1, vin.Appended())

	vin.MarkFinished()
	assert.False(t, vin.Ready())
	assert.ErrorIs(t, vin.AppendFrame(frame.New(4, 4), Timing{DTS: 20, Duration: 1}), ErrNotReady)

	require.NoError(t, w.Finalize())
	assert.Equal(t, StatusCompleted, w.Status())
	assert.FileExists(t, w.Path())
}

func TestWriter_CancelRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")
	w, err := NewWriter(path, WriterOptions{})
	require.NoError(t, err)
	vin, err := w.AddVideoInput(VideoInputConfig{Width: 4, Height: 4, TimeScale: 90000})
	require.NoError(t, err)
	require.NoError(t, w.StartWriting())
	require.NoError(t, vin.AppendFrame(frame.New(4, 4), Timing{Duration: 3000}))
	assert.FileExists(t, path)

	w.Cancel()
	assert.Equal(t, StatusCancelled, w.Status())
	assert.NoFileExists(t, path)
	assert.False(t, vin.Ready())
}

func TestWriter_PreservesIrregularTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")
	w, err := NewWriter(path, WriterOptions{FragmentDuration: time.Hour})
	require.NoError(t, err)
	vin, err := w.AddVideoInput(VideoInputConfig{Width: 4, Height: 4, TimeScale: 1000})
	require.NoError(t, err)
	require.NoError(t, w.StartWriting())

	want := []int64{0, 40, 90, 100, 250}
	for _, dts := range want {
		require.NoError(t, vin.AppendFrame(frame.New(4, 4), Timing{DTS: dts, Duration: 40}))
	}
	require.NoError(t, w.Finalize())

	a, err := LoadAsset(path)
	require.NoError(t, err)
	defer a.Close()
	v := a.Tracks[0]
	comp := NewComposition()
	require.NoError(t, comp.InsertTrack(v, FullRange(v)))
	r, err := NewReader(a, comp)
	require.NoError(t, err)
	out, err := r.AddVideoOutput(v, codec.MJPEG{})
	require.NoError(t, err)
	require.NoError(t, r.Start())

	var got []int64
	for {
		_, tm, err := out.NextFrame(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, tm.DTS)
	}
	assert.Equal(t, want, got)
}

func TestWriter_FragmentBoundariesLeaveNoHoles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")
	w, err := NewWriter(path, WriterOptions{FragmentDuration: 100 * time.Millisecond})
	require.NoError(t, err)
	vin, err := w.AddVideoInput(VideoInputConfig{Width: 4, Height: 4, TimeScale: videoTimeScale})
	require.NoError(t, err)
	require.NoError(t, w.StartWriting())

	// Frames 3 to 5 were dropped upstream; every append claims one frame.
	dts := []int64{0, 3000, 6000, 15000, 18000, 21000}
	for _, d := range dts {
		require.NoError(t, vin.AppendFrame(frame.New(4, 4), Timing{DTS: d, Duration: frameTicks}))
	}
	require.NoError(t, w.Finalize())

	a, err := LoadAsset(path)
	require.NoError(t, err)
	defer a.Close()
	v := a.Tracks[0]
	assert.Greater(t, a.FragmentCount(), 1)
	assert.Equal(t, uint64(24000), v.Duration)

	comp := NewComposition()
	require.NoError(t, comp.InsertTrack(v, FullRange(v)))
	r, err := NewReader(a, comp)
	require.NoError(t, err)
	out, err := r.AddVideoOutput(v, codec.MJPEG{})
	require.NoError(t, err)
	require.NoError(t, r.Start())

	var got []int64
	var durations []uint32
	for {
		_, tm, err := out.NextFrame(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, tm.DTS)
		durations = append(durations, tm.Duration)
	}
	assert.Equal(t, dts, got)
	assert.Equal(t, []uint32{3000, 3000, 9000, 3000, 3000, 3000}, durations)
}
