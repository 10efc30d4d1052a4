package container_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/jmylchreest/brickify/internal/codec"
	"github.com/jmylchreest/brickify/internal/container"
	"github.com/jmylchreest/brickify/internal/frame"
	"github.com/jmylchreest/brickify/internal/testsrc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	videoID = 1
	audioID = 2
)

// fragmented groups samples starting at each base time into fragments of at
// most per samples. Each sample lasts ticks; gaps in dts are kept.
func fragmented(t *testing.T, id int, dts []uint64, ticks uint32, per int, payload func(i int) []byte) []*fmp4.PartTrack {
	t.Helper()
	var out []*fmp4.PartTrack
	for i := 0; i < len(dts); i += per {
		pt := &fmp4.PartTrack{ID: id, BaseTime: dts[i]}
		for j := i; j < len(dts) && j < i+per; j++ {
			pt.Samples = append(pt.Samples, &fmp4.Sample{Duration: ticks, Payload: payload(j)})
		}
		out = append(out, pt)
	}
	return out
}

func jpegPayload(t *testing.T) func(int) []byte {
	t.Helper()
	f := frame.New(16, 16)
	return func(i int) []byte {
		testsrc.Pattern(f, i)
		b, err := codec.MJPEG{}.Encode(f)
		require.NoError(t, err)
		return b
	}
}

func pcmPayload(int) []byte { return make([]byte, 960*2) }

func ticksFrom(start, step uint64, n int, skip ...int) []uint64 {
	var out []uint64
next:
	for i := 0; i < n; i++ {
		for _, s := range skip {
			if i == s {
				continue next
			}
		}
		out = append(out, start+uint64(i)*step)
	}
	return out
}

func writeSource(t *testing.T, video, audio []*fmp4.PartTrack) string {
	t.Helper()
	init := &fmp4.Init{Tracks: []*fmp4.InitTrack{
		{ID: videoID, TimeScale: 90000, Codec: &mp4.CodecMJPEG{Width: 16, Height: 16}},
		{ID: audioID, TimeScale: 48000, Codec: &mp4.CodecLPCM{BitDepth: 16, SampleRate: 48000, ChannelCount: 1}},
	}}
	path := filepath.Join(t.TempDir(), "source.mp4")
	require.NoError(t, testsrc.WriteFragments(path, init, append(video, audio...)))
	return path
}

type readTimings struct {
	video []container.Timing
	audio []container.Timing
}

func readAll(t *testing.T, a *container.Asset) readTimings {
	t.Helper()
	v := a.TracksOfKind(codec.KindVideo)[0]
	au := a.TracksOfKind(codec.KindAudio)[0]
	comp := container.NewComposition()
	require.NoError(t, comp.InsertTrack(v, container.FullRange(v)))
	require.NoError(t, comp.InsertTrack(au, container.FullRange(au)))
	r, err := container.NewReader(a, comp)
	require.NoError(t, err)
	vout, err := r.AddVideoOutput(v, codec.MJPEG{})
	require.NoError(t, err)
	aout, err := r.AddAudioOutput(au)
	require.NoError(t, err)
	require.NoError(t, r.Start())

	var got readTimings
	ctx := context.Background()
	for {
		_, tm, err := vout.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got.video = append(got.video, tm)
	}
	for {
		s, err := aout.NextSample(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got.audio = append(got.audio, s.Timing)
	}
	return got
}

func dtsOf(timings []container.Timing) []int64 {
	out := make([]int64, len(timings))
	for i, tm := range timings {
		out[i] = tm.DTS
	}
	return out
}

func toInt64(v []uint64) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

func TestAsset_TimelineGapKeepsEverySample(t *testing.T) {
	videoDTS := ticksFrom(0, 3000, 11, 6)
	audioDTS := ticksFrom(0, 960, 20)
	path := writeSource(t,
		fragmented(t, videoID, videoDTS, 3000, 3, jpegPayload(t)),
		fragmented(t, audioID, audioDTS, 960, 5, pcmPayload))

	a, err := container.LoadAsset(path)
	require.NoError(t, err)
	defer a.Close()

	v := a.TracksOfKind(codec.KindVideo)[0]
	assert.Equal(t, 10, v.SampleCount)
	assert.Equal(t, uint64(11*3000), v.Duration, "span runs to the end of the last sample")

	got := readAll(t, a)
	assert.Equal(t, toInt64(videoDTS), dtsOf(got.video))
	assert.Equal(t, toInt64(audioDTS), dtsOf(got.audio))
}

func TestReader_KeepsTrackOffsets(t *testing.T) {
	tests := []struct {
		name        string
		videoStart  uint64
		audioStart  uint64
		videoOffset uint64
		audioOffset uint64
	}{
		{"audio starts late", 0, 4800, 0, 4800},
		{"video starts late", 9000, 0, 9000, 0},
		{"both start late", 9000, 9600, 0, 4800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			videoDTS := ticksFrom(tt.videoStart, 3000, 6)
			audioDTS := ticksFrom(tt.audioStart, 960, 10)
			path := writeSource(t,
				fragmented(t, videoID, videoDTS, 3000, 3, jpegPayload(t)),
				fragmented(t, audioID, audioDTS, 960, 5, pcmPayload))

			a, err := container.LoadAsset(path)
			require.NoError(t, err)
			defer a.Close()

			v := a.TracksOfKind(codec.KindVideo)[0]
			au := a.TracksOfKind(codec.KindAudio)[0]
			assert.Equal(t, tt.videoOffset, v.Offset())
			assert.Equal(t, tt.audioOffset, au.Offset())

			got := readAll(t, a)
			require.Len(t, got.video, 6)
			require.Len(t, got.audio, 10)
			assert.Equal(t, int64(tt.videoOffset), got.video[0].DTS)
			assert.Equal(t, int64(tt.audioOffset), got.audio[0].DTS)
			assert.Equal(t, int64(tt.audioOffset+9*960), got.audio[9].DTS)
		})
	}
}

func TestComposition_RangeCoversTrackOffset(t *testing.T) {
	path := writeSource(t,
		fragmented(t, videoID, ticksFrom(0, 3000, 3), 3000, 3, jpegPayload(t)),
		fragmented(t, audioID, ticksFrom(4800, 960, 5), 960, 5, pcmPayload))
	a, err := container.LoadAsset(path)
	require.NoError(t, err)
	defer a.Close()

	au := a.TracksOfKind(codec.KindAudio)[0]
	full := container.FullRange(au)
	assert.Equal(t, uint64(4800+5*960), full.End())

	comp := container.NewComposition()
	assert.Error(t, comp.InsertTrack(au, container.TimeRange{Duration: full.End() + 1}))
	assert.NoError(t, comp.InsertTrack(au, full))
}
