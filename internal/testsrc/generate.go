package testsrc

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/jmylchreest/brickify/internal/codec"
	"github.com/jmylchreest/brickify/internal/container"
	"github.com/jmylchreest/brickify/internal/frame"
)

// Timescales used by generated files.
const (
	VideoTimeScale  = 90000
	AudioSampleRate = 48000
)

// Options selects what Generate writes. Zero counts omit that track.
type Options struct {
	Width     int
	Height    int
	FrameRate int
	Frames    int

	// AudioSamples is the number of audio access units.
	AudioSamples int
	// AudioCodec is codec.AudioPCM (a 440 Hz tone, 20 ms per sample) or
	// codec.AudioAAC (1024-tick access units with opaque payloads, for
	// passthrough tests).
	AudioCodec codec.Audio

	FragmentDuration time.Duration
	JPEGQuality      int
}

// DefaultOptions returns a small two-track source.
func DefaultOptions() Options {
	return Options{
		Width:        320,
		Height:       240,
		FrameRate:    30,
		Frames:       60,
		AudioSamples: 100,
		AudioCodec:   codec.AudioPCM,
	}
}

// Info summarizes a generated file.
type Info struct {
	Path         string
	Frames       int
	AudioSamples int

	// VideoTimings and AudioPayloads allow byte-exact comparisons in tests.
	VideoTimings  []container.Timing
	AudioTimings  []container.Timing
	AudioPayloads [][]byte
}

// Generate writes a new fMP4 file at path.
func Generate(path string, opts Options) (*Info, error) {
	if opts.Frames > 0 && (opts.Width <= 0 || opts.Height <= 0) {
		return nil, fmt.Errorf("invalid geometry %dx%d", opts.Width, opts.Height)
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 30
	}
	if opts.AudioCodec == "" {
		opts.AudioCodec = codec.AudioPCM
	}

	w, err := container.NewWriter(path, container.WriterOptions{
		FragmentDuration: opts.FragmentDuration,
		JPEGQuality:      opts.JPEGQuality,
	})
	if err != nil {
		return nil, err
	}

	var vin *container.VideoInput
	if opts.Frames > 0 {
		vin, err = w.AddVideoInput(container.VideoInputConfig{
			Width: opts.Width, Height: opts.Height, TimeScale: VideoTimeScale,
		})
		if err != nil {
			return nil, err
		}
	}

	var ain *container.AudioInput
	var audio audioTrack
	if opts.AudioSamples > 0 {
		audio, err = newAudioTrack(opts.AudioCodec)
		if err != nil {
			return nil, err
		}
		ain, err = w.AddAudioInput(audio.codec, AudioSampleRate)
		if err != nil {
			return nil, err
		}
	}

	if err := w.StartWriting(); err != nil {
		return nil, err
	}

	info := &Info{Path: path, Frames: opts.Frames, AudioSamples: opts.AudioSamples}
	if err := writeTracks(vin, ain, audio, opts, info); err != nil {
		w.Cancel()
		return nil, err
	}
	if err := w.Finalize(); err != nil {
		return nil, err
	}
	return info, nil
}

// writeTracks interleaves video and audio by decode time, as a real muxer would.
func writeTracks(vin *container.VideoInput, ain *container.AudioInput, audio audioTrack, opts Options, info *Info) error {
	frameTicks := uint32(VideoTimeScale / opts.FrameRate)
	var f *frame.Frame
	if vin != nil {
		f = frame.New(opts.Width, opts.Height)
	}

	vi, ai := 0, 0
	for vi < opts.Frames || ai < opts.AudioSamples {
		vt := container.TicksToDuration(int64(vi)*int64(frameTicks), VideoTimeScale)
		at := container.TicksToDuration(int64(ai)*int64(audio.ticks), AudioSampleRate)

		if vi < opts.Frames && (ai >= opts.AudioSamples || vt <= at) {
			Pattern(f, vi)
			tm := container.Timing{DTS: int64(vi) * int64(frameTicks), Duration: frameTicks, Sync: true}
			if err := vin.AppendFrame(f, tm); err != nil {
				return fmt.Errorf("video frame %d: %w", vi, err)
			}
			info.VideoTimings = append(info.VideoTimings, tm)
			vi++
			continue
		}

		s := container.Sample{
			Timing:  container.Timing{DTS: int64(ai) * int64(audio.ticks), Duration: audio.ticks, Sync: true},
			Payload: audio.payload(ai),
		}
		if err := ain.AppendSample(s); err != nil {
			return fmt.Errorf("audio sample %d: %w", ai, err)
		}
		info.AudioTimings = append(info.AudioTimings, s.Timing)
		info.AudioPayloads = append(info.AudioPayloads, s.Payload)
		ai++
	}
	return nil
}

type audioTrack struct {
	codec   mp4.Codec
	ticks   uint32
	payload func(n int) []byte
}

func newAudioTrack(a codec.Audio) (audioTrack, error) {
	switch a {
	case codec.AudioPCM:
		const perSample = AudioSampleRate / 50
		return audioTrack{
			codec: &mp4.CodecLPCM{BitDepth: 16, SampleRate: AudioSampleRate, ChannelCount: 1},
			ticks: perSample,
			payload: func(n int) []byte {
				buf := make([]byte, perSample*2)
				for i := 0; i < perSample; i++ {
					t := float64(n*perSample+i) / AudioSampleRate
					v := int16(math.Sin(2*math.Pi*440*t) * 8000)
					binary.BigEndian.PutUint16(buf[i*2:], uint16(v))
				}
				return buf
			},
		}, nil
	case codec.AudioAAC:
		return audioTrack{
			codec: &mp4.CodecMPEG4Audio{Config: mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   AudioSampleRate,
				ChannelCount: 2,
			}},
			ticks: 1024,
			payload: func(n int) []byte {
				buf := make([]byte, 32+n%16)
				for i := range buf {
					buf[i] = byte(n*7 + i)
				}
				return buf
			},
		}, nil
	default:
		return audioTrack{}, fmt.Errorf("generator cannot produce %s audio", a)
	}
}
