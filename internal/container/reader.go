package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/jmylchreest/brickify/internal/codec"
	"github.com/jmylchreest/brickify/internal/frame"
)

// ErrDecode wraps failures to turn a video sample into pixels.
var ErrDecode = errors.New("decoding video sample")

// Reader pulls samples of a composition's tracks from an asset. Outputs are
// attached before Start; each output is owned by one goroutine.
type Reader struct {
	asset *Asset
	comp  *Composition

	mu      sync.Mutex
	started bool
	outputs map[*Track]bool
	done    chan struct{}
}

// NewReader validates that comp only references tracks of asset.
func NewReader(asset *Asset, comp *Composition) (*Reader, error) {
	if asset == nil {
		return nil, errors.New("nil asset")
	}
	asset.mu.RLock()
	closed := asset.closed
	asset.mu.RUnlock()
	if closed {
		return nil, ErrAssetClosed
	}
	if comp == nil || len(comp.segments) == 0 {
		return nil, errors.New("empty composition")
	}
	for _, s := range comp.segments {
		if s.Track.asset != asset {
			return nil, fmt.Errorf("%w: track %d is not part of %s", ErrTrackNotFound, s.Track.ID, asset.Path)
		}
	}
	return &Reader{
		asset:   asset,
		comp:    comp,
		outputs: make(map[*Track]bool),
		done:    make(chan struct{}),
	}, nil
}

func (r *Reader) attach(t *Track, kind codec.Kind) (*cursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil, ErrReaderStarted
	}
	if t == nil || t.Kind != kind {
		return nil, fmt.Errorf("%w: want a %s track", ErrUnsupported, kind)
	}
	seg, ok := r.comp.segmentFor(t)
	if !ok {
		return nil, fmt.Errorf("%w: track %d is not in the composition", ErrTrackNotFound, t.ID)
	}
	if r.outputs[t] {
		return nil, fmt.Errorf("track %d already has an output", t.ID)
	}
	r.outputs[t] = true
	return &cursor{reader: r, track: t, rng: seg.Range}, nil
}

// AddVideoOutput attaches a decoding output to a video track. Only codecs that
// decode to pixels are accepted.
func (r *Reader) AddVideoOutput(t *Track, decoder codec.MJPEG) (*VideoOutput, error) {
	if t != nil {
		if v, ok := codec.ParseVideo(t.CodecName()); !ok || !v.IsDecodable() {
			return nil, fmt.Errorf("%w: video track %d is %s", ErrUnsupported, t.ID, t.CodecName())
		}
	}
	c, err := r.attach(t, codec.KindVideo)
	if err != nil {
		return nil, err
	}
	return &VideoOutput{cursor: c, decoder: decoder}, nil
}

// AddAudioOutput attaches a passthrough output to an audio track.
func (r *Reader) AddAudioOutput(t *Track) (*AudioOutput, error) {
	c, err := r.attach(t, codec.KindAudio)
	if err != nil {
		return nil, err
	}
	return &AudioOutput{cursor: c}, nil
}

// Start begins reading. Outputs return nothing before Start.
func (r *Reader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrReaderStarted
	}
	if len(r.outputs) == 0 {
		return ErrNoOutputs
	}
	r.started = true
	return nil
}

// Cancel makes every output return ErrCancelled. Safe to call more than once.
func (r *Reader) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

func (r *Reader) isStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// cursor walks one track's samples fragment by fragment.
type cursor struct {
	reader *Reader
	track  *Track
	rng    TimeRange

	next    int
	pending []Sample
	eof     bool
}

// pull returns the next in-range sample or io.EOF.
func (c *cursor) pull(ctx context.Context) (Sample, error) {
	if !c.reader.isStarted() {
		return Sample{}, errors.New("reader not started")
	}
	for len(c.pending) == 0 {
		if c.eof {
			return Sample{}, io.EOF
		}
		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		case <-c.reader.done:
			return Sample{}, ErrCancelled
		default:
		}
		if c.next >= c.reader.asset.FragmentCount() {
			c.eof = true
			continue
		}
		parts, err := c.reader.asset.parts(c.next)
		if err != nil {
			return Sample{}, err
		}
		c.next++
		c.collect(parts)
	}
	s := c.pending[0]
	c.pending[0] = Sample{}
	c.pending = c.pending[1:]
	return s, nil
}

// collect queues the in-range samples of parts, timed from the asset origin.
func (c *cursor) collect(parts fmp4.Parts) {
	origin := c.track.origin
	for _, part := range parts {
		for _, pt := range part.Tracks {
			if pt.ID != c.track.ID {
				continue
			}
			dts := pt.BaseTime
			for _, s := range pt.Samples {
				elapsed := dts - origin
				if dts >= origin && c.rng.Contains(elapsed) {
					c.pending = append(c.pending, Sample{
						Timing: Timing{
							DTS:       int64(elapsed - c.rng.Start),
							PTSOffset: s.PTSOffset,
							Duration:  s.Duration,
							Sync:      !s.IsNonSyncSample,
						},
						Payload: s.Payload,
					})
				}
				dts += uint64(s.Duration)
			}
		}
	}
}

// VideoOutput yields decoded frames of one video track.
type VideoOutput struct {
	*cursor
	decoder codec.MJPEG
}

// Track returns the source track.
func (o *VideoOutput) Track() *Track { return o.track }

// NextFrame decodes the next sample. It returns io.EOF once the track range is
// exhausted. The returned frame is owned by the caller.
func (o *VideoOutput) NextFrame(ctx context.Context) (*frame.Frame, Timing, error) {
	s, err := o.pull(ctx)
	if err != nil {
		return nil, Timing{}, err
	}
	f, err := o.decoder.Decode(s.Payload, TicksToDuration(s.PTS(), o.track.TimeScale))
	if err != nil {
		return nil, Timing{}, fmt.Errorf("%w at dts %d: %w", ErrDecode, s.DTS, err)
	}
	return f, s.Timing, nil
}

// AudioOutput yields compressed samples of one audio track unchanged.
type AudioOutput struct {
	*cursor
}

// Track returns the source track.
func (o *AudioOutput) Track() *Track { return o.track }

// NextSample returns the next sample verbatim, or io.EOF.
func (o *AudioOutput) NextSample(ctx context.Context) (Sample, error) {
	return o.pull(ctx)
}
