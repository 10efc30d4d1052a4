package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jmylchreest/brickify/internal/codec"
	"github.com/jmylchreest/brickify/internal/container"
	"github.com/jmylchreest/brickify/internal/frame"
)

// File replays the MJPEG video track of an fMP4 file in real time, optionally
// looping. Timestamps keep increasing across loops.
type File struct {
	path   string
	repeat bool

	loop loop
}

// NewFile creates a file replay source.
func NewFile(path string, repeat bool) *File {
	return &File{path: path, repeat: repeat}
}

// Name implements Source.
func (s *File) Name() string { return "file " + s.path }

// Start implements Source. The file is opened and checked before Start returns.
func (s *File) Start(ctx context.Context, deliver func(*frame.Frame)) error {
	asset, track, err := s.open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	err = s.loop.start(ctx, func(ctx context.Context) {
		defer asset.Close()
		start := time.Now()
		var offset time.Duration
		for {
			last, err := s.play(ctx, asset, track, start, offset, deliver)
			if err != nil || !s.repeat {
				return
			}
			offset = last
		}
	})
	if err != nil {
		_ = asset.Close()
	}
	return err
}

// Stop implements Source.
func (s *File) Stop() { s.loop.stop() }

func (s *File) open() (*container.Asset, *container.Track, error) {
	asset, err := container.LoadAsset(s.path)
	if err != nil {
		return nil, nil, err
	}
	videos := asset.TracksOfKind(codec.KindVideo)
	if len(videos) == 0 {
		_ = asset.Close()
		return nil, nil, errors.New("no video track")
	}
	if v, ok := codec.ParseVideo(videos[0].CodecName()); !ok || !v.IsDecodable() {
		_ = asset.Close()
		return nil, nil, fmt.Errorf("video track is %s, want mjpeg", videos[0].CodecName())
	}
	return asset, videos[0], nil
}

// play delivers one pass over the track and returns the timestamp the next
// pass starts at.
func (s *File) play(ctx context.Context, asset *container.Asset, track *container.Track,
	start time.Time, offset time.Duration, deliver func(*frame.Frame),
) (time.Duration, error) {
	comp := container.NewComposition()
	if err := comp.InsertTrack(track, container.FullRange(track)); err != nil {
		return 0, err
	}
	r, err := container.NewReader(asset, comp)
	if err != nil {
		return 0, err
	}
	out, err := r.AddVideoOutput(track, codec.MJPEG{})
	if err != nil {
		return 0, err
	}
	if err := r.Start(); err != nil {
		return 0, err
	}

	next := offset + track.EndTime()
	for {
		f, _, err := out.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			if next <= offset {
				// A zero-length track would spin.
				return 0, io.EOF
			}
			return next, nil
		}
		if err != nil {
			return 0, err
		}
		f.PTS += offset
		if !sleepUntil(ctx, start.Add(f.PTS)) {
			return 0, ctx.Err()
		}
		deliver(f)
	}
}
