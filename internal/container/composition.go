package container

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/brickify/internal/codec"
)

// TimeRange is a span of the asset timeline in a track's ticks. Zero is the
// earliest first sample of any track in the asset.
type TimeRange struct {
	Start    uint64
	Duration uint64
}

// End returns the exclusive end tick.
func (r TimeRange) End() uint64 { return r.Start + r.Duration }

// Contains reports whether an elapsed tick count falls inside the range.
func (r TimeRange) Contains(elapsed uint64) bool {
	return elapsed >= r.Start && elapsed < r.End()
}

// FullRange covers the asset timeline up to the end of the track's last
// sample, so every sample is kept at its original offset.
func FullRange(t *Track) TimeRange {
	return TimeRange{Start: 0, Duration: t.Offset() + t.Duration}
}

// Segment is a track range placed at time zero of a composition.
type Segment struct {
	Track *Track
	Range TimeRange
}

// Composition is an edit of source tracks, at most one per kind, each starting
// at time zero.
type Composition struct {
	segments []Segment
}

// NewComposition returns an empty composition.
func NewComposition() *Composition {
	return &Composition{}
}

// InsertTrack places rng of t at time zero. Samples outside rng are skipped and
// the rest shift down by rng.Start, so the full range keeps every track's
// offset from the others.
func (c *Composition) InsertTrack(t *Track, rng TimeRange) error {
	if t == nil {
		return errors.New("nil track")
	}
	if t.Kind == codec.KindUnknown {
		return fmt.Errorf("%w: track %d", ErrUnsupported, t.ID)
	}
	if rng.Duration == 0 {
		return fmt.Errorf("track %d: empty time range", t.ID)
	}
	if end := FullRange(t).End(); rng.End() > end {
		return fmt.Errorf("track %d: range ends at %d, track ends at %d", t.ID, rng.End(), end)
	}
	for _, s := range c.segments {
		if s.Track.Kind == t.Kind {
			return fmt.Errorf("composition already has a %s track", t.Kind)
		}
		if s.Track.asset != t.asset {
			return errors.New("tracks come from different assets")
		}
	}
	c.segments = append(c.segments, Segment{Track: t, Range: rng})
	return nil
}

// Segments returns the inserted segments in insertion order.
func (c *Composition) Segments() []Segment {
	return append([]Segment(nil), c.segments...)
}

// Segment returns the segment of a kind.
func (c *Composition) Segment(kind codec.Kind) (Segment, bool) {
	for _, s := range c.segments {
		if s.Track.Kind == kind {
			return s, true
		}
	}
	return Segment{}, false
}

func (c *Composition) segmentFor(t *Track) (Segment, bool) {
	for _, s := range c.segments {
		if s.Track == t {
			return s, true
		}
	}
	return Segment{}, false
}
