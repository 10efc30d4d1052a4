// Package container reads and writes fragmented MP4 files.
//
// An Asset indexes a source file. A Composition selects track time ranges from
// it, a Reader pulls samples of those tracks through per-track outputs, and a
// Writer muxes per-track inputs into a new file.
package container

import (
	"bytes"
	"fmt"
	"math/bits"
	"os"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/jmylchreest/brickify/internal/codec"
)

// Track is an elementary stream of an asset.
type Track struct {
	ID        int
	Kind      codec.Kind
	Codec     mp4.Codec
	TimeScale uint32
	// SampleCount is the number of samples across all fragments.
	SampleCount int
	// Duration spans from the first sample's decode time to the end of the
	// last sample, in TimeScale ticks. Timeline gaps are included.
	Duration uint64
	// StartDTS is the decode time of the first sample.
	StartDTS uint64

	// origin is the asset's earliest decode time in this track's ticks.
	origin uint64
	asset  *Asset
}

// DurationTime returns the track duration as wall-clock time.
func (t *Track) DurationTime() time.Duration {
	return TicksToDuration(int64(t.Duration), t.TimeScale)
}

// Offset returns where the first sample sits on the asset timeline, in ticks.
// The track that starts earliest has offset zero.
func (t *Track) Offset() uint64 {
	return t.StartDTS - t.origin
}

// EndTime returns the end of the last sample on the asset timeline.
func (t *Track) EndTime() time.Duration {
	return TicksToDuration(int64(t.Offset()+t.Duration), t.TimeScale)
}

// CodecName returns the canonical codec name.
func (t *Track) CodecName() string {
	return codec.Describe(t.Codec).Name
}

// fragment is the byte range of one moof+mdat pair.
type fragment struct {
	offset int64
	size   int64
}

// Asset is an opened, indexed fMP4 file. Safe for concurrent reads.
type Asset struct {
	Path   string
	Tracks []*Track

	file      *os.File
	fragments []fragment

	mu     sync.RWMutex
	closed bool
}

// LoadAsset opens path and indexes its initialization segment and fragments.
// The file stays open until Close.
func LoadAsset(path string) (*Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	a, err := loadAsset(f, path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return a, nil
}

func loadAsset(f *os.File, path string) (*Asset, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	boxes, err := walkBoxes(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFMP4, err)
	}

	a := &Asset{Path: path, file: f}
	var moov *box
	for i := 0; i < len(boxes); i++ {
		b := boxes[i]
		switch b.typ {
		case "moov":
			moov = &boxes[i]
		case "moof":
			// A moof without its mdat is skipped.
			if i+1 < len(boxes) && boxes[i+1].typ == "mdat" {
				a.fragments = append(a.fragments, fragment{offset: b.offset, size: b.size + boxes[i+1].size})
				i++
			}
		}
	}
	if moov == nil {
		return nil, fmt.Errorf("%w: no moov box", ErrNotFMP4)
	}

	moovData, err := readRange(f, moov.offset, moov.size)
	if err != nil {
		return nil, fmt.Errorf("reading moov: %w", err)
	}
	var init fmp4.Init
	if err := init.Unmarshal(bytes.NewReader(moovData)); err != nil {
		return nil, fmt.Errorf("%w: parsing moov: %w", ErrNotFMP4, err)
	}

	byID := make(map[int]*Track, len(init.Tracks))
	for _, it := range init.Tracks {
		if it.TimeScale == 0 {
			return nil, fmt.Errorf("%w: track %d has zero timescale", ErrNotFMP4, it.ID)
		}
		t := &Track{
			ID:        it.ID,
			Kind:      codec.KindOf(it.Codec),
			Codec:     it.Codec,
			TimeScale: it.TimeScale,
			asset:     a,
		}
		a.Tracks = append(a.Tracks, t)
		byID[t.ID] = t
	}

	for i := range a.fragments {
		parts, err := a.readFragment(i)
		if err != nil {
			return nil, err
		}
		for _, part := range parts {
			for _, pt := range part.Tracks {
				t, ok := byID[pt.ID]
				if !ok || len(pt.Samples) == 0 {
					continue
				}
				end := pt.BaseTime
				for _, s := range pt.Samples {
					end += uint64(s.Duration)
				}
				if t.SampleCount == 0 {
					t.StartDTS = pt.BaseTime
				}
				t.SampleCount += len(pt.Samples)
				if end > t.StartDTS+t.Duration {
					t.Duration = end - t.StartDTS
				}
			}
		}
	}
	a.setOrigin()
	return a, nil
}

// setOrigin places every track on a shared timeline that starts at the
// earliest first sample of any track.
func (a *Asset) setOrigin() {
	var first *Track
	for _, t := range a.Tracks {
		if t.SampleCount == 0 {
			continue
		}
		if first == nil || earlier(t, first) {
			first = t
		}
	}
	for _, t := range a.Tracks {
		if first == nil || t.SampleCount == 0 {
			t.origin = t.StartDTS
			continue
		}
		hi, lo := bits.Mul64(first.StartDTS, uint64(t.TimeScale))
		origin, _ := bits.Div64(hi, lo, uint64(first.TimeScale))
		t.origin = min(origin, t.StartDTS)
	}
}

// earlier reports whether a starts before b in wall-clock time.
func earlier(a, b *Track) bool {
	ahi, alo := bits.Mul64(a.StartDTS, uint64(b.TimeScale))
	bhi, blo := bits.Mul64(b.StartDTS, uint64(a.TimeScale))
	return ahi < bhi || (ahi == bhi && alo < blo)
}

// readFragment parses the i-th moof+mdat pair.
func (a *Asset) readFragment(i int) (fmp4.Parts, error) {
	fr := a.fragments[i]
	data, err := readRange(a.file, fr.offset, fr.size)
	if err != nil {
		return nil, fmt.Errorf("reading fragment %d: %w", i, err)
	}
	var parts fmp4.Parts
	if err := parts.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("parsing fragment %d: %w", i, err)
	}
	return parts, nil
}

// parts returns parsed fragment i, or ErrAssetClosed.
func (a *Asset) parts(i int) (fmp4.Parts, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrAssetClosed
	}
	return a.readFragment(i)
}

// FragmentCount returns the number of moof+mdat pairs.
func (a *Asset) FragmentCount() int {
	return len(a.fragments)
}

// TracksOfKind returns the tracks of one kind in file order.
func (a *Asset) TracksOfKind(kind codec.Kind) []*Track {
	var out []*Track
	for _, t := range a.Tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Track returns the track with the given ID.
func (a *Asset) Track(id int) (*Track, bool) {
	for _, t := range a.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Close releases the file. Outputs reading from the asset fail afterwards.
func (a *Asset) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.file.Close()
}
