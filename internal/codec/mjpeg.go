package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"time"

	"github.com/jmylchreest/brickify/internal/frame"
)

// DefaultJPEGQuality is used when an encoder is built with a zero quality.
const DefaultJPEGQuality = 85

// ErrEmptyPayload is returned when decoding a zero-length sample.
var ErrEmptyPayload = errors.New("empty mjpeg payload")

// MJPEG encodes and decodes Motion JPEG samples. Each sample is a complete
// baseline JPEG picture. The zero value encodes at DefaultJPEGQuality.
type MJPEG struct {
	Quality int
}

func (m MJPEG) quality() int {
	if m.Quality < 1 || m.Quality > 100 {
		return DefaultJPEGQuality
	}
	return m.Quality
}

// Encode compresses a frame into a JPEG sample. Alpha is discarded.
func (m MJPEG) Encode(f *frame.Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(f.Width * f.Height / 4)
	if err := jpeg.Encode(&buf, f.RGBA(), &jpeg.Options{Quality: m.quality()}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decompresses a JPEG sample into a new RGBA frame stamped with pts.
func (m MJPEG) Decode(payload []byte, pts time.Duration) (*frame.Frame, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	img, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decoding jpeg: %w", err)
	}
	f := frame.FromImage(img, pts)
	if f.Empty() {
		return nil, errors.New("decoded jpeg has no pixels")
	}
	return f, nil
}
