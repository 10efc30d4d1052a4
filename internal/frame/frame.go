// Package frame defines the pixel buffer handed between pipeline stages.
package frame

import (
	"errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/image/draw"
)

// PixelFormat identifies the memory layout of a frame's pixel data.
type PixelFormat int

const (
	// FormatInvalid marks an empty or uninitialized frame.
	FormatInvalid PixelFormat = iota
	// FormatRGBA is packed 8-bit RGBA, 4 bytes per pixel.
	FormatRGBA
)

// MaxChannel is the largest value a color channel can hold.
const MaxChannel = 255

// String returns the pixel format name.
func (p PixelFormat) String() string {
	switch p {
	case FormatRGBA:
		return "rgba"
	default:
		return "invalid"
	}
}

// BytesPerPixel returns the packed pixel size, or 0 for unknown formats.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case FormatRGBA:
		return 4
	default:
		return 0
	}
}

// Errors returned by frame operations.
var (
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	ErrGeometryMismatch  = errors.New("frame geometry mismatch")
)

// Frame is a single video picture plus its presentation timestamp.
//
// A frame is owned by exactly one stage at a time. A stage that hands a frame
// downstream must not write to Data until the frame comes back to it.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	Stride int
	Data   []byte

	// PTS is the presentation time relative to the start of the stream.
	PTS time.Duration
}

// New allocates a zeroed RGBA frame. Non-positive dimensions yield an empty frame.
func New(width, height int) *Frame {
	if width <= 0 || height <= 0 {
		return &Frame{}
	}
	stride := width * FormatRGBA.BytesPerPixel()
	return &Frame{
		Width:  width,
		Height: height,
		Format: FormatRGBA,
		Stride: stride,
		Data:   make([]byte, stride*height),
	}
}

// Empty reports whether the frame has no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Data) == 0
}

// Validate checks that the buffer is large enough for the declared geometry.
func (f *Frame) Validate() error {
	if f.Empty() {
		return errors.New("empty frame")
	}
	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Format)
	}
	if f.Stride < f.Width*bpp {
		return fmt.Errorf("stride %d too small for width %d", f.Stride, f.Width)
	}
	if need := f.Stride*(f.Height-1) + f.Width*bpp; len(f.Data) < need {
		return fmt.Errorf("buffer holds %d bytes, need %d", len(f.Data), need)
	}
	return nil
}

// SameGeometry reports whether two frames can be copied into each other directly.
func (f *Frame) SameGeometry(o *Frame) bool {
	return f.Width == o.Width && f.Height == o.Height && f.Format == o.Format
}

// Offset returns the byte offset of pixel (x, y).
func (f *Frame) Offset(x, y int) int {
	return y*f.Stride + x*f.Format.BytesPerPixel()
}

// Clone returns a deep copy with its own buffer.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return &c
}

// CopyTo copies pixels and timestamp into dst. Frames with identical geometry are
// copied row by row; otherwise the source is scaled into dst's resolution.
func (f *Frame) CopyTo(dst *Frame) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	dst.PTS = f.PTS

	if f.SameGeometry(dst) {
		rowBytes := f.Width * f.Format.BytesPerPixel()
		for y := 0; y < f.Height; y++ {
			copy(dst.Data[y*dst.Stride:y*dst.Stride+rowBytes], f.Data[y*f.Stride:y*f.Stride+rowBytes])
		}
		return nil
	}

	draw.ApproxBiLinear.Scale(dst.RGBA(), dst.RGBA().Bounds(), f.RGBA(), f.RGBA().Bounds(), draw.Src, nil)
	return nil
}

// RGBA exposes the frame as an *image.RGBA sharing the same buffer.
func (f *Frame) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Data,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// FromImage converts any image into a new RGBA frame.
func FromImage(img image.Image, pts time.Duration) *Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy())
	if f.Empty() {
		return f
	}
	draw.Draw(f.RGBA(), f.RGBA().Bounds(), img, b.Min, draw.Src)
	f.PTS = pts
	return f
}

// DrawImage converts img into an existing frame, scaling when sizes differ.
func DrawImage(dst *Frame, img image.Image) error {
	if err := dst.Validate(); err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() == dst.Width && b.Dy() == dst.Height {
		draw.Draw(dst.RGBA(), dst.RGBA().Bounds(), img, b.Min, draw.Src)
		return nil
	}
	draw.ApproxBiLinear.Scale(dst.RGBA(), dst.RGBA().Bounds(), img, b, draw.Src, nil)
	return nil
}
