package effect

import (
	"fmt"
	"image/color"

	"github.com/jmylchreest/brickify/internal/frame"
)

// Stud geometry relative to the block size.
const (
	studDiameterRatio = 0.4
	highlightInsetDiv = 10
)

// Renderer turns a raw frame into a stylized one.
type Renderer interface {
	Render(src *frame.Frame, p Params) *frame.Frame
	RenderInto(dst, src *frame.Frame, p Params) error
}

// Brick is the block-quantization renderer. It holds no state.
type Brick struct{}

// Render implements Renderer.
func (Brick) Render(src *frame.Frame, p Params) *frame.Frame { return Render(src, p) }

// RenderInto implements Renderer.
func (Brick) RenderInto(dst, src *frame.Frame, p Params) error { return RenderInto(dst, src, p) }

// Render applies the brick effect to src and returns a newly allocated frame.
// Zero-area or malformed input yields an empty frame.
func Render(src *frame.Frame, p Params) *frame.Frame {
	if src.Empty() || src.Validate() != nil {
		return &frame.Frame{}
	}
	dst := frame.New(src.Width, src.Height)
	render(dst, src, p.BlockSize)
	dst.PTS = src.PTS
	return dst
}

// RenderInto applies the brick effect to src, writing into dst. Both frames must
// share geometry and format. src and dst must not alias.
func RenderInto(dst, src *frame.Frame, p Params) error {
	if err := src.Validate(); err != nil {
		return fmt.Errorf("source frame: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("destination frame: %w", err)
	}
	if !src.SameGeometry(dst) {
		return fmt.Errorf("%w: %dx%d %s into %dx%d %s", frame.ErrGeometryMismatch,
			src.Width, src.Height, src.Format, dst.Width, dst.Height, dst.Format)
	}
	render(dst, src, p.BlockSize)
	dst.PTS = src.PTS
	return nil
}

// StudColors returns the highlight (x1.1, clamped) and shadow (x0.8) colors for a
// block color. Alpha is preserved.
func StudColors(c color.RGBA) (highlight, shadow color.RGBA) {
	return color.RGBA{R: brighten(c.R), G: brighten(c.G), B: brighten(c.B), A: c.A},
		color.RGBA{R: darken(c.R), G: darken(c.G), B: darken(c.B), A: c.A}
}

func brighten(v uint8) uint8 {
	s := int(v) * 11 / 10
	if s > frame.MaxChannel {
		return frame.MaxChannel
	}
	return uint8(s)
}

func darken(v uint8) uint8 {
	return uint8(int(v) * 8 / 10)
}

func render(dst, src *frame.Frame, bs int) {
	if bs < 1 {
		bs = 1
	}
	w, h := src.Width, src.Height

	shadowD := studDiameterRatio * float64(bs)
	inset := bs / highlightInsetDiv
	if inset < 1 {
		inset = 1
	}
	highlightD := shadowD - float64(inset)

	for by := 0; by < h; by += bs {
		for bx := 0; bx < w; bx += bs {
			sx := min(bx+bs/2, w-1)
			sy := min(by+bs/2, h-1)
			o := src.Offset(sx, sy)
			c := color.RGBA{R: src.Data[o], G: src.Data[o+1], B: src.Data[o+2], A: src.Data[o+3]}

			x1 := min(bx+bs, w)
			y1 := min(by+bs, h)
			fillRect(dst, bx, by, x1, y1, c)

			hi, sh := StudColors(c)
			cx := float64(bx) + float64(bs)/2
			cy := float64(by) + float64(bs)/2
			fillDisc(dst, bx, by, x1, y1, cx, cy, shadowD/2, sh)
			if highlightD > 0 {
				fillDisc(dst, bx, by, x1, y1, cx, cy, highlightD/2, hi)
			}
		}
	}
}

func fillRect(f *frame.Frame, x0, y0, x1, y1 int, c color.RGBA) {
	for y := y0; y < y1; y++ {
		row := f.Offset(x0, y)
		for x := x0; x < x1; x++ {
			f.Data[row], f.Data[row+1], f.Data[row+2], f.Data[row+3] = c.R, c.G, c.B, c.A
			row += 4
		}
	}
}

// fillDisc paints pixels whose centers fall within r of (cx, cy), clipped to the
// rectangle [x0,x1)x[y0,y1).
func fillDisc(f *frame.Frame, x0, y0, x1, y1 int, cx, cy, r float64, c color.RGBA) {
	if r <= 0 {
		return
	}
	r2 := r * r
	for y := max(y0, int(cy-r)); y < min(y1, int(cy+r)+1); y++ {
		dy := float64(y) + 0.5 - cy
		for x := max(x0, int(cx-r)); x < min(x1, int(cx+r)+1); x++ {
			dx := float64(x) + 0.5 - cx
			if dx*dx+dy*dy > r2 {
				continue
			}
			o := f.Offset(x, y)
			f.Data[o], f.Data[o+1], f.Data[o+2], f.Data[o+3] = c.R, c.G, c.B, c.A
		}
	}
}
