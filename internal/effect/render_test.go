package effect

import (
	"image/color"
	"testing"

	"github.com/jmylchreest/brickify/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(w, h int, c color.RGBA) *frame.Frame {
	f := frame.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := f.Offset(x, y)
			f.Data[o], f.Data[o+1], f.Data[o+2], f.Data[o+3] = c.R, c.G, c.B, c.A
		}
	}
	return f
}

func pixel(f *frame.Frame, x, y int) color.RGBA {
	o := f.Offset(x, y)
	return color.RGBA{R: f.Data[o], G: f.Data[o+1], B: f.Data[o+2], A: f.Data[o+3]}
}

func TestRender_TwoByTwoRed(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	out := Render(uniform(2, 2, red), Params{BlockSize: 2})
	require.NoError(t, out.Validate())

	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			assert.Equal(t, red, pixel(out, x, y))
		}
	}

	hi, sh := StudColors(red)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, hi)
	assert.Equal(t, color.RGBA{R: 204, A: 255}, sh)
}

func TestRender_UniformColorAcrossBlockSizes(t *testing.T) {
	c := color.RGBA{R: 100, G: 150, B: 30, A: 255}
	hi, sh := StudColors(c)
	assert.Equal(t, color.RGBA{R: 110, G: 165, B: 33, A: 255}, hi)
	assert.Equal(t, color.RGBA{R: 80, G: 120, B: 24, A: 255}, sh)

	for bs := DefaultMinBlockSize; bs <= DefaultMaxBlockSize; bs += DefaultStep {
		out := Render(uniform(97, 53, c), Params{BlockSize: bs})
		seen := map[color.RGBA]int{}
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				p := pixel(out, x, y)
				require.Contains(t, []color.RGBA{c, hi, sh}, p, "block size %d pixel (%d,%d)", bs, x, y)
				seen[p]++
			}
		}
		// Block corners are never covered by the stud.
		assert.Equal(t, c, pixel(out, 0, 0))
		assert.Equal(t, c, pixel(out, bs-1, bs-1))
		assert.Positive(t, seen[hi], "block size %d has highlight pixels", bs)
		assert.Positive(t, seen[sh], "block size %d has shadow ring", bs)

		center := bs / 2
		assert.Equal(t, hi, pixel(out, center, center), "stud top sits at the cell center")
	}
}

func TestStudColors_ClampsSaturatedChannels(t *testing.T) {
	for v := 0; v <= 255; v++ {
		c := color.RGBA{R: uint8(v), G: uint8(255 - v), B: 255, A: 255}
		hi, sh := StudColors(c)
		assert.LessOrEqual(t, int(hi.R), frame.MaxChannel)
		assert.GreaterOrEqual(t, int(hi.R), v)
		assert.Equal(t, uint8(255), hi.B)
		assert.Equal(t, uint8(v*8/10), sh.R)
	}
}

func TestRender_SamplesCellCenter(t *testing.T) {
	f := uniform(20, 10, color.RGBA{A: 255})
	// Only the center pixel of the first cell is colored.
	o := f.Offset(5, 5)
	f.Data[o] = 250

	out := Render(f, Params{BlockSize: 10})
	assert.Equal(t, uint8(250), pixel(out, 0, 0).R)
	assert.Equal(t, uint8(250), pixel(out, 9, 9).R)
	assert.Equal(t, uint8(0), pixel(out, 10, 0).R, "second cell samples its own center")
}

func TestRender_PartialEdgeCellUsesClampedSample(t *testing.T) {
	// 12 px wide with block 10: second cell spans x=10..11, center x=15 clamps to 11.
	f := uniform(12, 10, color.RGBA{A: 255})
	for y := 0; y < 10; y++ {
		o := f.Offset(11, y)
		f.Data[o+2] = 200
	}
	out := Render(f, Params{BlockSize: 10})
	assert.Equal(t, 12, out.Width)
	assert.Equal(t, 10, out.Height)
	assert.Equal(t, uint8(200), pixel(out, 10, 0).B)
	assert.Equal(t, uint8(200), pixel(out, 11, 9).B)
}

func TestRender_Deterministic(t *testing.T) {
	f := frame.New(64, 48)
	for i := range f.Data {
		f.Data[i] = byte(i * 31 % 251)
	}
	a := Render(f, Params{BlockSize: 15})
	b := Render(f, Params{BlockSize: 15})
	assert.Equal(t, a.Data, b.Data)
}

func TestRender_ZeroAreaInput(t *testing.T) {
	assert.True(t, Render(&frame.Frame{}, Params{BlockSize: 10}).Empty())
	assert.True(t, Render(frame.New(0, 10), Params{BlockSize: 10}).Empty())
	assert.True(t, Render(nil, Params{BlockSize: 10}).Empty())
}

func TestRender_PreservesPTSAndSource(t *testing.T) {
	f := uniform(10, 10, color.RGBA{G: 9, A: 255})
	f.PTS = 1234
	orig := f.Clone()
	out := Render(f, Params{BlockSize: 10})
	assert.Equal(t, f.PTS, out.PTS)
	assert.Equal(t, orig.Data, f.Data, "source is not modified")
}

func TestRenderInto(t *testing.T) {
	src := uniform(30, 30, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	dst := frame.New(30, 30)
	require.NoError(t, RenderInto(dst, src, Params{BlockSize: 10}))
	assert.Equal(t, Render(src, Params{BlockSize: 10}).Data, dst.Data)

	err := RenderInto(frame.New(10, 10), src, Params{BlockSize: 10})
	assert.ErrorIs(t, err, frame.ErrGeometryMismatch)

	err = RenderInto(dst, &frame.Frame{}, Params{BlockSize: 10})
	assert.Error(t, err)
}

func TestRender_NonPositiveBlockSize(t *testing.T) {
	// Treated as single-pixel blocks: every pixel is covered by its own shadow disc.
	c := color.RGBA{R: 50, G: 100, B: 200, A: 255}
	_, sh := StudColors(c)
	out := Render(uniform(3, 3, c), Params{BlockSize: 0})
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			assert.Equal(t, sh, pixel(out, x, y))
		}
	}
}
