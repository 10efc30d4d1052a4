package frame

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(f *Frame, c color.RGBA) {
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			o := f.Offset(x, y)
			f.Data[o], f.Data[o+1], f.Data[o+2], f.Data[o+3] = c.R, c.G, c.B, c.A
		}
	}
}

func TestNew(t *testing.T) {
	f := New(4, 3)
	assert.Equal(t, 16, f.Stride)
	assert.Len(t, f.Data, 48)
	assert.Equal(t, FormatRGBA, f.Format)
	assert.NoError(t, f.Validate())
	assert.False(t, f.Empty())
}

func TestNew_ZeroArea(t *testing.T) {
	for _, dims := range [][2]int{{0, 0}, {0, 5}, {5, 0}, {-1, 3}} {
		f := New(dims[0], dims[1])
		assert.True(t, f.Empty())
		assert.Error(t, f.Validate())
	}
}

func TestValidate_ShortBuffer(t *testing.T) {
	f := New(4, 4)
	f.Data = f.Data[:10]
	assert.Error(t, f.Validate())

	f = New(4, 4)
	f.Format = FormatInvalid
	assert.ErrorIs(t, f.Validate(), ErrUnsupportedFormat)
}

func TestClone_IsIndependent(t *testing.T) {
	f := New(2, 2)
	fill(f, color.RGBA{R: 10, A: 255})
	c := f.Clone()
	c.Data[0] = 99
	assert.Equal(t, byte(10), f.Data[0])
}

func TestCopyTo_SameGeometry(t *testing.T) {
	src := New(3, 2)
	fill(src, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	src.PTS = 40 * time.Millisecond

	dst := New(3, 2)
	require.NoError(t, src.CopyTo(dst))
	assert.Equal(t, src.Data, dst.Data)
	assert.Equal(t, src.PTS, dst.PTS)
}

func TestCopyTo_PaddedStride(t *testing.T) {
	src := New(2, 2)
	fill(src, color.RGBA{R: 200, A: 255})

	dst := &Frame{Width: 2, Height: 2, Format: FormatRGBA, Stride: 12, Data: make([]byte, 24)}
	require.NoError(t, src.CopyTo(dst))
	assert.Equal(t, byte(200), dst.Data[dst.Offset(1, 1)])
	assert.Equal(t, byte(0), dst.Data[8], "padding bytes are untouched")
}

func TestCopyTo_Scales(t *testing.T) {
	src := New(8, 8)
	fill(src, color.RGBA{G: 128, A: 255})

	dst := New(4, 4)
	require.NoError(t, src.CopyTo(dst))
	o := dst.Offset(2, 2)
	assert.InDelta(t, 128, int(dst.Data[o+1]), 1)
}

func TestFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})

	f := FromImage(img, time.Second)
	require.NoError(t, f.Validate())
	assert.Equal(t, time.Second, f.PTS)
	assert.Equal(t, byte(255), f.Data[f.Offset(1, 1)])
	assert.Equal(t, byte(0), f.Data[f.Offset(0, 0)])
}

func TestDrawImage_Scales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.RGBA{B: 77, A: 255})
		}
	}
	dst := New(6, 6)
	require.NoError(t, DrawImage(dst, img))
	assert.InDelta(t, 77, int(dst.Data[dst.Offset(3, 3)+2]), 1)
}
