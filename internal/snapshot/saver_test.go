package snapshot

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/brickify/internal/frame"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func testFrame() *frame.Frame {
	f := frame.New(16, 8)
	for i := range f.Data {
		f.Data[i] = byte(i % 251)
	}
	for i := 3; i < len(f.Data); i += 4 {
		f.Data[i] = 255
	}
	return f
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"png", FormatPNG, false},
		{"", FormatPNG, false},
		{"JPG", FormatJPEG, false},
		{".jpeg", FormatJPEG, false},
		{"bmp", FormatBMP, false},
		{"tif", FormatTIFF, false},
		{"gif", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_LosslessFormatsRoundTrip(t *testing.T) {
	f := testFrame()
	decoders := map[Format]func(*bytes.Buffer) (image.Image, error){
		FormatPNG: func(b *bytes.Buffer) (image.Image, error) {
			img, _, err := image.Decode(b)
			return img, err
		},
		FormatBMP: func(b *bytes.Buffer) (image.Image, error) { return bmp.Decode(b) },
		FormatTIFF: func(b *bytes.Buffer) (image.Image, error) {
			return tiff.Decode(bytes.NewReader(b.Bytes()))
		},
	}
	for format, decode := range decoders {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, f, format))
			img, err := decode(&buf)
			require.NoError(t, err)
			got := frame.FromImage(img, 0)
			assert.Equal(t, f.Data, got.Data)
		})
	}
}

func TestEncode_Rejects(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, &frame.Frame{}, FormatPNG))
	assert.Error(t, Encode(&buf, testFrame(), Format("gif")))
}

func TestDirSaver_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "photos")
	s, err := NewDirSaver(dir, FormatJPEG)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Dir())

	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return stamp }

	path, err := s.Save(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".jpg"))

	id, err := ulid.Parse(strings.TrimSuffix(filepath.Base(path), ".jpg"))
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(stamp), id.Time())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 16, img.Bounds().Dx())

	second, err := s.Save(context.Background(), testFrame())
	require.NoError(t, err)
	assert.NotEqual(t, path, second, "names are unique")
}

func TestDirSaver_Errors(t *testing.T) {
	_, err := NewDirSaver("", FormatPNG)
	assert.Error(t, err)

	s, err := NewDirSaver(t.TempDir(), FormatPNG)
	require.NoError(t, err)
	_, err = s.Save(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Save(ctx, testFrame())
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFormat_Metadata(t *testing.T) {
	assert.Equal(t, ".jpg", FormatJPEG.Ext())
	assert.Equal(t, ".tiff", FormatTIFF.Ext())
	assert.Equal(t, "image/png", FormatPNG.ContentType())
}
