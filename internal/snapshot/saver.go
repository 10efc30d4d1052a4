// Package snapshot saves processed frames as still images.
package snapshot

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/brickify/internal/frame"
	"github.com/oklog/ulid/v2"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an image encoding.
type Format string

// Supported formats.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// ErrEmptyFrame is returned when there is nothing to save.
var ErrEmptyFrame = errors.New("no frame to save")

// ParseFormat accepts a format name or common extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "png", "":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "bmp":
		return FormatBMP, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format %q", s)
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + string(f)
}

// ContentType returns the MIME type.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

// Saver is the external save operation for snapshots.
type Saver interface {
	Save(ctx context.Context, f *frame.Frame) (string, error)
}

// DirSaver writes snapshots into a directory, naming each file with a ULID so
// names sort by capture time.
type DirSaver struct {
	dir    string
	format Format
	now    func() time.Time
}

// NewDirSaver creates dir if needed.
func NewDirSaver(dir string, format Format) (*DirSaver, error) {
	if dir == "" {
		return nil, errors.New("snapshot directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &DirSaver{dir: dir, format: format, now: time.Now}, nil
}

// Dir returns the target directory.
func (s *DirSaver) Dir() string { return s.dir }

// Save implements Saver and returns the written path.
func (s *DirSaver) Save(ctx context.Context, f *frame.Frame) (string, error) {
	if f.Empty() {
		return "", ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := ulid.MustNew(ulid.Timestamp(s.now()), rand.Reader)
	path := filepath.Join(s.dir, id.String()+s.format.Ext())
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating snapshot: %w", err)
	}
	if err := Encode(out, f, s.format); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("closing snapshot: %w", err)
	}
	return path, nil
}

// Encode writes f to w in the given format.
func Encode(w io.Writer, f *frame.Frame, format Format) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("snapshot frame: %w", err)
	}
	img := f.RGBA()
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case FormatBMP:
		err = bmp.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encoding %s snapshot: %w", format, err)
	}
	return nil
}
