package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Container errors.
var (
	ErrNotFMP4        = errors.New("not a fragmented mp4 file")
	ErrMalformedBox   = errors.New("malformed mp4 box")
	ErrAssetClosed    = errors.New("asset is closed")
	ErrTrackNotFound  = errors.New("track not found")
	ErrUnsupported    = errors.New("unsupported codec")
	ErrWritingStarted = errors.New("writer already started")
	ErrDuplicateInput = errors.New("writer already has an input of this kind")
	ErrNotReady       = errors.New("input is not ready for more media data")
	ErrNonMonotonic   = errors.New("sample timestamp does not advance")
	ErrOutputExists   = errors.New("output location already exists")
	ErrReaderStarted  = errors.New("reader already started")
	ErrNoOutputs      = errors.New("reader has no outputs")
	ErrNoInputs       = errors.New("writer has no inputs")
	ErrCancelled      = errors.New("cancelled")
)

// box is a top-level ISO BMFF box located in a file.
type box struct {
	typ    string
	offset int64
	size   int64
}

func (b box) end() int64 { return b.offset + b.size }

// readBox reads the box header at off. A size of zero extends the box to the
// end of the file.
func readBox(r io.ReaderAt, off, fileSize int64) (box, error) {
	var hdr [16]byte
	if _, err := r.ReadAt(hdr[:8], off); err != nil {
		return box{}, fmt.Errorf("reading box header at %d: %w", off, err)
	}
	size := int64(binary.BigEndian.Uint32(hdr[0:4]))
	typ := string(hdr[4:8])
	headerLen := int64(8)

	switch size {
	case 0:
		size = fileSize - off
	case 1:
		if _, err := r.ReadAt(hdr[8:16], off+8); err != nil {
			return box{}, fmt.Errorf("reading extended size of %q at %d: %w", typ, off, err)
		}
		size = int64(binary.BigEndian.Uint64(hdr[8:16]))
		headerLen = 16
	}
	if size < headerLen || off+size > fileSize {
		return box{}, fmt.Errorf("%w: %q at %d claims %d bytes", ErrMalformedBox, typ, off, size)
	}
	return box{typ: typ, offset: off, size: size}, nil
}

// walkBoxes lists the top-level boxes of a file.
func walkBoxes(r io.ReaderAt, fileSize int64) ([]box, error) {
	var boxes []box
	for off := int64(0); off+8 <= fileSize; {
		b, err := readBox(r, off, fileSize)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
		off = b.end()
	}
	return boxes, nil
}

func readRange(r io.ReaderAt, off, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}
