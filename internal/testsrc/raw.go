package testsrc

import (
	"fmt"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
)

// H264SPS and H264PPS are a parseable 1920x1080 baseline parameter set pair.
var (
	H264SPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
		0x20,
	}
	H264PPS = []byte{0x08}
)

// WriteFragments writes init followed by one fragment per part track, in
// order. Base times and sample durations are kept verbatim, so the file may
// hold layouts container.Writer never emits, such as timeline gaps or codecs
// it cannot encode.
func WriteFragments(path string, init *fmp4.Init, tracks []*fmp4.PartTrack) error {
	var data []byte

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return fmt.Errorf("marshaling init segment: %w", err)
	}
	data = append(data, buf.Bytes()...)

	for i, pt := range tracks {
		var buf seekablebuffer.Buffer
		part := fmp4.Part{SequenceNumber: uint32(i + 1), Tracks: []*fmp4.PartTrack{pt}}
		if err := part.Marshal(&buf); err != nil {
			return fmt.Errorf("marshaling fragment %d: %w", i+1, err)
		}
		data = append(data, buf.Bytes()...)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
