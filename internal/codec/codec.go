// Package codec provides a unified codec registry for the video and audio codecs
// brickify can carry in a fragmented MP4 container.
package codec

import (
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

// Kind classifies an elementary stream.
type Kind string

// Track kinds.
const (
	KindUnknown Kind = ""
	KindVideo   Kind = "video"
	KindAudio   Kind = "audio"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}

// Video represents a video codec.
type Video string

// Video codec constants.
const (
	VideoMJPEG Video = "mjpeg" // Motion JPEG, the only codec the effect pipeline decodes
	VideoH264  Video = "h264"  // H.264/AVC
	VideoH265  Video = "h265"  // H.265/HEVC
	VideoVP9   Video = "vp9"   // VP9
	VideoAV1   Video = "av1"   // AV1
	VideoMPEG4 Video = "mpeg4" // MPEG-4 Part 2
	VideoMPEG1 Video = "mpeg1" // MPEG-1/2 video
)

// Audio represents an audio codec.
type Audio string

// Audio codec constants.
const (
	AudioAAC  Audio = "aac"  // AAC
	AudioOpus Audio = "opus" // Opus
	AudioAC3  Audio = "ac3"  // Dolby Digital (AC-3)
	AudioEAC3 Audio = "eac3" // Dolby Digital Plus (E-AC-3)
	AudioMP3  Audio = "mp3"  // MPEG-1 audio
	AudioPCM  Audio = "pcm"  // Linear PCM
)

// String returns the string representation of the video codec.
func (v Video) String() string {
	return string(v)
}

// String returns the string representation of the audio codec.
func (a Audio) String() string {
	return string(a)
}

// IsDecodable reports whether frames of this codec can be decoded to pixels.
func (v Video) IsDecodable() bool {
	return v == VideoMJPEG
}

// videoAliases maps every recognized name to its canonical codec.
var videoAliases = map[string]Video{
	"mjpeg": VideoMJPEG, "mjpg": VideoMJPEG, "jpeg": VideoMJPEG, "mp4v-jpeg": VideoMJPEG,
	"h264": VideoH264, "avc": VideoH264, "avc1": VideoH264, "h.264": VideoH264,
	"h265": VideoH265, "hevc": VideoH265, "hev1": VideoH265, "hvc1": VideoH265, "h.265": VideoH265,
	"vp9": VideoVP9, "vp09": VideoVP9,
	"av1": VideoAV1, "av01": VideoAV1,
	"mpeg4": VideoMPEG4, "mp4v": VideoMPEG4,
	"mpeg1": VideoMPEG1, "mpeg2": VideoMPEG1,
}

// audioAliases maps every recognized name to its canonical codec.
var audioAliases = map[string]Audio{
	"aac": AudioAAC, "mp4a": AudioAAC,
	"opus": AudioOpus,
	"ac3": AudioAC3, "ac-3": AudioAC3, "a52": AudioAC3,
	"eac3": AudioEAC3, "ec-3": AudioEAC3,
	"mp3": AudioMP3, "mp2": AudioMP3, "mpga": AudioMP3,
	"pcm": AudioPCM, "lpcm": AudioPCM, "ipcm": AudioPCM,
}

// ParseVideo parses a codec name or alias to a Video codec.
// Returns the canonical codec and whether the parse was successful.
func ParseVideo(s string) (Video, bool) {
	if s == "" {
		return "", false
	}
	codec, ok := videoAliases[strings.ToLower(strings.TrimSpace(s))]
	return codec, ok
}

// ParseAudio parses a codec name or alias to an Audio codec.
// Returns the canonical codec and whether the parse was successful.
func ParseAudio(s string) (Audio, bool) {
	if s == "" {
		return "", false
	}
	codec, ok := audioAliases[strings.ToLower(strings.TrimSpace(s))]
	return codec, ok
}

// Info describes a track codec as found in an initialization segment.
type Info struct {
	Kind Kind
	// Name is the canonical Video or Audio name, or "unknown".
	Name string
}

// Describe classifies a mediacommon codec.
func Describe(c mp4.Codec) Info {
	switch c.(type) {
	case *mp4.CodecMJPEG:
		return Info{Kind: KindVideo, Name: VideoMJPEG.String()}
	case *mp4.CodecH264:
		return Info{Kind: KindVideo, Name: VideoH264.String()}
	case *mp4.CodecH265:
		return Info{Kind: KindVideo, Name: VideoH265.String()}
	case *mp4.CodecVP9:
		return Info{Kind: KindVideo, Name: VideoVP9.String()}
	case *mp4.CodecAV1:
		return Info{Kind: KindVideo, Name: VideoAV1.String()}
	case *mp4.CodecMPEG4Video:
		return Info{Kind: KindVideo, Name: VideoMPEG4.String()}
	case *mp4.CodecMPEG1Video:
		return Info{Kind: KindVideo, Name: VideoMPEG1.String()}
	case *mp4.CodecMPEG4Audio:
		return Info{Kind: KindAudio, Name: AudioAAC.String()}
	case *mp4.CodecOpus:
		return Info{Kind: KindAudio, Name: AudioOpus.String()}
	case *mp4.CodecAC3:
		return Info{Kind: KindAudio, Name: AudioAC3.String()}
	case *mp4.CodecEAC3:
		return Info{Kind: KindAudio, Name: AudioEAC3.String()}
	case *mp4.CodecMPEG1Audio:
		return Info{Kind: KindAudio, Name: AudioMP3.String()}
	case *mp4.CodecLPCM:
		return Info{Kind: KindAudio, Name: AudioPCM.String()}
	default:
		return Info{Kind: KindUnknown, Name: "unknown"}
	}
}

// KindOf returns the track kind of a mediacommon codec.
func KindOf(c mp4.Codec) Kind {
	return Describe(c).Kind
}
