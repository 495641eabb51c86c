package audio

import "bytes"

// Format is a container/codec detected from magic bytes.
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatVorbis  Format = "ogg/vorbis"
	FormatOpus    Format = "ogg/opus"
	FormatUnknown Format = "unknown"
)

var (
	riffMagic   = []byte("RIFF")
	waveMagic   = []byte("WAVE")
	oggMagic    = []byte("OggS")
	id3Magic    = []byte("ID3")
	vorbisIdent = []byte("\x01vorbis")
	opusIdent   = []byte("OpusHead")
)

// oggProbeWindow bounds how far into an Ogg stream the codec header is searched.
const oggProbeWindow = 512

// DetectFormat sniffs the container of raw audio bytes.
func DetectFormat(raw []byte) Format {
	switch {
	case len(raw) >= 12 && bytes.Equal(raw[:4], riffMagic) && bytes.Equal(raw[8:12], waveMagic):
		return FormatWAV
	case len(raw) >= 4 && bytes.Equal(raw[:4], oggMagic):
		head := raw[:min(len(raw), oggProbeWindow)]
		if bytes.Contains(head, vorbisIdent) {
			return FormatVorbis
		}
		if bytes.Contains(head, opusIdent) {
			return FormatOpus
		}
		return FormatUnknown
	case len(raw) >= 3 && bytes.Equal(raw[:3], id3Magic):
		return FormatMP3
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1]&0xE0 == 0xE0 && raw[1]&0x06 != 0:
		// MPEG audio frame sync with a layer set (rules out ADTS AAC).
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// native reports whether the format has an in-process decoder.
func (f Format) native() bool {
	switch f {
	case FormatWAV, FormatMP3, FormatVorbis:
		return true
	default:
		return false
	}
}
