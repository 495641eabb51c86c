package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

const wavFormatPCM = 1

// EncodeWAV wraps normalized PCM in a RIFF/WAVE container.
func EncodeWAV(a *domain.NormalizedAudio) ([]byte, error) {
	data := make([]int, a.Samples())
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(a.PCM[i*2:])))
	}

	out := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(out, domain.SampleRate, domain.BitDepth, domain.Channels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: domain.Channels, SampleRate: domain.SampleRate},
		Data:           data,
		SourceBitDepth: domain.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return io.ReadAll(out.Reader())
}
