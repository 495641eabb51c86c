package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// vorbisChunk is the float buffer size used when draining an Ogg Vorbis stream.
const vorbisChunk = 16384

func decodeWAV(raw []byte) (*pcm, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV header")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read PCM buffer: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, errors.New("WAV has no format chunk")
	}

	depth := int(dec.BitDepth)
	if buf.SourceBitDepth > 0 {
		depth = buf.SourceBitDepth
	}
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", depth)
	}

	samples := make([]float32, len(buf.Data))
	if depth == 8 {
		// 8-bit WAV is unsigned.
		for i, v := range buf.Data {
			samples[i] = float32(v-128) / 128
		}
	} else {
		scale := float32(int64(1) << (depth - 1))
		for i, v := range buf.Data {
			samples[i] = float32(v) / scale
		}
	}
	return &pcm{samples: samples, channels: buf.Format.NumChannels, rate: buf.Format.SampleRate}, nil
}

func decodeMP3(raw []byte) (*pcm, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create MP3 decoder: %w", err)
	}
	// go-mp3 always yields 16-bit little-endian stereo.
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read MP3 data: %w", err)
	}
	return &pcm{samples: decodePCM16(data), channels: 2, rate: dec.SampleRate()}, nil
}

func decodeVorbis(raw []byte) (*pcm, error) {
	dec, err := oggvorbis.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create Ogg decoder: %w", err)
	}
	var samples []float32
	buf := make([]float32, vorbisChunk)
	for {
		n, err := dec.Read(buf)
		samples = append(samples, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read Ogg data: %w", err)
		}
	}
	return &pcm{samples: samples, channels: dec.Channels(), rate: dec.SampleRate()}, nil
}

func decodeNative(f Format, raw []byte) (*pcm, error) {
	switch f {
	case FormatWAV:
		return decodeWAV(raw)
	case FormatMP3:
		return decodeMP3(raw)
	case FormatVorbis:
		return decodeVorbis(raw)
	default:
		return nil, fmt.Errorf("%w: %s", errNoNativeDecoder, f)
	}
}

var errNoNativeDecoder = errors.New("no native decoder")
