package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

// ffmpegArgs asks ffmpeg for raw mono 16 kHz signed 16-bit PCM on stdout.
func ffmpegArgs() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(domain.Channels),
		"-ar", strconv.Itoa(domain.SampleRate),
		"pipe:1",
	}
}

// runFFmpeg pipes raw through ffmpeg and returns normalized PCM bytes.
func runFFmpeg(ctx context.Context, bin string, raw []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, ffmpegArgs()...)
	cmd.Stdin = bytes.NewReader(raw)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("ffmpeg: %w", err)
		}
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}

// LookupFFmpeg resolves an ffmpeg binary name or path. It returns "" when
// ffmpeg cannot be found.
func LookupFFmpeg(name string) string {
	if name == "" {
		return ""
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}
