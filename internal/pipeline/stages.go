package pipeline

import (
	"context"
	"fmt"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

// audioJob carries the intermediate results of one audio event through the
// stages. Each stage fills in its field or returns a typed error.
type audioJob struct {
	event    domain.AudioEvent
	language string
	raw      []byte
	audio    *domain.NormalizedAudio
	result   *domain.TranscriptionResult
}

type stage struct {
	name string
	run  func(context.Context, *audioJob) error
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{"media", p.fetchMedia},
		{"convert", p.convertAudio},
		{"transcribe", p.transcribe},
	}
}

// runStages executes the audio stages in order and stops at the first error.
func (p *Pipeline) runStages(ctx context.Context, job *audioJob) error {
	for _, s := range p.stages() {
		if err := s.run(ctx, job); err != nil {
			return err
		}
		p.logger.Debug("audio stage done", "stage", s.name, "message_id", job.event.MessageID)
	}
	return nil
}

func (p *Pipeline) fetchMedia(ctx context.Context, job *audioJob) error {
	if job.event.MediaRef == "" {
		return &domain.MediaFetchError{Stage: domain.StageResolve, Err: domain.ErrMissingMediaRef}
	}
	raw, err := p.messenger.DownloadMedia(ctx, job.event.MediaRef)
	if err != nil {
		if domain.FailureStage(err) != "media" {
			err = &domain.MediaFetchError{Ref: job.event.MediaRef, Stage: domain.StageDownload, Err: err}
		}
		return err
	}
	job.raw = raw
	return nil
}

func (p *Pipeline) convertAudio(ctx context.Context, job *audioJob) error {
	if !p.normalizer.Validate(job.raw) {
		return &domain.ConversionError{Reason: "unrecognized audio input", Err: domain.ErrUnsupportedFormat}
	}
	audio, err := p.normalizer.Convert(ctx, job.raw)
	if err != nil {
		if domain.FailureStage(err) != "convert" {
			err = &domain.ConversionError{Reason: "convert", Err: err}
		}
		return err
	}
	job.audio = audio
	return nil
}

func (p *Pipeline) transcribe(ctx context.Context, job *audioJob) error {
	res, err := p.transcriber.Transcribe(ctx, job.audio, job.language)
	if err != nil {
		if domain.FailureStage(err) != "transcribe" {
			err = &domain.TranscriptionError{Language: job.language, Err: err}
		}
		return err
	}
	if res == nil {
		return &domain.TranscriptionError{Language: job.language, Err: fmt.Errorf("%s returned no result", p.transcriber.Name())}
	}
	job.result = res
	return nil
}
