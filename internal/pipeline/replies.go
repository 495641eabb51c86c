package pipeline

import "github.com/mississippi1/whatsapp-transcripts-server/internal/domain"

// User-facing reply texts.
const (
	HelpReply                = `Please send a voice recording or set your language preference with "language: English" or "language: Hebrew"`
	AckReply                 = "Received your audio. Transcribing now..."
	TranscriptPrefix         = "Transcription:\n\n"
	ApologyReply             = "Sorry, there was an error transcribing your audio. Please try again."
	UnsupportedLanguageReply = `Unsupported language. Please use "language: English" or "language: Hebrew".`
)

func confirmReply(languageCode string) string {
	return "Language set to " + domain.LanguageDisplayName(languageCode) +
		". You can now send voice recordings for transcription."
}

func transcriptReply(text string) string {
	return TranscriptPrefix + text
}
