// Package gateway is the façade over the external generative-AI service.
//
// It exposes the three remote operations the dubbing workflow needs: audio
// understanding (Analyze), lyric translation (Translate), and speech
// synthesis (Synthesize). Each operation is a single non-retrying
// request/await/validate round trip; the caller decides whether and when to
// try again.
package gateway

import "context"

// Gender classifies the detected lead vocalist. It is always one of the
// three enumerated values; anything else from the service is rejected
// during response validation.
type Gender string

// Gender classifications returned by analysis.
const (
	GenderMale    Gender = "MALE"
	GenderFemale  Gender = "FEMALE"
	GenderUnknown Gender = "UNKNOWN"
)

// AnalysisResult holds the structured metadata extracted from an uploaded
// song. Immutable once produced; the lyric order is performance order and
// is never reordered downstream.
type AnalysisResult struct {
	// Language is the detected source language of the lyrics.
	Language string `json:"language"`

	// Genre is the detected musical genre.
	Genre string `json:"genre"`

	// BPM is the detected tempo in beats per minute.
	BPM float64 `json:"bpm"`

	// Emotion is the dominant emotional tone of the performance.
	Emotion string `json:"emotion"`

	// Gender is the singer gender classification.
	Gender Gender `json:"gender"`

	// Lyrics are the detected lyric lines in performance order.
	Lyrics []string `json:"lyrics"`

	// Summary is a one-sentence description of the vocal style.
	Summary string `json:"summary"`
}

// TranslatedLine pairs an original lyric line with its translation.
// Produced as an ordered sequence corresponding 1:1 positionally to the
// analysis lyric sequence.
type TranslatedLine struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
}

// Gateway is the remote AI service boundary. Implementations perform one
// request per call and never retry.
type Gateway interface {
	// Analyze extracts structured song metadata from raw media bytes.
	Analyze(ctx context.Context, mediaBytes []byte, mimeType string) (*AnalysisResult, error)

	// Translate converts the lyric sequence to the target language,
	// asking the model to keep syllable counts singable at the given
	// tempo and to preserve rhyme where possible. Singability is a
	// request hint, not a validated guarantee.
	Translate(ctx context.Context, lyrics []string, targetLanguage, sourceLanguage string, bpm float64) ([]TranslatedLine, error)

	// Synthesize renders the translated lines as a dubbed vocal track
	// and returns a playable WAV container.
	Synthesize(ctx context.Context, lines []TranslatedLine, gender Gender, targetLanguage string) ([]byte, error)
}
