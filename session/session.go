// Package session owns the end-to-end dubbing workflow for one user.
//
// A single Orchestrator instance sequences upload, analysis, translation,
// and synthesis as an explicit state machine. Each trigger performs at most
// one gateway call; session fields are assigned only after a call fully
// succeeds and validates, so a failure never leaves partial data behind.
package session

import (
	"errors"

	"github.com/verseforge/songdub/gateway"
	"github.com/verseforge/songdub/media"
)

// State tags which operations are currently permitted and which session
// fields are expected to be populated.
type State string

// Workflow states.
const (
	// StateIdle accepts file selection and analysis.
	StateIdle State = "IDLE"

	// StateAnalyzing is held while the analysis call is in flight.
	StateAnalyzing State = "ANALYZING"

	// StateLyricsReview accepts target-language selection and translation.
	StateLyricsReview State = "LYRICS_REVIEW"

	// StateDubbing accepts synthesis.
	StateDubbing State = "DUBBING"

	// StateComplete holds the finished dubbed track.
	StateComplete State = "COMPLETE"

	// StateError marks an unrecoverable configuration failure; only
	// Reset leaves it.
	StateError State = "ERROR"
)

// Orchestrator errors.
var (
	// ErrInputTooLarge indicates the selected file exceeds the upload
	// limit. Checked synchronously, before any gateway call.
	ErrInputTooLarge = errors.New("input file exceeds size limit")

	// ErrBusy indicates a gateway call is already in flight for this
	// session. Triggers are rejected rather than queued.
	ErrBusy = errors.New("another operation is in flight")

	// ErrInvalidTransition indicates the trigger is not permitted in the
	// current state.
	ErrInvalidTransition = errors.New("operation not permitted in current state")

	// ErrNoFile indicates analysis was requested before a file was
	// selected.
	ErrNoFile = errors.New("no file selected")
)

// Snapshot is a point-in-time copy of the session exposed to the
// presentation layer. It carries no ownership; media is referenced by URL.
type Snapshot struct {
	State          State                    `json:"state"`
	Busy           bool                     `json:"busy"`
	FileName       string                   `json:"fileName,omitempty"`
	FileSize       int                      `json:"fileSize,omitempty"`
	SourceURL      string                   `json:"sourceUrl,omitempty"`
	Analysis       *gateway.AnalysisResult  `json:"analysis,omitempty"`
	TargetLanguage string                   `json:"targetLanguage"`
	Translations   []gateway.TranslatedLine `json:"translations,omitempty"`
	DubbedURL      string                   `json:"dubbedUrl,omitempty"`
	LastError      string                   `json:"error,omitempty"`
}

// Event notifies subscribers of a state machine transition.
type Event struct {
	State State  `json:"state"`
	Busy  bool   `json:"busy"`
	Error string `json:"error,omitempty"`
}

// sessionData is the aggregate for one upload-to-dub cycle. Discarded and
// recreated whole on reset.
type sessionData struct {
	fileName     string
	fileMIME     string
	fileData     []byte
	source       *media.Handle
	analysis     *gateway.AnalysisResult
	targetLang   string
	translations []gateway.TranslatedLine
	dubbed       *media.Handle
	lastError    string
}
