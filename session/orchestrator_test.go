package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verseforge/songdub/gateway"
	"github.com/verseforge/songdub/media"
	"github.com/verseforge/songdub/wav"
)

// stubGateway returns canned results or errors and counts calls.
type stubGateway struct {
	analysis     *gateway.AnalysisResult
	analyzeErr   error
	translations []gateway.TranslatedLine
	translateErr error
	audio        []byte
	synthErr     error

	analyzeCalls   int
	translateCalls int
	synthCalls     int

	// block, when non-nil, is closed by the test to let a call finish.
	block chan struct{}
}

func (s *stubGateway) Analyze(ctx context.Context, mediaBytes []byte, mimeType string) (*gateway.AnalysisResult, error) {
	s.analyzeCalls++
	if s.block != nil {
		<-s.block
	}
	return s.analysis, s.analyzeErr
}

func (s *stubGateway) Translate(ctx context.Context, lyrics []string, targetLanguage, sourceLanguage string, bpm float64) ([]gateway.TranslatedLine, error) {
	s.translateCalls++
	if s.block != nil {
		<-s.block
	}
	return s.translations, s.translateErr
}

func (s *stubGateway) Synthesize(ctx context.Context, lines []gateway.TranslatedLine, gender gateway.Gender, targetLanguage string) ([]byte, error) {
	s.synthCalls++
	if s.block != nil {
		<-s.block
	}
	return s.audio, s.synthErr
}

func testAnalysis() *gateway.AnalysisResult {
	return &gateway.AnalysisResult{
		Language: "English",
		Genre:    "rock",
		BPM:      120,
		Emotion:  "defiant",
		Gender:   gateway.GenderMale,
		Lyrics:   []string{"first line", "second line"},
		Summary:  "Raspy and loud.",
	}
}

func testTranslations() []gateway.TranslatedLine {
	return []gateway.TranslatedLine{
		{Original: "first line", Translated: "primera línea"},
		{Original: "second line", Translated: "segunda línea"},
	}
}

func newTestOrchestrator(gw gateway.Gateway) (*Orchestrator, *media.Store) {
	store := media.NewStore()
	return NewOrchestrator(gw, store, Config{}), store
}

// advanceTo walks the orchestrator to the requested state.
func advanceTo(t *testing.T, o *Orchestrator, target State) {
	t.Helper()
	require.NoError(t, o.SelectFile("song.mp3", "audio/mpeg", []byte("bytes")))
	if target == StateIdle {
		return
	}
	require.NoError(t, o.StartAnalysis(t.Context()))
	if target == StateLyricsReview {
		return
	}
	require.NoError(t, o.StartTranslation(t.Context()))
	if target == StateDubbing {
		return
	}
	require.NoError(t, o.StartSynthesis(t.Context()))
}

func TestInitialState(t *testing.T) {
	o, _ := newTestOrchestrator(&stubGateway{})

	snap := o.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Busy)
	assert.Equal(t, DefaultTargetLanguage, snap.TargetLanguage)
	assert.Nil(t, snap.Analysis)
	assert.Empty(t, snap.Translations)
	assert.Empty(t, snap.DubbedURL)
}

func TestSelectFileTooLarge(t *testing.T) {
	gw := &stubGateway{}
	o, store := newTestOrchestrator(gw)

	err := o.SelectFile("big.mp3", "audio/mpeg", make([]byte, 12<<20))
	assert.ErrorIs(t, err, ErrInputTooLarge)

	snap := o.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.FileName)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, gw.analyzeCalls, "no gateway call may be made")
}

func TestSelectFileReplacesPrevious(t *testing.T) {
	o, store := newTestOrchestrator(&stubGateway{})

	require.NoError(t, o.SelectFile("a.mp3", "audio/mpeg", []byte("a")))
	first := o.Snapshot().SourceURL
	require.NoError(t, o.SelectFile("b.mp3", "audio/mpeg", []byte("b")))

	assert.Equal(t, 1, store.Len(), "previous handle must be released")
	assert.NotEqual(t, first, o.Snapshot().SourceURL)
}

func TestAnalysisSuccess(t *testing.T) {
	gw := &stubGateway{analysis: testAnalysis()}
	o, _ := newTestOrchestrator(gw)

	require.NoError(t, o.SelectFile("song.mp3", "audio/mpeg", []byte("bytes")))
	require.NoError(t, o.StartAnalysis(t.Context()))

	snap := o.Snapshot()
	assert.Equal(t, StateLyricsReview, snap.State)
	require.NotNil(t, snap.Analysis)
	assert.Equal(t, []string{"first line", "second line"}, snap.Analysis.Lyrics)
	assert.Empty(t, snap.LastError)
}

func TestAnalysisFailureRevertsToIdle(t *testing.T) {
	gw := &stubGateway{analyzeErr: gateway.ErrSchemaViolation}
	o, _ := newTestOrchestrator(gw)

	require.NoError(t, o.SelectFile("song.mp3", "audio/mpeg", []byte("bytes")))
	err := o.StartAnalysis(t.Context())
	assert.ErrorIs(t, err, gateway.ErrSchemaViolation)

	snap := o.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Analysis, "failure must not partially mutate the session")
	assert.NotEmpty(t, snap.LastError)
	assert.False(t, snap.Busy)
}

func TestAnalysisRequiresFile(t *testing.T) {
	o, _ := newTestOrchestrator(&stubGateway{})

	assert.ErrorIs(t, o.StartAnalysis(t.Context()), ErrNoFile)
}

func TestTranslationFailureStaysInReview(t *testing.T) {
	gw := &stubGateway{analysis: testAnalysis(), translateErr: &gateway.ServiceError{StatusCode: 503, Message: "overloaded"}}
	o, _ := newTestOrchestrator(gw)
	advanceTo(t, o, StateLyricsReview)

	err := o.StartTranslation(t.Context())
	var svcErr *gateway.ServiceError
	assert.ErrorAs(t, err, &svcErr)

	snap := o.Snapshot()
	assert.Equal(t, StateLyricsReview, snap.State)
	assert.NotNil(t, snap.Analysis, "analysis must be preserved")
	assert.Empty(t, snap.Translations)
	assert.NotEmpty(t, snap.LastError)
}

func TestTranslationSuccessAdvancesToDubbing(t *testing.T) {
	gw := &stubGateway{analysis: testAnalysis(), translations: testTranslations()}
	o, _ := newTestOrchestrator(gw)
	advanceTo(t, o, StateLyricsReview)

	require.NoError(t, o.SelectTargetLanguage("French"))
	require.NoError(t, o.StartTranslation(t.Context()))

	snap := o.Snapshot()
	assert.Equal(t, StateDubbing, snap.State)
	assert.Equal(t, "French", snap.TargetLanguage)
	assert.Len(t, snap.Translations, 2)
}

func TestSelectTargetLanguageOnlyInReview(t *testing.T) {
	o, _ := newTestOrchestrator(&stubGateway{})

	assert.ErrorIs(t, o.SelectTargetLanguage("French"), ErrInvalidTransition)
}

func TestSynthesisFailureStaysInDubbing(t *testing.T) {
	gw := &stubGateway{
		analysis:     testAnalysis(),
		translations: testTranslations(),
		synthErr:     &gateway.RefusalError{Text: "no"},
	}
	o, _ := newTestOrchestrator(gw)
	advanceTo(t, o, StateDubbing)

	err := o.StartSynthesis(t.Context())
	var refusal *gateway.RefusalError
	assert.ErrorAs(t, err, &refusal)

	snap := o.Snapshot()
	assert.Equal(t, StateDubbing, snap.State)
	assert.Empty(t, snap.DubbedURL)
	assert.NotEmpty(t, snap.LastError)
	assert.False(t, snap.Busy, "loading flag must be cleared")
}

func TestSynthesisSuccessCompletes(t *testing.T) {
	audio := wav.EncodeSpeech(make([]byte, 1000))
	gw := &stubGateway{analysis: testAnalysis(), translations: testTranslations(), audio: audio}
	o, store := newTestOrchestrator(gw)
	advanceTo(t, o, StateDubbing)

	require.NoError(t, o.StartSynthesis(t.Context()))

	snap := o.Snapshot()
	assert.Equal(t, StateComplete, snap.State)
	assert.NotEmpty(t, snap.DubbedURL)

	handle, filename, ok := o.Dubbed()
	require.True(t, ok)
	assert.Equal(t, "dubbed-Spanish.wav", filename)

	data, mimeType, err := store.Get(handle.ID)
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", mimeType)
	assert.Len(t, data, 1044)
}

func TestNoTranslationsBeforeReview(t *testing.T) {
	gw := &stubGateway{analysis: testAnalysis()}
	o, _ := newTestOrchestrator(gw)

	assert.ErrorIs(t, o.StartTranslation(t.Context()), ErrInvalidTransition)
	assert.Empty(t, o.Snapshot().Translations)

	require.NoError(t, o.SelectFile("song.mp3", "audio/mpeg", []byte("x")))
	assert.ErrorIs(t, o.StartSynthesis(t.Context()), ErrInvalidTransition)
	assert.Empty(t, o.Snapshot().DubbedURL)
}

func TestResetFromEveryState(t *testing.T) {
	for _, target := range []State{StateIdle, StateLyricsReview, StateDubbing, StateComplete} {
		t.Run(string(target), func(t *testing.T) {
			gw := &stubGateway{
				analysis:     testAnalysis(),
				translations: testTranslations(),
				audio:        wav.EncodeSpeech([]byte{0, 0}),
			}
			o, store := newTestOrchestrator(gw)
			advanceTo(t, o, target)

			o.Reset()

			snap := o.Snapshot()
			assert.Equal(t, StateIdle, snap.State)
			assert.Empty(t, snap.FileName)
			assert.Zero(t, snap.FileSize)
			assert.Empty(t, snap.SourceURL)
			assert.Nil(t, snap.Analysis)
			assert.Empty(t, snap.Translations)
			assert.Empty(t, snap.DubbedURL)
			assert.Empty(t, snap.LastError)
			assert.Equal(t, DefaultTargetLanguage, snap.TargetLanguage)
			assert.Equal(t, 0, store.Len(), "all media handles must be released")
		})
	}
}

func TestBusyGuardRejectsOverlap(t *testing.T) {
	gw := &stubGateway{analysis: testAnalysis(), block: make(chan struct{})}
	o, _ := newTestOrchestrator(gw)
	require.NoError(t, o.SelectFile("song.mp3", "audio/mpeg", []byte("x")))

	done := make(chan error, 1)
	go func() { done <- o.StartAnalysis(context.Background()) }()

	// Wait until the first call is in flight.
	require.Eventually(t, func() bool { return o.Snapshot().Busy }, time.Second, time.Millisecond)

	assert.ErrorIs(t, o.StartAnalysis(t.Context()), ErrBusy)

	close(gw.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, gw.analyzeCalls)
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	gw := &stubGateway{analysis: testAnalysis(), block: make(chan struct{})}
	o, _ := newTestOrchestrator(gw)
	require.NoError(t, o.SelectFile("song.mp3", "audio/mpeg", []byte("x")))

	done := make(chan error, 1)
	go func() { done <- o.StartAnalysis(context.Background()) }()
	require.Eventually(t, func() bool { return o.Snapshot().Busy }, time.Second, time.Millisecond)

	o.Reset()
	close(gw.block)
	<-done

	snap := o.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Analysis, "result arriving after reset must be discarded")
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	gw := &stubGateway{analysis: testAnalysis()}
	o, _ := newTestOrchestrator(gw)

	events, cancel := o.Subscribe()
	defer cancel()

	require.NoError(t, o.SelectFile("song.mp3", "audio/mpeg", []byte("x")))
	require.NoError(t, o.StartAnalysis(t.Context()))

	var states []State
	for len(events) > 0 {
		ev := <-events
		states = append(states, ev.State)
	}
	assert.Equal(t, []State{StateIdle, StateAnalyzing, StateLyricsReview}, states)
}
