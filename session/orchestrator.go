package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/verseforge/songdub/gateway"
	"github.com/verseforge/songdub/logger"
	"github.com/verseforge/songdub/media"
	"github.com/verseforge/songdub/metrics"
	"github.com/verseforge/songdub/wav"
)

// DefaultMaxUploadBytes is the upload cap applied when none is configured.
const DefaultMaxUploadBytes = 10 << 20 // 10 MiB

// DefaultTargetLanguage is the initial target language for new sessions.
const DefaultTargetLanguage = "Spanish"

// eventBuffer is the per-subscriber event channel capacity. Slow consumers
// drop events rather than stalling transitions.
const eventBuffer = 8

// Config configures an Orchestrator.
type Config struct {
	// MaxUploadBytes caps the accepted file size. Zero means
	// DefaultMaxUploadBytes.
	MaxUploadBytes int64

	// DefaultTargetLanguage is the initial target language. Empty means
	// DefaultTargetLanguage.
	DefaultTargetLanguage string
}

// Orchestrator is the finite-state machine sequencing one dubbing session.
// It is safe for concurrent use; overlapping gateway triggers are rejected
// with ErrBusy rather than queued.
type Orchestrator struct {
	gw        gateway.Gateway
	store     *media.Store
	maxUpload int64
	defLang   string

	// calls admits at most one gateway call at a time.
	calls *semaphore.Weighted

	mu    sync.Mutex
	state State
	busy  bool
	data  sessionData
	// generation invalidates in-flight call results after a reset.
	generation uint64

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewOrchestrator creates an idle session orchestrator.
func NewOrchestrator(gw gateway.Gateway, store *media.Store, cfg Config) *Orchestrator {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	defLang := cfg.DefaultTargetLanguage
	if defLang == "" {
		defLang = DefaultTargetLanguage
	}

	return &Orchestrator{
		gw:        gw,
		store:     store,
		maxUpload: maxUpload,
		defLang:   defLang,
		calls:     semaphore.NewWeighted(1),
		state:     StateIdle,
		data:      sessionData{targetLang: defLang},
		subs:      make(map[int]chan Event),
	}
}

// Snapshot returns a copy of the current session for the presentation
// layer.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		State:          o.state,
		Busy:           o.busy,
		FileName:       o.data.fileName,
		FileSize:       len(o.data.fileData),
		TargetLanguage: o.data.targetLang,
		LastError:      o.data.lastError,
	}
	if o.data.source != nil {
		snap.SourceURL = o.data.source.URL
	}
	if o.data.analysis != nil {
		analysis := *o.data.analysis
		snap.Analysis = &analysis
	}
	if len(o.data.translations) > 0 {
		snap.Translations = append([]gateway.TranslatedLine(nil), o.data.translations...)
	}
	if o.data.dubbed != nil {
		snap.DubbedURL = o.data.dubbed.URL
	}
	return snap
}

// Dubbed returns the finished dubbed track and a download filename, or
// false when synthesis has not completed.
func (o *Orchestrator) Dubbed() (handle media.Handle, filename string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateComplete || o.data.dubbed == nil {
		return media.Handle{}, "", false
	}
	return *o.data.dubbed, fmt.Sprintf("dubbed-%s.wav", o.data.targetLang), true
}

// SelectFile stores the uploaded song and derives its playable handle. The
// size cap is enforced synchronously; no gateway call is made. Selecting a
// new file while idle replaces the previous one.
func (o *Orchestrator) SelectFile(name, mimeType string, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle || o.busy {
		return fmt.Errorf("%w: selectFile in state %s", ErrInvalidTransition, o.state)
	}
	if int64(len(data)) > o.maxUpload {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrInputTooLarge, len(data), o.maxUpload)
	}

	if o.data.source != nil {
		o.store.Release(o.data.source.ID)
	}
	handle := o.store.Put(data, mimeType)

	o.data.fileName = name
	o.data.fileMIME = mimeType
	o.data.fileData = data
	o.data.source = &handle
	o.data.lastError = ""

	metrics.SetSessionActive(true)
	logger.Info("file selected", "name", name, "size", len(data), "mime", mimeType)
	o.notifyLocked()
	return nil
}

// SelectTargetLanguage changes the translation target. Permitted only
// during lyrics review.
func (o *Orchestrator) SelectTargetLanguage(lang string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateLyricsReview {
		return fmt.Errorf("%w: selectTargetLanguage in state %s", ErrInvalidTransition, o.state)
	}
	if lang == "" {
		return fmt.Errorf("target language must not be empty")
	}
	o.data.targetLang = lang
	return nil
}

// StartAnalysis sends the selected file for audio understanding. On success
// the session advances to lyrics review; on failure it returns to idle with
// the error recorded.
func (o *Orchestrator) StartAnalysis(ctx context.Context) error {
	if !o.calls.TryAcquire(1) {
		return ErrBusy
	}
	defer o.calls.Release(1)

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return fmt.Errorf("%w: startAnalysis in state %s", ErrInvalidTransition, o.state)
	}
	if o.data.fileData == nil {
		o.mu.Unlock()
		return ErrNoFile
	}
	gen := o.generation
	fileData, fileMIME := o.data.fileData, o.data.fileMIME
	o.state = StateAnalyzing
	o.busy = true
	o.notifyLocked()
	o.mu.Unlock()

	result, err := observe(gateway.OpAnalyze, func() (*gateway.AnalysisResult, error) {
		return o.gw.Analyze(ctx, fileData, fileMIME)
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		// Session was reset while the call was in flight; discard.
		return err
	}
	o.busy = false
	if err != nil {
		o.recordFailureLocked("analysis", err)
		o.state = StateIdle
		if errors.Is(err, gateway.ErrMissingCredential) {
			o.state = StateError
		}
		o.notifyLocked()
		return err
	}

	o.data.analysis = result
	o.data.lastError = ""
	o.state = StateLyricsReview
	logger.Info("analysis complete",
		"language", result.Language,
		"genre", result.Genre,
		"bpm", result.BPM,
		"gender", string(result.Gender),
		"lines", len(result.Lyrics),
	)
	o.notifyLocked()
	return nil
}

// StartTranslation translates the detected lyrics into the selected target
// language. On success the session advances to dubbing; on failure it stays
// in lyrics review with the analysis preserved.
func (o *Orchestrator) StartTranslation(ctx context.Context) error {
	if !o.calls.TryAcquire(1) {
		return ErrBusy
	}
	defer o.calls.Release(1)

	o.mu.Lock()
	if o.state != StateLyricsReview || o.data.analysis == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: startTranslation in state %s", ErrInvalidTransition, o.state)
	}
	gen := o.generation
	analysis := o.data.analysis
	targetLang := o.data.targetLang
	o.busy = true
	o.notifyLocked()
	o.mu.Unlock()

	lines, err := observe(gateway.OpTranslate, func() ([]gateway.TranslatedLine, error) {
		return o.gw.Translate(ctx, analysis.Lyrics, targetLang, analysis.Language, analysis.BPM)
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		return err
	}
	o.busy = false
	if err != nil {
		o.recordFailureLocked("translation", err)
		o.notifyLocked()
		return err
	}

	o.data.translations = lines
	o.data.lastError = ""
	o.state = StateDubbing
	logger.Info("translation complete", "target", targetLang, "lines", len(lines))
	o.notifyLocked()
	return nil
}

// StartSynthesis renders the translated lyrics as a dubbed vocal track. On
// success the session completes; on failure it remains in dubbing with the
// error recorded so the user can retry manually.
func (o *Orchestrator) StartSynthesis(ctx context.Context) error {
	if !o.calls.TryAcquire(1) {
		return ErrBusy
	}
	defer o.calls.Release(1)

	o.mu.Lock()
	if o.state != StateDubbing || len(o.data.translations) == 0 {
		o.mu.Unlock()
		return fmt.Errorf("%w: startSynthesis in state %s", ErrInvalidTransition, o.state)
	}
	gen := o.generation
	translations := o.data.translations
	gender := o.data.analysis.Gender
	targetLang := o.data.targetLang
	o.busy = true
	o.notifyLocked()
	o.mu.Unlock()

	audio, err := observe(gateway.OpSynthesize, func() ([]byte, error) {
		return o.gw.Synthesize(ctx, translations, gender, targetLang)
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		return err
	}
	o.busy = false
	if err != nil {
		o.recordFailureLocked("synthesis", err)
		o.notifyLocked()
		return err
	}

	handle := o.store.Put(audio, wav.MIMEType)
	o.data.dubbed = &handle
	o.data.lastError = ""
	o.state = StateComplete
	metrics.AddSynthesizedBytes(len(audio))
	logger.Info("synthesis complete", "bytes", len(audio), "target", targetLang)
	o.notifyLocked()
	return nil
}

// Reset discards the entire session, releases both media handles, and
// returns to idle. Results of any in-flight call are discarded when they
// arrive.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.data.source != nil {
		o.store.Release(o.data.source.ID)
	}
	if o.data.dubbed != nil {
		o.store.Release(o.data.dubbed.ID)
	}
	o.data = sessionData{targetLang: o.defLang}
	o.state = StateIdle
	o.busy = false
	o.generation++

	metrics.SetSessionActive(false)
	logger.Info("session reset")
	o.notifyLocked()
}

// Subscribe registers an event channel for state transitions. The returned
// cancel function must be called to release the subscription.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	ch := make(chan Event, eventBuffer)
	o.subs[id] = ch
	o.subMu.Unlock()

	cancel := func() {
		o.subMu.Lock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
		o.subMu.Unlock()
	}
	return ch, cancel
}

// observe wraps one gateway call with duration and status metrics.
func observe[T any](op string, call func() (T, error)) (T, error) {
	start := time.Now()
	result, err := call()
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.ObserveGatewayRequest(op, status, time.Since(start))
	return result, err
}

// recordFailureLocked logs a gateway failure and records the user-visible
// message. Caller holds o.mu.
func (o *Orchestrator) recordFailureLocked(step string, err error) {
	o.data.lastError = fmt.Sprintf("%s failed: %v", step, err)
	logger.Error("step failed", "step", step, "state", string(o.state), "error", err)
}

// notifyLocked broadcasts the current state to subscribers without
// blocking. Caller holds o.mu.
func (o *Orchestrator) notifyLocked() {
	ev := Event{State: o.state, Busy: o.busy, Error: o.data.lastError}

	o.subMu.Lock()
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than stall the session.
		}
	}
	o.subMu.Unlock()
}
