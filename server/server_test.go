package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verseforge/songdub/gateway"
	"github.com/verseforge/songdub/media"
	"github.com/verseforge/songdub/session"
	"github.com/verseforge/songdub/wav"
)

type stubGateway struct {
	analysis     *gateway.AnalysisResult
	analyzeErr   error
	translations []gateway.TranslatedLine
	translateErr error
	audio        []byte
	synthErr     error
}

func (s *stubGateway) Analyze(context.Context, []byte, string) (*gateway.AnalysisResult, error) {
	return s.analysis, s.analyzeErr
}

func (s *stubGateway) Translate(context.Context, []string, string, string, float64) ([]gateway.TranslatedLine, error) {
	return s.translations, s.translateErr
}

func (s *stubGateway) Synthesize(context.Context, []gateway.TranslatedLine, gateway.Gender, string) ([]byte, error) {
	return s.audio, s.synthErr
}

func happyGateway() *stubGateway {
	return &stubGateway{
		analysis: &gateway.AnalysisResult{
			Language: "English",
			Genre:    "pop",
			BPM:      100,
			Emotion:  "joyful",
			Gender:   gateway.GenderFemale,
			Lyrics:   []string{"hello world"},
			Summary:  "Bright and airy.",
		},
		translations: []gateway.TranslatedLine{{Original: "hello world", Translated: "hola mundo"}},
		audio:        wav.EncodeSpeech(make([]byte, 1000)),
	}
}

func newTestServer(t *testing.T, gw gateway.Gateway, opts ...Option) (*httptest.Server, *media.Store) {
	t.Helper()
	store := media.NewStore()
	orc := session.NewOrchestrator(gw, store, session.Config{})
	ts := httptest.NewServer(New(orc, store, opts...).Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func uploadSong(t *testing.T, ts *httptest.Server, name string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/v1/session/file", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func post(t *testing.T, ts *httptest.Server, path string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeSnapshot(t *testing.T, resp *http.Response) session.Snapshot {
	t.Helper()
	defer resp.Body.Close()
	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, happyGateway())

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFullWorkflow(t *testing.T) {
	ts, _ := newTestServer(t, happyGateway())

	resp := uploadSong(t, ts, "song.mp3", []byte("mp3-bytes"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeSnapshot(t, resp)
	assert.Equal(t, session.StateIdle, snap.State)
	assert.Equal(t, "song.mp3", snap.FileName)
	assert.NotEmpty(t, snap.SourceURL)

	snap = decodeSnapshot(t, post(t, ts, "/v1/session/analyze", ""))
	assert.Equal(t, session.StateLyricsReview, snap.State)
	require.NotNil(t, snap.Analysis)
	assert.Equal(t, []string{"hello world"}, snap.Analysis.Lyrics)

	resp = post(t, ts, "/v1/session/language", `{"targetLanguage":"French"}`)
	snap = decodeSnapshot(t, resp)
	assert.Equal(t, "French", snap.TargetLanguage)

	snap = decodeSnapshot(t, post(t, ts, "/v1/session/translate", ""))
	assert.Equal(t, session.StateDubbing, snap.State)
	assert.Len(t, snap.Translations, 1)

	snap = decodeSnapshot(t, post(t, ts, "/v1/session/synthesize", ""))
	assert.Equal(t, session.StateComplete, snap.State)
	require.NotEmpty(t, snap.DubbedURL)

	// The dubbed track is playable via its media URL.
	resp2, err := http.Get(ts.URL + snap.DubbedURL)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "audio/wav", resp2.Header.Get("Content-Type"))
	audio, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	assert.Len(t, audio, 1044)
}

func TestDownload(t *testing.T) {
	ts, _ := newTestServer(t, happyGateway())

	uploadSong(t, ts, "song.mp3", []byte("x")).Body.Close()
	post(t, ts, "/v1/session/analyze", "").Body.Close()
	post(t, ts, "/v1/session/translate", "").Body.Close()
	post(t, ts, "/v1/session/synthesize", "").Body.Close()

	resp, err := http.Get(ts.URL + "/v1/session/download")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="dubbed-Spanish.wav"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
}

func TestDownloadBeforeComplete(t *testing.T) {
	ts, _ := newTestServer(t, happyGateway())

	resp, err := http.Get(ts.URL + "/v1/session/download")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadTooLarge(t *testing.T) {
	ts, _ := newTestServer(t, happyGateway(), WithMaxUploadBytes(1024))

	resp := uploadSong(t, ts, "big.mp3", make([]byte, 1<<20))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUploadMissingFileField(t *testing.T) {
	ts, _ := newTestServer(t, happyGateway())

	resp := post(t, ts, "/v1/session/file", "not-multipart")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzeWithoutFile(t *testing.T) {
	ts, _ := newTestServer(t, happyGateway())

	resp := post(t, ts, "/v1/session/analyze", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTranslateOutOfOrder(t *testing.T) {
	ts, _ := newTestServer(t, happyGateway())

	resp := post(t, ts, "/v1/session/translate", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGatewayFailureReturnsSnapshot(t *testing.T) {
	gw := happyGateway()
	gw.analyzeErr = &gateway.ServiceError{StatusCode: 503, Message: "overloaded"}
	ts, _ := newTestServer(t, gw)

	uploadSong(t, ts, "song.mp3", []byte("x")).Body.Close()
	resp := post(t, ts, "/v1/session/analyze", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	snap := decodeSnapshot(t, resp)
	assert.Equal(t, session.StateIdle, snap.State)
	assert.NotEmpty(t, snap.LastError)
}

func TestReset(t *testing.T) {
	ts, store := newTestServer(t, happyGateway())

	uploadSong(t, ts, "song.mp3", []byte("x")).Body.Close()
	snap := decodeSnapshot(t, post(t, ts, "/v1/session/reset", ""))
	assert.Equal(t, session.StateIdle, snap.State)
	assert.Empty(t, snap.FileName)
	assert.Equal(t, 0, store.Len())
}

func TestMediaNotFound(t *testing.T) {
	ts, _ := newTestServer(t, happyGateway())

	resp, err := http.Get(ts.URL + "/media/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, happyGateway(), WithUploadRateLimit(0.001))

	uploadSong(t, ts, "a.mp3", []byte("x")).Body.Close()
	resp := uploadSong(t, ts, "b.mp3", []byte("y"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	ts, _ := newTestServer(t, happyGateway())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Initial state push.
	var ev session.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, session.StateIdle, ev.State)

	uploadSong(t, ts, "song.mp3", []byte("x")).Body.Close()
	post(t, ts, "/v1/session/analyze", "").Body.Close()

	var seen []session.State
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&ev))
		seen = append(seen, ev.State)
	}
	assert.Equal(t, []session.State{session.StateIdle, session.StateAnalyzing, session.StateLyricsReview}, seen)
}
