package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/verseforge/songdub/logger"
	"github.com/verseforge/songdub/wav"
)

// HTTP constants.
const (
	contentTypeHeader = "Content-Type"
	applicationJSON   = "application/json"
	httpClientTimeout = 60 * time.Second
)

// Service defaults.
const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultTextModel = "gemini-2.5-flash"
	defaultTTSModel  = "gemini-2.5-flash-preview-tts"

	providerName = "Gemini"

	finishReasonStop = "STOP"

	modalityAudio = "AUDIO"
)

// Operation names used for logging and metrics.
const (
	OpAnalyze    = "analyze"
	OpTranslate  = "translate"
	OpSynthesize = "synthesize"
)

// Config configures a Gemini gateway client.
type Config struct {
	// APIKey is the access credential. When empty, the GEMINI_API_KEY and
	// GOOGLE_API_KEY environment variables are tried in order.
	APIKey string

	// BaseURL overrides the service endpoint (used by tests).
	BaseURL string

	// TextModel is the model used for analysis and translation.
	TextModel string

	// TTSModel is the model used for speech synthesis.
	TTSModel string

	// Voices overrides entries of the gender-to-voice table.
	Voices map[Gender]string

	// NeutralVoice overrides the fallback voice for unknown classifications.
	NeutralVoice string

	// HTTPClient overrides the HTTP client (used by tests).
	HTTPClient *http.Client
}

// Client implements Gateway against the Gemini generateContent REST API.
type Client struct {
	client       *http.Client
	apiKey       string
	baseURL      string
	textModel    string
	ttsModel     string
	voices       map[Gender]string
	neutralVoice string
}

// New creates a Gemini gateway client. It fails with ErrMissingCredential
// before any network attempt when no API key is configured.
func New(cfg Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   httpClientTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	voices := make(map[Gender]string, len(defaultVoices))
	for g, v := range defaultVoices {
		voices[g] = v
	}
	for g, v := range cfg.Voices {
		voices[g] = v
	}

	neutral := cfg.NeutralVoice
	if neutral == "" {
		neutral = VoiceNeutral
	}

	c := &Client{
		client:       client,
		apiKey:       apiKey,
		baseURL:      cfg.BaseURL,
		textModel:    cfg.TextModel,
		ttsModel:     cfg.TTSModel,
		voices:       voices,
		neutralVoice: neutral,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.textModel == "" {
		c.textModel = defaultTextModel
	}
	if c.ttsModel == "" {
		c.ttsModel = defaultTTSModel
	}
	return c, nil
}

// Close closes the HTTP client's idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// Gemini API request/response structures.
type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
	SafetySettings   []safetySetting `json:"safetySettings,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type geminiGenConfig struct {
	ResponseMimeType   string              `json:"responseMimeType,omitempty"`
	ResponseSchema     interface{}         `json:"responseSchema,omitempty"`
	ResponseModalities []string            `json:"responseModalities,omitempty"`
	SpeechConfig       *geminiSpeechConfig `json:"speechConfig,omitempty"`
}

type geminiSpeechConfig struct {
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// geminiErrorResponse is the error envelope returned on non-200 statuses.
type geminiErrorResponse struct {
	Error *ServiceError `json:"error"`
}

// generateContent performs one request/await round trip against the given
// model. Transport failures and non-200 statuses surface as *ServiceError;
// responses without candidates surface as ErrEmptyResponse.
func (c *Client) generateContent(ctx context.Context, model, operation string, req geminiRequest) (*geminiCandidate, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	logger.APIRequest(providerName, operation, http.MethodPost, url)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set(contentTypeHeader, applicationJSON)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		logger.APIResponse(providerName, operation, 0, err)
		// Transport errors embed the request URL, which carries the key.
		return nil, &ServiceError{Message: logger.RedactSensitiveData(err.Error())}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.APIResponse(providerName, operation, resp.StatusCode, err)
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	logger.APIResponse(providerName, operation, resp.StatusCode, nil)

	if resp.StatusCode != http.StatusOK {
		var errResp geminiErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			if errResp.Error.StatusCode == 0 {
				errResp.Error.StatusCode = resp.StatusCode
			}
			return nil, errResp.Error
		}
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, geminiResp.PromptFeedback.BlockReason)
		}
		return nil, ErrEmptyResponse
	}

	return &geminiResp.Candidates[0], nil
}

// textContent concatenates the text parts of a candidate.
func textContent(candidate *geminiCandidate) string {
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

const analyzeInstruction = `Listen to this song and extract its metadata.
Report the language the lyrics are sung in, the musical genre, the tempo in
beats per minute, the dominant emotional tone, the singer's gender
classification (MALE, FEMALE, or UNKNOWN), every lyric line in performance
order, and a one-sentence summary of the vocal style.`

// Analyze sends the raw media bytes for audio understanding and returns the
// validated structured result.
func (c *Client) Analyze(ctx context.Context, mediaBytes []byte, mimeType string) (*AnalysisResult, error) {
	req := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: analyzeInstruction},
				{InlineData: &geminiInlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(mediaBytes),
				}},
			},
		}},
		GenerationConfig: geminiGenConfig{
			ResponseMimeType: applicationJSON,
			ResponseSchema:   responseSchemaFor(analysisSchemaJSON),
		},
		SafetySettings: relaxedSafetySettings,
	}

	candidate, err := c.generateContent(ctx, c.textModel, OpAnalyze, req)
	if err != nil {
		return nil, err
	}

	payload := textContent(candidate)
	if payload == "" {
		return nil, ErrEmptyResponse
	}
	if err := validateAgainstSchema(analysisSchema, payload); err != nil {
		return nil, err
	}

	var result AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return &result, nil
}

const translateInstructionFormat = `Translate these song lyrics from %s to %s.
The song's tempo is %.0f BPM. Keep each translated line singable: match the
syllable count of the original closely enough to fit the tempo, and preserve
the rhyme scheme where possible. Return one translated line per original
line, in the same order.

Lyrics:
%s`

// Translate converts the lyric sequence to the target language. The
// returned sequence is validated to correspond 1:1 positionally to the
// input; a length mismatch is a schema violation.
func (c *Client) Translate(ctx context.Context, lyrics []string, targetLanguage, sourceLanguage string, bpm float64) ([]TranslatedLine, error) {
	lyricsJSON, err := json.Marshal(lyrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lyrics: %w", err)
	}

	req := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{{
				Text: fmt.Sprintf(translateInstructionFormat, sourceLanguage, targetLanguage, bpm, lyricsJSON),
			}},
		}},
		GenerationConfig: geminiGenConfig{
			ResponseMimeType: applicationJSON,
			ResponseSchema:   responseSchemaFor(translationSchemaJSON),
		},
		SafetySettings: relaxedSafetySettings,
	}

	candidate, err := c.generateContent(ctx, c.textModel, OpTranslate, req)
	if err != nil {
		return nil, err
	}

	payload := textContent(candidate)
	if payload == "" {
		return nil, ErrEmptyResponse
	}
	if err := validateAgainstSchema(translationSchema, payload); err != nil {
		return nil, err
	}

	var lines []TranslatedLine
	if err := json.Unmarshal([]byte(payload), &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if len(lines) != len(lyrics) {
		return nil, fmt.Errorf("%w: got %d translated lines for %d lyric lines",
			ErrSchemaViolation, len(lines), len(lyrics))
	}
	return lines, nil
}

// Synthesize renders the translated lines as speech with the voice mapped
// from the gender classification, and wraps the returned PCM in a WAV
// container.
func (c *Client) Synthesize(ctx context.Context, lines []TranslatedLine, gender Gender, targetLanguage string) ([]byte, error) {
	texts := make([]string, 0, len(lines))
	for _, line := range lines {
		texts = append(texts, line.Translated)
	}

	req := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: strings.Join(texts, "\n")}},
		}},
		GenerationConfig: geminiGenConfig{
			ResponseModalities: []string{modalityAudio},
			SpeechConfig: &geminiSpeechConfig{
				VoiceConfig: geminiVoiceConfig{
					PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: c.voiceFor(gender)},
				},
			},
		},
		SafetySettings: relaxedSafetySettings,
	}

	candidate, err := c.generateContent(ctx, c.ttsModel, OpSynthesize, req)
	if err != nil {
		return nil, err
	}

	// Audio wins over text: a candidate with inline audio succeeded even
	// if the service also attached commentary.
	for _, part := range candidate.Content.Parts {
		if part.InlineData != nil && strings.HasPrefix(part.InlineData.MimeType, "audio/") {
			pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode audio payload: %w", err)
			}
			return wav.EncodeSpeech(pcm), nil
		}
	}

	// Text instead of audio is a refusal; surface the service's own words.
	if text := textContent(candidate); text != "" {
		return nil, &RefusalError{Text: text}
	}

	if candidate.FinishReason != finishReasonStop {
		return nil, &IncompleteError{FinishReason: candidate.FinishReason}
	}
	return nil, ErrEmptyResponse
}
