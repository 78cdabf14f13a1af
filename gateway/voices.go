package gateway

// Prebuilt voice identifiers for speech synthesis.
const (
	VoiceMale    = "Puck"
	VoiceFemale  = "Kore"
	VoiceNeutral = "Zephyr"
)

// defaultVoices maps the gender classification to a prebuilt voice. Kept as
// a lookup table rather than conditionals so the table can be overridden
// from configuration when the service's voice catalog changes.
var defaultVoices = map[Gender]string{
	GenderMale:   VoiceMale,
	GenderFemale: VoiceFemale,
}

// safetySetting selects a blocking threshold for one harm category.
type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// relaxedSafetySettings disables the service's default safety blocking for
// all four harm categories. Song lyrics routinely trip false-positive
// refusals under the default thresholds.
var relaxedSafetySettings = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}

// voiceFor resolves the synthesis voice for a gender classification using
// the client's voice table. Unknown or unmapped classifications fall back
// to the neutral voice.
func (c *Client) voiceFor(gender Gender) string {
	if v, ok := c.voices[gender]; ok && v != "" {
		return v
	}
	return c.neutralVoice
}
