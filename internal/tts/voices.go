package tts

// Voice describes one selectable synthesis voice.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// Voices returns the gateway's voice catalog. A single default voice today;
// scanning the piper models dir for alternatives would extend this.
func Voices() []Voice {
	return []Voice{
		{
			ID:       "default",
			Name:     "English US (Lessac Medium)",
			Language: "en-US",
		},
	}
}
