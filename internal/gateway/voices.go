package gateway

import "github.com/book-expert/tts-helper/internal/api"

var voiceCatalog = []api.Voice{
	{ID: "af_bella", Name: "Bella (US)", Language: "en-US"},
	{ID: "af_sarah", Name: "Sarah (UK)", Language: "en-GB"},
	{ID: "af_nicole", Name: "Nicole (US)", Language: "en-US"},
	{ID: "af_sky", Name: "Sky (US)", Language: "en-US"},
	{ID: "am_adam", Name: "Adam (US)", Language: "en-US"},
	{ID: "am_michael", Name: "Michael (US)", Language: "en-US"},
}

// Voices returns a copy of the static voice catalog.
func Voices() []api.Voice {
	voices := make([]api.Voice, len(voiceCatalog))
	copy(voices, voiceCatalog)

	return voices
}
