package view

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// Plain message text never carries markup.
	textPolicy = bluemonday.StrictPolicy()

	// Voice bodies are backend-generated audio players.
	voicePolicy = newVoicePolicy()
)

func newVoicePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("audio", "source")
	p.AllowAttrs("controls", "preload").OnElements("audio")
	p.AllowAttrs("src").Matching(regexp.MustCompile(`^(https?://[^"\s]+|/uploads/[^"\s]*)$`)).OnElements("audio", "source")
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^audio/[a-z0-9.+-]+$`)).OnElements("source")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-z0-9 _-]+$`)).OnElements("div", "span")
	return p
}
