package model

import (
	"regexp"
	"strings"
)

var (
	transcriptRe = regexp.MustCompile(`<div class="transcript">(.*?)</div>`)
	uploadSrcRe  = regexp.MustCompile(`src="(/uploads/[^"]*)"`)
)

// Voice is the decoded form of a voice message body.
type Voice struct {
	// HTML is the audio markup without the transcript, upload paths made
	// absolute.
	HTML string
	// Transcript is the speech-to-text content, empty if absent.
	Transcript string
}

// ParseVoice pulls the transcript out of a voice message body and points
// relative upload sources at baseURL.
func ParseVoice(body, baseURL string) Voice {
	var v Voice
	if m := transcriptRe.FindStringSubmatch(body); m != nil {
		v.Transcript = strings.TrimSpace(m[1])
	}
	v.HTML = transcriptRe.ReplaceAllString(body, "")

	base := strings.TrimRight(baseURL, "/")
	if base != "" {
		v.HTML = uploadSrcRe.ReplaceAllString(v.HTML, `src="`+base+`$1"`)
	}
	return v
}

// DisplayText picks what a bubble shows. Agent messages always show their
// original text; client messages show the translation unless the reader
// asked for the original. Voice messages count their transcript as the
// original.
func DisplayText(m Message, showOriginal bool) string {
	if m.Sender == SenderAgent || showOriginal || !m.HasTranslation() {
		return m.Original()
	}
	return m.TranslatedText
}
