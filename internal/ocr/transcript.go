package ocr

import (
	"regexp"
	"strings"
)

// transcribePrompt is the shared prompt used by all LLM providers for transcribing documents
const transcribePrompt = `You are an OCR engine. Transcribe every piece of text visible in the image exactly as printed.

Rules:
- Preserve the reading order, top to bottom and left to right
- Put each printed line on its own line
- Keep numbers, punctuation, currency symbols and separators exactly as shown
- Do not summarize, translate, correct or explain anything
- If the image contains no text, return an empty response
- Do not use markdown code blocks`

var (
	// preamble matches an opening line such as "Here is the transcription:"
	preamble = regexp.MustCompile(`(?i)^(sure|certainly|of course)[!,.]|^(here is|here's|here are|below is)\b[^\n]*:$`)
	// signoff matches a closing offer such as "Let me know if you need anything else."
	signoff = regexp.MustCompile(`(?i)^(let me know|i hope|hope this|if you need|feel free)\b`)
)

// cleanTranscript removes the chatter and markdown fences some models wrap
// around output
func cleanTranscript(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for len(lines) > 0 && (preamble.MatchString(strings.TrimSpace(lines[0])) || strings.TrimSpace(lines[0]) == "") {
		lines = lines[1:]
	}
	for len(lines) > 0 && (signoff.MatchString(strings.TrimSpace(lines[len(lines)-1])) || strings.TrimSpace(lines[len(lines)-1]) == "") {
		lines = lines[:len(lines)-1]
	}
	text = strings.TrimSpace(strings.Join(lines, "\n"))

	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return text + "\n"
}
