package service

import (
	"regexp"
	"strings"
)

const (
	// ThresholdChars bounds the conversation blob injected into a session;
	// longer transcripts are truncated for the live request and summarized
	// in the background.
	ThresholdChars = 32000

	truncationPrefix = "[...earlier context omitted...]\n"
	injectionPreface = "\n\nHere is the previous conversation that happened which should be continued now:\n"
)

// instructionsPattern locates the instructions string literal inside a
// session payload, tolerating escaped characters within the value.
var instructionsPattern = regexp.MustCompile(`"instructions"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// truncateConversation keeps the tail of an oversized transcript. The
// leading partial line is dropped so the kept text starts on a speaker
// boundary, and a marker notes the omission.
func truncateConversation(conv string) string {
	if len(conv) <= ThresholdChars {
		return conv
	}
	cut := len(conv) - ThresholdChars
	tail := conv[cut:]
	if conv[cut-1] != '\n' {
		if idx := strings.IndexByte(tail, '\n'); idx >= 0 && idx < len(tail)-1 {
			tail = tail[idx+1:]
		}
	}
	return truncationPrefix + tail
}

// injectConversation splices the prior conversation into the session
// payload's instructions value, escaped as a JSON string fragment. When the
// payload carries no instructions literal the input is returned unchanged.
func injectConversation(sessionData, conv string) string {
	addition := escapeJSONString(injectionPreface + conv)
	return instructionsPattern.ReplaceAllStringFunc(sessionData, func(match string) string {
		return match[:len(match)-1] + addition + `"`
	})
}

// syntheticSession builds a minimal session-update envelope for sessions
// that stored a conversation but no session payload.
func syntheticSession(conv string) string {
	return `{"type":"session.update","session":{"instructions":"` +
		escapeJSONString(injectionPreface+conv) + `"}}`
}

// escapeJSONString escapes the characters that would break a double-quoted
// JSON string: backslash, quote, newline, carriage return, tab.
func escapeJSONString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
