// Package checkpoint accumulates speaker-tagged transcript fragments from
// upstream delta events and periodically appends them to the stored
// conversation.
package checkpoint

import (
	"strings"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/protocol"
)

// FlushThreshold is the accumulated character count that triggers an
// append.
const FlushThreshold = 200

const (
	userDeltaMarker  = `"type":"conversation.item.input_audio_transcription.delta"`
	agentDeltaMarker = `"type":"response.output_audio_transcript.delta"`
	deltaField       = `"delta":"`

	speakerUser  = "user"
	speakerAgent = "agent"
)

// Emitter delivers fire-and-forget frames to the datastore.
type Emitter interface {
	Oneway(typ protocol.MessageType, args ...string)
}

// Handler builds the transcript for one session. Not safe for concurrent
// use; the orchestrator serializes access.
type Handler struct {
	accountID string
	sessionID string
	emitter   Emitter

	fragments []string
	length    int
	speaker   string
	started   bool
}

// New builds a checkpoint handler bound to one session.
func New(accountID, sessionID string, emitter Emitter) *Handler {
	return &Handler{accountID: accountID, sessionID: sessionID, emitter: emitter}
}

// Ingest inspects a raw upstream frame for a transcript delta. A speaker
// change pushes a tagged fragment; continued speech appends bare deltas.
// Crossing the length threshold flushes.
func (h *Handler) Ingest(raw string) {
	var speaker string
	switch {
	case strings.Contains(raw, userDeltaMarker):
		speaker = speakerUser
	case strings.Contains(raw, agentDeltaMarker):
		speaker = speakerAgent
	default:
		return
	}
	delta, ok := scanDelta(raw)
	if !ok {
		return
	}

	if speaker != h.speaker {
		h.speaker = speaker
		tag := "\n" + speaker + ":"
		if !h.started {
			tag = speaker + ":"
		}
		h.fragments = append(h.fragments, tag+delta)
	} else {
		h.fragments = append(h.fragments, delta)
	}
	h.started = true
	h.length += len(delta)

	if h.length >= FlushThreshold {
		h.Flush()
	}
}

// Flush snapshots the accumulated fragments and appends them to the stored
// conversation. State is reset before the send so a re-entrant flush starts
// from empty.
func (h *Handler) Flush() {
	if len(h.fragments) == 0 {
		return
	}
	snapshot := strings.Join(h.fragments, "")
	h.fragments = nil
	h.length = 0
	h.speaker = ""
	h.emitter.Oneway(protocol.TypeAppendConversation, h.accountID, h.sessionID, snapshot)
}

// scanDelta extracts the delta string value by bounded substring search,
// honoring escape sequences so an escaped quote does not end the value. The
// raw (still-escaped) text is returned; no JSON parse happens here.
func scanDelta(raw string) (string, bool) {
	start := strings.Index(raw, deltaField)
	if start < 0 {
		return "", false
	}
	start += len(deltaField)
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '\\':
			i++
		case '"':
			return raw[start:i], true
		}
	}
	return "", false
}
