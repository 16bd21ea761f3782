// Package usage batches token counts extracted from upstream completion
// events so one IPC frame covers several completions.
package usage

import (
	"strings"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/protocol"
)

// FlushThreshold is how many completion events accumulate before a batch
// is emitted.
const FlushThreshold = 5

const (
	doneMarker   = `"type":"response.done"`
	inputMarker  = `"input_tokens":`
	outputMarker = `"output_tokens":`
	provider     = "OPENAI"
)

// Emitter delivers fire-and-forget frames to the datastore.
type Emitter interface {
	Oneway(typ protocol.MessageType, args ...string)
}

// Handler accumulates usage for one session. Not safe for concurrent use;
// the orchestrator serializes access.
type Handler struct {
	accountID string
	sessionID string
	emitter   Emitter

	inputAcc  int64
	outputAcc int64
	count     int
}

// New builds a usage handler bound to one session.
func New(accountID, sessionID string, emitter Emitter) *Handler {
	return &Handler{accountID: accountID, sessionID: sessionID, emitter: emitter}
}

// Ingest scans a raw upstream frame for a completion event. Non-completion
// frames return ok=false without further work; the scan is substring search
// only, never a JSON parse. Every FlushThreshold completions the
// accumulated totals are flushed.
func (h *Handler) Ingest(raw string) (inputTokens, outputTokens int64, ok bool) {
	if !strings.Contains(raw, doneMarker) {
		return 0, 0, false
	}
	inputTokens = scanNumber(raw, inputMarker)
	outputTokens = scanNumber(raw, outputMarker)

	h.inputAcc += inputTokens
	h.outputAcc += outputTokens
	h.count++
	if h.count >= FlushThreshold {
		h.Flush()
	}
	return inputTokens, outputTokens, true
}

// Flush emits the accumulated batch, if any, and zeroes the state.
func (h *Handler) Flush() {
	if h.count == 0 {
		return
	}
	input, output := h.inputAcc, h.outputAcc
	h.inputAcc, h.outputAcc, h.count = 0, 0, 0
	h.emitter.Oneway(protocol.TypeUpdateUsage,
		h.accountID, h.sessionID, provider,
		protocol.FormatNumber(input), protocol.FormatNumber(output))
}

// scanNumber parses the ASCII digit run following the marker, or zero when
// the marker is absent.
func scanNumber(raw, marker string) int64 {
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return 0
	}
	var n int64
	for i := idx + len(marker); i < len(raw); i++ {
		c := raw[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
