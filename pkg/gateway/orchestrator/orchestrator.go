// Package orchestrator runs the per-session state machine between one
// client stream and one upstream realtime connection.
package orchestrator

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/core"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/gateway/checkpoint"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/gateway/upstream"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/gateway/usage"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/protocol"
)

const (
	// BufferCapacity bounds messages held while the upstream is still
	// connecting. Overflow is fatal to the session.
	BufferCapacity = 10000
	// creditCheckCadence is how many upstream completions pass between
	// background credit refreshes.
	creditCheckCadence = 50

	sessionUpdatedMarker = `"type":"session.updated"`
)

// State is the session lifecycle position.
type State int32

const (
	Preconnect State = iota
	Connecting
	Connected
	Draining
	Terminated
)

// ClientStream is the accept layer's handle to the end client. Terminate
// reports a fatal session error; the accept layer closes the client.
type ClientStream interface {
	Send(raw string) error
	Terminate(err error)
}

// Upstream abstracts one outbound provider connection.
type Upstream interface {
	Connect() error
	Disconnect()
	Send(payload any) error
}

// IPC is the slice of the broker the orchestrator uses.
type IPC interface {
	Request(typ protocol.MessageType, args ...string) (protocol.Response, error)
	Oneway(typ protocol.MessageType, args ...string)
}

// Dependencies carries everything an orchestrator needs at construction.
type Dependencies struct {
	// NewUpstream builds a fresh provider connection bound to the given
	// handler. Called on connect and again on every reconnect.
	NewUpstream func(handler upstream.Handler) Upstream
	IPC         IPC
	Client      ClientStream
	Logger      *slog.Logger
}

// Config is the per-session preloaded state from VALIDATE_AND_LOAD.
type Config struct {
	AccountID   string
	SessionID   string
	SessionData string
	Credits     int64
}

// Orchestrator owns one session: the upstream connection, the usage and
// checkpoint handlers, the preconnect buffer, and the credit gate. All
// state mutations serialize on one mutex.
type Orchestrator struct {
	deps Dependencies
	cfg  Config

	usage      *usage.Handler
	checkpoint *checkpoint.Handler
	logger     *slog.Logger

	mu              sync.Mutex
	state           State
	upstream        Upstream
	credits         int64
	skipSessionSave bool
	buffer          []string
	responseCount   int
	creditCheck     bool
	cleaned         bool
}

// New builds an orchestrator from preloaded session state. A non-empty
// session payload arms the skip-session-save latch: the first
// session.updated echo after replay is the replayed conversation coming
// back and must not be re-persisted.
func New(cfg Config, deps Dependencies) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		deps:            deps,
		cfg:             cfg,
		logger:          logger,
		usage:           usage.New(cfg.AccountID, cfg.SessionID, deps.IPC),
		checkpoint:      checkpoint.New(cfg.AccountID, cfg.SessionID, deps.IPC),
		state:           Preconnect,
		credits:         cfg.Credits,
		skipSessionSave: cfg.SessionData != "",
	}
}

// Connect builds and dials a fresh upstream connection, disconnecting any
// prior one first so its handler cannot fire into this session again.
func (o *Orchestrator) Connect() error {
	o.mu.Lock()
	if prior := o.upstream; prior != nil {
		prior.Disconnect()
	}
	up := o.deps.NewUpstream(o)
	o.upstream = up
	o.state = Connecting
	o.mu.Unlock()
	return up.Connect()
}

// Send handles one inbound client frame. Before the upstream is up, frames
// buffer FIFO; a full buffer is fatal. Once connected the credit gate runs
// synchronously and depletion disconnects the upstream.
func (o *Orchestrator) Send(clientMsg string) error {
	o.mu.Lock()
	if o.state != Connected {
		if len(o.buffer) >= BufferCapacity {
			o.mu.Unlock()
			return core.New(core.ErrBufferOverflow, "session buffer full")
		}
		o.buffer = append(o.buffer, clientMsg)
		o.mu.Unlock()
		return nil
	}
	o.scheduleCreditCheckLocked()
	if o.credits <= 0 {
		up := o.upstream
		o.mu.Unlock()
		if up != nil {
			up.Disconnect()
		}
		return core.New(core.ErrNoCredits, "credits exhausted")
	}
	up := o.upstream
	o.mu.Unlock()
	return up.Send(clientMsg)
}

// OnConnect replays the preloaded session payload as the first upstream
// frame, then drains the preconnect buffer in FIFO order.
func (o *Orchestrator) OnConnect() {
	o.mu.Lock()
	o.state = Connected
	up := o.upstream
	pending := o.buffer
	o.buffer = nil
	o.mu.Unlock()

	if o.cfg.SessionData != "" {
		if err := up.Send(o.cfg.SessionData); err != nil {
			o.logger.Error("session replay send failed", "session_id", o.cfg.SessionID, "error", err)
		}
	}
	for _, msg := range pending {
		if err := up.Send(msg); err != nil {
			o.logger.Error("buffered send failed", "session_id", o.cfg.SessionID, "error", err)
			return
		}
	}
}

// OnMsgReceived relays one upstream frame. The client send happens first;
// everything after it is bookkeeping that must not delay delivery.
func (o *Orchestrator) OnMsgReceived(raw string) {
	if err := o.deps.Client.Send(raw); err != nil {
		o.logger.Info("client send failed, cleaning up", "session_id", o.cfg.SessionID, "error", err)
		o.Cleanup()
		return
	}

	o.mu.Lock()
	input, output, counted := o.usage.Ingest(raw)
	if counted {
		o.credits -= input + output
		o.responseCount++
		if o.credits <= 0 {
			up := o.upstream
			o.mu.Unlock()
			if up != nil {
				up.Disconnect()
			}
			o.deps.Client.Terminate(core.New(core.ErrNoCredits, "credits exhausted"))
			return
		}
	}
	o.saveSessionIfNeededLocked(raw)
	o.checkpoint.Ingest(raw)
	o.mu.Unlock()
}

// OnError logs and re-arms session persistence; the connection itself is
// not considered gone until OnClose.
func (o *Orchestrator) OnError(err error) {
	o.logger.Warn("upstream error", "session_id", o.cfg.SessionID, "error", err)
	o.mu.Lock()
	o.skipSessionSave = false
	o.mu.Unlock()
}

// OnClose only fires for unexpected closes (explicit disconnects null the
// handler first), so the response is always: reconnect with the preloaded
// session and skip persisting its first echo.
func (o *Orchestrator) OnClose(code int, reason string) {
	o.logger.Info("upstream closed unexpectedly, reconnecting",
		"session_id", o.cfg.SessionID, "code", code, "reason", reason)
	o.mu.Lock()
	o.state = Connecting
	o.skipSessionSave = true
	o.mu.Unlock()
	if err := o.Connect(); err != nil {
		o.logger.Error("reconnect failed", "session_id", o.cfg.SessionID, "error", err)
		o.deps.Client.Terminate(core.Newf(core.ErrInternal, "upstream reconnect failed: %v", err))
	}
}

// Cleanup flushes both handlers, tears the upstream down, and clears the
// buffer. Safe to call more than once.
func (o *Orchestrator) Cleanup() {
	o.mu.Lock()
	if o.cleaned {
		o.mu.Unlock()
		return
	}
	o.cleaned = true
	o.state = Terminated
	o.usage.Flush()
	o.checkpoint.Flush()
	up := o.upstream
	o.upstream = nil
	o.buffer = nil
	o.mu.Unlock()
	if up != nil {
		up.Disconnect()
	}
}

// State reports the current lifecycle position.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// scheduleCreditCheckLocked launches a background balance refresh every
// creditCheckCadence completions, deduplicated by the in-progress flag.
// The send path never waits on it.
func (o *Orchestrator) scheduleCreditCheckLocked() {
	if o.creditCheck || o.responseCount < creditCheckCadence {
		return
	}
	o.creditCheck = true
	go func() {
		resp, err := o.deps.IPC.Request(protocol.TypeGetCredits, o.cfg.AccountID)
		o.mu.Lock()
		defer o.mu.Unlock()
		o.creditCheck = false
		o.responseCount = 0
		if err != nil || resp.Err != "" {
			o.logger.Warn("credit refresh failed",
				"account_id", o.cfg.AccountID, "error", err, "wire_error", resp.Err)
			return
		}
		o.credits = protocol.Number(resp.Fields[0])
	}()
}

// saveSessionIfNeededLocked persists session.updated echoes, honoring the
// one-shot skip latch after a replayed session.
func (o *Orchestrator) saveSessionIfNeededLocked(raw string) {
	if !strings.Contains(raw, sessionUpdatedMarker) {
		return
	}
	if o.skipSessionSave {
		o.skipSessionSave = false
		return
	}
	o.deps.IPC.Oneway(protocol.TypeSaveSession, o.cfg.AccountID, o.cfg.SessionID, raw)
}
