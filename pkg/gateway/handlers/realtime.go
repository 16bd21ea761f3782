// Package handlers holds the gateway's HTTP surface: the realtime
// WebSocket accept path and the health endpoint.
package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/config"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/core"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/gateway/orchestrator"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/gateway/upstream"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/protocol"
)

// UpstreamFactory builds a provider connection for one session.
type UpstreamFactory func(handler upstream.Handler) orchestrator.Upstream

// RealtimeHandler accepts client WebSocket sessions. Validation happens
// before the upgrade so rejections are plain HTTP statuses.
type RealtimeHandler struct {
	Config      *config.Gateway
	IPC         orchestrator.IPC
	Logger      *slog.Logger
	NewUpstream UpstreamFactory
}

// NewRealtimeHandler wires the production upstream factory from config.
func NewRealtimeHandler(cfg *config.Gateway, ipc orchestrator.IPC, logger *slog.Logger) *RealtimeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RealtimeHandler{
		Config: cfg,
		IPC:    ipc,
		Logger: logger,
		NewUpstream: func(handler upstream.Handler) orchestrator.Upstream {
			return upstream.New(upstream.Config{
				URL:    cfg.RealtimeURL,
				Model:  cfg.RealtimeModel,
				APIKey: cfg.OpenAIAPIKey,
				Logger: logger,
			}, handler)
		},
	}
}

var acceptUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (h *RealtimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	apiKey := q.Get("rs_key")
	sessionID := q.Get("rs_sessid")
	if apiKey == "" || sessionID == "" {
		http.Error(w, "rs_key and rs_sessid are required", http.StatusBadRequest)
		return
	}
	if api := q.Get("rs_api"); api != "" && api != "OPENAI" {
		h.Logger.Warn("unsupported rs_api requested, serving OPENAI", "rs_api", api)
	}

	resp, err := h.IPC.Request(protocol.TypeValidateAndLoad, apiKey, sessionID)
	if err != nil {
		h.Logger.Error("validate_and_load failed", "session_id", sessionID, "error", err)
		http.Error(w, "datastore unavailable", http.StatusServiceUnavailable)
		return
	}
	if resp.Err != "" {
		switch core.FromWire(resp.Err) {
		case core.ErrNoCredits:
			// NO_CREDITS frames carry accountId and the exhausted balance.
			msg := "no credits"
			if len(resp.Fields) >= 2 {
				msg = "no credits (balance " + resp.Fields[1] + ")"
			}
			http.Error(w, msg, http.StatusPaymentRequired)
		case core.ErrInvalidAuth:
			http.Error(w, "invalid api key", http.StatusForbidden)
		default:
			h.Logger.Error("validate_and_load error", "session_id", sessionID, "wire_error", resp.Err)
			http.Error(w, "datastore unavailable", http.StatusServiceUnavailable)
		}
		return
	}
	accountID := resp.Fields[0]
	sessionData := resp.Fields[1]
	credits := protocol.Number(resp.Fields[2])

	conn, err := acceptUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn}
	orch := orchestrator.New(orchestrator.Config{
		AccountID:   accountID,
		SessionID:   sessionID,
		SessionData: sessionData,
		Credits:     credits,
	}, orchestrator.Dependencies{
		NewUpstream: h.NewUpstream,
		IPC:         h.IPC,
		Client:      client,
		Logger:      h.Logger,
	})
	defer orch.Cleanup()

	if err := orch.Connect(); err != nil {
		h.Logger.Error("upstream connect failed", "session_id", sessionID, "error", err)
		client.Terminate(core.Newf(core.ErrInternal, "upstream connect failed: %v", err))
		return
	}
	h.Logger.Info("session accepted", "account_id", accountID, "session_id", sessionID)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := orch.Send(string(data)); err != nil {
			h.Logger.Warn("session terminated", "session_id", sessionID, "error", err)
			client.Terminate(err)
			return
		}
	}
}

// wsClient adapts the accepted socket to the orchestrator's ClientStream.
type wsClient struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsClient) Send(raw string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(raw))
}

// Terminate sends a close frame naming the error kind, then closes.
func (c *wsClient) Terminate(err error) {
	c.closeOnce.Do(func() {
		reason := string(core.KindOf(err))
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}
