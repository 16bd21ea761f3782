package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the gateway's configuration is complete
// enough to serve sessions.
type ReadyHandler struct {
	Config *config.Gateway
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK     bool     `json:"ok"`
		Issues []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "OPENAI_API_KEY not configured")
	}
	if h.Config.IPCSocketPath == "" {
		issues = append(issues, "ZMQ_SOCKET_PATH not configured")
	}
	if h.Config.IPCTimeoutMS <= 0 {
		issues = append(issues, "ipc timeout must be > 0")
	}
	if h.Config.RealtimeURL == "" {
		issues = append(issues, "realtime url not configured")
	}
	if h.Config.ListenAddr == "" {
		issues = append(issues, "listen addr not configured")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{OK: ok, Issues: issues})
}
