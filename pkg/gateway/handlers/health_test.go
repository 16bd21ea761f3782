package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/config"
)

func TestHealthHandler_OK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "ok\n" {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestReadyHandler_MissingAPIKey_NotReady(t *testing.T) {
	h := ReadyHandler{Config: &config.Gateway{
		IPCSocketPath: "/tmp/rs.sock",
		IPCTimeoutMS:  5000,
		RealtimeURL:   config.DefaultRealtimeURL,
		ListenAddr:    config.DefaultListenAddr,
	}}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ok, _ := resp["ok"].(bool); ok {
		t.Fatalf("expected ok=false, got ok=true")
	}
}

func TestReadyHandler_CompleteConfig_Ready(t *testing.T) {
	h := ReadyHandler{Config: &config.Gateway{
		OpenAIAPIKey:  "sk-test",
		IPCSocketPath: "/tmp/rs.sock",
		IPCTimeoutMS:  5000,
		RealtimeURL:   config.DefaultRealtimeURL,
		ListenAddr:    config.DefaultListenAddr,
	}}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
