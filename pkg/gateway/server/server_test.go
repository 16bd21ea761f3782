package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/config"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/protocol"
)

type noopIPC struct{}

func (n *noopIPC) Request(typ protocol.MessageType, args ...string) (protocol.Response, error) {
	return protocol.Response{}, nil
}

func (n *noopIPC) Oneway(typ protocol.MessageType, args ...string) {}

func testServer() *Server {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return New(&config.Gateway{
		OpenAIAPIKey:  "sk-test",
		IPCSocketPath: "/tmp/rs.sock",
		IPCTimeoutMS:  5000,
		RealtimeURL:   config.DefaultRealtimeURL,
		RealtimeModel: config.DefaultRealtimeModel,
		ListenAddr:    config.DefaultListenAddr,
	}, &noopIPC{}, logger)
}

func TestServer_Healthz(t *testing.T) {
	s := testServer()

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
}

func TestServer_Readyz(t *testing.T) {
	s := testServer()

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_RealtimeRejectsNonGET(t *testing.T) {
	s := testServer()

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/realtime", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
