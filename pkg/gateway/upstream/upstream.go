// Package upstream owns the outbound WebSocket to the realtime provider.
// The handler-nulling rule in Disconnect is the whole mechanism that
// distinguishes an explicit disconnect from an unexpected one: once the
// handler is gone, pending read callbacks become no-ops.
package upstream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// Handler receives connection lifecycle and message events.
type Handler interface {
	OnConnect()
	OnError(err error)
	OnClose(code int, reason string)
	OnMsgReceived(raw string)
}

// Config carries the provider endpoint and credential.
type Config struct {
	URL    string
	Model  string
	APIKey string
	Logger *slog.Logger
}

// Conn is one outbound realtime connection. A Conn is used once: Connect,
// then eventually Disconnect; reconnection builds a fresh Conn.
type Conn struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	handler Handler
	ws      *websocket.Conn

	writeMu sync.Mutex
}

// New builds a connection with its event handler attached. The handler
// stays bound until Disconnect nulls it.
func New(cfg Config, handler Handler) *Conn {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{cfg: cfg, logger: logger, handler: handler}
}

// Connect dials the provider and starts the read loop. The handler's
// OnConnect fires once the socket is up.
func (c *Conn) Connect() error {
	endpoint, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("upstream url: %w", err)
	}
	if c.cfg.Model != "" {
		q := endpoint.Query()
		q.Set("model", c.cfg.Model)
		endpoint.RawQuery = q.Encode()
	}

	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+c.cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := websocket.DefaultDialer.Dial(endpoint.String(), headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("upstream dial (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("upstream dial: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	handler := c.handler
	c.mu.Unlock()

	go c.readLoop(ws)
	if handler != nil {
		handler.OnConnect()
	}
	return nil
}

// Send forwards a payload upstream. Strings pass through unchanged;
// anything else is JSON-encoded.
func (c *Conn) Send(payload any) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("upstream not connected")
	}

	var data []byte
	switch v := payload.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode upstream payload: %w", err)
		}
		data = encoded
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, data)
}

// Disconnect detaches the handler, then closes the socket. The ordering
// matters: callbacks racing the close observe a nil handler and drop out,
// so only unexpected closes ever reach OnClose. Idempotent.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.handler = nil
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

func (c *Conn) currentHandler() Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			handler := c.currentHandler()
			if handler == nil {
				return
			}
			if closeErr, ok := err.(*websocket.CloseError); ok {
				handler.OnClose(closeErr.Code, closeErr.Text)
				return
			}
			handler.OnError(err)
			handler.OnClose(websocket.CloseAbnormalClosure, err.Error())
			return
		}
		handler := c.currentHandler()
		if handler == nil {
			return
		}
		handler.OnMsgReceived(string(data))
	}
}
