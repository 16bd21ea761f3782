// Package config binds process configuration from the environment. Both
// binaries load an optional .env file first, then bind and validate their
// own struct; a missing required key fails startup with
// INTERNAL_ENV_KEY_NOT_FOUND rather than surfacing later mid-session.
package config

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/core"
)

const (
	DefaultRealtimeURL   = "wss://api.openai.com/v1/realtime"
	DefaultRealtimeModel = "gpt-4o-realtime-preview"
	DefaultListenAddr    = ":8080"
	DefaultIPCTimeoutMS  = 5000
	DefaultLogLevel      = "info"
)

// Gateway holds the front-end process configuration.
type Gateway struct {
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	IPCSocketPath string `env:"ZMQ_SOCKET_PATH"`
	IPCTimeoutMS  int    `env:"ZMQ_TIMEOUT_MS,default=5000"`

	ListenAddr    string `env:"RS_ADDR,default=:8080"`
	LogPath       string `env:"RS_LOG_PATH"`
	LogLevel      string `env:"RS_LOG_LEVEL,default=info"`
	RealtimeURL   string `env:"OPENAI_REALTIME_URL,default=wss://api.openai.com/v1/realtime"`
	RealtimeModel string `env:"OPENAI_REALTIME_MODEL,default=gpt-4o-realtime-preview"`
}

// Datastore holds the back-end process configuration.
type Datastore struct {
	DBPath        string `env:"DB_PATH"`
	EncryptionKey string `env:"DB_ENCRYPTION_KEY"`
	IPCSocketPath string `env:"ZMQ_SOCKET_PATH"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	LogPath      string `env:"RS_LOG_PATH"`
	LogLevel     string `env:"RS_LOG_LEVEL,default=info"`
}

// IPCTimeout converts the millisecond knob into a duration.
func (g *Gateway) IPCTimeout() time.Duration {
	return time.Duration(g.IPCTimeoutMS) * time.Millisecond
}

// LoadGateway loads .env (if present), binds the gateway config, and
// validates required keys.
func LoadGateway(ctx context.Context) (*Gateway, error) {
	loadDotenv()
	var cfg Gateway
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, core.Newf(core.ErrInternal, "bind gateway config: %v", err)
	}
	if err := requireAll(map[string]string{
		"OPENAI_API_KEY":  cfg.OpenAIAPIKey,
		"ZMQ_SOCKET_PATH": cfg.IPCSocketPath,
	}); err != nil {
		return nil, err
	}
	// envconfig only applies tag defaults to unset variables; a variable set
	// to the empty string binds as zero. Blank knobs fall back here.
	if cfg.IPCTimeoutMS <= 0 {
		cfg.IPCTimeoutMS = DefaultIPCTimeoutMS
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RealtimeURL == "" {
		cfg.RealtimeURL = DefaultRealtimeURL
	}
	if cfg.RealtimeModel == "" {
		cfg.RealtimeModel = DefaultRealtimeModel
	}
	return &cfg, nil
}

// LoadDatastore loads .env (if present), binds the datastore config, and
// validates required keys.
func LoadDatastore(ctx context.Context) (*Datastore, error) {
	loadDotenv()
	var cfg Datastore
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, core.Newf(core.ErrInternal, "bind datastore config: %v", err)
	}
	if err := requireAll(map[string]string{
		"DB_PATH":           cfg.DBPath,
		"DB_ENCRYPTION_KEY": cfg.EncryptionKey,
		"ZMQ_SOCKET_PATH":   cfg.IPCSocketPath,
	}); err != nil {
		return nil, err
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	return &cfg, nil
}

// Require returns the named environment variable or an
// INTERNAL_ENV_KEY_NOT_FOUND error. Callers outside startup use it for
// keys bound lazily.
func Require(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", core.Newf(core.ErrEnvKeyNotFound, "required environment variable %s is not set", key)
	}
	return v, nil
}

func requireAll(keys map[string]string) error {
	for name, val := range keys {
		if val == "" {
			return core.Newf(core.ErrEnvKeyNotFound, "required environment variable %s is not set", name)
		}
	}
	return nil
}

// loadDotenv is best-effort: a missing .env just means the environment
// itself carries the configuration.
func loadDotenv() {
	_ = godotenv.Load()
}
