package config

import (
	"context"
	"testing"
	"time"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/core"
)

// Blank values stand in for empty .env entries: envconfig binds a
// set-but-empty variable as zero without applying its tag default, so
// LoadGateway must fall back itself.
func TestLoadGateway_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ZMQ_SOCKET_PATH", "/tmp/rs.sock")
	t.Setenv("ZMQ_TIMEOUT_MS", "")
	t.Setenv("RS_ADDR", "")
	t.Setenv("RS_LOG_LEVEL", "")
	t.Setenv("OPENAI_REALTIME_URL", "")
	t.Setenv("OPENAI_REALTIME_MODEL", "")

	cfg, err := LoadGateway(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IPCTimeoutMS != DefaultIPCTimeoutMS {
		t.Fatalf("timeout default = %d", cfg.IPCTimeoutMS)
	}
	if cfg.IPCTimeout() != 5*time.Second {
		t.Fatalf("timeout duration = %v", cfg.IPCTimeout())
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("addr default = %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("log level default = %q", cfg.LogLevel)
	}
	if cfg.RealtimeURL != DefaultRealtimeURL || cfg.RealtimeModel != DefaultRealtimeModel {
		t.Fatalf("realtime defaults = %q %q", cfg.RealtimeURL, cfg.RealtimeModel)
	}
}

func TestLoadGateway_MissingRequiredKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ZMQ_SOCKET_PATH", "/tmp/rs.sock")

	_, err := LoadGateway(context.Background())
	if !core.IsKind(err, core.ErrEnvKeyNotFound) {
		t.Fatalf("want INTERNAL_ENV_KEY_NOT_FOUND, got %v", err)
	}
}

func TestLoadDatastore_MissingEncryptionKey(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/rs.db")
	t.Setenv("DB_ENCRYPTION_KEY", "")
	t.Setenv("ZMQ_SOCKET_PATH", "/tmp/rs.sock")

	_, err := LoadDatastore(context.Background())
	if !core.IsKind(err, core.ErrEnvKeyNotFound) {
		t.Fatalf("want INTERNAL_ENV_KEY_NOT_FOUND, got %v", err)
	}
}

func TestLoadDatastore_GeminiOptional(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/rs.db")
	t.Setenv("DB_ENCRYPTION_KEY", "secret")
	t.Setenv("ZMQ_SOCKET_PATH", "/tmp/rs.sock")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := LoadDatastore(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GeminiAPIKey != "" {
		t.Fatalf("gemini key should be empty, got %q", cfg.GeminiAPIKey)
	}
}
