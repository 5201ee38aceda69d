package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocql/gocql"
)

func TestLoadGatewayDefaults(t *testing.T) {
	t.Setenv("AUTH_STATIC_TOKENS", "tok-a:user-a, tok-b:user-b")
	cfg, err := LoadGateway()
	if err != nil {
		t.Fatalf("LoadGateway: %v", err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if got := cfg.StaticTokens["tok-b"]; got != "user-b" {
		t.Errorf("StaticTokens[tok-b] = %q", got)
	}
	if cfg.PingInterval != 54*time.Second {
		t.Errorf("PingInterval = %v, want 54s", cfg.PingInterval)
	}
	if cfg.KafkaEnabled() {
		t.Error("kafka should be disabled without brokers")
	}
	if cfg.AttachmentsEnabled() {
		t.Error("attachments should be disabled without endpoint")
	}
	if len(cfg.KafkaTopics) != 2 {
		t.Errorf("KafkaTopics = %v", cfg.KafkaTopics)
	}
}

func TestLoadGatewayRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing tokens":    {},
		"bad auth mode":     {"AUTH_MODE": "ldap"},
		"bad fanout":        {"AUTH_STATIC_TOKENS": "a:b", "FANOUT_MODE": "kafka"},
		"mongo without uri": {"AUTH_STATIC_TOKENS": "a:b", "NOTIFICATION_STORE": "mongo"},
		"malformed token":   {"AUTH_STATIC_TOKENS": "nocolon"},
		"bad duration":      {"AUTH_STATIC_TOKENS": "a:b", "WS_PONG_WAIT": "soon"},
		"ping after pong":   {"AUTH_STATIC_TOKENS": "a:b", "WS_PING_INTERVAL": "2m"},
		"zero typing burst": {"AUTH_STATIC_TOKENS": "a:b", "TYPING_BURST": "0"},
		"negative duration": {"AUTH_STATIC_TOKENS": "a:b", "AUTH_TIMEOUT": "-1s"},
		"bad ssl flag":      {"AUTH_STATIC_TOKENS": "a:b", "S3_USE_SSL": "maybe"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := LoadGateway(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadMessaging(t *testing.T) {
	t.Setenv("SCYLLA_HOSTS", "a, b ,,c")
	t.Setenv("SCYLLA_CONSISTENCY", "local_quorum")
	t.Setenv("SCYLLA_REPLICATION_FACTOR", "0")
	cfg, err := LoadMessaging()
	if err != nil {
		t.Fatalf("LoadMessaging: %v", err)
	}
	if len(cfg.ScyllaHosts) != 3 || cfg.ScyllaHosts[1] != "b" {
		t.Errorf("ScyllaHosts = %v", cfg.ScyllaHosts)
	}
	if cfg.ScyllaConsistency != gocql.LocalQuorum {
		t.Errorf("consistency = %v", cfg.ScyllaConsistency)
	}
	if cfg.ReplicationFactor != 1 {
		t.Errorf("ReplicationFactor = %d", cfg.ReplicationFactor)
	}

	t.Setenv("MESSAGING_STORE", "sqlite")
	if _, err := LoadMessaging(); err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestLoadClientDerivesWebSocketURL(t *testing.T) {
	t.Setenv("RENTME_BASE_URL", "https://chat.rentme.test/api/")
	t.Setenv("RENTME_SEND_TIMEOUT", "3s")
	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.WSURL != "wss://chat.rentme.test/api/ws" {
		t.Errorf("WSURL = %q", cfg.WSURL)
	}
	if cfg.SendTimeout != 3*time.Second {
		t.Errorf("SendTimeout = %v", cfg.SendTimeout)
	}
	if cfg.QueueLimit != 256 || cfg.ReconnectMax != 30*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestClientNormalizeRejectsBadBackoff(t *testing.T) {
	cfg := DefaultClient()
	cfg.ReconnectJitter = 1.5
	if err := cfg.Normalize(); err == nil {
		t.Fatal("expected jitter error")
	}
	cfg = DefaultClient()
	cfg.ReconnectMax = time.Millisecond
	if err := cfg.Normalize(); err == nil {
		t.Fatal("expected max < base error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("RENTME_DOTENV_PROBE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RENTME_DOTENV_PROBE", "")
	os.Unsetenv("RENTME_DOTENV_PROBE")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("RENTME_DOTENV_PROBE"); got != "loaded" {
		t.Errorf("probe = %q", got)
	}
}
