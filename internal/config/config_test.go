package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/walletbot/internal/errors"
)

const validKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("XDG_DATA_HOME", tmp)
	// Unset rather than blank: the env file never overrides a present variable.
	for _, k := range []string{"TELEGRAM_BOT_TOKEN", "ENCRYPTION_KEY", "WALLETBOT_TELEGRAM_TOKEN", "WALLETBOT_ENCRYPTION_KEY", "WALLETBOT_ALLOWED_USERS", "WALLETBOT_OUTPUT", "WALLETBOT_SESSION_BACKEND", "WALLETBOT_RPC_BASE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return tmp
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	cfg := "output: plain\nsession:\n  backend: sqlite\n  ttl: 30m\nchains:\n  rpc:\n    polygon: https://file.example/polygon\nexecution:\n  confirm_timeout: 90s\nmigration:\n  slippage_bps: 25\n  aggregator: \"0x00000000000000000000000000000000000000aa\"\n"
	if err := os.WriteFile(configPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("WALLETBOT_OUTPUT", "json")
	t.Setenv("WALLETBOT_SESSION_BACKEND", "redis")
	t.Setenv("WALLETBOT_RPC_BASE", "https://env.example/base")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, SessionBackend: "memory"}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.SessionBackend != SessionBackendMemory {
		t.Fatalf("expected session backend from flags, got %s", settings.SessionBackend)
	}
	if settings.SessionTTL != 30*time.Minute || settings.ConfirmTimeout != 90*time.Second || settings.SlippageBps != 25 {
		t.Fatalf("file values not applied: %+v", settings)
	}
	if settings.RPCURLs["polygon"] != "https://file.example/polygon" || settings.RPCURLs["base"] != "https://env.example/base" {
		t.Fatalf("unexpected rpc urls %v", settings.RPCURLs)
	}
	if settings.RouteOverrides.Aggregator == "" {
		t.Fatal("expected aggregator override from file")
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	isolate(t)
	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadReadsEnvFileWithoutOverridingEnv(t *testing.T) {
	tmp := isolate(t)
	envPath := filepath.Join(tmp, "bot.env")
	content := "TELEGRAM_BOT_TOKEN=from-file\nENCRYPTION_KEY=" + validKey + "\nWALLETBOT_ALLOWED_USERS=7, 42\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("WALLETBOT_TELEGRAM_TOKEN", "from-env")

	settings, err := Load(GlobalFlags{EnvFile: envPath})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.TelegramToken != "from-env" {
		t.Fatalf("expected WALLETBOT_TELEGRAM_TOKEN to win, got %q", settings.TelegramToken)
	}
	if settings.EncryptionKey != validKey {
		t.Fatalf("expected key from env file, got %q", settings.EncryptionKey)
	}
	if len(settings.AllowedUsers) != 2 || settings.AllowedUsers[1] != 42 {
		t.Fatalf("unexpected allowed users %v", settings.AllowedUsers)
	}
	if err := settings.ValidateServe(); err != nil {
		t.Fatalf("expected valid serve settings: %v", err)
	}
}

func TestLoadRejectsMissingExplicitEnvFile(t *testing.T) {
	tmp := isolate(t)
	if _, err := Load(GlobalFlags{EnvFile: filepath.Join(tmp, "missing.env")}); err == nil {
		t.Fatal("expected error for missing explicit env file")
	}
}

func TestValidateServe(t *testing.T) {
	isolate(t)
	base, err := Load(GlobalFlags{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	base.TelegramToken = "token"
	base.EncryptionKey = validKey

	cases := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"missing token", func(s *Settings) { s.TelegramToken = "" }, "TELEGRAM_BOT_TOKEN"},
		{"short key", func(s *Settings) { s.EncryptionKey = "abcd" }, "64-character"},
		{"non hex key", func(s *Settings) { s.EncryptionKey = strings.Repeat("zz", 32) }, "64-character"},
		{"unknown backend", func(s *Settings) { s.SessionBackend = "etcd" }, "unknown session backend"},
		{"redis without address", func(s *Settings) { s.SessionBackend = SessionBackendRedis }, "redis"},
		{"bad transfer chain", func(s *Settings) { s.TransferChain = "solana" }, "transfer chain"},
	}
	for _, tc := range cases {
		s := base
		tc.mutate(&s)
		err := s.ValidateServe()
		if !clierr.Is(err, clierr.CodeConfig) || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected config error containing %q, got %v", tc.name, tc.want, err)
		}
	}
	if err := base.ValidateServe(); err != nil {
		t.Fatalf("expected base settings to validate: %v", err)
	}
}
