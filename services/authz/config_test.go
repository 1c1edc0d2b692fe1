package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogogo1024/screengate/services/authz/internal/policy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "authz.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, loaded, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if loaded {
		t.Fatalf("missing file reported as loaded")
	}
	if cfg != defaultConfig() {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfigFillsEmptyFields(t *testing.T) {
	p := writeConfig(t, `
server:
  enable_stats: true
redis:
  addr: 127.0.0.1:6379
  read_timeout: 250ms
limits:
  rate: 5
  burst: 10
`)
	cfg, loaded, err := loadConfig(p)
	if err != nil || !loaded {
		t.Fatalf("loadConfig = %v, %v", loaded, err)
	}
	if cfg.Server.Addr != ":8080" || !cfg.Server.EnableStats {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Redis.KeyPrefix != "authz:" || cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.Limits.Rate != 5 || cfg.Limits.Burst != 10 || cfg.Log.Level != "info" {
		t.Fatalf("limits/log = %+v %+v", cfg.Limits, cfg.Log)
	}

	dial, read, write, err := cfg.redisTimeouts()
	if err != nil {
		t.Fatalf("redisTimeouts: %v", err)
	}
	if dial != time.Second || read != 250*time.Millisecond || write != time.Second {
		t.Fatalf("timeouts = %v %v %v", dial, read, write)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, _, err := loadConfig(writeConfig(t, "server: [")); err == nil {
		t.Fatalf("bad yaml accepted")
	}
	if _, _, err := loadConfig(writeConfig(t, "limits:\n  rate: -1\n")); err == nil {
		t.Fatalf("negative rate accepted")
	}

	cfg, _, err := loadConfig(writeConfig(t, "redis:\n  dial_timeout: soon\n"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if _, _, _, err := cfg.redisTimeouts(); err == nil {
		t.Fatalf("bad duration accepted")
	}
}

func TestNewStoreWithoutRedisIsInMemory(t *testing.T) {
	store, closeStore, err := newStore(defaultConfig())
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	defer closeStore()
	if _, ok := store.(*policy.InMemoryStore); !ok {
		t.Fatalf("store = %T", store)
	}
	d, err := store.Decide("Pixel", "", "keycode", time.Now())
	if err != nil || !d.Allowed {
		t.Fatalf("default decide = %+v, %v", d, err)
	}
}

func TestLoadConfigRestoresBlankStrings(t *testing.T) {
	p := writeConfig(t, "server:\n  addr: \"\"\nredis:\n  key_prefix: \"\"\n  write_timeout: \"\"\nlog:\n  level: \"\"\n")
	cfg, _, err := loadConfig(p)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	def := defaultConfig()
	if cfg.Server.Addr != def.Server.Addr || cfg.Redis.KeyPrefix != def.Redis.KeyPrefix ||
		cfg.Redis.WriteTimeout != def.Redis.WriteTimeout || cfg.Log.Level != def.Log.Level {
		t.Fatalf("cfg = %+v", cfg)
	}
}
