package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.configLoaded || cfg.dotenvLoaded {
		t.Fatalf("configLoaded=%v dotenvLoaded=%v, want neither", cfg.configLoaded, cfg.dotenvLoaded)
	}
	if cfg.minSpacing != 500*time.Millisecond || cfg.concurrentTimeout != 3*time.Second {
		t.Fatalf("admission defaults: %v %v", cfg.minSpacing, cfg.concurrentTimeout)
	}
	if cfg.logLevel != slog.LevelInfo || cfg.logFormat != "text" {
		t.Fatalf("log defaults: %v %q", cfg.logLevel, cfg.logFormat)
	}
	for _, s := range settings {
		if cfg.sources[s.key] != sourceDefault {
			t.Fatalf("%s source=%s, want default", s.key, cfg.sources[s.key])
		}
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, "screengate.yaml"), `
server:
  url: ws://file:8886/
authz:
  endpoint: http://file/v1/authz/actions
  timeout: 2s
admission:
  min_spacing: 250ms
log:
  level: debug
`)
	t.Setenv("SCREENGATE_AUTHZ_ENDPOINT", "http://env/v1/authz/actions")
	t.Setenv("SCREENGATE_MIN_SPACING", "750ms")

	cfg, err := loadConfig([]string{"-min-spacing", "1s", "-log-format", "json"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.configLoaded {
		t.Fatalf("yaml not loaded")
	}

	cases := []struct {
		key  string
		got  interface{}
		want interface{}
		src  configSource
	}{
		{"server.url", cfg.serverURL, "ws://file:8886/", sourceFile},
		{"authz.endpoint", cfg.authzEndpoint, "http://env/v1/authz/actions", sourceEnv},
		{"authz.timeout", cfg.authzTimeout, 2 * time.Second, sourceFile},
		{"admission.min_spacing", cfg.minSpacing, time.Second, sourceFlag},
		{"log.level", cfg.logLevel, slog.LevelDebug, sourceFile},
		{"log.format", cfg.logFormat, "json", sourceFlag},
		{"transport.write_timeout", cfg.writeTimeout, 10 * time.Second, sourceDefault},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s=%v, want %v", tc.key, tc.got, tc.want)
		}
		if cfg.sources[tc.key] != tc.src {
			t.Fatalf("%s source=%s, want %s", tc.key, cfg.sources[tc.key], tc.src)
		}
	}
}

func TestLoadConfigDotenv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, ".env"), "SCREENGATE_OPERATOR_ID=8f14e45f-ceea-467f-a8a5-7d4c3e1f2a90\n")
	t.Cleanup(func() { os.Unsetenv("SCREENGATE_OPERATOR_ID") })

	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.dotenvLoaded || cfg.operatorID != "8f14e45f-ceea-467f-a8a5-7d4c3e1f2a90" {
		t.Fatalf("dotenvLoaded=%v operator=%q", cfg.dotenvLoaded, cfg.operatorID)
	}
	if cfg.sources["authz.operator_id"] != sourceEnv {
		t.Fatalf("operator source=%s, want env", cfg.sources["authz.operator_id"])
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if _, err := loadConfig([]string{"-config", filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Fatalf("expected error for explicit missing config")
	}

	t.Setenv("SCREENGATE_WRITE_TIMEOUT", "soon")
	if _, err := loadConfig(nil); err == nil {
		t.Fatalf("expected error for invalid env duration")
	}
	os.Unsetenv("SCREENGATE_WRITE_TIMEOUT")

	if _, err := loadConfig([]string{"-log-format", "xml"}); err == nil {
		t.Fatalf("expected error for unknown log format")
	}
	if _, err := loadConfig([]string{"-log-level", "loud"}); err == nil {
		t.Fatalf("expected error for unknown log level")
	}

	writeFile(t, filepath.Join(dir, "screengate.yaml"), "authz:\n  timeout: 3\n")
	if _, err := loadConfig(nil); err == nil {
		t.Fatalf("expected error for non-string yaml duration")
	}
}
