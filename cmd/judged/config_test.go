package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "judged.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	t.Setenv("INTCODE_DATABASE_DSN", "user:pass@tcp(localhost:3306)/oj")

	cfg, err := loadAppConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Judge.CompileTimeout != 15 || cfg.Judge.CaseTimeout != 2 {
		t.Errorf("timeouts = %d/%d", cfg.Judge.CompileTimeout, cfg.Judge.CaseTimeout)
	}
	if cfg.Judge.OutputLimit != 20000 {
		t.Errorf("output limit = %d", cfg.Judge.OutputLimit)
	}
	if cfg.Judge.MaxOutputBytes != 16*1024*1024 {
		t.Errorf("max output = %d", cfg.Judge.MaxOutputBytes)
	}
	if cfg.Judge.MaxZipExtractBytes != 200*1024*1024 {
		t.Errorf("zip limit = %d", cfg.Judge.MaxZipExtractBytes)
	}
	if cfg.Judge.MemoryLimitMB != 256 {
		t.Errorf("memory limit = %d", cfg.Judge.MemoryLimitMB)
	}
}

func TestLoadAppConfigRequiresDSN(t *testing.T) {
	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing database dsn")
	}
}

func TestLoadAppConfigReadsYAML(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: "127.0.0.1:9090"
database:
  dsn: "user:pass@tcp(db:3306)/oj"
judge:
  caseTimeout: 5
  memoryLimitMB: 512
sandbox:
  helperPath: "/opt/judge/sandbox-init"
`)
	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Judge.CaseTimeout != 5 || cfg.Judge.MemoryLimitMB != 512 {
		t.Errorf("judge = %+v", cfg.Judge)
	}
	if cfg.Sandbox.HelperPath != "/opt/judge/sandbox-init" {
		t.Errorf("helper = %q", cfg.Sandbox.HelperPath)
	}
	// Untouched fields still fall back to defaults.
	if cfg.Judge.CompileTimeout != 15 {
		t.Errorf("compile timeout = %d", cfg.Judge.CompileTimeout)
	}
}

func TestLoadAppConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: "127.0.0.1:9090"
database:
  dsn: "file-dsn"
judge:
  caseTimeout: 5
`)
	t.Setenv("INTCODE_HTTP_ADDR", "0.0.0.0:7070")
	t.Setenv("INTCODE_DATABASE_DSN", "env-dsn")
	t.Setenv("INTCODE_CASE_TIMEOUT", "9")
	t.Setenv("INTCODE_MAX_OUTPUT_BYTES", "1048576")

	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:7070" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Database.DSN != "env-dsn" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Judge.CaseTimeout != 9 {
		t.Errorf("case timeout = %d", cfg.Judge.CaseTimeout)
	}
	if cfg.Judge.MaxOutputBytes != 1048576 {
		t.Errorf("max output = %d", cfg.Judge.MaxOutputBytes)
	}
}

func TestLoadAppConfigRejectsBadYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map")
	if _, err := loadAppConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}
