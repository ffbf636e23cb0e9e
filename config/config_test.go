package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("CLAWD_DB", "")
	cfg := DefaultConfig()
	if cfg.Server.Addr != ":3737" {
		t.Errorf("Addr = %q, want :3737", cfg.Server.Addr)
	}
	if cfg.DBPath != "./clawd.db" {
		t.Errorf("DBPath = %q, want ./clawd.db", cfg.DBPath)
	}
	if cfg.Auth.AdminUser != "admin" {
		t.Errorf("AdminUser = %q, want admin", cfg.Auth.AdminUser)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestDefaultConfig_EnvDB(t *testing.T) {
	t.Setenv("CLAWD_DB", "/tmp/shared.db")
	cfg := DefaultConfig()
	if cfg.DBPath != "/tmp/shared.db" {
		t.Errorf("DBPath = %q, want /tmp/shared.db", cfg.DBPath)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("CLAWD_DB", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "clawd.yaml")
	data := `
server:
  addr: ":9090"
auth:
  admin_user: ops
  jwt_secret: sekrit
db_path: /data/clawd.db
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Auth.AdminUser != "ops" || cfg.Auth.JWTSecret != "sekrit" {
		t.Errorf("auth = %+v, want ops/sekrit", cfg.Auth)
	}
	if cfg.DBPath != "/data/clawd.db" {
		t.Errorf("DBPath = %q, want /data/clawd.db", cfg.DBPath)
	}
	// Unspecified fields keep their defaults.
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info default", cfg.LogLevel)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("Load succeeded on missing file, want error")
	}
}
