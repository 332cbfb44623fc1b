package config

import (
	"os"
	"path/filepath"
	"testing"
)

func chdirTemp(t *testing.T, dotenv string) {
	t.Helper()

	dir := t.TempDir()
	if dotenv != "" {
		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o600); err != nil {
			t.Fatalf("write dotenv: %v", err)
		}
	}
	t.Chdir(dir)
}

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

var allKeys = []string{
	"APP_ENV", "ADMIN_EMAIL", "ADMIN_PASSWORD", "SESSION_SECRET", "DB_PATH",
	"PORT", "CMS_URL", "CMS_TOKEN", "DEFAULT_PAGE_SIZE",
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, allKeys...)
	chdirTemp(t, "")

	cfg := Load()

	if cfg.DBPath != defaultDBPath {
		t.Fatalf("DBPath=%q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.Port != defaultPort {
		t.Fatalf("Port=%q, want %q", cfg.Port, defaultPort)
	}
	if cfg.DefaultPageSize != defaultPageSize {
		t.Fatalf("DefaultPageSize=%d, want %d", cfg.DefaultPageSize, defaultPageSize)
	}
	if !cfg.IsDev() {
		t.Fatalf("expected development by default")
	}
	if cfg.UsesCMS() {
		t.Fatalf("expected sqlite store by default")
	}
}

func TestLoad_ReadsDotEnvWithoutOverwriting(t *testing.T) {
	clearEnv(t, allKeys...)
	t.Setenv("PORT", "9999")
	chdirTemp(t, `
# comment
export DB_PATH=/tmp/cotizaciones.db
PORT=7000
CMS_URL="https://cms.example.com/"
DEFAULT_PAGE_SIZE=50
APP_ENV=production
`)

	cfg := Load()

	if cfg.DBPath != "/tmp/cotizaciones.db" {
		t.Fatalf("DBPath=%q", cfg.DBPath)
	}
	if cfg.Port != "9999" {
		t.Fatalf("Port=%q, want existing env value", cfg.Port)
	}
	if cfg.CMSURL != "https://cms.example.com" {
		t.Fatalf("CMSURL=%q, want trailing slash trimmed", cfg.CMSURL)
	}
	if cfg.DefaultPageSize != 50 {
		t.Fatalf("DefaultPageSize=%d, want 50", cfg.DefaultPageSize)
	}
	if cfg.IsDev() {
		t.Fatalf("production must not be dev")
	}
	if !cfg.UsesCMS() {
		t.Fatalf("expected CMS store")
	}
}

func TestLoad_InvalidPageSizeFallsBack(t *testing.T) {
	clearEnv(t, allKeys...)
	t.Setenv("DEFAULT_PAGE_SIZE", "-3")
	chdirTemp(t, "")

	if got := Load().DefaultPageSize; got != defaultPageSize {
		t.Fatalf("DefaultPageSize=%d, want %d", got, defaultPageSize)
	}
}
