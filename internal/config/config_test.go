package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var quiet = log.New(io.Discard, "", 0)

// chdir moves into an empty directory so no stray .env is picked up.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(quiet)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.StoreDriver != DriverPostgres || cfg.Currency != "USD" || cfg.MaxTermDays != 365 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Reaper.Interval != time.Minute || cfg.Reaper.ReclaimTimeout != 30*time.Second || cfg.ProvisionTimeout != 2*time.Minute {
		t.Fatalf("unexpected durations %+v", cfg.Reaper)
	}
	if cfg.PayPal.Mode != "sandbox" || cfg.SMTPEnabled() {
		t.Fatalf("unexpected provider defaults %+v", cfg)
	}
	if cfg.CaptureURL() != "http://localhost:8080/orders/capture" {
		t.Fatalf("unexpected capture url %s", cfg.CaptureURL())
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "bolt")
	t.Setenv("BOLT_PATH", "/var/lib/shop.db")
	t.Setenv("CURRENCY", "eur")
	t.Setenv("CORS_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("PUBLIC_BASE_URL", "https://shop.test/")
	t.Setenv("REAPER_INTERVAL", "30s")
	t.Setenv("EMAIL_HOST", "smtp.gmail.com")
	t.Setenv("EMAIL_TO", "admin@shop.test")

	cfg, err := Load(quiet)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != DriverBolt || cfg.BoltPath != "/var/lib/shop.db" {
		t.Fatalf("unexpected store config %+v", cfg)
	}
	if cfg.Currency != "EUR" {
		t.Fatalf("expected EUR, got %s", cfg.Currency)
	}
	if len(cfg.CORSOrigins) != 2 || strings.TrimSpace(cfg.CORSOrigins[1]) != "https://b.test" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
	if cfg.CaptureURL() != "https://shop.test/orders/capture" {
		t.Fatalf("unexpected capture url %s", cfg.CaptureURL())
	}
	if cfg.Reaper.Interval != 30*time.Second || !cfg.SMTPEnabled() || cfg.Email.Admin != "admin@shop.test" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "driver", key: "STORE_DRIVER", val: "mysql"},
		{name: "currency", key: "CURRENCY", val: "EURO"},
		{name: "term", key: "MAX_TERM_DAYS", val: "0"},
		{name: "base url", key: "PUBLIC_BASE_URL", val: "shop.test"},
		{name: "interval", key: "REAPER_INTERVAL", val: "0s"},
		{name: "unparsable", key: "MAX_TERM_DAYS", val: "many"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.val)
			if _, err := Load(quiet); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoadEnvFile_ParentDirectoryAndPrecedence(t *testing.T) {
	root := t.TempDir()
	content := "\ufeff# shop settings\nexport PTERO_URL=\"https://panel.shop.test\"\nPTERO_API_KEY='ptla_123'\nPORT=9999\nbroken line\n=novalue\n"
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	chdir(t, nested)

	t.Setenv("PORT", "7000")
	// Registered so t.Setenv restores them after the file sets them.
	t.Setenv("PTERO_URL", "")
	t.Setenv("PTERO_API_KEY", "")
	os.Unsetenv("PTERO_URL")
	os.Unsetenv("PTERO_API_KEY")

	cfg, err := Load(quiet)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ptero.URL != "https://panel.shop.test" || cfg.Ptero.APIKey != "ptla_123" {
		t.Fatalf("expected values from .env, got %+v", cfg.Ptero)
	}
	if cfg.Port != "7000" {
		t.Fatalf("environment must win over .env, got %s", cfg.Port)
	}
}

func TestTrimQuotes(t *testing.T) {
	tests := map[string]string{
		`"a b"`: "a b",
		`'x'`:   "x",
		`"x'`:   `"x'`,
		`"`:     `"`,
		``:      ``,
	}
	for in, want := range tests {
		if got := trimQuotes(in); got != want {
			t.Fatalf("trimQuotes(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseEnv(t *testing.T) {
	input := "\ufeffA=1\n# comment\n\nexport B = two words # trailing\nC=\"quoted # kept\"\nbad line\n=x\nD E=1\nF=\n"
	vars, malformed, err := parseEnv(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := []envVar{
		{key: "A", value: "1"},
		{key: "B", value: "two words"},
		{key: "C", value: "quoted # kept"},
		{key: "F", value: ""},
	}
	if len(vars) != len(want) {
		t.Fatalf("expected %d vars, got %+v", len(want), vars)
	}
	for i := range want {
		if vars[i] != want[i] {
			t.Fatalf("var %d: expected %+v, got %+v", i, want[i], vars[i])
		}
	}
	if len(malformed) != 3 || malformed[0] != 6 || malformed[1] != 7 || malformed[2] != 8 {
		t.Fatalf("expected malformed lines [6 7 8], got %v", malformed)
	}
}

func TestLoadEnvFile_ExplicitPath(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "shop.env")
	if err := os.WriteFile(path, []byte("CURRENCY=eur\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("CURRENCY", "")
	os.Unsetenv("CURRENCY")

	cfg, err := Load(quiet)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Currency != "EUR" {
		t.Fatalf("expected currency from ENV_FILE, got %q", cfg.Currency)
	}
}
