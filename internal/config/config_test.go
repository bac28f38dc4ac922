package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/vimctl/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
editor_binary = "/usr/bin/gvim"
discovery_interval = "250ms"
serial_wrap = 100
admin_listen_addr = "127.0.0.1:7070"
admin_origins = "http://a.local, http://b.local"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.EditorBinary != "/usr/bin/gvim" || cfg.DiscoveryInterval != 250*time.Millisecond {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.SerialWrap != 100 || cfg.AdminListenAddr != "127.0.0.1:7070" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ConsoleBinary != def.ConsoleBinary || cfg.StopGrace != def.StopGrace || cfg.CwdTTL != 0 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Session().SerialWrap != 100 || cfg.Hidden().Binary != "/usr/bin/gvim" {
		t.Fatalf("component configs not derived: %+v %+v", cfg.Session(), cfg.Hidden())
	}
	admin := cfg.Admin()
	if len(admin.CORSOrigins) != 2 || admin.CORSOrigins[1] != "http://b.local" || admin.ExprTimeout != def.AdminExprTimeout {
		t.Fatalf("admin config not derived: %+v", admin)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	cases := []string{
		`discovery_interval = "soon"`,
		`discovery_interval = "0s"`,
		`serial_wrap = 70000`,
		`editor_binary = "  "`,
		`spawn_backoff_initial = "5s"` + "\n" + `spawn_backoff_max = "1s"`,
		`log_level = "loud"`,
		`admin_expr_timeout = "-1s"`,
		`unknown_key = 1`,
	}
	for _, body := range cases {
		if _, err := Load(writeConfig(t, body)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%q: expected ErrInvalid, got %v", body, err)
		}
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("template does not reproduce defaults:\n got %+v\nwant %+v", cfg, Default())
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	testlog.Start(t)
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil || cfg != Default() {
		t.Fatalf("cfg=%+v err=%v", cfg, err)
	}
}
