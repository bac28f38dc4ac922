package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/vimctl/internal/logging"
	"github.com/danmuck/vimctl/internal/protocol"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the resolved controller configuration.
type Config struct {
	EditorBinary        string
	ConsoleBinary       string
	HiddenPrefix        string
	DiscoveryInterval   time.Duration
	CwdTTL              time.Duration
	DefaultDir          string
	SerialWrap          int
	SpawnBackoffInitial time.Duration
	SpawnBackoffMax     time.Duration
	StopGrace           time.Duration
	AdminListenAddr     string
	AdminOrigins        string
	AdminExprTimeout    time.Duration
	AdminToken          string
	Display             string
	LogLevel            string
}

// fileConfig is the on-disk shape. Durations are strings so they read as
// "1s" or "500ms".
type fileConfig struct {
	EditorBinary        string `toml:"editor_binary"`
	ConsoleBinary       string `toml:"console_binary"`
	HiddenPrefix        string `toml:"hidden_prefix"`
	DiscoveryInterval   string `toml:"discovery_interval"`
	CwdTTL              string `toml:"cwd_ttl"`
	DefaultDir          string `toml:"default_dir"`
	SerialWrap          int    `toml:"serial_wrap"`
	SpawnBackoffInitial string `toml:"spawn_backoff_initial"`
	SpawnBackoffMax     string `toml:"spawn_backoff_max"`
	StopGrace           string `toml:"stop_grace"`
	AdminListenAddr     string `toml:"admin_listen_addr"`
	AdminOrigins        string `toml:"admin_origins"`
	AdminExprTimeout    string `toml:"admin_expr_timeout"`
	AdminToken          string `toml:"admin_token"`
	Display             string `toml:"display"`
	LogLevel            string `toml:"log_level"`
}

func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = string(os.PathSeparator)
	}
	return Config{
		EditorBinary:        "gvim",
		ConsoleBinary:       "vim",
		HiddenPrefix:        protocol.HiddenPrefix,
		DiscoveryInterval:   time.Second,
		CwdTTL:              0,
		DefaultDir:          home,
		SerialWrap:          protocol.DefaultSerialWrap,
		SpawnBackoffInitial: 500 * time.Millisecond,
		SpawnBackoffMax:     30 * time.Second,
		StopGrace:           2 * time.Second,
		AdminExprTimeout:    5 * time.Second,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/vimctl/config.toml or its platform
// equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "config.toml"
	}
	return filepath.Join(dir, "vimctl", "config.toml")
}

// Load applies the keys present in path onto Default and validates the
// result. Keys absent from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	setString := func(key, value string, dst *string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(value)
		}
	}
	setDuration := func(key, value string, dst *time.Duration) error {
		if !meta.IsDefined(key) {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalid, key, err)
		}
		*dst = d
		return nil
	}

	setString("editor_binary", raw.EditorBinary, &cfg.EditorBinary)
	setString("console_binary", raw.ConsoleBinary, &cfg.ConsoleBinary)
	setString("hidden_prefix", raw.HiddenPrefix, &cfg.HiddenPrefix)
	setString("default_dir", raw.DefaultDir, &cfg.DefaultDir)
	setString("admin_listen_addr", raw.AdminListenAddr, &cfg.AdminListenAddr)
	setString("admin_origins", raw.AdminOrigins, &cfg.AdminOrigins)
	setString("admin_token", raw.AdminToken, &cfg.AdminToken)
	setString("display", raw.Display, &cfg.Display)
	setString("log_level", raw.LogLevel, &cfg.LogLevel)
	if meta.IsDefined("serial_wrap") {
		cfg.SerialWrap = raw.SerialWrap
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"discovery_interval", raw.DiscoveryInterval, &cfg.DiscoveryInterval},
		{"cwd_ttl", raw.CwdTTL, &cfg.CwdTTL},
		{"spawn_backoff_initial", raw.SpawnBackoffInitial, &cfg.SpawnBackoffInitial},
		{"spawn_backoff_max", raw.SpawnBackoffMax, &cfg.SpawnBackoffMax},
		{"stop_grace", raw.StopGrace, &cfg.StopGrace},
		{"admin_expr_timeout", raw.AdminExprTimeout, &cfg.AdminExprTimeout},
	}
	for _, d := range durations {
		if err := setDuration(d.key, d.value, d.dst); err != nil {
			return Config{}, err
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.EditorBinary) == "" {
		return fmt.Errorf("%w: editor_binary is required", ErrInvalid)
	}
	if strings.TrimSpace(cfg.ConsoleBinary) == "" {
		return fmt.Errorf("%w: console_binary is required", ErrInvalid)
	}
	if cfg.HiddenPrefix == "" {
		return fmt.Errorf("%w: hidden_prefix is required", ErrInvalid)
	}
	if cfg.DiscoveryInterval <= 0 {
		return fmt.Errorf("%w: discovery_interval must be positive", ErrInvalid)
	}
	if cfg.CwdTTL < 0 {
		return fmt.Errorf("%w: cwd_ttl must not be negative", ErrInvalid)
	}
	if cfg.SerialWrap < 1 || cfg.SerialWrap > protocol.DefaultSerialWrap {
		return fmt.Errorf("%w: serial_wrap must be in 1..%d", ErrInvalid, protocol.DefaultSerialWrap)
	}
	if cfg.SpawnBackoffInitial <= 0 {
		return fmt.Errorf("%w: spawn_backoff_initial must be positive", ErrInvalid)
	}
	if cfg.SpawnBackoffMax < cfg.SpawnBackoffInitial {
		return fmt.Errorf("%w: spawn_backoff_max must not be below spawn_backoff_initial", ErrInvalid)
	}
	if cfg.StopGrace <= 0 {
		return fmt.Errorf("%w: stop_grace must be positive", ErrInvalid)
	}
	if cfg.AdminExprTimeout <= 0 {
		return fmt.Errorf("%w: admin_expr_timeout must be positive", ErrInvalid)
	}
	if cfg.LogLevel != "" {
		if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
			return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, cfg.LogLevel)
		}
	}
	return nil
}
