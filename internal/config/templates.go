package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Template renders cfg in the on-disk format.
func Template(cfg Config) (string, error) {
	out, err := toml.Marshal(toFile(cfg))
	if err != nil {
		return "", fmt.Errorf("config render failed: %w", err)
	}
	return string(out), nil
}

// WriteTemplate writes the default configuration to path.
func WriteTemplate(path string, overwrite bool) error {
	template, err := Template(Default())
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("config dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func toFile(cfg Config) fileConfig {
	return fileConfig{
		EditorBinary:        cfg.EditorBinary,
		ConsoleBinary:       cfg.ConsoleBinary,
		HiddenPrefix:        cfg.HiddenPrefix,
		DiscoveryInterval:   cfg.DiscoveryInterval.String(),
		CwdTTL:              cfg.CwdTTL.String(),
		DefaultDir:          cfg.DefaultDir,
		SerialWrap:          cfg.SerialWrap,
		SpawnBackoffInitial: cfg.SpawnBackoffInitial.String(),
		SpawnBackoffMax:     cfg.SpawnBackoffMax.String(),
		StopGrace:           cfg.StopGrace.String(),
		AdminListenAddr:     cfg.AdminListenAddr,
		AdminOrigins:        cfg.AdminOrigins,
		AdminExprTimeout:    cfg.AdminExprTimeout.String(),
		AdminToken:          cfg.AdminToken,
		Display:             cfg.Display,
		LogLevel:            cfg.LogLevel,
	}
}
