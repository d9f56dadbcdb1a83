// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Patchbay.
//
// Configuration is an immutable value constructed once — from defaults,
// then an optional YAML file (PATCHBAY_CONFIG environment variable or
// the --config flag), then flag overrides — and passed to each
// component. There are no globals and no hidden overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable pointing at the config file.
const EnvVar = "PATCHBAY_CONFIG"

// Config is the run configuration for Patchbay.
type Config struct {
	// ManifestURL is where the patch manifest is published.
	ManifestURL string `yaml:"manifest_url"`

	// RomDir is the root of the local ROM collection.
	RomDir string `yaml:"rom_dir"`

	// CacheDir holds the persisted catalogue and the download mirror.
	CacheDir string `yaml:"cache_dir"`

	// OutputDir receives patched files.
	OutputDir string `yaml:"output_dir"`

	// LogFile, when non-empty, receives the human-readable run
	// summary.
	LogFile string `yaml:"log_file"`

	// Workers bounds per-descriptor concurrency in the patch phase.
	Workers int `yaml:"workers"`

	// RomExtensions is the candidate-file filter for the catalogue
	// scan (lowercase, leading dot).
	RomExtensions []string `yaml:"rom_extensions"`
}

// Default returns the base configuration. The manifest URL has no
// default — it must come from the file or the flag.
func Default() Config {
	homeDir, _ := os.UserHomeDir()
	return Config{
		CacheDir:  filepath.Join(homeDir, ".cache", "patchbay"),
		OutputDir: "patched",
		Workers:   4,
		RomExtensions: []string{
			".a26", ".bin", ".gb", ".gba", ".gbc",
			".gen", ".gg", ".nes", ".pce", ".sfc", ".smd", ".sms",
		},
	}
}

// Load builds a Config from defaults plus the file at path. An empty
// path falls back to the PATCHBAY_CONFIG environment variable; if that
// is also unset, the defaults are returned as-is (flags can supply the
// rest).
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// CataloguePath is where the persisted catalogue lives.
func (c Config) CataloguePath() string {
	return filepath.Join(c.CacheDir, "catalogue.cbor")
}

// DownloadDir is the root of the download mirror tree.
func (c Config) DownloadDir() string {
	return filepath.Join(c.CacheDir, "downloads")
}

// Validate checks the configuration for a full batch run.
func (c Config) Validate() error {
	var errs []error

	if c.ManifestURL == "" {
		errs = append(errs, fmt.Errorf("manifest_url is required"))
	}
	if c.RomDir == "" {
		errs = append(errs, fmt.Errorf("rom_dir is required"))
	}
	if c.CacheDir == "" {
		errs = append(errs, fmt.Errorf("cache_dir is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, fmt.Errorf("output_dir is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}

	return errors.Join(errs...)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVariables expands ${VAR} and ${VAR:-default} in path fields
// for portability of shared config files.
func (c *Config) expandVariables() {
	c.RomDir = expandVars(c.RomDir)
	c.CacheDir = expandVars(c.CacheDir)
	c.OutputDir = expandVars(c.OutputDir)
	c.LogFile = expandVars(c.LogFile)
}

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
