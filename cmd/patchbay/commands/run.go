// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/romforge/patchbay/cmd/patchbay/cli"
	"github.com/romforge/patchbay/lib/config"
	"github.com/romforge/patchbay/lib/runner"
)

// runFlags are the command-line overrides for the run command. Zero
// values mean "not set, keep the config file value".
type runFlags struct {
	configPath  string
	manifestURL string
	romDir      string
	cacheDir    string
	outputDir   string
	logFile     string
	workers     int
}

// apply layers the set flags over a loaded configuration.
func (f *runFlags) apply(cfg *config.Config) {
	if f.manifestURL != "" {
		cfg.ManifestURL = f.manifestURL
	}
	if f.romDir != "" {
		cfg.RomDir = f.romDir
	}
	if f.cacheDir != "" {
		cfg.CacheDir = f.cacheDir
	}
	if f.outputDir != "" {
		cfg.OutputDir = f.outputDir
	}
	if f.logFile != "" {
		cfg.LogFile = f.logFile
	}
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
}

func (f *runFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "path to the YAML config file")
	flagSet.StringVar(&f.manifestURL, "manifest", "", "URL of the patch manifest")
	flagSet.StringVar(&f.romDir, "roms", "", "root of the ROM collection")
	flagSet.StringVar(&f.cacheDir, "cache", "", "cache directory (catalogue and downloads)")
	flagSet.StringVar(&f.outputDir, "output", "", "directory for patched files")
	flagSet.StringVar(&f.logFile, "log", "", "write the itemized run log to this file")
	flagSet.IntVar(&f.workers, "workers", 0, "patch-phase concurrency")
}

func runCommand() *cli.Command {
	var flags runFlags

	return &cli.Command{
		Name:    "run",
		Summary: "Run the full batch: scan, download, patch, report",
		Description: `Run one full batch against the manifest.

Scans the ROM collection and loads the manifest concurrently, then
processes every manifest entry: entries whose ROM is catalogued get
their patch downloaded (or served from cache) and applied. Each entry
ends up patched, skipped (output already exists), missing (no matching
ROM), or failed.

The summary goes to stdout. With --log, the itemized per-entry log is
also written to a file. The exit code is 1 when any entry failed.`,
		Usage: "patchbay run [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return fmt.Errorf("run takes no positional arguments, got %q", args)
			}

			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			flags.apply(&cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			report, err := runner.New(cfg, runner.Options{Logger: logger}).Run(ctx)
			if err != nil {
				return err
			}

			report.WriteSummary(os.Stdout)
			if cfg.LogFile != "" {
				if err := writeLogFile(cfg.LogFile, report); err != nil {
					return err
				}
			}

			if report.Counts()[runner.ClassFailed] > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
		Examples: []cli.Example{
			{
				Description: "Everything from the config file",
				Command:     "patchbay run --config ~/.config/patchbay.yaml",
			},
			{
				Description: "Override the output directory and keep a log",
				Command:     "patchbay run --output /srv/patched --log run.log",
			},
		},
	}
}

func writeLogFile(path string, report *runner.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating log file %s: %w", path, err)
	}
	report.WriteLog(file)
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing log file %s: %w", path, err)
	}
	return nil
}
