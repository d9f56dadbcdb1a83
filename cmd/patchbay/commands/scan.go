// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/spf13/pflag"

	"github.com/romforge/patchbay/cmd/patchbay/cli"
	"github.com/romforge/patchbay/lib/catalogue"
	"github.com/romforge/patchbay/lib/config"
)

func scanCommand() *cli.Command {
	var (
		configPath string
		romDir     string
		cacheDir   string
	)

	return &cli.Command{
		Name:    "scan",
		Summary: "Refresh the ROM catalogue without running patches",
		Description: `Scan the ROM collection and persist the content-hash catalogue.

Files already present in the catalogue are not re-hashed, so repeat
scans over an unchanged collection are fast. No network access.`,
		Usage: "patchbay scan [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("scan", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to the YAML config file")
			flagSet.StringVar(&romDir, "roms", "", "root of the ROM collection")
			flagSet.StringVar(&cacheDir, "cache", "", "cache directory (catalogue and downloads)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return fmt.Errorf("scan takes no positional arguments, got %q", args)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if romDir != "" {
				cfg.RomDir = romDir
			}
			if cacheDir != "" {
				cfg.CacheDir = cacheDir
			}
			if cfg.RomDir == "" {
				return fmt.Errorf("no ROM directory: set rom_dir in the config or pass --roms")
			}

			prior, err := catalogue.Load(cfg.CataloguePath())
			if err != nil {
				return err
			}

			var hashed atomic.Int64
			cat, scanErr := catalogue.Scan(ctx, cfg.RomDir, prior, catalogue.ScanOptions{
				Extensions: cfg.RomExtensions,
				Logger:     logger,
				Hashed:     &hashed,
			})
			if saveErr := cat.Save(cfg.CataloguePath()); saveErr != nil && scanErr == nil {
				return saveErr
			}
			if scanErr != nil {
				return scanErr
			}

			fmt.Printf("%d ROMs catalogued (%d newly hashed)\n", cat.Len(), hashed.Load())
			return nil
		},
		Examples: []cli.Example{
			{
				Description: "Catalogue a collection",
				Command:     "patchbay scan --roms ~/roms",
			},
		},
	}
}
