// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/romforge/patchbay/cmd/patchbay/cli"
	"github.com/romforge/patchbay/lib/ips"
)

func applyCommand() *cli.Command {
	var outputPath string

	return &cli.Command{
		Name:    "apply",
		Summary: "Apply one patch file to one ROM, offline",
		Description: `Apply a single patch to a single ROM without a manifest.

The default output path is the ROM path with ".patched" inserted
before the extension. The source ROM is never modified. An existing
file at the output path is not overwritten.`,
		Usage: "patchbay apply <rom> <patch> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("apply", pflag.ContinueOnError)
			flagSet.StringVarP(&outputPath, "output", "o", "", "output path for the patched file")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 2 {
				return fmt.Errorf("apply takes exactly two arguments: <rom> <patch>")
			}
			romPath, patchPath := args[0], args[1]

			romBytes, err := os.ReadFile(romPath)
			if err != nil {
				return fmt.Errorf("reading ROM: %w", err)
			}
			patchBytes, err := os.ReadFile(patchPath)
			if err != nil {
				return fmt.Errorf("reading patch: %w", err)
			}

			patched, err := ips.Apply(romBytes, patchBytes)
			if err != nil {
				return fmt.Errorf("applying %s: %w", patchPath, err)
			}

			dest := outputPath
			if dest == "" {
				dest = defaultOutputPath(romPath)
			}
			file, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("creating %s: %w", dest, err)
			}
			if _, err := file.Write(patched); err != nil {
				file.Close()
				os.Remove(dest)
				return fmt.Errorf("writing %s: %w", dest, err)
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("writing %s: %w", dest, err)
			}

			logger.Info("patched", "rom", romPath, "patch", patchPath, "output", dest)
			fmt.Printf("%s\n", dest)
			return nil
		},
		Examples: []cli.Example{
			{
				Description: "Patch in place next to the source",
				Command:     "patchbay apply game.gb fix.ips",
			},
			{
				Description: "Name the output explicitly",
				Command:     "patchbay apply game.gb fix.ips -o game.pocket",
			},
		},
	}
}

// defaultOutputPath inserts ".patched" before the ROM's extension:
// "roms/game.gb" becomes "roms/game.patched.gb".
func defaultOutputPath(romPath string) string {
	ext := filepath.Ext(romPath)
	return strings.TrimSuffix(romPath, ext) + ".patched" + ext
}
