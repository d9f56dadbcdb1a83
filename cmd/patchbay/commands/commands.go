// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the patchbay CLI command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/romforge/patchbay/cmd/patchbay/cli"
	"github.com/romforge/patchbay/lib/version"
)

// Root builds and returns the complete patchbay command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "patchbay",
		Description: `Patchbay: batch ROM patching against a published manifest.

Catalogues a local ROM collection by content hash, downloads the
patches a manifest publishes, and writes patched copies for every ROM
the collection holds. Downloads are cached; runs are idempotent.`,
		Subcommands: []*cli.Command{
			runCommand(),
			scanCommand(),
			applyCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("patchbay %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Run the full batch against a manifest",
				Command:     "patchbay run --manifest https://patches.example.net/manifest.json --roms ~/roms",
			},
			{
				Description: "Refresh the catalogue without touching the network",
				Command:     "patchbay scan --roms ~/roms",
			},
			{
				Description: "Apply one patch offline",
				Command:     "patchbay apply game.gb fix.ips -o game.pocket",
			},
		},
	}
}
