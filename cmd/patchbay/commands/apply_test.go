// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	return Root().Execute(context.Background(), args, slog.New(slog.DiscardHandler))
}

func TestApplyWritesPatchedCopy(t *testing.T) {
	dir := t.TempDir()
	romPath := filepath.Join(dir, "game.gb")
	patchPath := filepath.Join(dir, "fix.ips")
	outPath := filepath.Join(dir, "game.pocket")

	if err := os.WriteFile(romPath, []byte{0x01, 0x02, 0x03}, 0o644); err != nil {
		t.Fatal(err)
	}
	patch := []byte("PATCH\x00\x00\x01\x00\x01\xFFEOF")
	if err := os.WriteFile(patchPath, patch, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "apply", romPath, patchPath, "-o", outPath); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if want := []byte{0x01, 0xFF, 0x03}; !bytes.Equal(got, want) {
		t.Errorf("output = %x, want %x", got, want)
	}

	// Source untouched.
	source, _ := os.ReadFile(romPath)
	if !bytes.Equal(source, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("source modified: %x", source)
	}
}

func TestApplyDefaultOutputPath(t *testing.T) {
	if got := defaultOutputPath("roms/game.gb"); got != "roms/game.patched.gb" {
		t.Errorf("defaultOutputPath = %q", got)
	}
	if got := defaultOutputPath("noext"); got != "noext.patched" {
		t.Errorf("defaultOutputPath = %q", got)
	}
}

func TestApplyRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	romPath := filepath.Join(dir, "game.gb")
	patchPath := filepath.Join(dir, "fix.ips")
	outPath := filepath.Join(dir, "out.gb")
	for _, path := range []string{romPath, outPath} {
		if err := os.WriteFile(path, []byte{0x00}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(patchPath, []byte("PATCHEOF"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "apply", romPath, patchPath, "-o", outPath); err == nil {
		t.Fatal("apply overwrote an existing output")
	}
}

func TestApplyRejectsMalformedPatch(t *testing.T) {
	dir := t.TempDir()
	romPath := filepath.Join(dir, "game.gb")
	patchPath := filepath.Join(dir, "fix.ips")
	if err := os.WriteFile(romPath, []byte{0x00}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(patchPath, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "apply", romPath, patchPath); err == nil {
		t.Fatal("apply accepted a malformed patch")
	}
	// No output artifact either.
	if _, err := os.Stat(filepath.Join(dir, "game.patched.gb")); !os.IsNotExist(err) {
		t.Errorf("malformed patch left an output: %v", err)
	}
}

func TestApplyWrongArgCount(t *testing.T) {
	if err := execute(t, "apply", "only-one"); err == nil {
		t.Fatal("apply accepted one argument")
	}
}
