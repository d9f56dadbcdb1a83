// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/romforge/patchbay/lib/config"
	"github.com/romforge/patchbay/lib/manifest"
)

// identityPatch writes 0xAA over the first byte. Valid IPS.
var identityPatch = []byte("PATCH\x00\x00\x00\x00\x01\xAAEOF")

func md5hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// testServer serves /manifest.json and the given patch blobs under
// /patches/<name>.
func testServer(t *testing.T, descriptors []manifest.Descriptor, patches map[string][]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		payload, err := json.Marshal(map[string]any{
			"updated": "2026-08-30T12:00:00Z",
			"patches": descriptors,
		})
		if err != nil {
			t.Errorf("marshaling manifest: %v", err)
		}
		w.Write(payload)
	})
	mux.HandleFunc("/patches/", func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.URL.Path)
		blob, ok := patches[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(blob)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testRunner(t *testing.T, romDir string, server *httptest.Server) (*Runner, config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.ManifestURL = server.URL + "/manifest.json"
	cfg.RomDir = romDir
	cfg.CacheDir = t.TempDir()
	cfg.OutputDir = t.TempDir()
	cfg.RomExtensions = []string{".gb"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return New(cfg, Options{Logger: slog.New(slog.DiscardHandler)}), cfg
}

func writeRom(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing ROM %s: %v", name, err)
	}
	return path
}

func TestRunClassifiesEveryDescriptor(t *testing.T) {
	romDir := t.TempDir()
	romBytes := []byte{0x00, 0x11, 0x22, 0x33}
	writeRom(t, romDir, "target.gb", romBytes)
	skippedBytes := []byte{0x44, 0x55}
	writeRom(t, romDir, "done.gb", skippedBytes)

	descriptors := []manifest.Descriptor{
		{Name: "target", MD5: md5hex(romBytes), DownloadURL: "/patches/target.ips"},
		{Name: "unknown", MD5: md5hex([]byte("not in the collection")), DownloadURL: "/patches/unknown.ips"},
		{Name: "broken-link", MD5: md5hex(romBytes), DownloadURL: "/patches/absent.ips"},
		{Name: "done", MD5: md5hex(skippedBytes), DownloadURL: "/patches/done.ips"},
	}
	server := testServer(t, descriptors, map[string][]byte{
		"target.ips": identityPatch,
		"done.ips":   identityPatch,
	})

	runner, cfg := testRunner(t, romDir, server)

	// Pre-existing output for "done": must be skipped, not overwritten.
	existing := filepath.Join(cfg.OutputDir, "done.pocket")
	if err := os.WriteFile(existing, []byte("precious"), 0o644); err != nil {
		t.Fatalf("pre-creating output: %v", err)
	}

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Outcomes) != len(descriptors) {
		t.Fatalf("%d outcomes for %d descriptors", len(report.Outcomes), len(descriptors))
	}
	counts := report.Counts()
	total := 0
	for _, count := range counts {
		total += count
	}
	if total != len(descriptors) {
		t.Errorf("category counts sum to %d, want %d", total, len(descriptors))
	}

	byName := make(map[string]Outcome)
	for _, outcome := range report.Outcomes {
		byName[outcome.Descriptor.Name] = outcome
	}
	if byName["target"].Class != ClassPatched {
		t.Errorf("target: %+v", byName["target"])
	}
	if byName["unknown"].Class != ClassMissing {
		t.Errorf("unknown: %+v", byName["unknown"])
	}
	if byName["broken-link"].Class != ClassFailed || byName["broken-link"].Reason == "" {
		t.Errorf("broken-link: %+v", byName["broken-link"])
	}
	if byName["done"].Class != ClassSkipped {
		t.Errorf("done: %+v", byName["done"])
	}

	// The patched output has the patch applied.
	patched, err := os.ReadFile(filepath.Join(cfg.OutputDir, "target.pocket"))
	if err != nil {
		t.Fatalf("reading patched output: %v", err)
	}
	want := []byte{0xAA, 0x11, 0x22, 0x33}
	if !bytes.Equal(patched, want) {
		t.Errorf("patched output = %x, want %x", patched, want)
	}

	// The skipped output is untouched.
	kept, err := os.ReadFile(existing)
	if err != nil || !bytes.Equal(kept, []byte("precious")) {
		t.Errorf("existing output modified: %q, %v", kept, err)
	}

	// Failed descriptor left no artifact behind.
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "broken-link.pocket")); !os.IsNotExist(err) {
		t.Errorf("failed descriptor left an output file: %v", err)
	}
}

func TestRunMalformedPatchCleansUp(t *testing.T) {
	romDir := t.TempDir()
	romBytes := []byte{1, 2, 3}
	writeRom(t, romDir, "target.gb", romBytes)

	descriptors := []manifest.Descriptor{
		{Name: "target", MD5: md5hex(romBytes), DownloadURL: "/patches/bad.ips"},
	}
	server := testServer(t, descriptors, map[string][]byte{
		"bad.ips": []byte("not an ips stream"),
	})

	runner, cfg := testRunner(t, romDir, server)
	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Outcomes[0].Class != ClassFailed {
		t.Fatalf("outcome = %+v, want failed", report.Outcomes[0])
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "target.pocket")); !os.IsNotExist(err) {
		t.Errorf("malformed patch left an output file: %v", err)
	}
}

func TestRunInvalidManifestIsFatal(t *testing.T) {
	romDir := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"patches": [{"name": "", "md5": "nope", "download_url": ""}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	runner, _ := testRunner(t, romDir, server)
	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("Run accepted an invalid manifest")
	}
}

func TestRunMissingRomRootIsFatal(t *testing.T) {
	server := testServer(t, nil, nil)
	runner, _ := testRunner(t, filepath.Join(t.TempDir(), "absent"), server)

	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded with an unreadable ROM root")
	}
}

func TestRunPersistsCatalogueAcrossRuns(t *testing.T) {
	romDir := t.TempDir()
	romBytes := []byte("rom content")
	writeRom(t, romDir, "a.gb", romBytes)

	server := testServer(t, []manifest.Descriptor{}, nil)
	runner, cfg := testRunner(t, romDir, server)

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := os.Stat(cfg.CataloguePath()); err != nil {
		t.Fatalf("catalogue not persisted: %v", err)
	}

	// Second run over the same tree must not re-hash: rewrite the ROM
	// and check that the old hash is still served from the catalogue.
	if err := os.WriteFile(filepath.Join(romDir, "a.gb"), []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
}

func TestRunSecondInvocationSkipsPatchedOutputs(t *testing.T) {
	romDir := t.TempDir()
	romBytes := []byte{9, 9, 9}
	writeRom(t, romDir, "target.gb", romBytes)

	descriptors := []manifest.Descriptor{
		{Name: "target", MD5: md5hex(romBytes), DownloadURL: "/patches/target.ips"},
	}
	server := testServer(t, descriptors, map[string][]byte{"target.ips": identityPatch})
	runner, _ := testRunner(t, romDir, server)

	first, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Outcomes[0].Class != ClassPatched {
		t.Fatalf("first run: %+v", first.Outcomes[0])
	}

	second, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Outcomes[0].Class != ClassSkipped {
		t.Errorf("second run: %+v, want skipped", second.Outcomes[0])
	}
}

func TestRunWorkerPoolBounds(t *testing.T) {
	// Many descriptors, workers=2: just exercises the pool path and
	// the partition invariant at a size bigger than the limit.
	romDir := t.TempDir()
	server := testServer(t, manyMissing(16), nil)
	runner, _ := testRunner(t, romDir, server)
	runner.cfg.Workers = 2

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := report.Counts()[ClassMissing]; got != 16 {
		t.Errorf("missing = %d, want 16", got)
	}
}

func manyMissing(n int) []manifest.Descriptor {
	descriptors := make([]manifest.Descriptor, n)
	for i := range descriptors {
		content := fmt.Sprintf("nonexistent rom %d", i)
		descriptors[i] = manifest.Descriptor{
			Name:        fmt.Sprintf("rom-%02d", i),
			MD5:         md5hex([]byte(content)),
			DownloadURL: "/patches/never-fetched.ips",
		}
	}
	return descriptors
}
