// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner orchestrates a full patch run: it builds the ROM
// catalogue and loads the manifest concurrently, joins them by content
// hash, then drives the download cache and the patch engine for every
// descriptor under a bounded worker pool, classifying each outcome.
//
// Only two things are fatal to a run: a failed manifest load and an
// unreadable ROM root. Everything else is captured per descriptor in
// the final report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/romforge/patchbay/lib/catalogue"
	"github.com/romforge/patchbay/lib/clock"
	"github.com/romforge/patchbay/lib/config"
	"github.com/romforge/patchbay/lib/fetchcache"
	"github.com/romforge/patchbay/lib/ips"
	"github.com/romforge/patchbay/lib/manifest"
)

// progressInterval is how often the scan phase reports how many files
// it has hashed.
const progressInterval = 5 * time.Second

// Options configures a Runner beyond its Config. Zero values get
// usable defaults.
type Options struct {
	// Cache serves all downloads. Defaults to a fetchcache.Cache
	// rooted at the config's download directory.
	Cache *fetchcache.Cache

	// Logger receives run progress. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock drives the progress ticker. Defaults to clock.Real().
	Clock clock.Clock
}

// Runner executes patch runs for one configuration.
type Runner struct {
	cfg    config.Config
	cache  *fetchcache.Cache
	logger *slog.Logger
	clock  clock.Clock
}

// New creates a Runner. cfg must already be validated.
func New(cfg config.Config, opts Options) *Runner {
	runner := &Runner{
		cfg:    cfg,
		cache:  opts.Cache,
		logger: opts.Logger,
		clock:  opts.Clock,
	}
	if runner.logger == nil {
		runner.logger = slog.Default()
	}
	if runner.clock == nil {
		runner.clock = clock.Real()
	}
	if runner.cache == nil {
		runner.cache = fetchcache.New(cfg.DownloadDir(), fetchcache.Options{
			Logger: runner.logger,
			Clock:  runner.clock,
		})
	}
	return runner
}

// Run executes one full batch: scan and manifest load concurrently,
// then per-descriptor processing. The returned report classifies every
// manifest descriptor into exactly one category.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	var (
		cat *catalogue.Catalogue
		m   *manifest.Manifest
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		cat, err = r.scanPhase(groupCtx)
		return err
	})
	group.Go(func() error {
		var err error
		m, err = manifest.Load(groupCtx, r.cache, r.cfg.ManifestURL)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	r.logger.Info("catalogue and manifest ready",
		"roms", cat.Len(), "patches", len(m.Patches))

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", r.cfg.OutputDir, err)
	}

	// Each worker writes only its own index; no shared accumulator.
	outcomes := make([]Outcome, len(m.Patches))
	pool, poolCtx := errgroup.WithContext(ctx)
	pool.SetLimit(r.cfg.Workers)
	for i, descriptor := range m.Patches {
		pool.Go(func() error {
			if err := poolCtx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.process(poolCtx, cat, descriptor)
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}

	return &Report{Updated: m.Updated, Outcomes: outcomes}, nil
}

// scanPhase loads the prior catalogue, scans the ROM tree, and
// persists the result. The catalogue is persisted even when the scan
// aborts partway — whatever was hashed stays hashed.
func (r *Runner) scanPhase(ctx context.Context) (*catalogue.Catalogue, error) {
	prior, err := catalogue.Load(r.cfg.CataloguePath())
	if err != nil {
		return nil, err
	}

	var hashed atomic.Int64
	stopProgress := make(chan struct{})
	go func() {
		ticker := r.clock.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopProgress:
				return
			case <-ticker.C:
				r.logger.Info("scanning ROM collection", "hashed", hashed.Load())
			}
		}
	}()

	cat, scanErr := catalogue.Scan(ctx, r.cfg.RomDir, prior, catalogue.ScanOptions{
		Extensions: r.cfg.RomExtensions,
		Logger:     r.logger,
		Hashed:     &hashed,
	})
	close(stopProgress)

	if saveErr := cat.Save(r.cfg.CataloguePath()); saveErr != nil {
		if scanErr != nil {
			r.logger.Error("persisting partial catalogue failed", "error", saveErr)
		} else {
			return cat, saveErr
		}
	}
	return cat, scanErr
}

// process handles one descriptor end to end and returns its outcome.
// Nothing in here is fatal to the batch.
func (r *Runner) process(ctx context.Context, cat *catalogue.Catalogue, d manifest.Descriptor) Outcome {
	logger := r.logger.With("patch", d.Name)

	romPath, ok := cat.PathFor(d.MD5)
	if !ok {
		return Outcome{Descriptor: d, Class: ClassMissing}
	}

	patchBytes, err := r.cache.Fetch(ctx, d.DownloadURL)
	if err != nil {
		logger.Warn("download failed", "url", d.DownloadURL, "error", err)
		return Outcome{Descriptor: d, Class: ClassFailed, Reason: err.Error()}
	}

	outputPath := filepath.Join(r.cfg.OutputDir, d.OutputName())

	// Exclusive create is the one synchronization point between
	// workers: whoever creates the name owns it, and an existing
	// output is never overwritten.
	reservation, err := os.OpenFile(outputPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Outcome{Descriptor: d, Class: ClassSkipped}
		}
		return Outcome{Descriptor: d, Class: ClassFailed, Reason: err.Error()}
	}
	reservation.Close()

	outcome := r.patchInto(outputPath, romPath, patchBytes, d)
	if outcome.Class != ClassPatched {
		// Leave no empty or partial artifact behind.
		if err := os.Remove(outputPath); err != nil {
			logger.Error("removing failed output", "path", outputPath, "error", err)
		}
	} else {
		logger.Info("patched", "rom", romPath, "output", outputPath)
	}
	return outcome
}

// patchInto reads the ROM, applies the patch, and commits the result
// over the reserved output path via temp file and rename.
func (r *Runner) patchInto(outputPath, romPath string, patchBytes []byte, d manifest.Descriptor) Outcome {
	romBytes, err := os.ReadFile(romPath)
	if err != nil {
		return Outcome{Descriptor: d, Class: ClassFailed, Reason: fmt.Sprintf("reading ROM: %v", err)}
	}

	patched, err := ips.Apply(romBytes, patchBytes)
	if err != nil {
		return Outcome{Descriptor: d, Class: ClassFailed, Reason: err.Error()}
	}

	if err := commitOutput(outputPath, patched); err != nil {
		return Outcome{Descriptor: d, Class: ClassFailed, Reason: err.Error()}
	}
	return Outcome{Descriptor: d, Class: ClassPatched}
}

// commitOutput writes data through a temporary file in the same
// directory and renames it over the reserved output path. The rename
// is atomic: the path holds either the empty reservation or the
// complete result, never a torn file.
func commitOutput(dest string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp output: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing output: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("committing output: %w", err)
	}

	success = true
	return nil
}
