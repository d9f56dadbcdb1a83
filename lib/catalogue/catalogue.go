// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalogue builds and persists the bidirectional index
// between local ROM file paths and their content hashes. The content
// hash is the join key against manifest patch descriptors, so a ROM is
// identified by what it contains, not what it is named.
//
// The catalogue has a single writer (the scan) and is read-only
// afterwards; it is not safe for concurrent mutation.
package catalogue

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Catalogue maps content hashes to file paths and back. The two maps
// are exact inverses: every entry in one has exactly one counterpart
// in the other.
type Catalogue struct {
	byHash map[string]string
	byPath map[string]string
}

// New returns an empty catalogue.
func New() *Catalogue {
	return &Catalogue{
		byHash: make(map[string]string),
		byPath: make(map[string]string),
	}
}

// PathFor returns the file path recorded for a content hash.
func (c *Catalogue) PathFor(hash string) (string, bool) {
	path, ok := c.byHash[hash]
	return path, ok
}

// HashFor returns the content hash recorded for a file path.
func (c *Catalogue) HashFor(path string) (string, bool) {
	hash, ok := c.byPath[path]
	return hash, ok
}

// Len returns the number of catalogued files.
func (c *Catalogue) Len() int { return len(c.byHash) }

// insert records a hash/path pair. Returns false without modifying the
// catalogue when the hash is already present for a different path:
// the first-scanned file keeps its entry, preserving the inverse-map
// invariant (duplicate content policy: keep first).
func (c *Catalogue) insert(hash, path string) bool {
	if existing, ok := c.byHash[hash]; ok && existing != path {
		return false
	}
	c.byHash[hash] = path
	c.byPath[path] = hash
	return true
}

// ScanOptions configures a catalogue scan.
type ScanOptions struct {
	// Extensions is the candidate file filter (lowercase, with
	// leading dot, e.g. ".gb"). Empty means every file is a candidate.
	Extensions []string

	// Logger receives per-file skip warnings. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Hashed, when non-nil, is incremented once per file hashed. The
	// scan only ever does an atomic add here, so progress reporting
	// can sample it without serializing against the scan.
	Hashed *atomic.Int64
}

// Scan walks the ROM tree under root and returns a catalogue holding
// every prior entry plus a hash for each new candidate file. Paths
// already present in prior are trusted and not re-hashed, so repeated
// scans over an unchanged tree are cheap and idempotent.
//
// An unreadable candidate file is logged and skipped. An unreadable
// root directory is fatal: Scan returns the error together with
// whatever was catalogued before the failure, and the caller is
// expected to persist that partial catalogue regardless.
func Scan(ctx context.Context, root string, prior *Catalogue, opts ScanOptions) (*Catalogue, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	result := New()
	if prior != nil {
		for hash, path := range prior.byHash {
			result.insert(hash, path)
		}
	}

	for path, err := range Walk(root) {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err != nil {
			if path == root {
				return result, fmt.Errorf("reading ROM root %s: %w", root, err)
			}
			// Unreadable subdirectory: skip its subtree, keep going.
			logger.Warn("skipping unreadable directory", "dir", path, "error", err)
			continue
		}

		if !candidate(path, opts.Extensions) {
			continue
		}
		if _, ok := result.HashFor(path); ok {
			continue
		}

		hash, err := HashFile(path)
		if err != nil {
			logger.Warn("skipping unreadable file", "file", path, "error", err)
			continue
		}
		if opts.Hashed != nil {
			opts.Hashed.Add(1)
		}

		if !result.insert(hash, path) {
			existing, _ := result.PathFor(hash)
			logger.Warn("duplicate content, keeping first",
				"hash", hash, "kept", existing, "skipped", path)
		}
	}

	return result, nil
}

// candidate reports whether path matches the extension filter.
func candidate(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
