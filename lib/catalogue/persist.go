// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package catalogue

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/romforge/patchbay/lib/codec"
)

// FileName is the catalogue's file name within the cache root.
const FileName = "catalogue.cbor"

// Load reads a persisted catalogue. A missing file is not an error:
// it yields an empty catalogue, which is the normal state of a first
// run. A present-but-undecodable file is an error — silently starting
// over would re-hash the entire collection.
func Load(path string) (*Catalogue, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading catalogue %s: %w", path, err)
	}
	defer file.Close()

	var byHash map[string]string
	if err := codec.NewDecoder(file).Decode(&byHash); err != nil {
		return nil, fmt.Errorf("decoding catalogue %s: %w", path, err)
	}

	result := New()
	for hash, filePath := range byHash {
		result.insert(hash, filePath)
	}
	return result, nil
}

// Save persists the hash-to-path mapping to path, creating parent
// directories as needed. The file is written to a temporary name in
// the same directory and atomically renamed into place, so a crash
// mid-write can never leave a corrupt catalogue at the canonical path.
func (c *Catalogue) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating catalogue directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp catalogue file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := codec.NewEncoder(tmpFile).Encode(c.byHash); err != nil {
		return fmt.Errorf("writing temp catalogue: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing temp catalogue: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp catalogue: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("committing catalogue to %s: %w", path, err)
	}

	success = true
	return nil
}
