// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package catalogue

import (
	"iter"
	"os"
	"path/filepath"
)

// Walk returns a lazy depth-first traversal of the file tree under
// root. Directories are entered (in directory order, which os.ReadDir
// sorts by name), files are yielded one at a time. The sequence is
// finite and restartable: ranging over it again restarts the
// traversal from root.
//
// A directory that cannot be read is yielded as (dirPath, err) and its
// subtree is not entered; the consumer decides whether that is fatal.
// In particular, an unreadable root yields (root, err) as the only
// element.
func Walk(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var walk func(dir string) bool
		walk = func(dir string) bool {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return yield(dir, err)
			}
			for _, entry := range entries {
				path := filepath.Join(dir, entry.Name())
				if entry.IsDir() {
					if !walk(path) {
						return false
					}
					continue
				}
				if !yield(path, nil) {
					return false
				}
			}
			return true
		}
		walk(root)
	}
}
