// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package catalogue

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// HashLength is the length of a content hash in hex characters.
const HashLength = 2 * md5.Size

// HashFile computes the content hash of the file at path by streaming
// its bytes through the hasher — the file is never held in memory in
// one piece. Returns the lowercase hex digest.
//
// MD5 is the hash the patch manifests publish for their targets, so it
// is the join key the catalogue must speak. It identifies content for
// matching; nothing here relies on it for security.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ValidHash reports whether s is a well-formed content hash: exactly
// HashLength hex characters.
func ValidHash(s string) bool {
	if len(s) != HashLength {
		return false
	}
	_, err := hex.DecodeString(strings.ToLower(s))
	return err == nil
}
