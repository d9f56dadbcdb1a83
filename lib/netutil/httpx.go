// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers for the download cache.
//
// Body reads are bounded at MaxDownloadSize to prevent unbounded
// memory or disk allocation from a misbehaving server. Patch files and
// manifests are small; the limit is intentionally generous so it never
// interferes with legitimate downloads.
package netutil

import (
	"fmt"
	"io"
)

// MaxDownloadSize bounds a single download at 512 MB. No IPS patch or
// manifest comes anywhere near this; the bound exists solely so that a
// pathological response cannot exhaust the machine.
const MaxDownloadSize int64 = 512 << 20

// ErrBodyTooLarge is returned when a response body exceeds
// MaxDownloadSize.
var ErrBodyTooLarge = fmt.Errorf("response body exceeds %d bytes", MaxDownloadSize)

// CopyBounded copies a response body to w, failing if it exceeds
// MaxDownloadSize. Use instead of io.Copy when streaming an HTTP
// response to disk.
func CopyBounded(w io.Writer, body io.Reader) (int64, error) {
	n, err := io.Copy(w, io.LimitReader(body, MaxDownloadSize+1))
	if err != nil {
		return n, err
	}
	if n > MaxDownloadSize {
		return n, ErrBodyTooLarge
	}
	return n, nil
}

// ErrorBody reads an HTTP error response body (up to 8 KB) and returns
// it as a string for diagnostic error messages. Read errors are
// silently ignored — a partial or empty body is still useful in an
// error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 8<<10))
	return string(data)
}
