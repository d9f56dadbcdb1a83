// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for all persisted
// Patchbay state: the ROM catalogue and the download cache's digest
// sidecars. Encoding is deterministic so that identical logical state
// always produces identical bytes on disk.
package codec
