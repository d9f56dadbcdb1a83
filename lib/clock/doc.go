// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the pieces of Patchbay that wait:
// download retry backoff and the scan progress ticker. Production code
// injects Real(); tests inject Fake() and advance time explicitly so
// backoff tests complete instantly and deterministically.
package clock
