// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetchcache is a content cache for downloaded bytes, keyed by
// URL. The cache is a mirror tree on disk: an entry for
// https://host/a/b/patch.ips lives at <root>/host/a/b/patch.ips, so
// the cache directory is browsable and reusable by other tools.
//
// Entries are fetch-once, reuse-forever: there is no invalidation and
// no TTL. Commits are atomic (write to a temporary file, rename into
// place), so a crash or failed transfer can never leave a partial blob
// at a canonical key — a retry behaves exactly like a fresh miss.
// Each committed blob gets a BLAKE3 digest sidecar that is verified on
// cache hits; a corrupt blob is discarded and re-fetched.
package fetchcache

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/romforge/patchbay/lib/clock"
	"github.com/romforge/patchbay/lib/codec"
)

// digestSuffix is appended to a blob's path for its integrity sidecar.
const digestSuffix = ".b3"

// HTTPError is a non-success HTTP response for a cache miss. The
// request completed; the server said no.
type HTTPError struct {
	Status int
	URL    string
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.Status)
}

// Options configures a Cache. The zero value of every field has a
// usable default.
type Options struct {
	// Client issues the HTTP requests. Defaults to http.DefaultClient.
	Client *http.Client

	// Clock drives retry backoff. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives fetch and verification events. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Attempts is the maximum number of tries for transient failures.
	// Defaults to 3.
	Attempts int

	// BackoffBase is the first retry delay; it doubles per attempt.
	// Defaults to 500ms.
	BackoffBase time.Duration
}

// Cache is a URL-keyed download cache rooted at one directory.
// Committed entries are immutable. Safe for concurrent use; concurrent
// misses on the same key are coalesced so the network sees one request.
type Cache struct {
	root        string
	client      *http.Client
	clock       clock.Clock
	logger      *slog.Logger
	attempts    int
	backoffBase time.Duration

	flight singleflight.Group
}

// New creates a Cache rooted at root. The directory is created on
// first use, not here.
func New(root string, opts Options) *Cache {
	cache := &Cache{
		root:        root,
		client:      opts.Client,
		clock:       opts.Clock,
		logger:      opts.Logger,
		attempts:    opts.Attempts,
		backoffBase: opts.BackoffBase,
	}
	if cache.client == nil {
		cache.client = http.DefaultClient
	}
	if cache.clock == nil {
		cache.clock = clock.Real()
	}
	if cache.logger == nil {
		cache.logger = slog.Default()
	}
	if cache.attempts <= 0 {
		cache.attempts = 3
	}
	if cache.backoffBase <= 0 {
		cache.backoffBase = 500 * time.Millisecond
	}
	return cache
}

// EntryPath returns the canonical on-disk location for a URL's cache
// entry: root, then host, then the URL path. The query and fragment do
// not participate in the key. Returns an error for URLs with no host
// or with a path that escapes the mirror tree.
func (c *Cache) EntryPath(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing URL %q: %w", rawURL, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL %q has no host", rawURL)
	}

	cleaned := path.Clean("/" + parsed.Path)
	if cleaned == "/" {
		cleaned = "/index"
	} else if strings.HasSuffix(parsed.Path, "/") {
		// Directory-style URL: give the entry a file name.
		cleaned += "/index"
	}

	entry := filepath.Join(c.root, parsed.Host, filepath.FromSlash(cleaned))
	// path.Clean on a rooted path cannot produce "..", but keep the
	// containment check: a crafted host like ".." must not escape.
	if !strings.HasPrefix(entry, c.root+string(filepath.Separator)) {
		return "", fmt.Errorf("URL %q maps outside the cache root", rawURL)
	}
	return entry, nil
}

// Fetch returns the bytes for rawURL, downloading and committing them
// on first use. Concurrent calls for the same URL share one download.
// The returned slice must not be modified by callers that may share it.
func (c *Cache) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	entry, err := c.EntryPath(rawURL)
	if err != nil {
		return nil, err
	}

	result, err, _ := c.flight.Do(entry, func() (any, error) {
		return c.readOrDownload(ctx, rawURL, entry)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// readOrDownload serves one coalesced fetch: try the committed entry,
// fall back to the network.
func (c *Cache) readOrDownload(ctx context.Context, rawURL, entry string) ([]byte, error) {
	if data, ok := c.readVerified(entry); ok {
		return data, nil
	}

	data, err := c.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := c.commit(entry, data); err != nil {
		return nil, err
	}
	return data, nil
}

// readVerified reads a committed entry and checks it against its
// digest sidecar. A corrupt blob is removed so the caller re-fetches.
// A missing sidecar is accepted (entries written by other tools).
func (c *Cache) readVerified(entry string) ([]byte, bool) {
	data, err := os.ReadFile(entry)
	if err != nil {
		return nil, false
	}

	sidecar, err := os.ReadFile(entry + digestSuffix)
	if err != nil {
		return data, true
	}

	var recorded blobDigest
	if err := codec.Unmarshal(sidecar, &recorded); err == nil &&
		recorded.Algorithm == "blake3" && len(recorded.Sum) == 32 {
		sum := blake3.Sum256(data)
		if [32]byte(recorded.Sum) == sum {
			return data, true
		}
	}

	c.logger.Warn("cache entry failed integrity check, re-fetching", "entry", entry)
	os.Remove(entry)
	os.Remove(entry + digestSuffix)
	return nil, false
}

// blobDigest is the sidecar content recorded next to each blob.
type blobDigest struct {
	Algorithm string `cbor:"algorithm"`
	Sum       []byte `cbor:"sum"`
}

// commit writes data to the entry path atomically, then records its
// digest sidecar. A failure at any point leaves no file at the
// canonical key.
func (c *Cache) commit(entry string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(entry), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	if err := writeAtomic(entry, data); err != nil {
		return fmt.Errorf("committing cache entry %s: %w", entry, err)
	}

	// The blob is committed from here on. A sidecar failure only
	// skips hit-time verification, so it must not turn the fetch into
	// an error: the canonical key already holds complete bytes.
	sum := blake3.Sum256(data)
	sidecar, err := codec.Marshal(blobDigest{Algorithm: "blake3", Sum: sum[:]})
	if err != nil {
		c.logger.Warn("encoding digest sidecar failed", "entry", entry, "error", err)
		return nil
	}
	if err := writeAtomic(entry+digestSuffix, sidecar); err != nil {
		c.logger.Warn("committing digest sidecar failed", "entry", entry, "error", err)
	}
	return nil
}

// writeAtomic writes data to path via a temporary file in the same
// directory and an atomic rename. On failure the temporary file is
// removed and the destination is untouched.
func writeAtomic(dest string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
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
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return err
	}

	success = true
	return nil
}
