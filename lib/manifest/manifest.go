// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest fetches and validates the published list of patch
// descriptors. The manifest is strictly data: its bytes are normalized
// from comment-tolerant JSON and decoded against a fixed schema, never
// evaluated. Anything that fails the schema fails the whole run — no
// patches are known without a valid manifest.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/romforge/patchbay/lib/catalogue"
)

// DefaultExtension is used for descriptors that do not name one.
const DefaultExtension = "pocket"

// Error is a malformed or schema-invalid manifest. It is fatal to the
// run that encountered it.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manifest: %s: %v", e.Detail, e.Err)
	}
	return "manifest: " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Descriptor describes one available patch: what it is called, the
// content hash of the ROM it targets, and where to download it.
// Immutable once loaded.
type Descriptor struct {
	// Name is the output base name for the patched file.
	Name string `json:"name"`

	// MD5 is the content hash of the target ROM, lowercase hex.
	MD5 string `json:"md5"`

	// DownloadURL is the absolute URL of the patch bytes. Resolved
	// during validation if the manifest published a root-relative one.
	DownloadURL string `json:"download_url"`

	// Extension is the output file extension, without the dot.
	Extension string `json:"extension,omitempty"`
}

// OutputName returns the file name a successful patch produces.
func (d Descriptor) OutputName() string {
	return d.Name + "." + d.Extension
}

// Manifest is the decoded, validated patch listing.
type Manifest struct {
	// Updated is the publisher's update timestamp, carried verbatim.
	Updated string `json:"updated"`

	// Patches is the ordered descriptor list.
	Patches []Descriptor `json:"patches"`
}

// Fetcher retrieves raw bytes for a URL. Satisfied by
// *fetchcache.Cache; the manifest URL is cached like any other
// resource.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Load fetches the manifest through the cache and validates it.
func Load(ctx context.Context, fetcher Fetcher, manifestURL string) (*Manifest, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, &Error{Detail: fmt.Sprintf("invalid manifest URL %q", manifestURL), Err: err}
	}

	data, err := fetcher.Fetch(ctx, manifestURL)
	if err != nil {
		return nil, &Error{Detail: "fetching manifest", Err: err}
	}

	return Parse(data, base)
}

// Parse decodes and validates manifest bytes. base resolves
// root-relative download URLs; it may be nil, in which case only
// absolute download URLs are accepted.
func Parse(data []byte, base *url.URL) (*Manifest, error) {
	var decoded Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &decoded); err != nil {
		return nil, &Error{Detail: "decoding manifest", Err: err}
	}

	for i := range decoded.Patches {
		if err := validate(&decoded.Patches[i], base); err != nil {
			return nil, &Error{Detail: fmt.Sprintf("patch descriptor %d", i), Err: err}
		}
	}

	return &decoded, nil
}

// validate checks one descriptor against the schema, normalizing the
// hash case, applying the default extension, and resolving relative
// download URLs.
func validate(d *Descriptor, base *url.URL) error {
	if d.Name == "" {
		return fmt.Errorf("name is empty")
	}
	if strings.ContainsAny(d.Name, `/\`) || d.Name == ".." {
		// The name becomes an output file name; it must not traverse.
		return fmt.Errorf("name %q contains path separators", d.Name)
	}

	d.MD5 = strings.ToLower(d.MD5)
	if !catalogue.ValidHash(d.MD5) {
		return fmt.Errorf("md5 %q is not a %d-character hex digest", d.MD5, catalogue.HashLength)
	}

	if d.DownloadURL == "" {
		return fmt.Errorf("download_url is empty")
	}
	parsed, err := url.Parse(d.DownloadURL)
	if err != nil {
		return fmt.Errorf("download_url %q: %w", d.DownloadURL, err)
	}
	switch {
	case parsed.Scheme == "http" || parsed.Scheme == "https":
		// Absolute, fine as-is.
	case parsed.Scheme == "" && strings.HasPrefix(d.DownloadURL, "/"):
		if base == nil {
			return fmt.Errorf("download_url %q is relative and no base URL is known", d.DownloadURL)
		}
		d.DownloadURL = base.ResolveReference(parsed).String()
	default:
		return fmt.Errorf("download_url %q is neither absolute http(s) nor root-relative", d.DownloadURL)
	}

	if d.Extension == "" {
		d.Extension = DefaultExtension
	}
	d.Extension = strings.TrimPrefix(d.Extension, ".")

	return nil
}
