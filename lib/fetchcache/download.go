// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package fetchcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/romforge/patchbay/lib/netutil"
)

// download performs the network fetch with bounded retry. Transport
// errors and transient HTTP statuses are retried with exponential
// backoff; any other non-2xx status fails immediately as *HTTPError.
func (c *Cache) download(ctx context.Context, rawURL string) ([]byte, error) {
	backoff := c.backoffBase
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			c.logger.Info("retrying download",
				"url", rawURL, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(backoff):
			}
			backoff *= 2
		}

		data, err := c.downloadOnce(ctx, rawURL)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !transient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", c.attempts, lastErr)
}

// downloadOnce issues a single GET and reads the full body.
func (c *Cache) downloadOnce(ctx context.Context, rawURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &HTTPError{
			Status: response.StatusCode,
			URL:    rawURL,
			Body:   netutil.ErrorBody(response.Body),
		}
	}

	var buffer bytes.Buffer
	if _, err := netutil.CopyBounded(&buffer, response.Body); err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", rawURL, err)
	}
	return buffer.Bytes(), nil
}

// transient reports whether an error is worth retrying: transport
// failures and the HTTP statuses that signal a temporary condition.
func transient(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		// Transport-level failure (connection refused, reset, DNS).
		return true
	}
	switch httpErr.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return httpErr.Status >= 500
}
