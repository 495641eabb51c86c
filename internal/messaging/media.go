// Package messaging implements the outbound side of each chat platform:
// sending text replies and fetching the media a user attached.
package messaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultMaxMediaBytes caps downloaded media.
const DefaultMaxMediaBytes = 16 << 20

const maxErrorBody = 4096

// fetch GETs url with the supplied auth and returns the body, refusing bodies
// larger than max.
func fetch(ctx context.Context, client *http.Client, url string, auth func(*http.Request), max int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if auth != nil {
		auth(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}
	if resp.ContentLength > max {
		return nil, fmt.Errorf("media too large: %d bytes (limit %d)", resp.ContentLength, max)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, max+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("media too large: exceeds %d bytes", max)
	}
	return data, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}
