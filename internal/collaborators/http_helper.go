package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// doJSON issues a request against client, JSON-encoding body (if non-nil)
// and decoding the response into a generic JSON string for the guest. It
// centralizes the request/response plumbing every collaborator repeats.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body interface{}) (string, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("%w: encode request body: %v", ErrInvalidParams, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return "", fmt.Errorf("collaborators: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("collaborators: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("collaborators: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("collaborators: upstream returned %d: %s", resp.StatusCode, string(respBody))
	}
	return string(respBody), nil
}
