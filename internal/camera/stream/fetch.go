package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxFrameBytes bounds a single fetched frame
const maxFrameBytes = 16 << 20

// StatusError is returned for non-200 camera responses
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

// Frame is one image fetched from a network camera
type Frame struct {
	Data        []byte
	ContentType string
}

// IsImage reports whether the camera labelled the payload as an image
func (f Frame) IsImage() bool {
	return strings.Contains(strings.ToLower(f.ContentType), "image")
}

// Fetch issues a GET against a camera stream URL and returns the body of a
// 200 response
func Fetch(ctx context.Context, client *http.Client, streamURL string) (Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ShellSorter/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Frame{}, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return Frame{}, fmt.Errorf("failed to read frame: %w", err)
	}

	return Frame{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
