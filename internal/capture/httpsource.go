package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const httpSourceTimeout = 30 * time.Second

// HTTPSource queries a local screen-capture/OCR service over HTTP. The
// service accepts a JSON query and answers with a sample envelope.
type HTTPSource struct {
	url  string
	http *http.Client
}

var _ Source = (*HTTPSource)(nil)

// NewHTTPSource creates a source talking to the given search endpoint.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url:  url,
		http: &http.Client{Timeout: httpSourceTimeout},
	}
}

type sampleEnvelope struct {
	Samples []Sample `json:"samples"`
}

// Query posts q and decodes the response. All failures come back as
// *CaptureError.
func (s *HTTPSource) Query(ctx context.Context, q Query) ([]Sample, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, &CaptureError{Err: fmt.Errorf("encode query: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, &CaptureError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &CaptureError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &CaptureError{Err: fmt.Errorf("HTTP %d from capture service", resp.StatusCode)}
	}

	var envelope sampleEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&envelope); err != nil {
		return nil, &CaptureError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return envelope.Samples, nil
}
