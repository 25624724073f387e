package calculator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPEngine talks to a calculator engine over its JSON HTTP API.
type HTTPEngine struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewHTTPEngine creates an engine client with a bounded request timeout.
// The timeout also bounds batch calculation calls; on expiry the caller
// falls through to the per-item retry path.
func NewHTTPEngine(name, baseURL string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEngine{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Info queries the engine's advertised (name, version), independent of any
// single calculation.
func (e *HTTPEngine) Info(ctx context.Context) (EngineInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/info", nil)
	if err != nil {
		return EngineInfo{}, fmt.Errorf("build info request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return EngineInfo{}, fmt.Errorf("engine %s info: %w", e.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return EngineInfo{}, fmt.Errorf("engine %s info: status %d", e.name, resp.StatusCode)
	}

	var info EngineInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return EngineInfo{}, fmt.Errorf("engine %s info decode: %w", e.name, err)
	}
	if info.Name == "" {
		info.Name = e.name
	}
	return info, nil
}

// CalculateBatch submits the whole batch in one request. One result per
// input, in input order; a count mismatch from the engine is treated as a
// wholesale batch failure.
func (e *HTTPEngine) CalculateBatch(ctx context.Context, requests []Request) ([]Result, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(map[string]any{"scores": requests})
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/calculate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine %s batch: %w", e.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("engine %s batch: status %d: %s", e.name, resp.StatusCode, body)
	}

	var out struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("engine %s batch decode: %w", e.name, err)
	}
	if len(out.Results) != len(requests) {
		return nil, fmt.Errorf("engine %s batch: got %d results for %d requests", e.name, len(out.Results), len(requests))
	}

	return out.Results, nil
}
