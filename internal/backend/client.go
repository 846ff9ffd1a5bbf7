// Package backend talks to the transcription and research backend over HTTP.
// Client implements transcript.MetadataResolver, transcript.StreamOpener,
// research.Extractor and research.Verifier.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"podcast-listener/internal/research"
	"podcast-listener/internal/transcript"
)

const (
	audioInfoPath        = "/transcription/audio-info/"
	transcribeChunksPath = "/transcription/transcribe-chunks/"
	extractPath          = "/workflows/extract_notable_context"
	researchPath         = "/workflows/research"

	// maxErrorBody caps how much of an error response is read into an APIError.
	maxErrorBody = 4096
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

// Client is a backend HTTP client. One-shot calls share a client with a
// timeout; chunk streams use a client without one since they stay open for
// as long as transcription runs.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	log          *slog.Logger
}

// NewClient returns a Client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		log:          log,
	}
}

// ChunkInfo implements transcript.MetadataResolver.
func (c *Client) ChunkInfo(ctx context.Context, fileID string) (transcript.ChunkInfo, error) {
	var info transcript.ChunkInfo
	if err := c.doJSON(ctx, http.MethodGet, audioInfoPath+url.PathEscape(fileID), nil, &info); err != nil {
		return transcript.ChunkInfo{}, fmt.Errorf("get audio info for %s: %w", fileID, err)
	}
	return info, nil
}

// OpenStream implements transcript.StreamOpener.
func (c *Client) OpenStream(ctx context.Context, r transcript.RangeRequest) (transcript.EventStream, error) {
	q := url.Values{}
	q.Set("start_chunk", strconv.Itoa(r.Start))
	q.Set("end_chunk", strconv.Itoa(r.End))
	u := c.baseURL + transcribeChunksPath + url.PathEscape(r.FileID) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}

	c.log.Debug("chunk stream opened", slog.String("file_id", r.FileID),
		slog.Int("start", r.Start), slog.Int("end", r.End))
	return NewEventStream(resp.Body), nil
}

type extractRequest struct {
	Transcript string `json:"transcript"`
}

type extractResponse struct {
	NotableContext []string `json:"notable_context"`
}

// ExtractNotableContext implements research.Extractor.
func (c *Client) ExtractNotableContext(ctx context.Context, text string) ([]string, error) {
	var out extractResponse
	if err := c.doJSON(ctx, http.MethodPost, extractPath, extractRequest{Transcript: text}, &out); err != nil {
		return nil, fmt.Errorf("extract notable context: %w", err)
	}
	return out.NotableContext, nil
}

type researchRequest struct {
	Statements []string `json:"statements_to_research"`
}

type researchResponse struct {
	SearchResults []research.Verdict `json:"search_results"`
}

// Verify implements research.Verifier.
func (c *Client) Verify(ctx context.Context, statements []string) ([]research.Verdict, error) {
	var out researchResponse
	if err := c.doJSON(ctx, http.MethodPost, researchPath, researchRequest{Statements: statements}, &out); err != nil {
		return nil, fmt.Errorf("research statements: %w", err)
	}
	if len(out.SearchResults) < len(statements) {
		return nil, fmt.Errorf("research returned %d verdicts for %d statements", len(out.SearchResults), len(statements))
	}
	return out.SearchResults, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug("backend call", slog.String("method", method), slog.String("path", path),
		slog.Int("status", resp.StatusCode), slog.Int("duration_ms", int(time.Since(start).Milliseconds())))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// readAPIError builds an APIError, using FastAPI's {"detail": ...} when present.
func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			apiErr.Detail = s
		} else if b, err := json.Marshal(payload.Detail); err == nil {
			apiErr.Detail = string(b)
		}
	} else {
		apiErr.Detail = strings.TrimSpace(string(data))
	}
	return apiErr
}
