// Package httpapi implements the scoring.Client contract against the speech
// service's HTTP API: a multipart POST of {clip, expected words, segment id}
// answered with a JSON comparison result.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/mtoso/shadowline/pkg/scoring"
)

const scorePath = "/v1/score"

// Compile-time assertion that Client implements scoring.Client.
var _ scoring.Client = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Primarily used in
// tests to point at a local mock server with custom transport settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client calls the speech scoring service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the scoring service at baseURL
// (e.g., "http://localhost:8090"). baseURL must be non-empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("httpapi: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// wireWord is the expected-word shape submitted to the service.
type wireWord struct {
	ID         string `json:"id"`
	OrderIndex int    `json:"order_index"`
	Text       string `json:"text"`
	Normalized string `json:"normalized"`
	Slug       string `json:"slug"`
}

// Score submits req as multipart/form-data and decodes the comparison
// response. Any transport failure or non-2xx status is returned as an
// error; the caller maps all of them to the same upload-failed condition.
func (c *Client) Score(ctx context.Context, req scoring.Request) (scoring.Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		return scoring.Result{}, fmt.Errorf("httpapi: create form file: %w", err)
	}
	if _, err := fw.Write(req.Clip); err != nil {
		return scoring.Result{}, fmt.Errorf("httpapi: write clip: %w", err)
	}

	words := make([]wireWord, len(req.Words))
	for i, w := range req.Words {
		words[i] = wireWord{
			ID:         w.ID,
			OrderIndex: w.OrderIndex,
			Text:       w.Text,
			Normalized: w.Normalized,
			Slug:       w.Slug,
		}
	}
	wordsJSON, err := json.Marshal(words)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("httpapi: marshal words: %w", err)
	}
	if err := mw.WriteField("words", string(wordsJSON)); err != nil {
		return scoring.Result{}, fmt.Errorf("httpapi: write words field: %w", err)
	}
	if err := mw.WriteField("segment_id", req.SegmentID); err != nil {
		return scoring.Result{}, fmt.Errorf("httpapi: write segment_id field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return scoring.Result{}, fmt.Errorf("httpapi: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+scorePath, &body)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("httpapi: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("httpapi: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return scoring.Result{}, fmt.Errorf("httpapi: service returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("httpapi: read response body: %w", err)
	}

	var result scoring.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return scoring.Result{}, fmt.Errorf("httpapi: parse JSON response: %w", err)
	}
	return result, nil
}
