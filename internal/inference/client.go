// Package inference talks to the remote text-to-image API: it submits jobs
// and reads their status.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"imagegen/internal/httputil"
)

// Job status values reported by the status endpoint.
const (
	StatusPending  = "PENDING"
	StatusRunning  = "RUNNING"
	StatusComplete = "COMPLETE"
)

// OutputKey is the output artifact that holds the generated image.
const OutputKey = "./output.png"

const (
	maxErrorBodyBytes = 1024
	modelPlaceholder  = "{model}"
)

// Options configures a Client.
type Options struct {
	SubmitURL      string
	StatusURL      string
	AuthScheme     string
	AuthToken      string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	StatusRetry    httputil.RetryConfig
}

// Client performs HTTP calls against the inference API.
type Client struct {
	submitURL   string
	statusURL   string
	authHeader  string
	httpClient  *http.Client
	statusRetry httputil.RetryConfig
}

// Request is one generation request built from the form.
type Request struct {
	Prompt         string
	NegativePrompt string
	ModelID        string
	Height         string
	Width          string
}

type submitBody struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	ModelID        string `json:"model_id,omitempty"`
	Height         int    `json:"height,omitempty"`
	Width          int    `json:"width,omitempty"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// StatusResponse is the decoded body of a status query.
type StatusResponse struct {
	TaskID  string            `json:"task_id"`
	Status  string            `json:"status"`
	Outputs map[string]Output `json:"outputs"`
}

type Output struct {
	URL string `json:"url"`
}

// OutputURL returns the generated image url, if present.
func (s StatusResponse) OutputURL() string {
	return strings.TrimSpace(s.Outputs[OutputKey].URL)
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	scheme := strings.TrimSpace(opts.AuthScheme)
	if scheme == "" {
		scheme = "Basic"
	}
	var authHeader string
	if token := strings.TrimSpace(opts.AuthToken); token != "" {
		authHeader = scheme + " " + token
	}
	retry := opts.StatusRetry
	if retry.MaxAttempts == 0 {
		retry = httputil.DefaultRetryConfig()
	}
	return &Client{
		submitURL:   strings.TrimSpace(opts.SubmitURL),
		statusURL:   strings.TrimRight(strings.TrimSpace(opts.StatusURL), "/"),
		authHeader:  authHeader,
		httpClient:  httpClient,
		statusRetry: retry,
	}
}

// BuildBody validates the request and produces the JSON payload. Empty
// optional fields are omitted; dimensions must be positive integers.
func BuildBody(req Request, modelInURL bool) ([]byte, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	body := submitBody{
		Prompt:         req.Prompt,
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
	}
	if !modelInURL {
		body.ModelID = strings.TrimSpace(req.ModelID)
	}
	var err error
	if body.Height, err = parseDimension("height", req.Height); err != nil {
		return nil, err
	}
	if body.Width, err = parseDimension("width", req.Width); err != nil {
		return nil, err
	}
	return json.Marshal(body)
}

func parseDimension(name, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return n, nil
}

// SubmitURL returns the endpoint for modelID, substituting it into a
// model-routed URL.
func (c *Client) SubmitURL(modelID string) (string, error) {
	if c.submitURL == "" {
		return "", errors.New("submit url is not configured")
	}
	if !strings.Contains(c.submitURL, modelPlaceholder) {
		return c.submitURL, nil
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return "", errors.New("model is required for a model-routed submit url")
	}
	return strings.ReplaceAll(c.submitURL, modelPlaceholder, url.PathEscape(modelID)), nil
}

// Submit sends a generation request and returns the remote job id. It does
// not retry: a repeated POST could start a second remote job.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	modelInURL := strings.Contains(c.submitURL, modelPlaceholder)
	body, err := BuildBody(req, modelInURL)
	if err != nil {
		if errors.Is(err, ErrEmptyPrompt) {
			return "", err
		}
		return "", &SubmissionError{Err: err}
	}
	endpoint, err := c.SubmitURL(req.ModelID)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}

	resp, err := httputil.Do(ctx, c.httpClient, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		c.authorize(httpReq)
		return httpReq, nil
	}, httputil.Once())
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Err: errors.New(errorBody(resp))}
	}

	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	taskID := strings.TrimSpace(decoded.TaskID)
	if taskID == "" {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Err: errors.New("response has no task_id")}
	}
	slog.Debug("inference: job submitted", "task_id", taskID, "model", req.ModelID)
	return taskID, nil
}

// StatusEndpoint returns <status-base>/{jobID}/status/.
func (c *Client) StatusEndpoint(jobID string) string {
	return c.statusURL + "/" + url.PathEscape(jobID) + "/status/"
}

// Status performs one status query, retrying transient failures within the
// configured bound. Every failure is a *PollTransportError.
func (c *Client) Status(ctx context.Context, jobID string) (StatusResponse, error) {
	endpoint := c.StatusEndpoint(jobID)
	resp, err := httputil.Do(ctx, c.httpClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		return req, nil
	}, c.statusRetry)
	if err != nil {
		return StatusResponse{}, &PollTransportError{JobID: jobID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StatusResponse{}, &PollTransportError{
			JobID: jobID,
			Err:   fmt.Errorf("status %d: %s", resp.StatusCode, errorBody(resp)),
		}
	}

	var decoded StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return StatusResponse{}, &PollTransportError{JobID: jobID, Err: fmt.Errorf("decode response: %w", err)}
	}
	decoded.Status = strings.ToUpper(strings.TrimSpace(decoded.Status))
	if decoded.Status == "" {
		return StatusResponse{}, &PollTransportError{JobID: jobID, Err: errors.New("response has no status")}
	}
	if decoded.Status == StatusComplete && decoded.OutputURL() == "" {
		return StatusResponse{}, &PollTransportError{
			JobID: jobID,
			Err:   fmt.Errorf("complete response has no %s url", OutputKey),
		}
	}
	return decoded, nil
}

// Download fetches an output asset. The credential is not forwarded since
// output urls usually point at a different host.
func (c *Client) Download(ctx context.Context, assetURL string, w io.Writer) (int64, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(assetURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return 0, "", fmt.Errorf("invalid output url: %q", assetURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return 0, "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("download output: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("download output: status %d", resp.StatusCode)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, "", fmt.Errorf("read output: %w", err)
	}
	return n, resp.Header.Get("Content-Type"), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}
}

func errorBody(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return msg
}
