// Package workerpool is the HTTP client for the remote generation worker pool.
package workerpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/providers/apierror"
)

const service = "workerpool"

// Options configures the worker pool client.
type Options struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client implements domain.WorkerPool and domain.StatusSource over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

type enqueueRequest struct {
	Format          string         `json:"format"`
	Prompt          string         `json:"prompt"`
	ReferenceImages []string       `json:"reference_images,omitempty"`
	Metadata        map[string]any `json:"metadata"`
}

type enqueueResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
	ErrorMessage string  `json:"error_message"`
	ImageID      string  `json:"image_id"`
	VideoID      string  `json:"video_id"`
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%s: base url is required", service)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%s: invalid base url: %w", service, err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     infra.OrDiscard(opts.Logger),
	}, nil
}

// Enqueue submits a generation request and returns the remote job id.
func (c *Client) Enqueue(ctx context.Context, req domain.SubmitRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload := enqueueRequest{
		Format:          req.Format.String(),
		Prompt:          strings.TrimSpace(req.Prompt),
		ReferenceImages: req.ReferenceImages,
		Metadata:        metadata,
	}
	var out enqueueResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", payload, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", fmt.Errorf("%s: %w: empty job id", service, domain.ErrServer)
	}
	c.logger.Debug().Str("job_id", out.JobID).Str("format", payload.Format).Msg("job enqueued")
	return out.JobID, nil
}

// Cancel asks the worker pool to stop jobID.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/cancel", nil, nil)
}

// Status queries the worker pool for the state of jobID.
func (c *Client) Status(ctx context.Context, jobID string) (domain.StatusReport, error) {
	var out statusResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &out); err != nil {
		return domain.StatusReport{}, err
	}
	return domain.StatusReport{
		Status:       domain.ParseJobStatus(out.Status),
		Progress:     int(out.Progress),
		ErrorMessage: out.ErrorMessage,
		ImageID:      out.ImageID,
		VideoID:      out.VideoID,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", service, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", service, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierror.Transport(service, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierror.Transport(service, err)
	}
	if resp.StatusCode >= 300 {
		c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("worker pool request failed")
		return apierror.FromResponse(service, resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w: decode response: %v", service, domain.ErrServer, err)
	}
	return nil
}

var (
	_ domain.WorkerPool   = (*Client)(nil)
	_ domain.StatusSource = (*Client)(nil)
)
