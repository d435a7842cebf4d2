package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/events"
)

// Client talks to the API daemon.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// No overall timeout: event streams stay open. Calls use ctx.
		httpClient: &http.Client{},
	}
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

type JobReply struct {
	JobID       string           `json:"job_id"`
	Status      domain.JobStatus `json:"status"`
	RemoteError string           `json:"remote_error,omitempty"`
}

type URLReply struct {
	AssetID   string           `json:"asset_id"`
	Kind      domain.AssetKind `json:"type"`
	Index     *int             `json:"index,omitempty"`
	Bucket    string           `json:"bucket,omitempty"`
	URL       string           `json:"url,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func (c *Client) Submit(ctx context.Context, req domain.SubmitRequest) (JobReply, error) {
	var out JobReply
	err := c.do(ctx, http.MethodPost, "/v1/jobs/", req, &out)
	return out, err
}

func (c *Client) Active(ctx context.Context) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/active", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Cancel(ctx context.Context, jobID string) (JobReply, error) {
	var out JobReply
	err := c.do(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/cancel", nil, &out)
	return out, err
}

func (c *Client) AssetURL(ctx context.Context, assetID string, kind domain.AssetKind, index int) (URLReply, error) {
	q := url.Values{"type": {string(kind)}}
	if index >= 0 {
		q.Set("index", strconv.Itoa(index))
	}
	var out URLReply
	err := c.do(ctx, http.MethodGet, "/v1/assets/"+url.PathEscape(assetID)+"/url?"+q.Encode(), nil, &out)
	return out, err
}

// Events opens the notification stream. The caller closes the stream.
func (c *Client) Events(ctx context.Context) (*EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return &EventStream{body: resp.Body, reader: newReader(resp.Body)}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// EventStream decodes server-sent lifecycle events.
type EventStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// Next blocks until the next event. It returns io.EOF when the stream ends.
func (s *EventStream) Next() (events.Event, error) {
	var data strings.Builder
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return events.Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				return events.Event{}, fmt.Errorf("decode event: %w", err)
			}
			return ev, nil
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

func newReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 64<<10)
}

func (s *EventStream) Close() error {
	return s.body.Close()
}
