// Package storageapi signs and removes objects through a remote object
// storage HTTP API.
package storageapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/providers/apierror"
)

const service = "storageapi"

type Options struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client implements domain.ObjectStore.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%s: base url is required", service)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
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

// SignURL returns a read URL for bucket/path valid for ttl. Relative URLs
// returned by the API are resolved against the base URL.
func (c *Client) SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	if bucket == "" || path == "" {
		return "", fmt.Errorf("%s: %w: bucket and path are required", service, domain.ErrValidation)
	}
	seconds := int(math.Ceil(ttl.Seconds()))
	if seconds <= 0 {
		seconds = 1
	}
	body, err := json.Marshal(signRequest{ExpiresIn: seconds})
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", service, err)
	}
	raw, err := c.do(ctx, http.MethodPost, "/object/sign/"+objectPath(bucket, path), body)
	if err != nil {
		return "", err
	}
	var out signResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.SignedURL == "" {
		return "", fmt.Errorf("%s: %w: malformed sign response", service, domain.ErrServer)
	}
	signed, err := url.Parse(out.SignedURL)
	if err != nil {
		return "", fmt.Errorf("%s: %w: malformed signed url", service, domain.ErrServer)
	}
	if !signed.IsAbs() {
		base, err := url.Parse(c.baseURL + "/")
		if err != nil {
			return "", fmt.Errorf("%s: invalid base url: %w", service, err)
		}
		signed = base.ResolveReference(&url.URL{Path: strings.TrimPrefix(signed.Path, "/"), RawQuery: signed.RawQuery})
	}
	return signed.String(), nil
}

// Remove deletes bucket/path. A missing object is not an error.
func (c *Client) Remove(ctx context.Context, bucket, path string) error {
	_, err := c.do(ctx, http.MethodDelete, "/object/"+objectPath(bucket, path), nil)
	if err != nil {
		var status *apierror.StatusError
		if errors.As(err, &status) && status.Code == http.StatusNotFound {
			c.logger.Debug().Str("bucket", bucket).Str("path", path).Msg("object already removed")
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", service, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierror.Transport(service, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.Transport(service, err)
	}
	if resp.StatusCode >= 300 {
		return nil, apierror.FromResponse(service, resp.StatusCode, raw)
	}
	return raw, nil
}

func objectPath(bucket, path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

var _ domain.ObjectStore = (*Client)(nil)
