// Package remote talks to the remote authority over HTTP/JSON.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/netx"
	"github.com/google/uuid"
)

const userAgent = "offsync-client/1.0"

// StatusError is a non-2xx answer from the remote authority.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s failed: %d", e.Op, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

type Client struct {
	http    *http.Client
	baseURL string
	log     logging.Logger
}

// New builds a client for baseURL with the given request timeout.
func New(baseURL string, timeout time.Duration, log logging.Logger) *Client {
	hc := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}
	return NewWithHTTPClient(baseURL, hc, log)
}

func NewWithHTTPClient(baseURL string, hc *http.Client, log logging.Logger) *Client {
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With("component", "remote"),
	}
}

// Push sends a batch and returns the change ids the remote acknowledged.
func (c *Client) Push(ctx context.Context, entries []*models.OutboxEntry) ([]string, error) {
	var out models.PushResponse
	if err := c.postJSON(ctx, "push", common.PushPath, models.PushRequest{Changes: entries}, &out); err != nil {
		return nil, err
	}
	return out.AckedChangeIDs, nil
}

// Pull fetches up to limit changes sequenced after since.
func (c *Client) Pull(ctx context.Context, since int64, limit int) (*models.PullResponse, error) {
	var out models.PullResponse
	if err := c.postJSON(ctx, "pull", common.PullPath, models.PullRequest{SinceSeq: since, Limit: limit}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload streams one payload as multipart/form-data and returns its URL.
func (c *Client) Upload(ctx context.Context, up models.UploadRequest) (string, error) {
	fields := [][2]string{
		{"id", up.ID},
		{"filename", up.Filename},
		{"mimeType", up.MimeType},
	}
	if up.FriendID != "" {
		fields = append(fields, [2]string{"friendId", up.FriendID})
	}
	body, contentType := netx.MultipartBody(fields, netx.FilePart{
		Field:       "file",
		Filename:    up.Filename,
		ContentType: up.MimeType,
		Body:        up.Body,
	})
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+common.UploadPath, body)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var out models.UploadResponse
	if err := c.do(req, "upload", &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload: empty url in response")
	}
	return out.URL, nil
}

// Health checks that the remote authority answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	return c.do(req, "health", nil)
}

func (c *Client) postJSON(ctx context.Context, op, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("error marshaling %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	ctx := req.Context()
	requestID := uuid.NewString()
	req.Header.Set(common.RequestIDHeader, requestID)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	c.log.Debug(ctx, "sending request", "op", op, "url", req.URL.String(), "request_id", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w: reading response: %w", op, common.ErrUnavailable, err)
	}

	c.log.Debug(ctx, "response received", "op", op, "status", resp.StatusCode, "request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("error parsing %s response: %w", op, err)
		}
	}
	return nil
}

func errorMessage(body []byte) string {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		return errResp.Error
	}
	return ""
}
