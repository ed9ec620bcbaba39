// Package llmclient executes single upstream provider calls:
// - one attempt per call, no retries
// - non-2xx statuses become upstream errors carrying status and body
// - connect and read failures become transport errors
// - observability hooks around every attempt
package llmclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatgateway/internal/core"
	"chatgateway/internal/pkg/httpclient"
)

// maxErrorBodySize caps how much of an error response is read.
const maxErrorBodySize int64 = 1 << 20

// maxResponseBodySize caps buffered success bodies.
var maxResponseBodySize int64 = 32 << 20

// RequestInfo describes one upstream attempt for hooks.
type RequestInfo struct {
	Provider string
	Model    string
	Stream   bool
}

// ResponseInfo describes the outcome of one upstream attempt.
// StatusCode is zero when no response was received.
type ResponseInfo struct {
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Hooks observe upstream attempts. Nil functions are skipped.
type Hooks struct {
	OnRequestStart func(ctx context.Context, info RequestInfo)
	OnRequestEnd   func(ctx context.Context, info RequestInfo, resp ResponseInfo)
}

// Request represents an HTTP request to be made
type Request struct {
	Info    RequestInfo
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response represents a buffered HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// Client sends provider requests over a shared connection pool.
// It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	hooks      Hooks
}

// New creates a client on the default pooled transport.
func New(hooks Hooks) *Client {
	return NewWithHTTPClient(httpclient.NewDefaultHTTPClient(), hooks)
}

// NewWithHTTPClient creates a client with a custom HTTP client
func NewWithHTTPClient(httpClient *http.Client, hooks Hooks) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewDefaultHTTPClient()
	}
	return &Client{httpClient: httpClient, hooks: hooks}
}

// Do executes a request and reads the full body. A non-2xx status yields
// an upstream error with the body attached.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	start := c.begin(ctx, req)

	resp, err := c.send(ctx, req)
	if err != nil {
		c.end(ctx, req, start, 0, err)
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if !isSuccess(resp.StatusCode) {
		gwErr := core.NewUpstreamError(req.Info.Provider, resp.StatusCode, readErrorBody(resp.Body))
		c.end(ctx, req, start, resp.StatusCode, gwErr)
		return nil, gwErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize+1))
	if err != nil {
		gwErr := core.NewTransportError(req.Info.Provider, "failed to read response", err)
		c.end(ctx, req, start, resp.StatusCode, gwErr)
		return nil, gwErr
	}
	if int64(len(body)) > maxResponseBodySize {
		gwErr := core.NewTransportError(req.Info.Provider,
			fmt.Sprintf("response body exceeds %d bytes", maxResponseBodySize), nil)
		c.end(ctx, req, start, resp.StatusCode, gwErr)
		return nil, gwErr
	}

	c.end(ctx, req, start, resp.StatusCode, nil)
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// DoStream executes a streaming request and returns the open body. The
// status is checked before any body byte is read; the caller must close
// the returned body.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	start := c.begin(ctx, req)

	resp, err := c.send(ctx, req)
	if err != nil {
		c.end(ctx, req, start, 0, err)
		return nil, err
	}

	if !isSuccess(resp.StatusCode) {
		body := readErrorBody(resp.Body)
		_ = resp.Body.Close()
		gwErr := core.NewUpstreamError(req.Info.Provider, resp.StatusCode, body)
		c.end(ctx, req, start, resp.StatusCode, gwErr)
		return nil, gwErr
	}

	c.end(ctx, req, start, resp.StatusCode, nil)
	return resp.Body, nil
}

func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.Info.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if requestID := core.GetRequestID(ctx); requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, req.Info.Provider, err)
	}
	return resp, nil
}

func (c *Client) begin(ctx context.Context, req Request) time.Time {
	if c.hooks.OnRequestStart != nil {
		c.hooks.OnRequestStart(ctx, req.Info)
	}
	return time.Now()
}

func (c *Client) end(ctx context.Context, req Request, start time.Time, status int, err error) {
	if c.hooks.OnRequestEnd != nil {
		c.hooks.OnRequestEnd(ctx, req.Info, ResponseInfo{
			StatusCode: status,
			Duration:   time.Since(start),
			Err:        err,
		})
	}
}

func transportError(ctx context.Context, provider string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return core.NewTransportError(provider, "upstream request timed out", ctx.Err())
	case errors.Is(ctx.Err(), context.Canceled):
		return core.NewTransportError(provider, "request cancelled", ctx.Err())
	default:
		return core.NewTransportError(provider, "failed to send request", err)
	}
}

func readErrorBody(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil && len(body) == 0 {
		return []byte("failed to read error response")
	}
	return body
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
