// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package comm provides helpers for communicating with HTTP backends.
package comm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/internal/slog"
)

// Version is reported to the authority in the x-client-Ver header.
const Version = "0.4.0"

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// HTTPClient represents an HTTP client.
// It's usually an *http.Client from the standard library.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)

	// CloseIdleConnections closes any idle connections in a "keep-alive" state.
	CloseIdleConnections()
}

// Reply is an authority response. Non-200 statuses are not errors at this layer; callers
// decode Body to find the OAuth2 error.
type Reply struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client provides a wrapper to our *http.Client that handles compression and serialization needs.
type Client struct {
	client  HTTPClient
	metrics *Metrics
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(c *Client)

// WithMetrics records every round trip in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New returns a new Client object.
func New(httpClient HTTPClient, options ...Option) *Client {
	if httpClient == nil {
		panic("http.Client == nil")
	}
	c := &Client{client: httpClient}
	for _, o := range options {
		o(c)
	}
	c.logger = slog.New(c.logger)
	return c
}

// URLFormCall POSTs qv as "application/x-www-form-urlencoded" to endpoint and returns the reply.
// Only transport failures (including a canceled ctx) are returned as errors; they are of kind
// TransportError and wrap an errors.CallErr.
func (c *Client) URLFormCall(ctx context.Context, endpoint string, headers http.Header, qv url.Values) (Reply, error) {
	if len(qv) == 0 {
		return Reply{}, errors.New(errors.TransportError, "URLFormCall() requires qv to have non-zero length")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return Reply{}, errors.Wrap(errors.TransportError, err, "could not parse path URL(%s)", endpoint)
	}

	headers = addStdHeaders(headers)
	headers.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	headers.Set("Accept", "application/json")

	enc := qv.Encode()
	req := &http.Request{
		Method:        http.MethodPost,
		URL:           u,
		Header:        headers,
		ContentLength: int64(len(enc)),
		Body:          io.NopCloser(strings.NewReader(enc)),
		GetBody: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(enc)), nil
		},
	}
	req = req.WithContext(ctx)

	start := time.Now()
	reply, err := c.do(req)
	c.metrics.observe(u, reply.StatusCode, err, time.Since(start))
	slog.Debug(ctx, c.logger, "authority round trip",
		slog.Field("endpoint", u.Host+u.Path),
		slog.Field("status", reply.StatusCode),
		slog.Field("client_request_id", headers.Get("client-request-id")),
		slog.Field("elapsed", time.Since(start)),
	)
	return reply, err
}

func (c *Client) do(req *http.Request) (Reply, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return Reply{}, errors.Wrap(errors.TransportError, errors.CallErr{Req: req, Err: err}, "POST %s", req.URL.Host+req.URL.Path)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, maxBody)); err != nil {
		return Reply{}, errors.Wrap(errors.TransportError, errors.CallErr{Req: req, Resp: resp, Err: err}, "reading reply from %s", req.URL.Host+req.URL.Path)
	}
	return Reply{StatusCode: resp.StatusCode, Header: resp.Header, Body: buf.Bytes()}, nil
}

// CorrelationHeader returns the headers carrying id as the client-request-id. An empty id
// leaves the choice of id to URLFormCall.
func CorrelationHeader(id string) http.Header {
	h := http.Header{}
	if id != "" {
		h.Set("client-request-id", id)
	}
	return h
}

// testID is used in tests to replace the client-request-id, which is otherwise random.
var testID string

func addStdHeaders(in http.Header) http.Header {
	headers := make(http.Header, len(in)+6)
	for k, v := range in {
		for _, vv := range v {
			headers.Add(k, vv)
		}
	}
	headers.Set("x-client-SKU", "MSAL.Go")
	headers.Set("x-client-OS", runtime.GOOS)
	headers.Set("x-client-Ver", Version)
	if headers.Get("client-request-id") == "" {
		id := testID
		if id == "" {
			id = uuid.New().String()
		}
		headers.Set("client-request-id", id)
	}
	headers.Set("Return-Client-Request-Id", "false")
	return headers
}
