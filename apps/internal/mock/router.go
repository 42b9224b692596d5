// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package mock

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Router is a mock HTTP client that keeps a queue of responses per URL path. Concurrent callers
// whose requests interleave unpredictably still receive the response meant for their endpoint.
type Router struct {
	mu    sync.Mutex
	resp  map[string][]response
	calls map[string]int
}

// AppendResponse queues a response for requests to path.
func (c *Router) AppendResponse(path string, opts ...ResponseOption) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := response{code: http.StatusOK, headers: http.Header{}}
	for _, o := range opts {
		o.apply(&r)
	}
	if c.resp == nil {
		c.resp = map[string][]response{}
	}
	c.resp[path] = append(c.resp[path], r)
}

func (c *Router) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := req.URL.Path
	queue := c.resp[path]
	if len(queue) == 0 {
		panic(fmt.Sprintf(`no response for "%s"`, req.URL.String()))
	}
	resp := queue[0]
	c.resp[path] = queue[1:]
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[path]++
	if resp.callback != nil {
		resp.callback(req)
	}
	if resp.err != nil {
		return nil, resp.err
	}
	res := http.Response{Header: resp.headers, StatusCode: resp.code, Request: req}
	res.Body = io.NopCloser(bytes.NewReader(resp.body))
	return &res, nil
}

// Calls returns the number of requests received for path.
func (c *Router) Calls(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[path]
}

// CloseIdleConnections implements the comm.HTTPClient interface
func (*Router) CloseIdleConnections() {}
