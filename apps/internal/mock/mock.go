// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package mock

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

type response struct {
	body     []byte
	callback func(*http.Request)
	code     int
	headers  http.Header
	err      error
}

// ResponseOption configures one queued response.
type ResponseOption interface {
	apply(*response)
}

type respOpt func(*response)

func (fn respOpt) apply(r *response) {
	fn(r)
}

// WithBody sets the HTTP response's body to the specified value.
func WithBody(b []byte) ResponseOption {
	return respOpt(func(r *response) {
		r.body = b
	})
}

// WithCallback sets a callback to invoke before returning the response.
func WithCallback(callback func(*http.Request)) ResponseOption {
	return respOpt(func(r *response) {
		r.callback = callback
	})
}

// WithHTTPHeader sets the HTTP headers of the response to the specified value.
func WithHTTPHeader(header http.Header) ResponseOption {
	return respOpt(func(r *response) {
		r.headers = header
	})
}

// WithHTTPStatusCode sets the HTTP statusCode of response to the specified value.
func WithHTTPStatusCode(statusCode int) ResponseOption {
	return respOpt(func(r *response) {
		r.code = statusCode
	})
}

// WithTransportError makes Do fail with err instead of returning a response.
func WithTransportError(err error) ResponseOption {
	return respOpt(func(r *response) {
		r.err = err
	})
}

// Client is a mock HTTP client that returns a sequence of responses. Use AppendResponse to specify the sequence.
type Client struct {
	mu       *sync.Mutex
	resp     []response
	requests []*http.Request
}

func NewClient() *Client {
	return &Client{mu: &sync.Mutex{}}
}

func (c *Client) AppendResponse(opts ...ResponseOption) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := response{code: http.StatusOK, headers: http.Header{}}
	for _, o := range opts {
		o.apply(&r)
	}
	c.resp = append(c.resp, r)
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.resp) == 0 {
		panic(fmt.Sprintf(`no response for "%s"`, req.URL.String()))
	}
	c.requests = append(c.requests, req)
	resp := c.resp[0]
	c.resp = c.resp[1:]
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

// CloseIdleConnections implements the comm.HTTPClient interface
func (*Client) CloseIdleConnections() {}

// Requests returns the number of requests received so far.
func (c *Client) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Pending returns the number of queued responses that have not been consumed.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resp)
}

// FormValues parses the form encoded body of r. It is intended for use in WithCallback.
func FormValues(r *http.Request) map[string]string {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		panic(err)
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	qv, err := url.ParseQuery(string(b))
	if err != nil {
		panic(err)
	}
	out := make(map[string]string, len(qv))
	for k := range qv {
		out[k] = qv.Get(k)
	}
	return out
}

func GetAccessTokenBody(accessToken, idToken, refreshToken, clientInfo string, expiresIn int) []byte {
	body := map[string]any{
		"access_token":   accessToken,
		"token_type":     "Bearer",
		"expires_in":     expiresIn,
		"ext_expires_in": expiresIn,
	}
	if clientInfo != "" {
		body["client_info"] = clientInfo
	}
	if idToken != "" {
		body["id_token"] = idToken
	}
	if refreshToken != "" {
		body["refresh_token"] = refreshToken
	}
	return mustJSON(body)
}

// GetIDToken returns an unsigned JWT carrying the usual Entra ID id_token claims.
func GetIDToken(tenant, issuer string) string {
	now := time.Now().Unix()
	return GetJWT(map[string]any{
		"aud":                "client",
		"exp":                now + 3600,
		"iat":                now,
		"iss":                issuer,
		"tid":                tenant,
		"oid":                "7c3d5a35-51c4-4f2e-a5b1-4b1d30e1e4f1",
		"name":               "Test User",
		"preferred_username": "user@contoso.onmicrosoft.com",
	})
}

// GetJWT returns an unsigned JWT with the given claims.
func GetJWT(claims map[string]any) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString(mustJSON(claims))
	return header + "." + payload + "."
}

// GetClientInfo returns an encoded client_info value.
func GetClientInfo(uid, utid string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"uid":"%s","utid":"%s"}`, uid, utid)))
}

// GetDeviceCodeBody returns a device authorization reply. An interval of 0 omits the field.
func GetDeviceCodeBody(deviceCode, userCode string, expiresIn, interval int) []byte {
	body := map[string]any{
		"device_code":      deviceCode,
		"user_code":        userCode,
		"verification_uri": "https://microsoft.com/devicelogin",
		"expires_in":       expiresIn,
		"message":          fmt.Sprintf("To sign in, use a web browser to open the page https://microsoft.com/devicelogin and enter the code %s to authenticate.", userCode),
	}
	if interval > 0 {
		body["interval"] = interval
	}
	return mustJSON(body)
}

// GetErrorBody returns an OAuth2 error reply.
func GetErrorBody(code, description string, errorCodes ...int) []byte {
	if errorCodes == nil {
		errorCodes = []int{}
	}
	return mustJSON(map[string]any{
		"error":             code,
		"error_description": description,
		"error_codes":       errorCodes,
		"correlation_id":    "00000000-0000-0000-0000-000000000000",
	})
}

// GetNonceBody returns a srv_challenge reply.
func GetNonceBody(nonce string) []byte {
	return mustJSON(map[string]any{"Nonce": nonce})
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
