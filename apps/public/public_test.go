// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package public

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/hsm"
	"github.com/himmelblau-idm/msal-go/apps/internal/hostinfo"
	"github.com/himmelblau-idm/msal-go/apps/internal/mock"
	"github.com/kylelemons/godebug/pretty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	testClientID = "11111111-2222-3333-4444-555555555555"
	testTenant   = "contoso.onmicrosoft.com"
	testUID      = "7c3d5a35-51c4-4f2e-a5b1-4b1d30e1e4f1"
	testUTID     = "72f988bf-86f1-41af-91ab-2d7cd011db47"

	tokenPath      = "/" + testTenant + "/oauth2/v2.0/token"
	deviceCodePath = "/" + testTenant + "/oauth2/v2.0/devicecode"
	prtPath        = "/" + testTenant + "/oauth2/token"
	noncePath      = "/common/oauth2/token"
)

var tokenScope = []string{"the_scope"}

// withFakeTime replaces the clock and the device code sleep with a clock that only advances
// while sleeping.
func withFakeTime(start time.Time) Option {
	var mu sync.Mutex
	now := start
	return func(o *Options) {
		o.now = func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
		o.sleep = func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
			return ctx.Err()
		}
	}
}

func newTestClient(t *testing.T, options ...Option) (Client, *mock.Client) {
	t.Helper()
	mc := mock.NewClient()
	client, err := New(testClientID, testTenant, "login.microsoftonline.com", append([]Option{WithHTTPClient(mc)}, options...)...)
	if err != nil {
		t.Fatal(err)
	}
	return client, mc
}

func tokenBody(accessToken, refreshToken string, expiresIn int) []byte {
	idToken := mock.GetIDToken(testUTID, "https://login.microsoftonline.com/"+testUTID+"/v2.0")
	return mock.GetAccessTokenBody(accessToken, idToken, refreshToken, mock.GetClientInfo(testUID, testUTID), expiresIn)
}

// expectForm returns a callback that checks the request path and form values.
func expectForm(t *testing.T, path string, want map[string]string) func(*http.Request) {
	return func(r *http.Request) {
		if r.URL.Path != path {
			t.Errorf("request sent to %s, want %s", r.URL.Path, path)
		}
		if ids := r.Header.Values("Client-Request-Id"); len(ids) != 1 {
			t.Errorf("%s: got client-request-id %v, want exactly one", path, ids)
		}
		got := mock.FormValues(r)
		for k, v := range want {
			if got[k] != v {
				t.Errorf("%s: got form %s=%q, want %q", path, k, got[k], v)
			}
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		desc      string
		clientID  string
		tenant    string
		host      string
		options   []Option
		wantToken string
		err       bool
	}{
		{desc: "Success: bare host", clientID: "c", tenant: "t", host: "login.microsoftonline.com", wantToken: "https://login.microsoftonline.com/t/oauth2/v2.0/token"},
		{desc: "Success: https URL", clientID: "c", tenant: "t", host: "https://Login.MicrosoftOnline.US/", wantToken: "https://login.microsoftonline.us/t/oauth2/v2.0/token"},
		{desc: "Success: default host", clientID: "c", tenant: "t", wantToken: "https://login.microsoftonline.com/t/oauth2/v2.0/token"},
		{desc: "Error: empty client id", clientID: " ", tenant: "t", err: true},
		{desc: "Error: empty tenant", clientID: "c", err: true},
		{desc: "Error: http", clientID: "c", tenant: "t", host: "http://login.microsoftonline.com", err: true},
		{desc: "Error: path", clientID: "c", tenant: "t", host: "https://login.microsoftonline.com/t", err: true},
		{desc: "Error: nil HTTP client", clientID: "c", tenant: "t", options: []Option{WithHTTPClient(nil)}, err: true},
	}

	for _, test := range tests {
		client, err := New(test.clientID, test.tenant, test.host, test.options...)
		switch {
		case err == nil && test.err:
			t.Errorf("TestNew(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestNew(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if got := client.authParams.Endpoints.TokenEndpoint; got != test.wantToken {
			t.Errorf("TestNew(%s): got token endpoint %s, want %s", test.desc, got, test.wantToken)
		}
	}
}

func TestAcquireTokenByUsernamePassword(t *testing.T) {
	client, mc := newTestClient(t)
	mc.AppendResponse(
		mock.WithBody(tokenBody("at", "rt", 3600)),
		mock.WithCallback(expectForm(t, tokenPath, map[string]string{
			"grant_type":  "password",
			"username":    "user@contoso.onmicrosoft.com",
			"password":    "hunter2",
			"client_id":   testClientID,
			"client_info": "1",
			"scope":       "openid profile offline_access the_scope",
		})),
	)
	before := time.Now()
	res, err := client.AcquireTokenByUsernamePassword(context.Background(), []string{" the_scope", "the_scope", "", "openid"}, "user@contoso.onmicrosoft.com", "hunter2")
	if err != nil {
		t.Fatalf("TestAcquireTokenByUsernamePassword: got err == %s, want err == nil", err)
	}

	wantAccount := Account{
		HomeAccountID:     testUID + "." + testUTID,
		LocalAccountID:    testUID,
		PreferredUsername: "user@contoso.onmicrosoft.com",
		Realm:             testUTID,
		Environment:       "login.microsoftonline.com",
	}
	if diff := pretty.Compare(wantAccount, res.Account); diff != "" {
		t.Errorf("TestAcquireTokenByUsernamePassword: account: -want/+got:\n%s", diff)
	}
	if res.AccessToken != "at" || res.RefreshToken != "rt" || res.ExpiresIn != 3600 {
		t.Errorf("TestAcquireTokenByUsernamePassword: unexpected result %+v", res)
	}
	if res.ExpiresOn.Before(before.Add(3600 * time.Second)) {
		t.Errorf("TestAcquireTokenByUsernamePassword: ExpiresOn %s is not request time + expires_in", res.ExpiresOn)
	}
	if diff := pretty.Compare([]string{"the_scope"}, res.GrantedScopes); diff != "" {
		t.Errorf("TestAcquireTokenByUsernamePassword: granted scopes: -want/+got:\n%s", diff)
	}
}

func TestAcquireTokenErrors(t *testing.T) {
	tests := []struct {
		desc   string
		status int
		body   []byte
		err    error
		call   func(Client) error
		want   error
	}{
		{
			desc:   "password: bad credentials",
			status: http.StatusBadRequest,
			body:   mock.GetErrorBody("invalid_grant", "AADSTS50126: Error validating credentials", 50126),
			want:   errors.ErrInvalidCredentials,
		},
		{
			desc:   "password: MFA",
			status: http.StatusBadRequest,
			body:   mock.GetErrorBody("invalid_grant", "AADSTS50076: multi-factor authentication required", 50076),
			want:   errors.ErrInteractionRequired,
		},
		{
			desc:   "password: consent",
			status: http.StatusBadRequest,
			body:   mock.GetErrorBody("consent_required", "AADSTS65001"),
			want:   errors.ErrInteractionRequired,
		},
		{
			desc: "password: transport",
			err:  stderrors.New("connection reset"),
			want: errors.ErrTransport,
		},
		{
			desc: "password: malformed",
			body: []byte(`{"token_type":"Bearer"}`),
			want: errors.ErrMalformedResponse,
		},
		{
			desc: "password: negative expiry",
			body: mock.GetAccessTokenBody("at", "", "", "", -1),
			want: errors.ErrMalformedResponse,
		},
		{
			desc:   "silent: expired refresh token",
			status: http.StatusBadRequest,
			body:   mock.GetErrorBody("invalid_grant", "AADSTS700082: The refresh token has expired", 700082),
			call: func(c Client) error {
				_, err := c.AcquireTokenSilent(context.Background(), tokenScope, "rt")
				return err
			},
			want: errors.ErrRefreshTokenExpired,
		},
		{
			desc:   "silent: unknown code",
			status: http.StatusBadRequest,
			body:   mock.GetErrorBody("temporarily_unavailable", "try later"),
			call: func(c Client) error {
				_, err := c.AcquireTokenSilent(context.Background(), tokenScope, "rt")
				return err
			},
			want: errors.ErrService,
		},
	}

	for _, test := range tests {
		client, mc := newTestClient(t)
		opts := []mock.ResponseOption{mock.WithBody(test.body)}
		if test.status != 0 {
			opts = append(opts, mock.WithHTTPStatusCode(test.status))
		}
		if test.err != nil {
			opts = append(opts, mock.WithTransportError(test.err))
		}
		mc.AppendResponse(opts...)

		call := test.call
		if call == nil {
			call = func(c Client) error {
				_, err := c.AcquireTokenByUsernamePassword(context.Background(), tokenScope, "u", "p")
				return err
			}
		}
		err := call(client)
		if !stderrors.Is(err, test.want) {
			t.Errorf("TestAcquireTokenErrors(%s): got err == %v, want %s", test.desc, err, test.want)
		}
	}
}

func TestAcquireTokenSilent(t *testing.T) {
	client, mc := newTestClient(t)
	mc.AppendResponse(
		mock.WithBody(tokenBody("at2", "rt2", 3600)),
		mock.WithCallback(expectForm(t, tokenPath, map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": "rt1",
			"scope":         "openid profile offline_access the_scope",
		})),
	)
	res, err := client.AcquireTokenSilent(context.Background(), tokenScope, "rt1")
	if err != nil {
		t.Fatalf("TestAcquireTokenSilent: got err == %s, want err == nil", err)
	}
	if res.AccessToken != "at2" || res.RefreshToken != "rt2" {
		t.Errorf("TestAcquireTokenSilent: unexpected result %s", res)
	}

	_, err = client.AcquireTokenSilent(context.Background(), tokenScope, "")
	if !stderrors.Is(err, errors.ErrRefreshTokenExpired) {
		t.Errorf("TestAcquireTokenSilent: empty refresh token: got err == %v, want RefreshTokenExpired", err)
	}
	if mc.Requests() != 1 {
		t.Errorf("TestAcquireTokenSilent: got %d requests, want 1", mc.Requests())
	}
}

func TestAcquireTokenForDeviceEnrollment(t *testing.T) {
	client, mc := newTestClient(t)
	mc.AppendResponse(
		mock.WithBody(tokenBody("drs", "", 3600)),
		mock.WithCallback(expectForm(t, tokenPath, map[string]string{
			"scope": "openid profile offline_access " + DeviceEnrollmentScope,
		})),
	)
	res, err := client.AcquireTokenForDeviceEnrollment(context.Background(), "u", "p")
	if err != nil {
		t.Fatalf("TestAcquireTokenForDeviceEnrollment: got err == %s, want err == nil", err)
	}
	if res.AccessToken != "drs" {
		t.Errorf("TestAcquireTokenForDeviceEnrollment: got access token %q", res.AccessToken)
	}
}

func TestDeviceFlow(t *testing.T) {
	start := time.Now()
	client, mc := newTestClient(t, withFakeTime(start))

	mc.AppendResponse(
		mock.WithBody(mock.GetDeviceCodeBody("dc", "ABCD-1234", 900, 5)),
		mock.WithCallback(expectForm(t, deviceCodePath, map[string]string{
			"client_id": testClientID,
			"scope":     "openid profile offline_access",
		})),
	)
	pollForm := map[string]string{
		"grant_type":  "urn:ietf:params:oauth:grant-type:device_code",
		"device_code": "dc",
	}
	mc.AppendResponse(mock.WithHTTPStatusCode(http.StatusBadRequest), mock.WithBody(mock.GetErrorBody("authorization_pending", "")), mock.WithCallback(expectForm(t, tokenPath, pollForm)))
	mc.AppendResponse(mock.WithHTTPStatusCode(http.StatusBadRequest), mock.WithBody(mock.GetErrorBody("slow_down", "")), mock.WithCallback(expectForm(t, tokenPath, pollForm)))
	mc.AppendResponse(mock.WithBody(tokenBody("at", "rt", 3600)), mock.WithCallback(expectForm(t, tokenPath, pollForm)))

	dc, err := client.InitiateDeviceFlow(context.Background(), nil)
	if err != nil {
		t.Fatalf("TestDeviceFlow: InitiateDeviceFlow(): got err == %s, want err == nil", err)
	}
	if dc.Result.UserCode != "ABCD-1234" || dc.Result.Interval != 5 || dc.Result.VerificationURI != "https://microsoft.com/devicelogin" {
		t.Errorf("TestDeviceFlow: unexpected device code %+v", dc.Result)
	}
	if !strings.Contains(dc.Result.Message, "ABCD-1234") {
		t.Errorf("TestDeviceFlow: message %q does not contain the user code", dc.Result.Message)
	}

	res, err := dc.AuthenticationResult(context.Background())
	if err != nil {
		t.Fatalf("TestDeviceFlow: AuthenticationResult(): got err == %s, want err == nil", err)
	}
	if res.AccessToken != "at" {
		t.Errorf("TestDeviceFlow: got access token %q, want %q", res.AccessToken, "at")
	}
	if mc.Pending() != 0 {
		t.Errorf("TestDeviceFlow: %d responses were not consumed", mc.Pending())
	}
}

func TestAcquireTokenByDeviceFlow(t *testing.T) {
	start := time.Now()

	expired := DeviceCodeResult{DeviceCode: "dc", ExpiresOn: start.Add(-time.Second), Interval: 5}
	client, mc := newTestClient(t, withFakeTime(start))
	_, err := client.AcquireTokenByDeviceFlow(context.Background(), expired)
	if !stderrors.Is(err, errors.ErrDeviceFlowExpired) {
		t.Errorf("TestAcquireTokenByDeviceFlow: expired code: got err == %v, want DeviceFlowExpired", err)
	}
	if mc.Requests() != 0 {
		t.Errorf("TestAcquireTokenByDeviceFlow: expired code issued %d requests, want 0", mc.Requests())
	}

	client, mc = newTestClient(t, withFakeTime(start))
	mc.AppendResponse(mock.WithHTTPStatusCode(http.StatusBadRequest), mock.WithBody(mock.GetErrorBody("access_denied", "")))
	_, err = client.AcquireTokenByDeviceFlow(context.Background(), DeviceCodeResult{DeviceCode: "dc", ExpiresOn: start.Add(time.Minute), Interval: 5})
	if !stderrors.Is(err, errors.ErrUserDeclined) {
		t.Errorf("TestAcquireTokenByDeviceFlow: denied: got err == %v, want UserDeclined", err)
	}

	client, mc = newTestClient(t, withFakeTime(start))
	mc.AppendResponse(mock.WithHTTPStatusCode(http.StatusBadRequest), mock.WithBody(mock.GetErrorBody("expired_token", "")))
	_, err = client.AcquireTokenByDeviceFlow(context.Background(), DeviceCodeResult{DeviceCode: "dc", ExpiresOn: start.Add(time.Minute), Interval: 5})
	if !stderrors.Is(err, errors.ErrDeviceFlowExpired) {
		t.Errorf("TestAcquireTokenByDeviceFlow: expired_token: got err == %v, want DeviceFlowExpired", err)
	}

	if _, err := client.AcquireTokenByDeviceFlow(context.Background(), DeviceCodeResult{}); err == nil {
		t.Errorf("TestAcquireTokenByDeviceFlow: empty result: got err == nil")
	}
}

type testDevice struct {
	cred      DeviceCredential
	transport *rsa.PrivateKey
}

func newTestDevice(t *testing.T) testDevice {
	t.Helper()
	soft := hsm.NewSoft()
	deviceKey, err := soft.GenerateRSA("device", 2048)
	if err != nil {
		t.Fatal(err)
	}
	transport, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	transportKey, err := soft.Import(transport, nil)
	if err != nil {
		t.Fatal(err)
	}
	return testDevice{cred: DeviceCredential{HSM: soft, DeviceKey: deviceKey, TransportKey: transportKey}, transport: transport}
}

func (d testDevice) prtBody(t *testing.T) []byte {
	t.Helper()
	enc, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: jose.RSA_OAEP, Key: &d.transport.PublicKey}, nil)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := enc.Encrypt([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	jwe, err := obj.CompactSerialize()
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(map[string]any{
		"token_type":               "Bearer",
		"refresh_token":            "0.AXkA-prt",
		"refresh_token_expires_in": 1209600,
		"session_key_jwe":          jwe,
		"id_token":                 mock.GetIDToken(testUTID, "https://login.microsoftonline.com/"+testUTID+"/v2.0"),
		"client_info":              mock.GetClientInfo(testUID, testUTID),
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestPRT(t *testing.T) {
	dev := newTestDevice(t)
	client, mc := newTestClient(t, WithDeviceCredential(dev.cred), WithHostInfo(hostinfo.Static{PrettyName: "Ubuntu 24.04 LTS", VersionID: "24.04"}))

	mc.AppendResponse(mock.WithBody(mock.GetNonceBody("n1")), mock.WithCallback(expectForm(t, noncePath, map[string]string{"grant_type": "srv_challenge"})))
	mc.AppendResponse(mock.WithBody(dev.prtBody(t)), mock.WithCallback(expectForm(t, prtPath, map[string]string{
		"grant_type":          "urn:ietf:params:oauth:grant-type:jwt-bearer",
		"windows_api_version": "2.0",
		"tgt":                 "true",
	})))
	p, err := client.AcquireUserPRTByUsernamePassword(context.Background(), "user@contoso.onmicrosoft.com", "hunter2")
	if err != nil {
		t.Fatalf("TestPRT: AcquireUserPRTByUsernamePassword(): got err == %s, want err == nil", err)
	}
	if p.TenantID != testUTID || p.SessionKey == nil {
		t.Fatalf("TestPRT: unexpected PRT %s", p)
	}
	if strings.Contains(fmt.Sprintf("%v %+v %#v", p, p, p.SessionKey), "0.AXkA-prt") {
		t.Errorf("TestPRT: PRT formatting leaked the refresh token")
	}

	for i := 0; i < 2; i++ {
		mc.AppendResponse(mock.WithBody(mock.GetNonceBody(fmt.Sprintf("n%d", i+2))), mock.WithCallback(expectForm(t, noncePath, nil)))
		mc.AppendResponse(mock.WithBody(tokenBody("graph-at", "", 3600)), mock.WithCallback(expectForm(t, prtPath, map[string]string{
			"grant_type":          "urn:ietf:params:oauth:grant-type:jwt-bearer",
			"windows_api_version": "2.0",
			"client_info":         "1",
		})))
		res, err := client.AcquireTokenByPRT(context.Background(), []string{"https://graph.microsoft.com/.default"}, p)
		if err != nil {
			t.Fatalf("TestPRT: AcquireTokenByPRT() #%d: got err == %s, want err == nil", i, err)
		}
		if res.AccessToken != "graph-at" {
			t.Errorf("TestPRT: got access token %q, want %q", res.AccessToken, "graph-at")
		}
	}

	other, err := New("another-client", testTenant, "", WithHTTPClient(mc), WithDeviceCredential(dev.cred))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.AcquireTokenByPRT(context.Background(), nil, p); !stderrors.Is(err, errors.ErrClaimsInvalid) {
		t.Errorf("TestPRT: PRT redeemed by another client: got err == %v, want ClaimsInvalid", err)
	}
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if _, err := New(testClientID, testTenant, "sts.contoso.test", WithHTTPClient(mock.NewClient()), WithLogger(logger)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "not a known Microsoft cloud") {
		t.Errorf("TestDebugLogging: no event for an unknown authority host:\n%s", buf.String())
	}
	buf.Reset()

	dev := newTestDevice(t)
	client, mc := newTestClient(t, WithDeviceCredential(dev.cred), WithLogger(logger), WithHostInfo(hostinfo.Static{}))
	if strings.Contains(buf.String(), "not a known Microsoft cloud") {
		t.Errorf("TestDebugLogging: login.microsoftonline.com reported as unknown")
	}
	mc.AppendResponse(mock.WithBody(mock.GetNonceBody("n1")))
	mc.AppendResponse(mock.WithBody(dev.prtBody(t)))
	if _, err := client.AcquireUserPRTByUsernamePassword(context.Background(), "someone@contoso.onmicrosoft.com", "hunter2"); err != nil {
		t.Fatalf("TestDebugLogging: got err == %s, want err == nil", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"username":"[REDACTED]"`) {
		t.Errorf("TestDebugLogging: PRT request event has no redacted username:\n%s", out)
	}
	for _, secret := range []string{"hunter2", "someone@contoso", "0.AXkA-prt"} {
		if strings.Contains(out, secret) {
			t.Errorf("TestDebugLogging: log contains %q", secret)
		}
	}
}

func TestPRTWithoutDevice(t *testing.T) {
	client, mc := newTestClient(t)
	calls := []func() error{
		func() error {
			_, err := client.AcquireUserPRTByUsernamePassword(context.Background(), "u", "p")
			return err
		},
		func() error {
			_, err := client.AcquireUserPRTByRefreshToken(context.Background(), "rt")
			return err
		},
		func() error {
			_, err := client.AcquireTokenByPRT(context.Background(), tokenScope, PrimaryRefreshToken{})
			return err
		},
		func() error {
			_, err := client.AcquireTokenByUsernamePassword(context.Background(), tokenScope, "u", "p", WithProofOfPossession())
			return err
		},
	}
	for i, call := range calls {
		if err := call(); !stderrors.Is(err, errors.ErrDeviceNotRegistered) {
			t.Errorf("TestPRTWithoutDevice: call %d: got err == %v, want DeviceNotRegistered", i, err)
		}
	}
	if mc.Requests() != 0 {
		t.Errorf("TestPRTWithoutDevice: got %d requests, want 0", mc.Requests())
	}
}

func TestProofOfPossession(t *testing.T) {
	dev := newTestDevice(t)
	client, mc := newTestClient(t, WithDeviceCredential(dev.cred))
	mc.AppendResponse(mock.WithBody(mock.GetNonceBody("n1")))
	mc.AppendResponse(mock.WithBody(tokenBody("at", "rt", 3600)), mock.WithCallback(func(r *http.Request) {
		form := mock.FormValues(r)
		if form["client_assertion_type"] != "urn:ietf:params:oauth:client-assertion-type:jwt-bearer" || form["client_assertion"] == "" {
			t.Errorf("TestProofOfPossession: request has no client assertion: %v", form)
		}
	}))
	if _, err := client.AcquireTokenByUsernamePassword(context.Background(), tokenScope, "u", "p", WithProofOfPossession()); err != nil {
		t.Fatalf("TestProofOfPossession: got err == %s, want err == nil", err)
	}
}

func TestTokenSource(t *testing.T) {
	client, mc := newTestClient(t)
	// expires_in below the oauth2 expiry delta, so every Token() call refreshes
	mc.AppendResponse(mock.WithBody(tokenBody("at1", "rt2", 5)), mock.WithCallback(expectForm(t, tokenPath, map[string]string{"refresh_token": "rt1"})))
	mc.AppendResponse(mock.WithBody(tokenBody("at2", "", 3600)), mock.WithCallback(expectForm(t, tokenPath, map[string]string{"refresh_token": "rt2"})))

	ts := client.TokenSource(context.Background(), tokenScope, "rt1")
	for _, want := range []string{"at1", "at2", "at2"} {
		tok, err := ts.Token()
		if err != nil {
			t.Fatalf("TestTokenSource: got err == %s, want err == nil", err)
		}
		if tok.AccessToken != want {
			t.Errorf("TestTokenSource: got access token %q, want %q", tok.AccessToken, want)
		}
		if raw, _ := tok.Extra("id_token").(string); raw == "" {
			t.Errorf("TestTokenSource: id_token missing from token extras")
		}
	}
	if mc.Requests() != 2 {
		t.Errorf("TestTokenSource: got %d requests, want 2", mc.Requests())
	}
}

func TestConcurrentCalls(t *testing.T) {
	const n = 8
	router := &mock.Router{}
	for i := 0; i < n; i++ {
		router.AppendResponse(tokenPath, mock.WithBody(tokenBody("at", "rt", 3600)))
	}
	reg := prometheus.NewRegistry()
	client, err := New(testClientID, testTenant, "", WithHTTPClient(router), WithMetrics(reg))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := client.AcquireTokenSilent(context.Background(), []string{fmt.Sprintf("scope%d", i)}, "rt")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("TestConcurrentCalls: got err == %s, want err == nil", err)
		}
	}
	if got := router.Calls(tokenPath); got != n {
		t.Errorf("TestConcurrentCalls: got %d calls, want %d", got, n)
	}
	got, err := testutil.GatherAndCount(reg, "msal_authority_requests_total")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("TestConcurrentCalls: got %d request series, want 1", got)
	}
}

func TestDeviceFlowCanceled(t *testing.T) {
	client, mc := newTestClient(t, func(o *Options) {
		o.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
		o.now = time.Now
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.AcquireTokenByDeviceFlow(ctx, DeviceCodeResult{DeviceCode: "dc", ExpiresOn: time.Now().Add(time.Hour), Interval: 5})
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("TestDeviceFlowCanceled: got err == %v, want context.Canceled", err)
	}
	if mc.Requests() != 0 {
		t.Errorf("TestDeviceFlowCanceled: got %d requests, want 0", mc.Requests())
	}
}
