// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package public provides a client for authentication of "public" applications. A "public"
application is defined as an app that runs on client devices (android, ios, windows, linux, ...).
These devices are "untrusted" and access resources via web APIs that must authenticate.

On devices joined to Microsoft Entra ID the client can also request and redeem Primary Refresh
Tokens, see WithDeviceCredential.

The client keeps no token cache. Every call is a round trip to the authority and the caller owns
the returned tokens.
*/
package public

/*
Design note:

public.Client holds authority.AuthParams by value. Every method works on its own copy, so a
Client may be shared between goroutines.
*/

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/internal/deviceflow"
	"github.com/himmelblau-idm/msal-go/apps/internal/hostinfo"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/accesstokens"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/authority"
	"github.com/himmelblau-idm/msal-go/apps/internal/slog"
	"github.com/prometheus/client_golang/prometheus"
)

// DeviceEnrollmentScope is the scope of the device registration service.
const DeviceEnrollmentScope = "01cb2876-7ebd-4aa4-9cc9-d28bd4d359a9/.default"

// IDToken is the decoded id_token of a token response.
type IDToken = accesstokens.IDToken

// ClientInfo identifies the home account of a signed in user.
type ClientInfo = accesstokens.ClientInfo

// Account identifies the user a token was issued to.
type Account struct {
	HomeAccountID     string
	LocalAccountID    string
	PreferredUsername string
	Realm             string
	Environment       string
}

// AuthResult contains the results of one token acquisition operation.
// For details see https://aka.ms/msal-net-authenticationresult
type AuthResult struct {
	Account      Account
	IDToken      IDToken
	ClientInfo   ClientInfo
	AccessToken  string
	TokenType    string
	RefreshToken string
	// ExpiresIn is the lifetime of AccessToken in seconds, as sent by the authority.
	ExpiresIn      int64
	ExpiresOn      time.Time
	ExtExpiresOn   time.Time
	GrantedScopes  []string
	DeclinedScopes []string
}

func (r AuthResult) String() string {
	return fmt.Sprintf("AuthResult{Account: %s, ExpiresOn: %s, GrantedScopes: %v, DeclinedScopes: %v}",
		r.Account.PreferredUsername, r.ExpiresOn.Format(time.RFC3339), r.GrantedScopes, r.DeclinedScopes)
}

func newAuthResult(tr accesstokens.TokenResponse, host string) AuthResult {
	realm := tr.IDToken.TenantID
	if realm == "" && !tr.ClientInfo.IsZero() {
		realm = tr.ClientInfo.UTID.String()
	}
	username := tr.IDToken.PreferredUsername
	if username == "" {
		username = tr.IDToken.UPN
	}
	return AuthResult{
		Account: Account{
			HomeAccountID:     tr.ClientInfo.HomeAccountID(),
			LocalAccountID:    tr.IDToken.LocalAccountID(),
			PreferredUsername: username,
			Realm:             realm,
			Environment:       host,
		},
		IDToken:        tr.IDToken,
		ClientInfo:     tr.ClientInfo,
		AccessToken:    tr.AccessToken,
		TokenType:      tr.TokenType,
		RefreshToken:   tr.RefreshToken,
		ExpiresIn:      tr.ExpiresIn,
		ExpiresOn:      tr.ExpiresOn,
		ExtExpiresOn:   tr.ExtExpiresOn,
		GrantedScopes:  tr.GrantedScopes,
		DeclinedScopes: tr.DeclinedScopes,
	}
}

// Options configures the Client's behavior.
type Options struct {
	// HTTPClient sends every request. The default is a shared *http.Client.
	HTTPClient ops.HTTPClient
	// Logger receives debug events. Secrets are never logged. The default discards everything.
	Logger *slog.Logger
	// DeviceCredential enables the PRT operations and proof of possession.
	DeviceCredential DeviceCredential
	// HostInfo supplies the OS release sent with PRT requests. The default reads /etc/os-release.
	HostInfo hostinfo.Provider
	// Registerer, when set, receives request counters and latency histograms.
	Registerer prometheus.Registerer

	now   func() time.Time
	sleep deviceflow.Sleeper
}

// Option is an optional argument to the New constructor.
type Option func(o *Options)

// WithHTTPClient allows for a custom HTTP client to be set.
func WithHTTPClient(httpClient ops.HTTPClient) Option {
	return func(o *Options) {
		o.HTTPClient = httpClient
	}
}

// WithLogger sets the logger for debug events.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithDeviceCredential sets the keys of a joined device.
func WithDeviceCredential(cred DeviceCredential) Option {
	return func(o *Options) {
		o.DeviceCredential = cred
	}
}

// WithHostInfo sets the source of host metadata.
func WithHostInfo(p hostinfo.Provider) Option {
	return func(o *Options) {
		o.HostInfo = p
	}
}

// WithMetrics registers Prometheus collectors for authority requests with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *Options) {
		o.Registerer = reg
	}
}

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// Client is a representation of authentication client for public applications as defined in the
// package doc. For more information, visit https://docs.microsoft.com/azure/active-directory/develop/msal-client-applications.
type Client struct {
	token      *oauth.Client
	authParams authority.AuthParams // DO NOT EVER MAKE THIS A POINTER!
	cred       DeviceCredential
}

// New is the constructor for Client. authorityHost may be empty for the public cloud, a host
// such as "login.microsoftonline.com" or an https URL of the host.
func New(clientID, tenantID, authorityHost string, options ...Option) (Client, error) {
	if strings.TrimSpace(clientID) == "" {
		return Client{}, fmt.Errorf("client id cannot be empty")
	}
	info, err := authority.NewInfo(authorityHost, tenantID)
	if err != nil {
		return Client{}, err
	}

	opts := Options{HTTPClient: defaultHTTPClient, HostInfo: hostinfo.Files{}}
	for _, o := range options {
		o(&opts)
	}
	if opts.HTTPClient == nil {
		return Client{}, fmt.Errorf("HTTP client cannot be nil")
	}

	if !authority.TrustedHost(info.Host) {
		slog.Debug(context.Background(), slog.New(opts.Logger), "authority host is not a known Microsoft cloud", slog.Field("host", info.Host))
	}

	oauthOpts := []oauth.Option{oauth.WithLogger(opts.Logger), oauth.WithHostInfo(opts.HostInfo)}
	if opts.Registerer != nil {
		m, err := ops.NewMetrics(opts.Registerer)
		if err != nil {
			return Client{}, fmt.Errorf("registering metrics: %w", err)
		}
		oauthOpts = append(oauthOpts, oauth.WithMetrics(m))
	}
	if opts.now != nil {
		oauthOpts = append(oauthOpts, oauth.WithClock(opts.now))
	}
	if opts.sleep != nil {
		oauthOpts = append(oauthOpts, oauth.WithSleeper(opts.sleep))
	}

	return Client{
		token:      oauth.New(opts.HTTPClient, oauthOpts...),
		authParams: authority.NewAuthParams(strings.TrimSpace(clientID), info),
		cred:       opts.DeviceCredential,
	}, nil
}

// params returns a copy of the client's parameters for one request.
func (pca Client) params(scopes []string) authority.AuthParams {
	ap := pca.authParams.WithCorrelationID()
	ap.Scopes = accesstokens.NormalizeScopes(scopes)
	return ap
}

func (pca Client) result(tr accesstokens.TokenResponse, err error) (AuthResult, error) {
	if err != nil {
		return AuthResult{}, err
	}
	return newAuthResult(tr, pca.authParams.AuthorityInfo.Host), nil
}

// AcquireByUsernamePasswordOptions contains the optional parameters of AcquireTokenByUsernamePassword.
type AcquireByUsernamePasswordOptions struct {
	proofOfPossession bool
}

// AcquireByUsernamePasswordOption changes options inside AcquireByUsernamePasswordOptions.
type AcquireByUsernamePasswordOption func(o *AcquireByUsernamePasswordOptions)

// WithProofOfPossession signs the request with the device key. It requires WithDeviceCredential.
func WithProofOfPossession() AcquireByUsernamePasswordOption {
	return func(o *AcquireByUsernamePasswordOptions) {
		o.proofOfPossession = true
	}
}

// AcquireTokenByUsernamePassword acquires a security token from the authority, via Username/Password Authentication.
// NOTE: this flow is NOT recommended.
func (pca Client) AcquireTokenByUsernamePassword(ctx context.Context, scopes []string, username, password string, options ...AcquireByUsernamePasswordOption) (AuthResult, error) {
	opts := AcquireByUsernamePasswordOptions{}
	for _, o := range options {
		o(&opts)
	}
	ap := pca.params(scopes)
	ap.Username = username
	ap.Password = password

	if opts.proofOfPossession {
		return pca.result(pca.token.UsernamePasswordPoP(ctx, ap, pca.cred))
	}
	return pca.result(pca.token.UsernamePassword(ctx, ap))
}

// AcquireTokenForDeviceEnrollment acquires a token for the device registration service, used to
// join this device.
func (pca Client) AcquireTokenForDeviceEnrollment(ctx context.Context, username, password string) (AuthResult, error) {
	return pca.AcquireTokenByUsernamePassword(ctx, []string{DeviceEnrollmentScope}, username, password)
}

// AcquireTokenSilent redeems refreshToken for an access token to scopes. There is no cache; the
// caller supplies the refresh token from an earlier AuthResult.
func (pca Client) AcquireTokenSilent(ctx context.Context, scopes []string, refreshToken string) (AuthResult, error) {
	return pca.result(pca.token.Refresh(ctx, pca.params(scopes), refreshToken))
}

// DeviceCodeResult stores the response from the STS device code endpoint.
type DeviceCodeResult = accesstokens.DeviceCodeResult

// DeviceCode provides the results of the device code flows first stage (containing the code)
// that must be entered on the second device and provides a method to retrieve the AuthenticationResult
// once that code has been entered and verified.
type DeviceCode struct {
	// Result holds the information about the device code (such as the code).
	Result DeviceCodeResult

	client Client
	dc     oauth.DeviceCode
}

// AuthenticationResult polls until the user enters the code on the second device and returns
// the tokens. It returns early when ctx is done, the user declines or the device code expires.
func (d DeviceCode) AuthenticationResult(ctx context.Context) (AuthResult, error) {
	return d.client.result(d.dc.Token(ctx))
}

// InitiateDeviceFlow starts a device code flow. Show Result.Message to the user, then call
// DeviceCode.AuthenticationResult or AcquireTokenByDeviceFlow.
func (pca Client) InitiateDeviceFlow(ctx context.Context, scopes []string) (DeviceCode, error) {
	dc, err := pca.token.DeviceCode(ctx, pca.params(scopes))
	if err != nil {
		return DeviceCode{}, err
	}
	return DeviceCode{Result: dc.Result, client: pca, dc: dc}, nil
}

// AcquireTokenByDeviceFlow polls for the result of a device code issued by InitiateDeviceFlow.
// A device code that has already expired fails with DeviceFlowExpired without contacting the
// authority.
func (pca Client) AcquireTokenByDeviceFlow(ctx context.Context, result DeviceCodeResult) (AuthResult, error) {
	if result.DeviceCode == "" {
		return AuthResult{}, errors.New(errors.ClaimsInvalid, "device code result has no device code")
	}
	dc := pca.token.ResumeDeviceCode(pca.params(result.Scopes), result)
	return pca.result(dc.Token(ctx))
}
