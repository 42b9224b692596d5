// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package oauth composes the REST clients into the token flows offered by the public client:
// username/password, refresh token, device code and the primary refresh token pair.
package oauth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/internal/deviceflow"
	"github.com/himmelblau-idm/msal-go/apps/internal/hostinfo"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/accesstokens"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/assertion"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/authority"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/prt"
	"github.com/himmelblau-idm/msal-go/apps/internal/slog"
)

// AccessTokens contains the methods for fetching tokens from different sources.
type AccessTokens interface {
	FromUsernamePassword(ctx context.Context, authParameters authority.AuthParams, popAssertion string) (accesstokens.TokenResponse, error)
	FromRefreshToken(ctx context.Context, authParameters authority.AuthParams, refreshToken string) (accesstokens.TokenResponse, error)
	DeviceCodeResult(ctx context.Context, authParameters authority.AuthParams) (accesstokens.DeviceCodeResult, error)
	FromDeviceCodeResult(ctx context.Context, authParameters authority.AuthParams, deviceCodeResult accesstokens.DeviceCodeResult) (accesstokens.TokenResponse, error)
}

// PRT contains the methods of the primary refresh token protocol.
type PRT interface {
	Nonce(ctx context.Context, authParameters authority.AuthParams) (*assertion.Nonce, error)
	Request(ctx context.Context, authParameters authority.AuthParams, cred prt.DeviceCredential, subject prt.Subject) (prt.PrimaryRefreshToken, error)
	Exchange(ctx context.Context, authParameters authority.AuthParams, p prt.PrimaryRefreshToken, scopes []string) (accesstokens.TokenResponse, error)
}

// popLifetime is how long a password proof of possession assertion is valid.
const popLifetime = 5 * time.Minute

// Client provides tokens for various types of token requests.
type Client struct {
	accessTokens AccessTokens
	prt          PRT
	builder      assertion.Builder
	logger       *slog.Logger
	deviceOpts   []deviceflow.Option
}

type config struct {
	logger  *slog.Logger
	metrics *ops.Metrics
	host    hostinfo.Provider
	now     func() time.Time
	sleep   deviceflow.Sleeper
}

// Option configures a Client.
type Option func(c *config)

// WithLogger sets the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics records authority round trips in m.
func WithMetrics(m *ops.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithHostInfo sets the source of the win_ver claim.
func WithHostInfo(p hostinfo.Provider) Option {
	return func(c *config) { c.host = p }
}

// WithClock replaces time.Now for assertions and device code polling.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithSleeper replaces the device code polling sleep.
func WithSleeper(s deviceflow.Sleeper) Option {
	return func(c *config) { c.sleep = s }
}

// New is the constructor for Client.
func New(httpClient ops.HTTPClient, options ...Option) *Client {
	cfg := config{host: hostinfo.Files{}}
	for _, o := range options {
		o(&cfg)
	}
	logger := slog.New(cfg.logger)

	restOpts := []ops.Option{ops.WithLogger(logger)}
	if cfg.metrics != nil {
		restOpts = append(restOpts, ops.WithMetrics(cfg.metrics))
	}
	r := ops.New(httpClient, restOpts...)
	builder := assertion.Builder{Now: cfg.now}

	deviceOpts := []deviceflow.Option{deviceflow.WithLogger(logger)}
	if cfg.now != nil {
		deviceOpts = append(deviceOpts, deviceflow.WithClock(cfg.now))
	}
	if cfg.sleep != nil {
		deviceOpts = append(deviceOpts, deviceflow.WithSleeper(cfg.sleep))
	}

	return &Client{
		accessTokens: r.AccessTokens(),
		prt:          r.PRT(cfg.host, builder, logger),
		builder:      builder,
		logger:       logger,
		deviceOpts:   deviceOpts,
	}
}

// UsernamePassword exchanges a username and password for tokens.
func (t *Client) UsernamePassword(ctx context.Context, authParams authority.AuthParams) (accesstokens.TokenResponse, error) {
	authParams.AuthorizationType = authority.ATUsernamePassword
	slog.Debug(ctx, t.logger, "acquiring token by username/password", slog.Field("correlation_id", authParams.CorrelationID))
	return t.accessTokens.FromUsernamePassword(ctx, authParams, "")
}

// UsernamePasswordPoP is UsernamePassword with a nonce bound assertion signed by the device key
// of cred, proving the request comes from a registered device.
func (t *Client) UsernamePasswordPoP(ctx context.Context, authParams authority.AuthParams, cred prt.DeviceCredential) (accesstokens.TokenResponse, error) {
	if cred.IsZero() {
		return accesstokens.TokenResponse{}, errors.New(errors.DeviceNotRegistered, "proof of possession requires a device credential")
	}
	authParams.AuthorizationType = authority.ATUsernamePassword

	nonce, err := t.prt.Nonce(ctx, authParams)
	if err != nil {
		return accesstokens.TokenResponse{}, err
	}
	pop, err := t.builder.Build(ctx, assertion.Request{
		Kind: assertion.PasswordProofOfPossession,
		Claims: jwt.MapClaims{
			"iss": authParams.ClientID,
			"sub": authParams.ClientID,
			"aud": authParams.Endpoints.TokenEndpoint,
			"exp": t.now().Add(popLifetime).Unix(),
		},
		Nonce:  nonce,
		Signer: assertion.DeviceSigner{HSM: cred.HSM, Key: cred.DeviceKey},
	})
	if err != nil {
		return accesstokens.TokenResponse{}, err
	}
	slog.Debug(ctx, t.logger, "acquiring token by username/password with proof of possession", slog.Field("correlation_id", authParams.CorrelationID))
	return t.accessTokens.FromUsernamePassword(ctx, authParams, pop)
}

// Refresh redeems a refresh token for a new set of tokens.
func (t *Client) Refresh(ctx context.Context, authParams authority.AuthParams, refreshToken string) (accesstokens.TokenResponse, error) {
	authParams.AuthorizationType = authority.ATRefreshTokenExchange
	slog.Debug(ctx, t.logger, "acquiring token by refresh token", slog.Field("correlation_id", authParams.CorrelationID))
	return t.accessTokens.FromRefreshToken(ctx, authParams, refreshToken)
}

// DeviceCode is the result of a call to Token.DeviceCode().
type DeviceCode struct {
	// Result is the device code result from the first call in the device code flow. This allows
	// the caller to retrieve the displayed code that is used to authorize on the second device.
	Result accesstokens.DeviceCodeResult

	authParams authority.AuthParams
	machine    *deviceflow.Machine
}

// Token returns a token AFTER the user uses the user code on the second device. This will block
// until either: (1) the code is input by the user and the service releases a token, (2) the
// device code expires, (3) the user declines, or (4) ctx is done.
func (d DeviceCode) Token(ctx context.Context) (accesstokens.TokenResponse, error) {
	if d.machine == nil {
		return accesstokens.TokenResponse{}, errors.New(errors.ClaimsInvalid, "device code was not initiated by this client")
	}
	return d.machine.Run(ctx)
}

// State returns the state of the device code flow.
func (d DeviceCode) State() deviceflow.State {
	if d.machine == nil {
		return deviceflow.Initiated
	}
	return d.machine.State()
}

// DeviceCode starts a device code flow. The caller shows Result.Message to the user and then
// calls DeviceCode.Token.
func (t *Client) DeviceCode(ctx context.Context, authParams authority.AuthParams) (DeviceCode, error) {
	authParams.AuthorizationType = authority.ATDeviceCode
	dcr, err := t.accessTokens.DeviceCodeResult(ctx, authParams)
	if err != nil {
		return DeviceCode{}, err
	}
	slog.Debug(ctx, t.logger, "device code issued", slog.Field("interval", dcr.Interval), slog.Field("expires_on", dcr.ExpiresOn))
	return t.ResumeDeviceCode(authParams, dcr), nil
}

// ResumeDeviceCode returns a DeviceCode that polls for an already issued device code.
func (t *Client) ResumeDeviceCode(authParams authority.AuthParams, dcr accesstokens.DeviceCodeResult) DeviceCode {
	authParams.AuthorizationType = authority.ATDeviceCode
	poll := func(ctx context.Context) (accesstokens.TokenResponse, error) {
		return t.accessTokens.FromDeviceCodeResult(ctx, authParams, dcr)
	}
	return DeviceCode{
		Result:     dcr,
		authParams: authParams,
		machine:    deviceflow.New(dcr, poll, t.deviceOpts...),
	}
}

// PRT requests a primary refresh token for subject using the device credential cred.
func (t *Client) PRT(ctx context.Context, authParams authority.AuthParams, cred prt.DeviceCredential, subject prt.Subject) (prt.PrimaryRefreshToken, error) {
	authParams.AuthorizationType = authority.ATPRTRequest
	return t.prt.Request(ctx, authParams, cred, subject)
}

// ExchangePRT redeems p for an access token to scopes.
func (t *Client) ExchangePRT(ctx context.Context, authParams authority.AuthParams, p prt.PrimaryRefreshToken, scopes []string) (accesstokens.TokenResponse, error) {
	authParams.AuthorizationType = authority.ATPRTExchange
	return t.prt.Exchange(ctx, authParams, p, scopes)
}

func (t *Client) now() time.Time {
	if t.builder.Now != nil {
		return t.builder.Now()
	}
	return time.Now()
}
