// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package prt implements the MS-OAPXBC Primary Refresh Token protocol: fetching a server nonce,
requesting a PRT with a device signed assertion (section 3.1.5.1.2) and exchanging a PRT for
access tokens with an assertion signed by the PRT session key (section 3.1.5.1.3).

Each step is a single round trip and may be retried independently. A PRT can be exchanged any
number of times until it expires.
*/
package prt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/hsm"
	"github.com/himmelblau-idm/msal-go/apps/internal/hostinfo"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/accesstokens"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/assertion"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/authority"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/internal/comm"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/internal/grant"
	"github.com/himmelblau-idm/msal-go/apps/internal/slog"
)

const (
	// BrokerClientID is the client id PRT requests are issued for.
	BrokerClientID = "38aa3b87-a06d-4817-b275-7a316988d93b"
	// Scope is the scope of a PRT request.
	Scope = "openid aza ugs"
	// WindowsAPIVersion is sent with every MS-OAPXBC request.
	WindowsAPIVersion = "2.0"
	// DefaultLifetime is assumed when the authority omits refresh_token_expires_in.
	DefaultLifetime = 14 * 24 * time.Hour
)

// DeviceCredential references the keys of a joined device. The keys stay in the HSM.
type DeviceCredential struct {
	HSM hsm.HSM
	// DeviceKey signs PRT requests. Its certificate is the device identity.
	DeviceKey hsm.KeyHandle
	// TransportKey decrypts the session key. HSM must implement hsm.Decrypter.
	TransportKey hsm.KeyHandle
}

// IsZero reports whether no credential was configured.
func (d DeviceCredential) IsZero() bool {
	return d.HSM == nil
}

// Subject is the user credential a PRT is requested with: a username and password, or a
// refresh token.
type Subject struct {
	Username     string
	Password     string
	RefreshToken string
}

// PasswordSubject returns a Subject for a username and password.
func PasswordSubject(username, password string) Subject {
	return Subject{Username: username, Password: password}
}

// RefreshTokenSubject returns a Subject for a refresh token.
func RefreshTokenSubject(refreshToken string) Subject {
	return Subject{RefreshToken: refreshToken}
}

func (s Subject) claims() (jwt.MapClaims, error) {
	switch {
	case s.RefreshToken != "":
		return jwt.MapClaims{"grant_type": grant.RefreshToken, "refresh_token": s.RefreshToken}, nil
	case s.Username != "":
		return jwt.MapClaims{"grant_type": grant.Password, "username": s.Username, "password": s.Password}, nil
	}
	return nil, errors.New(errors.ClaimsInvalid, "PRT request needs a username or a refresh token")
}

// PrimaryRefreshToken is a device bound refresh token and its session key.
type PrimaryRefreshToken struct {
	RefreshToken string
	ExpiresOn    time.Time
	IDToken      accesstokens.IDToken
	ClientInfo   accesstokens.ClientInfo
	TenantID     string
	SessionKey   *SessionKey
}

// Expired reports whether the PRT is past its expiry at now.
func (p PrimaryRefreshToken) Expired(now time.Time) bool {
	return !p.ExpiresOn.IsZero() && !now.Before(p.ExpiresOn)
}

func (p PrimaryRefreshToken) String() string {
	return fmt.Sprintf("PrimaryRefreshToken{TenantID: %s, ExpiresOn: %s, SessionKey: %s}",
		p.TenantID, p.ExpiresOn.Format(time.RFC3339), p.SessionKey)
}

// LogValue implements slog.LogValuer.
func (p PrimaryRefreshToken) LogValue() slog.Value {
	return slog.RedactedValue()
}

type urlFormCaller interface {
	URLFormCall(ctx context.Context, endpoint string, headers http.Header, qv url.Values) (comm.Reply, error)
}

// Client performs the PRT protocol.
type Client struct {
	Comm     urlFormCaller
	Tokens   accesstokens.Client
	HostInfo hostinfo.Provider
	Builder  assertion.Builder
	Logger   *slog.Logger
}

func (c Client) now() time.Time {
	if c.Builder.Now != nil {
		return c.Builder.Now()
	}
	return time.Now()
}

type nonceResponse struct {
	authority.OAuthResponseBase

	Nonce string `json:"Nonce"`
}

// Nonce fetches a fresh server nonce. Every nonce is valid for one assertion.
func (c Client) Nonce(ctx context.Context, authParams authority.AuthParams) (*assertion.Nonce, error) {
	qv := url.Values{}
	qv.Set("grant_type", grant.SrvChallenge)
	reply, err := c.Comm.URLFormCall(ctx, authParams.Endpoints.NonceEndpoint, comm.CorrelationHeader(authParams.CorrelationID), qv)
	if err != nil {
		return nil, err
	}
	resp := nonceResponse{}
	if err := json.Unmarshal(reply.Body, &resp); err != nil {
		return nil, malformed(reply.StatusCode, err, "nonce response is not valid JSON")
	}
	if resp.Error != "" {
		return nil, errors.FromOAuth(errors.FlowNonce, reply.StatusCode, resp.OAuthResponseBase)
	}
	if reply.StatusCode != http.StatusOK || resp.Nonce == "" {
		return nil, malformed(reply.StatusCode, nil, "nonce response has no Nonce")
	}
	return assertion.NewNonce(resp.Nonce), nil
}

type prtResponse struct {
	authority.OAuthResponseBase

	TokenType             string               `json:"token_type"`
	RefreshToken          string               `json:"refresh_token"`
	RefreshTokenExpiresIn accesstokens.Seconds `json:"refresh_token_expires_in"`
	SessionKeyJWE         string               `json:"session_key_jwe"`
	IDToken               string               `json:"id_token"`
	ClientInfo            string               `json:"client_info"`
}

// Request obtains a PRT for subject, signing the request with the device key of cred.
func (c Client) Request(ctx context.Context, authParams authority.AuthParams, cred DeviceCredential, subject Subject) (PrimaryRefreshToken, error) {
	if cred.IsZero() {
		return PrimaryRefreshToken{}, errors.New(errors.DeviceNotRegistered, "no device credential configured")
	}
	claims, err := subject.claims()
	if err != nil {
		return PrimaryRefreshToken{}, err
	}
	claims["client_id"] = BrokerClientID
	claims["scope"] = Scope
	if winVer := c.winVer(ctx); winVer != "" {
		claims["win_ver"] = winVer
	}

	nonce, err := c.Nonce(ctx, authParams)
	if err != nil {
		return PrimaryRefreshToken{}, err
	}
	request, err := c.Builder.Build(ctx, assertion.Request{
		Kind:   assertion.PRTRequest,
		Claims: claims,
		Nonce:  nonce,
		Signer: assertion.DeviceSigner{HSM: cred.HSM, Key: cred.DeviceKey},
	})
	if err != nil {
		return PrimaryRefreshToken{}, err
	}

	qv := url.Values{}
	qv.Set("windows_api_version", WindowsAPIVersion)
	qv.Set("grant_type", grant.JWTBearer)
	qv.Set("request", request)
	qv.Set("client_info", "1")
	qv.Set("tgt", "true")

	slog.Debug(ctx, c.Logger, "requesting primary refresh token",
		slog.Field("tenant", authParams.AuthorityInfo.Tenant), slog.Field("grant", claims["grant_type"]),
		slog.Redacted("username", subject.Username), slog.Redacted("refresh_token", subject.RefreshToken))
	requestedAt := c.now()
	reply, err := c.Comm.URLFormCall(ctx, authParams.Endpoints.PRTEndpoint, comm.CorrelationHeader(authParams.CorrelationID), qv)
	if err != nil {
		return PrimaryRefreshToken{}, err
	}
	return c.decode(ctx, authParams, cred, reply, requestedAt)
}

func (c Client) decode(ctx context.Context, authParams authority.AuthParams, cred DeviceCredential, reply comm.Reply, requestedAt time.Time) (PrimaryRefreshToken, error) {
	resp := prtResponse{}
	if err := json.Unmarshal(reply.Body, &resp); err != nil {
		return PrimaryRefreshToken{}, malformed(reply.StatusCode, err, "PRT response is not valid JSON")
	}
	if resp.Error != "" {
		return PrimaryRefreshToken{}, errors.FromOAuth(errors.FlowPRTRequest, reply.StatusCode, resp.OAuthResponseBase)
	}
	if reply.StatusCode != http.StatusOK {
		return PrimaryRefreshToken{}, malformed(reply.StatusCode, nil, "PRT endpoint returned status %d without an error code", reply.StatusCode)
	}
	switch "" {
	case resp.RefreshToken:
		return PrimaryRefreshToken{}, malformed(reply.StatusCode, nil, "PRT response is missing refresh_token")
	case resp.SessionKeyJWE:
		return PrimaryRefreshToken{}, malformed(reply.StatusCode, nil, "PRT response is missing session_key_jwe")
	}

	lifetime := DefaultLifetime
	if v, ok := resp.RefreshTokenExpiresIn.Value(); ok {
		if v < 0 || v > accesstokens.MaxSeconds {
			return PrimaryRefreshToken{}, malformed(reply.StatusCode, nil, "PRT response has out of range refresh_token_expires_in %d", v)
		}
		lifetime = time.Duration(v) * time.Second
	}

	var idToken accesstokens.IDToken
	if resp.IDToken != "" {
		var err error
		if idToken, err = accesstokens.NewIDToken(resp.IDToken); err != nil {
			return PrimaryRefreshToken{}, malformed(reply.StatusCode, err, "bad id_token")
		}
	}
	clientInfo, err := accesstokens.NewClientInfo(resp.ClientInfo)
	if err != nil {
		return PrimaryRefreshToken{}, malformed(reply.StatusCode, err, "bad client_info")
	}

	key, err := decryptSessionKey(ctx, cred, resp.SessionKeyJWE)
	if err != nil {
		return PrimaryRefreshToken{}, err
	}

	tenant := idToken.TenantID
	if tenant == "" && !clientInfo.IsZero() {
		tenant = clientInfo.UTID.String()
	}
	return PrimaryRefreshToken{
		RefreshToken: resp.RefreshToken,
		ExpiresOn:    requestedAt.Add(lifetime),
		IDToken:      idToken,
		ClientInfo:   clientInfo,
		TenantID:     tenant,
		SessionKey:   newSessionKey(key, resp.RefreshToken, authParams.ClientID, authParams.AuthorityInfo.Host),
	}, nil
}

// Exchange trades prt for an access token to scopes. The PRT and its session key must have been
// issued to authParams' client by authParams' authority.
func (c Client) Exchange(ctx context.Context, authParams authority.AuthParams, prt PrimaryRefreshToken, scopes []string) (accesstokens.TokenResponse, error) {
	if prt.RefreshToken == "" {
		return accesstokens.TokenResponse{}, errors.New(errors.PrtExpired, "empty primary refresh token")
	}
	if prt.Expired(c.now()) {
		return accesstokens.TokenResponse{}, errors.New(errors.PrtExpired, "primary refresh token expired at %s", prt.ExpiresOn.Format(time.RFC3339))
	}
	if err := prt.SessionKey.checkBinding(prt.RefreshToken, authParams.ClientID, authParams.AuthorityInfo.Host); err != nil {
		return accesstokens.TokenResponse{}, err
	}

	authParams.Scopes = scopes
	scope := make([]string, 0, len(scopes)+len(accesstokens.DefaultScopes))
	scope = append(scope, accesstokens.DefaultScopes...)
	scope = append(scope, accesstokens.NormalizeScopes(scopes)...)

	nonce, err := c.Nonce(ctx, authParams)
	if err != nil {
		return accesstokens.TokenResponse{}, err
	}
	request, err := c.Builder.Build(ctx, assertion.Request{
		Kind: assertion.PRTExchange,
		Claims: jwt.MapClaims{
			"grant_type":    grant.RefreshToken,
			"refresh_token": prt.RefreshToken,
			"client_id":     authParams.ClientID,
			"scope":         strings.Join(scope, " "),
		},
		Nonce:  nonce,
		Signer: assertion.NewSessionKeySigner(prt.SessionKey.key),
	})
	if err != nil {
		return accesstokens.TokenResponse{}, err
	}

	slog.Debug(ctx, c.Logger, "exchanging primary refresh token",
		slog.Field("tenant", authParams.AuthorityInfo.Tenant), slog.Field("scopes", scope))
	extra := url.Values{}
	extra.Set("windows_api_version", WindowsAPIVersion)
	return c.Tokens.FromJWTBearer(ctx, errors.FlowPRTExchange, authParams, request, extra)
}

func (c Client) winVer(ctx context.Context) string {
	if c.HostInfo == nil {
		return ""
	}
	rel, err := c.HostInfo.OSRelease()
	if err != nil {
		slog.Debug(ctx, c.Logger, "omitting win_ver", slog.Field("error", err))
		return ""
	}
	return rel.WinVer()
}


func malformed(status int, err error, format string, a ...any) error {
	e := errors.Wrap(errors.MalformedResponse, err, format, a...)
	e.StatusCode = status
	return e
}
