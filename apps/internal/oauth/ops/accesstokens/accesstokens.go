// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package accesstokens exposes a REST client for querying backend systems to get various types of
access tokens (oauth) for use in authentication.

These calls are of type "application/x-www-form-urlencoded".  This means we use url.Values to
represent arguments and then encode them into the POST body message.  We receive JSON in
return for the requests.  The request definition is defined in https://tools.ietf.org/html/rfc7521#section-4.2 .

Every call is a single round trip. Nothing is retried here; error replies are translated into
*errors.Error values using the mapping for the grant that was sent.
*/
package accesstokens

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/authority"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/internal/comm"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/internal/grant"
)

const (
	grantType     = "grant_type"
	deviceCode    = "device_code"
	clientID      = "client_id"
	clientInfo    = "client_info"
	clientInfoVal = "1"
	username      = "username"
	password      = "password"
	refreshToken  = "refresh_token"
)

type urlFormCaller interface {
	URLFormCall(ctx context.Context, endpoint string, headers http.Header, qv url.Values) (comm.Reply, error)
}

// Client represents the REST calls to get tokens from token generator backends.
type Client struct {
	// Comm provides the HTTP transport client.
	Comm urlFormCaller
}

// FromUsernamePassword uses a username and password to get an access token. If popAssertion is
// not empty it is sent as a client assertion proving possession of the device key.
func (c Client) FromUsernamePassword(ctx context.Context, authParameters authority.AuthParams, popAssertion string) (TokenResponse, error) {
	qv := url.Values{}
	qv.Set(grantType, grant.Password)
	qv.Set(username, authParameters.Username)
	qv.Set(password, authParameters.Password)
	qv.Set(clientID, authParameters.ClientID)
	qv.Set(clientInfo, clientInfoVal)
	if popAssertion != "" {
		qv.Set("client_assertion_type", grant.ClientAssertion)
		qv.Set("client_assertion", popAssertion)
	}
	addScopeQueryParam(qv, authParameters)

	return c.doTokenResp(ctx, errors.FlowUsernamePassword, authParameters, qv)
}

// FromRefreshToken uses a refresh token (for refreshing credentials) to get a new access token.
func (c Client) FromRefreshToken(ctx context.Context, authParams authority.AuthParams, rt string) (TokenResponse, error) {
	if rt == "" {
		return TokenResponse{}, errors.New(errors.RefreshTokenExpired, "no refresh token was provided")
	}
	qv := url.Values{}
	qv.Set(grantType, grant.RefreshToken)
	qv.Set(clientID, authParams.ClientID)
	qv.Set(clientInfo, clientInfoVal)
	qv.Set(refreshToken, rt)
	addScopeQueryParam(qv, authParams)

	return c.doTokenResp(ctx, errors.FlowRefreshToken, authParams, qv)
}

// DeviceCodeResult starts a device code flow and returns the code the user must enter.
func (c Client) DeviceCodeResult(ctx context.Context, authParameters authority.AuthParams) (DeviceCodeResult, error) {
	qv := url.Values{}
	qv.Set(clientID, authParameters.ClientID)
	addScopeQueryParam(qv, authParameters)

	requestedAt := time.Now()
	reply, err := c.Comm.URLFormCall(ctx, authParameters.Endpoints.DeviceCodeEndpoint, comm.CorrelationHeader(authParameters.CorrelationID), qv)
	if err != nil {
		return DeviceCodeResult{}, err
	}
	return DecodeDeviceCodeResult(reply.StatusCode, reply.Body, requestedAt, authParameters.ClientID, authParameters.Scopes)
}

// FromDeviceCodeResult polls the token endpoint once for the result of a device code flow.
// A flow still in progress is reported as an error of kind AuthorizationPending or SlowDown.
func (c Client) FromDeviceCodeResult(ctx context.Context, authParameters authority.AuthParams, deviceCodeResult DeviceCodeResult) (TokenResponse, error) {
	qv := url.Values{}
	qv.Set(grantType, grant.DeviceCode)
	qv.Set(deviceCode, deviceCodeResult.DeviceCode)
	qv.Set(clientID, authParameters.ClientID)
	qv.Set(clientInfo, clientInfoVal)
	addScopeQueryParam(qv, authParameters)

	return c.doTokenResp(ctx, errors.FlowDeviceCode, authParameters, qv)
}

// FromJWTBearer sends a signed MS-OAPXBC "request" JWT to the v1 token endpoint and decodes the
// reply as an ordinary token response. extra holds request specific form values.
func (c Client) FromJWTBearer(ctx context.Context, flow errors.Flow, authParameters authority.AuthParams, request string, extra url.Values) (TokenResponse, error) {
	if request == "" {
		return TokenResponse{}, errors.New(errors.ClaimsInvalid, "empty request JWT")
	}
	qv := url.Values{}
	for k, v := range extra {
		qv[k] = v
	}
	qv.Set(grantType, grant.JWTBearer)
	qv.Set("request", request)
	qv.Set(clientInfo, clientInfoVal)

	requestedAt := time.Now()
	reply, err := c.Comm.URLFormCall(ctx, authParameters.Endpoints.PRTEndpoint, comm.CorrelationHeader(authParameters.CorrelationID), qv)
	if err != nil {
		return TokenResponse{}, err
	}
	return DecodeTokenResponse(flow, reply.StatusCode, reply.Body, requestedAt, authParameters.Scopes)
}

func (c Client) doTokenResp(ctx context.Context, flow errors.Flow, authParameters authority.AuthParams, qv url.Values) (TokenResponse, error) {
	requestedAt := time.Now()
	reply, err := c.Comm.URLFormCall(ctx, authParameters.Endpoints.TokenEndpoint, comm.CorrelationHeader(authParameters.CorrelationID), qv)
	if err != nil {
		return TokenResponse{}, err
	}
	return DecodeTokenResponse(flow, reply.StatusCode, reply.Body, requestedAt, authParameters.Scopes)
}


// openid required to get an id token
// offline_access required to get a refresh token
// profile required to get the client_info field back
var detectDefaultScopes = map[string]bool{
	"openid":         true,
	"offline_access": true,
	"profile":        true,
}

// DefaultScopes are sent with every user token request.
var DefaultScopes = []string{"openid", "profile", "offline_access"}

// NormalizeScopes trims scopes, drops empty entries and the default scopes, and removes
// duplicates while preserving order.
func NormalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := map[string]bool{}
	for _, scope := range scopes {
		s := strings.TrimSpace(scope)
		if s == "" || detectDefaultScopes[s] || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func addScopeQueryParam(queryParams url.Values, authParameters authority.AuthParams) {
	scopes := make([]string, 0, len(authParameters.Scopes)+len(DefaultScopes))
	scopes = append(scopes, DefaultScopes...)
	scopes = append(scopes, NormalizeScopes(authParameters.Scopes)...)

	queryParams.Set("scope", strings.Join(scopes, " "))
}

// String implements fmt.Stringer without exposing credentials.
func (tr TokenResponse) String() string {
	return fmt.Sprintf("TokenResponse{TokenType: %s, ExpiresOn: %s, GrantedScopes: %v, HasRefreshToken: %t}",
		tr.TokenType, tr.ExpiresOn.Format(time.RFC3339), tr.GrantedScopes, tr.HasRefreshToken())
}
