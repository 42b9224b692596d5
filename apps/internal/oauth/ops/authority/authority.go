// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package authority describes the Microsoft identity platform authority that tokens are
// requested from: its host and tenant, the endpoints derived from them and the parameters
// that accompany every request.
package authority

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/himmelblau-idm/msal-go/apps/errors"
)

const (
	tokenEndpoint      = "https://%s/%s/oauth2/v2.0/token"
	deviceCodeEndpoint = "https://%s/%s/oauth2/v2.0/devicecode"
	// MS-OAPXBC endpoints use the v1 path.
	prtEndpoint   = "https://%s/%s/oauth2/token"
	nonceEndpoint = "https://%s/common/oauth2/token"

	DefaultHost = "login.microsoftonline.com"
)

var aadTrustedHostList = map[string]bool{
	"login.windows.net":            true, // Microsoft Azure Worldwide - Used in validation scenarios where host is not this list
	"login.chinacloudapi.cn":       true, // Microsoft Azure China
	"login.microsoftonline.de":     true, // Microsoft Azure Blackforest
	"login-us.microsoftonline.com": true, // Microsoft Azure US Government - Legacy
	"login.microsoftonline.us":     true, // Microsoft Azure US Government
	"login.microsoftonline.com":    true, // Microsoft Azure Worldwide
	"login.cloudgovapi.us":         true, // Microsoft Azure US Government
}

// TrustedHost checks if an AAD host is trusted/valid.
func TrustedHost(host string) bool {
	return aadTrustedHostList[host]
}

// OAuthResponseBase is the error portion of every authority response.
type OAuthResponseBase = errors.OAuth2ErrorBody

// Info consists of information about the authority.
type Info struct {
	// Host is the authority host, possibly with a port, e.g. "login.microsoftonline.com".
	Host   string
	Tenant string
	// CanonicalAuthorityURI is "https://{host}/{tenant}/".
	CanonicalAuthorityURI string
}

// NewInfo validates authorityHost and tenant and creates an Info. authorityHost may be a bare
// host ("login.microsoftonline.com") or an https URL ("https://login.microsoftonline.com/").
func NewInfo(authorityHost, tenant string) (Info, error) {
	host, err := FormatHost(authorityHost)
	if err != nil {
		return Info{}, err
	}
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return Info{}, fmt.Errorf("tenant cannot be empty")
	}
	if strings.ContainsAny(tenant, "/?#") {
		return Info{}, fmt.Errorf("tenant %q is not a single path segment", tenant)
	}
	return Info{
		Host:                  host,
		Tenant:                tenant,
		CanonicalAuthorityURI: fmt.Sprintf("https://%s/%s/", host, tenant),
	}, nil
}

// FormatHost reduces authorityHost to "host[:port]". Only the https scheme is accepted and the
// URL may not carry a path other than "/".
func FormatHost(authorityHost string) (string, error) {
	s := strings.TrimSpace(authorityHost)
	if s == "" {
		return DefaultHost, nil
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("authority host %q is not valid: %w", authorityHost, err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("authority host %q must use https", authorityHost)
	}
	if u.Host == "" {
		return "", fmt.Errorf("authority host %q has no host", authorityHost)
	}
	if p := strings.Trim(u.Path, "/"); p != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("authority host %q must not contain a path, query or fragment", authorityHost)
	}
	return strings.ToLower(u.Host), nil
}

// Endpoints are the URLs used by token requests.
type Endpoints struct {
	TokenEndpoint      string
	DeviceCodeEndpoint string
	// PRTEndpoint receives PRT requests and PRT exchanges.
	PRTEndpoint   string
	NonceEndpoint string
}

// NewEndpoints creates the Endpoints for info.
func NewEndpoints(info Info) Endpoints {
	return Endpoints{
		TokenEndpoint:      fmt.Sprintf(tokenEndpoint, info.Host, info.Tenant),
		DeviceCodeEndpoint: fmt.Sprintf(deviceCodeEndpoint, info.Host, info.Tenant),
		PRTEndpoint:        fmt.Sprintf(prtEndpoint, info.Host, info.Tenant),
		NonceEndpoint:      fmt.Sprintf(nonceEndpoint, info.Host),
	}
}

// AuthorizationType represents the type of token flow.
type AuthorizationType int

// These are all the types of token flows.
const (
	ATUnknown AuthorizationType = iota
	ATUsernamePassword
	ATDeviceCode
	ATRefreshTokenExchange
	ATPRTRequest
	ATPRTExchange
)

func (a AuthorizationType) String() string {
	switch a {
	case ATUsernamePassword:
		return "UsernamePassword"
	case ATDeviceCode:
		return "DeviceCode"
	case ATRefreshTokenExchange:
		return "RefreshTokenExchange"
	case ATPRTRequest:
		return "PRTRequest"
	case ATPRTExchange:
		return "PRTExchange"
	}
	return "Unknown"
}

// AuthParams represents the parameters used for authorization for token acquisition.
// It is passed by value; each call works on its own copy.
type AuthParams struct {
	AuthorityInfo     Info
	CorrelationID     string
	Endpoints         Endpoints
	ClientID          string
	Username          string
	Password          string
	Scopes            []string
	AuthorizationType AuthorizationType
}

// NewAuthParams creates an authorization parameters object.
func NewAuthParams(clientID string, authorityInfo Info) AuthParams {
	return AuthParams{
		ClientID:      clientID,
		AuthorityInfo: authorityInfo,
		Endpoints:     NewEndpoints(authorityInfo),
		CorrelationID: uuid.New().String(),
	}
}

// WithCorrelationID returns a copy of p with a fresh correlation id.
func (p AuthParams) WithCorrelationID() AuthParams {
	p.CorrelationID = uuid.New().String()
	return p
}
