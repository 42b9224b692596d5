// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package accesstokens

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/authority"
)

// DefaultInterval is the device code polling interval used when the authority omits one.
const DefaultInterval = 5

// Seconds is a JSON number of seconds that the authority sometimes sends as a string.
type Seconds struct {
	value int64
	set   bool
}

func (s *Seconds) UnmarshalJSON(b []byte) error {
	str := string(b)
	if str == "null" {
		return nil
	}
	str = strings.Trim(str, `"`)
	v, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return fmt.Errorf("%q is not a number of seconds", string(b))
	}
	s.value = v
	s.set = true
	return nil
}

// MaxSeconds is the largest number of seconds a time.Duration can hold.
const MaxSeconds = math.MaxInt64 / int64(time.Second)

// Value returns the number of seconds and whether the field was present.
func (s Seconds) Value() (int64, bool) {
	return s.value, s.set
}

// inRange reports whether s is present and converts to a time.Duration without overflow.
func (s Seconds) inRange() bool {
	return s.set && s.value >= 0 && s.value <= MaxSeconds
}

// TokenResponseJSONPayload is the wire form of a token endpoint response.
type TokenResponseJSONPayload struct {
	authority.OAuthResponseBase

	AccessToken  string  `json:"access_token"`
	TokenType    string  `json:"token_type"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    Seconds `json:"expires_in"`
	ExtExpiresIn Seconds `json:"ext_expires_in"`
	Foci         string  `json:"foci"`
	Scope        string  `json:"scope"`
	IDToken      string  `json:"id_token"`
	ClientInfo   string  `json:"client_info"`
}

// ClientInfo is the decoded client_info field: the home object and tenant of the account.
type ClientInfo struct {
	UID  uuid.UUID
	UTID uuid.UUID
	Raw  string
}

// IsZero reports whether no client_info was returned.
func (c ClientInfo) IsZero() bool {
	return c.Raw == ""
}

// HomeAccountID returns "uid.utid", or "" when client info is absent.
func (c ClientInfo) HomeAccountID() string {
	if c.IsZero() {
		return ""
	}
	return c.UID.String() + "." + c.UTID.String()
}

// NewClientInfo decodes a base64url encoded {"uid": ..., "utid": ...} document.
func NewClientInfo(raw string) (ClientInfo, error) {
	if raw == "" {
		return ClientInfo{}, nil
	}
	b, err := decodeSegment(raw)
	if err != nil {
		return ClientInfo{}, fmt.Errorf("client_info is not base64: %w", err)
	}
	var payload struct {
		UID  string `json:"uid"`
		UTID string `json:"utid"`
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return ClientInfo{}, fmt.Errorf("client_info is not JSON: %w", err)
	}
	uid, err := uuid.Parse(payload.UID)
	if err != nil {
		return ClientInfo{}, fmt.Errorf("client_info uid: %w", err)
	}
	utid, err := uuid.Parse(payload.UTID)
	if err != nil {
		return ClientInfo{}, fmt.Errorf("client_info utid: %w", err)
	}
	return ClientInfo{UID: uid, UTID: utid, Raw: raw}, nil
}

// IDToken consists of all the information used to validate a user.
// https://docs.microsoft.com/azure/active-directory/develop/id-tokens .
type IDToken struct {
	PreferredUsername string `json:"preferred_username,omitempty"`
	Name              string `json:"name,omitempty"`
	Oid               string `json:"oid,omitempty"`
	TenantID          string `json:"tid,omitempty"`
	Puid              string `json:"puid,omitempty"`
	TenantRegionScope string `json:"tenant_region_scope,omitempty"`
	UPN               string `json:"upn,omitempty"`
	Email             string `json:"email,omitempty"`
	jwt.RegisteredClaims

	RawToken string `json:"-"`
}

// NewIDToken decodes the claims of an id_token. The signature is not verified; the token was
// received directly from the authority over TLS.
func NewIDToken(raw string) (IDToken, error) {
	var idToken IDToken
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &idToken); err != nil {
		return IDToken{}, fmt.Errorf("id token returned from server is invalid: %w", err)
	}
	idToken.RawToken = raw
	return idToken, nil
}

// IsZero indicates if the IDToken is the zero value.
func (i IDToken) IsZero() bool {
	return i.RawToken == ""
}

// LocalAccountID extracts an account's local account ID from an ID token.
func (i IDToken) LocalAccountID() string {
	if i.Oid != "" {
		return i.Oid
	}
	return i.Subject
}

// TokenResponse is the information that is returned from a token endpoint during a token acquisition flow.
type TokenResponse struct {
	AccessToken    string
	TokenType      string
	RefreshToken   string
	IDToken        IDToken
	ClientInfo     ClientInfo
	FamilyID       string
	ExpiresIn      int64
	ExpiresOn      time.Time
	ExtExpiresOn   time.Time
	GrantedScopes  []string
	DeclinedScopes []string
}

// HasRefreshToken checks if the TokenResponse has an refresh token.
func (tr TokenResponse) HasRefreshToken() bool {
	return len(tr.RefreshToken) > 0
}

// DecodeTokenResponse interprets an authority reply to a token request issued by flow at
// requestedAt for requestedScopes. A 200 reply with access_token and expires_in is a success.
// A reply carrying an "error" field is mapped to an *errors.Error for flow. Anything else is a
// MalformedResponse.
func DecodeTokenResponse(flow errors.Flow, status int, body []byte, requestedAt time.Time, requestedScopes []string) (TokenResponse, error) {
	payload := TokenResponseJSONPayload{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return TokenResponse{}, malformed(status, err, "token response is not valid JSON")
	}
	if payload.Error != "" {
		return TokenResponse{}, errors.FromOAuth(flow, status, payload.OAuthResponseBase)
	}
	if status != http.StatusOK {
		return TokenResponse{}, malformed(status, nil, "token endpoint returned status %d without an error code", status)
	}
	switch {
	case payload.AccessToken == "":
		return TokenResponse{}, malformed(status, nil, "response is missing access_token")
	case !payload.ExpiresIn.set:
		return TokenResponse{}, malformed(status, nil, "response is missing expires_in")
	case payload.ExpiresIn.value < 0:
		return TokenResponse{}, malformed(status, nil, "response has negative expires_in %d", payload.ExpiresIn.value)
	case payload.ExpiresIn.value > MaxSeconds:
		return TokenResponse{}, malformed(status, nil, "response has out of range expires_in %d", payload.ExpiresIn.value)
	}

	clientInfo, err := NewClientInfo(payload.ClientInfo)
	if err != nil {
		return TokenResponse{}, malformed(status, err, "bad client_info")
	}

	// ID tokens aren't always returned; that is not a reportable error condition.
	var idToken IDToken
	if payload.IDToken != "" {
		idToken, err = NewIDToken(payload.IDToken)
		if err != nil {
			return TokenResponse{}, malformed(status, err, "bad id_token")
		}
	}

	tr := TokenResponse{
		AccessToken:  payload.AccessToken,
		TokenType:    payload.TokenType,
		RefreshToken: payload.RefreshToken,
		IDToken:      idToken,
		ClientInfo:   clientInfo,
		FamilyID:     payload.Foci,
		ExpiresIn:    payload.ExpiresIn.value,
		ExpiresOn:    requestedAt.Add(time.Duration(payload.ExpiresIn.value) * time.Second),
	}
	if payload.ExtExpiresIn.inRange() {
		tr.ExtExpiresOn = requestedAt.Add(time.Duration(payload.ExtExpiresIn.value) * time.Second)
	}

	if len(strings.TrimSpace(payload.Scope)) == 0 {
		// Per OAuth spec, if no scopes are returned, the response should be treated as if all scopes were granted
		// Link to spec: https://tools.ietf.org/html/rfc6749#section-3.3
		tr.GrantedScopes = requestedScopes
	} else {
		tr.GrantedScopes = strings.Fields(payload.Scope)
		tr.DeclinedScopes = findDeclinedScopes(requestedScopes, tr.GrantedScopes)
	}
	return tr, nil
}

func findDeclinedScopes(requestedScopes []string, grantedScopes []string) []string {
	var declined []string
	grantedMap := map[string]bool{}
	for _, s := range grantedScopes {
		grantedMap[strings.ToLower(s)] = true
	}
	for _, r := range requestedScopes {
		// ".default" expands to the statically configured permissions and is never echoed back.
		if strings.HasSuffix(r, "/.default") || detectDefaultScopes[r] {
			continue
		}
		if !grantedMap[strings.ToLower(r)] {
			declined = append(declined, r)
		}
	}
	return declined
}

// DeviceCodeResponse represents the HTTP response received from the device code endpoint
type DeviceCodeResponse struct {
	authority.OAuthResponseBase

	UserCode                string  `json:"user_code"`
	DeviceCode              string  `json:"device_code"`
	VerificationURI         string  `json:"verification_uri"`
	VerificationURIComplete string  `json:"verification_uri_complete"`
	ExpiresIn               Seconds `json:"expires_in"`
	Interval                Seconds `json:"interval"`
	Message                 string  `json:"message"`
}

// DeviceCodeResult stores the response from the STS device code endpoint.
type DeviceCodeResult struct {
	// UserCode is the code the user needs to provide when authentication at the verification URI.
	UserCode string
	// DeviceCode is the code used in the access token request.
	DeviceCode string
	// VerificationURI is the the URL where user can authenticate.
	VerificationURI string
	// VerificationURIComplete embeds the user code, when the authority provides it.
	VerificationURIComplete string
	// ExpiresOn is the expiration time of device code.
	ExpiresOn time.Time
	// Interval is the interval, in seconds, at which the STS should be polled at.
	Interval int
	// Message is the message which should be displayed to the user.
	Message string
	// ClientID is the UUID issued by the authorization server for your application.
	ClientID string
	// Scopes is the OpenID scopes used to request access a protected API.
	Scopes []string
}

func (dcr DeviceCodeResult) String() string {
	return fmt.Sprintf("UserCode: (%v)\nURL: (%v)\nMessage: (%v)\n", dcr.UserCode, dcr.VerificationURI, dcr.Message)
}

// DecodeDeviceCodeResult interprets the reply of the device authorization endpoint.
func DecodeDeviceCodeResult(status int, body []byte, requestedAt time.Time, clientID string, scopes []string) (DeviceCodeResult, error) {
	resp := DeviceCodeResponse{}
	if err := json.Unmarshal(body, &resp); err != nil {
		return DeviceCodeResult{}, malformed(status, err, "device code response is not valid JSON")
	}
	if resp.Error != "" {
		return DeviceCodeResult{}, errors.FromOAuth(errors.FlowDeviceAuthorization, status, resp.OAuthResponseBase)
	}
	if status != http.StatusOK {
		return DeviceCodeResult{}, malformed(status, nil, "device code endpoint returned status %d without an error code", status)
	}
	switch "" {
	case resp.DeviceCode:
		return DeviceCodeResult{}, malformed(status, nil, "response is missing device_code")
	case resp.UserCode:
		return DeviceCodeResult{}, malformed(status, nil, "response is missing user_code")
	case resp.VerificationURI:
		return DeviceCodeResult{}, malformed(status, nil, "response is missing verification_uri")
	}
	if !resp.ExpiresIn.inRange() {
		return DeviceCodeResult{}, malformed(status, nil, "response has missing or out of range expires_in")
	}
	interval := DefaultInterval
	if resp.Interval.set && resp.Interval.value > 0 {
		if resp.Interval.value > MaxSeconds {
			return DeviceCodeResult{}, malformed(status, nil, "response has out of range interval %d", resp.Interval.value)
		}
		interval = int(resp.Interval.value)
	}
	return DeviceCodeResult{
		UserCode:                resp.UserCode,
		DeviceCode:              resp.DeviceCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		ExpiresOn:               requestedAt.Add(time.Duration(resp.ExpiresIn.value) * time.Second),
		Interval:                interval,
		Message:                 resp.Message,
		ClientID:                clientID,
		Scopes:                  scopes,
	}, nil
}

func malformed(status int, err error, format string, a ...any) error {
	e := errors.Wrap(errors.MalformedResponse, err, format, a...)
	e.StatusCode = status
	return e
}

// decodeSegment decodes base64url data with or without padding.
func decodeSegment(data string) ([]byte, error) {
	data = strings.TrimRight(data, "=")
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return base64.RawStdEncoding.DecodeString(data)
	}
	return b, nil
}
