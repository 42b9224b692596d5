// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package errors

// Flow identifies the request that produced an OAuth2 error response.
type Flow int

const (
	FlowUnknown Flow = iota
	FlowUsernamePassword
	FlowRefreshToken
	FlowDeviceAuthorization
	FlowDeviceCode
	FlowNonce
	FlowPRTRequest
	FlowPRTExchange
)

var flowNames = map[Flow]string{
	FlowUnknown:             "unknown",
	FlowUsernamePassword:    "username_password",
	FlowRefreshToken:        "refresh_token",
	FlowDeviceAuthorization: "device_authorization",
	FlowDeviceCode:          "device_code",
	FlowNonce:               "nonce",
	FlowPRTRequest:          "prt_request",
	FlowPRTExchange:         "prt_exchange",
}

func (f Flow) String() string {
	if s, ok := flowNames[f]; ok {
		return s
	}
	return "unknown"
}

// Codes the authority places in the "error" field.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidClient        = "invalid_client"
	CodeInvalidGrant         = "invalid_grant"
	CodeUnauthorizedClient   = "unauthorized_client"
	CodeInvalidScope         = "invalid_scope"
	CodeInteractionRequired  = "interaction_required"
	CodeConsentRequired      = "consent_required"
	CodeLoginRequired        = "login_required"
	CodeAuthorizationPending = "authorization_pending"
	CodeSlowDown             = "slow_down"
	CodeExpiredToken         = "expired_token"
	CodeAccessDenied         = "access_denied"
)

// AADSTS numeric codes found in "error_codes" that refine the OAuth2 code.
const (
	aadstsAssertionInvalid      = 50013
	aadstsMFARequired           = 50076
	aadstsMFARegistration       = 50079
	aadstsInvalidUserPassword   = 50126
	aadstsDeviceNotFound        = 700003
	aadstsDeviceDisabled        = 135011
	aadstsRefreshTokenExpired   = 700082
	aadstsConditionalAccess     = 53003
	aadstsDeviceAuthRequired    = 50097
	aadstsDeviceIdentityMissing = 50187
)

// interactionCodes are treated as InteractionRequired by every user facing flow.
var interactionCodes = map[string]Kind{
	CodeInteractionRequired: InteractionRequired,
	CodeConsentRequired:     InteractionRequired,
	CodeLoginRequired:       InteractionRequired,
}

// oauthCodes maps (flow, error code) to a Kind. Codes absent from a flow's table fall back to
// interactionCodes and then to ServiceError.
var oauthCodes = map[Flow]map[string]Kind{
	FlowUsernamePassword: {
		CodeInvalidGrant: InvalidCredentials,
	},
	FlowRefreshToken: {
		CodeInvalidGrant: RefreshTokenExpired,
	},
	FlowDeviceAuthorization: {
		CodeInvalidScope: ScopeDenied,
	},
	FlowDeviceCode: {
		CodeAuthorizationPending: AuthorizationPending,
		CodeSlowDown:             SlowDown,
		CodeExpiredToken:         ExpiredToken,
		CodeAccessDenied:         AccessDenied,
	},
	FlowNonce: {},
	FlowPRTRequest: {
		CodeInvalidGrant:  InvalidCredentials,
		CodeInvalidClient: DeviceNotRegistered,
	},
	FlowPRTExchange: {
		CodeInvalidGrant:       PrtExpired,
		CodeInvalidScope:       ScopeDenied,
		CodeUnauthorizedClient: ScopeDenied,
	},
}

// aadstsCodes refine the mapping by AADSTS error code. They take precedence over oauthCodes.
var aadstsCodes = map[Flow]map[int]Kind{
	FlowUsernamePassword: {
		aadstsMFARequired:         InteractionRequired,
		aadstsMFARegistration:     InteractionRequired,
		aadstsConditionalAccess:   InteractionRequired,
		aadstsInvalidUserPassword: InvalidCredentials,
	},
	FlowRefreshToken: {
		aadstsMFARequired:         InteractionRequired,
		aadstsConditionalAccess:   InteractionRequired,
		aadstsRefreshTokenExpired: RefreshTokenExpired,
	},
	FlowPRTRequest: {
		aadstsAssertionInvalid:      NonceExpired,
		aadstsDeviceNotFound:        DeviceNotRegistered,
		aadstsDeviceDisabled:        DeviceNotRegistered,
		aadstsDeviceIdentityMissing: DeviceNotRegistered,
		aadstsInvalidUserPassword:   InvalidCredentials,
		aadstsMFARequired:           InteractionRequired,
	},
	FlowPRTExchange: {
		aadstsDeviceNotFound:     DeviceNotRegistered,
		aadstsDeviceDisabled:     DeviceNotRegistered,
		aadstsDeviceAuthRequired: DeviceNotRegistered,
		aadstsConditionalAccess:  InteractionRequired,
	},
}

// KindForCode returns the Kind that code (refined by AADSTS errorCodes) maps to for flow.
func KindForCode(flow Flow, code string, errorCodes []int) Kind {
	if byNum, ok := aadstsCodes[flow]; ok {
		for _, c := range errorCodes {
			if k, ok := byNum[c]; ok {
				return k
			}
		}
	}
	if k, ok := oauthCodes[flow][code]; ok {
		return k
	}
	if flow == FlowNonce {
		return ServiceError
	}
	if k, ok := interactionCodes[code]; ok {
		return k
	}
	return ServiceError
}

// OAuth2ErrorBody is the standard error body returned by the authority's endpoints.
type OAuth2ErrorBody struct {
	Error            string `json:"error"`
	SubError         string `json:"suberror"`
	ErrorDescription string `json:"error_description"`
	ErrorCodes       []int  `json:"error_codes"`
	CorrelationID    string `json:"correlation_id"`
	Claims           string `json:"claims"`
	Interval         int    `json:"interval"`
}

// FromOAuth converts an error body received for flow into an *Error.
func FromOAuth(flow Flow, status int, body OAuth2ErrorBody) *Error {
	return &Error{
		Kind:          KindForCode(flow, body.Error, body.ErrorCodes),
		Code:          body.Error,
		SubCode:       body.SubError,
		Description:   body.ErrorDescription,
		ErrorCodes:    body.ErrorCodes,
		CorrelationID: body.CorrelationID,
		Interval:      body.Interval,
		StatusCode:    status,
	}
}
