// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package errors holds the error taxonomy returned by every token acquisition call.

All failures surface as an *Error carrying a Kind. Callers test for a kind with the standard
library's errors.Is against the exported sentinels:

	if errors.Is(err, msalerrors.ErrInvalidCredentials) {
		// prompt again
	}

or extract it with KindOf. OAuth2 "error" codes received from the authority are translated
into a Kind by an explicit table keyed by the Flow that issued the request, so the same wire
code can mean different things to different grants (invalid_grant is bad credentials for the
password grant but an expired refresh token for the refresh grant).
*/
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kylelemons/godebug/pretty"
)

var prettyConf = &pretty.Config{IncludeUnexported: false, SkipZeroFields: true, TrackCycles: true}

// Kind classifies an error so callers can choose a recovery action.
type Kind int

const (
	// KindUnknown is never produced by this module. It is the zero value.
	KindUnknown Kind = iota
	// InvalidCredentials means the authority rejected the username/password.
	InvalidCredentials
	// InteractionRequired means the authority demands an interactive or MFA flow.
	InteractionRequired
	// RefreshTokenExpired means a silent refresh is no longer possible.
	RefreshTokenExpired
	// AuthorizationPending means the device flow has not been completed yet.
	AuthorizationPending
	// SlowDown means the device flow is being polled too quickly.
	SlowDown
	// ExpiredToken is the raw "expired_token" device code poll result.
	ExpiredToken
	// AccessDenied is the raw "access_denied" device code poll result.
	AccessDenied
	// DeviceFlowExpired means the user did not complete the device flow in time.
	DeviceFlowExpired
	// UserDeclined means the user explicitly denied the device flow.
	UserDeclined
	// NonceExpired means a PRT request used a stale nonce.
	NonceExpired
	// PrtExpired means the primary refresh token can no longer be exchanged.
	PrtExpired
	// DeviceNotRegistered means the device lacks a valid join credential.
	DeviceNotRegistered
	// SigningFailed means the HSM could not produce a signature.
	SigningFailed
	// ClaimsInvalid means an assertion was missing a required claim or reused a nonce.
	ClaimsInvalid
	// ScopeDenied means the authority refused the requested scope.
	ScopeDenied
	// MalformedResponse means the authority returned a body that could not be decoded.
	MalformedResponse
	// TransportError means the HTTP round trip failed.
	TransportError
	// ServiceError is any other OAuth2 error returned by the authority.
	ServiceError
)

var kindNames = map[Kind]string{
	KindUnknown:          "Unknown",
	InvalidCredentials:   "InvalidCredentials",
	InteractionRequired:  "InteractionRequired",
	RefreshTokenExpired:  "RefreshTokenExpired",
	AuthorizationPending: "AuthorizationPending",
	SlowDown:             "SlowDown",
	ExpiredToken:         "ExpiredToken",
	AccessDenied:         "AccessDenied",
	DeviceFlowExpired:    "DeviceFlowExpired",
	UserDeclined:         "UserDeclined",
	NonceExpired:         "NonceExpired",
	PrtExpired:           "PrtExpired",
	DeviceNotRegistered:  "DeviceNotRegistered",
	SigningFailed:        "SigningFailed",
	ClaimsInvalid:        "ClaimsInvalid",
	ScopeDenied:          "ScopeDenied",
	MalformedResponse:    "MalformedResponse",
	TransportError:       "TransportError",
	ServiceError:         "ServiceError",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Retriable reports whether a caller may reasonably retry the same call without user action.
func (k Kind) Retriable() bool {
	switch k {
	case MalformedResponse, TransportError, AuthorizationPending, SlowDown, NonceExpired:
		return true
	}
	return false
}

// Sentinels for use with errors.Is. Matching is by Kind only.
var (
	ErrInvalidCredentials   = &Error{Kind: InvalidCredentials}
	ErrInteractionRequired  = &Error{Kind: InteractionRequired}
	ErrRefreshTokenExpired  = &Error{Kind: RefreshTokenExpired}
	ErrAuthorizationPending = &Error{Kind: AuthorizationPending}
	ErrSlowDown             = &Error{Kind: SlowDown}
	ErrExpiredToken         = &Error{Kind: ExpiredToken}
	ErrAccessDenied         = &Error{Kind: AccessDenied}
	ErrDeviceFlowExpired    = &Error{Kind: DeviceFlowExpired}
	ErrUserDeclined         = &Error{Kind: UserDeclined}
	ErrNonceExpired         = &Error{Kind: NonceExpired}
	ErrPrtExpired           = &Error{Kind: PrtExpired}
	ErrDeviceNotRegistered  = &Error{Kind: DeviceNotRegistered}
	ErrSigningFailed        = &Error{Kind: SigningFailed}
	ErrClaimsInvalid        = &Error{Kind: ClaimsInvalid}
	ErrScopeDenied          = &Error{Kind: ScopeDenied}
	ErrMalformedResponse    = &Error{Kind: MalformedResponse}
	ErrTransport            = &Error{Kind: TransportError}
	ErrService              = &Error{Kind: ServiceError}
)

// Error is the typed failure returned by all token operations.
type Error struct {
	Kind Kind
	// Code is the OAuth2 "error" value, when the failure came from the authority.
	Code string
	// SubCode is the AAD "suberror" value.
	SubCode       string
	Description   string
	ErrorCodes    []int
	CorrelationID string
	// Interval is the server supplied polling interval override (seconds) on slow_down.
	Interval int
	// StatusCode is the HTTP status of the response, if there was one.
	StatusCode int
	// Err is the underlying cause, if any.
	Err error
}

// New creates an *Error of kind k with a formatted description.
func New(k Kind, format string, a ...any) *Error {
	return &Error{Kind: k, Description: fmt.Sprintf(format, a...)}
}

// Wrap creates an *Error of kind k wrapping err. The description is the formatted message.
func Wrap(k Kind, err error, format string, a ...any) *Error {
	return &Error{Kind: k, Description: fmt.Sprintf(format, a...), Err: err}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Code != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Code)
		if e.SubCode != "" {
			sb.WriteString("/")
			sb.WriteString(e.SubCode)
		}
		sb.WriteString(")")
	}
	if e.Description != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Description)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Verbose returns the error along with the HTTP exchange, if the cause was a CallErr.
func (e *Error) Verbose() string {
	var ce CallErr
	if errors.As(e.Err, &ce) {
		return fmt.Sprintf("%s\n%s", e.Error(), ce.Verbose())
	}
	return e.Error()
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

type verboser interface {
	Verbose() string
}

// Verbose prints the most verbose error that the error message has.
func Verbose(err error) string {
	if v, ok := err.(verboser); ok {
		return v.Verbose()
	}
	return err.Error()
}

// CallErr represents an HTTP call error. Has a Verbose() method that allows getting the
// http.Request and Response objects. Implements error.
type CallErr struct {
	Req *http.Request
	// Resp contains response body
	Resp *http.Response
	Err  error
}

// Error implements error.Error().
func (e CallErr) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e CallErr) Unwrap() error {
	return e.Err
}

// Verbose prints a versbose error message with the request or response.
func (e CallErr) Verbose() string {
	if e.Resp != nil {
		resp := *e.Resp
		resp.Request = nil // This brings in a bunch of TLS crap we don't need
		resp.TLS = nil     // Same
		e.Resp = &resp
	}
	return fmt.Sprintf("%s:\nRequest:\n%s\nResponse:\n%s", e.Err, prettyConf.Sprint(e.Req), prettyConf.Sprint(e.Resp))
}
