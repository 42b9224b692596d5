// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestKindForCode(t *testing.T) {
	tests := []struct {
		desc       string
		flow       Flow
		code       string
		errorCodes []int
		want       Kind
	}{
		{desc: "password invalid_grant", flow: FlowUsernamePassword, code: CodeInvalidGrant, want: InvalidCredentials},
		{desc: "password mfa", flow: FlowUsernamePassword, code: CodeInvalidGrant, errorCodes: []int{50076}, want: InteractionRequired},
		{desc: "password mfa registration", flow: FlowUsernamePassword, code: CodeInvalidGrant, errorCodes: []int{50079}, want: InteractionRequired},
		{desc: "password bad password", flow: FlowUsernamePassword, code: CodeInvalidGrant, errorCodes: []int{50126}, want: InvalidCredentials},
		{desc: "password consent_required", flow: FlowUsernamePassword, code: CodeConsentRequired, want: InteractionRequired},
		{desc: "password login_required", flow: FlowUsernamePassword, code: CodeLoginRequired, want: InteractionRequired},
		{desc: "refresh invalid_grant", flow: FlowRefreshToken, code: CodeInvalidGrant, want: RefreshTokenExpired},
		{desc: "refresh interaction_required", flow: FlowRefreshToken, code: CodeInteractionRequired, want: InteractionRequired},
		{desc: "device pending", flow: FlowDeviceCode, code: CodeAuthorizationPending, want: AuthorizationPending},
		{desc: "device slow_down", flow: FlowDeviceCode, code: CodeSlowDown, want: SlowDown},
		{desc: "device expired_token", flow: FlowDeviceCode, code: CodeExpiredToken, want: ExpiredToken},
		{desc: "device access_denied", flow: FlowDeviceCode, code: CodeAccessDenied, want: AccessDenied},
		{desc: "device pending outside device flow", flow: FlowRefreshToken, code: CodeAuthorizationPending, want: ServiceError},
		{desc: "prt stale nonce", flow: FlowPRTRequest, code: CodeInvalidGrant, errorCodes: []int{50013}, want: NonceExpired},
		{desc: "prt device missing", flow: FlowPRTRequest, code: CodeInvalidRequest, errorCodes: []int{700003}, want: DeviceNotRegistered},
		{desc: "prt device disabled", flow: FlowPRTRequest, code: CodeInvalidGrant, errorCodes: []int{135011}, want: DeviceNotRegistered},
		{desc: "prt request bad password", flow: FlowPRTRequest, code: CodeInvalidGrant, want: InvalidCredentials},
		{desc: "prt exchange invalid_grant", flow: FlowPRTExchange, code: CodeInvalidGrant, want: PrtExpired},
		{desc: "prt exchange invalid_scope", flow: FlowPRTExchange, code: CodeInvalidScope, want: ScopeDenied},
		{desc: "nonce failure", flow: FlowNonce, code: CodeInteractionRequired, want: ServiceError},
		{desc: "unknown code", flow: FlowUsernamePassword, code: "temporarily_unavailable", want: ServiceError},
	}

	for _, test := range tests {
		got := KindForCode(test.flow, test.code, test.errorCodes)
		if got != test.want {
			t.Errorf("TestKindForCode(%s): got %v, want %v", test.desc, got, test.want)
		}
	}
}

func TestFromOAuth(t *testing.T) {
	body := OAuth2ErrorBody{
		Error:            CodeSlowDown,
		ErrorDescription: "AADSTS70000: slow down",
		ErrorCodes:       []int{70000},
		CorrelationID:    "corr",
		Interval:         12,
	}
	err := FromOAuth(FlowDeviceCode, http.StatusBadRequest, body)
	if err.Kind != SlowDown {
		t.Fatalf("TestFromOAuth: got kind %v, want SlowDown", err.Kind)
	}
	if err.Interval != 12 || err.StatusCode != http.StatusBadRequest || err.CorrelationID != "corr" {
		t.Errorf("TestFromOAuth: fields not carried over: %+v", err)
	}
	if !errors.Is(err, ErrSlowDown) {
		t.Errorf("TestFromOAuth: errors.Is(err, ErrSlowDown) == false")
	}
	if errors.Is(err, ErrAuthorizationPending) {
		t.Errorf("TestFromOAuth: errors.Is(err, ErrAuthorizationPending) == true")
	}
	if !strings.Contains(err.Error(), "slow_down") {
		t.Errorf("TestFromOAuth: error string %q does not name the code", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("acquire: %w", New(PrtExpired, "prt expired at %d", 10))
	if got := KindOf(wrapped); got != PrtExpired {
		t.Errorf("TestKindOf: got %v, want PrtExpired", got)
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("TestKindOf(plain): got %v, want KindUnknown", got)
	}
	if !errors.Is(wrapped, ErrPrtExpired) {
		t.Errorf("TestKindOf: errors.Is through fmt wrapping failed")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("tpm busy")
	err := Wrap(SigningFailed, cause, "sign %s", "assertion")
	if !errors.Is(err, cause) {
		t.Errorf("TestWrapUnwrap: cause not reachable through Unwrap")
	}
	if got := err.Error(); got != "SigningFailed: sign assertion: tpm busy" {
		t.Errorf("TestWrapUnwrap: got %q", got)
	}
}

func TestVerbose(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "https://login.microsoftonline.com/common/oauth2/v2.0/token", nil)
	ce := CallErr{Req: req, Err: errors.New("connection reset")}
	err := Wrap(TransportError, ce, "token request")

	if !strings.Contains(Verbose(err), "Request:") {
		t.Errorf("TestVerbose: Verbose() missing request dump: %s", Verbose(err))
	}
	if got := Verbose(errors.New("plain")); got != "plain" {
		t.Errorf("TestVerbose(plain): got %q", got)
	}
	var target CallErr
	if !errors.As(err, &target) {
		t.Errorf("TestVerbose: CallErr not reachable with errors.As")
	}
}

func TestRetriable(t *testing.T) {
	for _, k := range []Kind{TransportError, MalformedResponse, NonceExpired} {
		if !k.Retriable() {
			t.Errorf("TestRetriable: %v should be retriable", k)
		}
	}
	for _, k := range []Kind{InvalidCredentials, SigningFailed, PrtExpired, UserDeclined} {
		if k.Retriable() {
			t.Errorf("TestRetriable: %v should not be retriable", k)
		}
	}
}
