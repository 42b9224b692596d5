// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package fake provides fake implementations of the oauth interfaces for testing.
package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	msalerrors "github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/accesstokens"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/assertion"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/authority"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/prt"
)

// AccessTokens is a fake implementation of oauth.AccessTokens.
type AccessTokens struct {
	mu sync.Mutex

	// Err, when set, makes every call fail.
	Err bool
	// Result is returned on success.
	Result accesstokens.TokenResponse
	// DeviceCode is returned by DeviceCodeResult.
	DeviceCode accesstokens.DeviceCodeResult
	// Polls are the errors returned by successive FromDeviceCodeResult calls before success.
	Polls []error

	// Calls records the authority parameters of every call.
	Calls []authority.AuthParams
	// PoP records the proof of possession assertion passed to FromUsernamePassword.
	PoP string
	// RefreshToken records the token passed to FromRefreshToken.
	RefreshToken string
}

func (f *AccessTokens) record(ap authority.AuthParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, ap)
	if f.Err {
		return errors.New("error")
	}
	return nil
}

func (f *AccessTokens) FromUsernamePassword(ctx context.Context, authParameters authority.AuthParams, popAssertion string) (accesstokens.TokenResponse, error) {
	f.PoP = popAssertion
	if err := f.record(authParameters); err != nil {
		return accesstokens.TokenResponse{}, err
	}
	return f.Result, nil
}

func (f *AccessTokens) FromRefreshToken(ctx context.Context, authParameters authority.AuthParams, refreshToken string) (accesstokens.TokenResponse, error) {
	f.RefreshToken = refreshToken
	if err := f.record(authParameters); err != nil {
		return accesstokens.TokenResponse{}, err
	}
	return f.Result, nil
}

func (f *AccessTokens) DeviceCodeResult(ctx context.Context, authParameters authority.AuthParams) (accesstokens.DeviceCodeResult, error) {
	if err := f.record(authParameters); err != nil {
		return accesstokens.DeviceCodeResult{}, err
	}
	dc := f.DeviceCode
	if dc.ExpiresOn.IsZero() {
		dc.ExpiresOn = time.Now().Add(15 * time.Minute)
	}
	return dc, nil
}

func (f *AccessTokens) FromDeviceCodeResult(ctx context.Context, authParameters authority.AuthParams, deviceCodeResult accesstokens.DeviceCodeResult) (accesstokens.TokenResponse, error) {
	if err := f.record(authParameters); err != nil {
		return accesstokens.TokenResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Polls) > 0 {
		err := f.Polls[0]
		f.Polls = f.Polls[1:]
		return accesstokens.TokenResponse{}, err
	}
	return f.Result, nil
}

// PRT is a fake implementation of oauth.PRT.
type PRT struct {
	// NonceErr, RequestErr and ExchangeErr make the matching call fail.
	NonceErr    bool
	RequestErr  bool
	ExchangeErr bool

	Token  prt.PrimaryRefreshToken
	Result accesstokens.TokenResponse

	// Nonces counts Nonce calls.
	Nonces int
	// Subject records the subject of the last Request.
	Subject prt.Subject
	// Scopes records the scopes of the last Exchange.
	Scopes []string
}

func (f *PRT) Nonce(ctx context.Context, authParameters authority.AuthParams) (*assertion.Nonce, error) {
	f.Nonces++
	if f.NonceErr {
		return nil, msalerrors.New(msalerrors.ServiceError, "nonce unavailable")
	}
	return assertion.NewNonce("fake-nonce"), nil
}

func (f *PRT) Request(ctx context.Context, authParameters authority.AuthParams, cred prt.DeviceCredential, subject prt.Subject) (prt.PrimaryRefreshToken, error) {
	f.Subject = subject
	if f.RequestErr {
		return prt.PrimaryRefreshToken{}, msalerrors.New(msalerrors.DeviceNotRegistered, "device not found")
	}
	return f.Token, nil
}

func (f *PRT) Exchange(ctx context.Context, authParameters authority.AuthParams, p prt.PrimaryRefreshToken, scopes []string) (accesstokens.TokenResponse, error) {
	f.Scopes = scopes
	if f.ExchangeErr {
		return accesstokens.TokenResponse{}, msalerrors.New(msalerrors.PrtExpired, "prt expired")
	}
	return f.Result, nil
}
