// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package public

import (
	"context"

	"github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/prt"
)

// DeviceCredential references the device and transport keys of a joined device.
type DeviceCredential = prt.DeviceCredential

// PrimaryRefreshToken is a device bound refresh token and its session key. It is only usable
// with the client that acquired it.
type PrimaryRefreshToken = prt.PrimaryRefreshToken

func (pca Client) requireDevice() error {
	if pca.cred.IsZero() {
		return errors.New(errors.DeviceNotRegistered, "client has no device credential, see WithDeviceCredential")
	}
	return nil
}

// AcquireUserPRTByUsernamePassword requests a primary refresh token for a user with their password.
func (pca Client) AcquireUserPRTByUsernamePassword(ctx context.Context, username, password string) (PrimaryRefreshToken, error) {
	if err := pca.requireDevice(); err != nil {
		return PrimaryRefreshToken{}, err
	}
	return pca.token.PRT(ctx, pca.params(nil), pca.cred, prt.PasswordSubject(username, password))
}

// AcquireUserPRTByRefreshToken requests a primary refresh token for the user of refreshToken.
func (pca Client) AcquireUserPRTByRefreshToken(ctx context.Context, refreshToken string) (PrimaryRefreshToken, error) {
	if err := pca.requireDevice(); err != nil {
		return PrimaryRefreshToken{}, err
	}
	if refreshToken == "" {
		return PrimaryRefreshToken{}, errors.New(errors.RefreshTokenExpired, "no refresh token was provided")
	}
	return pca.token.PRT(ctx, pca.params(nil), pca.cred, prt.RefreshTokenSubject(refreshToken))
}

// AcquireTokenByPRT exchanges p for an access token to scopes. p can be exchanged repeatedly
// until it expires.
func (pca Client) AcquireTokenByPRT(ctx context.Context, scopes []string, p PrimaryRefreshToken) (AuthResult, error) {
	if err := pca.requireDevice(); err != nil {
		return AuthResult{}, err
	}
	ap := pca.params(scopes)
	return pca.result(pca.token.ExchangePRT(ctx, ap, p, ap.Scopes))
}
