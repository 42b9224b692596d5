// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/himmelblau-idm/msal-go/apps/hsm"
	"github.com/himmelblau-idm/msal-go/apps/public"
)

// refreshCredential is an azcore.TokenCredential that redeems a refresh token for every request.
type refreshCredential struct {
	app          public.Client
	refreshToken string
}

func (c *refreshCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	result, err := c.app.AcquireTokenSilent(ctx, opts.Scopes, c.refreshToken)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	if result.RefreshToken != "" {
		c.refreshToken = result.RefreshToken
	}
	return azcore.AccessToken{Token: result.AccessToken, ExpiresOn: result.ExpiresOn}, nil
}

func keyVaultClient(config Config, options []public.Option) (*azsecrets.Client, error) {
	if config.KeyVaultRefreshToken == "" {
		return nil, fmt.Errorf("MSAL_KEYVAULT_REFRESH_TOKEN is required with MSAL_KEYVAULT_URL")
	}
	app, err := public.New(config.ClientID, config.Tenant, config.AuthorityHost, options...)
	if err != nil {
		return nil, err
	}
	return hsm.NewKeyVaultClient(config.KeyVaultURL, &refreshCredential{app: app, refreshToken: config.KeyVaultRefreshToken})
}
