// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/himmelblau-idm/msal-go/apps/public"
)

func acquireByUsernamePasswordPublic(ctx context.Context, config Config, options []public.Option) {
	app, err := public.New(config.ClientID, config.Tenant, config.AuthorityHost, options...)
	if err != nil {
		log.Fatal(err)
	}
	result, err := app.AcquireTokenByUsernamePassword(ctx, config.Scopes, config.Username, config.Password)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("Access token is " + result.AccessToken)

	// an oauth2.TokenSource keeps redeeming the newest refresh token
	ts := app.TokenSource(ctx, config.Scopes, result.RefreshToken)
	tok, err := ts.Token()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("Refreshed token expires " + tok.Expiry.String())
}
