// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/himmelblau-idm/msal-go/apps/public"
	"github.com/pkg/browser"
)

func acquireTokenDeviceCode(ctx context.Context, config Config, options []public.Option) {
	app, err := public.New(config.ClientID, config.Tenant, config.AuthorityHost, options...)
	if err != nil {
		log.Fatal(err)
	}

	devCode, err := app.InitiateDeviceFlow(ctx, config.Scopes)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(devCode.Result.Message)
	if config.OpenBrowser {
		if err := browser.OpenURL(devCode.Result.VerificationURI); err != nil {
			log.Printf("could not open a browser: %s", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Until(devCode.Result.ExpiresOn))
	defer cancel()
	result, err := devCode.AuthenticationResult(ctx)
	if err != nil {
		log.Fatalf("got error while waiting for user to input the device code: %s", err)
	}
	fmt.Println("Signed in as " + result.Account.PreferredUsername)

	// the refresh token can now be redeemed without user interaction
	result, err = app.AcquireTokenSilent(ctx, config.Scopes, result.RefreshToken)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("Access token expires " + result.ExpiresOn.Format(time.RFC3339))
}
