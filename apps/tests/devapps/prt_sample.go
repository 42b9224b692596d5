// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/himmelblau-idm/msal-go/apps/hsm"
	"github.com/himmelblau-idm/msal-go/apps/public"
)

// loadDevice imports the keys of a joined device into a software HSM.
func loadDevice(ctx context.Context, config Config, options []public.Option) (public.DeviceCredential, error) {
	soft := hsm.NewSoft()

	var deviceKey hsm.KeyHandle
	var err error
	if config.KeyVaultURL != "" {
		vault, err := keyVaultClient(config, options)
		if err != nil {
			return public.DeviceCredential{}, err
		}
		deviceKey, err = soft.ImportFromKeyVault(ctx, vault, config.KeyVaultSecret, "")
		if err != nil {
			return public.DeviceCredential{}, err
		}
	} else {
		pfx, err := os.ReadFile(config.DeviceCertFile)
		if err != nil {
			return public.DeviceCredential{}, err
		}
		deviceKey, err = soft.ImportPKCS12(pfx, config.DeviceCertPassword)
		if err != nil {
			return public.DeviceCredential{}, err
		}
	}

	pemData, err := os.ReadFile(config.TransportKeyFile)
	if err != nil {
		return public.DeviceCredential{}, err
	}
	transportKey, err := soft.ImportKeyPEM(pemData, "")
	if err != nil {
		return public.DeviceCredential{}, err
	}
	return public.DeviceCredential{HSM: soft, DeviceKey: deviceKey, TransportKey: transportKey}, nil
}

func acquirePRT(ctx context.Context, config Config, options []public.Option) {
	cred, err := loadDevice(ctx, config, options)
	if err != nil {
		log.Fatal(err)
	}
	app, err := public.New(config.ClientID, config.Tenant, config.AuthorityHost, append(options, public.WithDeviceCredential(cred))...)
	if err != nil {
		log.Fatal(err)
	}

	prt, err := app.AcquireUserPRTByUsernamePassword(ctx, config.Username, config.Password)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("PRT for tenant %s expires %s\n", prt.TenantID, prt.ExpiresOn)

	result, err := app.AcquireTokenByPRT(ctx, config.Scopes, prt)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("Access token is " + result.AccessToken)
}
