// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package hsm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

const pkcs12ContentType = "application/x-pkcs12"

// SecretGetter fetches a secret from Azure Key Vault. *azsecrets.Client implements it.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// NewKeyVaultClient returns a Key Vault secrets client for vaultURL authenticated by cred.
func NewKeyVaultClient(vaultURL string, cred azcore.TokenCredential) (*azsecrets.Client, error) {
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("hsm: creating key vault client for %s: %w", vaultURL, err)
	}
	return client, nil
}

// ImportFromKeyVault loads a device credential stored in Key Vault as a certificate backed secret
// (a base64 encoded, passwordless PKCS #12 bundle). An empty version selects the latest.
func (s *Soft) ImportFromKeyVault(ctx context.Context, vault SecretGetter, name, version string) (KeyHandle, error) {
	resp, err := vault.GetSecret(ctx, name, version, nil)
	if err != nil {
		return KeyHandle{}, fmt.Errorf("hsm: fetching secret %q: %w", name, err)
	}
	if resp.Value == nil {
		return KeyHandle{}, fmt.Errorf("hsm: secret %q has no value", name)
	}
	if resp.ContentType != nil && *resp.ContentType != pkcs12ContentType {
		return KeyHandle{}, fmt.Errorf("hsm: secret %q has content type %q, want %q", name, *resp.ContentType, pkcs12ContentType)
	}
	pfx, err := base64.StdEncoding.DecodeString(*resp.Value)
	if err != nil {
		return KeyHandle{}, fmt.Errorf("hsm: secret %q is not base64: %w", name, err)
	}
	return s.ImportPKCS12(pfx, "")
}
