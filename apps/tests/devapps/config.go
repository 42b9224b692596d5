// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"github.com/kelseyhightower/envconfig"
)

// Config is read from MSAL_* environment variables.
type Config struct {
	Sample        string   `envconfig:"SAMPLE" default:"devicecode"`
	ClientID      string   `envconfig:"CLIENT_ID" required:"true"`
	Tenant        string   `envconfig:"TENANT" required:"true"`
	AuthorityHost string   `envconfig:"AUTHORITY_HOST" default:"login.microsoftonline.com"`
	Scopes        []string `envconfig:"SCOPES" default:"User.Read"`
	Username      string   `envconfig:"USERNAME"`
	Password      string   `envconfig:"PASSWORD"`
	Debug         bool     `envconfig:"DEBUG"`
	OpenBrowser   bool     `envconfig:"OPEN_BROWSER" default:"true"`
	MetricsAddr   string   `envconfig:"METRICS_ADDR"`

	// DeviceCertFile is a PKCS #12 bundle holding the device key and certificate.
	DeviceCertFile     string `envconfig:"DEVICE_CERT_FILE"`
	DeviceCertPassword string `envconfig:"DEVICE_CERT_PASSWORD"`
	// TransportKeyFile is a PEM encoded RSA transport key.
	TransportKeyFile string `envconfig:"TRANSPORT_KEY_FILE"`

	// When KeyVaultURL is set the device certificate is read from the secret KeyVaultSecret
	// instead of DeviceCertFile. The vault is accessed with a token redeemed from
	// KeyVaultRefreshToken.
	KeyVaultURL          string `envconfig:"KEYVAULT_URL"`
	KeyVaultSecret       string `envconfig:"KEYVAULT_SECRET" default:"device-cert"`
	KeyVaultRefreshToken string `envconfig:"KEYVAULT_REFRESH_TOKEN"`
}

// LoadConfig reads the sample configuration from the environment.
func LoadConfig() (Config, error) {
	var c Config
	err := envconfig.Process("msal", &c)
	return c, err
}
