// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package grant holds types of grants issued by authorization services.
package grant

const (
	Password     = "password"
	RefreshToken = "refresh_token"
	DeviceCode   = "urn:ietf:params:oauth:grant-type:device_code"
	// JWTBearer is used by MS-OAPXBC requests that carry a signed "request" JWT.
	JWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	// SrvChallenge requests a server nonce.
	SrvChallenge    = "srv_challenge"
	ClientAssertion = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)
