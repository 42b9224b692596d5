// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package assertion builds the signed JWTs sent to the authority: the proof of possession for the
password grant, the PRT request and the PRT exchange. Every assertion carries a server nonce that
is consumed when the assertion is built.
*/
package assertion

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/himmelblau-idm/msal-go/apps/errors"
)

// Kind is the purpose of an assertion. It decides which claims are required.
type Kind int

const (
	PasswordProofOfPossession Kind = iota + 1
	PRTRequest
	PRTExchange
)

func (k Kind) String() string {
	switch k {
	case PasswordProofOfPossession:
		return "PasswordProofOfPossession"
	case PRTRequest:
		return "PRTRequest"
	case PRTExchange:
		return "PRTExchange"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// NonceClaim is the claim the nonce is placed in.
const NonceClaim = "request_nonce"

// Request describes an assertion to build. Claims is not modified.
type Request struct {
	Kind   Kind
	Claims jwt.MapClaims
	Nonce  *Nonce
	Signer Signer
}

// Builder produces compact JWS assertions.
type Builder struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (b Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Build validates the claims for req.Kind, consumes the nonce and signs the assertion.
// Missing claims or an unusable nonce return ClaimsInvalid; signer failures return SigningFailed.
func (b Builder) Build(ctx context.Context, req Request) (string, error) {
	if req.Signer == nil {
		return "", errors.New(errors.SigningFailed, "no signer for %s assertion", req.Kind)
	}
	if err := validate(req); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	nonce, err := req.Nonce.consume()
	if err != nil {
		return "", err
	}

	claims := make(jwt.MapClaims, len(req.Claims)+3)
	for k, v := range req.Claims {
		claims[k] = v
	}
	claims[NonceClaim] = nonce
	claims["jti"] = uuid.New().String()
	if _, ok := claims["iat"]; !ok {
		claims["iat"] = b.now().Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	key, err := req.Signer.prepare(ctx, token)
	if err != nil {
		return "", asSigningErr(err)
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", asSigningErr(err)
	}
	return signed, nil
}

var required = map[Kind][]string{
	PasswordProofOfPossession: {"iss", "sub", "aud", "exp"},
	PRTRequest:                {"client_id", "grant_type"},
	PRTExchange:               {"refresh_token", "scope"},
}

func validate(req Request) error {
	names, ok := required[req.Kind]
	if !ok {
		return errors.New(errors.ClaimsInvalid, "unknown assertion kind %s", req.Kind)
	}
	for _, name := range names {
		if !present(req.Claims, name) {
			return errors.New(errors.ClaimsInvalid, "%s assertion is missing claim %q", req.Kind, name)
		}
	}
	if req.Kind == PRTRequest {
		if !present(req.Claims, "username") && !present(req.Claims, "refresh_token") {
			return errors.New(errors.ClaimsInvalid, "PRTRequest assertion needs a username or refresh_token claim")
		}
		if !req.Signer.hasDeviceIdentity() {
			return errors.New(errors.ClaimsInvalid, "PRTRequest assertion must be signed by a device certificate")
		}
	}
	if req.Nonce == nil || req.Nonce.value == "" {
		return errors.New(errors.ClaimsInvalid, "%s assertion requires a nonce", req.Kind)
	}
	return nil
}

func present(claims jwt.MapClaims, name string) bool {
	v, ok := claims[name]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

func asSigningErr(err error) error {
	if errors.KindOf(err) != errors.KindUnknown {
		return err
	}
	return errors.Wrap(errors.SigningFailed, err, "signing assertion")
}
