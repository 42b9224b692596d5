// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package assertion

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/hsm"
)

// Signer selects the algorithm and key used to sign an assertion.
type Signer interface {
	// prepare sets the signing method and headers of token and returns the key to sign it with.
	prepare(ctx context.Context, token *jwt.Token) (any, error)
	// hasDeviceIdentity reports whether the signed token will carry the device certificate.
	hasDeviceIdentity() bool
}

// hsmMethod is a jwt.SigningMethod whose private key operation happens inside an HSM.
type hsmMethod struct {
	alg    string
	verify jwt.SigningMethod
}

var (
	hsmRS256 = &hsmMethod{alg: "RS256", verify: jwt.SigningMethodRS256}
	hsmES256 = &hsmMethod{alg: "ES256", verify: jwt.SigningMethodES256}
)

// hsmKey is the key handed to hsmMethod.Sign.
type hsmKey struct {
	ctx    context.Context
	hsm    hsm.HSM
	handle hsm.KeyHandle
}

func (m *hsmMethod) Alg() string {
	return m.alg
}

// Sign implements jwt.SigningMethod.Sign(). key must be an hsmKey.
func (m *hsmMethod) Sign(signingString string, key interface{}) ([]byte, error) {
	k, ok := key.(hsmKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	return k.hsm.Sign(k.ctx, k.handle, []byte(signingString))
}

// Verify implements jwt.SigningMethod.Verify(). key is the public key.
func (m *hsmMethod) Verify(signingString string, sig []byte, key interface{}) error {
	return m.verify.Verify(signingString, sig, key)
}

// DeviceSigner signs with a key held by an HSM. If the HSM is a hsm.CertificateSource the
// certificate is sent in the x5c header.
type DeviceSigner struct {
	HSM hsm.HSM
	Key hsm.KeyHandle
}

func (s DeviceSigner) hasDeviceIdentity() bool {
	_, ok := s.HSM.(hsm.CertificateSource)
	return ok && !s.Key.IsZero()
}

func (s DeviceSigner) prepare(ctx context.Context, token *jwt.Token) (any, error) {
	if s.HSM == nil {
		return nil, errors.New(errors.SigningFailed, "no HSM configured")
	}
	pub, err := s.HSM.PublicKey(ctx, s.Key)
	if err != nil {
		return nil, errors.Wrap(errors.SigningFailed, err, "reading public key of %s", s.Key)
	}
	switch pub.(type) {
	case *rsa.PublicKey:
		token.Method = hsmRS256
	case *ecdsa.PublicKey:
		token.Method = hsmES256
	default:
		return nil, errors.New(errors.SigningFailed, "unsupported device key type %T", pub)
	}
	token.Header["alg"] = token.Method.Alg()

	if cs, ok := s.HSM.(hsm.CertificateSource); ok {
		cert, err := cs.Certificate(ctx, s.Key)
		if err != nil {
			return nil, errors.Wrap(errors.DeviceNotRegistered, err, "reading device certificate")
		}
		token.Header["x5c"] = []string{base64.StdEncoding.EncodeToString(cert.Raw)}
	}
	return hsmKey{ctx: ctx, hsm: s.HSM, handle: s.Key}, nil
}

// ContextLen is the size of the random KDF context sent in the "ctx" header.
const ContextLen = 24

// SessionKeySigner signs with a key derived from a PRT session key. A fresh KDF context is
// drawn for every assertion.
type SessionKeySigner struct {
	key []byte
}

// NewSessionKeySigner returns a signer for session key material. The slice is not copied.
func NewSessionKeySigner(key []byte) SessionKeySigner {
	return SessionKeySigner{key: key}
}

func (SessionKeySigner) hasDeviceIdentity() bool {
	return false
}

func (s SessionKeySigner) prepare(ctx context.Context, token *jwt.Token) (any, error) {
	if len(s.key) == 0 {
		return nil, errors.New(errors.SigningFailed, "empty session key")
	}
	kdfCtx := make([]byte, ContextLen)
	if _, err := rand.Read(kdfCtx); err != nil {
		return nil, errors.Wrap(errors.SigningFailed, err, "generating kdf context")
	}
	token.Method = jwt.SigningMethodHS256
	token.Header["alg"] = jwt.SigningMethodHS256.Alg()
	token.Header["ctx"] = base64.StdEncoding.EncodeToString(kdfCtx)
	return DeriveKey(s.key, SessionKeyLabel, kdfCtx), nil
}

// VerifySessionKeyAssertion checks an assertion produced by a SessionKeySigner for key and
// returns its claims.
func VerifySessionKeyAssertion(raw string, key []byte) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		enc, ok := t.Header["ctx"].(string)
		if !ok {
			return nil, fmt.Errorf("missing ctx header")
		}
		kdfCtx, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("ctx header: %w", err)
		}
		return DeriveKey(key, SessionKeyLabel, kdfCtx), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
