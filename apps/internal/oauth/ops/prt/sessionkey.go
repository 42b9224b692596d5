// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package prt

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/hsm"
	"github.com/himmelblau-idm/msal-go/apps/internal/slog"
)

// SessionKey is the proof of possession key issued with a PRT. It is bound to the PRT it was
// issued with, the client that requested it and the authority host. The key material is never
// printed, logged or serialized.
type SessionKey struct {
	key      []byte
	prtHash  [sha256.Size]byte
	clientID string
	host     string
}

func newSessionKey(key []byte, refreshToken, clientID, host string) *SessionKey {
	return &SessionKey{
		key:      key,
		prtHash:  sha256.Sum256([]byte(refreshToken)),
		clientID: clientID,
		host:     host,
	}
}

// checkBinding returns ClaimsInvalid unless k was issued with refreshToken to clientID by host.
func (k *SessionKey) checkBinding(refreshToken, clientID, host string) error {
	if k == nil || len(k.key) == 0 {
		return errors.New(errors.ClaimsInvalid, "primary refresh token has no session key")
	}
	h := sha256.Sum256([]byte(refreshToken))
	if subtle.ConstantTimeCompare(h[:], k.prtHash[:]) != 1 {
		return errors.New(errors.ClaimsInvalid, "session key was not issued with this primary refresh token")
	}
	if k.clientID != clientID {
		return errors.New(errors.ClaimsInvalid, "session key is bound to client %s, not %s", k.clientID, clientID)
	}
	if k.host != host {
		return errors.New(errors.ClaimsInvalid, "session key is bound to authority %s, not %s", k.host, host)
	}
	return nil
}

func (k *SessionKey) String() string {
	return "SessionKey([REDACTED])"
}

func (k *SessionKey) GoString() string {
	return k.String()
}

// LogValue implements slog.LogValuer.
func (k *SessionKey) LogValue() slog.Value {
	return slog.RedactedValue()
}

// MarshalJSON implements json.Marshaler.
func (k *SessionKey) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// Format implements fmt.Formatter so that verbs such as %x cannot reach the key material.
func (k *SessionKey) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, k.String())
}

// transportDecrypter unwraps a JWE content encryption key with the device transport key. It
// records the unwrapped key, which is the PRT session key.
type transportDecrypter struct {
	ctx context.Context
	hsm hsm.Decrypter
	key hsm.KeyHandle

	cek []byte
}

// DecryptKey implements jose.OpaqueKeyDecrypter.
func (d *transportDecrypter) DecryptKey(encryptedKey []byte, header jose.Header) ([]byte, error) {
	cek, err := d.hsm.Decrypt(d.ctx, d.key, encryptedKey)
	if err != nil {
		return nil, err
	}
	d.cek = cek
	return cek, nil
}

var (
	sessionKeyAlgs = []jose.KeyAlgorithm{jose.RSA_OAEP}
	sessionKeyEncs = []jose.ContentEncryption{jose.A256GCM, jose.A128GCM, jose.A128CBC_HS256, jose.A256CBC_HS512}
)

// decryptSessionKey recovers the session key carried in the encrypted key of jwe.
func decryptSessionKey(ctx context.Context, cred DeviceCredential, jwe string) ([]byte, error) {
	dec, ok := cred.HSM.(hsm.Decrypter)
	if !ok {
		return nil, errors.New(errors.DeviceNotRegistered, "HSM cannot decrypt with the transport key")
	}
	obj, err := jose.ParseEncrypted(jwe, sessionKeyAlgs, sessionKeyEncs)
	if err != nil {
		return nil, errors.Wrap(errors.MalformedResponse, err, "session_key_jwe")
	}
	td := &transportDecrypter{ctx: ctx, hsm: dec, key: cred.TransportKey}
	// The payload of session_key_jwe is not meaningful; only the unwrapped key is kept.
	if _, err := obj.Decrypt(td); err != nil && td.cek == nil {
		return nil, errors.Wrap(errors.SigningFailed, err, "decrypting session key with the transport key")
	}
	if len(td.cek) == 0 {
		return nil, errors.New(errors.MalformedResponse, "session_key_jwe carries an empty key")
	}
	return td.cek, nil
}
