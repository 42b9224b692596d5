// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package hsm defines the hardware security module capability used to sign device and session
assertions. Private key material never leaves the HSM; callers hold opaque KeyHandle values.

A TPM backed implementation lives outside this module. Soft is an in-memory implementation for
tests and hosts without a TPM. Keys can be loaded into it from a crypto.Signer, PEM or PKCS#12
data, or a PKCS#12 secret stored in Azure Key Vault.
*/
package hsm

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
)

// ErrUnknownKey is returned when a KeyHandle does not refer to a key held by the HSM.
var ErrUnknownKey = errors.New("hsm: unknown key handle")

// ErrUnsupportedKey is returned when a key type cannot perform the requested operation.
var ErrUnsupportedKey = errors.New("hsm: unsupported key type")

// KeyHandle is an opaque reference to a key held by an HSM.
type KeyHandle struct {
	id string
}

// NewKeyHandle creates a KeyHandle from an implementation specific identifier.
// HSM implementations use this to mint handles for the keys they hold.
func NewKeyHandle(id string) KeyHandle {
	return KeyHandle{id: id}
}

// ID returns the implementation specific identifier of the handle.
func (h KeyHandle) ID() string {
	return h.id
}

// IsZero reports whether h was never assigned.
func (h KeyHandle) IsZero() bool {
	return h.id == ""
}

func (h KeyHandle) String() string {
	return "KeyHandle(" + h.id + ")"
}

// HSM signs payloads with keys it holds.
type HSM interface {
	// Sign returns the signature of payload. The HSM hashes payload with SHA-256. RSA keys
	// produce PKCS #1 v1.5 signatures (RS256), P-256 keys produce the raw r||s form (ES256).
	Sign(ctx context.Context, key KeyHandle, payload []byte) ([]byte, error)
	// PublicKey returns the public half of key.
	PublicKey(ctx context.Context, key KeyHandle) (crypto.PublicKey, error)
}

// Decrypter is implemented by HSMs that can unwrap data encrypted to one of their keys.
// It is required to recover PRT session keys.
type Decrypter interface {
	// Decrypt decrypts ciphertext that was encrypted with RSA-OAEP (SHA-1) to key.
	Decrypt(ctx context.Context, key KeyHandle, ciphertext []byte) ([]byte, error)
}

// CertificateSource is implemented by HSMs that keep the certificate issued for a key.
type CertificateSource interface {
	Certificate(ctx context.Context, key KeyHandle) (*x509.Certificate, error)
}
