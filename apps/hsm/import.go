// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package hsm

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/pkcs12"
)

// ImportPEM loads a PEM encoded certificate and PKCS #8 private key into the HSM. The first
// certificate in pemData must be the one issued for the key. Encrypted PEM blocks are decrypted
// with password.
func (s *Soft) ImportPEM(pemData []byte, password string) (KeyHandle, error) {
	certs, priv, err := certFromPEM(pemData, password)
	if err != nil {
		return KeyHandle{}, err
	}
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return KeyHandle{}, fmt.Errorf("%w: %T is not a crypto.Signer", ErrUnsupportedKey, priv)
	}
	return s.Import(signer, certs[0])
}

// ImportKeyPEM loads a PEM encoded private key that has no certificate, such as a transport key.
func (s *Soft) ImportKeyPEM(pemData []byte, password string) (KeyHandle, error) {
	_, priv, err := decodePEM(pemData, password)
	if err != nil {
		return KeyHandle{}, err
	}
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return KeyHandle{}, fmt.Errorf("%w: %T is not a crypto.Signer", ErrUnsupportedKey, priv)
	}
	return s.Import(signer, nil)
}

// ImportPKCS12 loads a PKCS #12 (PFX) bundle holding exactly one key and certificate.
func (s *Soft) ImportPKCS12(pfx []byte, password string) (KeyHandle, error) {
	priv, cert, err := pkcs12.Decode(pfx, password)
	if err != nil {
		return KeyHandle{}, fmt.Errorf("hsm: decoding pkcs12: %w", err)
	}
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return KeyHandle{}, fmt.Errorf("%w: %T is not a crypto.Signer", ErrUnsupportedKey, priv)
	}
	return s.Import(signer, cert)
}

func certFromPEM(pemData []byte, password string) ([]*x509.Certificate, crypto.PrivateKey, error) {
	certs, priv, err := decodePEM(pemData, password)
	if err != nil {
		return nil, nil, err
	}
	if len(certs) == 0 {
		return nil, nil, fmt.Errorf("hsm: no certificates found")
	}
	return certs, priv, nil
}

func decodePEM(pemData []byte, password string) ([]*x509.Certificate, crypto.PrivateKey, error) {
	var certs []*x509.Certificate
	var priv crypto.PrivateKey
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}

		//nolint:staticcheck
		if x509.IsEncryptedPEMBlock(block) {
			//nolint:staticcheck
			b, err := x509.DecryptPEMBlock(block, []byte(password))
			if err != nil {
				return nil, nil, fmt.Errorf("hsm: could not decrypt encrypted PEM block: %w", err)
			}
			block = &pem.Block{Type: block.Type, Bytes: b}
		}

		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("hsm: block labelled 'CERTIFICATE' could not be parsed by x509: %w", err)
			}
			certs = append(certs, cert)
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			if priv != nil {
				return nil, nil, fmt.Errorf("hsm: found multiple private key blocks")
			}
			var err error
			priv, err = parsePrivateKey(block)
			if err != nil {
				return nil, nil, fmt.Errorf("hsm: could not decode private key: %w", err)
			}
		}
		pemData = rest
	}

	if priv == nil {
		return nil, nil, fmt.Errorf("hsm: no private key found")
	}
	return certs, priv, nil
}

func parsePrivateKey(block *pem.Block) (crypto.PrivateKey, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	}
	return x509.ParsePKCS8PrivateKey(block.Bytes)
}
