// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package hsm

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

type softKey struct {
	signer crypto.Signer
	cert   *x509.Certificate
}

// Soft is an in-memory HSM. It is safe for concurrent use.
type Soft struct {
	mu   sync.RWMutex
	keys map[string]softKey
}

// NewSoft creates an empty Soft HSM.
func NewSoft() *Soft {
	return &Soft{keys: map[string]softKey{}}
}

// Import stores signer (and optionally the certificate issued for it) and returns its handle.
func (s *Soft) Import(signer crypto.Signer, cert *x509.Certificate) (KeyHandle, error) {
	switch pub := signer.Public().(type) {
	case *rsa.PublicKey:
	case *ecdsa.PublicKey:
		if pub.Curve != elliptic.P256() {
			return KeyHandle{}, fmt.Errorf("%w: ecdsa curve %s", ErrUnsupportedKey, pub.Curve.Params().Name)
		}
	default:
		return KeyHandle{}, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}

	h := NewKeyHandle(uuid.New().String())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = map[string]softKey{}
	}
	s.keys[h.id] = softKey{signer: signer, cert: cert}
	return h, nil
}

// GenerateRSA creates a new RSA key with a self-signed certificate for commonName.
func (s *Soft) GenerateRSA(commonName string, bits int) (KeyHandle, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyHandle{}, fmt.Errorf("hsm: generating rsa key: %w", err)
	}
	cert, err := selfSign(commonName, priv)
	if err != nil {
		return KeyHandle{}, err
	}
	return s.Import(priv, cert)
}

// Remove deletes the key referenced by h.
func (s *Soft) Remove(h KeyHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, h.id)
}

func (s *Soft) key(h KeyHandle) (softKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[h.id]
	if !ok {
		return softKey{}, fmt.Errorf("%w: %s", ErrUnknownKey, h)
	}
	return k, nil
}

// Sign implements HSM.Sign.
func (s *Soft) Sign(ctx context.Context, h KeyHandle, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := s.key(h)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := k.signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("hsm: sign: %w", err)
	}
	if _, ok := k.signer.Public().(*ecdsa.PublicKey); ok {
		return ecdsaRaw(sig, 32)
	}
	return sig, nil
}

// PublicKey implements HSM.PublicKey.
func (s *Soft) PublicKey(ctx context.Context, h KeyHandle) (crypto.PublicKey, error) {
	k, err := s.key(h)
	if err != nil {
		return nil, err
	}
	return k.signer.Public(), nil
}

// Certificate implements CertificateSource.
func (s *Soft) Certificate(ctx context.Context, h KeyHandle) (*x509.Certificate, error) {
	k, err := s.key(h)
	if err != nil {
		return nil, err
	}
	if k.cert == nil {
		return nil, fmt.Errorf("hsm: no certificate stored for %s", h)
	}
	return k.cert, nil
}

// Decrypt implements Decrypter.
func (s *Soft) Decrypt(ctx context.Context, h KeyHandle, ciphertext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := s.key(h)
	if err != nil {
		return nil, err
	}
	dec, ok := k.signer.(crypto.Decrypter)
	if !ok {
		return nil, fmt.Errorf("%w: %T cannot decrypt", ErrUnsupportedKey, k.signer)
	}
	if _, ok := dec.Public().(*rsa.PublicKey); !ok {
		return nil, fmt.Errorf("%w: %T cannot decrypt", ErrUnsupportedKey, dec.Public())
	}
	pt, err := dec.Decrypt(rand.Reader, ciphertext, &rsa.OAEPOptions{Hash: crypto.SHA1})
	if err != nil {
		return nil, fmt.Errorf("hsm: decrypt: %w", err)
	}
	return pt, nil
}

// ecdsaRaw converts an ASN.1 DER ECDSA signature into the fixed size r||s form used by JWS.
func ecdsaRaw(der []byte, size int) ([]byte, error) {
	var (
		r, sv = new(big.Int), new(big.Int)
		inner cryptobyte.String
	)
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(sv) ||
		!inner.Empty() {
		return nil, fmt.Errorf("hsm: malformed ecdsa signature")
	}
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	sv.FillBytes(out[size:])
	return out, nil
}

func selfSign(commonName string, priv crypto.Signer) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, fmt.Errorf("hsm: serial: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, priv.Public(), priv)
	if err != nil {
		return nil, fmt.Errorf("hsm: self-signing certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}
