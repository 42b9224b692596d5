// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package assertion

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// SessionKeyLabel is the KDF label used to derive per request signing keys from a PRT
// session key.
const SessionKeyLabel = "AzureAD-SecureConversation"

// DeriveKey implements the NIST SP 800-108 KDF in counter mode with HMAC-SHA256 as the PRF,
// producing a 256 bit key: K(1) = HMAC(key, [1]_32 || label || 0x00 || context || [256]_32).
func DeriveKey(key []byte, label string, context []byte) []byte {
	const outBits = 256

	mac := hmac.New(sha256.New, key)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], 1)
	mac.Write(buf[:])
	mac.Write([]byte(label))
	mac.Write([]byte{0})
	mac.Write(context)
	binary.BigEndian.PutUint32(buf[:], outBits)
	mac.Write(buf[:])
	return mac.Sum(nil)
}
