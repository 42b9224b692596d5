// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package assertion

import (
	"sync/atomic"

	"github.com/himmelblau-idm/msal-go/apps/errors"
)

// Nonce is a server issued challenge that may be embedded in exactly one assertion.
type Nonce struct {
	value string
	used  atomic.Bool
}

// NewNonce wraps a value received from the nonce endpoint.
func NewNonce(value string) *Nonce {
	return &Nonce{value: value}
}

// Consumed reports whether the nonce has already been placed in an assertion.
func (n *Nonce) Consumed() bool {
	return n.used.Load()
}

// consume marks the nonce used and returns its value. A nil, empty or already used nonce is an
// error of kind ClaimsInvalid.
func (n *Nonce) consume() (string, error) {
	if n == nil || n.value == "" {
		return "", errors.New(errors.ClaimsInvalid, "assertion requires a nonce")
	}
	if !n.used.CompareAndSwap(false, true) {
		return "", errors.New(errors.ClaimsInvalid, "nonce has already been used")
	}
	return n.value, nil
}

func (n *Nonce) String() string {
	if n == nil {
		return "Nonce(nil)"
	}
	if n.Consumed() {
		return "Nonce(consumed)"
	}
	return "Nonce(unused)"
}
