// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signer

import "errors"

var (
	// ErrMalformedKey is returned when decrypted material is neither a
	// parseable private key nor a working passphrase.
	ErrMalformedKey = errors.New("malformed private key")

	// ErrAlgorithmMismatch is returned when the parsed private key is not
	// of the identity's key type.
	ErrAlgorithmMismatch = errors.New("private key algorithm does not match identity")

	// ErrKeyMismatch is returned when the private key's public half is not
	// the identity's public key.
	ErrKeyMismatch = errors.New("private key does not belong to identity")

	// ErrUnsupportedKeyType is returned for key types with no registered
	// Algorithm.
	ErrUnsupportedKeyType = errors.New("unsupported key type")
)
