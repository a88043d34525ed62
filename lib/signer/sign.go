// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Request describes one signing operation.
type Request struct {
	// PublicKey is the identity being signed for. The private key must
	// derive exactly this key.
	PublicKey ssh.PublicKey

	// Plaintext is the decrypted material: a private-key container, or
	// the passphrase for ProtectedKey. Borrowed, never retained.
	Plaintext []byte

	// ProtectedKey loads the passphrase-protected OpenSSH private key
	// that sits next to the ciphertext. It is called only when
	// Plaintext is not itself a key. Nil means there is none.
	ProtectedKey func() ([]byte, error)

	// Message is the data to sign.
	Message []byte

	// Flags are the agent signature flags from the request.
	Flags uint32
}

// Sign produces an SSH signature blob (string(format) || string(sig))
// for request. Every parsed private key is wiped before Sign returns,
// whatever the outcome.
func (r *Registry) Sign(request Request) ([]byte, error) {
	algorithm, err := r.Lookup(request.PublicKey.Type())
	if err != nil {
		return nil, err
	}

	privateKey, err := parsePrivateKey(request.Plaintext, request.ProtectedKey)
	if err != nil {
		return nil, err
	}
	defer algorithm.Wipe(privateKey)

	derived, err := algorithm.PublicKey(privateKey)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(derived.Marshal(), request.PublicKey.Marshal()) {
		return nil, fmt.Errorf("%w: decrypted key is %s, identity is %s",
			ErrKeyMismatch, ssh.FingerprintSHA256(derived), ssh.FingerprintSHA256(request.PublicKey))
	}

	signature, err := algorithm.Sign(privateKey, request.Message, request.Flags)
	if err != nil {
		return nil, err
	}
	return ssh.Marshal(signature), nil
}

// parsePrivateKey interprets plaintext as a private key, falling back
// to treating it as the passphrase for the key loadProtected returns.
func parsePrivateKey(plaintext []byte, loadProtected func() ([]byte, error)) (crypto.PrivateKey, error) {
	privateKey, err := ssh.ParseRawPrivateKey(plaintext)
	if err == nil {
		return privateKey, nil
	}

	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		// The ciphertext decrypted to a protected key; there is no
		// passphrase to try.
		return nil, fmt.Errorf("%w: decrypted key is itself passphrase protected", ErrMalformedKey)
	}

	if loadProtected == nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	protectedKey, loadErr := loadProtected()
	if loadErr != nil {
		return nil, fmt.Errorf("loading protected key: %w", loadErr)
	}
	if len(protectedKey) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	passphrase := trimLineEnding(plaintext)
	privateKey, err = ssh.ParseRawPrivateKeyWithPassphrase(protectedKey, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: unlocking protected key: %v", ErrMalformedKey, err)
	}
	return privateKey, nil
}

// trimLineEnding strips one trailing "\n" or "\r\n", which text editors
// and `echo` add to passphrase files before they are encrypted. The
// result aliases plaintext.
func trimLineEnding(plaintext []byte) []byte {
	plaintext = bytes.TrimSuffix(plaintext, []byte("\n"))
	return bytes.TrimSuffix(plaintext, []byte("\r"))
}
