// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"crypto"
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Ed25519 signs with ssh-ed25519 keys (RFC 8709). Signatures are
// deterministic; the agent flags are ignored.
type Ed25519 struct{}

func (Ed25519) KeyType() string { return ssh.KeyAlgoED25519 }

func (Ed25519) CheckPublicKey(publicKey ssh.PublicKey) error {
	if publicKey.Type() != ssh.KeyAlgoED25519 {
		return fmt.Errorf("%w: %s is not %s", ErrAlgorithmMismatch, publicKey.Type(), ssh.KeyAlgoED25519)
	}
	cryptoKey, ok := publicKey.(ssh.CryptoPublicKey)
	if !ok {
		return fmt.Errorf("%w: public key exposes no crypto key", ErrMalformedKey)
	}
	raw, ok := cryptoKey.CryptoPublicKey().(ed25519.PublicKey)
	if !ok || len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: ed25519 public key has wrong size", ErrMalformedKey)
	}
	return nil
}

func (e Ed25519) Sign(privateKey crypto.PrivateKey, message []byte, flags uint32) (*ssh.Signature, error) {
	key, err := e.key(privateKey)
	if err != nil {
		return nil, err
	}
	return &ssh.Signature{
		Format: ssh.KeyAlgoED25519,
		Blob:   ed25519.Sign(key, message),
	}, nil
}

func (e Ed25519) PublicKey(privateKey crypto.PrivateKey) (ssh.PublicKey, error) {
	key, err := e.key(privateKey)
	if err != nil {
		return nil, err
	}
	return ssh.NewPublicKey(key.Public())
}

func (e Ed25519) Wipe(privateKey crypto.PrivateKey) {
	switch key := privateKey.(type) {
	case ed25519.PrivateKey:
		clear(key)
	case *ed25519.PrivateKey:
		if key != nil {
			clear(*key)
		}
	}
}

// key normalizes the two shapes x/crypto/ssh returns: OpenSSH
// containers parse to *ed25519.PrivateKey, PKCS#8 to the value type.
func (Ed25519) key(privateKey crypto.PrivateKey) (ed25519.PrivateKey, error) {
	var key ed25519.PrivateKey
	switch typed := privateKey.(type) {
	case ed25519.PrivateKey:
		key = typed
	case *ed25519.PrivateKey:
		if typed == nil {
			return nil, fmt.Errorf("%w: nil ed25519 key", ErrMalformedKey)
		}
		key = *typed
	default:
		return nil, fmt.Errorf("%w: got %T, want ed25519", ErrAlgorithmMismatch, privateKey)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: ed25519 private key is %d bytes", ErrMalformedKey, len(key))
	}
	return key, nil
}
