// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"crypto"
	"fmt"
	"sort"

	"golang.org/x/crypto/ssh"
)

// Algorithm implements one SSH key type.
type Algorithm interface {
	// KeyType is the SSH key-type name, e.g. "ssh-ed25519".
	KeyType() string

	// CheckPublicKey validates a public key read from disk.
	CheckPublicKey(publicKey ssh.PublicKey) error

	// Sign signs message with privateKey, the value returned by
	// ssh.ParseRawPrivateKey. flags are the agent signature flags.
	// Returns ErrAlgorithmMismatch if privateKey is of another type.
	Sign(privateKey crypto.PrivateKey, message []byte, flags uint32) (*ssh.Signature, error)

	// PublicKey derives the SSH public key from privateKey.
	PublicKey(privateKey crypto.PrivateKey) (ssh.PublicKey, error)

	// Wipe overwrites the secret parts of privateKey.
	Wipe(privateKey crypto.PrivateKey)
}

// Registry maps key-type names to algorithms. A Registry is populated
// at startup and read-only afterwards, so it is safe to share across
// sessions without locking.
type Registry struct {
	algorithms map[string]Algorithm
}

// NewRegistry returns a registry holding the given algorithms. Panics
// on a duplicate key type.
func NewRegistry(algorithms ...Algorithm) *Registry {
	registry := &Registry{algorithms: make(map[string]Algorithm, len(algorithms))}
	for _, algorithm := range algorithms {
		registry.Register(algorithm)
	}
	return registry
}

// Default returns a registry with every built-in algorithm.
func Default() *Registry {
	return NewRegistry(Ed25519{})
}

// Register adds an algorithm. Panics if its key type is already
// registered.
func (r *Registry) Register(algorithm Algorithm) {
	keyType := algorithm.KeyType()
	if _, exists := r.algorithms[keyType]; exists {
		panic(fmt.Sprintf("signer.Registry: duplicate algorithm for key type %q", keyType))
	}
	r.algorithms[keyType] = algorithm
}

// Lookup returns the algorithm for keyType.
func (r *Registry) Lookup(keyType string) (Algorithm, error) {
	algorithm, ok := r.algorithms[keyType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, keyType)
	}
	return algorithm, nil
}

// KeyTypes lists the registered key types in sorted order.
func (r *Registry) KeyTypes() []string {
	keyTypes := make([]string, 0, len(r.algorithms))
	for keyType := range r.algorithms {
		keyTypes = append(keyTypes, keyType)
	}
	sort.Strings(keyTypes)
	return keyTypes
}

// CheckPublicKey reports whether publicKey is of a registered type and
// passes that algorithm's validation.
func (r *Registry) CheckPublicKey(publicKey ssh.PublicKey) error {
	algorithm, err := r.Lookup(publicKey.Type())
	if err != nil {
		return err
	}
	return algorithm.CheckPublicKey(publicKey)
}
