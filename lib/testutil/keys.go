// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Ed25519Key is a generated test keypair with its on-disk encodings.
type Ed25519Key struct {
	Private ed25519.PrivateKey
	Public  ssh.PublicKey

	// AuthorizedKey is the single-line public key file contents,
	// including trailing comment and newline.
	AuthorizedKey []byte

	// OpenSSH is the unprotected OpenSSH private key container.
	OpenSSH []byte
}

// GenerateEd25519 creates a fresh ed25519 keypair. comment is attached
// to both the public key line and the private key container.
func GenerateEd25519(t testing.TB, comment string) *Ed25519Key {
	t.Helper()

	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating ed25519 key: %v", err)
	}
	sshPublic, err := ssh.NewPublicKey(public)
	if err != nil {
		t.Fatalf("converting public key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(private, comment)
	if err != nil {
		t.Fatalf("marshaling private key: %v", err)
	}

	authorized := ssh.MarshalAuthorizedKey(sshPublic)
	if comment != "" {
		// MarshalAuthorizedKey ends with "\n"; insert the comment before it.
		authorized = append(authorized[:len(authorized)-1], []byte(" "+comment+"\n")...)
	}

	return &Ed25519Key{
		Private:       private,
		Public:        sshPublic,
		AuthorizedKey: authorized,
		OpenSSH:       pem.EncodeToMemory(block),
	}
}

// ProtectedOpenSSH returns the private key as an OpenSSH container
// encrypted with passphrase.
func (k *Ed25519Key) ProtectedOpenSSH(t testing.TB, passphrase string) []byte {
	t.Helper()
	block, err := ssh.MarshalPrivateKeyWithPassphrase(k.Private, "", []byte(passphrase))
	if err != nil {
		t.Fatalf("marshaling protected private key: %v", err)
	}
	return pem.EncodeToMemory(block)
}

// WriteFile writes data to directory/name with mode 0600 and returns
// the full path.
func WriteFile(t testing.TB, directory, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(directory, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
