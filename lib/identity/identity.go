// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/ssh"
)

// PublicKeyExtension is the suffix of public key files.
const PublicKeyExtension = "pub"

// maxPublicKeySize bounds how much of a .pub file is read. A public key
// line for any supported type is well under 1 KiB.
const maxPublicKeySize = 16 * 1024

// ErrNotFound is returned by Find when no identity has the requested
// public key.
var ErrNotFound = errors.New("identity not found")

// Identity is one discovered key triple. All fields are public data.
type Identity struct {
	// Name is the base file name N.
	Name string

	// PublicKey is the parsed contents of N.pub.
	PublicKey ssh.PublicKey

	// Blob is the wire encoding of PublicKey, compared byte-for-byte
	// against sign requests.
	Blob []byte

	// Comment is the authorized_keys comment, or Name when the line
	// has none.
	Comment string

	// KeyPath is the path of N.
	KeyPath string

	// CiphertextPath is the path of N.<ext>, handed to the decryption
	// backend.
	CiphertextPath string
}

// KeyType returns the SSH key-type name of the identity.
func (i *Identity) KeyType() string {
	return i.PublicKey.Type()
}

// Fingerprint returns the SHA256 fingerprint in OpenSSH format.
func (i *Identity) Fingerprint() string {
	return ssh.FingerprintSHA256(i.PublicKey)
}

// KeyChecker accepts or rejects public keys by type. signer.Registry
// satisfies it.
type KeyChecker interface {
	CheckPublicKey(publicKey ssh.PublicKey) error
}

// Scanner finds identities in a directory.
type Scanner struct {
	// Directory is the key directory, typically ~/.ssh.
	Directory string

	// CiphertextExtension is the extension, without the dot, of the
	// file consumed by the decryption backend.
	CiphertextExtension string

	// Keys decides which key types are supported.
	Keys KeyChecker

	// Logger receives debug records for skipped candidates. May be nil.
	Logger *slog.Logger
}

// Scan enumerates the directory and returns every complete identity,
// ordered by name. An unreadable directory is an error; individual bad
// candidates are not.
func (s *Scanner) Scan() ([]Identity, error) {
	if s.CiphertextExtension == "" || s.CiphertextExtension == PublicKeyExtension {
		return nil, fmt.Errorf("invalid ciphertext extension %q", s.CiphertextExtension)
	}

	entries, err := os.ReadDir(s.Directory)
	if err != nil {
		return nil, fmt.Errorf("reading key directory %s: %w", s.Directory, err)
	}

	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = struct{}{}
	}

	publicSuffix := "." + PublicKeyExtension
	cipherSuffix := "." + s.CiphertextExtension

	var identities []Identity
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, publicSuffix) || strings.HasSuffix(name, cipherSuffix) {
			continue
		}
		_, hasPublic := names[name+publicSuffix]
		_, hasCipher := names[name+cipherSuffix]
		if !hasPublic || !hasCipher {
			continue
		}

		identity, err := s.load(name)
		if err != nil {
			s.debug("skipping key candidate", "name", name, "error", err)
			continue
		}
		identities = append(identities, identity)
	}

	sort.Slice(identities, func(a, b int) bool {
		return identities[a].Name < identities[b].Name
	})
	return identities, nil
}

// load validates one candidate triple and parses its public key.
func (s *Scanner) load(name string) (Identity, error) {
	keyPath := filepath.Join(s.Directory, name)
	publicPath := keyPath + "." + PublicKeyExtension
	cipherPath := keyPath + "." + s.CiphertextExtension

	for _, path := range []string{keyPath, publicPath, cipherPath} {
		if err := requireRegular(path); err != nil {
			return Identity{}, err
		}
	}

	publicKey, comment, err := readPublicKey(publicPath)
	if err != nil {
		return Identity{}, err
	}
	if s.Keys != nil {
		if err := s.Keys.CheckPublicKey(publicKey); err != nil {
			return Identity{}, err
		}
	}
	if comment == "" {
		comment = name
	}

	return Identity{
		Name:           name,
		PublicKey:      publicKey,
		Blob:           publicKey.Marshal(),
		Comment:        comment,
		KeyPath:        keyPath,
		CiphertextPath: cipherPath,
	}, nil
}

func (s *Scanner) debug(message string, args ...any) {
	if s.Logger != nil {
		s.Logger.Debug(message, args...)
	}
}

// requireRegular fails unless path (after following symlinks) is a
// regular file.
func requireRegular(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	return nil
}

// readPublicKey parses the first authorized_keys line of path.
func readPublicKey(path string) (ssh.PublicKey, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxPublicKeySize))
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}

	publicKey, comment, _, _, err := ssh.ParseAuthorizedKey(bytes.TrimSpace(data))
	if err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", path, err)
	}
	return publicKey, comment, nil
}

// Find returns the identity whose Blob equals blob exactly.
func Find(identities []Identity, blob []byte) (*Identity, error) {
	for index := range identities {
		if bytes.Equal(identities[index].Blob, blob) {
			return &identities[index], nil
		}
	}
	return nil, ErrNotFound
}
