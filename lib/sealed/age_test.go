// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/testutil"
)

// newAgeBackend generates a keypair, writes it to an identities file,
// and loads it back the way the agent does at startup.
func newAgeBackend(t *testing.T) (*Age, []age.Recipient) {
	t.Helper()

	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	contents := "# created: test\n# public key: " + keypair.PublicKey + "\n" +
		string(keypair.PrivateKey.Bytes()) + "\n"
	path := testutil.WriteFile(t, t.TempDir(), "identities.txt", []byte(contents))

	identities, err := LoadAgeIdentities(path, nil)
	if err != nil {
		t.Fatalf("LoadAgeIdentities: %v", err)
	}
	backend, err := NewAge(identities...)
	if err != nil {
		t.Fatalf("NewAge: %v", err)
	}

	recipients, err := ParseRecipients([]string{keypair.PublicKey}, nil)
	if err != nil {
		t.Fatalf("ParseRecipients: %v", err)
	}
	return backend, recipients
}

func TestGenerateKeypair(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	if !strings.HasPrefix(string(keypair.PrivateKey.Bytes()), "AGE-SECRET-KEY-1") {
		t.Error("PrivateKey does not have the AGE-SECRET-KEY-1 prefix")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want age1 prefix", keypair.PublicKey)
	}
	if err := keypair.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestAge_RoundTrip(t *testing.T) {
	backend, recipients := newAgeBackend(t)

	for _, armored := range []bool{false, true} {
		ciphertext, err := Encrypt([]byte("hunter2\n"), recipients, armored)
		if err != nil {
			t.Fatalf("Encrypt(armored=%v): %v", armored, err)
		}
		if got := bytes.HasPrefix(ciphertext, []byte(armor.Header)); got != armored {
			t.Errorf("armored=%v: armor header present = %v", armored, got)
		}

		plaintext, err := backend.Decrypt(t.Context(), ciphertext)
		if err != nil {
			t.Fatalf("Decrypt(armored=%v): %v", armored, err)
		}
		if got := string(plaintext.Bytes()); got != "hunter2\n" {
			t.Errorf("armored=%v: plaintext = %q", armored, got)
		}
		plaintext.Close()
	}
}

func TestAge_PrivateKeyContainer(t *testing.T) {
	backend, recipients := newAgeBackend(t)
	key := testutil.GenerateEd25519(t, "")

	ciphertext, err := Encrypt(key.OpenSSH, recipients, true)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plaintext, err := backend.Decrypt(t.Context(), ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	defer plaintext.Close()

	if !bytes.Equal(plaintext.Bytes(), key.OpenSSH) {
		t.Error("decrypted container differs from the original")
	}
}

func TestAge_WrongIdentity(t *testing.T) {
	_, recipients := newAgeBackend(t)
	other, _ := newAgeBackend(t)

	ciphertext, err := Encrypt([]byte("secret"), recipients, false)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plaintext, err := other.Decrypt(t.Context(), ciphertext)
	if !errors.Is(err, ErrDecryption) {
		t.Fatalf("error = %v, want ErrDecryption", err)
	}
	if plaintext != nil {
		t.Error("failed decryption returned a buffer")
	}
}

func TestAge_CorruptCiphertext(t *testing.T) {
	backend, _ := newAgeBackend(t)

	for _, ciphertext := range [][]byte{
		[]byte("not age at all"),
		[]byte(armor.Header + "\n!!!!\n-----END AGE ENCRYPTED FILE-----\n"),
	} {
		if _, err := backend.Decrypt(t.Context(), ciphertext); !errors.Is(err, ErrDecryption) {
			t.Errorf("Decrypt(%q) error = %v, want ErrDecryption", ciphertext, err)
		}
	}
}

func TestAge_ContextCancelled(t *testing.T) {
	backend, recipients := newAgeBackend(t)
	ciphertext, err := Encrypt([]byte("secret"), recipients, false)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := backend.Decrypt(ctx, ciphertext); !errors.Is(err, ErrDecryption) {
		t.Fatalf("error = %v, want ErrDecryption", err)
	}
}

func TestNewAge_NoIdentities(t *testing.T) {
	if _, err := NewAge(); err == nil {
		t.Fatal("NewAge with no identities succeeded")
	}
}

func TestLoadAgeIdentities_Errors(t *testing.T) {
	directory := t.TempDir()

	tests := []struct {
		name     string
		contents string
	}{
		{"comments only", "# nothing here\n\n"},
		{"garbage", "not an identity\n"},
		{"plugin without UI", "AGE-PLUGIN-YUBIKEY-1QQQQQQQQQQQQQQQQQQQQQQQQQQQQQ\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := testutil.WriteFile(t, directory, strings.ReplaceAll(test.name, " ", "-"), []byte(test.contents))
			if _, err := LoadAgeIdentities(path, nil); err == nil {
				t.Fatal("LoadAgeIdentities succeeded")
			}
		})
	}

	if _, err := LoadAgeIdentities(filepath.Join(directory, "absent"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestParseRecipients(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()
	sshKey := testutil.GenerateEd25519(t, "user@host")

	recipients, err := ParseRecipients([]string{
		keypair.PublicKey,
		string(sshKey.AuthorizedKey),
	}, nil)
	if err != nil {
		t.Fatalf("ParseRecipients: %v", err)
	}
	if len(recipients) != 2 {
		t.Fatalf("got %d recipients, want 2", len(recipients))
	}

	if _, err := ParseRecipients(nil, nil); err == nil {
		t.Error("ParseRecipients with no keys succeeded")
	}
	if _, err := ParseRecipients([]string{"pgp:ABCDEF"}, nil); err == nil {
		t.Error("ParseRecipients accepted an unknown recipient type")
	}
	if _, err := ParseRecipients([]string{"age1notvalid"}, nil); err == nil {
		t.Error("ParseRecipients accepted a malformed age recipient")
	}
}

func TestEncrypt_NoRecipients(t *testing.T) {
	if _, err := Encrypt([]byte("x"), nil, false); err == nil {
		t.Fatal("Encrypt with no recipients succeeded")
	}
}

func TestAge_Extension(t *testing.T) {
	backend, _ := newAgeBackend(t)
	var decrypter Decrypter = backend
	if decrypter.Extension() != "age" {
		t.Errorf("Extension = %q, want age", decrypter.Extension())
	}
}
