// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/agessh"
	"filippo.io/age/armor"
	"filippo.io/age/plugin"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/secret"
)

// AgeExtension is the ciphertext extension consumed by [Age].
const AgeExtension = "age"

// pluginIdentityPrefix marks identities served by an age-plugin-*
// binary rather than parsed in process.
const pluginIdentityPrefix = "AGE-PLUGIN-"

// maxIdentitiesFile bounds the size of an age identities file.
const maxIdentitiesFile = 64 * 1024

// Age decrypts age ciphertext, binary or ASCII-armored, with a fixed
// set of identities.
type Age struct {
	identities []age.Identity

	// Limit caps the plaintext size. Zero means DefaultPlaintextLimit.
	Limit int
}

// NewAge returns a backend that tries each identity in order.
func NewAge(identities ...age.Identity) (*Age, error) {
	if len(identities) == 0 {
		return nil, errors.New("age backend needs at least one identity")
	}
	return &Age{identities: identities}, nil
}

// Extension returns "age".
func (a *Age) Extension() string { return AgeExtension }

// Decrypt decrypts ciphertext. age has no cancellation hook, so ctx is
// only checked before starting; a plugin waiting on a hardware token
// runs until the token answers or the plugin gives up.
func (a *Age) Decrypt(ctx context.Context, ciphertext []byte) (*secret.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	var source io.Reader = bytes.NewReader(ciphertext)
	if isArmored(ciphertext) {
		source = armor.NewReader(source)
	}

	reader, err := age.Decrypt(source, a.identities...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	plaintext, err := secret.NewFromReader(reader, plaintextLimit(a.Limit))
	if err != nil {
		return nil, fmt.Errorf("%w: reading age plaintext: %v", ErrDecryption, err)
	}
	return plaintext, nil
}

func isArmored(ciphertext []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(ciphertext, " \t\r\n"), []byte(armor.Header))
}

// LoadAgeIdentities reads an age identities file. Native identities
// (AGE-SECRET-KEY-1...) are parsed by age; AGE-PLUGIN-... lines become
// plugin identities that use ui for PIN prompts and messages. Blank
// lines and # comments are ignored.
func LoadAgeIdentities(path string, ui *plugin.ClientUI) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening age identities: %w", err)
	}
	defer file.Close()

	contents, err := secret.NewFromReader(file, maxIdentitiesFile)
	if err != nil {
		return nil, fmt.Errorf("reading age identities %s: %w", path, err)
	}
	defer contents.Close()

	identities, err := parseIdentities(contents.Bytes(), ui)
	if err != nil {
		return nil, fmt.Errorf("parsing age identities %s: %w", path, err)
	}
	return identities, nil
}

func parseIdentities(contents []byte, ui *plugin.ClientUI) ([]age.Identity, error) {
	var identities []age.Identity
	native := &bytes.Buffer{}
	defer func() { secret.Zero(native.Bytes()) }()

	for index, line := range bytes.Split(contents, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if !bytes.HasPrefix(line, []byte(pluginIdentityPrefix)) {
			native.Write(line)
			native.WriteByte('\n')
			continue
		}
		if ui == nil {
			return nil, fmt.Errorf("line %d: plugin identity needs an interactive UI", index+1)
		}
		identity, err := plugin.NewIdentity(string(line), ui)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		identities = append(identities, identity)
	}

	if native.Len() > 0 {
		parsed, err := age.ParseIdentities(bytes.NewReader(native.Bytes()))
		if err != nil {
			return nil, err
		}
		identities = append(identities, parsed...)
	}
	if len(identities) == 0 {
		return nil, errors.New("no identities found")
	}
	return identities, nil
}

// ParseRecipients parses public recipient strings: native age
// recipients (age1...), SSH public keys (ssh-ed25519 ..., ssh-rsa ...),
// and plugin recipients (age1<plugin>1...). ui is used only by plugin
// recipients and may be nil when none are present.
func ParseRecipients(keys []string, ui *plugin.ClientUI) ([]age.Recipient, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		recipient, err := parseRecipient(key, ui)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

func parseRecipient(key string, ui *plugin.ClientUI) (age.Recipient, error) {
	switch {
	case strings.HasPrefix(key, "ssh-"):
		return agessh.ParseRecipient(key)
	case strings.HasPrefix(key, "age1"):
		recipient, err := age.ParseX25519Recipient(key)
		if err == nil {
			return recipient, nil
		}
		if ui == nil {
			return nil, err
		}
		return plugin.NewRecipient(key, ui)
	default:
		return nil, errors.New("unknown recipient type")
	}
}

// Encrypt encrypts plaintext to every recipient. With armored set the
// output is PEM-style ASCII armor; otherwise it is the binary format.
func Encrypt(plaintext []byte, recipients []age.Recipient, armored bool) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, errors.New("at least one recipient is required")
	}

	var ciphertext bytes.Buffer
	var armorWriter io.WriteCloser
	var destination io.Writer = &ciphertext
	if armored {
		armorWriter = armor.NewWriter(&ciphertext)
		destination = armorWriter
	}

	writer, err := age.Encrypt(destination, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	if armorWriter != nil {
		if err := armorWriter.Close(); err != nil {
			return nil, fmt.Errorf("finalizing age armor: %w", err)
		}
	}
	return ciphertext.Bytes(), nil
}

// Keypair is a generated age X25519 keypair. PrivateKey holds the
// AGE-SECRET-KEY-1... encoding in protected memory.
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	PrivateKey *secret.Buffer
	PublicKey  string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	return k.PrivateKey.Close()
}

// GenerateKeypair creates a new age X25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// identity.String returns a heap string; the buffer is the copy
	// callers should hold on to.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}
