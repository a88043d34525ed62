// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"context"
	"errors"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/secret"
)

// ErrDecryption wraps every backend failure: wrong recipient, card
// absent, user cancelled, corrupt ciphertext.
var ErrDecryption = errors.New("decryption failed")

// DefaultPlaintextLimit bounds decrypted output. Private key containers
// and passphrases are a few KiB at most.
const DefaultPlaintextLimit = 64 * 1024

// Decrypter turns ciphertext into plaintext held in protected memory.
// Decrypt may block for as long as the backend needs, including on
// user interaction. Cancelling ctx abandons the operation where the
// backend supports it.
//
// The caller must Close the returned buffer.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) (*secret.Buffer, error)

	// Extension is the file extension, without the dot, of ciphertext
	// this backend consumes.
	Extension() string
}

func plaintextLimit(limit int) int {
	if limit <= 0 {
		return DefaultPlaintextLimit
	}
	return limit
}
