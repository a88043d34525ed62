// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed decrypts the ciphertext sibling of an SSH identity.
//
// Two backends implement [Decrypter]:
//
//   - [GPG] runs the gpg binary as a subprocess. Unlocking the secret
//     key (smart card PIN, pinentry, gpg-agent caching) is entirely
//     gpg's business; this package only feeds ciphertext on stdin and
//     collects plaintext from stdout.
//   - [Age] decrypts in process with filippo.io/age. Identities come
//     from an age identities file and may include plugin identities
//     (AGE-PLUGIN-...), which talk to hardware tokens through their
//     age-plugin-* binaries.
//
// The recipient is implicit in both formats: gpg and age ciphertext
// headers name the keys they were encrypted to, and the backend tries
// whichever of its configured secret keys matches.
//
// Plaintext is always returned in a [secret.Buffer]. Data read from a
// backend goes directly into locked, non-dumpable memory, and the
// caller closes the buffer as soon as the signature is computed.
// Errors never include plaintext. They wrap [ErrDecryption] so the
// caller can classify them without parsing messages.
//
// [Encrypt] and [GenerateKeypair] produce age ciphertext and keys for
// the seal subcommand and for tests.
package sealed
