// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signer turns decrypted private-key material into SSH
// signature blobs.
//
// Supported key types live in a [Registry] keyed by SSH key-type
// name. Each [Algorithm] knows how to accept a public key during
// identity discovery, how to sign with a parsed private key, and how
// to wipe that key afterwards. [Default] holds Ed25519 only; adding a
// type means registering another Algorithm, the session code does not
// change.
//
// [Registry.Sign] is the single entry point used by the agent. It parses the
// plaintext (an OpenSSH or PKCS#8 private key, or a passphrase for a
// protected OpenSSH key on disk), checks that the key matches the
// identity being signed for, signs, and zeroes every heap copy of the
// private key it owns before returning.
package signer
