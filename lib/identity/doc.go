// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity discovers signing identities from a key directory.
//
// An identity named N exists when three regular files sit side by side:
//
//	N          the private key artifact (passphrase-protected key, or
//	           a placeholder when the ciphertext holds the whole key)
//	N.pub      the public key, one authorized_keys line
//	N.<ext>    ciphertext for the decryption backend (ext is "gpg" or
//	           "age" depending on configuration)
//
// [Scanner.Scan] re-reads the directory on every call and holds no
// state between calls, so a key added or removed on disk is visible on
// the next request. Incomplete triples, unparseable public keys, and
// unsupported key types are skipped and logged at debug level; they
// are not identities.
//
// Scan results reflect the directory at some instant between the start
// and the end of the scan. A triple being created or deleted
// concurrently may or may not be included.
package identity
