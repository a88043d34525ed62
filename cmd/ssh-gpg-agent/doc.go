// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Ssh-gpg-agent is an SSH agent whose private keys live on disk
// encrypted to a gpg or age identity, typically one held on a smart
// card. An identity is a triple of files in the key directory:
//
//	<name>       the OpenSSH private key (possibly passphrase-protected)
//	<name>.pub   its authorized_keys line
//	<name>.gpg   ciphertext of the key, or of its passphrase
//
// The agent lists every complete triple. On a sign request it
// decrypts the ciphertext, signs, and wipes the plaintext before
// answering. Nothing decrypted outlives the request.
//
// Subcommands: serve (default), status, identities, keygen, seal, version.
package main
